package progression

import (
	"fmt"
	"math"
)

// Profile is the mutable slice of a learner's state owned by the XP/level and
// streak transitions. It is a value: transitions return results, they never
// mutate the receiver.
type Profile struct {
	UserID       string
	XP           int64
	Level        int
	Streak       int
	LastActivity Date // zero when the learner has never been active
}

// XPAward is the outcome of adding XP to a profile.
type XPAward struct {
	Amount        int64 `json:"amount"`
	PreviousXP    int64 `json:"previous_xp"`
	NewXP         int64 `json:"new_xp"`
	PreviousLevel int   `json:"previous_level"`
	NewLevel      int   `json:"new_level"`
	LeveledUp     bool  `json:"leveled_up"`
}

// AddXP adds amount to the profile's XP and recomputes the level.
// A zero amount is a no-op; negative amounts and int64 overflow are rejected.
func AddXP(p Profile, amount int64) (XPAward, error) {
	if amount < 0 {
		return XPAward{}, fmt.Errorf("%w: xp amount must be non-negative, got %d", ErrValidation, amount)
	}
	if p.XP < 0 {
		return XPAward{}, fmt.Errorf("%w: profile xp is negative (%d)", ErrValidation, p.XP)
	}
	if amount > math.MaxInt64-p.XP {
		return XPAward{}, fmt.Errorf("%w: xp overflow adding %d to %d", ErrValidation, amount, p.XP)
	}

	newXP := p.XP + amount
	newLevel := LevelFor(newXP)
	return XPAward{
		Amount:        amount,
		PreviousXP:    p.XP,
		NewXP:         newXP,
		PreviousLevel: p.Level,
		NewLevel:      newLevel,
		LeveledUp:     newLevel > p.Level,
	}, nil
}

// Apply returns a copy of p with the award's totals.
func (a XPAward) Apply(p Profile) Profile {
	p.XP = a.NewXP
	p.Level = a.NewLevel
	return p
}
