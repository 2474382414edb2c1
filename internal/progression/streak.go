package progression

// StreakUpdate is the outcome of touching a learner's streak for a day.
type StreakUpdate struct {
	PreviousStreak int  `json:"previous_streak"`
	NewStreak      int  `json:"new_streak"`
	LastActivity   Date `json:"last_activity_date"`
	// Changed is false for a repeated same-day touch; nothing needs persisting.
	Changed bool `json:"changed"`
	// Reset is true when an existing streak was broken and restarted at 1.
	Reset bool `json:"reset"`
}

// TouchStreak records activity on today.
//
//   - no previous activity: streak starts at 1
//   - same day: unchanged
//   - previous day: streak + 1
//   - any other gap, including a negative one from clock skew: back to 1
func TouchStreak(p Profile, today Date) StreakUpdate {
	u := StreakUpdate{
		PreviousStreak: p.Streak,
		LastActivity:   today,
		Changed:        true,
	}

	if p.LastActivity.IsZero() {
		u.NewStreak = 1
		return u
	}

	switch p.LastActivity.DaysUntil(today) {
	case 0:
		u.NewStreak = p.Streak
		u.LastActivity = p.LastActivity
		u.Changed = false
	case 1:
		u.NewStreak = p.Streak + 1
	default:
		u.NewStreak = 1
		u.Reset = p.Streak > 0
	}
	return u
}

// Apply returns a copy of p with the update's streak state.
func (u StreakUpdate) Apply(p Profile) Profile {
	p.Streak = u.NewStreak
	p.LastActivity = u.LastActivity
	return p
}
