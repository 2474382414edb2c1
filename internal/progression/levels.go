package progression

import (
	"math"
)

// MinLevel is the level of a learner who has not earned any XP yet.
const MinLevel = 1

// Level bands are 100, 200 and 300 XP wide for levels 1-3 and keep widening by
// 100 XP per level after that, so Threshold(L) = 50 * L * (L-1).
const bandUnit = 50

// maxLevel keeps Threshold inside int64.
const maxLevel = 400_000_000

// Threshold returns the cumulative XP at which level starts.
func Threshold(level int) int64 {
	if level <= MinLevel {
		return 0
	}
	if level > maxLevel {
		return math.MaxInt64
	}
	l := int64(level)
	return bandUnit * l * (l - 1)
}

// LevelFor returns the highest level whose threshold xp has reached.
func LevelFor(xp int64) int {
	if xp <= 0 {
		return MinLevel
	}

	// Closed-form estimate, then settle on the exact integer boundary.
	level := int((1 + math.Sqrt(1+4*float64(xp)/bandUnit)) / 2)
	if level < MinLevel {
		level = MinLevel
	}
	if level > maxLevel {
		level = maxLevel
	}
	for level > MinLevel && Threshold(level) > xp {
		level--
	}
	for level < maxLevel && Threshold(level+1) <= xp {
		level++
	}
	return level
}

// LevelProgress describes where a learner sits inside the current level band.
type LevelProgress struct {
	Level         int   `json:"level"`
	LevelStartXP  int64 `json:"level_start_xp"`
	NextLevelXP   int64 `json:"next_level_xp"`
	XPIntoLevel   int64 `json:"xp_into_level"`
	XPToNextLevel int64 `json:"xp_to_next_level"`
	Percent       int   `json:"percent"`
}

// ProgressFor computes the level band and the share of it already earned,
// rounded half up to a whole percent.
func ProgressFor(xp int64) LevelProgress {
	if xp < 0 {
		xp = 0
	}
	level := LevelFor(xp)
	start := Threshold(level)
	next := Threshold(level + 1)
	band := next - start
	into := xp - start

	return LevelProgress{
		Level:         level,
		LevelStartXP:  start,
		NextLevelXP:   next,
		XPIntoLevel:   into,
		XPToNextLevel: next - xp,
		Percent:       roundPercent(into, band),
	}
}

func roundPercent(part, whole int64) int {
	if whole <= 0 {
		return 0
	}
	return int((200*part + whole) / (2 * whole))
}
