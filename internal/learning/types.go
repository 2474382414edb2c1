// Package learning owns learner profiles, courses and topics, and the service
// that turns a topic completion into XP, levels and streaks.
package learning

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/p-n-ai/studyflow/internal/progression"
)

// LearningLevel is the declared audience of a course.
type LearningLevel string

const (
	LevelBeginner     LearningLevel = "beginner"
	LevelIntermediate LearningLevel = "intermediate"
	LevelAdvanced     LearningLevel = "advanced"
)

func (l LearningLevel) Valid() bool {
	switch l {
	case LevelBeginner, LevelIntermediate, LevelAdvanced:
		return true
	}
	return false
}

// Label returns the level as a display title, e.g. "Intermediate".
func (l LearningLevel) Label() string {
	return cases.Title(language.English).String(string(l))
}

// Difficulty is the declared difficulty of a topic.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// Profile is a learner's persisted gamification state.
type Profile struct {
	UserID       string           `json:"user_id"`
	Username     string           `json:"username"`
	FullName     string           `json:"full_name"`
	XP           int64            `json:"xp"`
	Level        int              `json:"level"`
	Streak       int              `json:"streak"`
	LastActivity progression.Date `json:"last_activity_date"`
	Badges       []string         `json:"badges"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// State returns the part of the profile the progression engine transitions.
func (p Profile) State() progression.Profile {
	return progression.Profile{
		UserID:       p.UserID,
		XP:           p.XP,
		Level:        p.Level,
		Streak:       p.Streak,
		LastActivity: p.LastActivity,
	}
}

// Course is a learner-owned, ordered list of topics. Progress fields are not
// stored; see CourseView.
type Course struct {
	ID            string        `json:"id"`
	UserID        string        `json:"user_id"`
	Title         string        `json:"title"`
	Description   string        `json:"description"`
	LearningLevel LearningLevel `json:"learning_level"`
	SyllabusText  string        `json:"syllabus_text,omitempty"`
	TotalXP       int64         `json:"total_xp"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	Topics        []Topic       `json:"-"`
}

// Topic is one unit of a course.
type Topic struct {
	ID            string     `json:"id"`
	CourseID      string     `json:"course_id"`
	Name          string     `json:"name"`
	Description   string     `json:"description"`
	Difficulty    Difficulty `json:"difficulty"`
	EstimatedTime int        `json:"estimated_time"`
	XPReward      int64      `json:"xp_reward"`
	OrderIndex    int        `json:"order_index"`
	IsCompleted   bool       `json:"is_completed"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// CompletionResult is what the completion recorder reports for a topic that
// transitioned to completed.
type CompletionResult struct {
	TopicID     string    `json:"topic_id"`
	CourseID    string    `json:"course_id"`
	XPReward    int64     `json:"xp_reward"`
	CompletedAt time.Time `json:"completed_at"`
}

// NewTopic is a topic draft, from a learner or from path generation.
type NewTopic struct {
	Name          string     `json:"name"`
	Description   string     `json:"description"`
	Difficulty    Difficulty `json:"difficulty"`
	EstimatedTime int        `json:"estimated_time"`
	XPReward      int64      `json:"xp_reward"`
}

// NewCourse is a course draft. Topic order is the slice order.
type NewCourse struct {
	Title         string        `json:"title"`
	Description   string        `json:"description"`
	LearningLevel LearningLevel `json:"learning_level"`
	SyllabusText  string        `json:"syllabus_text"`
	Topics        []NewTopic    `json:"topics"`
}

const (
	maxTitleLen  = 200
	maxTopics    = 100
	maxTopicTime = 24 * 60
	maxTopicXP   = 100_000
)

// Normalize trims and NFC-normalizes text fields and validates the draft.
func (c NewCourse) Normalize() (NewCourse, error) {
	c.Title = clean(c.Title)
	c.Description = clean(c.Description)
	c.SyllabusText = strings.TrimSpace(norm.NFC.String(c.SyllabusText))
	if c.LearningLevel == "" {
		c.LearningLevel = LevelBeginner
	}
	c.LearningLevel = LearningLevel(strings.ToLower(string(c.LearningLevel)))

	if c.Title == "" {
		return NewCourse{}, fmt.Errorf("%w: course title is required", progression.ErrValidation)
	}
	if len([]rune(c.Title)) > maxTitleLen {
		return NewCourse{}, fmt.Errorf("%w: course title is longer than %d characters", progression.ErrValidation, maxTitleLen)
	}
	if !c.LearningLevel.Valid() {
		return NewCourse{}, fmt.Errorf("%w: unknown learning level %q", progression.ErrValidation, c.LearningLevel)
	}
	if len(c.Topics) == 0 {
		return NewCourse{}, fmt.Errorf("%w: a course needs at least one topic", progression.ErrValidation)
	}
	if len(c.Topics) > maxTopics {
		return NewCourse{}, fmt.Errorf("%w: a course has at most %d topics", progression.ErrValidation, maxTopics)
	}

	topics := make([]NewTopic, len(c.Topics))
	for i, t := range c.Topics {
		nt, err := t.Normalize()
		if err != nil {
			return NewCourse{}, fmt.Errorf("topic %d: %w", i+1, err)
		}
		topics[i] = nt
	}
	c.Topics = topics
	return c, nil
}

// TotalXP sums the topic rewards.
func (c NewCourse) TotalXP() int64 {
	var total int64
	for _, t := range c.Topics {
		total += t.XPReward
	}
	return total
}

// Normalize trims and validates a topic draft.
func (t NewTopic) Normalize() (NewTopic, error) {
	t.Name = clean(t.Name)
	t.Description = clean(t.Description)
	t.Difficulty = Difficulty(strings.ToLower(strings.TrimSpace(string(t.Difficulty))))

	switch {
	case t.Name == "":
		return NewTopic{}, fmt.Errorf("%w: topic name is required", progression.ErrValidation)
	case !t.Difficulty.Valid():
		return NewTopic{}, fmt.Errorf("%w: unknown difficulty %q", progression.ErrValidation, t.Difficulty)
	case t.XPReward <= 0:
		return NewTopic{}, fmt.Errorf("%w: xp_reward must be positive", progression.ErrValidation)
	case t.XPReward > maxTopicXP:
		return NewTopic{}, fmt.Errorf("%w: xp_reward is capped at %d", progression.ErrValidation, maxTopicXP)
	case t.EstimatedTime < 0 || t.EstimatedTime > maxTopicTime:
		return NewTopic{}, fmt.Errorf("%w: estimated_time must be between 0 and %d minutes", progression.ErrValidation, maxTopicTime)
	}
	return t, nil
}

func clean(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}
