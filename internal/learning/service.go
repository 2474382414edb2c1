package learning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/p-n-ai/studyflow/internal/events"
	"github.com/p-n-ai/studyflow/internal/progression"
)

// ScoreRecorder receives a learner's new XP total after every award.
type ScoreRecorder interface {
	RecordScore(ctx context.Context, userID string, xp int64) error
}

// ServiceConfig holds the dependencies of a Service.
type ServiceConfig struct {
	Store  Store
	Events events.Publisher // optional
	Scores ScoreRecorder    // optional
	Now    func() time.Time // defaults to time.Now
}

// Service runs the learner-facing operations on top of a Store.
type Service struct {
	store  Store
	events events.Publisher
	scores ScoreRecorder
	now    func() time.Time
}

// NewService creates a Service.
func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		store:  cfg.Store,
		events: cfg.Events,
		scores: cfg.Scores,
		now:    cfg.Now,
	}
	if s.events == nil {
		s.events = events.Nop{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// EnsureLearner creates the learner's profile on first sight and returns it.
func (s *Service) EnsureLearner(ctx context.Context, userID, username string) (Profile, error) {
	p, err := s.store.EnsureProfile(ctx, userID, username)
	if err != nil {
		return Profile{}, fmt.Errorf("ensure learner: %w", err)
	}
	return p, nil
}

// Profile returns the learner's profile with level progress.
func (s *Service) Profile(ctx context.Context, userID string) (ProfileView, error) {
	p, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		return ProfileView{}, fmt.Errorf("get profile: %w", err)
	}
	return NewProfileView(p), nil
}

// RecordActivity touches the learner's streak for today.
func (s *Service) RecordActivity(ctx context.Context, userID string) (progression.StreakUpdate, error) {
	update, err := s.store.TouchStreak(ctx, userID, s.today())
	if err != nil {
		return progression.StreakUpdate{}, fmt.Errorf("touch streak: %w", err)
	}
	if update.Changed {
		s.publishStreak(ctx, userID, update)
	}
	return update, nil
}

// CreateCourse stores a course and its topics in list order.
func (s *Service) CreateCourse(ctx context.Context, userID string, course NewCourse) (CourseView, error) {
	c, err := s.store.CreateCourse(ctx, userID, course)
	if err != nil {
		return CourseView{}, fmt.Errorf("create course: %w", err)
	}
	slog.Info("course created",
		"user_id", userID,
		"course_id", c.ID,
		"topics", len(c.Topics),
		"total_xp", c.TotalXP,
	)
	return NewCourseView(c), nil
}

// Courses lists the learner's courses, newest first, with progress.
func (s *Service) Courses(ctx context.Context, userID string) ([]CourseView, error) {
	courses, err := s.store.ListCourses(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	out := make([]CourseView, len(courses))
	for i, c := range courses {
		out[i] = NewCourseView(c)
	}
	return out, nil
}

// Course returns one of the learner's courses.
func (s *Service) Course(ctx context.Context, userID, courseID string) (CourseView, error) {
	c, err := s.store.GetCourse(ctx, userID, courseID)
	if err != nil {
		return CourseView{}, fmt.Errorf("get course: %w", err)
	}
	return NewCourseView(c), nil
}

// Stats summarizes progress across all of the learner's courses.
func (s *Service) Stats(ctx context.Context, userID string) (progression.LearnerStats, error) {
	views, err := s.Courses(ctx, userID)
	if err != nil {
		return progression.LearnerStats{}, err
	}
	progress := make([]progression.CourseProgress, len(views))
	for i, v := range views {
		progress[i] = v.Progress
	}
	return progression.Summarize(progress), nil
}

// CompletionOutcome reports everything a topic completion changed.
type CompletionOutcome struct {
	TopicID          string                     `json:"topic_id"`
	CourseID         string                     `json:"course_id"`
	AlreadyCompleted bool                       `json:"already_completed"`
	XP               *progression.XPAward       `json:"xp,omitempty"`
	Streak           *progression.StreakUpdate  `json:"streak,omitempty"`
	CourseProgress   progression.CourseProgress `json:"course_progress"`
	NextTopicID      string                     `json:"next_topic_id,omitempty"`
}

// CompleteTopic completes a topic and applies its reward. Completing a topic
// twice returns AlreadyCompleted without awarding XP again. Locked topics are
// rejected.
func (s *Service) CompleteTopic(ctx context.Context, userID, topicID string) (CompletionOutcome, error) {
	topic, err := s.store.GetTopic(ctx, userID, topicID)
	if err != nil {
		return CompletionOutcome{}, fmt.Errorf("get topic: %w", err)
	}
	course, err := s.store.GetCourse(ctx, userID, topic.CourseID)
	if err != nil {
		return CompletionOutcome{}, fmt.Errorf("get course: %w", err)
	}
	view := NewCourseView(course)
	if !topic.IsCompleted && view.IsLocked(topicID) {
		return CompletionOutcome{}, fmt.Errorf("%w: topic is locked", progression.ErrValidation)
	}

	out := CompletionOutcome{TopicID: topicID, CourseID: topic.CourseID}

	res, err := s.store.CompleteTopic(ctx, userID, topicID, s.now())
	if errors.Is(err, progression.ErrAlreadyCompleted) {
		out.AlreadyCompleted = true
		out.CourseProgress = view.Progress
		out.NextTopicID = view.NextTopicID
		return out, nil
	}
	if err != nil {
		return CompletionOutcome{}, fmt.Errorf("complete topic: %w", err)
	}
	s.publish(ctx, events.TypeTopicCompleted, userID, map[string]any{
		"topic_id":  res.TopicID,
		"course_id": res.CourseID,
		"xp_reward": res.XPReward,
	})

	award, err := s.store.AwardXP(ctx, userID, res.XPReward)
	if err != nil {
		slog.Error("xp award failed after completion",
			"user_id", userID,
			"topic_id", topicID,
			"xp_reward", res.XPReward,
			"error", err,
		)
		return CompletionOutcome{}, fmt.Errorf("award xp: %w", err)
	}
	out.XP = &award
	s.publish(ctx, events.TypeXPAwarded, userID, map[string]any{
		"topic_id":       topicID,
		"amount":         award.Amount,
		"previous_xp":    award.PreviousXP,
		"new_xp":         award.NewXP,
		"previous_level": award.PreviousLevel,
		"new_level":      award.NewLevel,
	})
	if award.LeveledUp {
		slog.Info("level up", "user_id", userID, "from", award.PreviousLevel, "to", award.NewLevel)
		s.publish(ctx, events.TypeLevelUp, userID, map[string]any{
			"previous_level": award.PreviousLevel,
			"new_level":      award.NewLevel,
			"new_xp":         award.NewXP,
		})
	}
	s.recordScore(ctx, userID, award.NewXP)

	// XP is committed by now, so a streak failure must not fail the completion.
	streak, err := s.store.TouchStreak(ctx, userID, s.today())
	if err != nil {
		slog.Error("streak update failed after completion",
			"user_id", userID,
			"topic_id", topicID,
			"error", err,
		)
	} else {
		out.Streak = &streak
		if streak.Changed {
			s.publishStreak(ctx, userID, streak)
		}
	}

	for i := range course.Topics {
		if course.Topics[i].ID == topicID {
			course.Topics[i].IsCompleted = true
			at := res.CompletedAt
			course.Topics[i].CompletedAt = &at
		}
	}
	after := NewCourseView(course)
	out.CourseProgress = after.Progress
	out.NextTopicID = after.NextTopicID

	slog.Info("topic completed",
		"user_id", userID,
		"topic_id", topicID,
		"course_id", res.CourseID,
		"xp", award.NewXP,
		"level", award.NewLevel,
		"streak", streak.NewStreak,
	)
	return out, nil
}

func (s *Service) today() progression.Date {
	return progression.DateOf(s.now())
}

func (s *Service) publishStreak(ctx context.Context, userID string, u progression.StreakUpdate) {
	s.publish(ctx, events.TypeStreakUpdated, userID, map[string]any{
		"previous_streak":    u.PreviousStreak,
		"new_streak":         u.NewStreak,
		"last_activity_date": u.LastActivity.String(),
		"reset":              u.Reset,
	})
}

// publish delivers a notification. Delivery failures are logged; the state
// change they describe is already committed.
func (s *Service) publish(ctx context.Context, eventType, userID string, data map[string]any) {
	err := s.events.Publish(ctx, events.Event{
		Type:      eventType,
		UserID:    userID,
		Data:      data,
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		slog.Warn("publish event failed", "type", eventType, "user_id", userID, "error", err)
	}
}

func (s *Service) recordScore(ctx context.Context, userID string, xp int64) {
	if s.scores == nil {
		return
	}
	if err := s.scores.RecordScore(ctx, userID, xp); err != nil {
		slog.Warn("leaderboard update failed", "user_id", userID, "xp", xp, "error", err)
	}
}

func levelLabel(level int) string {
	return "Level " + strconv.Itoa(level)
}
