package learning

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/p-n-ai/studyflow/internal/progression"
)

// Store persists profiles, courses and topics. Every course and topic query is
// scoped to its owner: a row owned by someone else is reported as not found.
type Store interface {
	EnsureProfile(ctx context.Context, userID, username string) (Profile, error)
	GetProfile(ctx context.Context, userID string) (Profile, error)
	ListProfiles(ctx context.Context) ([]Profile, error)

	CreateCourse(ctx context.Context, userID string, course NewCourse) (Course, error)
	ListCourses(ctx context.Context, userID string) ([]Course, error)
	GetCourse(ctx context.Context, userID, courseID string) (Course, error)
	GetTopic(ctx context.Context, userID, topicID string) (Topic, error)

	// CompleteTopic marks an incomplete topic completed. It returns
	// ErrAlreadyCompleted when the topic was already completed and
	// ErrNotFound when the learner has no such topic.
	CompleteTopic(ctx context.Context, userID, topicID string, at time.Time) (CompletionResult, error)

	// AwardXP and TouchStreak are atomic read-modify-writes of the profile.
	AwardXP(ctx context.Context, userID string, amount int64) (progression.XPAward, error)
	TouchStreak(ctx context.Context, userID string, today progression.Date) (progression.StreakUpdate, error)

	// RepairLevels rewrites every stored level that disagrees with its XP and
	// returns how many profiles changed.
	RepairLevels(ctx context.Context) (int, error)
}

// MemoryStore is an in-memory Store for tests and local runs.
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]*Profile
	courses  map[string]*Course
	topics   map[string]*Topic
	order    []string // course ids in creation order
	now      func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles: make(map[string]*Profile),
		courses:  make(map[string]*Course),
		topics:   make(map[string]*Topic),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) EnsureProfile(_ context.Context, userID, username string) (Profile, error) {
	if userID == "" {
		return Profile{}, fmt.Errorf("%w: user id is required", progression.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.profiles[userID]; ok {
		return copyProfile(p), nil
	}
	now := s.now()
	p := &Profile{
		UserID:    userID,
		Username:  username,
		Level:     progression.MinLevel,
		Badges:    []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.profiles[userID] = p
	return copyProfile(p), nil
}

func (s *MemoryStore) GetProfile(_ context.Context, userID string) (Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[userID]
	if !ok {
		return Profile{}, fmt.Errorf("profile %s: %w", userID, progression.ErrNotFound)
	}
	return copyProfile(p), nil
}

func (s *MemoryStore) ListProfiles(_ context.Context) ([]Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, copyProfile(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *MemoryStore) CreateCourse(_ context.Context, userID string, course NewCourse) (Course, error) {
	course, err := course.Normalize()
	if err != nil {
		return Course{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.profiles[userID]; !ok {
		return Course{}, fmt.Errorf("profile %s: %w", userID, progression.ErrNotFound)
	}

	now := s.now()
	c := &Course{
		ID:            uuid.NewString(),
		UserID:        userID,
		Title:         course.Title,
		Description:   course.Description,
		LearningLevel: course.LearningLevel,
		SyllabusText:  course.SyllabusText,
		TotalXP:       course.TotalXP(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.courses[c.ID] = c
	s.order = append(s.order, c.ID)
	for i, nt := range course.Topics {
		t := &Topic{
			ID:            uuid.NewString(),
			CourseID:      c.ID,
			Name:          nt.Name,
			Description:   nt.Description,
			Difficulty:    nt.Difficulty,
			EstimatedTime: nt.EstimatedTime,
			XPReward:      nt.XPReward,
			OrderIndex:    i,
		}
		s.topics[t.ID] = t
	}
	return s.courseLocked(c), nil
}

func (s *MemoryStore) ListCourses(_ context.Context, userID string) ([]Course, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Newest first, like the database query.
	var out []Course
	for i := len(s.order) - 1; i >= 0; i-- {
		c := s.courses[s.order[i]]
		if c.UserID == userID {
			out = append(out, s.courseLocked(c))
		}
	}
	return out, nil
}

func (s *MemoryStore) GetCourse(_ context.Context, userID, courseID string) (Course, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.courses[courseID]
	if !ok || c.UserID != userID {
		return Course{}, fmt.Errorf("course %s: %w", courseID, progression.ErrNotFound)
	}
	return s.courseLocked(c), nil
}

func (s *MemoryStore) GetTopic(_ context.Context, userID, topicID string) (Topic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.ownedTopicLocked(userID, topicID)
	if !ok {
		return Topic{}, fmt.Errorf("topic %s: %w", topicID, progression.ErrNotFound)
	}
	return copyTopic(t), nil
}

func (s *MemoryStore) CompleteTopic(_ context.Context, userID, topicID string, at time.Time) (CompletionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.ownedTopicLocked(userID, topicID)
	if !ok {
		return CompletionResult{}, fmt.Errorf("topic %s: %w", topicID, progression.ErrNotFound)
	}
	if t.IsCompleted {
		return CompletionResult{}, fmt.Errorf("topic %s: %w", topicID, progression.ErrAlreadyCompleted)
	}

	at = at.UTC()
	t.IsCompleted = true
	t.CompletedAt = &at
	return CompletionResult{
		TopicID:     t.ID,
		CourseID:    t.CourseID,
		XPReward:    t.XPReward,
		CompletedAt: at,
	}, nil
}

func (s *MemoryStore) AwardXP(_ context.Context, userID string, amount int64) (progression.XPAward, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok {
		return progression.XPAward{}, fmt.Errorf("profile %s: %w", userID, progression.ErrNotFound)
	}
	award, err := progression.AddXP(p.State(), amount)
	if err != nil {
		return progression.XPAward{}, err
	}
	p.XP = award.NewXP
	p.Level = award.NewLevel
	p.UpdatedAt = s.now()
	return award, nil
}

func (s *MemoryStore) TouchStreak(_ context.Context, userID string, today progression.Date) (progression.StreakUpdate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok {
		return progression.StreakUpdate{}, fmt.Errorf("profile %s: %w", userID, progression.ErrNotFound)
	}
	update := progression.TouchStreak(p.State(), today)
	if update.Changed {
		p.Streak = update.NewStreak
		p.LastActivity = update.LastActivity
		p.UpdatedAt = s.now()
	}
	return update, nil
}

func (s *MemoryStore) RepairLevels(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := 0
	for _, p := range s.profiles {
		if want := progression.LevelFor(p.XP); p.Level != want {
			p.Level = want
			changed++
		}
	}
	return changed, nil
}

func (s *MemoryStore) ownedTopicLocked(userID, topicID string) (*Topic, bool) {
	t, ok := s.topics[topicID]
	if !ok {
		return nil, false
	}
	c, ok := s.courses[t.CourseID]
	if !ok || c.UserID != userID {
		return nil, false
	}
	return t, true
}

func (s *MemoryStore) courseLocked(c *Course) Course {
	out := *c
	out.Topics = nil
	for _, t := range s.topics {
		if t.CourseID == c.ID {
			out.Topics = append(out.Topics, copyTopic(t))
		}
	}
	SortTopics(out.Topics)
	return out
}

// SortTopics orders topics by order_index, keeping input order for ties.
func SortTopics(topics []Topic) {
	sort.SliceStable(topics, func(i, j int) bool {
		return topics[i].OrderIndex < topics[j].OrderIndex
	})
}

func copyProfile(p *Profile) Profile {
	out := *p
	out.Badges = append([]string{}, p.Badges...)
	return out
}

func copyTopic(t *Topic) Topic {
	out := *t
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		out.CompletedAt = &at
	}
	return out
}
