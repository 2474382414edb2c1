package learning

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/p-n-ai/studyflow/internal/progression"
)

func sampleCourse() NewCourse {
	return NewCourse{
		Title:         "Intro to Go",
		LearningLevel: LevelBeginner,
		Topics: []NewTopic{
			{Name: "Syntax", Difficulty: DifficultyEasy, EstimatedTime: 20, XPReward: 50},
			{Name: "Types", Difficulty: DifficultyMedium, EstimatedTime: 30, XPReward: 75},
			{Name: "Concurrency", Difficulty: DifficultyHard, EstimatedTime: 60, XPReward: 150},
		},
	}
}

func TestMemoryStore_EnsureProfile(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	p, err := s.EnsureProfile(ctx, "user-1", "ana")
	if err != nil {
		t.Fatalf("EnsureProfile() error = %v", err)
	}
	if p.XP != 0 || p.Level != 1 || p.Streak != 0 || !p.LastActivity.IsZero() {
		t.Errorf("new profile = %+v", p)
	}

	again, err := s.EnsureProfile(ctx, "user-1", "other")
	if err != nil {
		t.Fatalf("EnsureProfile() error = %v", err)
	}
	if again.Username != "ana" {
		t.Errorf("Username = %q, existing profile should be kept", again.Username)
	}

	if _, err := s.EnsureProfile(ctx, "", ""); !errors.Is(err, progression.ErrValidation) {
		t.Errorf("empty user id error = %v", err)
	}
}

func TestMemoryStore_CourseOwnership(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.EnsureProfile(ctx, "owner", "")
	s.EnsureProfile(ctx, "intruder", "")

	c, err := s.CreateCourse(ctx, "owner", sampleCourse())
	if err != nil {
		t.Fatalf("CreateCourse() error = %v", err)
	}
	if c.TotalXP != 275 || len(c.Topics) != 3 {
		t.Fatalf("course = %+v", c)
	}
	for i, topic := range c.Topics {
		if topic.OrderIndex != i {
			t.Errorf("topic %d has order %d", i, topic.OrderIndex)
		}
	}

	if _, err := s.GetCourse(ctx, "intruder", c.ID); !errors.Is(err, progression.ErrNotFound) {
		t.Errorf("GetCourse() by intruder error = %v", err)
	}
	if _, err := s.GetTopic(ctx, "intruder", c.Topics[0].ID); !errors.Is(err, progression.ErrNotFound) {
		t.Errorf("GetTopic() by intruder error = %v", err)
	}
	if _, err := s.CompleteTopic(ctx, "intruder", c.Topics[0].ID, time.Now()); !errors.Is(err, progression.ErrNotFound) {
		t.Errorf("CompleteTopic() by intruder error = %v", err)
	}
	list, _ := s.ListCourses(ctx, "intruder")
	if len(list) != 0 {
		t.Errorf("intruder sees %d courses", len(list))
	}
}

func TestMemoryStore_CreateCourseNeedsProfile(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.CreateCourse(context.Background(), "ghost", sampleCourse()); !errors.Is(err, progression.ErrNotFound) {
		t.Fatalf("CreateCourse() error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_ListCoursesNewestFirst(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.EnsureProfile(ctx, "u", "")

	first, _ := s.CreateCourse(ctx, "u", sampleCourse())
	second, _ := s.CreateCourse(ctx, "u", sampleCourse())

	list, err := s.ListCourses(ctx, "u")
	if err != nil {
		t.Fatalf("ListCourses() error = %v", err)
	}
	if len(list) != 2 || list[0].ID != second.ID || list[1].ID != first.ID {
		t.Fatalf("ListCourses() order wrong")
	}
}

func TestMemoryStore_CompleteTopicIdempotent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.EnsureProfile(ctx, "u", "")
	c, _ := s.CreateCourse(ctx, "u", sampleCourse())
	topicID := c.Topics[0].ID

	res, err := s.CompleteTopic(ctx, "u", topicID, time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("CompleteTopic() error = %v", err)
	}
	if res.XPReward != 50 || res.CourseID != c.ID {
		t.Errorf("result = %+v", res)
	}

	if _, err := s.CompleteTopic(ctx, "u", topicID, time.Now()); !errors.Is(err, progression.ErrAlreadyCompleted) {
		t.Fatalf("second CompleteTopic() error = %v, want ErrAlreadyCompleted", err)
	}

	topic, _ := s.GetTopic(ctx, "u", topicID)
	if !topic.IsCompleted || topic.CompletedAt == nil || topic.CompletedAt.Day() != 10 {
		t.Errorf("topic = %+v, completed_at must be set once", topic)
	}
}

func TestMemoryStore_ConcurrentCompletionAwardsOnce(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.EnsureProfile(ctx, "u", "")
	c, _ := s.CreateCourse(ctx, "u", sampleCourse())

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.CompleteTopic(ctx, "u", c.Topics[0].ID, time.Now()); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("%d completions succeeded, want 1", wins)
	}
}

func TestMemoryStore_AwardXPAndStreak(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.EnsureProfile(ctx, "u", "")

	award, err := s.AwardXP(ctx, "u", 120)
	if err != nil {
		t.Fatalf("AwardXP() error = %v", err)
	}
	if award.NewXP != 120 || award.NewLevel != 2 || !award.LeveledUp {
		t.Errorf("award = %+v", award)
	}
	if _, err := s.AwardXP(ctx, "u", -1); !errors.Is(err, progression.ErrValidation) {
		t.Errorf("negative award error = %v", err)
	}
	if _, err := s.AwardXP(ctx, "nobody", 10); !errors.Is(err, progression.ErrNotFound) {
		t.Errorf("missing profile error = %v", err)
	}

	day := progression.MustParseDate("2025-03-10")
	for i, want := range []int{1, 1, 2} {
		today := day
		if i == 2 {
			today = day.AddDays(1)
		}
		u, err := s.TouchStreak(ctx, "u", today)
		if err != nil {
			t.Fatalf("TouchStreak() error = %v", err)
		}
		if u.NewStreak != want {
			t.Errorf("touch %d: streak = %d, want %d", i, u.NewStreak, want)
		}
	}

	p, _ := s.GetProfile(ctx, "u")
	if p.XP != 120 || p.Level != 2 || p.Streak != 2 || p.LastActivity.String() != "2025-03-11" {
		t.Errorf("profile = %+v", p)
	}
}

func TestMemoryStore_RepairLevels(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.EnsureProfile(ctx, "a", "")
	s.EnsureProfile(ctx, "b", "")
	s.AwardXP(ctx, "a", 650)

	// Simulate a level written by an older threshold table.
	s.mu.Lock()
	s.profiles["a"].Level = 2
	s.mu.Unlock()

	n, err := s.RepairLevels(ctx)
	if err != nil {
		t.Fatalf("RepairLevels() error = %v", err)
	}
	if n != 1 {
		t.Errorf("RepairLevels() = %d, want 1", n)
	}
	p, _ := s.GetProfile(ctx, "a")
	if p.Level != 4 {
		t.Errorf("Level = %d, want 4", p.Level)
	}

	profiles, _ := s.ListProfiles(ctx)
	if len(profiles) != 2 || profiles[0].UserID != "a" {
		t.Errorf("ListProfiles() = %+v", profiles)
	}
}
