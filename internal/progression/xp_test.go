package progression_test

import (
	"errors"
	"math"
	"testing"

	"github.com/p-n-ai/studyflow/internal/progression"
)

func TestAddXP(t *testing.T) {
	tests := []struct {
		name      string
		profile   progression.Profile
		amount    int64
		wantXP    int64
		wantLevel int
		wantUp    bool
	}{
		{"zero is a no-op", progression.Profile{XP: 50, Level: 1}, 0, 50, 1, false},
		{"stays in level", progression.Profile{XP: 0, Level: 1}, 99, 99, 1, false},
		{"crosses into level 2", progression.Profile{XP: 60, Level: 1}, 40, 100, 2, true},
		{"skips a level", progression.Profile{XP: 90, Level: 1}, 520, 610, 4, true},
		{"repairs a stale level", progression.Profile{XP: 300, Level: 1}, 0, 300, 3, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := progression.AddXP(tt.profile, tt.amount)
			if err != nil {
				t.Fatalf("AddXP() error = %v", err)
			}
			if got.NewXP != tt.wantXP || got.NewLevel != tt.wantLevel || got.LeveledUp != tt.wantUp {
				t.Errorf("AddXP() = %+v, want xp=%d level=%d up=%v", got, tt.wantXP, tt.wantLevel, tt.wantUp)
			}
			if got.PreviousXP != tt.profile.XP {
				t.Errorf("PreviousXP = %d, want %d", got.PreviousXP, tt.profile.XP)
			}
		})
	}
}

func TestAddXP_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		profile progression.Profile
		amount  int64
	}{
		{"negative amount", progression.Profile{XP: 10, Level: 1}, -1},
		{"overflow", progression.Profile{XP: math.MaxInt64 - 5, Level: 1}, 6},
		{"negative profile", progression.Profile{XP: -1, Level: 1}, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := progression.AddXP(tt.profile, tt.amount)
			if !errors.Is(err, progression.ErrValidation) {
				t.Fatalf("AddXP() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestAddXP_DoesNotMutate(t *testing.T) {
	p := progression.Profile{UserID: "u1", XP: 10, Level: 1}
	award, err := progression.AddXP(p, 200)
	if err != nil {
		t.Fatalf("AddXP() error = %v", err)
	}
	if p.XP != 10 || p.Level != 1 {
		t.Fatalf("profile mutated: %+v", p)
	}
	next := award.Apply(p)
	if next.XP != 210 || next.Level != 2 || next.UserID != "u1" {
		t.Fatalf("Apply() = %+v", next)
	}
}

func TestAddXP_LevelNeverDecreases(t *testing.T) {
	p := progression.Profile{Level: 1}
	for i := 0; i < 500; i++ {
		award, err := progression.AddXP(p, int64(i%37))
		if err != nil {
			t.Fatalf("AddXP() error = %v", err)
		}
		if award.NewLevel < p.Level || award.NewXP < p.XP {
			t.Fatalf("step %d went backwards: %+v from %+v", i, award, p)
		}
		if award.NewLevel != progression.LevelFor(award.NewXP) {
			t.Fatalf("step %d level %d != LevelFor(%d)", i, award.NewLevel, award.NewXP)
		}
		p = award.Apply(p)
	}
}
