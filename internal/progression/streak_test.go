package progression_test

import (
	"testing"
	"time"

	"github.com/p-n-ai/studyflow/internal/progression"
)

func TestTouchStreak(t *testing.T) {
	d := progression.MustParseDate
	tests := []struct {
		name        string
		streak      int
		last        string
		today       string
		wantStreak  int
		wantLast    string
		wantChanged bool
		wantReset   bool
	}{
		{"first activity", 0, "", "2025-03-10", 1, "2025-03-10", true, false},
		{"same day", 4, "2025-03-10", "2025-03-10", 4, "2025-03-10", false, false},
		{"next day continues", 4, "2025-03-10", "2025-03-11", 5, "2025-03-11", true, false},
		{"across month end", 2, "2025-02-28", "2025-03-01", 3, "2025-03-01", true, false},
		{"across year end", 9, "2024-12-31", "2025-01-01", 10, "2025-01-01", true, false},
		{"gap of two days resets", 7, "2025-03-10", "2025-03-12", 1, "2025-03-12", true, true},
		{"clock skew resets", 3, "2025-03-10", "2025-03-09", 1, "2025-03-09", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := progression.Profile{Streak: tt.streak}
			if tt.last != "" {
				p.LastActivity = d(tt.last)
			}
			got := progression.TouchStreak(p, d(tt.today))
			if got.NewStreak != tt.wantStreak {
				t.Errorf("NewStreak = %d, want %d", got.NewStreak, tt.wantStreak)
			}
			if got.LastActivity.String() != tt.wantLast {
				t.Errorf("LastActivity = %s, want %s", got.LastActivity, tt.wantLast)
			}
			if got.Changed != tt.wantChanged {
				t.Errorf("Changed = %v, want %v", got.Changed, tt.wantChanged)
			}
			if got.Reset != tt.wantReset {
				t.Errorf("Reset = %v, want %v", got.Reset, tt.wantReset)
			}
		})
	}
}

func TestTouchStreak_SameDayIsIdempotent(t *testing.T) {
	today := progression.MustParseDate("2025-06-01")
	p := progression.Profile{}
	for i := 0; i < 5; i++ {
		p = progression.TouchStreak(p, today).Apply(p)
	}
	if p.Streak != 1 {
		t.Fatalf("Streak = %d after repeated touches, want 1", p.Streak)
	}
}

func TestDateOf_UsesUTC(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*3600)
	// 2025-03-11 07:00 in UTC+8 is still 2025-03-10 in UTC.
	local := time.Date(2025, 3, 11, 7, 0, 0, 0, loc)
	if got := progression.DateOf(local).String(); got != "2025-03-10" {
		t.Fatalf("DateOf() = %s, want 2025-03-10", got)
	}
}

func TestDate_Text(t *testing.T) {
	var d progression.Date
	if err := d.UnmarshalText([]byte("2025-01-31")); err != nil {
		t.Fatalf("UnmarshalText() error = %v", err)
	}
	if d.AddDays(1).String() != "2025-02-01" {
		t.Errorf("AddDays(1) = %s", d.AddDays(1))
	}
	if err := d.UnmarshalText([]byte("31/01/2025")); err == nil {
		t.Error("expected error for malformed date")
	}
	var zero progression.Date
	if !zero.IsZero() || zero.String() != "" || !zero.Time().IsZero() {
		t.Errorf("zero date = %q", zero.String())
	}
}
