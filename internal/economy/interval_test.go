package economy

import (
	"testing"
	"time"
)

func TestIntervalActiveAt(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(48 * time.Hour)

	tests := []struct {
		name string
		iv   Interval
		at   time.Time
		want bool
	}{
		{"before start", Between(start, end), start.Add(-time.Second), false},
		{"at start", Between(start, end), start, true},
		{"inside", Between(start, end), start.Add(24 * time.Hour), true},
		{"at end is excluded", Between(start, end), end, false},
		{"after end", Between(start, end), end.Add(time.Hour), false},
		{"unbounded before start", Since(start), start.Add(-time.Hour), false},
		{"unbounded far future", Since(start), start.AddDate(100, 0, 0), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.iv.ActiveAt(tt.at); got != tt.want {
				t.Fatalf("ActiveAt(%v) = %v, want %v", tt.at, got, tt.want)
			}
		})
	}
}

func TestIntervalEndedBy(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if Since(start).EndedBy(start.AddDate(50, 0, 0)) {
		t.Fatalf("unbounded interval must never end")
	}
	iv := Between(start, start.Add(time.Hour))
	if iv.EndedBy(start.Add(59 * time.Minute)) {
		t.Fatalf("interval ended early")
	}
	if !iv.EndedBy(start.Add(time.Hour)) {
		t.Fatalf("interval should end at its end time")
	}
}

func TestIntervalFromRoundTrip(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	open := IntervalFrom(start, nil)
	if open.Bounded || open.EndPtr() != nil {
		t.Fatalf("expected unbounded interval, got %+v", open)
	}
	end := start.Add(time.Hour)
	closed := IntervalFrom(start, &end)
	if !closed.Bounded || !closed.EndPtr().Equal(end) {
		t.Fatalf("expected bounded interval ending %v, got %+v", end, closed)
	}
}
