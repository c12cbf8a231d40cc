package economy

import "time"

// Interval is a half-open time window [Start, End). An unbounded interval has
// no end and stays open forever once started.
type Interval struct {
	Start   time.Time `json:"start"`
	End     time.Time `json:"end,omitempty"`
	Bounded bool      `json:"bounded"`
}

// Between returns the bounded interval [start, end).
func Between(start, end time.Time) Interval {
	return Interval{Start: start, End: end, Bounded: true}
}

// Since returns an interval that starts at start and never ends.
func Since(start time.Time) Interval {
	return Interval{Start: start}
}

// ActiveAt reports whether t falls inside the interval. Every subsystem that
// checks modifiers or events goes through here so boundaries stay consistent.
func (iv Interval) ActiveAt(t time.Time) bool {
	if t.Before(iv.Start) {
		return false
	}
	if iv.Bounded && !t.Before(iv.End) {
		return false
	}
	return true
}

// EndedBy reports whether a bounded interval has closed at or before t.
// Unbounded intervals never end.
func (iv Interval) EndedBy(t time.Time) bool {
	return iv.Bounded && !t.Before(iv.End)
}

// EndPtr returns the end as a pointer, nil when unbounded. Used by storage.
func (iv Interval) EndPtr() *time.Time {
	if !iv.Bounded {
		return nil
	}
	end := iv.End
	return &end
}

// IntervalFrom rebuilds an interval from a start and an optional end.
func IntervalFrom(start time.Time, end *time.Time) Interval {
	if end == nil {
		return Since(start)
	}
	return Between(start, *end)
}
