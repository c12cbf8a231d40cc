package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/talgya/mini-econ/internal/economy"
)

// runEvents advances event state only. Effects are applied at read time by
// the stages that consume them.
func runEvents(_ context.Context, tc *tickContext, prev, next *economy.World) error {
	for _, id := range economy.SortedIDs(prev.Events) {
		ev := prev.Events[id]
		state := nextEventState(ev, tc.now)
		if state == ev.State {
			continue
		}
		next.Events[id].State = state
		switch state {
		case economy.EventActive:
			tc.report.EventsActivated++
			slog.Info("event activated", "event", id, "name", ev.Name, "tick", tc.tick)
		case economy.EventExpired:
			tc.report.EventsExpired++
			slog.Info("event expired", "event", id, "name", ev.Name, "tick", tc.tick)
		}
	}
	return nil
}

// nextEventState is a pure transition: scheduled → active → expired. Expired
// is terminal and an unbounded window never expires on its own.
func nextEventState(ev *economy.EconomicEvent, now time.Time) economy.EventState {
	switch ev.State {
	case economy.EventScheduled:
		if now.Before(ev.Window.Start) {
			return economy.EventScheduled
		}
		if ev.Window.EndedBy(now) {
			return economy.EventExpired
		}
		return economy.EventActive
	case economy.EventActive:
		if ev.Window.EndedBy(now) {
			return economy.EventExpired
		}
		return economy.EventActive
	default:
		return ev.State
	}
}
