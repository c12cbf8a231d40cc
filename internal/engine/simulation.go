package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/talgya/mini-econ/internal/config"
	"github.com/talgya/mini-econ/internal/economy"
	"github.com/talgya/mini-econ/internal/entropy"
)

// ErrTickAborted wraps any failure that stopped a tick before commit.
var ErrTickAborted = errors.New("tick aborted")

// Store persists committed world state. CommitTick must write everything in
// one transaction: either the whole tick is durable or none of it is.
type Store interface {
	CommitTick(ctx context.Context, w *economy.World, history []economy.PriceHistory) error
}

// SnapshotWriter saves a full copy of the world for recovery.
type SnapshotWriter interface {
	WriteSnapshot(w *economy.World) error
}

// Options configure a Simulation.
type Options struct {
	Economy       config.EconomyConfig
	Workers       int
	SnapshotEvery uint64
	Rand          entropy.Source
	Store         Store
	Snapshots     SnapshotWriter
}

// Simulation owns the committed world and serializes ticks, player actions
// and admin commands against it.
type Simulation struct {
	mu    sync.Mutex
	world *economy.World
	last  *TickReport

	cfg           config.EconomyConfig
	workers       int
	snapshotEvery uint64
	rng           entropy.Source
	store         Store
	snapshots     SnapshotWriter
	runID         uuid.UUID

	subMu   sync.Mutex
	nextSub int
	subs    map[int]chan *TickReport
}

// New wraps w. The simulation takes ownership of w.
func New(w *economy.World, opts Options) *Simulation {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Rand == nil {
		opts.Rand = entropy.Crypto{}
	}
	return &Simulation{
		world:         w,
		cfg:           opts.Economy,
		workers:       opts.Workers,
		snapshotEvery: opts.SnapshotEvery,
		rng:           opts.Rand,
		store:         opts.Store,
		snapshots:     opts.Snapshots,
		runID:         uuid.New(),
		subs:          make(map[int]chan *TickReport),
	}
}

// RunID identifies this process's run in tick reports.
func (s *Simulation) RunID() uuid.UUID { return s.runID }

// View calls fn with the committed world. fn must not retain or mutate it.
func (s *Simulation) View(fn func(w *economy.World)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.world)
}

// LastReport returns the report of the most recent committed tick, or nil.
func (s *Simulation) LastReport() *TickReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Step runs one tick. On error the committed world is unchanged and a seeded
// source is rewound, so a retry draws the same numbers the failed tick did.
func (s *Simulation) Step(ctx context.Context) (*TickReport, error) {
	s.mu.Lock()
	report, err := s.step(ctx)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	s.publish(report)
	return report, nil
}

// Advance runs one tick, discarding the report. It matches Clock.OnTick.
func (s *Simulation) Advance(ctx context.Context) error {
	_, err := s.Step(ctx)
	return err
}

// stage reads prev, the world committed by the stage before it, and writes
// its own attribute set into next.
type stage struct {
	name string
	run  func(ctx context.Context, tc *tickContext, prev, next *economy.World) error
}

var stages = []stage{
	{"events", runEvents},
	{"production", runProduction},
	{"factions", runFactions},
	{"pricing", runPricing},
	{"shops", runShops},
	{"trade", runTrade},
}

// checkpointer is a Source whose position can be saved and restored.
type checkpointer interface {
	State() ([]byte, error)
	Restore(state []byte) error
}

func (s *Simulation) step(ctx context.Context) (_ *TickReport, err error) {
	started := time.Now()
	prev := s.world
	tick := prev.Tick + 1
	now := prev.Now.Add(s.cfg.TickDuration.Duration)

	if cp, ok := s.rng.(checkpointer); ok {
		state, serr := cp.State()
		if serr != nil {
			return nil, fmt.Errorf("%w: tick %d: save rng: %w", ErrTickAborted, tick, serr)
		}
		defer func() {
			if err == nil {
				return
			}
			if rerr := cp.Restore(state); rerr != nil {
				slog.Error("rng restore failed", "tick", tick, "error", rerr)
			}
		}()
	}

	report := &TickReport{RunID: s.runID, Tick: tick, Time: now}
	report.Ledger.Before = prev.Quantities().Total()
	tc := &tickContext{
		cfg:     s.cfg,
		tick:    tick,
		now:     now,
		days:    s.cfg.TickDays(),
		workers: s.workers,
		rng:     s.rng,
		report:  report,
	}

	cur := prev.Clone()
	cur.Tick = tick
	cur.Now = now
	report.Ledger.Clamped = repairQuantities(tc, cur)
	for _, st := range stages {
		next := cur.Clone()
		if err := st.run(ctx, tc, cur, next); err != nil {
			slog.Error("stage failed, tick aborted", "tick", tick, "stage", st.name, "error", err)
			return nil, fmt.Errorf("%w: tick %d stage %s: %w", ErrTickAborted, tick, st.name, err)
		}
		cur = next
	}
	report.Ledger.After = cur.Quantities().Total()
	report.HistoryRows = len(tc.history)

	if s.store != nil {
		if err := s.store.CommitTick(ctx, cur, tc.history); err != nil {
			return nil, fmt.Errorf("%w: tick %d commit: %w", ErrTickAborted, tick, err)
		}
	}
	s.world = cur
	report.Duration = time.Since(started)
	s.last = report

	if s.snapshots != nil && s.snapshotEvery > 0 && tick%s.snapshotEvery == 0 {
		if err := s.snapshots.WriteSnapshot(cur); err != nil {
			slog.Warn("snapshot failed", "tick", tick, "error", err)
		}
	}

	slog.Debug("tick committed", "tick", tick,
		"produced", report.Ledger.Produced,
		"shipments_originated", report.ShipmentsOriginated,
		"shipments_lost", report.ShipmentsLost,
		"skipped", report.Skipped,
		"duration", report.Duration)
	return report, nil
}

// commit persists and installs a world changed outside the tick loop.
// Caller holds s.mu.
func (s *Simulation) commit(ctx context.Context, w *economy.World) error {
	if s.store != nil {
		if err := s.store.CommitTick(ctx, w, nil); err != nil {
			return err
		}
	}
	s.world = w
	return nil
}

// DeactivateEvent expires an event now. Unbounded events only end this way.
func (s *Simulation) DeactivateEvent(ctx context.Context, id economy.EventID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.world.Events[id]
	if !ok {
		return fmt.Errorf("event %d: %w", id, economy.ErrNotFound)
	}
	if ev.State == economy.EventExpired {
		return nil
	}
	next := s.world.Clone()
	next.Events[id].State = economy.EventExpired
	if err := s.commit(ctx, next); err != nil {
		return fmt.Errorf("deactivate event %d: %w", id, err)
	}
	slog.Info("event deactivated", "event", id, "name", ev.Name)
	return nil
}

// Subscribe returns a channel receiving every committed tick report. Slow
// subscribers miss reports rather than stall the simulation.
func (s *Simulation) Subscribe() (<-chan *TickReport, func()) {
	ch := make(chan *TickReport, 16)
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subMu.Unlock()

	return ch, func() {
		s.subMu.Lock()
		if _, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(ch)
		}
		s.subMu.Unlock()
	}
}

func (s *Simulation) publish(r *TickReport) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- r:
		default:
		}
	}
}
