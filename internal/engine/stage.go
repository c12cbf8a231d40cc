package engine

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/talgya/mini-econ/internal/config"
	"github.com/talgya/mini-econ/internal/economy"
	"github.com/talgya/mini-econ/internal/entropy"
)

// Ledger accounts for every change in total resource quantity over a tick.
type Ledger struct {
	Before   float64 `json:"before"`
	Produced float64 `json:"produced"`
	Decayed  float64 `json:"decayed"`
	Lost     float64 `json:"lost"`
	Consumed float64 `json:"consumed"` // faction consumption
	Clamped  float64 `json:"clamped"`  // negative stored stock raised to zero
	After    float64 `json:"after"`
}

// Residual is the quantity the ledger cannot explain. Zero up to rounding.
func (l Ledger) Residual() float64 {
	return l.Before + l.Produced + l.Clamped - l.Decayed - l.Lost - l.Consumed - l.After
}

// Balanced reports whether the residual is within rounding of zero.
func (l Ledger) Balanced() bool {
	scale := math.Max(1, math.Max(l.Before, l.After))
	return math.Abs(l.Residual()) <= 1e-9*scale
}

// TickReport summarizes one committed tick.
type TickReport struct {
	RunID    uuid.UUID     `json:"run_id"`
	Tick     uint64        `json:"tick"`
	Time     time.Time     `json:"time"`
	Duration time.Duration `json:"duration_ns"`
	Ledger   Ledger        `json:"ledger"`

	EventsActivated     int `json:"events_activated"`
	EventsExpired       int `json:"events_expired"`
	SitesProduced       int `json:"sites_produced"`
	ListingsCreated     int `json:"listings_created"`
	PriceChanges        int `json:"price_changes"`
	HistoryRows         int `json:"history_rows"`
	FactionsProcured    int `json:"factions_procured"`
	ShopsRestocked      int `json:"shops_restocked"`
	ShipmentsOriginated int `json:"shipments_originated"`
	ShipmentsDelivered  int `json:"shipments_delivered"`
	ShipmentsLost       int `json:"shipments_lost"`
	Skipped             int `json:"skipped"`
}

// tickContext carries per-tick parameters and accumulators through the stages.
// Accumulators are only written from the serial merge phase of a stage,
// except skip, which is safe from workers.
type tickContext struct {
	cfg     config.EconomyConfig
	tick    uint64
	now     time.Time
	days    float64
	workers int
	rng     entropy.Source
	report  *TickReport
	history []economy.PriceHistory

	skipMu sync.Mutex
}

// skip records a referential gap. The entity is left untouched this tick.
func (tc *tickContext) skip(msg string, args ...any) {
	tc.skipMu.Lock()
	tc.report.Skipped++
	tc.skipMu.Unlock()
	slog.Warn(msg, append(args, "tick", tc.tick)...)
}

// compute runs fn over items on a bounded worker pool and returns results in
// item order, so merges stay deterministic.
func compute[T, R any](ctx context.Context, workers int, items []T, fn func(T) (R, error)) ([]R, error) {
	out := make([]R, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, item := range items {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := fn(item)
			if err != nil {
				return err
			}
			out[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// nonNegative clamps computed quantities; negative stock is never stored.
func nonNegative(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	return v
}

// repairQuantities raises negative stored quantities in w to zero before any
// stage runs and returns the total added. NaN entries are zeroed too; they
// already poison Ledger.Before, so they add nothing here.
func repairQuantities(tc *tickContext, w *economy.World) float64 {
	var added float64
	fix := func(v *float64, kind string, id any) {
		if *v >= 0 {
			return
		}
		if !math.IsNaN(*v) {
			added -= *v
		}
		slog.Warn("negative stock repaired", "kind", kind, "id", id, "quantity", *v, "tick", tc.tick)
		*v = 0
	}
	for _, id := range economy.SortedIDs(w.Listings) {
		fix(&w.Listings[id].AvailableQuantity, "listing", id)
	}
	for _, id := range economy.SortedIDs(w.Shipments) {
		if sh := w.Shipments[id]; sh.Status == economy.ShipmentInTransit {
			fix(&sh.Quantity, "shipment", id)
		}
	}
	for key, fe := range w.FactionEconomics {
		fix(&fe.StockpileQuantity, "faction_stockpile", key)
	}
	for key, e := range w.Inventory {
		fix(&e.Quantity, "inventory", key)
	}
	return added
}
