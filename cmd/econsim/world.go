package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/talgya/mini-econ/internal/economy"
	"github.com/talgya/mini-econ/internal/engine"
	"github.com/talgya/mini-econ/internal/entropy"
	"github.com/talgya/mini-econ/internal/persistence"
	"github.com/talgya/mini-econ/internal/persistence/snapshot"
	"github.com/talgya/mini-econ/internal/worldgen"
)

// openWorld opens the store and loads the committed world. An empty store is
// restored from the newest snapshot, or else seeded with a generated region,
// and the result is committed before returning.
func (a *app) openWorld(ctx context.Context) (*persistence.DB, *economy.World, error) {
	db, err := persistence.Open(ctx, a.cfg.Store.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	slog.Info("store opened", "dialect", db.Dialect())

	w, err := db.LoadWorld(ctx)
	if err == nil {
		slog.Info("world state restored", "tick", w.Tick, "sim_time", w.Now, "locations", len(w.Locations))
		return db, w, nil
	}
	if !errors.Is(err, persistence.ErrNoWorld) {
		db.Close()
		return nil, nil, fmt.Errorf("load world: %w", err)
	}

	w, err = a.recoverOrGenerate()
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	if err := db.CommitTick(ctx, w, nil); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("initial save: %w", err)
	}
	return db, w, nil
}

func (a *app) recoverOrGenerate() (*economy.World, error) {
	if a.cfg.Store.SnapshotDir != "" {
		path, err := snapshot.Latest(a.cfg.Store.SnapshotDir)
		switch {
		case err == nil:
			doc, err := snapshot.Read(path)
			if err != nil {
				return nil, fmt.Errorf("recover from %s: %w", path, err)
			}
			slog.Info("world recovered from snapshot", "path", path, "tick", doc.Header.Tick, "run_id", doc.Header.RunID)
			return doc.World(), nil
		case !errors.Is(err, snapshot.ErrNoSnapshot):
			return nil, err
		}
	}

	slog.Info("no saved state found, generating new world...", "seed", a.cfg.Engine.Seed)
	w, err := worldgen.Generate(worldgen.DefaultOptions(a.cfg.Engine.Seed, a.cfg.Engine.Epoch))
	if err != nil {
		return nil, fmt.Errorf("generate world: %w", err)
	}
	slog.Info("world generated",
		"locations", len(w.Locations),
		"sites", len(w.Sites),
		"routes", len(w.Routes),
		"factions", len(w.Factions),
	)
	return w, nil
}

// newSimulation wires the engine to the store and the snapshot directory.
func (a *app) newSimulation(db *persistence.DB, w *economy.World) (*engine.Simulation, *snapshot.Dir) {
	var rng entropy.Source = entropy.Crypto{}
	if a.cfg.Engine.Seed != 0 {
		// Offset by tick so a resumed run does not replay earlier loss rolls.
		rng = entropy.NewSeeded(a.cfg.Engine.Seed + int64(w.Tick))
	}
	opts := engine.Options{
		Economy:       a.cfg.Economy,
		Workers:       a.cfg.Engine.Workers,
		SnapshotEvery: a.cfg.Engine.SnapshotEveryTicks,
		Rand:          rng,
		Store:         db,
	}
	var dir *snapshot.Dir
	if a.cfg.Store.SnapshotDir != "" {
		dir = &snapshot.Dir{Path: a.cfg.Store.SnapshotDir, Keep: a.cfg.Store.SnapshotKeep}
		opts.Snapshots = dir
	}
	sim := engine.New(w, opts)
	if dir != nil {
		dir.RunID = sim.RunID().String()
	}
	return sim, dir
}
