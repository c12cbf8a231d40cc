package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/talgya/mini-econ/internal/api"
	"github.com/talgya/mini-econ/internal/economy"
	"github.com/talgya/mini-econ/internal/engine"
)

func (a *app) serveCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the simulation clock and the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if port != 0 {
				a.cfg.API.Port = port
			}
			return a.serve(cmd.Context())
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "override api.port")
	return cmd
}

func (a *app) serve(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, w, err := a.openWorld(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	sim, snaps := a.newSimulation(db, w)
	clock := engine.NewClock(a.cfg.Engine.Interval.Duration, sim.Advance)
	clock.SetSpeed(a.cfg.Engine.Speed)

	if a.cfg.API.AdminKey == "" {
		slog.Warn("ECONSIM_ADMIN_KEY not set, admin POST endpoints will be disabled")
	}
	srv, err := api.New(a.cfg.API, sim, clock)
	if err != nil {
		return err
	}
	srv.History = db
	if snaps != nil {
		srv.Snapshots = snaps
	}

	var tick uint64
	sim.View(func(w *economy.World) { tick = w.Tick })
	fmt.Printf("\nEconomy is running: %d locations, %d listings, %d routes.\n", len(w.Locations), len(w.Listings), len(w.Routes))
	fmt.Printf("API: http://localhost:%d/api/v1/status\n", srv.Port)
	if tick > 0 {
		fmt.Printf("Resuming from tick %d\n", tick)
	}
	fmt.Println("Starting simulation... (Ctrl+C to stop)")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		clock.Run(gctx)
		return nil
	})
	g.Go(func() error { return srv.Run(gctx) })
	err = g.Wait()

	if snaps != nil {
		slog.Info("final snapshot...")
		sim.View(func(w *economy.World) {
			if serr := snaps.WriteSnapshot(w); serr != nil {
				slog.Error("final snapshot failed", "error", serr)
			}
		})
	}
	fmt.Println("Simulation stopped. World state saved.")
	return err
}
