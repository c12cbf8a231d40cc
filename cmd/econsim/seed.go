package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/talgya/mini-econ/internal/persistence"
	"github.com/talgya/mini-econ/internal/worldgen"
)

func (a *app) seedCmd() *cobra.Command {
	var towns int
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Generate a fresh region into an empty store",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return a.seed(ctx, towns)
		},
	}
	cmd.Flags().IntVar(&towns, "towns", 6, "number of towns to place")
	return cmd
}

func (a *app) seed(ctx context.Context, towns int) error {
	db, err := persistence.Open(ctx, a.cfg.Store.DSN)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	if _, err := db.LoadWorld(ctx); err == nil {
		return errors.New("store already holds a world; point --dsn at an empty store")
	} else if !errors.Is(err, persistence.ErrNoWorld) {
		return err
	}

	opts := worldgen.DefaultOptions(a.cfg.Engine.Seed, a.cfg.Engine.Epoch)
	opts.Towns = towns
	w, err := worldgen.Generate(opts)
	if err != nil {
		return err
	}
	if err := db.CommitTick(ctx, w, nil); err != nil {
		return fmt.Errorf("save world: %w", err)
	}

	color.New(color.FgGreen, color.Bold).Println("\n✓ World seeded")
	fmt.Printf("   Seed: %d\n", a.cfg.Engine.Seed)
	fmt.Printf("   Locations: %d, sites: %d, listings: %d\n", len(w.Locations), len(w.Sites), len(w.Listings))
	fmt.Printf("   Routes: %d, shops: %d, factions: %d, events: %d\n", len(w.Routes), len(w.Shops), len(w.Factions), len(w.Events))
	return nil
}
