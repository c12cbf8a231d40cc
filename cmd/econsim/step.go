package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/talgya/mini-econ/internal/engine"
)

func (a *app) stepCmd() *cobra.Command {
	var ticks int
	cmd := &cobra.Command{
		Use:   "step",
		Short: "Advance the committed world a fixed number of ticks",
		RunE: func(cmd *cobra.Command, args []string) error {
			if ticks < 1 {
				return fmt.Errorf("--ticks must be at least 1")
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return a.step(ctx, ticks)
		},
	}
	cmd.Flags().IntVarP(&ticks, "ticks", "n", 1, "ticks to run")
	return cmd
}

func (a *app) step(ctx context.Context, ticks int) error {
	db, w, err := a.openWorld(ctx)
	if err != nil {
		return err
	}
	defer db.Close()
	sim, _ := a.newSimulation(db, w)

	reports := make([]*engine.TickReport, 0, ticks)
	for i := 0; i < ticks; i++ {
		r, err := sim.Step(ctx)
		if err != nil {
			return err
		}
		reports = append(reports, r)
	}

	color.New(color.FgCyan, color.Bold).Printf("\nRan %d ticks\n", ticks)
	printTickReports(reports)
	return nil
}

func printTickReports(reports []*engine.TickReport) {
	table := tablewriter.NewTable(os.Stdout,
		tablewriter.WithHeader([]string{"Tick", "Time", "Produced", "Decayed", "Lost", "Consumed", "Clamped", "Shipped", "Delivered", "Residual"}),
	)
	unbalanced := 0
	for _, r := range reports {
		if !r.Ledger.Balanced() {
			unbalanced++
		}
		table.Append([]string{
			fmt.Sprintf("%d", r.Tick),
			r.Time.Format("2006-01-02 15:04"),
			fmt.Sprintf("%.1f", r.Ledger.Produced),
			fmt.Sprintf("%.1f", r.Ledger.Decayed),
			fmt.Sprintf("%.1f", r.Ledger.Lost),
			fmt.Sprintf("%.1f", r.Ledger.Consumed),
			fmt.Sprintf("%.1f", r.Ledger.Clamped),
			fmt.Sprintf("%d", r.ShipmentsOriginated),
			fmt.Sprintf("%d", r.ShipmentsDelivered),
			fmt.Sprintf("%.2g", r.Ledger.Residual()),
		})
	}
	table.Render()

	if unbalanced > 0 {
		color.New(color.FgRed, color.Bold).Printf("%d ticks did not balance\n", unbalanced)
		return
	}
	color.New(color.FgGreen).Println("Quantity ledger balanced on every tick")
}
