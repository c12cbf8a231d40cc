package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/talgya/mini-econ/internal/economy"
	"github.com/talgya/mini-econ/internal/engine"
)

func (a *app) reportCmd() *cobra.Command {
	var location uint64
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the economic report for one location, or a summary of all",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return a.report(ctx, economy.LocationID(location))
		},
	}
	cmd.Flags().Uint64VarP(&location, "location", "l", 0, "location id (0 summarizes every location)")
	return cmd
}

func (a *app) report(ctx context.Context, id economy.LocationID) error {
	db, w, err := a.openWorld(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	if id == 0 {
		return a.printSummary(w)
	}
	r, err := engine.BuildReport(a.cfg.Economy, w, id)
	if err != nil {
		return err
	}
	printLocationReport(w, r)
	return nil
}

func (a *app) printSummary(w *economy.World) error {
	color.New(color.FgCyan, color.Bold).Printf("\nTick %d, %s\n", w.Tick, w.Now.Format("2006-01-02 15:04"))
	table := tablewriter.NewTable(os.Stdout,
		tablewriter.WithHeader([]string{"ID", "Location", "Size", "Population", "Supply", "Stability", "Trade", "Health"}),
	)
	for _, id := range economy.SortedIDs(w.Locations) {
		r, err := engine.BuildReport(a.cfg.Economy, w, id)
		if err != nil {
			return err
		}
		table.Append([]string{
			fmt.Sprintf("%d", id),
			r.Location.Name,
			fmt.Sprintf("%d", r.Location.Size),
			fmt.Sprintf("%d", r.Location.Population),
			fmt.Sprintf("%.0f", r.Indicators.SupplySufficiency),
			fmt.Sprintf("%.0f", r.Indicators.PriceStability),
			fmt.Sprintf("%.0f", r.Indicators.TradeActivity),
			fmt.Sprintf("%.1f", r.Health),
		})
	}
	table.Render()
	return nil
}

func resourceName(w *economy.World, id economy.ResourceID) string {
	if r, ok := w.Resources[id]; ok {
		return r.Name
	}
	return fmt.Sprintf("#%d", id)
}

func printLocationReport(w *economy.World, r *engine.LocationReport) {
	title := color.New(color.FgCyan, color.Bold)
	title.Printf("\n%s (size %d, population %d) at tick %d\n", r.Location.Name, r.Location.Size, r.Location.Population, r.Tick)

	healthColor := color.New(color.FgGreen, color.Bold)
	if r.Health < 40 {
		healthColor = color.New(color.FgRed, color.Bold)
	}
	healthColor.Printf("Economic health %.1f", r.Health)
	fmt.Printf("  (supply %.0f, stability %.0f, trade %.0f)\n",
		r.Indicators.SupplySufficiency, r.Indicators.PriceStability, r.Indicators.TradeActivity)
	fmt.Printf("Shipments: %d outbound, %d inbound, %d recent deliveries\n", r.Outbound, r.Inbound, r.Recent)

	fmt.Println("\nMarket:")
	market := tablewriter.NewTable(os.Stdout,
		tablewriter.WithHeader([]string{"Resource", "Price", "Base", "Available", "Demand"}),
	)
	for _, l := range r.Listings {
		market.Append([]string{
			resourceName(w, l.ResourceID),
			fmt.Sprintf("%.2f", l.CurrentPrice),
			fmt.Sprintf("%.2f", l.BasePrice),
			fmt.Sprintf("%.1f", l.AvailableQuantity),
			fmt.Sprintf("%.0f", l.DemandLevel),
		})
	}
	market.Render()

	if len(r.Sites) > 0 {
		fmt.Println("\nProduction:")
		sites := tablewriter.NewTable(os.Stdout,
			tablewriter.WithHeader([]string{"Site", "Resource", "Rate/day", "Labor", "Active"}),
		)
		for _, s := range r.Sites {
			sites.Append([]string{
				s.Name,
				resourceName(w, s.ResourceID),
				fmt.Sprintf("%.1f", s.CurrentProductionRate),
				fmt.Sprintf("%d/%d", s.CurrentLabor, s.LaborCapacity),
				fmt.Sprintf("%t", s.Active),
			})
		}
		sites.Render()
	}

	for _, shop := range r.Shops {
		fmt.Printf("\n%s (wealth %s, reputation %d):\n", shop.Shop.Name, shop.Shop.Wealth.StringFixed(2), shop.Shop.Reputation)
		inv := tablewriter.NewTable(os.Stdout,
			tablewriter.WithHeader([]string{"Resource", "Quantity", "Quality", "Multiplier"}),
		)
		for _, e := range shop.Inventory {
			inv.Append([]string{
				resourceName(w, e.ResourceID),
				fmt.Sprintf("%.1f", e.Quantity),
				fmt.Sprintf("%d", e.Quality),
				fmt.Sprintf("%.2f", e.PriceMultiplier),
			})
		}
		inv.Render()
	}

	if len(r.Craftable) > 0 {
		fmt.Println("\nCraftable here:")
		for _, c := range r.Craftable {
			fmt.Printf("   %s: inputs %.2f, output %.2f\n", c.Name, c.InputValue, c.OutputPrice)
		}
	}
	if len(r.Events) > 0 {
		color.New(color.FgYellow).Println("\nActive events:")
		for _, ev := range r.Events {
			fmt.Printf("   %s: %s\n", ev.Name, ev.Description)
		}
	}
}
