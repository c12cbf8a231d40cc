// Command econsim runs the economic simulation engine.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/talgya/mini-econ/internal/config"
)

// app carries state shared by every subcommand.
type app struct {
	configPath string
	dsn        string
	cfg        config.Config
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "econsim",
		Short: "Economic simulation engine",
		Long: `Simulates production, markets, trade, shops, factions and economic
events across a generated region, persisting every tick.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			if a.dsn != "" {
				cfg.Store.DSN = a.dsn
			}
			a.cfg = cfg
			slog.SetDefault(cfg.Log.NewLogger())
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "config file (.yaml or .toml)")
	root.PersistentFlags().StringVar(&a.dsn, "dsn", "", "override store.dsn")

	root.AddCommand(a.serveCmd(), a.stepCmd(), a.reportCmd(), a.seedCmd())
	return root
}
