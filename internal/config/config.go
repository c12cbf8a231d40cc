// Package config loads engine configuration and economic tunables.
// YAML is the primary format; files ending in .toml are decoded as TOML.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config is the complete runtime configuration.
type Config struct {
	Log     LogConfig     `yaml:"log" toml:"log"`
	Store   StoreConfig   `yaml:"store" toml:"store"`
	API     APIConfig     `yaml:"api" toml:"api"`
	Engine  EngineConfig  `yaml:"engine" toml:"engine"`
	Economy EconomyConfig `yaml:"economy" toml:"economy"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level     string `yaml:"level" toml:"level"`   // debug, info, warn, error
	Format    string `yaml:"format" toml:"format"` // text or json
	AddSource bool   `yaml:"add_source" toml:"add_source"`
}

// StoreConfig locates the database and the snapshot directory.
type StoreConfig struct {
	// DSN is a sqlite file path or a postgres:// URL.
	DSN          string `yaml:"dsn" toml:"dsn"`
	SnapshotDir  string `yaml:"snapshot_dir" toml:"snapshot_dir"`
	SnapshotKeep int    `yaml:"snapshot_keep" toml:"snapshot_keep"` // 0 keeps every snapshot
}

// APIConfig configures the HTTP API.
type APIConfig struct {
	Port          int     `yaml:"port" toml:"port"`
	AdminKey      string  `yaml:"-" toml:"-"`
	RatePerMinute float64 `yaml:"rate_per_minute" toml:"rate_per_minute"`
	RateBurst     int     `yaml:"rate_burst" toml:"rate_burst"`
	ReportCache   int     `yaml:"report_cache" toml:"report_cache"`
}

// EngineConfig drives the tick clock and world seeding.
type EngineConfig struct {
	Seed               int64     `yaml:"seed" toml:"seed"`
	Epoch              time.Time `yaml:"epoch" toml:"epoch"`
	Interval           Duration  `yaml:"interval" toml:"interval"` // wall time between ticks at speed 1
	Speed              float64   `yaml:"speed" toml:"speed"`
	Workers            int       `yaml:"workers" toml:"workers"`
	SnapshotEveryTicks uint64    `yaml:"snapshot_every_ticks" toml:"snapshot_every_ticks"`
}

// Bounds is a closed numeric range.
type Bounds struct {
	Min float64 `yaml:"min" toml:"min"`
	Max float64 `yaml:"max" toml:"max"`
}

// Clamp limits v to the range.
func (b Bounds) Clamp(v float64) float64 {
	if v < b.Min {
		return b.Min
	}
	if v > b.Max {
		return b.Max
	}
	return v
}

// EconomyConfig holds every economic constant the subsystems use.
type EconomyConfig struct {
	TickDuration Duration `yaml:"tick_duration" toml:"tick_duration"`

	// Production
	TechnologyBonusPerLevel float64 `yaml:"technology_bonus_per_level" toml:"technology_bonus_per_level"`
	TechnologyFloor         float64 `yaml:"technology_floor" toml:"technology_floor"`

	// Pricing
	PriceAdjustmentRateCap float64 `yaml:"price_adjustment_rate_cap" toml:"price_adjustment_rate_cap"`
	PriceConvergence       float64 `yaml:"price_convergence" toml:"price_convergence"`
	PriceElasticity        float64 `yaml:"price_elasticity" toml:"price_elasticity"`
	PriceFloorFraction     float64 `yaml:"price_floor_fraction" toml:"price_floor_fraction"`
	MinPrice               float64 `yaml:"min_price" toml:"min_price"`
	ProsperityPriceWeight  float64 `yaml:"prosperity_price_weight" toml:"prosperity_price_weight"`
	SupplyReferencePerSize float64 `yaml:"supply_reference_per_size" toml:"supply_reference_per_size"`
	SpoilageRatePerDay     float64 `yaml:"spoilage_rate_per_day" toml:"spoilage_rate_per_day"`
	HistoryEpsilon         float64 `yaml:"history_epsilon" toml:"history_epsilon"`

	// Demand feedback
	DemandFeedbackBounds Bounds   `yaml:"demand_feedback_bounds" toml:"demand_feedback_bounds"`
	DemandBaseline       float64  `yaml:"demand_baseline" toml:"demand_baseline"`
	DemandRelaxRate      float64  `yaml:"demand_relax_rate" toml:"demand_relax_rate"`
	DemandRiseRate       float64  `yaml:"demand_rise_rate" toml:"demand_rise_rate"`
	FactionDemandWeight  float64  `yaml:"faction_demand_weight" toml:"faction_demand_weight"`
	PlayerSignalWindow   Duration `yaml:"player_signal_window" toml:"player_signal_window"`
	PlayerSignalWeight   float64  `yaml:"player_signal_weight" toml:"player_signal_weight"`
	PlayerSignalMax      float64  `yaml:"player_signal_max" toml:"player_signal_max"`

	// Trade
	ShipmentLossBaseRate float64 `yaml:"shipment_loss_base_rate" toml:"shipment_loss_base_rate"`
	MinTradeMargin       float64 `yaml:"min_trade_margin" toml:"min_trade_margin"`
	TransitCostPerDay    float64 `yaml:"transit_cost_per_day" toml:"transit_cost_per_day"`
	MaxExportFraction    float64 `yaml:"max_export_fraction" toml:"max_export_fraction"`
	MinShipmentQuantity  float64 `yaml:"min_shipment_quantity" toml:"min_shipment_quantity"`

	// Shops
	RestockTargetFraction  float64 `yaml:"restock_target_fraction" toml:"restock_target_fraction"`
	RestockWealthReference float64 `yaml:"restock_wealth_reference" toml:"restock_wealth_reference"`
	MultiplierBand         Bounds  `yaml:"multiplier_band" toml:"multiplier_band"`
	MultiplierDriftRate    float64 `yaml:"multiplier_drift_rate" toml:"multiplier_drift_rate"`
	ScarcityMarkup         float64 `yaml:"scarcity_markup" toml:"scarcity_markup"`
	SaleSpread             float64 `yaml:"sale_spread" toml:"sale_spread"` // fraction of listing price a shop pays a seller

	// Factions
	SafetyThresholdDays float64 `yaml:"safety_threshold_days" toml:"safety_threshold_days"`
	ProcurementFraction float64 `yaml:"procurement_fraction" toml:"procurement_fraction"`

	// Reports
	ReportActivityWindow Duration `yaml:"report_activity_window" toml:"report_activity_window"`
	ReportActivityScale  float64  `yaml:"report_activity_scale" toml:"report_activity_scale"` // shipments per window scoring 100
}

// TickDays is the tick duration expressed in simulated days.
func (e EconomyConfig) TickDays() float64 {
	return e.TickDuration.Hours() / 24
}

// Default returns a configuration that runs out of the box.
func Default() Config {
	return Config{
		Log: LogConfig{Level: "info", Format: "text"},
		Store: StoreConfig{
			DSN:          "data/econ.db",
			SnapshotDir:  "data/snapshots",
			SnapshotKeep: 30,
		},
		API: APIConfig{
			Port:          8080,
			RatePerMinute: 120,
			RateBurst:     20,
			ReportCache:   256,
		},
		Engine: EngineConfig{
			Seed:               42,
			Epoch:              time.Date(1000, 1, 1, 0, 0, 0, 0, time.UTC),
			Interval:           Duration{time.Second},
			Speed:              1,
			Workers:            4,
			SnapshotEveryTicks: 24,
		},
		Economy: EconomyConfig{
			TickDuration: Duration{time.Hour},

			TechnologyBonusPerLevel: 0.1,
			TechnologyFloor:         0.5,

			PriceAdjustmentRateCap: 0.10,
			PriceConvergence:       0.5,
			PriceElasticity:        1.0986, // ln 3: full imbalance moves the target 3x
			PriceFloorFraction:     0.01,
			MinPrice:               0.01,
			ProsperityPriceWeight:  0.2,
			SupplyReferencePerSize: 10,
			SpoilageRatePerDay:     0.05,
			HistoryEpsilon:         1e-6,

			DemandFeedbackBounds: Bounds{Min: 0, Max: 100},
			DemandBaseline:       50,
			DemandRelaxRate:      0.1,
			DemandRiseRate:       5,
			FactionDemandWeight:  0.7,
			PlayerSignalWindow:   Duration{24 * time.Hour},
			PlayerSignalWeight:   5,
			PlayerSignalMax:      20,

			ShipmentLossBaseRate: 0.001,
			MinTradeMargin:       0.05,
			TransitCostPerDay:    0.02,
			MaxExportFraction:    0.25,
			MinShipmentQuantity:  1,

			RestockTargetFraction:  1.0,
			RestockWealthReference: 1000,
			MultiplierBand:         Bounds{Min: 0.8, Max: 1.5},
			MultiplierDriftRate:    0.05,
			ScarcityMarkup:         0.1,
			SaleSpread:             0.8,

			SafetyThresholdDays: 3,
			ProcurementFraction: 0.5,

			ReportActivityWindow: Duration{7 * 24 * time.Hour},
			ReportActivityScale:  10,
		},
	}
}

// Load reads a config file on top of the defaults, then applies environment
// overrides. An empty path returns the defaults plus overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".toml":
			if err := toml.Unmarshal(raw, &cfg); err != nil {
				return cfg, fmt.Errorf("%s: %w", filepath.Base(path), err)
			}
		default:
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return cfg, fmt.Errorf("%s: %w", filepath.Base(path), err)
			}
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("ECONSIM_ADMIN_KEY"); v != "" {
		c.API.AdminKey = v
	}
	if v := os.Getenv("ECONSIM_DSN"); v != "" {
		c.Store.DSN = v
	}
}

// Validate rejects tunables that would break simulation invariants.
func (c Config) Validate() error {
	e := c.Economy
	var errs []error
	if e.TickDuration.Duration <= 0 {
		errs = append(errs, errors.New("economy.tick_duration must be positive"))
	}
	if e.PriceAdjustmentRateCap <= 0 || e.PriceAdjustmentRateCap >= 1 {
		errs = append(errs, errors.New("economy.price_adjustment_rate_cap must be in (0, 1)"))
	}
	if e.PriceConvergence <= 0 || e.PriceConvergence > 1 {
		errs = append(errs, errors.New("economy.price_convergence must be in (0, 1]"))
	}
	if e.PriceFloorFraction <= 0 || e.MinPrice <= 0 {
		errs = append(errs, errors.New("economy price floor must be strictly positive"))
	}
	if e.SupplyReferencePerSize <= 0 {
		errs = append(errs, errors.New("economy.supply_reference_per_size must be positive"))
	}
	if e.DemandFeedbackBounds.Min > e.DemandFeedbackBounds.Max {
		errs = append(errs, errors.New("economy.demand_feedback_bounds min exceeds max"))
	}
	if e.ShipmentLossBaseRate < 0 || e.ShipmentLossBaseRate*100 > 1 {
		errs = append(errs, errors.New("economy.shipment_loss_base_rate must keep loss probability within [0, 1]"))
	}
	if e.MaxExportFraction <= 0 || e.MaxExportFraction > 1 {
		errs = append(errs, errors.New("economy.max_export_fraction must be in (0, 1]"))
	}
	if e.SaleSpread <= 0 || e.SaleSpread > 1 {
		errs = append(errs, errors.New("economy.sale_spread must be in (0, 1]"))
	}
	if e.MultiplierBand.Min <= 0 || e.MultiplierBand.Min > 1 || e.MultiplierBand.Max < 1 {
		errs = append(errs, errors.New("economy.multiplier_band must contain 1.0 and stay positive"))
	}
	for name, rate := range map[string]float64{
		"demand_relax_rate":     e.DemandRelaxRate,
		"multiplier_drift_rate": e.MultiplierDriftRate,
		"procurement_fraction":  e.ProcurementFraction,
		"faction_demand_weight": e.FactionDemandWeight,
	} {
		if rate < 0 || rate > 1 {
			errs = append(errs, fmt.Errorf("economy.%s must be in [0, 1]", name))
		}
	}
	if c.Engine.Interval.Duration <= 0 {
		errs = append(errs, errors.New("engine.interval must be positive"))
	}
	if c.Engine.Workers < 1 {
		errs = append(errs, errors.New("engine.workers must be at least 1"))
	}
	return errors.Join(errs...)
}

// NewLogger builds the slog logger described by the log section.
func (l LogConfig) NewLogger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level, AddSource: l.AddSource}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
