package engine

import (
	"testing"
	"time"

	"github.com/talgya/mini-econ/internal/economy"
)

func productionWorld() *economy.World {
	w := economy.NewWorld()
	w.Now = epoch
	w.Resources[1] = &economy.Resource{ID: 1, Name: "Timber", BaseValue: 4}
	w.Locations[1] = &economy.Location{ID: 1, Name: "Pinecrest", Size: 3, Prosperity: 50}
	w.Sites[1] = &economy.ProductionSite{
		ID: 1, LocationID: 1, ResourceID: 1,
		BaseProductionRate: 100,
		TechnologyLevel:    3, // 1 + 0.1 × 2 = 1.2
		LaborCapacity:      100,
		CurrentLabor:       80,
		Active:             true,
	}
	w.AddModifier(&economy.ProductionModifier{ID: 1, SiteID: 1, Name: "Good season", Value: 1.1,
		Window: economy.Between(epoch, epoch.Add(72*time.Hour))})
	return w
}

func TestProductionScenarioOutput(t *testing.T) {
	w := productionWorld()
	cfg := dailyConfig()
	tc := newTickContext(cfg, epoch.Add(24*time.Hour))

	next := runStage(t, runProduction, tc, w)

	l, ok := next.Listing(1, 1)
	if !ok {
		t.Fatalf("production did not create the listing")
	}
	if !approx(l.AvailableQuantity, 105.6) {
		t.Fatalf("quantity = %v, want 105.6", l.AvailableQuantity)
	}
	if l.BasePrice != 4 || l.CurrentPrice != 4 {
		t.Fatalf("new listing not seeded at base value: %+v", l)
	}
	if !approx(next.Sites[1].CurrentProductionRate, 105.6) {
		t.Fatalf("rate = %v, want 105.6", next.Sites[1].CurrentProductionRate)
	}
	if !approx(tc.report.Ledger.Produced, 105.6) || tc.report.ListingsCreated != 1 {
		t.Fatalf("report = %+v", tc.report)
	}
	// prev is untouched.
	if _, ok := w.Listing(1, 1); ok {
		t.Fatalf("stage wrote into the world it reads")
	}
}

func TestProductionScalesWithTickDuration(t *testing.T) {
	w := productionWorld()
	cfg := dailyConfig()
	cfg.TickDuration.Duration = 6 * time.Hour
	tc := newTickContext(cfg, epoch.Add(6*time.Hour))

	next := runStage(t, runProduction, tc, w)
	l, _ := next.Listing(1, 1)
	if !approx(l.AvailableQuantity, 105.6/4) {
		t.Fatalf("quantity = %v, want %v", l.AvailableQuantity, 105.6/4)
	}
	if !approx(next.Sites[1].CurrentProductionRate, 105.6) {
		t.Fatalf("rate should stay per-day, got %v", next.Sites[1].CurrentProductionRate)
	}
}

func TestProductionModifierWindow(t *testing.T) {
	w := productionWorld()
	cfg := dailyConfig()
	// At the modifier's end the half-open window no longer applies.
	tc := newTickContext(cfg, epoch.Add(72*time.Hour))
	next := runStage(t, runProduction, tc, w)
	if !approx(next.Sites[1].CurrentProductionRate, 96) {
		t.Fatalf("rate = %v, want 96 without modifier", next.Sites[1].CurrentProductionRate)
	}
}

func TestProductionInactiveAndZeroLabor(t *testing.T) {
	w := productionWorld()
	w.Sites[1].Active = false
	w.Sites[1].CurrentProductionRate = 50
	w.Sites[2] = &economy.ProductionSite{ID: 2, LocationID: 1, ResourceID: 1, BaseProductionRate: 10, TechnologyLevel: 1, Active: true}

	tc := newTickContext(dailyConfig(), epoch.Add(24*time.Hour))
	next := runStage(t, runProduction, tc, w)

	for id, site := range next.Sites {
		if site.CurrentProductionRate != 0 {
			t.Errorf("site %d rate = %v, want 0", id, site.CurrentProductionRate)
		}
	}
	if _, ok := next.Listing(1, 1); ok {
		t.Fatalf("no output should mean no listing")
	}
}

func TestProductionSkipsReferentialGaps(t *testing.T) {
	w := productionWorld()
	w.Sites[2] = &economy.ProductionSite{ID: 2, LocationID: 9, ResourceID: 1, BaseProductionRate: 10, TechnologyLevel: 1, LaborCapacity: 1, CurrentLabor: 1, Active: true}
	w.Sites[3] = &economy.ProductionSite{ID: 3, LocationID: 1, ResourceID: 9, BaseProductionRate: 10, TechnologyLevel: 1, LaborCapacity: 1, CurrentLabor: 1, Active: true}

	tc := newTickContext(dailyConfig(), epoch.Add(24*time.Hour))
	next := runStage(t, runProduction, tc, w)
	if tc.report.Skipped != 2 {
		t.Fatalf("skipped = %d, want 2", tc.report.Skipped)
	}
	if !approx(next.Sites[1].CurrentProductionRate, 105.6) {
		t.Fatalf("healthy site affected by gaps")
	}
}

func TestProductionEventEffects(t *testing.T) {
	w := productionWorld()
	w.Events[1] = &economy.EconomicEvent{ID: 1, Name: "Blight", Window: economy.Since(epoch), State: economy.EventActive}
	w.AddEffect(&economy.EventEffect{ID: 1, EventID: 1, Target: economy.LocationTarget{ID: 1}, Type: economy.EffectProduction, Mode: economy.EffectMultiplier, Value: 0.5})
	w.AddEffect(&economy.EventEffect{ID: 2, EventID: 1, Target: economy.ResourceTarget{ID: 1}, Type: economy.EffectProduction, Mode: economy.EffectOffset, Value: -1000})

	tc := newTickContext(dailyConfig(), epoch.Add(24*time.Hour))
	next := runStage(t, runProduction, tc, w)
	if next.Sites[1].CurrentProductionRate != 0 {
		t.Fatalf("negative output must clamp to 0, got %v", next.Sites[1].CurrentProductionRate)
	}
}

func TestTechnologyAndLaborFactors(t *testing.T) {
	cfg := dailyConfig()
	tests := []struct {
		level int
		want  float64
	}{
		{1, 1}, {3, 1.2}, {-20, cfg.TechnologyFloor},
	}
	for _, tt := range tests {
		if got := technologyFactor(cfg, tt.level); !approx(got, tt.want) {
			t.Errorf("technologyFactor(%d) = %v, want %v", tt.level, got, tt.want)
		}
	}
	if laborFactor(5, 0) != 0 || laborFactor(15, 10) != 1 || laborFactor(-1, 10) != 0 || laborFactor(5, 10) != 0.5 {
		t.Fatalf("laborFactor out of contract")
	}
}
