package worldgen

import (
	"context"
	"testing"
	"time"

	"github.com/talgya/mini-econ/internal/config"
	"github.com/talgya/mini-econ/internal/economy"
	"github.com/talgya/mini-econ/internal/engine"
	"github.com/talgya/mini-econ/internal/entropy"
)

var epoch = time.Date(1000, 1, 1, 0, 0, 0, 0, time.UTC)

func TestGenerateReferences(t *testing.T) {
	w, err := Generate(DefaultOptions(42, epoch))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(w.Locations) < 2 || len(w.Sites) == 0 || len(w.Routes) == 0 || len(w.Shops) != len(w.Locations) {
		t.Fatalf("sparse world: %d locations %d sites %d routes %d shops",
			len(w.Locations), len(w.Sites), len(w.Routes), len(w.Shops))
	}
	if !w.Now.Equal(epoch) || w.Tick != 0 {
		t.Fatalf("clock = %d %v", w.Tick, w.Now)
	}
	for id, s := range w.Sites {
		if w.Locations[s.LocationID] == nil || w.Resources[s.ResourceID] == nil {
			t.Fatalf("site %d has dangling references", id)
		}
		if s.BaseProductionRate <= 0 || s.CurrentLabor > s.LaborCapacity {
			t.Fatalf("site %d = %+v", id, s)
		}
	}
	for id, r := range w.Routes {
		if w.Locations[r.SourceID] == nil || w.Locations[r.DestinationID] == nil || r.SourceID == r.DestinationID {
			t.Fatalf("route %d endpoints %d -> %d", id, r.SourceID, r.DestinationID)
		}
		if r.BaseTravelTime <= 0 || r.SafetyRating < 0 || r.SafetyRating > 100 {
			t.Fatalf("route %d = %+v", id, r)
		}
	}
	if want := len(w.Locations) * len(w.Resources); len(w.Listings) != want {
		t.Fatalf("listings = %d, want %d", len(w.Listings), want)
	}
	for _, r := range w.Recipes {
		if err := r.Validate(w); err != nil {
			t.Fatalf("recipe: %v", err)
		}
	}
	for key, fe := range w.FactionEconomics {
		if w.Factions[key.FactionID] == nil || fe.ConsumptionRate < 0 {
			t.Fatalf("faction economics %+v", fe)
		}
	}
	for _, e := range w.Effects {
		if w.Events[e.EventID] == nil {
			t.Fatalf("effect %d for missing event", e.ID)
		}
	}
}

func TestGenerateDeterministic(t *testing.T) {
	a, err := Generate(DefaultOptions(7, epoch))
	if err != nil {
		t.Fatal(err)
	}
	b, err := Generate(DefaultOptions(7, epoch))
	if err != nil {
		t.Fatal(err)
	}
	if len(a.Sites) != len(b.Sites) || len(a.Routes) != len(b.Routes) {
		t.Fatalf("entity counts differ")
	}
	for id, l := range a.Locations {
		if *b.Locations[id] != *l {
			t.Fatalf("location %d differs", id)
		}
	}
	for id, s := range a.Sites {
		if *b.Sites[id] != *s {
			t.Fatalf("site %d differs", id)
		}
	}
}

func TestGeneratedWorldRuns(t *testing.T) {
	w, err := Generate(DefaultOptions(42, epoch))
	if err != nil {
		t.Fatal(err)
	}
	sim := engine.New(w, engine.Options{
		Economy: config.Default().Economy,
		Workers: 4,
		Rand:    entropy.NewSeeded(1),
	})
	for i := 0; i < 24*14; i++ {
		r, err := sim.Step(context.Background())
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if !r.Ledger.Balanced() {
			t.Fatalf("tick %d ledger residual %v", r.Tick, r.Ledger.Residual())
		}
	}
	sim.View(func(w *economy.World) {
		if w.Events[1].State != economy.EventExpired {
			t.Fatalf("festival should have run its course, state %s", w.Events[1].State)
		}
	})
}
