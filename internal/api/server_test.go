package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talgya/mini-econ/internal/config"
	"github.com/talgya/mini-econ/internal/economy"
	"github.com/talgya/mini-econ/internal/engine"
	"github.com/talgya/mini-econ/internal/entropy"
	"github.com/talgya/mini-econ/internal/worldgen"
)

const testKey = "secret"

type fakeHistory struct{ rows []economy.PriceHistory }

func (f *fakeHistory) History(_ context.Context, id economy.ListingID, limit int) ([]economy.PriceHistory, error) {
	var out []economy.PriceHistory
	for _, r := range f.rows {
		if r.ListingID == id && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

type countingSnapshots struct{ ticks []uint64 }

func (c *countingSnapshots) WriteSnapshot(w *economy.World) error {
	c.ticks = append(c.ticks, w.Tick)
	return nil
}

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	w, err := worldgen.Generate(worldgen.DefaultOptions(42, time.Date(1000, 1, 1, 0, 0, 0, 0, time.UTC)))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	sim := engine.New(w, engine.Options{
		Economy: config.Default().Economy,
		Workers: 2,
		Rand:    entropy.NewSeeded(1),
	})
	cfg := config.Default().API
	cfg.AdminKey = testKey
	cfg.RatePerMinute = 0
	s, err := New(cfg, sim, engine.NewClock(time.Second, sim.Advance))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.History = &fakeHistory{rows: []economy.PriceHistory{
		{ListingID: 1, Tick: 2, Price: 6},
		{ListingID: 1, Tick: 1, Price: 5},
		{ListingID: 2, Tick: 1, Price: 9},
	}}
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK && out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func post(t *testing.T, url, key, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestStatus(t *testing.T) {
	s, ts := newTestServer(t)
	if _, err := s.Sim.Step(context.Background()); err != nil {
		t.Fatal(err)
	}
	var status map[string]any
	if code := getJSON(t, ts.URL+"/api/v1/status", &status); code != http.StatusOK {
		t.Fatalf("status code %d", code)
	}
	if status["tick"].(float64) != 1 {
		t.Fatalf("tick = %v", status["tick"])
	}
	if status["run_id"] != s.Sim.RunID().String() {
		t.Fatalf("run id = %v", status["run_id"])
	}
	if _, ok := status["last_tick"]; !ok {
		t.Fatalf("missing last tick report")
	}
}

func TestListingsFilter(t *testing.T) {
	_, ts := newTestServer(t)
	var all, one []map[string]any
	getJSON(t, ts.URL+"/api/v1/listings", &all)
	getJSON(t, ts.URL+"/api/v1/listings?location=1", &one)
	if len(all) == 0 || len(one) == 0 || len(one) >= len(all) {
		t.Fatalf("all=%d location 1=%d", len(all), len(one))
	}
	for _, l := range one {
		if l["location_id"].(float64) != 1 || l["resource"] == "" {
			t.Fatalf("listing %v", l)
		}
	}
	if code := getJSON(t, ts.URL+"/api/v1/listings?location=abc", nil); code != http.StatusBadRequest {
		t.Fatalf("bad filter code %d", code)
	}
}

func TestHistory(t *testing.T) {
	_, ts := newTestServer(t)
	var rows []economy.PriceHistory
	if code := getJSON(t, ts.URL+"/api/v1/listings/1/history?limit=5", &rows); code != http.StatusOK {
		t.Fatalf("code %d", code)
	}
	if len(rows) != 2 || rows[0].Tick != 2 {
		t.Fatalf("rows = %+v", rows)
	}
	if code := getJSON(t, ts.URL+"/api/v1/listings/1/history?limit=0", nil); code != http.StatusBadRequest {
		t.Fatalf("limit 0 code %d", code)
	}
}

func TestCollections(t *testing.T) {
	_, ts := newTestServer(t)
	for _, path := range []string{"sites", "routes", "shipments", "shops", "events", "factions"} {
		var out []map[string]any
		if code := getJSON(t, ts.URL+"/api/v1/"+path, &out); code != http.StatusOK {
			t.Fatalf("%s code %d", path, code)
		}
		if path != "shipments" && len(out) == 0 {
			t.Fatalf("%s empty", path)
		}
	}
	var shops []map[string]any
	getJSON(t, ts.URL+"/api/v1/shops?location=1", &shops)
	if len(shops) != 1 {
		t.Fatalf("shops at location 1 = %d", len(shops))
	}
	if _, ok := shops[0]["inventory"].([]any); !ok {
		t.Fatalf("shop inventory missing: %v", shops[0])
	}
}

func TestReportCached(t *testing.T) {
	s, ts := newTestServer(t)
	var first, second engine.LocationReport
	if code := getJSON(t, ts.URL+"/api/v1/report/1", &first); code != http.StatusOK {
		t.Fatalf("code %d", code)
	}
	if s.reports.Len() != 1 {
		t.Fatalf("cache len = %d", s.reports.Len())
	}
	getJSON(t, ts.URL+"/api/v1/report/1", &second)
	if first.Tick != second.Tick || first.Location.ID != second.Location.ID {
		t.Fatalf("cached report differs")
	}
	if code := getJSON(t, ts.URL+"/api/v1/report/999", nil); code != http.StatusNotFound {
		t.Fatalf("missing location code %d", code)
	}
}

func TestAdminAuth(t *testing.T) {
	s, ts := newTestServer(t)
	if resp := post(t, ts.URL+"/api/v1/speed", "", `{"speed":2}`); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no token code %d", resp.StatusCode)
	}
	if resp := post(t, ts.URL+"/api/v1/speed", "wrong", `{"speed":2}`); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong token code %d", resp.StatusCode)
	}
	if resp := post(t, ts.URL+"/api/v1/speed", testKey, `{"speed":2000}`); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("out of range code %d", resp.StatusCode)
	}
	if resp := post(t, ts.URL+"/api/v1/speed", testKey, `{"speed":4}`); resp.StatusCode != http.StatusOK {
		t.Fatalf("speed code %d", resp.StatusCode)
	}
	if s.Clock.Speed() != 4 {
		t.Fatalf("speed = %v", s.Clock.Speed())
	}

	s.AdminKey = ""
	if resp := post(t, ts.URL+"/api/v1/speed", testKey, `{"speed":1}`); resp.StatusCode != http.StatusForbidden {
		t.Fatalf("disabled admin code %d", resp.StatusCode)
	}
}

func TestDeactivateEvent(t *testing.T) {
	s, ts := newTestServer(t)
	if resp := post(t, ts.URL+"/api/v1/events/1/deactivate", testKey, ""); resp.StatusCode != http.StatusOK {
		t.Fatalf("code %d", resp.StatusCode)
	}
	s.Sim.View(func(w *economy.World) {
		if w.Events[1].State != economy.EventExpired {
			t.Fatalf("state = %s", w.Events[1].State)
		}
	})
	if resp := post(t, ts.URL+"/api/v1/events/999/deactivate", testKey, ""); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing event code %d", resp.StatusCode)
	}
}

func TestPurchase(t *testing.T) {
	s, ts := newTestServer(t)
	var shop economy.ShopID
	var res economy.ResourceID
	s.Sim.View(func(w *economy.World) {
		for _, id := range economy.SortedIDs(w.Shops) {
			for _, e := range w.ShopInventory(id) {
				if e.Quantity >= 1 {
					shop, res = id, e.ResourceID
					return
				}
			}
		}
	})
	if shop == 0 {
		t.Fatalf("no stocked shop")
	}

	body, _ := json.Marshal(map[string]any{"player_id": 9, "shop_id": shop, "resource_id": res, "quantity": 1})
	resp := post(t, ts.URL+"/api/v1/purchase", testKey, string(body))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("purchase code %d", resp.StatusCode)
	}
	var receipt map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&receipt); err != nil {
		t.Fatal(err)
	}
	if receipt["total"] == nil {
		t.Fatalf("receipt = %v", receipt)
	}

	body, _ = json.Marshal(map[string]any{"player_id": 9, "shop_id": shop, "resource_id": res, "quantity": 1e9})
	if resp := post(t, ts.URL+"/api/v1/purchase", testKey, string(body)); resp.StatusCode != http.StatusConflict {
		t.Fatalf("oversized purchase code %d", resp.StatusCode)
	}
	body, _ = json.Marshal(map[string]any{"player_id": 9, "shop_id": shop, "resource_id": res, "quantity": -1})
	if resp := post(t, ts.URL+"/api/v1/purchase", testKey, string(body)); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("negative purchase code %d", resp.StatusCode)
	}
}

func TestSell(t *testing.T) {
	s, ts := newTestServer(t)
	var shop economy.ShopID
	var res economy.ResourceID
	s.Sim.View(func(w *economy.World) {
		for _, id := range economy.SortedIDs(w.Shops) {
			for _, l := range w.Listings {
				if l.LocationID == w.Shops[id].LocationID && l.CurrentPrice > 0 {
					shop, res = id, l.ResourceID
					return
				}
			}
		}
	})
	if shop == 0 {
		t.Fatalf("no shop with a local listing")
	}

	body, _ := json.Marshal(map[string]any{"player_id": 9, "shop_id": shop, "resource_id": res, "quantity": 1})
	if resp := post(t, ts.URL+"/api/v1/sell", "", string(body)); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated sell code %d", resp.StatusCode)
	}
	resp := post(t, ts.URL+"/api/v1/sell", testKey, string(body))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("sell code %d", resp.StatusCode)
	}
	var receipt engine.Receipt
	if err := json.NewDecoder(resp.Body).Decode(&receipt); err != nil {
		t.Fatal(err)
	}
	if receipt.Transaction.Quantity != -1 || !receipt.Total.IsPositive() {
		t.Fatalf("receipt = %+v", receipt)
	}

	body, _ = json.Marshal(map[string]any{"player_id": 9, "shop_id": shop, "resource_id": res, "quantity": 1e12})
	if resp := post(t, ts.URL+"/api/v1/sell", testKey, string(body)); resp.StatusCode != http.StatusConflict {
		t.Fatalf("unaffordable sell code %d", resp.StatusCode)
	}
	if resp := post(t, ts.URL+"/api/v1/sell", testKey, "{"); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad json code %d", resp.StatusCode)
	}
}

func TestDispatch(t *testing.T) {
	s, ts := newTestServer(t)
	var route economy.RouteID
	var res economy.ResourceID
	s.Sim.View(func(w *economy.World) {
		for _, id := range economy.SortedIDs(w.Routes) {
			rt := w.Routes[id]
			if !rt.Active || rt.Capacity < 1 {
				continue
			}
			for _, lid := range economy.SortedIDs(w.Listings) {
				if l := w.Listings[lid]; l.LocationID == rt.SourceID && l.AvailableQuantity >= 1 {
					route, res = id, l.ResourceID
					return
				}
			}
		}
	})
	if route == 0 {
		t.Fatalf("no route with stock at its source")
	}

	body, _ := json.Marshal(map[string]any{"owner_type": "player", "owner_id": 9, "route_id": route, "resource_id": res, "quantity": 1})
	resp := post(t, ts.URL+"/api/v1/dispatch", testKey, string(body))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("dispatch code %d", resp.StatusCode)
	}
	var sh economy.Shipment
	if err := json.NewDecoder(resp.Body).Decode(&sh); err != nil {
		t.Fatal(err)
	}
	if sh.Owner != (economy.PlayerOwner{ID: 9}) || sh.Status != economy.ShipmentInTransit {
		t.Fatalf("shipment = %+v", sh)
	}

	var shipments []economy.Shipment
	if code := getJSON(t, ts.URL+"/api/v1/shipments?status=in_transit", &shipments); code != http.StatusOK {
		t.Fatalf("shipments code %d", code)
	}
	listed := false
	for _, got := range shipments {
		listed = listed || got.ID == sh.ID
	}
	if !listed {
		t.Fatalf("dispatched shipment %d not listed in transit", sh.ID)
	}

	tests := []struct {
		name  string
		owner string
		id    uint64
		want  int
	}{
		{"npc owner", "npc", 1, http.StatusBadRequest},
		{"missing faction", "faction", 999999, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, _ := json.Marshal(map[string]any{"owner_type": tt.owner, "owner_id": tt.id, "route_id": route, "resource_id": res, "quantity": 1})
			if resp := post(t, ts.URL+"/api/v1/dispatch", testKey, string(body)); resp.StatusCode != tt.want {
				t.Fatalf("code %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestCraftEndpoint(t *testing.T) {
	_, ts := newTestServer(t)
	body := `{"player_id": 1, "location_id": 1, "recipe_id": 424242, "skill": 100}`
	if resp := post(t, ts.URL+"/api/v1/craft", testKey, body); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown recipe code %d", resp.StatusCode)
	}
}

func TestSnapshotEndpoint(t *testing.T) {
	s, ts := newTestServer(t)
	if resp := post(t, ts.URL+"/api/v1/snapshot", testKey, ""); resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("unconfigured code %d", resp.StatusCode)
	}
	snaps := &countingSnapshots{}
	s.Snapshots = snaps
	if resp := post(t, ts.URL+"/api/v1/snapshot", testKey, ""); resp.StatusCode != http.StatusOK {
		t.Fatalf("code %d", resp.StatusCode)
	}
	if len(snaps.ticks) != 1 || snaps.ticks[0] != 0 {
		t.Fatalf("snapshots = %v", snaps.ticks)
	}
}

func TestStream(t *testing.T) {
	s, ts := newTestServer(t)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Subscription happens after the upgrade, so keep stepping until a report arrives.
	got := make(chan engine.TickReport, 1)
	go func() {
		var r engine.TickReport
		if err := conn.ReadJSON(&r); err == nil {
			got <- r
		}
	}()
	deadline := time.After(5 * time.Second)
	for {
		if _, err := s.Sim.Step(context.Background()); err != nil {
			t.Fatal(err)
		}
		select {
		case r := <-got:
			if r.Tick == 0 {
				t.Fatalf("report without tick")
			}
			return
		case <-deadline:
			t.Fatalf("no report streamed")
		case <-time.After(20 * time.Millisecond):
		}
	}
}
