// Package api provides the HTTP API for observing and steering the economy.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane).
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	lru "github.com/hashicorp/golang-lru"

	"github.com/talgya/mini-econ/internal/config"
	"github.com/talgya/mini-econ/internal/economy"
	"github.com/talgya/mini-econ/internal/engine"
)

const maxStreamConns = 8

// HistoryStore serves persisted price history.
type HistoryStore interface {
	History(ctx context.Context, listing economy.ListingID, limit int) ([]economy.PriceHistory, error)
}

// Server serves the economy over HTTP.
type Server struct {
	Sim       *engine.Simulation
	Clock     *engine.Clock         // nil when ticks are driven elsewhere
	History   HistoryStore          // nil disables the history endpoint
	Snapshots engine.SnapshotWriter // nil disables on-demand snapshots
	Port      int
	AdminKey  string // Bearer token for POST endpoints. Empty = POST disabled.

	limiter  *RateLimiter
	reports  *lru.Cache // reportKey → *engine.LocationReport
	upgrader websocket.Upgrader
	streams  atomic.Int32
}

type reportKey struct {
	location economy.LocationID
	tick     uint64
}

// New builds a server from the API config.
func New(cfg config.APIConfig, sim *engine.Simulation, clock *engine.Clock) (*Server, error) {
	size := cfg.ReportCache
	if size <= 0 {
		size = 1
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("report cache: %w", err)
	}
	return &Server{
		Sim:      sim,
		Clock:    clock,
		Port:     cfg.Port,
		AdminKey: cfg.AdminKey,
		limiter:  NewRateLimiter(cfg.RatePerMinute, cfg.RateBurst),
		reports:  cache,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}, nil
}

// Handler returns the routed, rate-limited API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Public endpoints (GET, read-only).
	mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	mux.HandleFunc("GET /api/v1/listings", s.handleListings)
	mux.HandleFunc("GET /api/v1/listings/{id}/history", s.handleHistory)
	mux.HandleFunc("GET /api/v1/sites", s.handleSites)
	mux.HandleFunc("GET /api/v1/routes", s.handleRoutes)
	mux.HandleFunc("GET /api/v1/shipments", s.handleShipments)
	mux.HandleFunc("GET /api/v1/shops", s.handleShops)
	mux.HandleFunc("GET /api/v1/events", s.handleEvents)
	mux.HandleFunc("GET /api/v1/factions", s.handleFactions)
	mux.HandleFunc("GET /api/v1/report/{location}", s.handleReport)
	mux.HandleFunc("GET /api/v1/stream", s.handleStream)

	// Admin endpoints (POST, require bearer token).
	mux.HandleFunc("POST /api/v1/speed", s.adminOnly(s.handleSpeed))
	mux.HandleFunc("POST /api/v1/events/{id}/deactivate", s.adminOnly(s.handleDeactivate))
	mux.HandleFunc("POST /api/v1/purchase", s.adminOnly(s.handlePurchase))
	mux.HandleFunc("POST /api/v1/sell", s.adminOnly(s.handleSell))
	mux.HandleFunc("POST /api/v1/dispatch", s.adminOnly(s.handleDispatch))
	mux.HandleFunc("POST /api/v1/craft", s.adminOnly(s.handleCraft))
	mux.HandleFunc("POST /api/v1/snapshot", s.adminOnly(s.handleSnapshot))

	return corsMiddleware(RateLimitMiddleware(s.limiter, mux))
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", srv.Addr, "admin_auth", s.AdminKey != "")

	go func() {
		t := time.NewTicker(5 * time.Minute)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-t.C:
				s.limiter.Cleanup(now)
			}
		}
	}()

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// CORS_ORIGINS holds a comma-separated list; localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly wraps a handler to require bearer token auth.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.AdminKey == "" {
			http.Error(w, "admin endpoints disabled (no ECONSIM_ADMIN_KEY set)", http.StatusForbidden)
			return
		}
		if !s.checkBearerToken(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{"run_id": s.Sim.RunID()}
	s.Sim.View(func(world *economy.World) {
		q := world.Quantities()
		status["tick"] = world.Tick
		status["sim_time"] = world.Now
		status["locations"] = len(world.Locations)
		status["listings"] = len(world.Listings)
		status["routes"] = len(world.Routes)
		status["shipments"] = len(world.Shipments)
		status["transactions"] = len(world.Transactions)
		status["quantities"] = q
		status["total_quantity"] = q.Total()
	})
	if s.Clock != nil {
		status["speed"] = s.Clock.Speed()
		status["running"] = s.Clock.Running()
	}
	if last := s.Sim.LastReport(); last != nil {
		status["last_tick"] = last
	}
	writeJSON(w, status)
}

// idParam parses a non-zero uint64 query or path value. Missing values return 0.
func idParam(raw string) (uint64, error) {
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

func (s *Server) handleListings(w http.ResponseWriter, r *http.Request) {
	loc, err := idParam(r.URL.Query().Get("location"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	res, err := idParam(r.URL.Query().Get("resource"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	type listingView struct {
		economy.MarketListing
		Resource string `json:"resource"`
		Location string `json:"location"`
	}
	var out []listingView
	s.Sim.View(func(world *economy.World) {
		for _, id := range economy.SortedIDs(world.Listings) {
			l := world.Listings[id]
			if (loc != 0 && uint64(l.LocationID) != loc) || (res != 0 && uint64(l.ResourceID) != res) {
				continue
			}
			v := listingView{MarketListing: *l}
			if rs := world.Resources[l.ResourceID]; rs != nil {
				v.Resource = rs.Name
			}
			if lc := world.Locations[l.LocationID]; lc != nil {
				v.Location = lc.Name
			}
			out = append(out, v)
		}
	})
	writeJSON(w, out)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.History == nil {
		http.Error(w, "history not available", http.StatusServiceUnavailable)
		return
	}
	id, err := idParam(r.PathValue("id"))
	if err != nil || id == 0 {
		http.Error(w, "invalid listing id", http.StatusBadRequest)
		return
	}
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil || limit < 1 || limit > 10000 {
			http.Error(w, "limit must be 1-10000", http.StatusBadRequest)
			return
		}
	}
	rows, err := s.History.History(r.Context(), economy.ListingID(id), limit)
	if err != nil {
		slog.Error("history query failed", "listing", id, "error", err)
		http.Error(w, "history query failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, rows)
}

func (s *Server) handleSites(w http.ResponseWriter, r *http.Request) {
	loc, err := idParam(r.URL.Query().Get("location"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var out []economy.ProductionSite
	s.Sim.View(func(world *economy.World) {
		for _, id := range economy.SortedIDs(world.Sites) {
			if site := world.Sites[id]; loc == 0 || uint64(site.LocationID) == loc {
				out = append(out, *site)
			}
		}
	})
	writeJSON(w, out)
}

func (s *Server) handleRoutes(w http.ResponseWriter, r *http.Request) {
	var out []economy.TradeRoute
	s.Sim.View(func(world *economy.World) {
		for _, id := range economy.SortedIDs(world.Routes) {
			out = append(out, *world.Routes[id])
		}
	})
	writeJSON(w, out)
}

func (s *Server) handleShipments(w http.ResponseWriter, r *http.Request) {
	status := economy.ShipmentStatus(r.URL.Query().Get("status"))
	route, err := idParam(r.URL.Query().Get("route"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var out []economy.Shipment
	s.Sim.View(func(world *economy.World) {
		for _, id := range economy.SortedIDs(world.Shipments) {
			sh := world.Shipments[id]
			if (status != "" && sh.Status != status) || (route != 0 && uint64(sh.RouteID) != route) {
				continue
			}
			out = append(out, *sh)
		}
	})
	writeJSON(w, out)
}

func (s *Server) handleShops(w http.ResponseWriter, r *http.Request) {
	loc, err := idParam(r.URL.Query().Get("location"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	type shopView struct {
		economy.Shop
		Inventory []economy.ShopInventoryEntry `json:"inventory"`
	}
	var out []shopView
	s.Sim.View(func(world *economy.World) {
		for _, id := range economy.SortedIDs(world.Shops) {
			shop := world.Shops[id]
			if loc != 0 && uint64(shop.LocationID) != loc {
				continue
			}
			v := shopView{Shop: *shop, Inventory: []economy.ShopInventoryEntry{}}
			for _, e := range world.ShopInventory(id) {
				v.Inventory = append(v.Inventory, *e)
			}
			out = append(out, v)
		}
	})
	writeJSON(w, out)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	state := economy.EventState(r.URL.Query().Get("state"))
	type eventView struct {
		economy.EconomicEvent
		Effects []economy.EventEffect `json:"effects"`
	}
	var out []eventView
	s.Sim.View(func(world *economy.World) {
		for _, id := range economy.SortedIDs(world.Events) {
			ev := world.Events[id]
			if state != "" && ev.State != state {
				continue
			}
			v := eventView{EconomicEvent: *ev, Effects: []economy.EventEffect{}}
			for _, e := range world.EventEffects(id) {
				v.Effects = append(v.Effects, *e)
			}
			out = append(out, v)
		}
	})
	writeJSON(w, out)
}

func (s *Server) handleFactions(w http.ResponseWriter, r *http.Request) {
	type factionView struct {
		economy.Faction
		Economics []economy.FactionEconomics `json:"economics"`
	}
	var out []factionView
	s.Sim.View(func(world *economy.World) {
		index := make(map[economy.FactionID]int)
		for _, id := range economy.SortedIDs(world.Factions) {
			index[id] = len(out)
			out = append(out, factionView{Faction: *world.Factions[id], Economics: []economy.FactionEconomics{}})
		}
		for _, key := range world.SortedFactionKeys() {
			if i, ok := index[key.FactionID]; ok {
				out[i].Economics = append(out[i].Economics, *world.FactionEconomics[key])
			}
		}
	})
	writeJSON(w, out)
}

// handleReport serves a location report. Reports are cached per tick and
// purged by player actions, which change the world between ticks.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r.PathValue("location"))
	if err != nil || id == 0 {
		http.Error(w, "invalid location id", http.StatusBadRequest)
		return
	}
	var tick uint64
	s.Sim.View(func(world *economy.World) { tick = world.Tick })
	key := reportKey{location: economy.LocationID(id), tick: tick}
	if cached, ok := s.reports.Get(key); ok {
		writeJSON(w, cached)
		return
	}

	report, err := s.Sim.Report(economy.LocationID(id))
	if errors.Is(err, economy.ErrNotFound) {
		http.Error(w, "location not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("report failed", "location", id, "error", err)
		http.Error(w, "report failed", http.StatusInternalServerError)
		return
	}
	s.reports.Add(reportKey{location: economy.LocationID(id), tick: report.Tick}, report)
	writeJSON(w, report)
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if s.Clock == nil {
		http.Error(w, "no clock attached", http.StatusServiceUnavailable)
		return
	}
	var req struct {
		Speed float64 `json:"speed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Speed < 0 || req.Speed > 1000 {
		http.Error(w, "speed must be 0-1000", http.StatusBadRequest)
		return
	}
	s.Clock.SetSpeed(req.Speed)
	slog.Info("speed changed", "speed", req.Speed)
	writeJSON(w, map[string]float64{"speed": s.Clock.Speed()})
}

func (s *Server) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r.PathValue("id"))
	if err != nil || id == 0 {
		http.Error(w, "invalid event id", http.StatusBadRequest)
		return
	}
	err = s.Sim.DeactivateEvent(r.Context(), economy.EventID(id))
	switch {
	case errors.Is(err, economy.ErrNotFound):
		http.Error(w, "event not found", http.StatusNotFound)
		return
	case err != nil:
		slog.Error("deactivate event failed", "event", id, "error", err)
		http.Error(w, "deactivate failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"event_id": id, "state": economy.EventExpired})
}

func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PlayerID   uint64  `json:"player_id"`
		ShopID     uint64  `json:"shop_id"`
		ResourceID uint64  `json:"resource_id"`
		Quantity   float64 `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	receipt, err := s.Sim.Purchase(r.Context(), engine.PurchaseRequest{
		PlayerID:   economy.PlayerID(req.PlayerID),
		ShopID:     economy.ShopID(req.ShopID),
		ResourceID: economy.ResourceID(req.ResourceID),
		Quantity:   req.Quantity,
	})
	if actionFailed(w, "purchase", err) {
		return
	}
	s.reports.Purge()
	writeJSON(w, receipt)
}

func (s *Server) handleSell(w http.ResponseWriter, r *http.Request) {
	var req engine.SellRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	receipt, err := s.Sim.Sell(r.Context(), req)
	if actionFailed(w, "sale", err) {
		return
	}
	s.reports.Purge()
	writeJSON(w, receipt)
}

func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	var req engine.DispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	sh, err := s.Sim.Dispatch(r.Context(), req)
	if actionFailed(w, "dispatch", err) {
		return
	}
	s.reports.Purge()
	writeJSON(w, sh)
}

func (s *Server) handleCraft(w http.ResponseWriter, r *http.Request) {
	var req engine.CraftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	res, err := s.Sim.Craft(r.Context(), req)
	if actionFailed(w, "craft", err) {
		return
	}
	s.reports.Purge()
	writeJSON(w, res)
}

// actionFailed writes the HTTP error for a rejected player action and
// reports whether it did.
func actionFailed(w http.ResponseWriter, action string, err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, economy.ErrInvalidQuantity), errors.Is(err, economy.ErrInvalidOwner):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, economy.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, economy.ErrInsufficientStock), errors.Is(err, economy.ErrInsufficientFunds),
		errors.Is(err, economy.ErrRouteInactive), errors.Is(err, economy.ErrSkillTooLow):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		slog.Error(action+" failed", "error", err)
		http.Error(w, action+" failed", http.StatusInternalServerError)
	}
	return true
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.Snapshots == nil {
		http.Error(w, "snapshots not configured", http.StatusServiceUnavailable)
		return
	}
	var (
		tick uint64
		err  error
	)
	s.Sim.View(func(world *economy.World) {
		tick = world.Tick
		err = s.Snapshots.WriteSnapshot(world)
	})
	if err != nil {
		slog.Error("snapshot failed", "error", err)
		http.Error(w, "snapshot failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"tick": tick, "message": "snapshot saved"})
}

// handleStream upgrades to a websocket and pushes every committed TickReport.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.streams.Add(1) > maxStreamConns {
		s.streams.Add(-1)
		http.Error(w, "too many stream connections", http.StatusServiceUnavailable)
		return
	}
	defer s.streams.Add(-1)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	reports, cancel := s.Sim.Subscribe()
	defer cancel()
	slog.Info("stream client connected", "remote", clientIP(r))

	// Reads only detect the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if last := s.Sim.LastReport(); last != nil {
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(last); err != nil {
			return
		}
	}

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()
	for {
		select {
		case rep, ok := <-reports:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(rep); err != nil {
				return
			}
		case <-heartbeat.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case <-gone:
			slog.Info("stream client disconnected", "remote", clientIP(r))
			return
		case <-r.Context().Done():
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
