// Package snapshot writes zstd-compressed JSON images of the economy.
// A snapshot is a header line followed by the world document.
package snapshot

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/talgya/mini-econ/internal/economy"
)

// Version is the document format written by Write. Read rejects any other.
const Version = 1

const ext = ".json.zst"

// ErrNoSnapshot is returned by Latest when the directory holds no snapshot.
var ErrNoSnapshot = errors.New("no snapshot")

// Header identifies the run and tick a snapshot was taken at.
type Header struct {
	Version int       `json:"version"`
	RunID   string    `json:"run_id,omitempty"`
	Tick    uint64    `json:"tick"`
	Time    time.Time `json:"time"`
	Written time.Time `json:"written"`
}

// Document is the world flattened to id-ordered slices.
type Document struct {
	Header Header `json:"header"`

	Resources        []economy.Resource           `json:"resources"`
	Locations        []economy.Location           `json:"locations"`
	Sites            []economy.ProductionSite     `json:"sites"`
	Modifiers        []economy.ProductionModifier `json:"modifiers"`
	Listings         []economy.MarketListing      `json:"listings"`
	Routes           []economy.TradeRoute         `json:"routes"`
	Shipments        []economy.Shipment           `json:"shipments"`
	Shops            []economy.Shop               `json:"shops"`
	Inventory        []economy.ShopInventoryEntry `json:"inventory"`
	Events           []economy.EconomicEvent      `json:"events"`
	Effects          []economy.EventEffect        `json:"effects"`
	Factions         []economy.Faction            `json:"factions"`
	FactionEconomics []economy.FactionEconomics   `json:"faction_economics"`
	Recipes          []economy.Recipe             `json:"recipes"`
	Transactions     []economy.PlayerTransaction  `json:"transactions"`

	LastSnapshot map[economy.ListingID]economy.PriceSnapshot `json:"last_snapshot"`
	Counters     economy.Counters                            `json:"counters"`
}

func values[K ~uint64, V any](m map[K]*V) []V {
	out := make([]V, 0, len(m))
	for _, id := range economy.SortedIDs(m) {
		out = append(out, *m[id])
	}
	return out
}

// FromWorld flattens w into a Document.
func FromWorld(w *economy.World, runID string) *Document {
	d := &Document{
		Header:       Header{Version: Version, RunID: runID, Tick: w.Tick, Time: w.Now, Written: time.Now().UTC()},
		Resources:    values(w.Resources),
		Locations:    values(w.Locations),
		Sites:        values(w.Sites),
		Modifiers:    values(w.Modifiers),
		Listings:     values(w.Listings),
		Routes:       values(w.Routes),
		Shipments:    values(w.Shipments),
		Shops:        values(w.Shops),
		Events:       values(w.Events),
		Effects:      values(w.Effects),
		Factions:     values(w.Factions),
		Recipes:      values(w.Recipes),
		Transactions: w.Transactions,
		LastSnapshot: w.LastSnapshot,
		Counters:     w.Counters,
	}
	for _, shop := range economy.SortedIDs(w.Shops) {
		for _, e := range w.ShopInventory(shop) {
			d.Inventory = append(d.Inventory, *e)
		}
	}
	for _, key := range w.SortedFactionKeys() {
		d.FactionEconomics = append(d.FactionEconomics, *w.FactionEconomics[key])
	}
	return d
}

// World rebuilds the arena from the document.
func (d *Document) World() *economy.World {
	w := economy.NewWorld()
	w.Tick, w.Now = d.Header.Tick, d.Header.Time
	for i := range d.Resources {
		w.Resources[d.Resources[i].ID] = &d.Resources[i]
	}
	for i := range d.Locations {
		w.Locations[d.Locations[i].ID] = &d.Locations[i]
	}
	for i := range d.Sites {
		w.Sites[d.Sites[i].ID] = &d.Sites[i]
	}
	for i := range d.Modifiers {
		w.Modifiers[d.Modifiers[i].ID] = &d.Modifiers[i]
	}
	for i := range d.Listings {
		w.Listings[d.Listings[i].ID] = &d.Listings[i]
	}
	for i := range d.Routes {
		w.Routes[d.Routes[i].ID] = &d.Routes[i]
	}
	for i := range d.Shipments {
		w.Shipments[d.Shipments[i].ID] = &d.Shipments[i]
	}
	for i := range d.Shops {
		w.Shops[d.Shops[i].ID] = &d.Shops[i]
	}
	for i := range d.Inventory {
		w.Inventory[d.Inventory[i].Key()] = &d.Inventory[i]
	}
	for i := range d.Events {
		w.Events[d.Events[i].ID] = &d.Events[i]
	}
	for i := range d.Effects {
		w.Effects[d.Effects[i].ID] = &d.Effects[i]
	}
	for i := range d.Factions {
		w.Factions[d.Factions[i].ID] = &d.Factions[i]
	}
	for i := range d.FactionEconomics {
		w.FactionEconomics[d.FactionEconomics[i].Key()] = &d.FactionEconomics[i]
	}
	for i := range d.Recipes {
		w.Recipes[d.Recipes[i].ID] = &d.Recipes[i]
	}
	for id, snap := range d.LastSnapshot {
		w.LastSnapshot[id] = snap
	}
	w.Transactions = d.Transactions
	w.Counters = d.Counters
	w.Reindex()
	return w
}

// Write stores doc at path. The file is written beside path and renamed into
// place so readers never see a partial snapshot.
func Write(path string, doc *Document) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := encode(f, doc); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func encode(f *os.File, doc *Document) error {
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, err := json.Marshal(doc.Header)
	if err != nil {
		enc.Close()
		return err
	}
	if _, err := bw.Write(append(hb, '\n')); err != nil {
		enc.Close()
		return err
	}
	if err := json.NewEncoder(bw).Encode(doc); err != nil {
		enc.Close()
		return fmt.Errorf("json encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

// Read loads a snapshot written by Write.
func Read(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)
	line, err := br.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	var h Header
	if err := json.Unmarshal(line, &h); err != nil {
		return nil, fmt.Errorf("decode header: %w", err)
	}
	if h.Version != Version {
		return nil, fmt.Errorf("snapshot version %d, want %d", h.Version, Version)
	}

	var doc Document
	if err := json.NewDecoder(br).Decode(&doc); err != nil {
		return nil, fmt.Errorf("json decode: %w", err)
	}
	return &doc, nil
}

// Name is the file name used for a tick. Zero padding keeps lexical order
// equal to tick order.
func Name(tick uint64) string {
	return fmt.Sprintf("econ-%012d%s", tick, ext)
}

// Latest returns the path of the highest-tick snapshot in dir.
func Latest(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNoSnapshot
	}
	if err != nil {
		return "", err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "econ-") && strings.HasSuffix(e.Name(), ext) {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "", ErrNoSnapshot
	}
	sort.Strings(names)
	return filepath.Join(dir, names[len(names)-1]), nil
}

// Dir writes snapshots into a directory, keeping at most Keep files.
type Dir struct {
	Path  string
	RunID string
	Keep  int // 0 keeps everything
}

// WriteSnapshot writes w as the snapshot for its tick.
func (d *Dir) WriteSnapshot(w *economy.World) error {
	path := filepath.Join(d.Path, Name(w.Tick))
	if err := Write(path, FromWorld(w, d.RunID)); err != nil {
		return fmt.Errorf("snapshot tick %d: %w", w.Tick, err)
	}
	slog.Debug("snapshot written", "tick", w.Tick, "path", path)
	if d.Keep > 0 {
		d.prune()
	}
	return nil
}

func (d *Dir) prune() {
	entries, err := os.ReadDir(d.Path)
	if err != nil {
		return
	}
	var names []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "econ-") && strings.HasSuffix(e.Name(), ext) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for len(names) > d.Keep {
		if err := os.Remove(filepath.Join(d.Path, names[0])); err != nil {
			slog.Warn("snapshot prune failed", "file", names[0], "error", err)
		}
		names = names[1:]
	}
}
