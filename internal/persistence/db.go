// Package persistence stores the economy in SQLite or PostgreSQL.
// Every tick is committed in a single transaction.
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/mini-econ/internal/economy"
)

// ErrNoWorld is returned by LoadWorld when nothing has been saved yet.
var ErrNoWorld = errors.New("no saved world")

// DB wraps a database connection for economy persistence.
type DB struct {
	conn    *sqlx.DB
	dialect string // "sqlite" or "postgres"

	mu      sync.Mutex
	txSaved int // player transactions already written
}

// Open connects to dsn. postgres:// and postgresql:// URLs use pgx;
// anything else is a SQLite file path.
func Open(ctx context.Context, dsn string) (*DB, error) {
	driver, dialect, source := "sqlite", "sqlite", dsn
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		driver, dialect = "pgx", "postgres"
	} else {
		if dir := filepath.Dir(dsn); dir != "." && dsn != ":memory:" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create db directory: %w", err)
			}
		}
		source = dsn + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	conn, err := sqlx.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if dialect == "sqlite" {
		conn.SetMaxOpenConns(1)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect, err)
	}

	db := &DB{conn: conn, dialect: dialect}
	if err := db.migrate(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if err := db.conn.GetContext(ctx, &db.txSaved, "SELECT COUNT(*) FROM player_transactions"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("count transactions: %w", err)
	}
	slog.Info("database opened", "dialect", dialect)
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Dialect returns "sqlite" or "postgres".
func (db *DB) Dialect() string { return db.dialect }

func (db *DB) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", firstLine(stmt), err)
		}
	}
	return nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// CommitTick writes the whole world and the tick's new history rows in one
// transaction. Rows are upserted, never deleted.
func (db *DB) CommitTick(ctx context.Context, w *economy.World, history []economy.PriceHistory) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, t := range tables {
		rows := t.rows(w)
		if len(rows) == 0 {
			continue
		}
		query := upsertQuery(t.name, t.key, t.cols)
		for _, row := range rows {
			if _, err := tx.NamedExecContext(ctx, query, row); err != nil {
				return fmt.Errorf("upsert %s: %w", t.name, err)
			}
		}
	}

	if len(history) > 0 {
		query := insertIgnoreQuery("price_history", []string{"listing_id", "tick"}, historyCols)
		for _, h := range history {
			if _, err := tx.NamedExecContext(ctx, query, historyToRow(h)); err != nil {
				return fmt.Errorf("insert price history: %w", err)
			}
		}
	}

	if n := len(w.Transactions); n > db.txSaved {
		query := insertIgnoreQuery("player_transactions", []string{"seq"}, transactionCols)
		for i := db.txSaved; i < n; i++ {
			if _, err := tx.NamedExecContext(ctx, query, transactionToRow(i, w.Transactions[i])); err != nil {
				return fmt.Errorf("insert transaction %d: %w", i, err)
			}
		}
	}

	meta := map[string]string{
		"tick":          strconv.FormatUint(w.Tick, 10),
		"now":           strconv.FormatInt(w.Now.Unix(), 10),
		"next_listing":  strconv.FormatUint(w.Counters.NextListing, 10),
		"next_shipment": strconv.FormatUint(w.Counters.NextShipment, 10),
	}
	for _, k := range []string{"tick", "now", "next_listing", "next_shipment"} {
		if err := saveMeta(ctx, tx, k, meta[k]); err != nil {
			return fmt.Errorf("save meta %s: %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tick %d: %w", w.Tick, err)
	}
	db.txSaved = len(w.Transactions)
	return nil
}

// SaveMeta stores a key-value pair in world metadata.
func (db *DB) SaveMeta(ctx context.Context, key, value string) error {
	return saveMeta(ctx, db.conn, key, value)
}

func saveMeta(ctx context.Context, ex sqlx.ExtContext, key, value string) error {
	_, err := ex.ExecContext(ctx, ex.Rebind(
		"INSERT INTO world_meta (key, value) VALUES (?, ?) ON CONFLICT (key) DO UPDATE SET value = excluded.value"),
		key, value)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := db.conn.GetContext(ctx, &value, db.conn.Rebind("SELECT value FROM world_meta WHERE key = ?"), key)
	return value, err
}

// LoadWorld reads the committed world.
func (db *DB) LoadWorld(ctx context.Context) (*economy.World, error) {
	tickStr, err := db.GetMeta(ctx, "tick")
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoWorld
	}
	if err != nil {
		return nil, fmt.Errorf("load tick: %w", err)
	}

	w := economy.NewWorld()
	if w.Tick, err = strconv.ParseUint(tickStr, 10, 64); err != nil {
		return nil, fmt.Errorf("parse tick: %w", err)
	}
	nowStr, err := db.GetMeta(ctx, "now")
	if err != nil {
		return nil, fmt.Errorf("load now: %w", err)
	}
	secs, err := strconv.ParseInt(nowStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse now: %w", err)
	}
	w.Now = fromUnix(secs)

	for _, t := range tables {
		if err := t.load(ctx, db.conn, w); err != nil {
			return nil, fmt.Errorf("load %s: %w", t.name, err)
		}
	}
	if err := db.loadLastSnapshots(ctx, w); err != nil {
		return nil, err
	}
	if err := db.loadTransactions(ctx, w); err != nil {
		return nil, err
	}

	// Counters persisted with the tick win over those derived from rows, so
	// ids are never reused.
	w.Reindex()
	for key, dst := range map[string]*uint64{"next_listing": &w.Counters.NextListing, "next_shipment": &w.Counters.NextShipment} {
		if v, err := db.GetMeta(ctx, key); err == nil {
			if n, err := strconv.ParseUint(v, 10, 64); err == nil && n > *dst {
				*dst = n
			}
		}
	}

	slog.Info("world loaded", "tick", w.Tick, "listings", len(w.Listings), "shipments", len(w.Shipments))
	return w, nil
}

func (db *DB) loadLastSnapshots(ctx context.Context, w *economy.World) error {
	var rows []historyRow
	err := db.conn.SelectContext(ctx, &rows, `
		SELECT h.listing_id, h.tick, h.price, h.quantity, h.recorded_at
		FROM price_history h
		JOIN (SELECT listing_id, MAX(tick) AS tick FROM price_history GROUP BY listing_id) latest
		  ON latest.listing_id = h.listing_id AND latest.tick = h.tick`)
	if err != nil {
		return fmt.Errorf("load last snapshots: %w", err)
	}
	for _, r := range rows {
		w.LastSnapshot[economy.ListingID(r.ListingID)] = economy.PriceSnapshot{Price: r.Price, Quantity: r.Quantity}
	}
	return nil
}

func (db *DB) loadTransactions(ctx context.Context, w *economy.World) error {
	var rows []transactionRow
	if err := db.conn.SelectContext(ctx, &rows, "SELECT "+strings.Join(transactionCols, ", ")+" FROM player_transactions ORDER BY seq"); err != nil {
		return fmt.Errorf("load transactions: %w", err)
	}
	w.Transactions = make([]economy.PlayerTransaction, 0, len(rows))
	for _, r := range rows {
		w.Transactions = append(w.Transactions, r.toTransaction())
	}
	db.mu.Lock()
	db.txSaved = len(rows)
	db.mu.Unlock()
	return nil
}

// History returns the most recent price history rows for a listing, newest first.
func (db *DB) History(ctx context.Context, listing economy.ListingID, limit int) ([]economy.PriceHistory, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []historyRow
	err := db.conn.SelectContext(ctx, &rows, db.conn.Rebind(
		"SELECT "+strings.Join(historyCols, ", ")+" FROM price_history WHERE listing_id = ? ORDER BY tick DESC LIMIT ?"),
		uint64(listing), limit)
	if err != nil {
		return nil, fmt.Errorf("history for listing %d: %w", listing, err)
	}
	out := make([]economy.PriceHistory, len(rows))
	for i, r := range rows {
		out[i] = r.toHistory()
	}
	return out, nil
}

func upsertQuery(table string, key, cols []string) string {
	keySet := make(map[string]bool, len(key))
	for _, k := range key {
		keySet[k] = true
	}
	var sets []string
	for _, c := range cols {
		if !keySet[c] {
			sets = append(sets, c+" = excluded."+c)
		}
	}
	return fmt.Sprintf("%s ON CONFLICT (%s) DO UPDATE SET %s",
		namedInsert(table, cols), strings.Join(key, ", "), strings.Join(sets, ", "))
}

func insertIgnoreQuery(table string, key, cols []string) string {
	return fmt.Sprintf("%s ON CONFLICT (%s) DO NOTHING", namedInsert(table, cols), strings.Join(key, ", "))
}

func namedInsert(table string, cols []string) string {
	named := make([]string, len(cols))
	for i, c := range cols {
		named[i] = ":" + c
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), strings.Join(named, ", "))
}
