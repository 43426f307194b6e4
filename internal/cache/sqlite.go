package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// DefaultSQLiteDSN keeps the database in memory, shared between the
// connections of one process.
const DefaultSQLiteDSN = "file:feedpreview?mode=memory&cache=shared"

// SQLite is a Store backed by a SQLite table. Values are stored as JSON.
// The table is emptied when the store is opened, so nothing outlives the
// process even when the DSN names a file.
type SQLite[V any] struct {
	db         *sql.DB
	ttl        time.Duration
	now        func() time.Time
	maxEntries int
	log        zerolog.Logger
}

// NewSQLite opens dsn, creates the Entries table if needed and clears it.
func NewSQLite[V any](dsn string, ttl time.Duration, logger zerolog.Logger, opts ...Option) (*SQLite[V], error) {
	if dsn == "" {
		dsn = DefaultSQLiteDSN
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite cache: %w", err)
	}
	// One connection keeps a memory database alive and serializes writers.
	db.SetMaxOpenConns(1)

	statement, err := db.Prepare("CREATE TABLE IF NOT EXISTS Entries (Key TEXT PRIMARY KEY, StoredAt INTEGER NOT NULL, Value BLOB NOT NULL)")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("prepare sqlite schema: %w", err)
	}
	defer statement.Close()

	if _, err := statement.Exec(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create sqlite schema: %w", err)
	}

	if _, err := db.Exec("DELETE FROM Entries"); err != nil {
		db.Close()
		return nil, fmt.Errorf("reset sqlite cache: %w", err)
	}

	o := buildOptions(opts)
	return &SQLite[V]{
		db:         db,
		ttl:        normalizeTTL(ttl),
		now:        o.now,
		maxEntries: o.maxEntries,
		log:        logger.With().Str("component", "sqlite-cache").Logger(),
	}, nil
}

// TTL returns the configured time-to-live.
func (c *SQLite[V]) TTL() time.Duration {
	return c.ttl
}

func (c *SQLite[V]) Get(ctx context.Context, key string) (V, bool) {
	var (
		zero     V
		storedAt int64
		raw      []byte
	)
	row := c.db.QueryRowContext(ctx, "SELECT StoredAt, Value FROM Entries WHERE Key = ?", key)
	err := row.Scan(&storedAt, &raw)
	if err == sql.ErrNoRows {
		return zero, false
	}
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache read failed")
		return zero, false
	}

	if expired(time.Unix(0, storedAt), c.now(), c.ttl) {
		c.Erase(ctx, key)
		return zero, false
	}

	var value V
	if err := json.Unmarshal(raw, &value); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache entry undecodable, dropping")
		c.Erase(ctx, key)
		return zero, false
	}
	return value, true
}

func (c *SQLite[V]) Put(ctx context.Context, key string, value V) {
	raw, err := json.Marshal(value)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache value not serializable")
		return
	}

	_, err = c.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO Entries (Key, StoredAt, Value) VALUES (?, ?, ?)",
		key, c.now().UnixNano(), raw)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache write failed")
		return
	}

	if c.maxEntries > 0 {
		c.trim(ctx, key)
	}
}

// trim evicts the oldest rows beyond maxEntries, never the row just written.
func (c *SQLite[V]) trim(ctx context.Context, keep string) {
	_, err := c.db.ExecContext(ctx, `DELETE FROM Entries WHERE Key IN (
		SELECT Key FROM Entries WHERE Key != ? ORDER BY StoredAt DESC LIMIT -1 OFFSET ?)`,
		keep, c.maxEntries-1)
	if err != nil {
		c.log.Warn().Err(err).Msg("cache trim failed")
	}
}

func (c *SQLite[V]) Erase(ctx context.Context, key string) {
	if _, err := c.db.ExecContext(ctx, "DELETE FROM Entries WHERE Key = ?", key); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache erase failed")
	}
}

func (c *SQLite[V]) Clear(ctx context.Context) {
	if _, err := c.db.ExecContext(ctx, "DELETE FROM Entries"); err != nil {
		c.log.Warn().Err(err).Msg("cache clear failed")
	}
}

// Len counts stored rows, including expired ones not yet swept.
func (c *SQLite[V]) Len(ctx context.Context) int {
	var n int
	if err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM Entries").Scan(&n); err != nil {
		c.log.Warn().Err(err).Msg("cache count failed")
		return 0
	}
	return n
}

func (c *SQLite[V]) Sweep(ctx context.Context) int {
	cutoff := c.now().Add(-c.ttl).UnixNano()
	res, err := c.db.ExecContext(ctx, "DELETE FROM Entries WHERE StoredAt <= ?", cutoff)
	if err != nil {
		c.log.Warn().Err(err).Msg("cache sweep failed")
		return 0
	}
	n, _ := res.RowsAffected()
	return int(n)
}

// Ping checks that the database is reachable.
func (c *SQLite[V]) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *SQLite[V]) Close() error {
	return c.db.Close()
}

var (
	_ Store[int] = (*SQLite[int])(nil)
	_ Sweeper    = (*SQLite[int])(nil)
)
