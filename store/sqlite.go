// Package store persists colonies in SQLite. Each row holds the colony's
// full persisted surface as JSON plus a few columns for listing.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nstehr/vimy/vimy-colony/colony"
)

type Config struct {
	Path        string        `mapstructure:"path"`
	BusyTimeout time.Duration `mapstructure:"busy_timeout"`
}

func DefaultConfig() Config {
	return Config{Path: "vimy-colony.db", BusyTimeout: 5 * time.Second}
}

func (c Config) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("store path must not be empty")
	}
	if c.BusyTimeout < 0 {
		return fmt.Errorf("store busy_timeout must be >= 0")
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS colonies (
	id          TEXT PRIMARY KEY,
	personality TEXT NOT NULL,
	state       TEXT NOT NULL,
	tick        INTEGER NOT NULL DEFAULT 0,
	saved_at    TEXT NOT NULL,
	data        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_colonies_saved_at ON colonies(saved_at);
`

// SQLite implements colony.Repository.
type SQLite struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ colony.Repository = (*SQLite)(nil)

// Open opens (creating if needed) the database at cfg.Path and applies
// the schema.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*SQLite, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)", cfg.Path, cfg.BusyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open colony db: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init colony db: %w", err)
	}
	logger.Info("colony store opened", "path", cfg.Path)
	return &SQLite{db: db, logger: logger}, nil
}

func (s *SQLite) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Save upserts the snapshot.
func (s *SQLite) Save(ctx context.Context, snap colony.Snapshot) error {
	if snap.Colony.ID == "" {
		return fmt.Errorf("save colony: empty id")
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode colony %s: %w", snap.Colony.ID, err)
	}
	savedAt := snap.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO colonies (id, personality, state, tick, saved_at, data)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			personality = excluded.personality,
			state = excluded.state,
			tick = excluded.tick,
			saved_at = excluded.saved_at,
			data = excluded.data
	`, snap.Colony.ID, string(snap.Colony.Personality), string(snap.Colony.State), snap.Colony.Tick,
		savedAt.UTC().Format(time.RFC3339Nano), string(data))
	if err != nil {
		return fmt.Errorf("save colony %s: %w", snap.Colony.ID, err)
	}
	s.logger.Debug("colony saved", "colony", snap.Colony.ID, "tick", snap.Colony.Tick)
	return nil
}

// Load returns the snapshot for id, or an error wrapping
// colony.ErrNotFound.
func (s *SQLite) Load(ctx context.Context, id string) (colony.Snapshot, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM colonies WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return colony.Snapshot{}, fmt.Errorf("colony %s: %w", id, colony.ErrNotFound)
	}
	if err != nil {
		return colony.Snapshot{}, fmt.Errorf("load colony %s: %w", id, err)
	}
	var snap colony.Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return colony.Snapshot{}, fmt.Errorf("decode colony %s: %w", id, err)
	}
	return snap, nil
}

// List returns the stored colony ids in order.
func (s *SQLite) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM colonies ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list colonies: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan colony id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Summary is the listing row for one stored colony.
type Summary struct {
	ID          string    `json:"id"`
	Personality string    `json:"personality"`
	State       string    `json:"state"`
	Tick        int       `json:"tick"`
	SavedAt     time.Time `json:"savedAt"`
}

// Summaries lists every stored colony without decoding its state.
func (s *SQLite) Summaries(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, personality, state, tick, saved_at FROM colonies ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list colonies: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sm Summary
		var savedAt string
		if err := rows.Scan(&sm.ID, &sm.Personality, &sm.State, &sm.Tick, &savedAt); err != nil {
			return nil, fmt.Errorf("scan colony: %w", err)
		}
		sm.SavedAt, _ = time.Parse(time.RFC3339Nano, savedAt)
		out = append(out, sm)
	}
	return out, rows.Err()
}

// Delete removes id, returning an error wrapping colony.ErrNotFound when
// nothing was stored under it.
func (s *SQLite) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM colonies WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete colony %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete colony %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("colony %s: %w", id, colony.ErrNotFound)
	}
	return nil
}
