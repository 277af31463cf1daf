package keymap

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	fx "github.com/robotalks/roba/pkg/framework"
)

var storeSchema = []string{`
CREATE TABLE IF NOT EXISTS key_overrides (
	layer INTEGER NOT NULL,
	row INTEGER NOT NULL,
	col INTEGER NOT NULL,
	action TEXT NOT NULL,
	PRIMARY KEY (layer, row, col)
)`, `
CREATE TABLE IF NOT EXISTS encoder_overrides (
	layer INTEGER NOT NULL,
	idx INTEGER NOT NULL,
	clockwise TEXT NOT NULL,
	counter_clockwise TEXT NOT NULL,
	PRIMARY KEY (layer, idx)
)`}

// Store persists keymap edits made through the accessor in SQLite.
// On startup the overrides are replayed on top of the loaded keymap.
type Store struct {
	sqlDB *sql.DB
}

// OpenStore opens (and creates) the override database at path.
func OpenStore(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	for _, stmt := range storeSchema {
		if _, err := sqlDB.Exec(stmt); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// SaveChange records one accessor write.
func (s *Store) SaveChange(ctx context.Context, c Change) error {
	if c.Encoder >= 0 {
		_, err := s.sqlDB.ExecContext(ctx,
			`INSERT INTO encoder_overrides (layer, idx, clockwise, counter_clockwise) VALUES (?, ?, ?, ?)
			 ON CONFLICT(layer, idx) DO UPDATE SET clockwise = excluded.clockwise, counter_clockwise = excluded.counter_clockwise`,
			c.Layer, c.Encoder, c.Encoders.Clockwise.String(), c.Encoders.CounterClockwise.String())
		if err != nil {
			return fmt.Errorf("save encoder override: %w", err)
		}
		return nil
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO key_overrides (layer, row, col, action) VALUES (?, ?, ?, ?)
		 ON CONFLICT(layer, row, col) DO UPDATE SET action = excluded.action`,
		c.Layer, c.Row, c.Col, c.Action.String())
	if err != nil {
		return fmt.Errorf("save key override: %w", err)
	}
	return nil
}

// Overrides counts recorded key and encoder overrides.
func (s *Store) Overrides(ctx context.Context) (keys, encoders int, err error) {
	if err = s.sqlDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM key_overrides`).Scan(&keys); err != nil {
		return
	}
	err = s.sqlDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM encoder_overrides`).Scan(&encoders)
	return
}

// ApplyTo replays all overrides onto m. Overrides not fitting m are
// skipped and reported in the returned error.
func (s *Store) ApplyTo(ctx context.Context, m *Keymap) error {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT layer, row, col, action FROM key_overrides ORDER BY layer, row, col`)
	if err != nil {
		return fmt.Errorf("query key overrides: %w", err)
	}
	type keyOverride struct {
		layer, row, col int
		action          string
	}
	var keys []keyOverride
	for rows.Next() {
		var o keyOverride
		if err := rows.Scan(&o.layer, &o.row, &o.col, &o.action); err != nil {
			rows.Close()
			return fmt.Errorf("scan key override: %w", err)
		}
		keys = append(keys, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = s.sqlDB.QueryContext(ctx, `SELECT layer, idx, clockwise, counter_clockwise FROM encoder_overrides ORDER BY layer, idx`)
	if err != nil {
		return fmt.Errorf("query encoder overrides: %w", err)
	}
	type encoderOverride struct {
		layer, index int
		cw, ccw      string
	}
	var encoders []encoderOverride
	for rows.Next() {
		var o encoderOverride
		if err := rows.Scan(&o.layer, &o.index, &o.cw, &o.ccw); err != nil {
			rows.Close()
			return fmt.Errorf("scan encoder override: %w", err)
		}
		encoders = append(encoders, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	var errs fx.AggregatedError
	for _, o := range keys {
		action, err := ParseAction(o.action)
		if err == nil {
			err = m.Set(o.layer, o.row, o.col, action)
		}
		if err != nil {
			errs.Add(err)
		}
	}
	for _, o := range encoders {
		var actions EncoderActions
		var err error
		if actions.Clockwise, err = ParseAction(o.cw); err == nil {
			if actions.CounterClockwise, err = ParseAction(o.ccw); err == nil {
				err = m.SetEncoder(o.layer, o.index, actions)
			}
		}
		if err != nil {
			errs.Add(err)
		}
	}
	return errs.Aggregate()
}

// Reset removes all overrides.
func (s *Store) Reset(ctx context.Context) error {
	for _, table := range []string{"key_overrides", "encoder_overrides"} {
		if _, err := s.sqlDB.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("reset %s: %w", table, err)
		}
	}
	return nil
}
