package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/instrumentkit/instrumentkit/pkg/types"
)

//go:embed migrations/*.sql
var migrations embed.FS

// ErrNotFound is returned by Get when no report has the requested id.
var ErrNotFound = errors.New("store: report not found")

// Store is the run report history. It is safe for concurrent use.
type Store struct {
	db        *sql.DB
	retention time.Duration
	now       func() time.Time // injectable for deterministic tests
}

// Open opens or creates the database at path and applies pending migrations.
// Reports older than retention are removed by Evict; zero keeps everything.
func Open(path string, retention time.Duration) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("store: create dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %q: %w", path, err)
	}
	// One connection serialises writers and keeps ":memory:" a single database.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping %q: %w", path, err)
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, retention: retention, now: time.Now}, nil
}

func migrate(db *sql.DB) error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite"); err != nil {
		return fmt.Errorf("store: set dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Version returns the applied schema version.
func (s *Store) Version() (int64, error) {
	return goose.GetDBVersion(s.db)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put stores rep, replacing any report with the same id.
func (s *Store) Put(ctx context.Context, rep *types.RunReport) error {
	if err := rep.Validate(); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	body, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", rep.ID, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO reports (id, device, scenario, started_at, state, score, body)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rep.ID, rep.Device, rep.Scenario, rep.StartedAt.UnixMilli(),
		rep.Health.State, rep.Health.Score, string(body))
	if err != nil {
		return fmt.Errorf("store: insert %s: %w", rep.ID, err)
	}
	return nil
}

// Get returns the report with the given id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*types.RunReport, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM reports WHERE id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get %s: %w", id, err)
	}
	return decode(body)
}

// List returns reports newest first. An empty device lists every device;
// limit <= 0 means no limit.
func (s *Store) List(ctx context.Context, device string, limit int) ([]*types.RunReport, error) {
	q := `SELECT body FROM reports`
	var args []any
	if device != "" {
		q += ` WHERE device = ?`
		args = append(args, device)
	}
	q += ` ORDER BY started_at DESC, id DESC`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.query(ctx, q, args...)
}

// Latest returns the newest report of every device, ordered by device.
func (s *Store) Latest(ctx context.Context) ([]*types.RunReport, error) {
	return s.query(ctx, `
		SELECT body FROM (
			SELECT body, device, ROW_NUMBER() OVER (
				PARTITION BY device ORDER BY started_at DESC, id DESC
			) AS rn
			FROM reports
		) WHERE rn = 1 ORDER BY device`)
}

// RunCounts returns the number of stored reports per device.
func (s *Store) RunCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT device, COUNT(*) FROM reports GROUP BY device`)
	if err != nil {
		return nil, fmt.Errorf("store: count runs: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var device string
		var n int
		if err := rows.Scan(&device, &n); err != nil {
			return nil, fmt.Errorf("store: count runs: %w", err)
		}
		out[device] = n
	}
	return out, rows.Err()
}

// Count returns the total number of stored reports.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reports`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count: %w", err)
	}
	return n, nil
}

// Evict removes reports that started before now minus the retention window
// and returns how many were removed.
func (s *Store) Evict(ctx context.Context, now time.Time) (int64, error) {
	if s.retention <= 0 {
		return 0, nil
	}
	cutoff := now.Add(-s.retention).UnixMilli()
	res, err := s.db.ExecContext(ctx, `DELETE FROM reports WHERE started_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("store: evict: %w", err)
	}
	return res.RowsAffected()
}

// Run evicts expired reports every interval until ctx is cancelled.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := s.Evict(ctx, s.now())
			if err != nil {
				slog.Error("store: eviction failed", "err", err)
				continue
			}
			if n > 0 {
				slog.Debug("store: evicted expired reports", "count", n)
			}
		}
	}
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]*types.RunReport, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query: %w", err)
	}
	defer rows.Close()

	out := []*types.RunReport{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("store: scan: %w", err)
		}
		rep, err := decode(body)
		if err != nil {
			return nil, err
		}
		out = append(out, rep)
	}
	return out, rows.Err()
}

func decode(body string) (*types.RunReport, error) {
	var rep types.RunReport
	if err := json.Unmarshal([]byte(body), &rep); err != nil {
		return nil, fmt.Errorf("store: decode report: %w", err)
	}
	return &rep, nil
}
