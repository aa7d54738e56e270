// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // pure-Go driver, registers as "sqlite"

	"github.com/gatewarden/gatewarden/internal/gate"
)

// sqliteSchema is applied on open. Timestamps are stored as Unix
// nanoseconds so ordering and cutoff comparisons stay integer-exact.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS scans (
	scan_id       TEXT PRIMARY KEY,
	created_ns    INTEGER NOT NULL,
	completed_ns  INTEGER NOT NULL DEFAULT 0,
	overall_score REAL    NOT NULL DEFAULT 0,
	incomplete    INTEGER NOT NULL DEFAULT 0,
	payload       BLOB    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_scans_created ON scans (created_ns DESC, scan_id ASC);
`

// SQLite is the embedded single-file backend, the default for single-
// instance deployments.
type SQLite struct {
	db   *sqlx.DB
	path string
	log  *slog.Logger
}

var _ Store = (*SQLite)(nil)

// OpenSQLite opens or creates the database file at path and ensures the
// schema. The parent directory is created as needed.
func OpenSQLite(path string, log *slog.Logger) (*SQLite, error) {
	const op = "store.sqlite.Open"
	if path == "" {
		return nil, gate.Ef(gate.KindInvalidRequest, op, "missing database path")
	}
	if log == nil {
		log = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, gate.E(gate.KindStorageUnavailable, op, err).WithPath(path)
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, gate.E(gate.KindStorageUnavailable, op, err).WithPath(path)
	}
	// A single writer connection sidesteps SQLITE_BUSY under the
	// concurrent-scan pipeline; reads multiplex over the same handle.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, gate.E(gate.KindStorageUnavailable, op, err).WithPath(path)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, gate.E(gate.KindStorageUnavailable, op, err).WithPath(path)
	}

	log.Debug("sqlite store open", "path", path)
	return &SQLite{db: db, path: path, log: log}, nil
}

type sqliteRow struct {
	ScanID     string  `db:"scan_id"`
	CreatedNS  int64   `db:"created_ns"`
	CompleteNS int64   `db:"completed_ns"`
	Score      float64 `db:"overall_score"`
	Incomplete bool    `db:"incomplete"`
	Payload    []byte  `db:"payload"`
}

func sqliteRowFor(r *gate.ScanResult) (*sqliteRow, error) {
	payload, err := encode(r)
	if err != nil {
		return nil, err
	}
	row := &sqliteRow{
		ScanID:     r.ScanID,
		CreatedNS:  r.CreatedAt.UnixNano(),
		Score:      r.OverallScore,
		Incomplete: r.Incomplete,
		Payload:    payload,
	}
	if !r.CompletedAt.IsZero() {
		row.CompleteNS = r.CompletedAt.UnixNano()
	}
	return row, nil
}

// Save upserts by scan ID.
func (s *SQLite) Save(ctx context.Context, r *gate.ScanResult) error {
	const op = "store.sqlite.Save"
	if r == nil || r.ScanID == "" {
		return gate.Ef(gate.KindInvalidRequest, op, "missing scan id")
	}
	row, err := sqliteRowFor(r)
	if err != nil {
		return gate.E(gate.KindInternal, op, err)
	}
	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO scans (scan_id, created_ns, completed_ns, overall_score, incomplete, payload)
		VALUES (:scan_id, :created_ns, :completed_ns, :overall_score, :incomplete, :payload)
		ON CONFLICT (scan_id) DO UPDATE SET
			created_ns    = excluded.created_ns,
			completed_ns  = excluded.completed_ns,
			overall_score = excluded.overall_score,
			incomplete    = excluded.incomplete,
			payload       = excluded.payload`, row)
	if err != nil {
		return gate.E(gate.KindStorageUnavailable, op, err)
	}
	return nil
}

// Get returns the stored result or ErrNotFound.
func (s *SQLite) Get(ctx context.Context, scanID string) (*gate.ScanResult, error) {
	const op = "store.sqlite.Get"
	var payload []byte
	err := s.db.GetContext(ctx, &payload, `SELECT payload FROM scans WHERE scan_id = ?`, scanID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, ErrNotFound
	case err != nil:
		return nil, gate.E(gate.KindStorageUnavailable, op, err)
	}
	r, err := decode(payload)
	if err != nil {
		return nil, gate.E(gate.KindInternal, op, err)
	}
	return r, nil
}

// Update rewrites an existing row; ErrNotFound when the ID is absent.
func (s *SQLite) Update(ctx context.Context, r *gate.ScanResult) error {
	const op = "store.sqlite.Update"
	if r == nil || r.ScanID == "" {
		return gate.Ef(gate.KindInvalidRequest, op, "missing scan id")
	}
	row, err := sqliteRowFor(r)
	if err != nil {
		return gate.E(gate.KindInternal, op, err)
	}
	res, err := s.db.NamedExecContext(ctx, `
		UPDATE scans SET
			created_ns    = :created_ns,
			completed_ns  = :completed_ns,
			overall_score = :overall_score,
			incomplete    = :incomplete,
			payload       = :payload
		WHERE scan_id = :scan_id`, row)
	if err != nil {
		return gate.E(gate.KindStorageUnavailable, op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return gate.E(gate.KindStorageUnavailable, op, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the row; missing IDs are a no-op.
func (s *SQLite) Delete(ctx context.Context, scanID string) error {
	const op = "store.sqlite.Delete"
	if _, err := s.db.ExecContext(ctx, `DELETE FROM scans WHERE scan_id = ?`, scanID); err != nil {
		return gate.E(gate.KindStorageUnavailable, op, err)
	}
	return nil
}

// List returns stored results newest-first.
func (s *SQLite) List(ctx context.Context, f Filter) ([]*gate.ScanResult, error) {
	const op = "store.sqlite.List"
	query := `SELECT payload FROM scans`
	args := []any{}
	if f.Incomplete != nil {
		query += ` WHERE incomplete = ?`
		args = append(args, *f.Incomplete)
	}
	query += ` ORDER BY created_ns DESC, scan_id ASC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	} else if f.Offset > 0 {
		// SQLite requires LIMIT before OFFSET; -1 means unbounded.
		query += ` LIMIT -1`
	}
	if f.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, f.Offset)
	}

	var payloads [][]byte
	if err := s.db.SelectContext(ctx, &payloads, query, args...); err != nil {
		return nil, gate.E(gate.KindStorageUnavailable, op, err)
	}
	out := make([]*gate.ScanResult, 0, len(payloads))
	for _, p := range payloads {
		r, err := decode(p)
		if err != nil {
			return nil, gate.E(gate.KindInternal, op, err)
		}
		out = append(out, r)
	}
	return out, nil
}

// Count returns how many rows match the filter.
func (s *SQLite) Count(ctx context.Context, f Filter) (int, error) {
	const op = "store.sqlite.Count"
	query := `SELECT COUNT(*) FROM scans`
	args := []any{}
	if f.Incomplete != nil {
		query += ` WHERE incomplete = ?`
		args = append(args, *f.Incomplete)
	}
	var n int
	if err := s.db.GetContext(ctx, &n, query, args...); err != nil {
		return 0, gate.E(gate.KindStorageUnavailable, op, err)
	}
	return n, nil
}

// Cleanup removes rows created before the cutoff.
func (s *SQLite) Cleanup(ctx context.Context, olderThan time.Time) (int, error) {
	const op = "store.sqlite.Cleanup"
	res, err := s.db.ExecContext(ctx, `DELETE FROM scans WHERE created_ns < ?`, olderThan.UnixNano())
	if err != nil {
		return 0, gate.E(gate.KindStorageUnavailable, op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, gate.E(gate.KindStorageUnavailable, op, err)
	}
	return int(n), nil
}

// Stats summarizes the table.
func (s *SQLite) Stats(ctx context.Context) (Stats, error) {
	const op = "store.sqlite.Stats"
	var row struct {
		Scans      int   `db:"scans"`
		Incomplete int   `db:"incomplete"`
		OldestNS   int64 `db:"oldest_ns"`
		NewestNS   int64 `db:"newest_ns"`
	}
	err := s.db.GetContext(ctx, &row, `
		SELECT COUNT(*)                                     AS scans,
		       COALESCE(SUM(incomplete), 0)                 AS incomplete,
		       COALESCE(MIN(created_ns), 0)                 AS oldest_ns,
		       COALESCE(MAX(created_ns), 0)                 AS newest_ns
		FROM scans`)
	if err != nil {
		return Stats{}, gate.E(gate.KindStorageUnavailable, op, err)
	}
	st := Stats{Backend: string(BackendKV), Scans: row.Scans, Incomplete: row.Incomplete}
	if row.OldestNS > 0 {
		st.Oldest = time.Unix(0, row.OldestNS).UTC()
	}
	if row.NewestNS > 0 {
		st.Newest = time.Unix(0, row.NewestNS).UTC()
	}
	return st, nil
}

// Health pings the database file.
func (s *SQLite) Health(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return gate.E(gate.KindStorageUnavailable, "store.sqlite.Health", err).WithPath(s.path)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}
