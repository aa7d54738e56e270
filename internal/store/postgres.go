// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver for goose
	"github.com/pressly/goose/v3"

	"github.com/gatewarden/gatewarden/internal/gate"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Postgres is the networked relational backend for multi-instance
// deployments. Schema changes ship as embedded goose migrations and are
// applied on open.
type Postgres struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

var _ Store = (*Postgres)(nil)

// OpenPostgres connects, pings, and migrates the schema.
func OpenPostgres(ctx context.Context, dsn string, log *slog.Logger) (*Postgres, error) {
	const op = "store.postgres.Open"
	if dsn == "" {
		return nil, gate.Ef(gate.KindInvalidRequest, op, "missing connection string")
	}
	if log == nil {
		log = slog.Default()
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, gate.E(gate.KindStorageUnavailable, op, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, gate.E(gate.KindStorageUnavailable, op, err)
	}
	if err := migrate(ctx, dsn); err != nil {
		pool.Close()
		return nil, gate.E(gate.KindStorageUnavailable, op, err)
	}

	log.Debug("postgres store open")
	return &Postgres{pool: pool, log: log}, nil
}

// migrate runs goose over a short-lived database/sql connection; the
// pgx pool stays dedicated to the query paths.
func migrate(ctx context.Context, dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck // migration-only handle

	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, "migrations")
}

// Save upserts by scan ID.
func (p *Postgres) Save(ctx context.Context, r *gate.ScanResult) error {
	const op = "store.postgres.Save"
	if r == nil || r.ScanID == "" {
		return gate.Ef(gate.KindInvalidRequest, op, "missing scan id")
	}
	payload, err := encode(r)
	if err != nil {
		return gate.E(gate.KindInternal, op, err)
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO scans (scan_id, created_at, completed_at, overall_score, incomplete, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (scan_id) DO UPDATE SET
			created_at    = excluded.created_at,
			completed_at  = excluded.completed_at,
			overall_score = excluded.overall_score,
			incomplete    = excluded.incomplete,
			payload       = excluded.payload`,
		r.ScanID, r.CreatedAt, completedAt(r), r.OverallScore, r.Incomplete, payload)
	if err != nil {
		return gate.E(gate.KindStorageUnavailable, op, err)
	}
	return nil
}

// Get returns the stored result or ErrNotFound.
func (p *Postgres) Get(ctx context.Context, scanID string) (*gate.ScanResult, error) {
	const op = "store.postgres.Get"
	var payload []byte
	err := p.pool.QueryRow(ctx, `SELECT payload FROM scans WHERE scan_id = $1`, scanID).Scan(&payload)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
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
func (p *Postgres) Update(ctx context.Context, r *gate.ScanResult) error {
	const op = "store.postgres.Update"
	if r == nil || r.ScanID == "" {
		return gate.Ef(gate.KindInvalidRequest, op, "missing scan id")
	}
	payload, err := encode(r)
	if err != nil {
		return gate.E(gate.KindInternal, op, err)
	}
	tag, err := p.pool.Exec(ctx, `
		UPDATE scans SET
			created_at    = $2,
			completed_at  = $3,
			overall_score = $4,
			incomplete    = $5,
			payload       = $6
		WHERE scan_id = $1`,
		r.ScanID, r.CreatedAt, completedAt(r), r.OverallScore, r.Incomplete, payload)
	if err != nil {
		return gate.E(gate.KindStorageUnavailable, op, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the row; missing IDs are a no-op.
func (p *Postgres) Delete(ctx context.Context, scanID string) error {
	const op = "store.postgres.Delete"
	if _, err := p.pool.Exec(ctx, `DELETE FROM scans WHERE scan_id = $1`, scanID); err != nil {
		return gate.E(gate.KindStorageUnavailable, op, err)
	}
	return nil
}

// List returns stored results newest-first.
func (p *Postgres) List(ctx context.Context, f Filter) ([]*gate.ScanResult, error) {
	const op = "store.postgres.List"
	query := `SELECT payload FROM scans`
	args := []any{}
	if f.Incomplete != nil {
		query += ` WHERE incomplete = $1`
		args = append(args, *f.Incomplete)
	}
	query += ` ORDER BY created_at DESC, scan_id ASC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, gate.E(gate.KindStorageUnavailable, op, err)
	}
	defer rows.Close()

	var out []*gate.ScanResult
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, gate.E(gate.KindStorageUnavailable, op, err)
		}
		r, err := decode(payload)
		if err != nil {
			return nil, gate.E(gate.KindInternal, op, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, gate.E(gate.KindStorageUnavailable, op, err)
	}
	return out, nil
}

// Count returns how many rows match the filter.
func (p *Postgres) Count(ctx context.Context, f Filter) (int, error) {
	const op = "store.postgres.Count"
	query := `SELECT COUNT(*) FROM scans`
	args := []any{}
	if f.Incomplete != nil {
		query += ` WHERE incomplete = $1`
		args = append(args, *f.Incomplete)
	}
	var n int
	if err := p.pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, gate.E(gate.KindStorageUnavailable, op, err)
	}
	return n, nil
}

// Cleanup removes rows created before the cutoff.
func (p *Postgres) Cleanup(ctx context.Context, olderThan time.Time) (int, error) {
	const op = "store.postgres.Cleanup"
	tag, err := p.pool.Exec(ctx, `DELETE FROM scans WHERE created_at < $1`, olderThan)
	if err != nil {
		return 0, gate.E(gate.KindStorageUnavailable, op, err)
	}
	return int(tag.RowsAffected()), nil
}

// Stats summarizes the table.
func (p *Postgres) Stats(ctx context.Context) (Stats, error) {
	const op = "store.postgres.Stats"
	var (
		scans, incomplete int
		oldest, newest    *time.Time
	)
	err := p.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE incomplete),
		       MIN(created_at),
		       MAX(created_at)
		FROM scans`).Scan(&scans, &incomplete, &oldest, &newest)
	if err != nil {
		return Stats{}, gate.E(gate.KindStorageUnavailable, op, err)
	}
	st := Stats{Backend: string(BackendSQL), Scans: scans, Incomplete: incomplete}
	if oldest != nil {
		st.Oldest = oldest.UTC()
	}
	if newest != nil {
		st.Newest = newest.UTC()
	}
	return st, nil
}

// Health pings the server.
func (p *Postgres) Health(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return gate.E(gate.KindStorageUnavailable, "store.postgres.Health", err)
	}
	return nil
}

// Close releases the connection pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

// completedAt maps the zero time onto SQL NULL.
func completedAt(r *gate.ScanResult) *time.Time {
	if r.CompletedAt.IsZero() {
		return nil
	}
	t := r.CompletedAt
	return &t
}
