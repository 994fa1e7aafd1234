// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/lead-enricher/internal/enrichment"
)

const defaultTable = "enriched_places"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PlaceStoreConfig controls the Postgres connection pool used for place rows.
type PlaceStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgPool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

// PlaceStore writes enriched places into Postgres, one row per job and list
// position. Provider ids are not unique within a job.
type PlaceStore struct {
	pool  pgPool
	table string
	clock enrichment.Clock
}

// NewPlaceStore connects a pool using the provided config.
func NewPlaceStore(ctx context.Context, cfg PlaceStoreConfig, clock enrichment.Clock) (*PlaceStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewPlaceStoreWithPool(pool, cfg.Table, clock)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewPlaceStoreWithPool constructs a store from an existing pool.
func NewPlaceStoreWithPool(pool pgPool, table string, clock enrichment.Clock) (*PlaceStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	if clock == nil {
		return nil, errors.New("clock is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &PlaceStore{pool: pool, table: table, clock: clock}, nil
}

// EnsureSchema creates the table when it does not exist.
func (s *PlaceStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	job_id       TEXT NOT NULL,
	place_id     TEXT NOT NULL,
	position     INTEGER NOT NULL,
	name         TEXT NOT NULL,
	address      TEXT NOT NULL,
	rating       DOUBLE PRECISION,
	phone        TEXT NOT NULL,
	website      TEXT NOT NULL,
	email        TEXT NOT NULL,
	instagram    TEXT NOT NULL,
	facebook     TEXT NOT NULL,
	outcome      TEXT NOT NULL,
	status_code  INTEGER NOT NULL,
	fetch_error  TEXT NOT NULL,
	enriched_at  TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (job_id, position)
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s table: %w", s.table, err)
	}
	return nil
}

// StorePlaces replaces the job's rows with places, in list order, inside one
// transaction.
func (s *PlaceStore) StorePlaces(ctx context.Context, jobID string, places []enrichment.EnrichedPlace) error {
	if jobID == "" {
		return errors.New("job id is required")
	}
	deleteQuery := fmt.Sprintf(`DELETE FROM %s WHERE job_id = $1`, s.table)
	insertQuery := fmt.Sprintf(`
INSERT INTO %s (
	job_id, place_id, position, name, address, rating, phone, website,
	email, instagram, facebook, outcome, status_code, fetch_error, enriched_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15
)`, s.table)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin place transaction: %w", err)
	}
	if _, err := tx.Exec(ctx, deleteQuery, jobID); err != nil {
		return rollback(ctx, tx, fmt.Errorf("clear places for job %s: %w", jobID, err))
	}
	now := s.clock.Now().UTC()
	for i, p := range places {
		args := []any{
			jobID,
			p.ID,
			i,
			p.Name,
			p.Address,
			p.Rating,
			p.Phone,
			p.Website,
			p.Email,
			p.Instagram,
			p.Facebook,
			string(p.Outcome.Kind),
			p.Outcome.StatusCode,
			p.Outcome.Error,
			now,
		}
		if _, err := tx.Exec(ctx, insertQuery, args...); err != nil {
			return rollback(ctx, tx, fmt.Errorf("insert place %d (%s): %w", i, p.ID, err))
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit places for job %s: %w", jobID, err)
	}
	return nil
}

func rollback(ctx context.Context, tx pgx.Tx, cause error) error {
	if err := tx.Rollback(context.WithoutCancel(ctx)); err != nil {
		return errors.Join(cause, fmt.Errorf("rollback: %w", err))
	}
	return cause
}

// Close releases the underlying pool resources.
func (s *PlaceStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}
