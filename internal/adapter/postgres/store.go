// Package postgres loads series observations into a Postgres table, one row
// per site, parameter, statistic, service and timestamp.
package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/couchcryptid/nwis-data-etl/internal/domain"
)

const schemaSQL = `CREATE TABLE IF NOT EXISTS nwis_observations (
    series_id  TEXT        NOT NULL,
    site_no    TEXT        NOT NULL,
    parameter  TEXT        NOT NULL,
    statistic  TEXT        NOT NULL DEFAULT '',
    service    TEXT        NOT NULL,
    ts         TIMESTAMPTZ NOT NULL,
    value      DOUBLE PRECISION,
    raw_value  TEXT        NOT NULL,
    valid      BOOLEAN     NOT NULL,
    qualifiers TEXT[]      NOT NULL DEFAULT '{}',
    warning    TEXT        NOT NULL DEFAULT '',
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (site_no, parameter, statistic, service, ts)
)`

const upsertSQL = `INSERT INTO nwis_observations (series_id, site_no, parameter, statistic, service, ts, value, raw_value, valid, qualifiers, warning, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,NOW())
ON CONFLICT (site_no, parameter, statistic, service, ts) DO UPDATE
SET series_id = EXCLUDED.series_id,
    value = EXCLUDED.value,
    raw_value = EXCLUDED.raw_value,
    valid = EXCLUDED.valid,
    qualifiers = EXCLUDED.qualifiers,
    warning = EXCLUDED.warning,
    updated_at = NOW()`

// db is the subset of *pgxpool.Pool the store uses.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Ping(ctx context.Context) error
}

// Store upserts observations. It implements pipeline.BatchLoader.
type Store struct {
	db     db
	close  func()
	logger *slog.Logger
}

// Open connects a pool to databaseURL and verifies it with a ping.
func Open(ctx context.Context, databaseURL string, logger *slog.Logger) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: pool, close: pool.Close, logger: logger}, nil
}

// EnsureSchema creates the observations table when it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// LoadBatch flattens events into observations and upserts them in one batch.
func (s *Store) LoadBatch(ctx context.Context, events []domain.SeriesEvent) error {
	var rows []domain.Observation
	for i := range events {
		rows = append(rows, domain.Observations(events[i])...)
	}
	if len(rows) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, o := range rows {
		qualifiers := o.Qualifiers
		if qualifiers == nil {
			qualifiers = []string{}
		}
		batch.Queue(upsertSQL, o.SeriesID, o.Site, o.Parameter, o.Statistic, o.Service, o.Time,
			o.Value, o.RawValue, o.Valid, qualifiers, o.Warning)
	}

	res := s.db.SendBatch(ctx, batch)
	defer res.Close()

	for i := range rows {
		if _, err := res.Exec(); err != nil {
			return fmt.Errorf("upsert observation %s %s: %w",
				rows[i].SeriesID, rows[i].Time.Format("2006-01-02T15:04:05Z07:00"), err)
		}
	}
	s.logger.Debug("upserted observations", "events", len(events), "rows", len(rows))
	return nil
}

// CheckReadiness pings the database.
func (s *Store) CheckReadiness(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *Store) Close() error {
	if s.close != nil {
		s.close()
	}
	return nil
}
