// Package postgres stores the plugin invocation audit ledger in PostgreSQL
// using pgx/v5.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhuss/plugflow/pkg/api"
	"github.com/rhuss/plugflow/pkg/audit"
)

// Store is a PostgreSQL-backed audit.Store.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ audit.Store = (*Store)(nil)

// New connects to PostgreSQL and, when cfg.MigrateOnStart is set, applies
// the embedded migrations.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool, logger: logger}
	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}
	return s, nil
}

// Record inserts rec. ID is assigned by the database.
func (s *Store) Record(ctx context.Context, rec audit.Record) error {
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO plugin_invocations (
			correlation_id, call_id, plugin, outcome, error_kind,
			attempts, degraded, duration_ms, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		rec.CorrelationID, rec.CallID, rec.Plugin, string(rec.Outcome), string(rec.ErrorKind),
		rec.Attempts, rec.Degraded, rec.Duration.Milliseconds(), created,
	)
	if err != nil {
		return fmt.Errorf("inserting audit record: %w", err)
	}
	return nil
}

// List returns matching records, newest first.
func (s *Store) List(ctx context.Context, f audit.Filter) ([]audit.Record, error) {
	query, args := listQuery(f)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit records: %w", err)
	}
	records, err := pgx.CollectRows(rows, scanRecord)
	if err != nil {
		return nil, fmt.Errorf("scanning audit records: %w", err)
	}
	return records, nil
}

func listQuery(f audit.Filter) (string, []any) {
	var (
		where []string
		args  []any
	)
	if f.Plugin != "" {
		args = append(args, f.Plugin)
		where = append(where, "plugin = $"+strconv.Itoa(len(args)))
	}
	if f.CorrelationID != "" {
		args = append(args, f.CorrelationID)
		where = append(where, "correlation_id = $"+strconv.Itoa(len(args)))
	}

	var b strings.Builder
	b.WriteString(`SELECT id, correlation_id, call_id, plugin, outcome, error_kind,
		attempts, degraded, duration_ms, created_at FROM plugin_invocations`)
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	args = append(args, f.EffectiveLimit())
	b.WriteString(" ORDER BY id DESC LIMIT $" + strconv.Itoa(len(args)))
	return b.String(), args
}

func scanRecord(row pgx.CollectableRow) (audit.Record, error) {
	var (
		r         audit.Record
		outcome   string
		errorKind string
	)
	err := row.Scan(&r.ID, &r.CorrelationID, &r.CallID, &r.Plugin, &outcome, &errorKind,
		&r.Attempts, &r.Degraded, &r.DurationMs, &r.CreatedAt)
	r.Outcome = audit.Outcome(outcome)
	r.ErrorKind = api.ErrorKind(errorKind)
	r.Duration = time.Duration(r.DurationMs) * time.Millisecond
	return r, err
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
