package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/wwfm/aggregate-cli/internal/db"
	"github.com/wwfm/aggregate-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"insert_report":    `INSERT INTO reports (id, goal_id, solution_id, variant_id, category, source, solution_fields, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
	"list_reports":     `SELECT id, goal_id, solution_id, variant_id, category, source, solution_fields, created_at FROM reports WHERE goal_id = $1 AND solution_id = $2 AND variant_id = $3 ORDER BY created_at, id`,
	"save_aggregation": `INSERT INTO aggregations (goal_id, solution_id, variant_id, category, fields, metadata, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7) ON CONFLICT (goal_id, solution_id, variant_id) DO UPDATE SET category = $4, fields = $5, metadata = $6, updated_at = $7`,
	"get_aggregation":  `SELECT category, fields, metadata FROM aggregations WHERE goal_id = $1 AND solution_id = $2 AND variant_id = $3`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for use by subsystems that need
// direct query access (e.g., the bulk report importer).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS reports (
	id              TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	goal_id         TEXT NOT NULL,
	solution_id     TEXT NOT NULL,
	variant_id      TEXT NOT NULL DEFAULT '',
	category        TEXT NOT NULL DEFAULT '',
	source          TEXT NOT NULL DEFAULT 'user_rating',
	solution_fields JSONB NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS aggregations (
	goal_id     TEXT NOT NULL,
	solution_id TEXT NOT NULL,
	variant_id  TEXT NOT NULL DEFAULT '',
	category    TEXT NOT NULL DEFAULT '',
	fields      JSONB NOT NULL,
	metadata    JSONB NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (goal_id, solution_id, variant_id)
);

CREATE INDEX IF NOT EXISTS idx_reports_pairing ON reports(goal_id, solution_id, variant_id);
CREATE INDEX IF NOT EXISTS idx_reports_created_at ON reports(created_at);
`

// Migrate creates the schema if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresMigration); err != nil {
		return eris.Wrap(err, "postgres: migrate")
	}
	return nil
}

// InsertReport stores one raw report.
func (s *PostgresStore) InsertReport(ctx context.Context, r model.Report) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	fields, err := json.Marshal(r.SolutionFields)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal solution fields")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO reports (id, goal_id, solution_id, variant_id, category, source, solution_fields, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		r.ID, r.GoalID, r.SolutionID, r.VariantID, r.Category, string(r.Source), fields, r.CreatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert report for %s/%s", r.GoalID, r.SolutionID)
	}
	return nil
}

// ListReports returns the reports for a pairing in stable order.
func (s *PostgresStore) ListReports(ctx context.Context, filter ReportFilter) ([]model.Report, error) {
	q := `SELECT id, goal_id, solution_id, variant_id, category, source, solution_fields, created_at FROM reports WHERE goal_id = $1 AND solution_id = $2 AND variant_id = $3 ORDER BY created_at, id`
	args := []any{filter.Pairing.GoalID, filter.Pairing.SolutionID, filter.Pairing.VariantID}
	if filter.Limit > 0 {
		q += ` LIMIT $4`
		args = append(args, filter.Limit)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list reports")
	}
	defer rows.Close()

	var reports []model.Report
	for rows.Next() {
		var r model.Report
		var source string
		var fields []byte
		if err := rows.Scan(&r.ID, &r.GoalID, &r.SolutionID, &r.VariantID, &r.Category, &source, &fields, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan report")
		}
		r.Source = model.ReportSource(source)
		if err := json.Unmarshal(fields, &r.SolutionFields); err != nil {
			return nil, eris.Wrapf(err, "postgres: unmarshal solution fields for report %s", r.ID)
		}
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate reports")
	}
	return reports, nil
}

// ListPairings returns every distinct pairing that has at least one report.
func (s *PostgresStore) ListPairings(ctx context.Context) ([]model.Pairing, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT goal_id, solution_id, variant_id, MAX(category) FROM reports GROUP BY goal_id, solution_id, variant_id ORDER BY goal_id, solution_id, variant_id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list pairings")
	}
	defer rows.Close()

	var pairings []model.Pairing
	for rows.Next() {
		var p model.Pairing
		if err := rows.Scan(&p.GoalID, &p.SolutionID, &p.VariantID, &p.Category); err != nil {
			return nil, eris.Wrap(err, "postgres: scan pairing")
		}
		pairings = append(pairings, p)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate pairings")
	}
	return pairings, nil
}

// SaveAggregation overwrites the aggregation row for a pairing.
func (s *PostgresStore) SaveAggregation(ctx context.Context, agg Aggregation) error {
	fields, err := json.Marshal(agg.Fields)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal aggregated fields")
	}
	meta, err := json.Marshal(agg.Metadata)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal metadata")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO aggregations (goal_id, solution_id, variant_id, category, fields, metadata, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7) ON CONFLICT (goal_id, solution_id, variant_id) DO UPDATE SET category = $4, fields = $5, metadata = $6, updated_at = $7`,
		agg.Pairing.GoalID, agg.Pairing.SolutionID, agg.Pairing.VariantID, agg.Pairing.Category,
		fields, meta, time.Now().UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: save aggregation for %s/%s", agg.Pairing.GoalID, agg.Pairing.SolutionID)
	}
	return nil
}

// GetAggregation returns the stored aggregation for a pairing, or nil if none
// exists yet.
func (s *PostgresStore) GetAggregation(ctx context.Context, p model.Pairing) (*Aggregation, error) {
	var category string
	var fields, meta []byte
	err := s.pool.QueryRow(ctx,
		`SELECT category, fields, metadata FROM aggregations WHERE goal_id = $1 AND solution_id = $2 AND variant_id = $3`,
		p.GoalID, p.SolutionID, p.VariantID,
	).Scan(&category, &fields, &meta)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get aggregation")
	}

	agg := &Aggregation{Pairing: p}
	agg.Pairing.Category = category
	if err := json.Unmarshal(fields, &agg.Fields); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal aggregated fields")
	}
	if err := json.Unmarshal(meta, &agg.Metadata); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal metadata")
	}
	return agg, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}
