package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/wwfm/aggregate-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS reports (
	id              TEXT PRIMARY KEY,
	goal_id         TEXT NOT NULL,
	solution_id     TEXT NOT NULL,
	variant_id      TEXT NOT NULL DEFAULT '',
	category        TEXT NOT NULL DEFAULT '',
	source          TEXT NOT NULL DEFAULT 'user_rating',
	solution_fields TEXT NOT NULL,
	created_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS aggregations (
	goal_id     TEXT NOT NULL,
	solution_id TEXT NOT NULL,
	variant_id  TEXT NOT NULL DEFAULT '',
	category    TEXT NOT NULL DEFAULT '',
	fields      TEXT NOT NULL,
	metadata    TEXT NOT NULL,
	updated_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (goal_id, solution_id, variant_id)
);

CREATE INDEX IF NOT EXISTS idx_reports_pairing ON reports(goal_id, solution_id, variant_id);
`

// Migrate creates the schema if it does not exist.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteMigration); err != nil {
		return eris.Wrap(err, "sqlite: migrate")
	}
	return nil
}

// InsertReport stores one raw report.
func (s *SQLiteStore) InsertReport(ctx context.Context, r model.Report) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	fields, err := json.Marshal(r.SolutionFields)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal solution fields")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO reports (id, goal_id, solution_id, variant_id, category, source, solution_fields, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.GoalID, r.SolutionID, r.VariantID, r.Category, string(r.Source), string(fields), r.CreatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert report for %s/%s", r.GoalID, r.SolutionID)
	}
	return nil
}

// ListReports returns the reports for a pairing in stable order.
func (s *SQLiteStore) ListReports(ctx context.Context, filter ReportFilter) ([]model.Report, error) {
	q := `SELECT id, goal_id, solution_id, variant_id, category, source, solution_fields, created_at FROM reports WHERE goal_id = ? AND solution_id = ? AND variant_id = ? ORDER BY created_at, id`
	args := []any{filter.Pairing.GoalID, filter.Pairing.SolutionID, filter.Pairing.VariantID}
	if filter.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list reports")
	}
	defer rows.Close()

	var reports []model.Report
	for rows.Next() {
		var r model.Report
		var source, fields string
		if err := rows.Scan(&r.ID, &r.GoalID, &r.SolutionID, &r.VariantID, &r.Category, &source, &fields, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan report")
		}
		r.Source = model.ReportSource(source)
		if err := json.Unmarshal([]byte(fields), &r.SolutionFields); err != nil {
			return nil, eris.Wrapf(err, "sqlite: unmarshal solution fields for report %s", r.ID)
		}
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate reports")
	}
	return reports, nil
}

// ListPairings returns every distinct pairing that has at least one report.
func (s *SQLiteStore) ListPairings(ctx context.Context) ([]model.Pairing, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT goal_id, solution_id, variant_id, MAX(category) FROM reports GROUP BY goal_id, solution_id, variant_id ORDER BY goal_id, solution_id, variant_id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list pairings")
	}
	defer rows.Close()

	var pairings []model.Pairing
	for rows.Next() {
		var p model.Pairing
		if err := rows.Scan(&p.GoalID, &p.SolutionID, &p.VariantID, &p.Category); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan pairing")
		}
		pairings = append(pairings, p)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate pairings")
	}
	return pairings, nil
}

// SaveAggregation overwrites the aggregation row for a pairing.
func (s *SQLiteStore) SaveAggregation(ctx context.Context, agg Aggregation) error {
	fields, err := json.Marshal(agg.Fields)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal aggregated fields")
	}
	meta, err := json.Marshal(agg.Metadata)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal metadata")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO aggregations (goal_id, solution_id, variant_id, category, fields, metadata, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (goal_id, solution_id, variant_id) DO UPDATE SET category = excluded.category, fields = excluded.fields, metadata = excluded.metadata, updated_at = excluded.updated_at`,
		agg.Pairing.GoalID, agg.Pairing.SolutionID, agg.Pairing.VariantID, agg.Pairing.Category,
		string(fields), string(meta), time.Now().UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: save aggregation for %s/%s", agg.Pairing.GoalID, agg.Pairing.SolutionID)
	}
	return nil
}

// GetAggregation returns the stored aggregation for a pairing, or nil if none
// exists yet.
func (s *SQLiteStore) GetAggregation(ctx context.Context, p model.Pairing) (*Aggregation, error) {
	var category, fields, meta string
	err := s.db.QueryRowContext(ctx,
		`SELECT category, fields, metadata FROM aggregations WHERE goal_id = ? AND solution_id = ? AND variant_id = ?`,
		p.GoalID, p.SolutionID, p.VariantID,
	).Scan(&category, &fields, &meta)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: get aggregation")
	}

	agg := &Aggregation{Pairing: p}
	agg.Pairing.Category = category
	if err := json.Unmarshal([]byte(fields), &agg.Fields); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal aggregated fields")
	}
	if err := json.Unmarshal([]byte(meta), &agg.Metadata); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal metadata")
	}
	return agg, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
