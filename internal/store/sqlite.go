package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/purelabel/safecheck/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It is the default
// backend: a single local file, no server required.
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
CREATE TABLE IF NOT EXISTS ingredient_analyses (
	name              TEXT PRIMARY KEY,
	display_name      TEXT NOT NULL,
	status            TEXT NOT NULL,
	rationale         TEXT NOT NULL DEFAULT '',
	description       TEXT NOT NULL DEFAULT '',
	edge_cases        TEXT NOT NULL DEFAULT '',
	source_url        TEXT NOT NULL DEFAULT '',
	confidence        REAL NOT NULL DEFAULT 0,
	needs_review      INTEGER NOT NULL DEFAULT 0,
	ewg_score         INTEGER,
	data_availability TEXT NOT NULL DEFAULT '',
	research_sources  TEXT NOT NULL DEFAULT '[]',
	suggested_matches TEXT NOT NULL DEFAULT '[]',
	version           INTEGER NOT NULL DEFAULT 1,
	last_analyzed_at  DATETIME NOT NULL,
	created_at        DATETIME NOT NULL,
	updated_at        DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_analyses_status ON ingredient_analyses(status);
CREATE INDEX IF NOT EXISTS idx_analyses_last_analyzed ON ingredient_analyses(last_analyzed_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const analysisColumns = `name, display_name, status, rationale, description, edge_cases,
	source_url, confidence, needs_review, ewg_score, data_availability,
	research_sources, suggested_matches, version, last_analyzed_at, created_at, updated_at`

func (s *SQLiteStore) GetAnalysis(ctx context.Context, name string) (*model.IngredientAnalysis, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+analysisColumns+` FROM ingredient_analyses WHERE name = ?`,
		model.NormalizeName(name),
	)
	a, err := scanAnalysis(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get analysis %q", name)
	}
	return a, nil
}

func (s *SQLiteStore) UpsertAnalysis(ctx context.Context, a *model.IngredientAnalysis) error {
	now := time.Now().UTC()
	if a.LastAnalyzedAt.IsZero() {
		a.LastAnalyzedAt = now
	}
	a.UpdatedAt = now

	sourcesJSON, matchesJSON, err := marshalAnalysisJSON(a)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal analysis")
	}

	// created_at is absent from the update set, so the original insert time
	// survives refreshes.
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO ingredient_analyses (`+analysisColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			display_name      = excluded.display_name,
			status            = excluded.status,
			rationale         = excluded.rationale,
			description       = excluded.description,
			edge_cases        = excluded.edge_cases,
			source_url        = excluded.source_url,
			confidence        = excluded.confidence,
			needs_review      = excluded.needs_review,
			ewg_score         = excluded.ewg_score,
			data_availability = excluded.data_availability,
			research_sources  = excluded.research_sources,
			suggested_matches = excluded.suggested_matches,
			version           = ingredient_analyses.version + 1,
			last_analyzed_at  = excluded.last_analyzed_at,
			updated_at        = excluded.updated_at
		RETURNING version, created_at`,
		model.NormalizeName(a.Name), a.Name, string(a.Status), a.Rationale, a.Description,
		a.EdgeCases, a.SourceURL, a.Confidence, a.NeedsReview, a.EWGScore,
		a.DataAvailability, sourcesJSON, matchesJSON, a.LastAnalyzedAt, now, now,
	)
	if err := row.Scan(&a.Version, &a.CreatedAt); err != nil {
		return eris.Wrapf(err, "sqlite: upsert analysis %q", a.Name)
	}
	return nil
}

func (s *SQLiteStore) ListAnalyses(ctx context.Context, filter AnalysisFilter) ([]model.IngredientAnalysis, error) {
	query := `SELECT ` + analysisColumns + ` FROM ingredient_analyses WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY last_analyzed_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list analyses")
	}
	defer rows.Close()

	var out []model.IngredientAnalysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan analysis")
		}
		out = append(out, *a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list analyses iterate")
}

func (s *SQLiteStore) DeleteStale(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM ingredient_analyses WHERE last_analyzed_at <= ?`,
		olderThan.UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete stale analyses")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) ImportAnalyses(ctx context.Context, analyses []model.IngredientAnalysis) (int64, error) {
	var n int64
	for i := range analyses {
		if err := s.UpsertAnalysis(ctx, &analyses[i]); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

func marshalAnalysisJSON(a *model.IngredientAnalysis) (sources, matches string, err error) {
	sourcesBytes, err := json.Marshal(a.ResearchSources)
	if err != nil {
		return "", "", err
	}
	matchesBytes, err := json.Marshal(a.SuggestedMatches)
	if err != nil {
		return "", "", err
	}
	return string(sourcesBytes), string(matchesBytes), nil
}

func scanAnalysis(row scannable) (*model.IngredientAnalysis, error) {
	var a model.IngredientAnalysis
	var key, status, sourcesJSON, matchesJSON string
	var ewgScore sql.NullInt64

	err := row.Scan(&key, &a.Name, &status, &a.Rationale, &a.Description, &a.EdgeCases,
		&a.SourceURL, &a.Confidence, &a.NeedsReview, &ewgScore, &a.DataAvailability,
		&sourcesJSON, &matchesJSON, &a.Version, &a.LastAnalyzedAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}

	a.Status = model.Status(status)
	if ewgScore.Valid {
		score := int(ewgScore.Int64)
		a.EWGScore = &score
	}
	if err := json.Unmarshal([]byte(sourcesJSON), &a.ResearchSources); err != nil {
		return nil, eris.Wrap(err, "unmarshal research sources")
	}
	if err := json.Unmarshal([]byte(matchesJSON), &a.SuggestedMatches); err != nil {
		return nil, eris.Wrap(err, "unmarshal suggested matches")
	}
	return &a, nil
}
