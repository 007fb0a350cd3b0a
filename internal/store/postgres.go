package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/purelabel/safecheck/internal/db"
	"github.com/purelabel/safecheck/internal/model"
)

// PostgresStore implements Store using pgxpool, for deployments where several
// processes share one analysis cache.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot path (one get and one upsert per ingredient).
var preparedStatements = map[string]string{
	"get_analysis": `SELECT ` + analysisColumns + ` FROM ingredient_analyses WHERE name = $1`,
	"delete_stale": `DELETE FROM ingredient_analyses WHERE last_analyzed_at <= $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

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
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS ingredient_analyses (
	name              TEXT PRIMARY KEY,
	display_name      TEXT NOT NULL,
	status            TEXT NOT NULL,
	rationale         TEXT NOT NULL DEFAULT '',
	description       TEXT NOT NULL DEFAULT '',
	edge_cases        TEXT NOT NULL DEFAULT '',
	source_url        TEXT NOT NULL DEFAULT '',
	confidence        DOUBLE PRECISION NOT NULL DEFAULT 0,
	needs_review      BOOLEAN NOT NULL DEFAULT false,
	ewg_score         INTEGER,
	data_availability TEXT NOT NULL DEFAULT '',
	research_sources  JSONB NOT NULL DEFAULT '[]',
	suggested_matches JSONB NOT NULL DEFAULT '[]',
	version           INTEGER NOT NULL DEFAULT 1,
	last_analyzed_at  TIMESTAMPTZ NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_analyses_status ON ingredient_analyses(status);
CREATE INDEX IF NOT EXISTS idx_analyses_last_analyzed ON ingredient_analyses(last_analyzed_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) GetAnalysis(ctx context.Context, name string) (*model.IngredientAnalysis, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+analysisColumns+` FROM ingredient_analyses WHERE name = $1`,
		model.NormalizeName(name),
	)
	a, err := scanAnalysisPg(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get analysis %q", name)
	}
	return a, nil
}

func (s *PostgresStore) UpsertAnalysis(ctx context.Context, a *model.IngredientAnalysis) error {
	now := time.Now().UTC()
	if a.LastAnalyzedAt.IsZero() {
		a.LastAnalyzedAt = now
	}
	a.UpdatedAt = now

	sourcesJSON, err := json.Marshal(a.ResearchSources)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal research sources")
	}
	matchesJSON, err := json.Marshal(a.SuggestedMatches)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal suggested matches")
	}

	// created_at is absent from the update set, so the original insert time
	// survives refreshes.
	row := s.pool.QueryRow(ctx, `
		INSERT INTO ingredient_analyses (`+analysisColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, 1, $14, $15, $16)
		ON CONFLICT (name) DO UPDATE SET
			display_name      = EXCLUDED.display_name,
			status            = EXCLUDED.status,
			rationale         = EXCLUDED.rationale,
			description       = EXCLUDED.description,
			edge_cases        = EXCLUDED.edge_cases,
			source_url        = EXCLUDED.source_url,
			confidence        = EXCLUDED.confidence,
			needs_review      = EXCLUDED.needs_review,
			ewg_score         = EXCLUDED.ewg_score,
			data_availability = EXCLUDED.data_availability,
			research_sources  = EXCLUDED.research_sources,
			suggested_matches = EXCLUDED.suggested_matches,
			version           = ingredient_analyses.version + 1,
			last_analyzed_at  = EXCLUDED.last_analyzed_at,
			updated_at        = EXCLUDED.updated_at
		RETURNING version, created_at`,
		model.NormalizeName(a.Name), a.Name, string(a.Status), a.Rationale, a.Description,
		a.EdgeCases, a.SourceURL, a.Confidence, a.NeedsReview, a.EWGScore,
		a.DataAvailability, sourcesJSON, matchesJSON, a.LastAnalyzedAt, now, now,
	)
	if err := row.Scan(&a.Version, &a.CreatedAt); err != nil {
		return eris.Wrapf(err, "postgres: upsert analysis %q", a.Name)
	}
	return nil
}

func (s *PostgresStore) ListAnalyses(ctx context.Context, filter AnalysisFilter) ([]model.IngredientAnalysis, error) {
	query := `SELECT ` + analysisColumns + ` FROM ingredient_analyses WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY last_analyzed_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list analyses")
	}
	defer rows.Close()

	var out []model.IngredientAnalysis
	for rows.Next() {
		a, err := scanAnalysisPg(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan analysis")
		}
		out = append(out, *a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list analyses iterate")
}

func (s *PostgresStore) DeleteStale(ctx context.Context, olderThan time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM ingredient_analyses WHERE last_analyzed_at <= $1`,
		olderThan.UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete stale analyses")
	}
	return int(tag.RowsAffected()), nil
}

var importColumns = []string{
	"name", "display_name", "status", "rationale", "description", "edge_cases",
	"source_url", "confidence", "needs_review", "ewg_score", "data_availability",
	"research_sources", "suggested_matches", "version", "last_analyzed_at",
	"created_at", "updated_at",
}

// ImportAnalyses bulk-loads curated records via the COPY-based upsert.
// Unlike UpsertAnalysis it overwrites version wholesale; imports are
// authoritative snapshots, not refreshes.
func (s *PostgresStore) ImportAnalyses(ctx context.Context, analyses []model.IngredientAnalysis) (int64, error) {
	now := time.Now().UTC()
	rows := make([][]any, 0, len(analyses))
	for i := range analyses {
		a := &analyses[i]
		if a.Version <= 0 {
			a.Version = 1
		}
		if a.LastAnalyzedAt.IsZero() {
			a.LastAnalyzedAt = now
		}
		sourcesJSON, err := json.Marshal(a.ResearchSources)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: marshal research sources %q", a.Name)
		}
		matchesJSON, err := json.Marshal(a.SuggestedMatches)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: marshal suggested matches %q", a.Name)
		}
		rows = append(rows, []any{
			model.NormalizeName(a.Name), a.Name, string(a.Status), a.Rationale,
			a.Description, a.EdgeCases, a.SourceURL, a.Confidence, a.NeedsReview,
			a.EWGScore, a.DataAvailability, sourcesJSON, matchesJSON, a.Version,
			a.LastAnalyzedAt, now, now,
		})
	}

	updateCols := make([]string, 0, len(importColumns))
	for _, c := range importColumns {
		if c != "name" && c != "created_at" {
			updateCols = append(updateCols, c)
		}
	}

	return db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "ingredient_analyses",
		Columns:      importColumns,
		ConflictKeys: []string{"name"},
		UpdateCols:   updateCols,
	}, rows)
}

func scanAnalysisPg(row pgx.Row) (*model.IngredientAnalysis, error) {
	var a model.IngredientAnalysis
	var key, status string
	var ewgScore *int
	var sourcesJSON, matchesJSON []byte

	err := row.Scan(&key, &a.Name, &status, &a.Rationale, &a.Description, &a.EdgeCases,
		&a.SourceURL, &a.Confidence, &a.NeedsReview, &ewgScore, &a.DataAvailability,
		&sourcesJSON, &matchesJSON, &a.Version, &a.LastAnalyzedAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}

	a.Status = model.Status(status)
	a.EWGScore = ewgScore
	if err := json.Unmarshal(sourcesJSON, &a.ResearchSources); err != nil {
		return nil, eris.Wrap(err, "unmarshal research sources")
	}
	if err := json.Unmarshal(matchesJSON, &a.SuggestedMatches); err != nil {
		return nil, eris.Wrap(err, "unmarshal suggested matches")
	}
	return &a, nil
}
