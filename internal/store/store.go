// Package store persists ingredient analyses. The cache is keyed on the
// normalized ingredient name so differently-cased submissions share a record.
package store

import (
	"context"
	"time"

	"github.com/purelabel/safecheck/internal/model"
)

// AnalysisFilter specifies criteria for listing cached analyses.
type AnalysisFilter struct {
	Status model.Status `json:"status,omitempty"`
	Limit  int          `json:"limit,omitempty"`
	Offset int          `json:"offset,omitempty"`
}

// Store defines the persistence interface for the analysis cache.
type Store interface {
	// GetAnalysis returns the cached analysis for a name, or (nil, nil) when
	// no record exists. The name is normalized before lookup.
	GetAnalysis(ctx context.Context, name string) (*model.IngredientAnalysis, error)

	// UpsertAnalysis inserts or replaces the record for the analysis' name.
	// On replace it preserves CreatedAt and increments Version; the passed
	// record is updated in place with the stored Version and timestamps.
	UpsertAnalysis(ctx context.Context, a *model.IngredientAnalysis) error

	// ListAnalyses returns cached analyses, newest first.
	ListAnalyses(ctx context.Context, filter AnalysisFilter) ([]model.IngredientAnalysis, error)

	// DeleteStale removes records last analyzed at or before the cutoff and
	// reports how many were removed.
	DeleteStale(ctx context.Context, olderThan time.Time) (int, error)

	// ImportAnalyses bulk-loads curated records, overwriting by name.
	ImportAnalyses(ctx context.Context, analyses []model.IngredientAnalysis) (int64, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
