package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Ingredient is the product-attached editorial record populated from an
// IngredientAnalysis at vetting time. After that point it is owned by the
// editorial workflow: OriginalStatus and IsOverride record whether an editor
// diverged from the automated verdict.
type Ingredient struct {
	ID               string           `json:"id"`
	Name             string           `json:"name"`
	Status           Status           `json:"status"`
	Rationale        string           `json:"rationale"`
	SourceURL        string           `json:"sourceUrl"`
	OriginalStatus   Status           `json:"originalStatus"`
	IsOverride       bool             `json:"isOverride"`
	Description      string           `json:"description,omitempty"`
	EdgeCases        string           `json:"edgeCases,omitempty"`
	EWGScore         *int             `json:"ewgScore,omitempty"`
	ResearchSources  []ResearchSource `json:"researchSources,omitempty"`
	SuggestedMatches []string         `json:"suggestedMatches,omitempty"`
	NeedsReview      bool             `json:"needsReview,omitempty"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

// IngredientFromAnalysis builds a fresh editorial record from an analysis.
// The new record carries no override: status and originalStatus start equal.
func IngredientFromAnalysis(a *IngredientAnalysis) Ingredient {
	return Ingredient{
		ID:               uuid.New().String(),
		Name:             a.Name,
		Status:           a.Status,
		Rationale:        a.Rationale,
		SourceURL:        a.SourceURL,
		OriginalStatus:   a.Status,
		IsOverride:       false,
		Description:      a.Description,
		EdgeCases:        a.EdgeCases,
		EWGScore:         a.EWGScore,
		ResearchSources:  a.ResearchSources,
		SuggestedMatches: a.SuggestedMatches,
		NeedsReview:      a.NeedsReview,
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
	}
}

// BatchResult is the aggregate verdict for one vetting request.
type BatchResult struct {
	OverallStatus Status       `json:"overallStatus"`
	Summary       string       `json:"summary"`
	Ingredients   []Ingredient `json:"ingredients"`
}

// Summarize derives the human-readable batch summary from the per-ingredient
// statuses.
func Summarize(overall Status, statuses []Status) string {
	var banned, caution, safe int
	for _, s := range statuses {
		switch s.Severity() {
		case 2:
			banned++
		case 1:
			caution++
		default:
			safe++
		}
	}
	return fmt.Sprintf("%d ingredients analyzed: %d banned, %d caution, %d safe; overall verdict %s",
		len(statuses), banned, caution, safe, overall)
}
