// Package model defines the core domain types for ingredient safety vetting.
package model

import (
	"strings"
	"time"
)

// Status is the three-tier safety classification for an ingredient.
type Status string

const (
	StatusSafe    Status = "safe"
	StatusCaution Status = "caution"
	StatusBanned  Status = "banned"
)

// Valid reports whether s is one of the three known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusSafe, StatusCaution, StatusBanned:
		return true
	}
	return false
}

// Severity orders statuses: banned > caution > safe. Unknown values rank as
// caution so a malformed record can never dilute a batch verdict to safe.
func (s Status) Severity() int {
	switch s {
	case StatusBanned:
		return 2
	case StatusSafe:
		return 0
	default:
		return 1
	}
}

// ParseStatus parses a raw string into a Status, case-insensitively.
func ParseStatus(raw string) (Status, bool) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	return s, s.Valid()
}

// OverallStatus aggregates per-ingredient statuses by severity precedence.
// An empty slice aggregates to safe.
func OverallStatus(statuses []Status) Status {
	overall := StatusSafe
	for _, s := range statuses {
		if s.Severity() > overall.Severity() {
			overall = s
		}
	}
	return overall
}

// StatusForScore maps an EWG hazard score to a status tier.
// Scores outside 1-10 are invalid and map to nothing.
func StatusForScore(score int) (Status, bool) {
	switch {
	case score >= 1 && score <= 4:
		return StatusSafe, true
	case score >= 5 && score <= 7:
		return StatusCaution, true
	case score >= 8 && score <= 10:
		return StatusBanned, true
	}
	return "", false
}

// NormalizeName produces the canonical cache key for an ingredient name.
// Applied identically on every read and write so differently-cased
// submissions resolve to the same entry.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ResearchSource is a single supporting citation found by the fallback search.
type ResearchSource struct {
	Source    string  `json:"source"`
	URL       string  `json:"url"`
	Title     string  `json:"title"`
	Snippet   string  `json:"snippet"`
	Relevance float64 `json:"relevance"`
}

// IngredientAnalysis is the pipeline's core output and cache record.
type IngredientAnalysis struct {
	Name             string           `json:"name"`
	Status           Status           `json:"status"`
	Rationale        string           `json:"rationale"`
	Description      string           `json:"description"`
	EdgeCases        string           `json:"edgeCases"`
	SourceURL        string           `json:"sourceUrl"`
	Confidence       float64          `json:"confidence"`
	NeedsReview      bool             `json:"needsReview"`
	EWGScore         *int             `json:"ewgScore,omitempty"`
	DataAvailability string           `json:"dataAvailability,omitempty"`
	ResearchSources  []ResearchSource `json:"researchSources,omitempty"`
	SuggestedMatches []string         `json:"suggestedMatches,omitempty"`
	Version          int              `json:"analysisVersion"`
	LastAnalyzedAt   time.Time        `json:"lastAnalyzedAt"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

// IsStale reports whether the analysis is older than the refresh window and
// must be recomputed.
func (a *IngredientAnalysis) IsStale(now time.Time, window time.Duration) bool {
	return now.Sub(a.LastAnalyzedAt) > window
}

// SplitIngredientList splits raw ingredient text on commas and newlines into
// trimmed, non-empty names. This is the upstream collaborator behavior the
// pipeline expects from the HTTP and CLI layers.
func SplitIngredientList(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == '\n' || r == ';'
	})
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		if name := strings.TrimSpace(f); name != "" {
			names = append(names, name)
		}
	}
	return names
}
