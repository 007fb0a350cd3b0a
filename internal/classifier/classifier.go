// Package classifier produces safety opinions on ingredients, using an LLM
// backend when one is configured and a keyword heuristic otherwise.
package classifier

import (
	"context"

	"github.com/purelabel/safecheck/internal/model"
	"github.com/purelabel/safecheck/pkg/ewg"
)

// Opinion is a classifier's judgment on a single ingredient. It is advisory:
// the pipeline merges it with harder evidence before persisting.
type Opinion struct {
	Status      model.Status
	Rationale   string
	Description string
	EdgeCases   string
	Confidence  float64
}

// Classifier renders a safety opinion from the ingredient name plus whatever
// evidence the earlier pipeline stages gathered.
type Classifier interface {
	// Name identifies the backend in logs and stored records.
	Name() string
	Analyze(ctx context.Context, name string, lookup *ewg.LookupResult, sources []model.ResearchSource) (*Opinion, error)
}
