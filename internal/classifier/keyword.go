package classifier

import (
	"context"
	"strings"

	"github.com/purelabel/safecheck/internal/model"
	"github.com/purelabel/safecheck/pkg/ewg"
)

// Keyword is the zero-dependency fallback backend: a fixed substring table
// over well-known ingredient families. Anything it does not recognize gets
// caution, never safe.
type Keyword struct{}

// NewKeyword creates the keyword heuristic classifier.
func NewKeyword() *Keyword { return &Keyword{} }

func (*Keyword) Name() string { return "keyword" }

var bannedKeywords = []string{
	"formaldehyde",
	"formalin",
	"mercury",
	"thimerosal",
	"hydroquinone",
	"lead acetate",
	"toluene",
	"dibutyl phthalate",
	"coal tar",
	"methylene glycol",
	"quaternium-15",
	"chloroform",
	"vinyl chloride",
}

var cautionKeywords = []string{
	"paraben",
	"phthalate",
	"triclosan",
	"triclocarban",
	"oxybenzone",
	"benzophenone",
	"fragrance",
	"parfum",
	"peg-",
	"polyethylene glycol",
	"sodium lauryl sulfate",
	"sodium laureth sulfate",
	"dmdm hydantoin",
	"methylisothiazolinone",
	"butylated hydroxyanisole",
	"bha",
	"talc",
	"retinyl palmitate",
	"aluminum",
}

var safeKeywords = []string{
	"water",
	"aqua",
	"glycerin",
	"glycerol",
	"aloe",
	"shea butter",
	"jojoba",
	"hyaluronic acid",
	"niacinamide",
	"panthenol",
	"tocopherol",
	"vitamin e",
	"squalane",
	"ceramide",
	"allantoin",
	"xanthan gum",
	"citric acid",
	"coconut oil",
	"sunflower seed oil",
	"zinc oxide",
	"titanium dioxide",
}

func (*Keyword) Analyze(_ context.Context, name string, _ *ewg.LookupResult, _ []model.ResearchSource) (*Opinion, error) {
	n := model.NormalizeName(name)

	for _, kw := range bannedKeywords {
		if strings.Contains(n, kw) {
			return &Opinion{
				Status:     model.StatusBanned,
				Rationale:  "Matches a known prohibited or high-hazard ingredient family.",
				Confidence: 0.6,
			}, nil
		}
	}
	for _, kw := range cautionKeywords {
		if strings.Contains(n, kw) {
			return &Opinion{
				Status:     model.StatusCaution,
				Rationale:  "Matches an ingredient family with documented concerns or restrictions.",
				Confidence: 0.5,
			}, nil
		}
	}
	for _, kw := range safeKeywords {
		if strings.Contains(n, kw) {
			return &Opinion{
				Status:     model.StatusSafe,
				Rationale:  "Matches a widely used ingredient with broad consensus of safety.",
				Confidence: 0.5,
			}, nil
		}
	}

	return &Opinion{
		Status:     model.StatusCaution,
		Rationale:  "Not recognized by the heuristic table; defaulting to caution.",
		Confidence: 0.3,
	}, nil
}
