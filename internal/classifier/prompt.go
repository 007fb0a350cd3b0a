package classifier

import (
	"fmt"
	"strings"

	"github.com/purelabel/safecheck/internal/model"
	"github.com/purelabel/safecheck/pkg/ewg"
)

// SystemPrompt is shared by every LLM backend. It pins the output contract so
// responses parse the same way regardless of provider.
const SystemPrompt = `You are a cosmetic and personal-care ingredient safety analyst.
Classify the ingredient the user names into exactly one status:

  "banned"  - prohibited or strongly linked to serious harm (carcinogens,
              reproductive toxins, banned by major regulators)
  "caution" - credible concerns, restricted uses, sensitizers, or data gaps
  "safe"    - broad scientific consensus of safety at typical cosmetic use

When hazard-score evidence is provided, treat it as guidance, not as binding:
scores 1-4 usually indicate safe, 5-7 caution, 8-10 banned, but your own
assessment of the evidence controls.

Respond with a single JSON object and nothing else:
{
  "status": "safe" | "caution" | "banned",
  "rationale": "one or two sentences naming the decisive evidence",
  "description": "exactly three sentences: what the ingredient is and why it is used, its safety profile, and where it commonly appears",
  "edgeCases": "populations or product types needing extra care, or \"none known\"",
  "confidence": 0.0-1.0
}`

const maxPromptSnippets = 5

// BuildUserPrompt assembles the per-ingredient prompt from the lookup result
// and citation snippets.
func BuildUserPrompt(name string, lookup *ewg.LookupResult, sources []model.ResearchSource) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Ingredient: %s\n", strings.TrimSpace(name))

	if lookup != nil && lookup.Found && lookup.Score != nil {
		fmt.Fprintf(&b, "\nSkin Deep hazard score: %d/10", *lookup.Score)
		if lookup.DataAvailability != "" {
			fmt.Fprintf(&b, " (data availability: %s)", lookup.DataAvailability)
		}
		b.WriteString("\n")
		if len(lookup.Concerns) > 0 {
			fmt.Fprintf(&b, "Stated concerns: %s\n", strings.Join(lookup.Concerns, "; "))
		}
	} else {
		b.WriteString("\nNo hazard-score record was found for this ingredient.\n")
	}

	if len(sources) > 0 {
		b.WriteString("\nResearch snippets:\n")
		for i, s := range sources {
			if i == maxPromptSnippets {
				break
			}
			fmt.Fprintf(&b, "- [%s] %s: %s\n", s.Source, s.Title, s.Snippet)
		}
	}

	b.WriteString("\nClassify this ingredient.")
	return b.String()
}
