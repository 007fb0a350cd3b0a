package classifier

import (
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/purelabel/safecheck/internal/model"
)

// fallbackConfidence applies when a response parsed but carried no usable
// confidence value.
const fallbackConfidence = 0.3

// opinionWire is the JSON contract the prompts request. EdgeCases tolerates
// both a string and an array, since models drift between the two.
type opinionWire struct {
	Status      string          `json:"status"`
	Rationale   string          `json:"rationale"`
	Description string          `json:"description"`
	EdgeCases   json.RawMessage `json:"edgeCases"`
	Confidence  *float64        `json:"confidence"`
}

// ParseOpinion extracts an Opinion from raw model output. It never fails:
// unparseable or invalid responses degrade to a caution opinion so a
// misbehaving model can never mark an ingredient safe by accident.
func ParseOpinion(name, raw string) *Opinion {
	payload := extractJSON(raw)
	if payload == "" {
		zap.L().Warn("classifier: no JSON object in response", zap.String("ingredient", name))
		return fallbackOpinion(name)
	}

	var wire opinionWire
	if err := json.Unmarshal([]byte(payload), &wire); err != nil {
		zap.L().Warn("classifier: malformed JSON in response",
			zap.String("ingredient", name),
			zap.Error(err),
		)
		return fallbackOpinion(name)
	}

	status, ok := model.ParseStatus(wire.Status)
	if !ok {
		zap.L().Warn("classifier: unrecognized status in response",
			zap.String("ingredient", name),
			zap.String("status", wire.Status),
		)
		return fallbackOpinion(name)
	}

	op := &Opinion{
		Status:      status,
		Rationale:   strings.TrimSpace(wire.Rationale),
		Description: strings.TrimSpace(wire.Description),
		EdgeCases:   decodeEdgeCases(wire.EdgeCases),
		Confidence:  fallbackConfidence,
	}
	if wire.Confidence != nil {
		op.Confidence = clamp01(*wire.Confidence)
	}
	return op
}

// extractJSON returns the first balanced top-level JSON object in raw,
// skipping markdown code fences and surrounding prose. Braces inside JSON
// strings do not count toward balance.
func extractJSON(raw string) string {
	raw = strings.ReplaceAll(raw, "```json", "")
	raw = strings.ReplaceAll(raw, "```", "")

	start := strings.IndexByte(raw, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return raw[start : i+1]
			}
		}
	}
	return ""
}

func decodeEdgeCases(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return strings.Join(list, "; ")
	}
	return ""
}

func fallbackOpinion(name string) *Opinion {
	name = strings.TrimSpace(name)
	return &Opinion{
		Status:    model.StatusCaution,
		Rationale: "Automated analysis could not produce a structured result.",
		Description: fmt.Sprintf("%s could not be fully analyzed. "+
			"The safety assessment response was not in a usable format. "+
			"Treat this ingredient with caution until it is reviewed manually.", name),
		Confidence: fallbackConfidence,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
