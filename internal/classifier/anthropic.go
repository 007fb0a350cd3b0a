package classifier

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/purelabel/safecheck/internal/model"
	"github.com/purelabel/safecheck/internal/resilience"
	"github.com/purelabel/safecheck/pkg/anthropic"
	"github.com/purelabel/safecheck/pkg/ewg"
)

// DefaultAnthropicModels is the ordered fallback list: newest first, with an
// older model retained so a retired primary degrades instead of failing.
var DefaultAnthropicModels = []string{
	"claude-sonnet-4-5-20250929",
	"claude-haiku-4-5-20251001",
}

const anthropicMaxTokens = 1024

// Anthropic classifies via the Anthropic Messages API with model fallback:
// each model gets the full retry budget, and a model that no longer exists
// advances to the next one in the list.
type Anthropic struct {
	client anthropic.Client
	models []string
	retry  resilience.RetryConfig
}

// AnthropicOption configures the Anthropic classifier.
type AnthropicOption func(*Anthropic)

// WithAnthropicModels overrides the ordered model fallback list.
func WithAnthropicModels(models []string) AnthropicOption {
	return func(a *Anthropic) {
		if len(models) > 0 {
			a.models = models
		}
	}
}

// WithAnthropicRetry overrides the retry configuration.
func WithAnthropicRetry(cfg resilience.RetryConfig) AnthropicOption {
	return func(a *Anthropic) {
		a.retry = cfg
	}
}

// NewAnthropic creates the Anthropic-backed classifier.
func NewAnthropic(client anthropic.Client, opts ...AnthropicOption) *Anthropic {
	a := &Anthropic{
		client: client,
		models: DefaultAnthropicModels,
		retry:  resilience.DefaultRetryConfig(),
	}
	for _, o := range opts {
		o(a)
	}
	a.retry.OnRetry = resilience.RetryLogger("anthropic", "classify")
	return a
}

func (a *Anthropic) Name() string { return "anthropic" }

func (a *Anthropic) Analyze(ctx context.Context, name string, lookup *ewg.LookupResult, sources []model.ResearchSource) (*Opinion, error) {
	req := anthropic.MessageRequest{
		MaxTokens: anthropicMaxTokens,
		System:    anthropic.BuildCachedSystemBlocks(SystemPrompt),
		Messages: []anthropic.Message{
			{Role: "user", Content: BuildUserPrompt(name, lookup, sources)},
		},
	}

	var lastErr error
	for _, mdl := range a.models {
		req.Model = mdl

		resp, err := resilience.DoVal(ctx, a.retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
			resp, err := a.client.CreateMessage(ctx, req)
			if err != nil {
				return nil, classifyAnthropicErr(err)
			}
			return resp, nil
		})
		if err != nil {
			lastErr = err
			if anthropic.IsModelNotFound(err) {
				zap.L().Warn("classifier: model unavailable, trying next",
					zap.String("model", mdl),
					zap.Error(err),
				)
				continue
			}
			return nil, eris.Wrapf(err, "classifier: anthropic analyze %q", name)
		}

		resp.Usage.LogCost(mdl, "classify")
		return ParseOpinion(name, resp.Text()), nil
	}

	return nil, eris.Wrap(lastErr, "classifier: all anthropic models unavailable")
}

// classifyAnthropicErr maps API failures onto the retry taxonomy so rate
// limits honor the provider hint and 5xx backs off exponentially.
func classifyAnthropicErr(err error) error {
	if hint, ok := anthropic.RateLimitHint(err); ok {
		return resilience.NewRateLimitError(err, hint)
	}
	if anthropic.IsServerError(err) {
		return resilience.NewTransientError(err, 0)
	}
	return err
}
