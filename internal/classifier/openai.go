package classifier

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rotisserie/eris"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/purelabel/safecheck/internal/model"
	"github.com/purelabel/safecheck/internal/resilience"
	"github.com/purelabel/safecheck/pkg/ewg"
)

// DefaultOpenAIModels is the ordered fallback list for the OpenAI backend.
var DefaultOpenAIModels = []string{
	"gpt-4o-mini",
	"gpt-4o",
}

// chatCompleter is the slice of the go-openai client the classifier uses.
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// ChatClassifier classifies via any OpenAI-compatible chat completion API.
// Groq exposes the same wire protocol, so both backends share this type.
type ChatClassifier struct {
	name   string
	client chatCompleter
	models []string
	retry  resilience.RetryConfig
}

// ChatOption configures a ChatClassifier.
type ChatOption func(*ChatClassifier)

// WithChatModels overrides the ordered model fallback list.
func WithChatModels(models []string) ChatOption {
	return func(c *ChatClassifier) {
		if len(models) > 0 {
			c.models = models
		}
	}
}

// WithChatRetry overrides the retry configuration.
func WithChatRetry(cfg resilience.RetryConfig) ChatOption {
	return func(c *ChatClassifier) {
		c.retry = cfg
	}
}

// NewOpenAI creates the OpenAI-backed classifier.
func NewOpenAI(apiKey string, opts ...ChatOption) *ChatClassifier {
	return newChatClassifier("openai", openai.NewClient(apiKey), DefaultOpenAIModels, opts...)
}

func newChatClassifier(name string, client chatCompleter, models []string, opts ...ChatOption) *ChatClassifier {
	c := &ChatClassifier{
		name:   name,
		client: client,
		models: models,
		retry:  resilience.DefaultRetryConfig(),
	}
	for _, o := range opts {
		o(c)
	}
	c.retry.OnRetry = resilience.RetryLogger(name, "classify")
	return c
}

func (c *ChatClassifier) Name() string { return c.name }

func (c *ChatClassifier) Analyze(ctx context.Context, name string, lookup *ewg.LookupResult, sources []model.ResearchSource) (*Opinion, error) {
	req := openai.ChatCompletionRequest{
		MaxTokens: 1024,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: BuildUserPrompt(name, lookup, sources)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	var lastErr error
	for _, mdl := range c.models {
		req.Model = mdl

		resp, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) (openai.ChatCompletionResponse, error) {
			resp, err := c.client.CreateChatCompletion(ctx, req)
			if err != nil {
				return openai.ChatCompletionResponse{}, classifyChatErr(err)
			}
			return resp, nil
		})
		if err != nil {
			lastErr = err
			if isChatModelNotFound(err) {
				zap.L().Warn("classifier: model unavailable, trying next",
					zap.String("backend", c.name),
					zap.String("model", mdl),
					zap.Error(err),
				)
				continue
			}
			return nil, eris.Wrapf(err, "classifier: %s analyze %q", c.name, name)
		}

		zap.L().Info("cost attribution",
			zap.String("model", mdl),
			zap.String("phase", "classify"),
			zap.Int("input_tokens", resp.Usage.PromptTokens),
			zap.Int("output_tokens", resp.Usage.CompletionTokens),
		)

		if len(resp.Choices) == 0 {
			return ParseOpinion(name, ""), nil
		}
		return ParseOpinion(name, resp.Choices[0].Message.Content), nil
	}

	return nil, eris.Wrap(lastErr, "classifier: all "+c.name+" models unavailable")
}

// classifyChatErr maps API failures onto the retry taxonomy. The chat APIs do
// not surface a retry-after hint through the error type, so rate limits fall
// back to the configured default wait.
func classifyChatErr(err error) error {
	var apiErr *openai.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	switch {
	case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
		return resilience.NewRateLimitError(err, 0)
	case apiErr.HTTPStatusCode >= 500 || apiErr.HTTPStatusCode == http.StatusRequestTimeout:
		return resilience.NewTransientError(err, apiErr.HTTPStatusCode)
	}
	return err
}

func isChatModelNotFound(err error) bool {
	var apiErr *openai.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.HTTPStatusCode == http.StatusNotFound {
		return true
	}
	msg := strings.ToLower(apiErr.Message)
	return strings.Contains(msg, "model") &&
		(strings.Contains(msg, "not exist") || strings.Contains(msg, "not found") || strings.Contains(msg, "decommissioned"))
}
