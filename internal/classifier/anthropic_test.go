package classifier

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/purelabel/safecheck/internal/model"
	"github.com/purelabel/safecheck/internal/resilience"
	"github.com/purelabel/safecheck/pkg/anthropic"
)

// sdkErr builds an sdk.Error the way the SDK does on a failed request, with
// request and response attached so calling its Error() is safe.
func sdkErr(t *testing.T, status int) *sdk.Error {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "https://api.anthropic.com/v1/messages", nil)
	resp := &http.Response{StatusCode: status, Header: http.Header{}, Request: req}
	apiErr := &sdk.Error{Request: req, Response: resp, StatusCode: status}
	require.NoError(t, apiErr.UnmarshalJSON([]byte(`{"type":"error"}`)))
	return apiErr
}

// stubAnthropicClient returns a canned response or error per model ID.
type stubAnthropicClient struct {
	errByModel  map[string]error
	respByModel map[string]*anthropic.MessageResponse
	models      []string // records the model of each call
}

func (s *stubAnthropicClient) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	s.models = append(s.models, req.Model)
	if err, ok := s.errByModel[req.Model]; ok {
		return nil, err
	}
	if resp, ok := s.respByModel[req.Model]; ok {
		return resp, nil
	}
	return textResponse(`{"status":"safe","rationale":"ok","confidence":0.8}`), nil
}

func textResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
	}
}

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:      3,
		InitialBackoff:   time.Millisecond,
		MaxBackoff:       5 * time.Millisecond,
		RateLimitDefault: time.Millisecond,
	}
}

func TestAnthropic_Analyze(t *testing.T) {
	stub := &stubAnthropicClient{
		respByModel: map[string]*anthropic.MessageResponse{
			"model-a": textResponse(`{"status":"banned","rationale":"carcinogen","confidence":0.95}`),
		},
	}
	c := NewAnthropic(stub, WithAnthropicModels([]string{"model-a", "model-b"}), WithAnthropicRetry(fastRetry()))

	op, err := c.Analyze(context.Background(), "formaldehyde", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, model.StatusBanned, op.Status)
	assert.Equal(t, []string{"model-a"}, stub.models, "fallback model untouched on success")
}

func TestAnthropic_ModelFallback(t *testing.T) {
	stub := &stubAnthropicClient{
		errByModel: map[string]error{
			"retired-model": sdkErr(t, http.StatusNotFound),
		},
		respByModel: map[string]*anthropic.MessageResponse{
			"current-model": textResponse(`{"status":"caution","rationale":"limited data","confidence":0.6}`),
		},
	}
	c := NewAnthropic(stub, WithAnthropicModels([]string{"retired-model", "current-model"}), WithAnthropicRetry(fastRetry()))

	op, err := c.Analyze(context.Background(), "x", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCaution, op.Status)
	assert.Equal(t, []string{"retired-model", "current-model"}, stub.models)
}

func TestAnthropic_AllModelsUnavailable(t *testing.T) {
	stub := &stubAnthropicClient{
		errByModel: map[string]error{
			"a": sdkErr(t, http.StatusNotFound),
			"b": sdkErr(t, http.StatusNotFound),
		},
	}
	c := NewAnthropic(stub, WithAnthropicModels([]string{"a", "b"}), WithAnthropicRetry(fastRetry()))

	op, err := c.Analyze(context.Background(), "x", nil, nil)
	require.Error(t, err)
	assert.Nil(t, op)
	assert.Equal(t, []string{"a", "b"}, stub.models)
}

func TestAnthropic_RetriesRateLimitSameModel(t *testing.T) {
	calls := 0
	stub := &flakyAnthropicClient{
		fn: func() (*anthropic.MessageResponse, error) {
			calls++
			if calls == 1 {
				return nil, sdkErr(t, http.StatusTooManyRequests)
			}
			return textResponse(`{"status":"safe","rationale":"ok","confidence":0.8}`), nil
		},
	}
	c := NewAnthropic(stub, WithAnthropicModels([]string{"only-model"}), WithAnthropicRetry(fastRetry()))

	op, err := c.Analyze(context.Background(), "water", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSafe, op.Status)
	assert.Equal(t, 2, calls, "rate limit retried on the same model")
}

func TestAnthropic_PermanentErrorStopsImmediately(t *testing.T) {
	calls := 0
	stub := &flakyAnthropicClient{
		fn: func() (*anthropic.MessageResponse, error) {
			calls++
			return nil, sdkErr(t, http.StatusUnauthorized)
		},
	}
	c := NewAnthropic(stub, WithAnthropicModels([]string{"m"}), WithAnthropicRetry(fastRetry()))

	_, err := c.Analyze(context.Background(), "x", nil, nil)
	require.Error(t, err)
	assert.Equal(t, 1, calls, "auth failures are not retried")
}

type flakyAnthropicClient struct {
	fn func() (*anthropic.MessageResponse, error)
}

func (f *flakyAnthropicClient) CreateMessage(context.Context, anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	return f.fn()
}
