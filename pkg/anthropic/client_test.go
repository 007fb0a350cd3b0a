package anthropic

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// newAPIError builds an sdk.Error the way the SDK does on a failed request:
// request/response attached, status set, body loaded through UnmarshalJSON so
// RawJSON() returns it.
func newAPIError(t *testing.T, status int, body string) *sdk.Error {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "https://api.anthropic.com/v1/messages", nil)
	resp := &http.Response{StatusCode: status, Header: http.Header{}, Request: req}
	apiErr := &sdk.Error{Request: req, Response: resp, StatusCode: status}
	require.NoError(t, apiErr.UnmarshalJSON([]byte(body)))
	return apiErr
}

// MockClient implements Client for testing.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*MessageResponse), args.Error(1)
}

func TestCreateMessage_MockClient(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	req := MessageRequest{
		Model:     "claude-sonnet-4-5-20250929",
		MaxTokens: 1024,
		Messages: []Message{
			{Role: "user", Content: "Hello"},
		},
	}

	expected := &MessageResponse{
		ID:         "msg_123",
		Model:      "claude-sonnet-4-5-20250929",
		Content:    []ContentBlock{{Type: "text", Text: "Hi there!"}},
		StopReason: "end_turn",
		Usage: TokenUsage{
			InputTokens:  10,
			OutputTokens: 5,
		},
	}

	mc.On("CreateMessage", ctx, req).Return(expected, nil)

	resp, err := mc.CreateMessage(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "msg_123", resp.ID)
	assert.Equal(t, "Hi there!", resp.Content[0].Text)
	assert.Equal(t, int64(10), resp.Usage.InputTokens)
	assert.Equal(t, int64(5), resp.Usage.OutputTokens)

	mc.AssertExpectations(t)
}

func TestMessageResponseText(t *testing.T) {
	resp := &MessageResponse{
		Content: []ContentBlock{
			{Type: "text", Text: `{"status":`},
			{Type: "tool_use", Text: "ignored"},
			{Type: "text", Text: `"safe"}`},
		},
	}
	assert.Equal(t, `{"status":"safe"}`, resp.Text())
}

func TestSDKTypeConversion_toSDKMessages(t *testing.T) {
	msgs := []Message{
		{Role: "user", Content: "Hello"},
		{Role: "assistant", Content: "Hi there"},
	}

	sdkMsgs := toSDKMessages(msgs)
	require.Len(t, sdkMsgs, 2)
}

func TestSDKTypeConversion_toSDKSystemBlocks(t *testing.T) {
	blocks := []SystemBlock{
		{Text: "You are a helpful assistant."},
		{Text: "Context data here.", CacheControl: &CacheControl{TTL: "1h"}},
	}

	sdkBlocks := toSDKSystemBlocks(blocks)
	require.Len(t, sdkBlocks, 2)
	assert.Equal(t, "You are a helpful assistant.", sdkBlocks[0].Text)
	assert.Equal(t, "Context data here.", sdkBlocks[1].Text)
}

func TestBuildCachedSystemBlocks(t *testing.T) {
	blocks := BuildCachedSystemBlocks("system prompt")
	require.Len(t, blocks, 1)
	assert.Equal(t, "system prompt", blocks[0].Text)
	require.NotNil(t, blocks[0].CacheControl)
	assert.Equal(t, "1h", blocks[0].CacheControl.TTL)
}

func TestRateLimitHint(t *testing.T) {
	hdr := http.Header{}
	hdr.Set("Retry-After", "25")
	err := &sdk.Error{
		StatusCode: http.StatusTooManyRequests,
		Response:   &http.Response{Header: hdr},
	}

	hint, ok := RateLimitHint(err)
	require.True(t, ok)
	assert.Equal(t, 25*time.Second, hint)
}

func TestRateLimitHint_NoHeader(t *testing.T) {
	err := &sdk.Error{
		StatusCode: http.StatusTooManyRequests,
		Response:   &http.Response{Header: http.Header{}},
	}

	hint, ok := RateLimitHint(err)
	require.True(t, ok)
	assert.Zero(t, hint, "caller applies its own default wait")
}

func TestRateLimitHint_NotRateLimited(t *testing.T) {
	_, ok := RateLimitHint(&sdk.Error{StatusCode: http.StatusInternalServerError})
	assert.False(t, ok)

	_, ok = RateLimitHint(errors.New("plain error"))
	assert.False(t, ok)
}

func TestIsModelNotFound(t *testing.T) {
	assert.True(t, IsModelNotFound(newAPIError(t, http.StatusNotFound,
		`{"type":"error","error":{"type":"not_found_error","message":"model: claude-old-1"}}`)))
	assert.True(t, IsModelNotFound(newAPIError(t, http.StatusBadRequest,
		`{"type":"error","error":{"type":"invalid_request_error","message":"model claude-old-1 has been decommissioned"}}`)))
	assert.False(t, IsModelNotFound(newAPIError(t, http.StatusBadRequest,
		`{"type":"error","error":{"type":"invalid_request_error","message":"max_tokens out of range"}}`)))
	assert.False(t, IsModelNotFound(errors.New("plain error")))
}

func TestIsServerError(t *testing.T) {
	assert.True(t, IsServerError(&sdk.Error{StatusCode: http.StatusBadGateway}))
	assert.True(t, IsServerError(&sdk.Error{StatusCode: http.StatusRequestTimeout}))
	assert.False(t, IsServerError(&sdk.Error{StatusCode: http.StatusTooManyRequests}))
	assert.False(t, IsServerError(errors.New("plain error")))
}

func TestEstimateCost_Haiku(t *testing.T) {
	usage := TokenUsage{InputTokens: 1_000_000, OutputTokens: 1_000_000}
	cost := usage.EstimateCost("claude-haiku-4-5-20251001")
	// input: 1M * $0.80/MTok = $0.80
	// output: 1M * $4.00/MTok = $4.00
	// total: $4.80
	assert.InDelta(t, 4.80, cost, 0.001)
}

func TestEstimateCost_Sonnet(t *testing.T) {
	usage := TokenUsage{InputTokens: 1_000_000, OutputTokens: 1_000_000}
	cost := usage.EstimateCost("claude-sonnet-4-5-20250929")
	// input: 1M * $3.00 = $3.00
	// output: 1M * $15.00 = $15.00
	// total: $18.00
	assert.InDelta(t, 18.00, cost, 0.001)
}

func TestEstimateCost_WithCache(t *testing.T) {
	usage := TokenUsage{
		InputTokens:              500_000,
		OutputTokens:             100_000,
		CacheCreationInputTokens: 200_000,
		CacheReadInputTokens:     300_000,
	}
	cost := usage.EstimateCost("claude-haiku-4-5-20251001")
	// input: 0.5M * $0.80 = $0.40
	// output: 0.1M * $4.00 = $0.40
	// cacheWrite: 0.2M * $0.80 * 1.25 = $0.20
	// cacheRead: 0.3M * $0.80 * 0.10 = $0.024
	// total: $1.024
	assert.InDelta(t, 1.024, cost, 0.001)
}

func TestEstimateCost_UnknownModel(t *testing.T) {
	usage := TokenUsage{InputTokens: 1_000_000, OutputTokens: 1_000_000}
	cost := usage.EstimateCost("unknown-model")
	assert.Equal(t, 0.0, cost)
}

func TestLogCost_DoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		usage := TokenUsage{InputTokens: 100, OutputTokens: 50}
		usage.LogCost("claude-haiku-4-5-20251001", "classify")
	})

	assert.NotPanics(t, func() {
		usage := TokenUsage{}
		usage.LogCost("unknown-model", "")
	})
}
