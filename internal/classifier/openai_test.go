package classifier

import (
	"context"
	"net/http"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/purelabel/safecheck/internal/model"
)

type stubChatClient struct {
	errByModel map[string]error
	content    string
	models     []string
}

func (s *stubChatClient) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	s.models = append(s.models, req.Model)
	if err, ok := s.errByModel[req.Model]; ok {
		return openai.ChatCompletionResponse{}, err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: s.content}},
		},
	}, nil
}

func TestChatClassifier_Analyze(t *testing.T) {
	stub := &stubChatClient{content: `{"status":"caution","rationale":"sensitizer","confidence":0.7}`}
	c := newChatClassifier("groq", stub, []string{"m1", "m2"}, WithChatRetry(fastRetry()))

	op, err := c.Analyze(context.Background(), "fragrance", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCaution, op.Status)
	assert.Equal(t, "groq", c.Name())
	assert.Equal(t, []string{"m1"}, stub.models)
}

func TestChatClassifier_DecommissionedModelAdvances(t *testing.T) {
	stub := &stubChatClient{
		errByModel: map[string]error{
			"old": &openai.APIError{
				HTTPStatusCode: http.StatusBadRequest,
				Message:        "The model `old` has been decommissioned",
			},
		},
		content: `{"status":"safe","rationale":"ok","confidence":0.8}`,
	}
	c := newChatClassifier("groq", stub, []string{"old", "new"}, WithChatRetry(fastRetry()))

	op, err := c.Analyze(context.Background(), "water", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSafe, op.Status)
	assert.Equal(t, []string{"old", "new"}, stub.models)
}

func TestChatClassifier_ServerErrorRetriesThenFails(t *testing.T) {
	stub := &stubChatClient{
		errByModel: map[string]error{
			"m": &openai.APIError{HTTPStatusCode: http.StatusBadGateway, Message: "bad gateway"},
		},
	}
	c := newChatClassifier("openai", stub, []string{"m"}, WithChatRetry(fastRetry()))

	_, err := c.Analyze(context.Background(), "x", nil, nil)
	require.Error(t, err)
	assert.Len(t, stub.models, 3, "transient errors exhaust the retry budget")
}

func TestChatClassifier_EmptyChoicesFallsBack(t *testing.T) {
	c := newChatClassifier("openai", &emptyChatClient{}, []string{"m"}, WithChatRetry(fastRetry()))

	op, err := c.Analyze(context.Background(), "x", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCaution, op.Status)
}

type emptyChatClient struct{}

func (*emptyChatClient) CreateChatCompletion(context.Context, openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	return openai.ChatCompletionResponse{}, nil
}

func TestIsChatModelNotFound(t *testing.T) {
	assert.True(t, isChatModelNotFound(&openai.APIError{HTTPStatusCode: http.StatusNotFound}))
	assert.True(t, isChatModelNotFound(&openai.APIError{
		HTTPStatusCode: http.StatusBadRequest,
		Message:        "model does not exist",
	}))
	assert.False(t, isChatModelNotFound(&openai.APIError{
		HTTPStatusCode: http.StatusBadRequest,
		Message:        "invalid request",
	}))
}
