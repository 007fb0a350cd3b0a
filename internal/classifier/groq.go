package classifier

import (
	openai "github.com/sashabaranov/go-openai"
)

const groqBaseURL = "https://api.groq.com/openai/v1"

// DefaultGroqModels is the ordered fallback list for the Groq backend. Groq
// retires hosted models aggressively, which is why the list runs deep.
var DefaultGroqModels = []string{
	"llama-3.3-70b-versatile",
	"llama-3.1-8b-instant",
	"gemma2-9b-it",
}

// NewGroq creates the Groq-backed classifier. Groq speaks the OpenAI chat
// protocol, so only the base URL and model list differ.
func NewGroq(apiKey string, opts ...ChatOption) *ChatClassifier {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = groqBaseURL
	return newChatClassifier("groq", openai.NewClientWithConfig(cfg), DefaultGroqModels, opts...)
}
