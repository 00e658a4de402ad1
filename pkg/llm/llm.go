package llm

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pdferret/pdferret/pkg/docmodel"
)

// Message is a single turn of a model conversation. Image carries raw image
// bytes for vision-capable models.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Image   []byte `json:"-"`
}

// CompletionRequest is a provider-agnostic completion call.
type CompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

// TokenUsage reports the token accounting of a completion.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CompletionResponse is the model's reply.
type CompletionResponse struct {
	Content string     `json:"content"`
	Model   string     `json:"model"`
	Usage   TokenUsage `json:"usage"`
}

// Model is a handle to one language or vision model behind a gateway.
type Model interface {
	// Complete generates a completion for the given request.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// Name returns the model identifier sent to the gateway.
	Name() string

	// MaxInputTokens returns the model's input budget.
	MaxInputTokens() int
}

// StructuredResponse issues a completion and decodes the reply as JSON into
// out. Models occasionally wrap JSON in a markdown fence; that wrapping is
// stripped before decoding. A reply that does not fit the schema is a
// ParseError for the calling stage's item.
func StructuredResponse(ctx context.Context, m Model, system, user string, image []byte, temperature float64, maxTokens int, out any) error {
	req := &CompletionRequest{
		Model: m.Name(),
		Messages: []Message{
			{Role: "system", Content: system},
			{Role: "user", Content: user, Image: image},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
	resp, err := m.Complete(ctx, req)
	if err != nil {
		return err
	}
	raw := stripFence(resp.Content)
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return docmodel.Parsef("model returned malformed JSON: %v", err)
	}
	return nil
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}
