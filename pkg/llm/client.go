package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/pdferret/pdferret/pkg/docmodel"
)

// ClientConfig configures a gateway-backed model handle.
type ClientConfig struct {
	BaseURL        string
	APIKey         string
	Model          string
	Timeout        time.Duration
	MaxInputTokens int
}

// Client talks to an OpenAI-compatible chat completion gateway. One Client
// is one model handle; text and vision models are separate instances.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	logger     *logrus.Logger
	tracer     trace.Tracer
}

// NewClient creates a model handle for the given gateway and model name.
func NewClient(config ClientConfig, logger *logrus.Logger) (*Client, error) {
	if config.Model == "" {
		return nil, fmt.Errorf("model name is required")
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:8080/v1"
	}
	if config.Timeout == 0 {
		config.Timeout = 2 * time.Minute
	}
	if config.MaxInputTokens == 0 {
		config.MaxInputTokens = 32768
	}
	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger,
		tracer:     otel.Tracer("pdferret.llm"),
	}, nil
}

func (c *Client) Name() string        { return c.config.Model }
func (c *Client) MaxInputTokens() int { return c.config.MaxInputTokens }

type wireContentPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *wireImageURL `json:"image_url,omitempty"`
}

type wireImageURL struct {
	URL string `json:"url"`
}

type wireMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type wireRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type wireResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Complete generates a completion for the given request.
func (c *Client) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	ctx, span := c.tracer.Start(ctx, "llm.complete")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", req.Model),
		attribute.Int("llm.messages", len(req.Messages)),
	)

	wire := wireRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if wire.Model == "" {
		wire.Model = c.config.Model
	}
	for _, m := range req.Messages {
		if m.Image == nil {
			wire.Messages = append(wire.Messages, wireMessage{Role: m.Role, Content: m.Content})
			continue
		}
		parts := []wireContentPart{
			{Type: "text", Text: m.Content},
			{Type: "image_url", ImageURL: &wireImageURL{
				URL: "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(m.Image),
			}},
		}
		wire.Messages = append(wire.Messages, wireMessage{Role: m.Role, Content: parts})
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, docmodel.Externalf("llm request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, docmodel.Externalf("failed to read llm response: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, docmodel.Externalf("llm returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed wireResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, docmodel.Parsef("failed to decode llm response: %v", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, docmodel.Parsef("llm response contained no choices")
	}

	c.logger.WithFields(logrus.Fields{
		"model":  parsed.Model,
		"tokens": parsed.Usage.TotalTokens,
	}).Debug("LLM completion finished")

	return &CompletionResponse{
		Content: parsed.Choices[0].Message.Content,
		Model:   parsed.Model,
		Usage: TokenUsage{
			PromptTokens:     parsed.Usage.PromptTokens,
			CompletionTokens: parsed.Usage.CompletionTokens,
			TotalTokens:      parsed.Usage.TotalTokens,
		},
	}, nil
}
