// client.go — Chat-completions client for the LLM collaborator.
// One POST per call: no retries and no timeout beyond the HTTP client's own.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/EmreDinc10/bugscribe/internal/types"
)

// Defaults match the hosted chat-completions API.
const (
	DefaultBaseURL     = "https://api.openai.com/v1"
	DefaultModel       = "gpt-4o-mini"
	DefaultTemperature = 0.3
	DefaultTimeout     = 2 * time.Minute
)

var (
	// ErrMissingAPIKey is returned before any request is made when no key is configured.
	ErrMissingAPIKey = errors.New("missing LLM API key (set llm.api_key or OPENAI_API_KEY)")
	// ErrNoChoices is returned when a 2xx response carries no message.
	ErrNoChoices = errors.New("LLM response contained no choices")
)

// StatusError is a non-2xx reply. Body is the response text as received.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("LLM error %d: %s", e.StatusCode, e.Body)
}

// Request is one completion call.
type Request struct {
	Messages []types.ChatMessage
	// JSONMode asks the model for a single JSON object.
	JSONMode bool
}

// Client is the LLM collaborator seen by the report flows.
type Client interface {
	Complete(ctx context.Context, req Request) (types.ChatMessage, error)
}

// Config configures OpenAIClient.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// OpenAIClient talks to any OpenAI-compatible chat-completions endpoint.
type OpenAIClient struct {
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	httpClient  *http.Client
	logger      *zap.Logger
}

// NewOpenAIClient creates a client. Empty config fields take the package defaults.
func NewOpenAIClient(cfg Config, logger *zap.Logger) *OpenAIClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAIClient{
		apiKey:      cfg.APIKey,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		logger:      logger.Named("llm"),
	}
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string              `json:"model"`
	Temperature    float64             `json:"temperature"`
	Messages       []types.ChatMessage `json:"messages"`
	ResponseFormat *responseFormat     `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message types.ChatMessage `json:"message"`
	} `json:"choices"`
}

// Complete sends req and returns the first choice's message.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (types.ChatMessage, error) {
	if c.apiKey == "" {
		return types.ChatMessage{}, ErrMissingAPIKey
	}

	body := chatRequest{
		Model:       c.model,
		Temperature: c.temperature,
		Messages:    req.Messages,
	}
	if req.JSONMode {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return types.ChatMessage{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return types.ChatMessage{}, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return types.ChatMessage{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.ChatMessage{}, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("completion rejected",
			zap.Int("status", resp.StatusCode),
			zap.Duration("elapsed", time.Since(start)))
		return types.ChatMessage{}, &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return types.ChatMessage{}, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return types.ChatMessage{}, ErrNoChoices
	}

	msg := parsed.Choices[0].Message
	if msg.Role == "" {
		msg.Role = types.RoleAssistant
	}
	c.logger.Debug("completion done",
		zap.String("model", c.model),
		zap.Int("messages", len(req.Messages)),
		zap.Bool("json_mode", req.JSONMode),
		zap.Int("response_len", len(msg.Content)),
		zap.Duration("elapsed", time.Since(start)))
	return msg, nil
}
