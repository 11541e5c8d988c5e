package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicConfig holds configuration for the Anthropic client.
type AnthropicConfig struct {
	APIKey  string
	Model   string        // default: claude-3-5-sonnet-20241022
	BaseURL string        // Optional proxy or gateway
	Timeout time.Duration // default: 60s
}

// AnthropicClient implements TextGenerator and VisionDescriber using the Messages API.
type AnthropicClient struct {
	cfg            AnthropicConfig
	client         anthropic.Client
	circuitBreaker *CircuitBreaker
}

// NewAnthropicClient creates a new Anthropic client with the given configuration.
func NewAnthropicClient(cfg AnthropicConfig) *AnthropicClient {
	if cfg.Model == "" {
		cfg.Model = "claude-3-5-sonnet-20241022"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		// Retries are left to the circuit breaker.
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &AnthropicClient{
		cfg:            cfg,
		client:         anthropic.NewClient(opts...),
		circuitBreaker: NewCircuitBreaker("anthropic:" + cfg.Model),
	}
}

// Complete sends a single-turn completion to Anthropic and returns the response text.
func (c *AnthropicClient) Complete(ctx context.Context, prompt string) (string, error) {
	return run(ctx, c.circuitBreaker, func() (string, error) {
		return c.send(ctx, anthropic.NewTextBlock(prompt))
	})
}

// Describe sends a still image with the prompt. Video is not accepted by the API.
func (c *AnthropicClient) Describe(ctx context.Context, prompt string, media []byte, mimeType string) (string, error) {
	switch mimeType {
	case "image/jpeg", "image/png", "image/gif", "image/webp":
	default:
		return "", fmt.Errorf("anthropic vision: %w: %s", ErrUnsupportedMedia, mimeType)
	}
	return run(ctx, c.circuitBreaker, func() (string, error) {
		return c.send(ctx,
			anthropic.NewImageBlockBase64(mimeType, base64.StdEncoding.EncodeToString(media)),
			anthropic.NewTextBlock(prompt),
		)
	})
}

func (c *AnthropicClient) send(ctx context.Context, blocks ...anthropic.ContentBlockParamUnion) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.cfg.Model),
		MaxTokens: 4096,
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(blocks...)},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic request failed: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("anthropic returned empty content")
	}
	return sb.String(), nil
}

// GetModel returns the configured model name.
func (c *AnthropicClient) GetModel() string {
	return c.cfg.Model
}

var (
	_ TextGenerator   = (*AnthropicClient)(nil)
	_ VisionDescriber = (*AnthropicClient)(nil)
)
