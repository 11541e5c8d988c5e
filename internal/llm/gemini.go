package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"
)

// GeminiConfig holds configuration for the Gemini client.
type GeminiConfig struct {
	APIKey         string
	Model          string        // default: gemini-2.0-flash
	EmbeddingModel string        // default: text-embedding-004
	BaseURL        string        // Optional; used by tests and gateways
	Timeout        time.Duration // default: 120s
	Dimensions     int           // Embedding output dimensionality; 0 keeps the model default
}

// GeminiClient covers every model capability with one natively multimodal
// backend: completion, image and video description, audio transcription and
// embeddings.
type GeminiClient struct {
	cfg            GeminiConfig
	client         *genai.Client
	circuitBreaker *CircuitBreaker
}

// NewGeminiClient creates a Gemini API client.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = "text-embedding-004"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  &http.Client{Timeout: cfg.Timeout},
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiClient{
		cfg:            cfg,
		client:         client,
		circuitBreaker: NewCircuitBreaker("gemini:" + cfg.Model),
	}, nil
}

// Complete runs a text-only generation.
func (c *GeminiClient) Complete(ctx context.Context, prompt string) (string, error) {
	return run(ctx, c.circuitBreaker, func() (string, error) {
		return c.generate(ctx, genai.NewPartFromText(prompt))
	})
}

// Describe accepts inline image, video or audio bytes.
func (c *GeminiClient) Describe(ctx context.Context, prompt string, media []byte, mimeType string) (string, error) {
	if mimeType == "" {
		return "", fmt.Errorf("gemini vision: %w: missing mime type", ErrUnsupportedMedia)
	}
	return run(ctx, c.circuitBreaker, func() (string, error) {
		return c.generate(ctx, genai.NewPartFromBytes(media, mimeType), genai.NewPartFromText(prompt))
	})
}

// Transcribe asks the model for a verbatim transcript. Gemini reports no segment timings.
func (c *GeminiClient) Transcribe(ctx context.Context, audio []byte, fileName string) (*Transcription, error) {
	if len(audio) == 0 {
		return nil, fmt.Errorf("gemini: empty audio")
	}
	mimeType := audioMimeType(fileName)
	text, err := run(ctx, c.circuitBreaker, func() (string, error) {
		return c.generate(ctx, genai.NewPartFromBytes(audio, mimeType), genai.NewPartFromText(TranscriptionPrompt))
	})
	if err != nil {
		return nil, err
	}
	return &Transcription{Text: strings.TrimSpace(text)}, nil
}

func (c *GeminiClient) generate(ctx context.Context, parts ...*genai.Part) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp, err := c.client.Models.GenerateContent(ctx, c.cfg.Model,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)},
		&genai.GenerateContentConfig{Temperature: genai.Ptr(float32(0.1))},
	)
	if err != nil {
		return "", fmt.Errorf("gemini generate failed: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("gemini returned empty content")
	}
	return text, nil
}

// Embed generates an embedding with the configured embedding model.
func (c *GeminiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	return run(ctx, c.circuitBreaker, func() ([]float32, error) {
		ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()

		var embedCfg *genai.EmbedContentConfig
		if c.cfg.Dimensions > 0 {
			embedCfg = &genai.EmbedContentConfig{OutputDimensionality: genai.Ptr(int32(c.cfg.Dimensions))}
		}
		resp, err := c.client.Models.EmbedContent(ctx, c.cfg.EmbeddingModel,
			[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}, embedCfg)
		if err != nil {
			return nil, fmt.Errorf("gemini embedding failed: %w", err)
		}
		if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
			return nil, fmt.Errorf("gemini returned empty embedding vector")
		}
		return resp.Embeddings[0].Values, nil
	})
}

// GetModel returns the generation model name.
func (c *GeminiClient) GetModel() string {
	return c.cfg.Model
}

// audioMimeType guesses the container from the file name; Gemini needs an explicit type.
func audioMimeType(fileName string) string {
	lower := strings.ToLower(fileName)
	switch {
	case strings.HasSuffix(lower, ".mp3"):
		return "audio/mp3"
	case strings.HasSuffix(lower, ".wav"):
		return "audio/wav"
	case strings.HasSuffix(lower, ".ogg"), strings.HasSuffix(lower, ".opus"):
		return "audio/ogg"
	case strings.HasSuffix(lower, ".flac"):
		return "audio/flac"
	case strings.HasSuffix(lower, ".aac"):
		return "audio/aac"
	case strings.HasSuffix(lower, ".mp4"), strings.HasSuffix(lower, ".mov"):
		return "video/mp4"
	case strings.HasSuffix(lower, ".webm"):
		return "video/webm"
	default:
		return "audio/mp4"
	}
}

var (
	_ TextGenerator      = (*GeminiClient)(nil)
	_ EmbeddingGenerator = (*GeminiClient)(nil)
	_ VisionDescriber    = (*GeminiClient)(nil)
	_ Transcriber        = (*GeminiClient)(nil)
)
