package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/scrypster/recollect/pkg/types"
)

// OpenAIConfig holds configuration for OpenAI and OpenAI-compatible backends
// (Groq, OpenRouter, LM Studio, vLLM) selected through BaseURL.
type OpenAIConfig struct {
	APIKey     string
	Model      string        // default: gpt-4o-mini
	BaseURL    string        // default: https://api.openai.com/v1
	Timeout    time.Duration // default: 60s
	Dimensions int           // Embedding size for text-embedding-3 models; 0 keeps the model default
}

// OpenAIClient implements text completion, vision and embeddings on top of
// go-openai. Which methods are meaningful depends on the configured model.
type OpenAIClient struct {
	cfg            OpenAIConfig
	client         *openai.Client
	circuitBreaker *CircuitBreaker
}

// NewOpenAIClient creates a new OpenAI client with the given configuration.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &OpenAIClient{
		cfg:            cfg,
		client:         newOpenAIAPI(cfg.APIKey, cfg.BaseURL, cfg.Timeout),
		circuitBreaker: NewCircuitBreaker("openai:" + cfg.Model),
	}
}

func newOpenAIAPI(apiKey, baseURL string, timeout time.Duration) *openai.Client {
	clientCfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	clientCfg.HTTPClient = &http.Client{Timeout: timeout}
	return openai.NewClientWithConfig(clientCfg)
}

// Complete sends a single-turn chat completion and returns the response text.
func (c *OpenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	return run(ctx, c.circuitBreaker, func() (string, error) {
		return c.chat(ctx, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: prompt,
		})
	})
}

// Describe sends an image as a data URI alongside the prompt.
func (c *OpenAIClient) Describe(ctx context.Context, prompt string, media []byte, mimeType string) (string, error) {
	if !strings.HasPrefix(mimeType, "image/") {
		return "", fmt.Errorf("openai vision: %w: %s", ErrUnsupportedMedia, mimeType)
	}
	dataURI := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(media)
	return run(ctx, c.circuitBreaker, func() (string, error) {
		return c.chat(ctx, openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: prompt},
				{
					Type: openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{
						URL:    dataURI,
						Detail: openai.ImageURLDetailAuto,
					},
				},
			},
		})
	})
}

func (c *OpenAIClient) chat(ctx context.Context, msg openai.ChatCompletionMessage) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    []openai.ChatCompletionMessage{msg},
		Temperature: 0.1,
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Embed generates an embedding for the given text.
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	return run(ctx, c.circuitBreaker, func() ([]float32, error) {
		ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()

		resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input:      []string{text},
			Model:      openai.EmbeddingModel(c.cfg.Model),
			Dimensions: c.cfg.Dimensions,
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedding failed: %w", err)
		}
		if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
			return nil, fmt.Errorf("openai returned empty embedding vector")
		}
		return resp.Data[0].Embedding, nil
	})
}

// GetModel returns the configured model name.
func (c *OpenAIClient) GetModel() string {
	return c.cfg.Model
}

// WhisperConfig configures an OpenAI-compatible transcription endpoint.
type WhisperConfig struct {
	APIKey  string
	BaseURL string        // default: https://api.openai.com/v1
	Model   string        // default: whisper-1
	Timeout time.Duration // default: 120s
}

// WhisperTranscriber implements Transcriber with the audio transcription
// endpoint. It accepts both audio files and video containers (mp4, webm).
type WhisperTranscriber struct {
	cfg            WhisperConfig
	client         *openai.Client
	circuitBreaker *CircuitBreaker
}

// NewWhisperTranscriber creates a transcriber for the configured endpoint.
func NewWhisperTranscriber(cfg WhisperConfig) *WhisperTranscriber {
	if cfg.Model == "" {
		cfg.Model = openai.Whisper1
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &WhisperTranscriber{
		cfg:            cfg,
		client:         newOpenAIAPI(cfg.APIKey, cfg.BaseURL, cfg.Timeout),
		circuitBreaker: NewCircuitBreaker("whisper:" + cfg.Model),
	}
}

// Transcribe uploads the audio and returns the verbose transcript with segments.
func (w *WhisperTranscriber) Transcribe(ctx context.Context, audio []byte, fileName string) (*Transcription, error) {
	if len(audio) == 0 {
		return nil, fmt.Errorf("whisper: empty audio")
	}
	if fileName == "" {
		fileName = "audio.m4a"
	}
	return run(ctx, w.circuitBreaker, func() (*Transcription, error) {
		ctx, cancel := context.WithTimeout(ctx, w.cfg.Timeout)
		defer cancel()

		resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
			Model:    w.cfg.Model,
			FilePath: fileName,
			Reader:   bytes.NewReader(audio),
			Format:   openai.AudioResponseFormatVerboseJSON,
		})
		if err != nil {
			return nil, fmt.Errorf("whisper transcription failed: %w", err)
		}

		out := &Transcription{
			Text:     strings.TrimSpace(resp.Text),
			Language: resp.Language,
		}
		for _, seg := range resp.Segments {
			out.Segments = append(out.Segments, types.TranscriptSegment{
				Text:  strings.TrimSpace(seg.Text),
				Start: seg.Start,
				End:   seg.End,
			})
		}
		return out, nil
	})
}

var (
	_ TextGenerator      = (*OpenAIClient)(nil)
	_ EmbeddingGenerator = (*OpenAIClient)(nil)
	_ VisionDescriber    = (*OpenAIClient)(nil)
	_ Transcriber        = (*WhisperTranscriber)(nil)
)
