package llm

import (
	"context"
	"fmt"

	"github.com/scrypster/recollect/internal/config"
)

// Providers bundles the model backends the engine needs.
// Transcriber is nil when transcription is disabled.
type Providers struct {
	Text        TextGenerator
	Embedder    EmbeddingGenerator
	Vision      VisionDescriber
	Transcriber Transcriber
}

// HealthCheckers returns the providers that support a cheap reachability probe.
func (p *Providers) HealthCheckers() map[string]HealthChecker {
	out := make(map[string]HealthChecker)
	for name, v := range map[string]interface{}{
		"text": p.Text, "embedding": p.Embedder, "vision": p.Vision,
	} {
		if hc, ok := v.(HealthChecker); ok {
			out[name] = hc
		}
	}
	return out
}

type factory struct {
	cfg    config.ModelsConfig
	gemini *GeminiClient
}

// NewProviders builds every backend named in cfg. A Gemini client is shared
// between the roles that select it.
func NewProviders(ctx context.Context, cfg config.ModelsConfig) (*Providers, error) {
	f := &factory{cfg: cfg}

	text, err := f.textGenerator(ctx)
	if err != nil {
		return nil, err
	}
	embedder, err := f.embeddingGenerator(ctx)
	if err != nil {
		return nil, err
	}
	vision, err := f.visionDescriber(ctx)
	if err != nil {
		return nil, err
	}
	transcriber, err := f.transcriber(ctx)
	if err != nil {
		return nil, err
	}

	return &Providers{Text: text, Embedder: embedder, Vision: vision, Transcriber: transcriber}, nil
}

func (f *factory) geminiClient(ctx context.Context) (*GeminiClient, error) {
	if f.gemini != nil {
		return f.gemini, nil
	}
	c, err := NewGeminiClient(ctx, GeminiConfig{
		APIKey:         f.cfg.GeminiAPIKey,
		Model:          f.cfg.GeminiModel,
		EmbeddingModel: f.cfg.GeminiEmbeddingModel,
		Timeout:        f.cfg.RequestTimeout,
		Dimensions:     f.cfg.EmbeddingDimension,
	})
	if err != nil {
		return nil, err
	}
	f.gemini = c
	return c, nil
}

func (f *factory) openAI(model string) *OpenAIClient {
	return NewOpenAIClient(OpenAIConfig{
		APIKey:     f.cfg.OpenAIAPIKey,
		BaseURL:    f.cfg.OpenAIBaseURL,
		Model:      model,
		Timeout:    f.cfg.RequestTimeout,
		Dimensions: f.cfg.EmbeddingDimension,
	})
}

func (f *factory) ollama(model string) *OllamaClient {
	return NewOllamaClient(OllamaConfig{BaseURL: f.cfg.OllamaURL, Model: model, Timeout: f.cfg.RequestTimeout})
}

func (f *factory) textGenerator(ctx context.Context) (TextGenerator, error) {
	switch f.cfg.TextProvider {
	case "openai":
		return f.openAI(f.cfg.OpenAIModel), nil
	case "anthropic":
		return NewAnthropicClient(AnthropicConfig{
			APIKey:  f.cfg.AnthropicAPIKey,
			Model:   f.cfg.AnthropicModel,
			Timeout: f.cfg.RequestTimeout,
		}), nil
	case "gemini":
		return f.geminiClient(ctx)
	case "ollama", "":
		return f.ollama(f.cfg.OllamaModel), nil
	default:
		return nil, fmt.Errorf("unsupported text provider: %q", f.cfg.TextProvider)
	}
}

func (f *factory) embeddingGenerator(ctx context.Context) (EmbeddingGenerator, error) {
	switch f.cfg.EmbeddingProvider {
	case "openai":
		model := f.cfg.OpenAIEmbeddingModel
		if model == "" {
			model = "text-embedding-3-small"
		}
		return f.openAI(model), nil
	case "gemini":
		return f.geminiClient(ctx)
	case "ollama", "":
		model := f.cfg.OllamaEmbeddingModel
		if model == "" {
			model = "nomic-embed-text"
		}
		return f.ollama(model), nil
	default:
		// Anthropic has no embedding endpoint.
		return nil, fmt.Errorf("unsupported embedding provider: %q", f.cfg.EmbeddingProvider)
	}
}

func (f *factory) visionDescriber(ctx context.Context) (VisionDescriber, error) {
	switch f.cfg.VisionProvider {
	case "openai":
		return f.openAI(f.cfg.OpenAIModel), nil
	case "anthropic":
		return NewAnthropicClient(AnthropicConfig{
			APIKey:  f.cfg.AnthropicAPIKey,
			Model:   f.cfg.AnthropicModel,
			Timeout: f.cfg.RequestTimeout,
		}), nil
	case "gemini":
		return f.geminiClient(ctx)
	case "ollama", "":
		model := f.cfg.OllamaVisionModel
		if model == "" {
			model = "llava:7b"
		}
		return f.ollama(model), nil
	default:
		return nil, fmt.Errorf("unsupported vision provider: %q", f.cfg.VisionProvider)
	}
}

func (f *factory) transcriber(ctx context.Context) (Transcriber, error) {
	switch f.cfg.TranscriptionProvider {
	case "none":
		return nil, nil
	case "gemini":
		return f.geminiClient(ctx)
	case "whisper", "":
		apiKey := f.cfg.WhisperAPIKey
		if apiKey == "" {
			apiKey = f.cfg.OpenAIAPIKey
		}
		baseURL := f.cfg.WhisperBaseURL
		if baseURL == "" {
			baseURL = f.cfg.OpenAIBaseURL
		}
		return NewWhisperTranscriber(WhisperConfig{
			APIKey:  apiKey,
			BaseURL: baseURL,
			Model:   f.cfg.WhisperModel,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported transcription provider: %q", f.cfg.TranscriptionProvider)
	}
}
