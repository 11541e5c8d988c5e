package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/recollect/internal/config"
)

func TestNewProviders_Defaults(t *testing.T) {
	p, err := NewProviders(context.Background(), config.ModelsConfig{})
	require.NoError(t, err)

	assert.IsType(t, &OllamaClient{}, p.Text)
	assert.IsType(t, &OllamaClient{}, p.Embedder)
	assert.IsType(t, &OllamaClient{}, p.Vision)
	assert.IsType(t, &WhisperTranscriber{}, p.Transcriber)
	assert.Equal(t, "nomic-embed-text", p.Embedder.GetModel())
	assert.Equal(t, "llava:7b", p.Vision.GetModel())
	assert.Len(t, p.HealthCheckers(), 3)
}

func TestNewProviders_SharesGeminiClient(t *testing.T) {
	p, err := NewProviders(context.Background(), config.ModelsConfig{
		TextProvider:          "anthropic",
		EmbeddingProvider:     "gemini",
		VisionProvider:        "gemini",
		TranscriptionProvider: "gemini",
		GeminiAPIKey:          "test",
		AnthropicAPIKey:       "test",
	})
	require.NoError(t, err)

	assert.IsType(t, &AnthropicClient{}, p.Text)
	g, ok := p.Vision.(*GeminiClient)
	require.True(t, ok)
	assert.Same(t, g, p.Embedder.(*GeminiClient))
	assert.Same(t, g, p.Transcriber.(*GeminiClient))
	assert.Empty(t, p.HealthCheckers())
}

func TestNewProviders_TranscriptionDisabled(t *testing.T) {
	p, err := NewProviders(context.Background(), config.ModelsConfig{TranscriptionProvider: "none"})
	require.NoError(t, err)
	assert.Nil(t, p.Transcriber)
}

func TestNewProviders_Unsupported(t *testing.T) {
	_, err := NewProviders(context.Background(), config.ModelsConfig{EmbeddingProvider: "anthropic"})
	assert.Error(t, err)

	_, err = NewProviders(context.Background(), config.ModelsConfig{TextProvider: "cohere"})
	assert.Error(t, err)
}

func TestCircuitBreaker_RunTyped(t *testing.T) {
	cb := NewCircuitBreakerWithConfig(CircuitBreakerConfig{Name: "test", MaxFailures: 1, HalfOpenMaxSuccesses: 1})

	n, err := run(context.Background(), cb, func() (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	boom := errors.New("boom")
	_, err = run(context.Background(), cb, func() (int, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)

	_, err = run(context.Background(), cb, func() (int, error) { return 1, nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Contains(t, err.Error(), "test circuit breaker open")

	m := cb.Metrics()
	assert.Equal(t, uint64(3), m.TotalRequests)
	assert.Equal(t, uint64(1), m.TotalSuccesses)
}

func TestCircuitBreaker_CancelledContext(t *testing.T) {
	cb := NewCircuitBreaker("ctx")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := run(ctx, cb, func() (string, error) { return "unreachable", nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "closed", cb.State())
}
