package llm

import (
	"context"
	"errors"

	"github.com/scrypster/recollect/pkg/types"
)

// ErrUnsupportedMedia is returned by a VisionDescriber that cannot read the
// given MIME type (most image-only models reject video).
var ErrUnsupportedMedia = errors.New("unsupported media type")

// TextGenerator is the interface for LLM text completion.
// All prompts use single-string completion style (not chat).
type TextGenerator interface {
	Complete(ctx context.Context, prompt string) (string, error)
	GetModel() string
}

// EmbeddingGenerator is the interface for generating vector embeddings.
type EmbeddingGenerator interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	GetModel() string
}

// VisionDescriber turns image (or, for multimodal models, video) bytes into text.
type VisionDescriber interface {
	Describe(ctx context.Context, prompt string, media []byte, mimeType string) (string, error)
	GetModel() string
}

// Transcriber converts spoken audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, fileName string) (*Transcription, error)
}

// Transcription is the result of a speech-to-text call. Segments are optional;
// not every backend reports timings.
type Transcription struct {
	Text     string
	Language string
	Segments []types.TranscriptSegment
}

// HealthChecker is implemented by backends that can be probed cheaply.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
