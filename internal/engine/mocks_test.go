package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/scrypster/recollect/internal/content"
	"github.com/scrypster/recollect/internal/llm"
	"github.com/scrypster/recollect/internal/storage/memory"
	"github.com/scrypster/recollect/pkg/types"
)

// mockLLMClient routes prompts to canned responses by prompt kind.
// It is safe for concurrent use.
type mockLLMClient struct {
	mu        sync.Mutex
	intent    string
	keywords  string
	objects   string
	synthesis string
	errs      map[string]error
	calls     map[string]int
	panicOn   string
	model     string
}

const (
	promptIntent    = "intent"
	promptKeywords  = "keywords"
	promptObjects   = "objects"
	promptSynthesis = "synthesis"
)

func newMockLLMClient() *mockLLMClient {
	return &mockLLMClient{
		intent:   `{"intent":"general_search","object":"","time_bias":"none"}`,
		keywords: `{"keywords":[]}`,
		objects:  `{"objects_detected":[]}`,
		errs:     map[string]error{},
		calls:    map[string]int{},
		model:    "mock-model",
	}
}

func promptKind(prompt string) string {
	switch {
	case strings.Contains(prompt, "TASK: Classify a question"):
		return promptIntent
	case strings.HasPrefix(prompt, "Extract keywords."):
		return promptKeywords
	case strings.Contains(prompt, "TASK: List the physical objects"):
		return promptObjects
	case strings.Contains(prompt, "You answer questions about"):
		return promptSynthesis
	}
	return ""
}

func (m *mockLLMClient) Complete(ctx context.Context, prompt string) (string, error) {
	kind := promptKind(prompt)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[kind]++

	if m.panicOn != "" && m.panicOn == kind {
		panic("mock LLM: forced panic")
	}
	if err := m.errs[kind]; err != nil {
		return "", err
	}
	switch kind {
	case promptIntent:
		return m.intent, nil
	case promptKeywords:
		return m.keywords, nil
	case promptObjects:
		return m.objects, nil
	case promptSynthesis:
		if m.synthesis == "" {
			return "", errors.New("mock LLM: no synthesis configured")
		}
		return m.synthesis, nil
	}
	return "", errors.New("mock LLM: unexpected prompt")
}

func (m *mockLLMClient) GetModel() string {
	return m.model
}

func (m *mockLLMClient) callCount(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[kind]
}

// mockEmbedder returns fixed vectors per text, or a default vector.
type mockEmbedder struct {
	mu       sync.Mutex
	vectors  map[string][]float32
	fallback []float32
	err      error
	calls    int
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if v, ok := m.vectors[text]; ok {
		return v, nil
	}
	if m.fallback != nil {
		return m.fallback, nil
	}
	return []float32{1, 0, 0}, nil
}

func (m *mockEmbedder) GetModel() string {
	return "mock-embed"
}

func (m *mockEmbedder) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// mockVision returns a fixed description and tracks peak concurrency.
type mockVision struct {
	description string
	err         error
	delay       time.Duration

	inflight atomic.Int32
	peak     atomic.Int32
	calls    atomic.Int32
	lastMime atomic.Value
}

func (m *mockVision) Describe(ctx context.Context, prompt string, media []byte, mimeType string) (string, error) {
	m.calls.Add(1)
	m.lastMime.Store(mimeType)
	n := m.inflight.Add(1)
	defer m.inflight.Add(-1)
	for {
		p := m.peak.Load()
		if n <= p || m.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	if m.err != nil {
		return "", m.err
	}
	return m.description, nil
}

func (m *mockVision) GetModel() string {
	return "mock-vision"
}

type mockTranscriber struct {
	result *llm.Transcription
	err    error
}

func (m *mockTranscriber) Transcribe(ctx context.Context, audio []byte, fileName string) (*llm.Transcription, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

// inlineLoader serves inline bytes and fails for URL-backed records.
type inlineLoader struct{}

func (inlineLoader) Load(ctx context.Context, rec *types.MediaRecord) (*content.Blob, error) {
	if len(rec.Content) == 0 {
		return nil, content.ErrContentUnavailable
	}
	mime := rec.MimeType
	if mime == "" {
		mime = content.ResolveMimeType("", rec.FileName, rec.Content, rec.Modality)
	}
	return &content.Blob{Data: rec.Content, MimeType: mime, FileName: rec.FileName}, nil
}

type mockRemote struct {
	result *types.SearchResult
	err    error
	calls  atomic.Int32
}

func (m *mockRemote) Lookup(ctx context.Context, question string) (*types.SearchResult, error) {
	m.calls.Add(1)
	return m.result, m.err
}

// testStores bundles in-memory repositories.
type testStores struct {
	media   *memory.MediaRepository
	objects *memory.ObjectRepository
	vectors *memory.VectorRepository
}

func newTestStores() *testStores {
	return &testStores{
		media:   memory.NewMediaRepository(),
		objects: memory.NewObjectRepository(),
		vectors: memory.NewVectorRepository(),
	}
}

// testNow is the fixed clock used by retrieval tests.
var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Decay.Now = func() time.Time { return testNow }
	cfg.StepTimeout = 2 * time.Second
	cfg.RemoteTimeout = time.Second
	return cfg
}

func storeRecord(t *testing.T, s *testStores, rec types.MediaRecord) types.MediaRecord {
	t.Helper()
	if len(rec.Content) == 0 && rec.ContentURL == "" {
		rec.Content = []byte{0xff, 0xd8, 0xff}
	}
	if rec.Status == "" {
		rec.Status = types.StatusCompleted
	}
	if err := s.media.Store(context.Background(), &rec); err != nil {
		t.Fatalf("Failed to store record %s: %v", rec.ID, err)
	}
	return rec
}
