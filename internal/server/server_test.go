// Package server_test exercises the HTTP API against a fake media service.
package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket" //nolint:staticcheck // TODO: migrate to github.com/coder/websocket

	"github.com/scrypster/recollect/internal/config"
	"github.com/scrypster/recollect/internal/engine"
	"github.com/scrypster/recollect/internal/server"
	"github.com/scrypster/recollect/internal/storage"
	"github.com/scrypster/recollect/internal/storage/memory"
	"github.com/scrypster/recollect/pkg/types"
)

// fakeMedia is an in-memory MediaService.
type fakeMedia struct {
	mu        sync.Mutex
	records   map[string]*types.MediaRecord
	ingested  []*types.MediaRecord
	ingestErr error
	result    *types.SearchResult
	queries   []string
	described int
	total     int
	reanalyze string
	observer  engine.StatusObserver
}

func newFakeMedia() *fakeMedia {
	return &fakeMedia{records: map[string]*types.MediaRecord{}}
}

func (f *fakeMedia) Ingest(ctx context.Context, rec *types.MediaRecord) (*types.MediaRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec.ID == "" {
		rec.ID = "media-1"
	}
	rec.Status = types.StatusPending
	if errors.Is(f.ingestErr, engine.ErrQueueFull) {
		rec.Status = types.StatusFailed
		f.records[rec.ID] = rec
		return rec, f.ingestErr
	}
	if f.ingestErr != nil {
		return nil, f.ingestErr
	}
	f.ingested = append(f.ingested, rec)
	f.records[rec.ID] = rec
	return rec, nil
}

func (f *fakeMedia) Get(ctx context.Context, id string) (*types.MediaRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return rec, nil
}

func (f *fakeMedia) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.records[id]; !ok {
		return storage.ErrNotFound
	}
	delete(f.records, id)
	return nil
}

func (f *fakeMedia) Search(ctx context.Context, query string) *types.SearchResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	if f.result != nil {
		return f.result
	}
	return &types.SearchResult{
		Query:           query,
		ExpandedTerms:   []string{query},
		Answer:          "I don't have any evidence about that yet.",
		ConfidenceLabel: types.ConfidenceNone,
		Path:            types.PathNoEvidence,
	}
}

func (f *fakeMedia) SearchWithTrace(ctx context.Context, query string) (*types.SearchResult, *engine.DebugRetrievalResult) {
	res := f.Search(ctx, query)
	debug := engine.BuildDebugResult([]engine.TraceEvent{
		engine.EventSearchStarted(query),
		engine.EventResultsReturned(res.Path, string(res.ConfidenceLabel), nil),
	}, 3)
	return res, debug
}

func (f *fakeMedia) ReanalyzeAll(ctx context.Context, userID string) (int, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reanalyze = userID
	return f.described, f.total, nil
}

func (f *fakeMedia) GetQueueSize() int {
	return 4
}

func (f *fakeMedia) OnStatusChange(observer engine.StatusObserver) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.observer = observer
}

func (f *fakeMedia) emit(id string, status types.ProcessingStatus) {
	f.mu.Lock()
	observer := f.observer
	f.mu.Unlock()
	observer(id, status)
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Host: "127.0.0.1", Port: 0},
		Security: config.SecurityConfig{
			SecurityMode: "development",
			RateLimit:    1000,
			RateBurst:    1000,
			MaxUploadMB:  1,
		},
	}
}

// startTestServer serves a Server over httptest and returns its base URL.
func startTestServer(t *testing.T, cfg *config.Config, media *fakeMedia) (string, *server.Server) {
	t.Helper()
	s := server.New(cfg, media)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		s.Close()
	})
	return ts.URL, s
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func multipartBody(t *testing.T, fields map[string]string, fileName, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if data != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="file"; filename="`+fileName+`"`)
		h.Set("Content-Type", contentType)
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

// ---------------------------------------------------------------------------
// Infrastructure
// ---------------------------------------------------------------------------

func TestServer_HealthEndpoint(t *testing.T) {
	baseURL, _ := startTestServer(t, testConfig(), newFakeMedia())

	resp, err := http.Get(baseURL + "/health")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))
}

func TestServer_SecurityHeaders(t *testing.T) {
	baseURL, _ := startTestServer(t, testConfig(), newFakeMedia())

	resp, err := http.Get(baseURL + "/health")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	expectedHeaders := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"X-XSS-Protection":       "1; mode=block",
		"Referrer-Policy":        "strict-origin-when-cross-origin",
	}
	for name, want := range expectedHeaders {
		assert.Equal(t, want, resp.Header.Get(name), "header %q", name)
	}
}

func TestServer_ProductionMode_RequiresAuth(t *testing.T) {
	cfg := testConfig()
	cfg.Security.SecurityMode = "production"
	cfg.Security.APIToken = "s3cret"
	baseURL, _ := startTestServer(t, cfg, newFakeMedia())

	resp := postJSON(t, baseURL+"/api/chat", types.ChatRequest{Question: "keys?", UserID: "alice"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	var errResp server.ErrorResponse
	decode(t, resp, &errResp)
	assert.Equal(t, "UNAUTHORIZED", errResp.Code)

	req, err := http.NewRequest(http.MethodPost, baseURL+"/api/chat", strings.NewReader(`{"question":"keys?","user_id":"alice"}`))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer wrong")
	wrong, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = wrong.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, wrong.StatusCode)

	req, err = http.NewRequest(http.MethodPost, baseURL+"/api/chat", strings.NewReader(`{"question":"keys?","user_id":"alice"}`))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer s3cret")
	ok, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = ok.Body.Close()
	assert.Equal(t, http.StatusOK, ok.StatusCode)

	health, err := http.Get(baseURL + "/health")
	require.NoError(t, err)
	_ = health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode, "health needs no token")
}

func TestServer_RateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Security.RateLimit = 0.001
	cfg.Security.RateBurst = 2
	baseURL, _ := startTestServer(t, cfg, newFakeMedia())

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		resp, err := http.Get(baseURL + "/health")
		require.NoError(t, err)
		_ = resp.Body.Close()
		codes = append(codes, resp.StatusCode)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestServer_NotFoundRoute(t *testing.T) {
	baseURL, _ := startTestServer(t, testConfig(), newFakeMedia())

	resp, err := http.Get(baseURL + "/api/nope")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_Listen_GracefulShutdown(t *testing.T) {
	s := server.New(testConfig(), newFakeMedia())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addr, done, err := s.Listen(ctx)
	require.NoError(t, err)
	assert.NotContains(t, addr, ":0")

	resp, err := http.Get("http://" + addr + "/health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServer_Listen_AddressInUse(t *testing.T) {
	first := server.New(testConfig(), newFakeMedia())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	addr, _, err := first.Listen(ctx)
	require.NoError(t, err)

	cfg := testConfig()
	_, port, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	cfg.Server.Port, err = strconv.Atoi(port)
	require.NoError(t, err)
	second := server.New(cfg, newFakeMedia())
	defer second.Close()

	_, _, err = second.Listen(ctx)
	assert.Error(t, err)
}

// ---------------------------------------------------------------------------
// Upload
// ---------------------------------------------------------------------------

func TestUpload_JSON(t *testing.T) {
	media := newFakeMedia()
	baseURL, _ := startTestServer(t, testConfig(), media)

	captured := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)
	resp := postJSON(t, baseURL+"/api/media", types.UploadRequest{
		UserID:     "alice",
		MediaType:  "IMAGE",
		FileURL:    "https://cdn.example.com/p/1.jpg",
		FileName:   "1.jpg",
		CapturedAt: &captured,
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var out types.UploadResponse
	decode(t, resp, &out)
	assert.Equal(t, "media-1", out.MediaID)
	assert.Equal(t, types.StatusPending, out.Status)

	require.Len(t, media.ingested, 1)
	rec := media.ingested[0]
	assert.Equal(t, types.ModalityPhoto, rec.Modality)
	assert.Equal(t, "https://cdn.example.com/p/1.jpg", rec.ContentURL)
	assert.Empty(t, rec.Content)
	assert.True(t, rec.CapturedAt.Equal(captured))
}

func TestUpload_JSONValidation(t *testing.T) {
	baseURL, _ := startTestServer(t, testConfig(), newFakeMedia())

	resp := postJSON(t, baseURL+"/api/media", map[string]string{"media_type": "photo", "file_url": "https://x/y.jpg"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var errResp server.ErrorResponse
	decode(t, resp, &errResp)
	assert.Equal(t, "VALIDATION_FAILED", errResp.Code)
	assert.Equal(t, "required", errResp.Details["UserID"])
}

func TestUpload_UnknownMediaType(t *testing.T) {
	baseURL, _ := startTestServer(t, testConfig(), newFakeMedia())

	resp := postJSON(t, baseURL+"/api/media", types.UploadRequest{UserID: "alice", MediaType: "hologram", FileURL: "https://x/y"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpload_MalformedJSON(t *testing.T) {
	baseURL, _ := startTestServer(t, testConfig(), newFakeMedia())

	resp, err := http.Post(baseURL+"/api/media", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpload_Multipart(t *testing.T) {
	media := newFakeMedia()
	baseURL, _ := startTestServer(t, testConfig(), media)

	data := []byte("ID3 fake mp3 bytes")
	body, contentType := multipartBody(t, map[string]string{
		"user_id":     "alice",
		"media_type":  "voice",
		"captured_at": "2026-03-12T08:00:00Z",
	}, "note.mp3", "audio/mpeg", data)

	resp, err := http.Post(baseURL+"/api/media", contentType, body)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.Len(t, media.ingested, 1)
	rec := media.ingested[0]
	assert.Equal(t, types.ModalityAudio, rec.Modality)
	assert.Equal(t, data, rec.Content)
	assert.Equal(t, "note.mp3", rec.FileName)
	assert.Equal(t, "audio/mpeg", rec.MimeType)
	assert.Equal(t, 2026, rec.CapturedAt.Year())
}

func TestUpload_MultipartMissingFile(t *testing.T) {
	baseURL, _ := startTestServer(t, testConfig(), newFakeMedia())

	body, contentType := multipartBody(t, map[string]string{"user_id": "alice", "media_type": "photo"}, "", "", nil)
	resp, err := http.Post(baseURL+"/api/media", contentType, body)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpload_MultipartBadCapturedAt(t *testing.T) {
	baseURL, _ := startTestServer(t, testConfig(), newFakeMedia())

	body, contentType := multipartBody(t, map[string]string{
		"user_id": "alice", "media_type": "photo", "captured_at": "yesterday",
	}, "a.jpg", "image/jpeg", []byte{0xff, 0xd8, 0xff})
	resp, err := http.Post(baseURL+"/api/media", contentType, body)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpload_TooLarge(t *testing.T) {
	media := newFakeMedia()
	baseURL, _ := startTestServer(t, testConfig(), media)

	body, contentType := multipartBody(t, map[string]string{"user_id": "alice", "media_type": "video"},
		"big.mp4", "video/mp4", bytes.Repeat([]byte{1}, 2<<20))
	resp, err := http.Post(baseURL+"/api/media", contentType, body)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	assert.Empty(t, media.ingested)
}

func TestUpload_QueueFull(t *testing.T) {
	media := newFakeMedia()
	media.ingestErr = engine.ErrQueueFull
	baseURL, _ := startTestServer(t, testConfig(), media)

	resp := postJSON(t, baseURL+"/api/media", types.UploadRequest{UserID: "alice", MediaType: "photo", FileURL: "https://x/y.jpg"})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var errResp server.ErrorResponse
	decode(t, resp, &errResp)
	assert.Equal(t, "QUEUE_FULL", errResp.Code)
	assert.Equal(t, "media-1", errResp.Details["media_id"])
	assert.Equal(t, string(types.StatusFailed), errResp.Details["status"])
}

// ---------------------------------------------------------------------------
// Status and delete
// ---------------------------------------------------------------------------

func TestStatus(t *testing.T) {
	media := newFakeMedia()
	media.records["m1"] = &types.MediaRecord{
		ID:                 "m1",
		Modality:           types.ModalityVideo,
		Status:             types.StatusCompleted,
		ObjectCount:        3,
		TranscriptSegments: []types.TranscriptSegment{{Text: "hi", End: 1}, {Text: "there", Start: 1, End: 2}},
	}
	baseURL, _ := startTestServer(t, testConfig(), media)

	resp, err := http.Get(baseURL + "/api/media/m1/status")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out types.MediaStatusResponse
	decode(t, resp, &out)
	assert.Equal(t, types.MediaStatusResponse{
		MediaID:         "m1",
		Status:          types.StatusCompleted,
		MediaType:       types.ModalityVideo,
		TranscriptCount: 2,
		TagCount:        3,
	}, out)
}

func TestStatus_NotFound(t *testing.T) {
	baseURL, _ := startTestServer(t, testConfig(), newFakeMedia())

	resp, err := http.Get(baseURL + "/api/media/missing/status")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var errResp server.ErrorResponse
	decode(t, resp, &errResp)
	assert.Equal(t, "NOT_FOUND", errResp.Code)
}

func TestDelete(t *testing.T) {
	media := newFakeMedia()
	media.records["m1"] = &types.MediaRecord{ID: "m1"}
	baseURL, _ := startTestServer(t, testConfig(), media)

	req, err := http.NewRequest(http.MethodDelete, baseURL+"/api/media/m1", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.NotContains(t, media.records, "m1")

	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// ---------------------------------------------------------------------------
// Search, chat and reanalysis
// ---------------------------------------------------------------------------

func TestSearch_ListsRecordsWithMatches(t *testing.T) {
	media := newFakeMedia()
	captured := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	media.result = &types.SearchResult{
		Query:         "teddy",
		ExpandedTerms: []string{"teddy", "stuffed animal", "plush"},
		Records: []types.MediaRecord{
			{ID: "m1", Modality: types.ModalityPhoto, FileName: "bed.jpg", CapturedAt: captured,
				Description: "A brown Stuffed Animal on the bed."},
			{ID: "m2", Modality: types.ModalityAudio, ContentURL: "https://x/a.m4a", Transcript: "where is the plush toy"},
		},
		Answer: "ignored by /api/search",
	}
	baseURL, _ := startTestServer(t, testConfig(), media)

	resp := postJSON(t, baseURL+"/api/search", types.SearchRequest{Query: "teddy", UserID: "alice"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out types.SearchResponse
	decode(t, resp, &out)
	assert.Equal(t, "teddy", out.Query)
	assert.Equal(t, []string{"teddy", "stuffed animal", "plush"}, out.ExpandedTerms)
	require.Len(t, out.Media, 2)
	assert.Equal(t, "m1", out.Media[0].MediaID)
	assert.Equal(t, "bed.jpg", out.Media[0].FilePath)
	assert.Equal(t, []string{"stuffed animal"}, out.Media[0].Matches)
	assert.True(t, out.Media[0].CreatedAt.Equal(captured))
	assert.Equal(t, "https://x/a.m4a", out.Media[1].FilePath)
	assert.Equal(t, []string{"plush"}, out.Media[1].Matches)
}

func TestSearch_RequiresQuery(t *testing.T) {
	media := newFakeMedia()
	baseURL, _ := startTestServer(t, testConfig(), media)

	resp := postJSON(t, baseURL+"/api/search", types.SearchRequest{UserID: "alice"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, media.queries)
}

func TestChat_WithProof(t *testing.T) {
	media := newFakeMedia()
	media.result = &types.SearchResult{
		Query:           "where are my keys",
		ExpandedTerms:   []string{"keys"},
		Answer:          "Your keys: last seen on Tue Mar 10 2026 at 12:00.",
		ConfidenceLabel: types.ConfidenceHigh,
		Path:            types.PathObject,
		Proof:           []types.Proof{{Type: types.ProofVisual, MediaID: "m1", Detail: "keys", Confidence: 0.82}},
	}
	baseURL, _ := startTestServer(t, testConfig(), media)

	resp := postJSON(t, baseURL+"/api/chat", types.ChatRequest{Question: "where are my keys", UserID: "alice"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out types.ChatResponse
	decode(t, resp, &out)
	assert.Equal(t, "where are my keys", out.Question)
	assert.True(t, out.HasProof)
	assert.Equal(t, types.ConfidenceHigh, out.Confidence)
	require.Len(t, out.Proof, 1)
	assert.Equal(t, types.ProofVisual, out.Proof[0].Type)
	assert.InDelta(t, 0.82, out.Proof[0].Confidence, 1e-9)
}

// intentText answers every prompt with a fixed intent.
type intentText struct{ intent string }

func (g intentText) Complete(context.Context, string) (string, error) { return g.intent, nil }
func (g intentText) GetModel() string                                 { return "intent-stub" }

func TestChat_InferredSightingIsVisualProof(t *testing.T) {
	ctx := context.Background()
	mediaRepo := memory.NewMediaRepository()
	objects := memory.NewObjectRepository()
	seen := time.Now().Add(-time.Hour).UTC()
	require.NoError(t, mediaRepo.Store(ctx, &types.MediaRecord{
		ID:          "photo-keys",
		UserID:      "alice",
		Modality:    types.ModalityPhoto,
		Content:     []byte{0xff, 0xd8, 0xff},
		CapturedAt:  seen,
		Status:      types.StatusCompleted,
		Description: "Keys next to the fruit bowl.",
	}))
	_, err := objects.Upsert(ctx, types.ObjectSighting{
		Label:            "keys",
		SourceRecordID:   "photo-keys",
		ConfirmedAt:      seen,
		BaseConfidence:   0.8,
		ConfirmationType: types.ConfirmedInferred,
	})
	require.NoError(t, err)

	eng, err := engine.NewMediaEngine(engine.EngineDeps{
		Media:   mediaRepo,
		Objects: objects,
		Vectors: memory.NewVectorRepository(),
		Text:    intentText{intent: `{"intent":"object_search","object":"keys","time_bias":"none"}`},
	}, engine.DefaultConfig())
	require.NoError(t, err)

	s := server.New(testConfig(), eng)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		s.Close()
	})

	resp := postJSON(t, ts.URL+"/api/chat", types.ChatRequest{Question: "where are my keys", UserID: "alice"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var raw struct {
		HasProof bool                     `json:"has_proof"`
		Proof    []map[string]interface{} `json:"proof"`
	}
	decode(t, resp, &raw)
	assert.True(t, raw.HasProof)
	require.Len(t, raw.Proof, 1)
	assert.Equal(t, "visual", raw.Proof[0]["type"])
	assert.Equal(t, "photo-keys", raw.Proof[0]["media_id"])
	assert.Contains(t, raw.Proof[0]["detail"], "inferred")
}

func TestChat_NoEvidenceHasEmptyProof(t *testing.T) {
	baseURL, _ := startTestServer(t, testConfig(), newFakeMedia())

	resp := postJSON(t, baseURL+"/api/chat", types.ChatRequest{Question: "where is my hat", UserID: "alice"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var raw map[string]interface{}
	decode(t, resp, &raw)
	assert.Equal(t, false, raw["has_proof"])
	assert.Equal(t, []interface{}{}, raw["proof"])
}

func TestDebugSearch(t *testing.T) {
	baseURL, _ := startTestServer(t, testConfig(), newFakeMedia())

	resp := postJSON(t, baseURL+"/api/debug/search", types.ChatRequest{Question: "hat", UserID: "alice"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out server.DebugSearchResponse
	decode(t, resp, &out)
	require.NotNil(t, out.Result)
	require.NotNil(t, out.Debug)
	assert.Equal(t, "hat", out.Debug.Query)
	assert.Equal(t, types.PathNoEvidence, out.Debug.Path)
}

func TestReanalyze(t *testing.T) {
	media := newFakeMedia()
	media.described, media.total = 7, 8
	baseURL, _ := startTestServer(t, testConfig(), media)

	resp := postJSON(t, baseURL+"/api/reanalyze", types.ReanalyzeRequest{UserID: "alice"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out types.ReanalyzeResponse
	decode(t, resp, &out)
	assert.Equal(t, types.ReanalyzeResponse{Status: "completed", Processed: 7, Total: 8}, out)
	assert.Equal(t, "alice", media.reanalyze)
}

func TestQueue(t *testing.T) {
	baseURL, _ := startTestServer(t, testConfig(), newFakeMedia())

	resp, err := http.Get(baseURL + "/api/queue")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var out map[string]int
	decode(t, resp, &out)
	assert.Equal(t, 4, out["queue_size"])
}

// ---------------------------------------------------------------------------
// WebSocket
// ---------------------------------------------------------------------------

func TestWebSocket_ReceivesStatusEvents(t *testing.T) {
	media := newFakeMedia()
	baseURL, s := startTestServer(t, testConfig(), media)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(baseURL, "http") + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil) //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
	require.NoError(t, err)
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }() //nolint:staticcheck // TODO: migrate to github.com/coder/websocket

	require.Eventually(t, func() bool { return s.Hub().ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	media.emit("m1", types.StatusProcessing)

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	var ev types.StatusEvent
	require.NoError(t, json.Unmarshal(data, &ev))
	assert.Equal(t, types.StatusEvent{Type: "media_status", MediaID: "m1", Status: types.StatusProcessing}, ev)
}

func TestWebSocket_RejectsForeignOrigin(t *testing.T) {
	baseURL, _ := startTestServer(t, testConfig(), newFakeMedia())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(baseURL, "http") + "/ws"
	_, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{ //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
		HTTPHeader: http.Header{"Origin": []string{"http://evil.example.com"}},
	})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
