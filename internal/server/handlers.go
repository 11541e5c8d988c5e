package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/scrypster/recollect/internal/content"
	"github.com/scrypster/recollect/internal/engine"
	"github.com/scrypster/recollect/internal/storage"
	"github.com/scrypster/recollect/pkg/types"
)

// ErrorResponse is the standard error response format for the API.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// DebugSearchResponse pairs an answer with the trace of how it was reached.
type DebugSearchResponse struct {
	Result *types.SearchResult          `json:"result"`
	Debug  *engine.DebugRetrievalResult `json:"debug"`
}

// handlers serves the /api routes.
type handlers struct {
	media     MediaService
	validate  *validator.Validate
	maxUpload int64
}

// respondJSON writes data as a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("ERROR: Failed to encode JSON response: %v", err)
	}
}

// respondError writes an ErrorResponse. An empty code uses the status text.
func respondError(w http.ResponseWriter, statusCode int, message, code string, details map[string]interface{}) {
	if code == "" {
		code = http.StatusText(statusCode)
	}
	respondJSON(w, statusCode, ErrorResponse{Error: message, Code: code, Details: details})
}

// respondValidation reports validator failures field by field.
func respondValidation(w http.ResponseWriter, err error) {
	details := map[string]interface{}{}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			details[fe.Field()] = fe.Tag()
		}
	} else {
		details["error"] = err.Error()
	}
	respondError(w, http.StatusBadRequest, "invalid request", "VALIDATION_FAILED", details)
}

// decodeJSON decodes and validates a request body into dst.
func (h *handlers) decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse request body", "", map[string]interface{}{"error": err.Error()})
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		respondValidation(w, err)
		return false
	}
	return true
}

// uploadForm holds the multipart fields of POST /api/media.
type uploadForm struct {
	UserID    string `validate:"required,max=128"`
	MediaType string `validate:"required"`
}

// Upload stores a media record and queues it for analysis. It accepts a
// multipart upload (file, media_type, user_id, captured_at) or a JSON body
// referencing the content by URL.
func (h *handlers) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)

	var (
		rec *types.MediaRecord
		ok  bool
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		rec, ok = h.parseMultipartUpload(w, r)
	} else {
		rec, ok = h.parseJSONUpload(w, r)
	}
	if !ok {
		return
	}

	stored, err := h.media.Ingest(r.Context(), rec)
	switch {
	case errors.Is(err, engine.ErrQueueFull):
		respondError(w, http.StatusServiceUnavailable, "analysis queue full", "QUEUE_FULL",
			map[string]interface{}{"media_id": stored.ID, "status": stored.Status})
		return
	case errors.Is(err, storage.ErrInvalidInput):
		respondError(w, http.StatusBadRequest, "invalid media", "", map[string]interface{}{"error": err.Error()})
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, "failed to store media", "", map[string]interface{}{"error": err.Error()})
		return
	}

	respondJSON(w, http.StatusAccepted, types.UploadResponse{MediaID: stored.ID, Status: stored.Status})
}

func (h *handlers) parseMultipartUpload(w http.ResponseWriter, r *http.Request) (*types.MediaRecord, bool) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		respondUploadError(w, err)
		return nil, false
	}

	form := uploadForm{
		UserID:    r.FormValue("user_id"),
		MediaType: r.FormValue("media_type"),
	}
	if err := h.validate.Struct(form); err != nil {
		respondValidation(w, err)
		return nil, false
	}
	modality, ok := types.ParseModality(form.MediaType)
	if !ok {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("unknown media_type %q", form.MediaType), "", nil)
		return nil, false
	}
	capturedAt, ok := parseCapturedAt(w, r.FormValue("captured_at"))
	if !ok {
		return nil, false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "file is required", "", nil)
		return nil, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondUploadError(w, err)
		return nil, false
	}
	if len(data) == 0 {
		respondError(w, http.StatusBadRequest, "file is empty", "", nil)
		return nil, false
	}

	return &types.MediaRecord{
		UserID:     form.UserID,
		Modality:   modality,
		CapturedAt: capturedAt,
		Content:    data,
		FileName:   header.Filename,
		MimeType:   content.ResolveMimeType(header.Header.Get("Content-Type"), header.Filename, data, modality),
	}, true
}

func (h *handlers) parseJSONUpload(w http.ResponseWriter, r *http.Request) (*types.MediaRecord, bool) {
	var req types.UploadRequest
	if !h.decodeJSON(w, r, &req) {
		return nil, false
	}
	modality, ok := types.ParseModality(req.MediaType)
	if !ok {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("unknown media_type %q", req.MediaType), "", nil)
		return nil, false
	}

	rec := &types.MediaRecord{
		UserID:     req.UserID,
		Modality:   modality,
		ContentURL: req.FileURL,
		FileName:   req.FileName,
	}
	if req.CapturedAt != nil {
		rec.CapturedAt = *req.CapturedAt
	}
	return rec, true
}

func parseCapturedAt(w http.ResponseWriter, raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		respondError(w, http.StatusBadRequest, "captured_at must be RFC 3339", "", nil)
		return time.Time{}, false
	}
	return t, true
}

func respondUploadError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		respondError(w, http.StatusRequestEntityTooLarge, "upload too large", "",
			map[string]interface{}{"limit_bytes": tooLarge.Limit})
		return
	}
	respondError(w, http.StatusBadRequest, "failed to read upload", "", map[string]interface{}{"error": err.Error()})
}

// Status reports the processing status of one record.
func (h *handlers) Status(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := h.media.Get(r.Context(), id)
	if err != nil {
		h.respondLookupError(w, id, err)
		return
	}

	respondJSON(w, http.StatusOK, types.MediaStatusResponse{
		MediaID:         rec.ID,
		Status:          rec.Status,
		MediaType:       rec.Modality,
		TranscriptCount: len(rec.TranscriptSegments),
		TagCount:        rec.ObjectCount,
	})
}

// Delete removes a record and everything derived from it.
func (h *handlers) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.media.Delete(r.Context(), id); err != nil {
		h.respondLookupError(w, id, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) respondLookupError(w http.ResponseWriter, id string, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		respondError(w, http.StatusNotFound, "media not found", "NOT_FOUND", map[string]interface{}{"media_id": id})
		return
	}
	respondError(w, http.StatusInternalServerError, "failed to access media", "", map[string]interface{}{"error": err.Error()})
}

// Search lists ranked records for a query without the synthesized answer.
func (h *handlers) Search(w http.ResponseWriter, r *http.Request) {
	var req types.SearchRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	res := h.media.Search(r.Context(), req.Query)

	media := make([]types.SearchMedia, 0, len(res.Records))
	for i := range res.Records {
		rec := &res.Records[i]
		media = append(media, types.SearchMedia{
			MediaID:   rec.ID,
			MediaType: rec.Modality,
			FilePath:  filePath(rec),
			CreatedAt: rec.CapturedAt,
			Matches:   matchedTerms(rec, res.ExpandedTerms),
		})
	}

	respondJSON(w, http.StatusOK, types.SearchResponse{
		Query:         req.Query,
		ExpandedTerms: res.ExpandedTerms,
		Media:         media,
	})
}

// Chat answers a question with proof.
func (h *handlers) Chat(w http.ResponseWriter, r *http.Request) {
	var req types.ChatRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	res := h.media.Search(r.Context(), req.Question)
	proof := res.Proof
	if proof == nil {
		proof = []types.Proof{}
	}

	respondJSON(w, http.StatusOK, types.ChatResponse{
		Question:   req.Question,
		Answer:     res.Answer,
		Confidence: res.ConfidenceLabel,
		HasProof:   res.HasProof(),
		Proof:      proof,
	})
}

// DebugSearch answers a question and returns the retrieval trace.
func (h *handlers) DebugSearch(w http.ResponseWriter, r *http.Request) {
	var req types.ChatRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	res, debug := h.media.SearchWithTrace(r.Context(), req.Question)
	respondJSON(w, http.StatusOK, DebugSearchResponse{Result: res, Debug: debug})
}

// Reanalyze re-runs analysis over all of a user's records.
func (h *handlers) Reanalyze(w http.ResponseWriter, r *http.Request) {
	var req types.ReanalyzeRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	described, total, err := h.media.ReanalyzeAll(r.Context(), req.UserID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "reanalysis failed", "", map[string]interface{}{"error": err.Error()})
		return
	}

	log.Printf("Reanalysis for user %s: %d/%d records described", req.UserID, described, total)
	respondJSON(w, http.StatusOK, types.ReanalyzeResponse{Status: "completed", Processed: described, Total: total})
}

// Queue reports the analysis backlog.
func (h *handlers) Queue(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]int{"queue_size": h.media.GetQueueSize()})
}

func filePath(rec *types.MediaRecord) string {
	if rec.ContentURL != "" {
		return rec.ContentURL
	}
	return rec.FileName
}

// matchedTerms lists the expanded terms present in the record's text.
func matchedTerms(rec *types.MediaRecord, terms []string) []string {
	text := strings.ToLower(rec.Description + " " + rec.Transcript)
	matches := []string{}
	for _, term := range terms {
		if term != "" && strings.Contains(text, strings.ToLower(term)) {
			matches = append(matches, term)
		}
	}
	return matches
}
