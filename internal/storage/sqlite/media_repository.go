package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/scrypster/recollect/internal/storage"
	"github.com/scrypster/recollect/pkg/types"
)

const mediaColumns = `
	id, user_id, modality, captured_at, duration_ms,
	content_url, content, file_name, mime_type,
	description, transcript, transcript_segments, embedding, object_count,
	status, analysis_error, analyzed_at, updated_at`

// Store creates or replaces a media record (upsert semantics).
func (s *Store) Store(ctx context.Context, record *types.MediaRecord) error {
	if record == nil || record.ID == "" {
		return fmt.Errorf("%w: record ID is required", storage.ErrInvalidInput)
	}
	if err := record.ValidateSource(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}
	if !types.IsValidModality(record.Modality) {
		return fmt.Errorf("%w: unknown modality %q", storage.ErrInvalidInput, record.Modality)
	}

	status := record.Status
	if status == "" {
		status = types.StatusPending
	}
	updatedAt := record.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	segments, err := encodeSegments(record.TranscriptSegments)
	if err != nil {
		return err
	}

	var analyzedAt sql.NullInt64
	if record.AnalyzedAt != nil {
		analyzedAt = sql.NullInt64{Int64: toUnix(*record.AnalyzedAt), Valid: true}
	}

	query := `
		INSERT INTO media_records (` + mediaColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			modality = excluded.modality,
			captured_at = excluded.captured_at,
			duration_ms = excluded.duration_ms,
			content_url = excluded.content_url,
			content = excluded.content,
			file_name = excluded.file_name,
			mime_type = excluded.mime_type,
			description = excluded.description,
			transcript = excluded.transcript,
			transcript_segments = excluded.transcript_segments,
			embedding = excluded.embedding,
			object_count = excluded.object_count,
			status = excluded.status,
			analysis_error = excluded.analysis_error,
			analyzed_at = excluded.analyzed_at,
			updated_at = excluded.updated_at
	`

	_, err = s.db.ExecContext(ctx, query,
		record.ID,
		record.UserID,
		string(record.Modality),
		toUnix(record.CapturedAt),
		record.Duration.Milliseconds(),
		nullableString(record.ContentURL),
		nullableBlob(record.Content),
		nullableString(record.FileName),
		nullableString(record.MimeType),
		nullableString(record.Description),
		nullableString(record.Transcript),
		segments,
		nullableBlob(storage.EncodeVector(record.Embedding)),
		record.ObjectCount,
		string(status),
		nullableString(record.AnalysisError),
		analyzedAt,
		toUnix(updatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to store media record: %w", err)
	}
	return nil
}

// Get retrieves a media record by ID.
func (s *Store) Get(ctx context.Context, id string) (*types.MediaRecord, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: record ID is required", storage.ErrInvalidInput)
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+mediaColumns+` FROM media_records WHERE id = ?`, id)
	rec, err := scanMedia(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get media record: %w", err)
	}
	return rec, nil
}

// List retrieves media records newest first.
func (s *Store) List(ctx context.Context, opts storage.ListOptions) (*storage.PaginatedResult[types.MediaRecord], error) {
	opts.Normalize()

	var where []string
	var args []interface{}
	if opts.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, opts.UserID)
	}
	if len(opts.Statuses) > 0 {
		marks := make([]string, len(opts.Statuses))
		for i, st := range opts.Statuses {
			marks[i] = "?"
			args = append(args, string(st))
		}
		where = append(where, "status IN ("+strings.Join(marks, ", ")+")")
	}
	if opts.DescribedOnly {
		where = append(where, "description IS NOT NULL AND description != ''")
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM media_records"+clause, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count media records: %w", err)
	}

	query := "SELECT " + mediaColumns + " FROM media_records" + clause +
		" ORDER BY captured_at DESC, id ASC LIMIT ? OFFSET ?"
	rows, err := s.db.QueryContext(ctx, query, append(args, opts.Limit, opts.Offset())...)
	if err != nil {
		return nil, fmt.Errorf("failed to list media records: %w", err)
	}
	defer rows.Close()

	items := make([]types.MediaRecord, 0, opts.Limit)
	for rows.Next() {
		rec, err := scanMedia(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan media record: %w", err)
		}
		items = append(items, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &storage.PaginatedResult[types.MediaRecord]{
		Items:    items,
		Total:    total,
		Page:     opts.Page,
		PageSize: opts.Limit,
		HasMore:  opts.Offset()+len(items) < total,
	}, nil
}

// UpdateAnalysis overwrites the derived fields of a record.
func (s *Store) UpdateAnalysis(ctx context.Context, id string, update storage.AnalysisUpdate) error {
	segments, err := encodeSegments(update.TranscriptSegments)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE media_records SET
			description = ?,
			transcript = ?,
			transcript_segments = ?,
			embedding = ?,
			object_count = ?,
			status = ?,
			analysis_error = ?,
			analyzed_at = ?,
			updated_at = ?
		WHERE id = ?
	`,
		nullableString(update.Description),
		nullableString(update.Transcript),
		segments,
		nullableBlob(storage.EncodeVector(update.Embedding)),
		update.ObjectCount,
		string(update.Status),
		nullableString(update.AnalysisError),
		toUnix(update.AnalyzedAt),
		toUnix(update.AnalyzedAt),
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to update analysis: %w", err)
	}
	return requireAffected(result)
}

// UpdateStatus sets the processing status of a record.
func (s *Store) UpdateStatus(ctx context.Context, id string, status types.ProcessingStatus) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE media_records SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), toUnix(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	return requireAffected(result)
}

// Delete permanently removes a record.
func (s *Store) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM media_records WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete media record: %w", err)
	}
	return requireAffected(result)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMedia(row rowScanner) (*types.MediaRecord, error) {
	var rec types.MediaRecord
	var modality, status string
	var capturedAt, durationMS, updatedAt int64
	var contentURL, fileName, mimeType, description, transcript, segments, analysisError sql.NullString
	var content, embedding []byte
	var analyzedAt sql.NullInt64

	err := row.Scan(
		&rec.ID, &rec.UserID, &modality, &capturedAt, &durationMS,
		&contentURL, &content, &fileName, &mimeType,
		&description, &transcript, &segments, &embedding, &rec.ObjectCount,
		&status, &analysisError, &analyzedAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Modality = types.Modality(modality)
	rec.Status = types.ProcessingStatus(status)
	rec.CapturedAt = fromUnix(capturedAt)
	rec.Duration = time.Duration(durationMS) * time.Millisecond
	rec.UpdatedAt = fromUnix(updatedAt)
	rec.ContentURL = contentURL.String
	rec.Content = content
	rec.FileName = fileName.String
	rec.MimeType = mimeType.String
	rec.Description = description.String
	rec.Transcript = transcript.String
	rec.AnalysisError = analysisError.String
	if analyzedAt.Valid {
		at := fromUnix(analyzedAt.Int64)
		rec.AnalyzedAt = &at
	}
	if segments.Valid && segments.String != "" {
		if err := json.Unmarshal([]byte(segments.String), &rec.TranscriptSegments); err != nil {
			return nil, fmt.Errorf("failed to decode transcript segments: %w", err)
		}
	}
	if len(embedding) > 0 {
		vec, err := storage.DecodeVector(embedding)
		if err != nil {
			return nil, err
		}
		rec.Embedding = vec
	}

	return &rec, nil
}

func encodeSegments(segments []types.TranscriptSegment) (sql.NullString, error) {
	if len(segments) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(segments)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode transcript segments: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func nullableBlob(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}

func requireAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

var _ storage.MediaRepository = (*Store)(nil)
