package postgres

// Schema contains the base tables. Every statement is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS media_records (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL DEFAULT '',
    modality TEXT NOT NULL CHECK (modality IN ('photo', 'video', 'audio')),
    captured_at TIMESTAMPTZ NOT NULL,
    duration_ms BIGINT NOT NULL DEFAULT 0,
    content_url TEXT,
    content BYTEA,
    file_name TEXT,
    mime_type TEXT,
    description TEXT,
    transcript TEXT,
    transcript_segments JSONB,
    embedding BYTEA,
    object_count INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL DEFAULT 'pending',
    analysis_error TEXT,
    analyzed_at TIMESTAMPTZ,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_media_user_captured ON media_records(user_id, captured_at DESC);
CREATE INDEX IF NOT EXISTS idx_media_status ON media_records(status);

CREATE TABLE IF NOT EXISTS object_sightings (
    label TEXT PRIMARY KEY,
    source_record_id TEXT NOT NULL,
    confirmed_at TIMESTAMPTZ NOT NULL,
    base_confidence DOUBLE PRECISION NOT NULL CHECK (base_confidence >= 0 AND base_confidence <= 1),
    confirmation_type TEXT NOT NULL DEFAULT 'visual'
);

CREATE INDEX IF NOT EXISTS idx_sightings_source ON object_sightings(source_record_id);

CREATE TABLE IF NOT EXISTS vector_records (
    source_record_id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL DEFAULT '',
    embedding BYTEA NOT NULL,
    dimension INTEGER NOT NULL,
    span_start TIMESTAMPTZ NOT NULL,
    span_end TIMESTAMPTZ NOT NULL,
    modality TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_vectors_dimension ON vector_records(dimension);
`

// MigrationPgvector adds the native vector column. It is only applied when
// the vector extension is available. Safe to run multiple times.
const MigrationPgvector = `
DO $$
BEGIN
    IF NOT EXISTS (
        SELECT 1 FROM information_schema.columns
        WHERE table_name = 'vector_records' AND column_name = 'embedding_vec'
    ) THEN
        ALTER TABLE vector_records ADD COLUMN embedding_vec vector;
    END IF;
END
$$;
`
