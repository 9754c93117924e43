package storage

// schema is the durable contract of the pipeline: four entity tables plus
// the run-state table that makes crash resumption inspectable. Uniqueness
// constraints back the idempotency guarantees.
const schema = `
CREATE TABLE IF NOT EXISTS keywords (
    id          TEXT PRIMARY KEY,
    keyword     TEXT NOT NULL,
    rank        INT NOT NULL,
    score       INT NOT NULL,
    platform    TEXT NOT NULL,
    region      TEXT NOT NULL,
    metadata    JSONB NOT NULL DEFAULT '{}',
    created_at  TIMESTAMPTZ NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS videos (
    id            TEXT PRIMARY KEY,
    keyword_id    TEXT NOT NULL REFERENCES keywords(id),
    youtube_id    TEXT NOT NULL UNIQUE,
    url           TEXT NOT NULL,
    title         TEXT NOT NULL,
    category      TEXT NOT NULL DEFAULT '',
    thumbnail_url TEXT NOT NULL DEFAULT '',
    duration_secs BIGINT NOT NULL DEFAULT 0,
    views         BIGINT NOT NULL DEFAULT 0,
    likes         BIGINT NOT NULL DEFAULT 0,
    comments      BIGINT NOT NULL DEFAULT 0,
    language      TEXT NOT NULL DEFAULT '',
    media_path    TEXT NOT NULL DEFAULT '',
    acquired_at   TIMESTAMPTZ,
    created_at    TIMESTAMPTZ NOT NULL,
    updated_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS transcripts (
    id             TEXT PRIMARY KEY,
    video_id       TEXT NOT NULL REFERENCES videos(id),
    language       TEXT NOT NULL,
    text           TEXT NOT NULL,
    source         TEXT NOT NULL,
    coverage       DOUBLE PRECISION NOT NULL DEFAULT 0,
    gaps           JSONB NOT NULL DEFAULT '[]',
    low_confidence BOOLEAN NOT NULL DEFAULT FALSE,
    stale          BOOLEAN NOT NULL DEFAULT FALSE,
    created_at     TIMESTAMPTZ NOT NULL,
    updated_at     TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS transcripts_video_language_live
    ON transcripts (video_id, language) WHERE NOT stale;

CREATE TABLE IF NOT EXISTS articles (
    id               TEXT PRIMARY KEY,
    keyword_id       TEXT NOT NULL REFERENCES keywords(id),
    video_id         TEXT NOT NULL REFERENCES videos(id),
    transcript_id    TEXT NOT NULL REFERENCES transcripts(id),
    style            TEXT NOT NULL,
    article_language TEXT NOT NULL,
    title            TEXT NOT NULL,
    content          TEXT NOT NULL,
    tags             JSONB NOT NULL DEFAULT '[]',
    seo_metadata     JSONB NOT NULL DEFAULT '{}',
    published        BOOLEAN NOT NULL DEFAULT FALSE,
    superseded       BOOLEAN NOT NULL DEFAULT FALSE,
    created_at       TIMESTAMPTZ NOT NULL,
    updated_at       TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS articles_video_transcript_style_live
    ON articles (video_id, transcript_id, style) WHERE NOT superseded;

CREATE TABLE IF NOT EXISTS pipeline_runs (
    id            TEXT PRIMARY KEY,
    video_id      TEXT NOT NULL UNIQUE REFERENCES videos(id),
    transcript_id TEXT NOT NULL DEFAULT '',
    language      TEXT NOT NULL DEFAULT '',
    state         TEXT NOT NULL,
    failed_stage  TEXT NOT NULL DEFAULT '',
    styles        TEXT NOT NULL DEFAULT '',
    style_state   JSONB NOT NULL DEFAULT '{}',
    last_error    TEXT NOT NULL DEFAULT '',
    created_at    TIMESTAMPTZ NOT NULL,
    updated_at    TIMESTAMPTZ NOT NULL
);
`
