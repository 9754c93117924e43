package ports

import (
	"context"
	"time"

	"ytdigest/internal/domain"
)

// VideoDownloader fetches metadata, media streams, and native captions from
// the video platform.
type VideoDownloader interface {
	// ResolveID turns any supported URL form into the canonical external id.
	ResolveID(ref string) (string, error)
	// Metadata fetches title, duration, thumbnail, and engagement counters.
	Metadata(ctx context.Context, videoID string) (domain.Video, error)
	// DownloadMedia writes the media stream to dst and returns bytes written.
	DownloadMedia(ctx context.Context, videoID, dst string) (int64, error)
	// Captions fetches the native caption track, if any. A missing track is
	// reported as (nil, "", nil), not as an error.
	Captions(ctx context.Context, videoID, language string) ([]domain.Segment, string, error)
}

// AudioExtractor pulls an audio stream out of a downloaded media file.
type AudioExtractor interface {
	ExtractAudio(ctx context.Context, mediaPath string) (string, error)
}

// SpeechToText transcribes extracted audio into timed segments.
type SpeechToText interface {
	// Transcribe returns ordered segments, the detected language, and a
	// low-confidence flag.
	Transcribe(ctx context.Context, audioPath, languageHint string) ([]domain.Segment, string, bool, error)
}

// TextGenerator produces prose from a structured prompt.
type TextGenerator interface {
	Complete(ctx context.Context, system, prompt string, params domain.GenerationParams) (string, error)
}

// Scheduler controls when recurring pipeline executions fire.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}

// Store is the durable record of keywords, videos, transcripts, articles,
// and pipeline runs. It is the single synchronization point across
// concurrent units of work.
type Store interface {
	KeywordByID(ctx context.Context, id string) (domain.Keyword, error)
	// KeywordsByPlatform lists upstream-discovered keywords for one
	// platform and region, ordered by rank.
	KeywordsByPlatform(ctx context.Context, platform, region string) ([]domain.Keyword, error)
	SaveKeyword(ctx context.Context, k *domain.Keyword) error

	VideoByYouTubeID(ctx context.Context, youtubeID string) (domain.Video, error)
	VideoByID(ctx context.Context, id string) (domain.Video, error)
	SaveVideo(ctx context.Context, v *domain.Video) error
	MarkVideoAcquired(ctx context.Context, id, mediaPath string, at time.Time) error

	// TranscriptFor returns the non-stale transcript for (video, language).
	TranscriptFor(ctx context.Context, videoID, language string) (domain.Transcript, error)
	TranscriptByID(ctx context.Context, id string) (domain.Transcript, error)
	// InsertTranscript enforces (video, language) uniqueness among non-stale
	// rows with a transactional check-and-insert; a conflicting insert
	// returns domain.ErrAlreadyExists.
	InsertTranscript(ctx context.Context, t *domain.Transcript) error
	MarkTranscriptStale(ctx context.Context, id string) error

	// InsertArticle enforces (video, transcript, style) uniqueness among
	// non-superseded rows, so a retried or resumed generation cannot store
	// the same style twice; a conflicting insert returns
	// domain.ErrAlreadyExists.
	InsertArticle(ctx context.Context, a *domain.Article) error
	ArticlesByVideo(ctx context.Context, videoID string) ([]domain.Article, error)
	SetArticlePublished(ctx context.Context, id string, published bool) error
	// MarkArticleSuperseded retires an article so a regenerated one can be
	// inserted for the same (video, transcript, style).
	MarkArticleSuperseded(ctx context.Context, id string) error

	RunByVideo(ctx context.Context, videoID string) (domain.Run, error)
	SaveRun(ctx context.Context, r *domain.Run) error
	IncompleteRuns(ctx context.Context) ([]domain.Run, error)
}
