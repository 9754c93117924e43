package transcript

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ytdigest/internal/domain"
	"ytdigest/internal/ports"
)

// Policy carries the caption usability thresholds. Passed in explicitly,
// never read from process-wide state.
type Policy struct {
	// CaptionMinCoverage is the minimum fraction of the media duration
	// native captions must cover to be used directly.
	CaptionMinCoverage float64
	// CaptionMaxGap is the largest inter-segment gap tolerated on the
	// caption path.
	CaptionMaxGap time.Duration
	// GapThreshold is the smallest uncovered interval recorded as a gap.
	GapThreshold time.Duration
}

// Options modify one resolution request.
type Options struct {
	// Language requests a transcript language; empty means the video's own.
	Language string
	// ForceRefresh supersedes an existing transcript by inserting a new row
	// and marking the old one stale. Nothing is deleted.
	ForceRefresh bool
}

// Resolver turns a media bundle into a canonical Transcript row, choosing
// between native captions (cheap path) and speech-to-text (expensive path).
type Resolver struct {
	extractor ports.AudioExtractor
	stt       ports.SpeechToText
	store     ports.Store
	policy    Policy
	logger    *slog.Logger
}

// NewResolver wires the audio extractor, STT port, and store.
func NewResolver(extractor ports.AudioExtractor, stt ports.SpeechToText, store ports.Store, policy Policy, log *slog.Logger) *Resolver {
	return &Resolver{
		extractor: extractor,
		stt:       stt,
		store:     store,
		policy:    policy,
		logger:    log,
	}
}

// Resolve returns the transcript for the bundle's video in the requested
// language, creating it if needed. Re-resolving an existing language
// returns the stored row unchanged unless Options.ForceRefresh is set.
func (r *Resolver) Resolve(ctx context.Context, bundle domain.MediaBundle, opts Options) (domain.Transcript, error) {
	video := bundle.Video
	language := opts.Language
	if language == "" {
		language = video.Language
	}
	if language == "" {
		language = bundle.CaptionLanguage
	}
	if language == "" {
		language = "en"
	}

	existing, err := r.store.TranscriptFor(ctx, video.ID, language)
	switch {
	case err == nil && !opts.ForceRefresh:
		r.debug("transcript cached", "video_id", video.ID, "language", language)
		return existing, nil
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		return domain.Transcript{}, fmt.Errorf("load transcript: %w", err)
	}

	transcript, err := r.produce(ctx, bundle, language)
	if err != nil {
		return domain.Transcript{}, err
	}

	// Supersede before inserting so the live-uniqueness index admits the
	// new row. A crash in between leaves no live transcript, which simply
	// re-resolves next run.
	if opts.ForceRefresh && existing.ID != "" {
		if err := r.store.MarkTranscriptStale(ctx, existing.ID); err != nil {
			return domain.Transcript{}, fmt.Errorf("supersede transcript: %w", err)
		}
	}

	if err := r.store.InsertTranscript(ctx, &transcript); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			// A concurrent resolution won the insert race; use its row.
			return r.store.TranscriptFor(ctx, video.ID, transcript.Language)
		}
		return domain.Transcript{}, fmt.Errorf("insert transcript: %w", err)
	}

	if transcript.LowConfidence && r.logger != nil {
		r.logger.Warn("stored low confidence transcript",
			"video_id", video.ID, "language", transcript.Language)
	}
	return transcript, nil
}

func (r *Resolver) produce(ctx context.Context, bundle domain.MediaBundle, language string) (domain.Transcript, error) {
	video := bundle.Video

	if r.captionsUsable(bundle, language) {
		merged := Merge(bundle.Captions, video.Duration, r.policy.GapThreshold)
		r.debug("using native captions", "video_id", video.ID, "coverage", merged.Coverage)
		return domain.Transcript{
			VideoID:  video.ID,
			Language: language,
			Text:     merged.Text,
			Source:   domain.SourceCaptions,
			Coverage: merged.Coverage,
			Gaps:     merged.Gaps,
		}, nil
	}

	audioPath, err := r.extractor.ExtractAudio(ctx, video.MediaPath)
	if err != nil {
		return domain.Transcript{}, fmt.Errorf("extract audio: %w", err)
	}

	segments, detected, lowConfidence, err := r.stt.Transcribe(ctx, audioPath, language)
	if err != nil {
		return domain.Transcript{}, fmt.Errorf("transcribe: %w", err)
	}
	if detected != "" {
		language = detected
	}

	merged := Merge(segments, video.Duration, r.policy.GapThreshold)
	r.debug("using speech-to-text", "video_id", video.ID, "language", language,
		"coverage", merged.Coverage, "low_confidence", lowConfidence)
	return domain.Transcript{
		VideoID:       video.ID,
		Language:      language,
		Text:          merged.Text,
		Source:        domain.SourceSTT,
		Coverage:      merged.Coverage,
		Gaps:          merged.Gaps,
		LowConfidence: lowConfidence,
	}, nil
}

// captionsUsable judges the native track: right language, enough coverage,
// no oversized holes.
func (r *Resolver) captionsUsable(bundle domain.MediaBundle, language string) bool {
	if len(bundle.Captions) == 0 {
		return false
	}
	if bundle.CaptionLanguage != "" && bundle.CaptionLanguage != language {
		return false
	}

	merged := Merge(bundle.Captions, bundle.Video.Duration, r.policy.GapThreshold)
	if merged.Coverage < r.policy.CaptionMinCoverage {
		return false
	}
	if r.policy.CaptionMaxGap > 0 && merged.MaxGap > r.policy.CaptionMaxGap {
		return false
	}
	return true
}

func (r *Resolver) debug(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Debug(msg, args...)
	}
}
