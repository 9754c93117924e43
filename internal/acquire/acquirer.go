package acquire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"ytdigest/internal/domain"
	"ytdigest/internal/ports"
)

// Acquirer fetches a video's metadata, media stream, and native captions,
// persisting the Video row so a finished acquisition is never repeated.
type Acquirer struct {
	downloader ports.VideoDownloader
	store      ports.Store
	mediaDir   string
	logger     *slog.Logger
}

// New wires the downloader and store.
func New(downloader ports.VideoDownloader, store ports.Store, mediaDir string, log *slog.Logger) *Acquirer {
	return &Acquirer{
		downloader: downloader,
		store:      store,
		mediaDir:   mediaDir,
		logger:     log,
	}
}

// Acquire resolves ref to its canonical id, then returns the cached bundle
// if a completed acquisition exists, or performs the download and persists
// the Video row under keywordID. Captions are fetched but never trusted
// here; the transcript resolver judges their usability.
func (a *Acquirer) Acquire(ctx context.Context, ref, keywordID, language string) (domain.MediaBundle, error) {
	youtubeID, err := a.downloader.ResolveID(ref)
	if err != nil {
		return domain.MediaBundle{}, fmt.Errorf("resolve %q: %w", ref, err)
	}

	video, err := a.store.VideoByYouTubeID(ctx, youtubeID)
	switch {
	case err == nil && video.Acquired():
		if _, statErr := os.Stat(video.MediaPath); statErr == nil {
			a.debug("acquisition cached", "youtube_id", youtubeID)
			return a.bundle(ctx, video, language)
		}
		// Row says acquired but the artifact is gone; re-download.
		a.debug("cached artifact missing, re-acquiring", "youtube_id", youtubeID)
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		return domain.MediaBundle{}, fmt.Errorf("load video: %w", err)
	}

	meta, err := a.downloader.Metadata(ctx, youtubeID)
	if err != nil {
		return domain.MediaBundle{}, fmt.Errorf("metadata %s: %w", youtubeID, err)
	}

	if video.ID == "" {
		video = meta
		video.KeywordID = keywordID
	} else {
		// Refresh engagement counters only; content fields are immutable.
		video.Views = meta.Views
		video.Likes = meta.Likes
		video.Comments = meta.Comments
	}
	if err := a.store.SaveVideo(ctx, &video); err != nil {
		return domain.MediaBundle{}, fmt.Errorf("save video: %w", err)
	}

	mediaPath := filepath.Join(a.mediaDir, youtubeID+".mp4")
	if err := os.MkdirAll(a.mediaDir, 0o755); err != nil {
		return domain.MediaBundle{}, fmt.Errorf("media dir: %w", err)
	}

	written, err := a.downloader.DownloadMedia(ctx, youtubeID, mediaPath)
	if err != nil {
		return domain.MediaBundle{}, fmt.Errorf("download %s: %w", youtubeID, err)
	}
	if err := verifyArtifact(mediaPath, written); err != nil {
		return domain.MediaBundle{}, err
	}

	// The artifact is on disk and verified before the row claims success;
	// a crash in between leaves a re-downloadable video, never a lie.
	if err := a.store.MarkVideoAcquired(ctx, video.ID, mediaPath, time.Now().UTC()); err != nil {
		return domain.MediaBundle{}, fmt.Errorf("mark acquired: %w", err)
	}
	video.MediaPath = mediaPath
	now := time.Now().UTC()
	video.AcquiredAt = &now

	a.debug("acquired", "youtube_id", youtubeID, "bytes", written)
	return a.bundle(ctx, video, language)
}

func (a *Acquirer) bundle(ctx context.Context, video domain.Video, language string) (domain.MediaBundle, error) {
	if language == "" {
		language = video.Language
	}
	captions, captionLang, err := a.downloader.Captions(ctx, video.YouTubeID, language)
	if err != nil {
		// Captions are an optional input; resolution falls back to STT.
		a.debug("caption fetch failed", "youtube_id", video.YouTubeID, "error", err)
		captions, captionLang = nil, ""
	}
	return domain.MediaBundle{
		Video:           video,
		Captions:        captions,
		CaptionLanguage: captionLang,
	}, nil
}

func verifyArtifact(path string, expected int64) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat artifact: %w", domain.ErrPartialDownload)
	}
	if info.Size() == 0 || (expected > 0 && info.Size() != expected) {
		_ = os.Remove(path)
		return fmt.Errorf("artifact %s has %d bytes, expected %d: %w",
			filepath.Base(path), info.Size(), expected, domain.ErrPartialDownload)
	}
	return nil
}

func (a *Acquirer) debug(msg string, args ...any) {
	if a.logger != nil {
		a.logger.Debug(msg, args...)
	}
}
