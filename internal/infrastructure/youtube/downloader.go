package youtube

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"ytdigest/internal/domain"
	"ytdigest/internal/ports"
)

const (
	defaultBaseURL      = "https://www.youtube.com"
	defaultYtdlpPath    = "yt-dlp"
	defaultYtdlpTimeout = 10 * time.Minute
	userAgent           = "ytdigest/1.0"
)

// Downloader talks to YouTube: watch-page scraping for metadata, the
// timedtext endpoint for native captions, and yt-dlp for media streams.
type Downloader struct {
	client    *http.Client
	limiter   *rate.Limiter
	baseURL   string
	ytdlpPath string
	timeout   time.Duration
	logger    *slog.Logger
}

var _ ports.VideoDownloader = (*Downloader)(nil)

// NewDownloader wires an HTTP client and a request rate limit.
func NewDownloader(client *http.Client, log *slog.Logger) *Downloader {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Downloader{
		client:    client,
		limiter:   rate.NewLimiter(rate.Every(time.Second), 2),
		baseURL:   defaultBaseURL,
		ytdlpPath: defaultYtdlpPath,
		timeout:   defaultYtdlpTimeout,
		logger:    log,
	}
}

// ResolveID extracts the canonical video id from any supported URL form.
// Bare eleven-character ids pass through unchanged.
func (d *Downloader) ResolveID(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("empty video reference")
	}
	if !strings.Contains(ref, "/") && !strings.Contains(ref, ".") {
		return ref, nil
	}

	parsed, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse video url %q: %w", ref, err)
	}

	host := strings.TrimPrefix(parsed.Hostname(), "www.")
	switch host {
	case "youtu.be":
		if id := strings.Trim(parsed.Path, "/"); id != "" {
			return id, nil
		}
	case "youtube.com", "m.youtube.com":
		switch {
		case parsed.Path == "/watch":
			if id := parsed.Query().Get("v"); id != "" {
				return id, nil
			}
		case strings.HasPrefix(parsed.Path, "/embed/"),
			strings.HasPrefix(parsed.Path, "/shorts/"),
			strings.HasPrefix(parsed.Path, "/v/"):
			parts := strings.Split(strings.Trim(parsed.Path, "/"), "/")
			if len(parts) == 2 && parts[1] != "" {
				return parts[1], nil
			}
		}
	}

	return "", fmt.Errorf("cannot extract video id from %q", ref)
}

// Metadata scrapes the watch page for title, duration, thumbnail, and
// engagement counters.
func (d *Downloader) Metadata(ctx context.Context, videoID string) (domain.Video, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return domain.Video{}, err
	}

	pageURL := fmt.Sprintf("%s/watch?v=%s", d.baseURL, url.QueryEscape(videoID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return domain.Video{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return domain.Video{}, fmt.Errorf("fetch watch page: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.Video{}, fmt.Errorf("video %s: %w", videoID, domain.ErrNotFound)
	case resp.StatusCode == http.StatusTooManyRequests:
		return domain.Video{}, fmt.Errorf("video %s: %w", videoID, domain.ErrRateLimited)
	case resp.StatusCode >= http.StatusInternalServerError:
		return domain.Video{}, fmt.Errorf("watch page %s: %w", resp.Status, domain.ErrServiceUnavailable)
	case resp.StatusCode != http.StatusOK:
		return domain.Video{}, fmt.Errorf("watch page returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return domain.Video{}, fmt.Errorf("parse watch page: %w", err)
	}

	video := parseWatchPage(doc)
	video.YouTubeID = videoID
	video.URL = pageURL
	if video.Title == "" {
		// Unavailable videos render a stub page without og: metadata.
		return domain.Video{}, fmt.Errorf("video %s has no metadata: %w", videoID, domain.ErrNotFound)
	}
	return video, nil
}

func parseWatchPage(doc *goquery.Document) domain.Video {
	var video domain.Video

	video.Title = metaContent(doc, `meta[property="og:title"]`)
	if video.Title == "" {
		video.Title = strings.TrimSpace(doc.Find("title").First().Text())
		video.Title = strings.TrimSuffix(video.Title, " - YouTube")
	}
	video.ThumbnailURL = metaContent(doc, `meta[property="og:image"]`)
	video.Category = metaContent(doc, `meta[itemprop="genre"]`)
	video.Language = metaContent(doc, `meta[itemprop="inLanguage"]`)

	if raw := metaContent(doc, `meta[itemprop="duration"]`); raw != "" {
		if secs, err := ParseISODuration(raw); err == nil {
			video.Duration = time.Duration(secs) * time.Second
		}
	}
	if raw := metaContent(doc, `meta[itemprop="interactionCount"]`); raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			video.Views = n
		}
	}

	return video
}

func metaContent(doc *goquery.Document, selector string) string {
	content, _ := doc.Find(selector).First().Attr("content")
	return strings.TrimSpace(content)
}

// timedtextResponse mirrors the json3 payload of the timedtext endpoint.
type timedtextResponse struct {
	Events []struct {
		StartMs    int64 `json:"tStartMs"`
		DurationMs int64 `json:"dDurationMs"`
		Segs       []struct {
			UTF8 string `json:"utf8"`
		} `json:"segs"`
	} `json:"events"`
}

// Captions fetches the native caption track. A video without captions in the
// requested language yields (nil, "", nil).
func (d *Downloader) Captions(ctx context.Context, videoID, language string) ([]domain.Segment, string, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, "", err
	}
	if language == "" {
		language = "en"
	}

	params := url.Values{}
	params.Set("v", videoID)
	params.Set("lang", language)
	params.Set("fmt", "json3")
	captionURL := fmt.Sprintf("%s/api/timedtext?%s", d.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, captionURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch captions: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, "", nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, "", fmt.Errorf("captions %s: %w", videoID, domain.ErrRateLimited)
	case resp.StatusCode != http.StatusOK:
		return nil, "", fmt.Errorf("timedtext returned %s", resp.Status)
	}

	var tt timedtextResponse
	if err := json.NewDecoder(resp.Body).Decode(&tt); err != nil {
		return nil, "", fmt.Errorf("decode timedtext: %w", err)
	}
	if len(tt.Events) == 0 {
		return nil, "", nil
	}

	segments := make([]domain.Segment, 0, len(tt.Events))
	for _, ev := range tt.Events {
		var text strings.Builder
		for _, seg := range ev.Segs {
			text.WriteString(seg.UTF8)
		}
		clean := strings.TrimSpace(text.String())
		if clean == "" {
			continue
		}
		start := time.Duration(ev.StartMs) * time.Millisecond
		segments = append(segments, domain.Segment{
			Start: start,
			End:   start + time.Duration(ev.DurationMs)*time.Millisecond,
			Text:  clean,
		})
	}
	sort.Slice(segments, func(i, j int) bool { return segments[i].Start < segments[j].Start })

	if len(segments) == 0 {
		return nil, "", nil
	}
	return segments, language, nil
}

// DownloadMedia runs yt-dlp to fetch the media stream into dst and returns
// the number of bytes written. Partial artifacts are removed so a retry
// starts from scratch.
func (d *Downloader) DownloadMedia(ctx context.Context, videoID, dst string) (int64, error) {
	runCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	videoURL := fmt.Sprintf("%s/watch?v=%s", d.baseURL, url.QueryEscape(videoID))
	args := []string{
		"--no-playlist",
		"--no-progress",
		"-f", "mp4/best",
		"-o", dst,
		videoURL,
	}

	cmd := exec.CommandContext(runCtx, d.ytdlpPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if d.logger != nil {
		d.logger.Debug("running yt-dlp", "video_id", videoID, "dst", dst)
	}

	if err := cmd.Run(); err != nil {
		_ = os.Remove(dst)
		return 0, classifyYtdlpError(runCtx, stderr.String(), err)
	}

	info, err := os.Stat(dst)
	if err != nil {
		return 0, fmt.Errorf("missing artifact after download: %w", domain.ErrPartialDownload)
	}
	if info.Size() == 0 {
		_ = os.Remove(dst)
		return 0, fmt.Errorf("empty artifact for %s: %w", videoID, domain.ErrPartialDownload)
	}
	return info.Size(), nil
}

func classifyYtdlpError(ctx context.Context, stderr string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	lower := strings.ToLower(stderr)
	switch {
	case strings.Contains(lower, "video unavailable"),
		strings.Contains(lower, "private video"),
		strings.Contains(lower, "removed"):
		return fmt.Errorf("yt-dlp: %s: %w", firstLine(stderr), domain.ErrNotFound)
	case strings.Contains(lower, "429"), strings.Contains(lower, "too many requests"):
		return fmt.Errorf("yt-dlp: %w", domain.ErrRateLimited)
	case strings.Contains(lower, "incomplete"), strings.Contains(lower, "connection reset"):
		return fmt.Errorf("yt-dlp: %w", domain.ErrPartialDownload)
	}
	return fmt.Errorf("yt-dlp: %s: %w", firstLine(stderr), err)
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return s
}
