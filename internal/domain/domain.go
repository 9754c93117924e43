package domain

import "time"

// Keyword is a trending search term discovered upstream. Rows are immutable
// after creation except for rank/score refresh.
type Keyword struct {
	ID        string
	Keyword   string
	Rank      int
	Score     int
	Platform  string
	Region    string
	Metadata  map[string]string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Video is one external video tied to the keyword it was found for.
// Content fields are immutable; engagement counters may be refreshed.
type Video struct {
	ID           string
	KeywordID    string
	YouTubeID    string
	URL          string
	Title        string
	Category     string
	ThumbnailURL string
	Duration     time.Duration
	Views        int64
	Likes        int64
	Comments     int64
	Language     string
	MediaPath    string
	AcquiredAt   *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Acquired reports whether a completed media acquisition exists for the video.
func (v Video) Acquired() bool {
	return v.AcquiredAt != nil && v.MediaPath != ""
}

// Segment is one timed piece of caption or speech-to-text output.
type Segment struct {
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`
	Text  string        `json:"text"`
}

// Gap is a time interval of the media not covered by any segment.
type Gap struct {
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`
}

// TranscriptSource tells where a transcript's text came from.
type TranscriptSource string

const (
	SourceCaptions TranscriptSource = "captions"
	SourceSTT      TranscriptSource = "stt"
)

// Transcript is the canonical text of a video in one language. At most one
// non-stale transcript exists per (video, language); superseding creates a
// new row and marks the old one stale, never edits in place.
type Transcript struct {
	ID            string
	VideoID       string
	Language      string
	Text          string
	Source        TranscriptSource
	Coverage      float64
	Gaps          []Gap
	LowConfidence bool
	Stale         bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// MediaBundle is what acquisition hands to transcript resolution.
type MediaBundle struct {
	Video    Video
	Captions []Segment
	// CaptionLanguage is the language of Captions when present.
	CaptionLanguage string
}

// TopicSegment is a contiguous slice of the transcript grouped under a topic.
type TopicSegment struct {
	Topic       string
	Text        string
	Start       time.Duration
	End         time.Duration
	GapAdjacent bool
}

// AnalyzedContent is the structured view of a transcript used by generators.
type AnalyzedContent struct {
	VideoTitle string
	Language   string
	Segments   []TopicSegment
	KeyPoints  []string
	Outline    []string
}

// SEOMetadata carries search metadata generated alongside an article.
type SEOMetadata struct {
	Description string   `json:"description"`
	Slug        string   `json:"slug"`
	Keywords    []string `json:"keywords"`
}

// Style selects one article formatting strategy.
type Style string

const (
	StyleBlog     Style = "blog"
	StyleWiki     Style = "wiki"
	StyleListicle Style = "listicle"
	StyleDeepDive Style = "deep-dive"
)

// AllStyles lists the closed set of supported styles.
func AllStyles() []Style {
	return []Style{StyleBlog, StyleWiki, StyleListicle, StyleDeepDive}
}

// GenerationParams tunes one text-generation attempt. Retries after a
// quality failure adjust these rather than repeating the same request.
type GenerationParams struct {
	Temperature float64
	MaxTokens   int
}

// Draft is the unvalidated output of one style formatter.
type Draft struct {
	Title   string
	Content string
	Tags    []string
	SEO     SEOMetadata
}

// Article references the keyword, video, and transcript it was generated
// from; the triple must be mutually consistent. Content is immutable once
// created. Regenerating a style supersedes the old row and inserts a new
// one; only one non-superseded row exists per (video, transcript, style).
type Article struct {
	ID           string
	KeywordID    string
	VideoID      string
	TranscriptID string
	Style        Style
	Language     string
	Title        string
	Content      string
	Tags         []string
	SEO          SEOMetadata
	Published    bool
	Superseded   bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
