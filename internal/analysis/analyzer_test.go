package analysis

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"ytdigest/internal/domain"
)

const sampleText = "Goroutines are lightweight threads managed by the runtime. " +
	"Channels connect goroutines so values flow between concurrent functions. " +
	"Select statements let a goroutine wait on multiple channel operations. " +
	"Buffered channels decouple senders from receivers up to a capacity. " +
	"Context cancellation propagates deadlines through a call tree. " +
	"Worker pools bound concurrency by sharing a channel of jobs. " +
	"Mutexes protect shared state when channels are a poor fit. " +
	"Race detection catches unsynchronized access during tests."

func sampleTranscript() domain.Transcript {
	return domain.Transcript{
		ID:       "tr-1",
		VideoID:  "vid-1",
		Language: "en",
		Text:     sampleText,
		Source:   domain.SourceCaptions,
		Coverage: 1.0,
	}
}

func TestAnalyzeDeterministic(t *testing.T) {
	t.Parallel()

	a := New(Config{})
	first, err := a.Analyze(sampleTranscript(), "Go Concurrency")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	second, err := a.Analyze(sampleTranscript(), "Go Concurrency")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("same input must produce identical output")
	}
}

func TestAnalyzeStructure(t *testing.T) {
	t.Parallel()

	a := New(Config{SentencesPerSegment: 3})
	content, err := a.Analyze(sampleTranscript(), "Go Concurrency")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if content.VideoTitle != "Go Concurrency" {
		t.Fatalf("unexpected title: %q", content.VideoTitle)
	}
	if content.Language != "en" {
		t.Fatalf("unexpected language: %q", content.Language)
	}

	// 8 sentences, 3 per segment.
	if len(content.Segments) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(content.Segments))
	}
	if len(content.Outline) != len(content.Segments) {
		t.Fatalf("outline must mirror segments: %d vs %d", len(content.Outline), len(content.Segments))
	}
	for i, seg := range content.Segments {
		if seg.Topic == "" {
			t.Fatalf("segment %d has no topic", i)
		}
		if content.Outline[i] != seg.Topic {
			t.Fatalf("outline[%d] = %q, segment topic %q", i, content.Outline[i], seg.Topic)
		}
	}

	if len(content.KeyPoints) == 0 {
		t.Fatalf("expected key points")
	}
	for _, p := range content.KeyPoints {
		if !strings.Contains(sampleText, p) {
			t.Fatalf("key point %q is not a transcript sentence", p)
		}
	}
}

func TestAnalyzeGapAnnotation(t *testing.T) {
	t.Parallel()

	transcript := sampleTranscript()
	transcript.Coverage = 0.8
	transcript.Gaps = []domain.Gap{
		{Start: 0, End: 3 * time.Second},
		{Start: 28 * time.Second, End: 30 * time.Second},
	}

	a := New(Config{SentencesPerSegment: 3})
	content, err := a.Analyze(transcript, "Go Concurrency")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(content.Segments) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(content.Segments))
	}

	if !content.Segments[0].GapAdjacent {
		t.Fatalf("segment bordering the leading gap must be annotated")
	}
	if content.Segments[1].GapAdjacent {
		t.Fatalf("middle segment is far from both gaps")
	}
	if !content.Segments[2].GapAdjacent {
		t.Fatalf("segment bordering the tail gap must be annotated")
	}
}

func TestAnalyzeEmptyTranscript(t *testing.T) {
	t.Parallel()

	a := New(Config{})
	transcript := sampleTranscript()
	transcript.Text = "   "
	if _, err := a.Analyze(transcript, "x"); err == nil {
		t.Fatalf("empty transcript must fail analysis")
	}
}

func TestSplitSentences(t *testing.T) {
	t.Parallel()

	got := splitSentences("One. Two! Three? 四。")
	want := []string{"One.", "Two!", "Three?", "四。"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("splitSentences = %v, want %v", got, want)
	}
}
