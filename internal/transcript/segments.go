package transcript

import (
	"sort"
	"strings"
	"time"

	"ytdigest/internal/domain"
)

// Merged is the outcome of flattening timed segments into one text.
type Merged struct {
	Text     string
	Coverage float64
	Gaps     []domain.Gap
	MaxGap   time.Duration
}

// Merge orders segments by start time, deduplicates overlapping text, and
// records every uncovered interval of at least gapThreshold. Gaps are kept,
// not silently dropped, so downstream analysis knows about missing coverage.
func Merge(segments []domain.Segment, duration time.Duration, gapThreshold time.Duration) Merged {
	if len(segments) == 0 {
		gaps := []domain.Gap(nil)
		if duration >= gapThreshold && duration > 0 {
			gaps = []domain.Gap{{Start: 0, End: duration}}
		}
		return Merged{Gaps: gaps, MaxGap: duration}
	}

	ordered := make([]domain.Segment, len(segments))
	copy(ordered, segments)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Start < ordered[j].Start })

	var (
		parts    []string
		gaps     []domain.Gap
		maxGap   time.Duration
		covered  time.Duration
		cursor   time.Duration
		prevText string
	)

	recordGap := func(from, to time.Duration) {
		if to <= from {
			return
		}
		gap := to - from
		if gap > maxGap {
			maxGap = gap
		}
		if gapThreshold > 0 && gap >= gapThreshold {
			gaps = append(gaps, domain.Gap{Start: from, End: to})
		}
	}

	for _, seg := range ordered {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}

		if seg.Start > cursor {
			recordGap(cursor, seg.Start)
		}

		// Rolling captions repeat text across overlapping cues; keep each
		// piece once.
		switch {
		case text == prevText:
			text = ""
		case prevText != "" && strings.HasPrefix(text, prevText):
			text = strings.TrimSpace(strings.TrimPrefix(text, prevText))
		}
		if text != "" {
			parts = append(parts, text)
			prevText = strings.TrimSpace(seg.Text)
		}

		start := seg.Start
		if start < cursor {
			start = cursor
		}
		if seg.End > start {
			covered += seg.End - start
		}
		if seg.End > cursor {
			cursor = seg.End
		}
	}

	if duration > cursor {
		recordGap(cursor, duration)
	}

	coverage := 1.0
	if duration > 0 {
		coverage = float64(covered) / float64(duration)
		if coverage > 1 {
			coverage = 1
		}
	}

	return Merged{
		Text:     strings.Join(parts, " "),
		Coverage: coverage,
		Gaps:     gaps,
		MaxGap:   maxGap,
	}
}
