package analysis

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"ytdigest/internal/domain"
)

// Config tunes segmentation. Identical transcript plus identical config
// always yields identical output; the analyzer has no side effects and
// writes nothing.
type Config struct {
	// SentencesPerSegment groups this many sentences into one topic segment.
	SentencesPerSegment int
	// MaxKeyPoints caps the extracted key points.
	MaxKeyPoints int
	// TopicTerms is how many leading terms label a segment's topic.
	TopicTerms int
}

// DefaultConfig returns the segmentation defaults.
func DefaultConfig() Config {
	return Config{SentencesPerSegment: 6, MaxKeyPoints: 8, TopicTerms: 3}
}

// Analyzer structures a transcript into segments, key points, and a topic
// outline for the article generators.
type Analyzer struct {
	cfg Config
}

// New builds an analyzer; zero-value config fields fall back to defaults.
func New(cfg Config) *Analyzer {
	def := DefaultConfig()
	if cfg.SentencesPerSegment <= 0 {
		cfg.SentencesPerSegment = def.SentencesPerSegment
	}
	if cfg.MaxKeyPoints <= 0 {
		cfg.MaxKeyPoints = def.MaxKeyPoints
	}
	if cfg.TopicTerms <= 0 {
		cfg.TopicTerms = def.TopicTerms
	}
	return &Analyzer{cfg: cfg}
}

// Analyze builds the structured view of a transcript. Coverage gaps are
// mapped onto the segments that border them and annotated, never filled in.
func (a *Analyzer) Analyze(transcript domain.Transcript, videoTitle string) (domain.AnalyzedContent, error) {
	sentences := splitSentences(transcript.Text)
	if len(sentences) == 0 {
		return domain.AnalyzedContent{}, fmt.Errorf("transcript %s has no analyzable text", transcript.ID)
	}

	segments := a.segment(sentences)
	annotateGaps(segments, transcript.Gaps)

	outline := make([]string, 0, len(segments))
	for _, seg := range segments {
		outline = append(outline, seg.Topic)
	}

	return domain.AnalyzedContent{
		VideoTitle: videoTitle,
		Language:   transcript.Language,
		Segments:   segments,
		KeyPoints:  a.keyPoints(sentences),
		Outline:    outline,
	}, nil
}

func (a *Analyzer) segment(sentences []string) []domain.TopicSegment {
	var segments []domain.TopicSegment
	for i := 0; i < len(sentences); i += a.cfg.SentencesPerSegment {
		end := i + a.cfg.SentencesPerSegment
		if end > len(sentences) {
			end = len(sentences)
		}
		text := strings.Join(sentences[i:end], " ")
		segments = append(segments, domain.TopicSegment{
			Topic: topicLabel(text, a.cfg.TopicTerms),
			Text:  text,
		})
	}
	return segments
}

// annotateGaps assigns each segment an estimated share of the timeline
// proportional to its text length and flags segments bordering a recorded
// coverage gap.
func annotateGaps(segments []domain.TopicSegment, gaps []domain.Gap) {
	var total time.Duration
	for _, g := range gaps {
		if g.End > total {
			total = g.End
		}
	}
	if total == 0 || len(segments) == 0 {
		return
	}

	var chars int
	for _, seg := range segments {
		chars += len(seg.Text)
	}
	if chars == 0 {
		return
	}

	cursor := time.Duration(0)
	for i := range segments {
		span := time.Duration(float64(total) * float64(len(segments[i].Text)) / float64(chars))
		segments[i].Start = cursor
		segments[i].End = cursor + span
		cursor += span
	}
	segments[len(segments)-1].End = total

	for i := range segments {
		for _, g := range gaps {
			if g.Start < segments[i].End && g.End > segments[i].Start {
				segments[i].GapAdjacent = true
				break
			}
		}
	}
}

// keyPoints picks the highest-scoring sentence per score bucket, favoring
// sentences dense in the transcript's frequent terms. Ties break by
// position so the result is stable.
func (a *Analyzer) keyPoints(sentences []string) []string {
	freq := termFrequencies(strings.Join(sentences, " "))

	type scored struct {
		index int
		score float64
	}
	ranked := make([]scored, 0, len(sentences))
	for i, sentence := range sentences {
		terms := tokenize(sentence)
		if len(terms) < 4 {
			continue
		}
		var sum float64
		for _, term := range terms {
			sum += float64(freq[term])
		}
		ranked = append(ranked, scored{index: i, score: sum / float64(len(terms))})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].index < ranked[j].index
	})

	limit := a.cfg.MaxKeyPoints
	if limit > len(ranked) {
		limit = len(ranked)
	}
	picked := ranked[:limit]
	sort.Slice(picked, func(i, j int) bool { return picked[i].index < picked[j].index })

	points := make([]string, 0, len(picked))
	for _, p := range picked {
		points = append(points, sentences[p.index])
	}
	return points
}

func topicLabel(text string, n int) string {
	freq := termFrequencies(text)

	type term struct {
		word  string
		count int
	}
	terms := make([]term, 0, len(freq))
	for w, c := range freq {
		terms = append(terms, term{w, c})
	}
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].count != terms[j].count {
			return terms[i].count > terms[j].count
		}
		return terms[i].word < terms[j].word
	})

	if n > len(terms) {
		n = len(terms)
	}
	words := make([]string, 0, n)
	for _, t := range terms[:n] {
		words = append(words, t.word)
	}
	return strings.Join(words, " ")
}

func termFrequencies(text string) map[string]int {
	freq := map[string]int{}
	for _, term := range tokenize(text) {
		freq[term]++
	}
	return freq
}

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "that": {}, "this": {}, "with": {},
	"you": {}, "are": {}, "was": {}, "but": {}, "not": {}, "have": {},
	"has": {}, "had": {}, "its": {}, "can": {}, "what": {}, "when": {},
	"your": {}, "from": {}, "they": {}, "them": {}, "there": {}, "were": {},
	"will": {}, "just": {}, "about": {}, "into": {}, "like": {}, "then": {},
	"than": {}, "some": {}, "out": {}, "going": {}, "all": {}, "really": {},
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 3 {
			continue
		}
		if _, skip := stopwords[f]; skip {
			continue
		}
		terms = append(terms, f)
	}
	return terms
}

func splitSentences(text string) []string {
	var (
		sentences []string
		current   strings.Builder
	)
	flush := func() {
		s := strings.TrimSpace(current.String())
		if s != "" {
			sentences = append(sentences, s)
		}
		current.Reset()
	}

	for _, r := range text {
		current.WriteRune(r)
		switch r {
		case '.', '!', '?', '。', '！', '？':
			flush()
		}
	}
	flush()
	return sentences
}
