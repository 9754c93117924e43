package article

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"unicode/utf8"

	"ytdigest/internal/domain"
)

type fakeTextGen struct {
	outputs []string
	err     error
	calls   int
	params  []domain.GenerationParams
}

func (f *fakeTextGen) Complete(_ context.Context, _, _ string, params domain.GenerationParams) (string, error) {
	f.calls++
	f.params = append(f.params, params)
	if f.err != nil {
		return "", f.err
	}
	i := f.calls - 1
	if i >= len(f.outputs) {
		i = len(f.outputs) - 1
	}
	return f.outputs[i], nil
}

func sampleContent() domain.AnalyzedContent {
	return domain.AnalyzedContent{
		VideoTitle: "Go Concurrency Patterns",
		Language:   "en",
		Segments: []domain.TopicSegment{
			{Topic: "goroutines channels", Text: "Goroutines and channels work together."},
			{Topic: "worker pools", Text: "Worker pools bound concurrency."},
		},
		KeyPoints: []string{"Channels connect goroutines."},
		Outline:   []string{"goroutines channels", "worker pools"},
	}
}

func validBlog() string {
	body := strings.Repeat("Concurrency in Go rewards structure over cleverness. ", 10)
	return "# Understanding Go Concurrency\n\nIntro paragraph.\n\n" +
		"## Goroutines and Channels\n" + body + "\n\n" +
		"## Worker Pools\n" + body + "\n\nClosing thoughts."
}

func testGenerator(tg *fakeTextGen) *Generator {
	return NewGenerator(tg, NewRegistry(), Config{MinLength: 100}, slog.Default())
}

func TestGenerateBlog(t *testing.T) {
	t.Parallel()

	tg := &fakeTextGen{outputs: []string{validBlog()}}
	g := testGenerator(tg)

	draft, err := g.Generate(context.Background(), domain.StyleBlog, sampleContent())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if draft.Title != "Understanding Go Concurrency" {
		t.Fatalf("unexpected title: %q", draft.Title)
	}
	if strings.HasPrefix(draft.Content, "#") {
		t.Fatalf("title must be stripped from the body")
	}
	if draft.SEO.Slug != "understanding-go-concurrency" {
		t.Fatalf("unexpected slug: %q", draft.SEO.Slug)
	}
	if len(draft.Tags) != 2 || draft.Tags[0] != "goroutines channels" {
		t.Fatalf("unexpected tags: %v", draft.Tags)
	}
	if draft.SEO.Description == "" {
		t.Fatalf("expected a description")
	}
}

func TestGenerateMetadataDeterministic(t *testing.T) {
	t.Parallel()

	g := testGenerator(&fakeTextGen{outputs: []string{validBlog()}})
	ctx := context.Background()

	first, err := g.Generate(ctx, domain.StyleBlog, sampleContent())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	second, err := g.Generate(ctx, domain.StyleBlog, sampleContent())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if first.SEO.Slug != second.SEO.Slug || strings.Join(first.Tags, ",") != strings.Join(second.Tags, ",") {
		t.Fatalf("metadata must be deterministic: %+v vs %+v", first.SEO, second.SEO)
	}
}

func TestGenerateQualityRetry(t *testing.T) {
	t.Parallel()

	// First completion misses the section structure, second is fine.
	tg := &fakeTextGen{outputs: []string{
		"# Title\n\n" + strings.Repeat("no sections here. ", 20),
		validBlog(),
	}}
	g := testGenerator(tg)

	if _, err := g.Generate(context.Background(), domain.StyleBlog, sampleContent()); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if tg.calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", tg.calls)
	}
	if tg.params[1].Temperature <= tg.params[0].Temperature {
		t.Fatalf("retry must raise temperature: %v then %v",
			tg.params[0].Temperature, tg.params[1].Temperature)
	}
}

func TestGenerateQualityExhausted(t *testing.T) {
	t.Parallel()

	tg := &fakeTextGen{outputs: []string{"too short"}}
	g := NewGenerator(tg, NewRegistry(), Config{MaxAttempts: 3, MinLength: 100}, slog.Default())

	_, err := g.Generate(context.Background(), domain.StyleBlog, sampleContent())
	if !errors.Is(err, domain.ErrGenerationQuality) {
		t.Fatalf("got %v, want ErrGenerationQuality", err)
	}
	if tg.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", tg.calls)
	}
}

func TestGenerateServiceErrorNotRetried(t *testing.T) {
	t.Parallel()

	tg := &fakeTextGen{err: fmt.Errorf("upstream: %w", domain.ErrServiceUnavailable)}
	g := testGenerator(tg)

	_, err := g.Generate(context.Background(), domain.StyleBlog, sampleContent())
	if !errors.Is(err, domain.ErrServiceUnavailable) {
		t.Fatalf("got %v, want ErrServiceUnavailable", err)
	}
	if tg.calls != 1 {
		t.Fatalf("service errors are the caller's retry, got %d calls", tg.calls)
	}
}

func TestFormatterValidation(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("content. ", 30)

	cases := []struct {
		style domain.Style
		good  string
		bad   string
	}{
		{
			style: domain.StyleWiki,
			good:  "## Overview\n" + long + "\n## Details\n" + long,
			bad:   "## History\n" + long,
		},
		{
			style: domain.StyleListicle,
			good:  "intro\n## 1. First\n" + long + "\n## 2. Second\n" + long + "\n## 3. Third\n" + long,
			bad:   "intro\n## 1. Only\n" + long,
		},
		{
			style: domain.StyleDeepDive,
			good:  "## Background\n" + long + "\n## Takeaways\n" + long,
			bad:   "## Background\n" + long,
		},
		{
			style: domain.StyleBlog,
			good:  "intro\n\n## One\n" + long + "\n## Two\n" + long,
			bad:   long,
		},
	}

	registry := NewRegistry()
	for _, tc := range cases {
		f, err := registry.Resolve(tc.style)
		if err != nil {
			t.Fatalf("resolve %s: %v", tc.style, err)
		}
		if err := f.Validate(domain.Draft{Title: "t", Content: tc.good}); err != nil {
			t.Fatalf("%s: valid draft rejected: %v", tc.style, err)
		}
		if err := f.Validate(domain.Draft{Title: "t", Content: tc.bad}); !errors.Is(err, domain.ErrGenerationQuality) {
			t.Fatalf("%s: invalid draft accepted", tc.style)
		}
	}
}

func TestParseStyle(t *testing.T) {
	t.Parallel()

	for _, s := range domain.AllStyles() {
		got, err := ParseStyle(string(s))
		if err != nil || got != s {
			t.Fatalf("ParseStyle(%q) = %v, %v", s, got, err)
		}
	}
	if _, err := ParseStyle("haiku"); err == nil {
		t.Fatalf("unknown style must fail")
	}
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	t.Parallel()

	// No spaces in the first 160 bytes, so the cut lands mid-string; it
	// must still fall on a rune boundary.
	cjk := strings.Repeat("並行処理の設計", 12)
	got := truncate(cjk, 160)
	if !utf8.ValidString(got) {
		t.Fatalf("truncate split a rune: %q", got)
	}
	if len(got) == 0 || len(got) > 160 {
		t.Fatalf("truncate length = %d", len(got))
	}

	withSpace := strings.Repeat("x", 100) + " " + strings.Repeat("y", 100)
	if got := truncate(withSpace, 160); got != strings.Repeat("x", 100) {
		t.Fatalf("truncate should break on the space, got %d bytes", len(got))
	}

	if got := truncate("short", 160); got != "short" {
		t.Fatalf("short strings pass through, got %q", got)
	}
}

func TestSlugify(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"Understanding Go Concurrency": "understanding-go-concurrency",
		"What's New in Go 1.25?":       "what-s-new-in-go-1-25",
		"  spaced   out  ":             "spaced-out",
	}
	for in, want := range cases {
		if got := Slugify(in); got != want {
			t.Fatalf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
}
