package article

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"

	"ytdigest/internal/domain"
	"ytdigest/internal/ports"
)

// Config tunes the generation retry loop.
type Config struct {
	// MaxAttempts caps quality retries per style. Service errors are not
	// counted here; the caller handles those.
	MaxAttempts int
	// MinLength is the minimum accepted body length in bytes.
	MinLength int
	// BaseTemperature is used on the first attempt; each quality retry
	// raises it to escape a degenerate completion.
	BaseTemperature float64
	// MaxTokens bounds each completion.
	MaxTokens int
}

// Generator turns analyzed content into a validated draft for one style.
type Generator struct {
	textgen  ports.TextGenerator
	registry *Registry
	cfg      Config
	logger   *slog.Logger
}

func NewGenerator(textgen ports.TextGenerator, registry *Registry, cfg Config, logger *slog.Logger) *Generator {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.MinLength <= 0 {
		cfg.MinLength = 400
	}
	if cfg.BaseTemperature <= 0 {
		cfg.BaseTemperature = 0.7
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}
	return &Generator{textgen: textgen, registry: registry, cfg: cfg, logger: logger}
}

// Generate produces a draft in the given style. Drafts that fail structure
// or length validation are retried with adjusted parameters up to the
// attempt cap; when the cap is exhausted the last validation failure is
// returned wrapped in domain.ErrGenerationQuality. Transport and provider
// errors abort immediately so the caller can apply its own retry policy.
func (g *Generator) Generate(ctx context.Context, style domain.Style, content domain.AnalyzedContent) (domain.Draft, error) {
	formatter, err := g.registry.Resolve(style)
	if err != nil {
		return domain.Draft{}, err
	}
	system, user := formatter.Prompt(content)

	var lastErr error
	for attempt := 1; attempt <= g.cfg.MaxAttempts; attempt++ {
		params := domain.GenerationParams{
			Temperature: g.cfg.BaseTemperature + 0.15*float64(attempt-1),
			MaxTokens:   g.cfg.MaxTokens,
		}
		raw, err := g.textgen.Complete(ctx, system, user, params)
		if err != nil {
			return domain.Draft{}, fmt.Errorf("complete style %s: %w", style, err)
		}

		draft := g.assemble(raw, content)
		if err := g.validate(formatter, draft); err != nil {
			lastErr = err
			g.logger.Warn("draft rejected",
				"style", style, "attempt", attempt, "error", err)
			continue
		}
		return draft, nil
	}
	return domain.Draft{}, fmt.Errorf("style %s after %d attempts: %w",
		style, g.cfg.MaxAttempts, lastErr)
}

func (g *Generator) validate(formatter Formatter, draft domain.Draft) error {
	if draft.Title == "" {
		return fmt.Errorf("draft has no title: %w", domain.ErrGenerationQuality)
	}
	if len(draft.Content) < g.cfg.MinLength {
		return fmt.Errorf("draft body %d bytes, need %d: %w",
			len(draft.Content), g.cfg.MinLength, domain.ErrGenerationQuality)
	}
	return formatter.Validate(draft)
}

// assemble splits the completion into title and body and attaches
// deterministic tags and SEO metadata derived from the analysis, so two
// drafts from the same analysis always carry the same metadata.
func (g *Generator) assemble(raw string, content domain.AnalyzedContent) domain.Draft {
	title, body := splitTitle(raw)
	tags := deriveTags(content)
	return domain.Draft{
		Title:   title,
		Content: body,
		Tags:    tags,
		SEO: domain.SEOMetadata{
			Description: seoDescription(content),
			Slug:        Slugify(title),
			Keywords:    tags,
		},
	}
}

// splitTitle pulls the leading H1 out of the completion. Output without
// one keeps an empty title and fails validation.
func splitTitle(raw string) (string, string) {
	raw = strings.TrimSpace(raw)
	line, rest, _ := strings.Cut(raw, "\n")
	if title, ok := strings.CutPrefix(line, "# "); ok {
		return strings.TrimSpace(title), strings.TrimSpace(rest)
	}
	return "", raw
}

func deriveTags(content domain.AnalyzedContent) []string {
	seen := make(map[string]struct{})
	var tags []string
	for _, topic := range content.Outline {
		tag := strings.ToLower(strings.TrimSpace(topic))
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
		if len(tags) == 5 {
			break
		}
	}
	return tags
}

func seoDescription(content domain.AnalyzedContent) string {
	if len(content.KeyPoints) > 0 {
		return truncate(content.KeyPoints[0], 160)
	}
	return truncate(content.VideoTitle, 160)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if cut := strings.LastIndex(s[:n], " "); cut > 0 {
		return s[:cut]
	}
	// No space to break on. Back up to a rune boundary so multi-byte text
	// is never cut mid-rune.
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// Slugify lowercases and hyphenates a title for use in URLs.
func Slugify(title string) string {
	var sb strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(title) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			sb.WriteRune(r)
			lastHyphen = false
		case !lastHyphen:
			sb.WriteByte('-')
			lastHyphen = true
		}
	}
	return strings.TrimSuffix(sb.String(), "-")
}
