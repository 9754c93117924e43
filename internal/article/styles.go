package article

import (
	"fmt"
	"strings"

	"ytdigest/internal/domain"
)

// promptContext renders the analyzed content into the shared prompt body.
func promptContext(content domain.AnalyzedContent) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Video title: %s\nLanguage: %s\n", content.VideoTitle, content.Language)

	if len(content.Outline) > 0 {
		sb.WriteString("\nTopic outline:\n")
		for i, topic := range content.Outline {
			fmt.Fprintf(&sb, "%d. %s\n", i+1, topic)
		}
	}
	if len(content.KeyPoints) > 0 {
		sb.WriteString("\nKey points:\n")
		for _, p := range content.KeyPoints {
			fmt.Fprintf(&sb, "- %s\n", p)
		}
	}

	sb.WriteString("\nTranscript segments:\n")
	for _, seg := range content.Segments {
		if seg.GapAdjacent {
			fmt.Fprintf(&sb, "[%s] (partial coverage, do not invent missing content) %s\n", seg.Topic, seg.Text)
			continue
		}
		fmt.Fprintf(&sb, "[%s] %s\n", seg.Topic, seg.Text)
	}
	return sb.String()
}

const sharedRules = `Write in %s. Start with a single markdown H1 title line.
Base every statement on the transcript segments; never invent facts for
segments marked as partial coverage.`

// BlogFormatter produces a conversational post with an introduction,
// thematic sections, and a closing takeaway.
type BlogFormatter struct{}

func (f *BlogFormatter) Style() domain.Style { return domain.StyleBlog }

func (f *BlogFormatter) Prompt(content domain.AnalyzedContent) (string, string) {
	system := "You are a blog writer turning video transcripts into engaging posts.\n" +
		fmt.Sprintf(sharedRules, languageName(content.Language))
	user := "Write a blog post with an opening hook, two or more H2 sections " +
		"following the topic outline, and a short conclusion.\n\n" + promptContext(content)
	return system, user
}

func (f *BlogFormatter) Validate(draft domain.Draft) error {
	if strings.Count(draft.Content, "\n## ") < 2 {
		return fmt.Errorf("blog needs at least two sections: %w", domain.ErrGenerationQuality)
	}
	return nil
}

// WikiFormatter produces a neutral reference entry with an overview and
// factual sections.
type WikiFormatter struct{}

func (f *WikiFormatter) Style() domain.Style { return domain.StyleWiki }

func (f *WikiFormatter) Prompt(content domain.AnalyzedContent) (string, string) {
	system := "You are an encyclopedia editor writing neutral reference entries.\n" +
		fmt.Sprintf(sharedRules, languageName(content.Language))
	user := "Write a wiki-style entry. Begin with an '## Overview' section, then " +
		"one H2 section per outline topic, in a neutral factual tone without " +
		"first-person voice.\n\n" + promptContext(content)
	return system, user
}

func (f *WikiFormatter) Validate(draft domain.Draft) error {
	if !strings.Contains(draft.Content, "## Overview") {
		return fmt.Errorf("wiki entry needs an overview section: %w", domain.ErrGenerationQuality)
	}
	return nil
}

// ListicleFormatter produces a numbered list article.
type ListicleFormatter struct{}

func (f *ListicleFormatter) Style() domain.Style { return domain.StyleListicle }

func (f *ListicleFormatter) Prompt(content domain.AnalyzedContent) (string, string) {
	system := "You are a writer of scannable list articles.\n" +
		fmt.Sprintf(sharedRules, languageName(content.Language))
	user := "Write a listicle: a one-paragraph intro, then numbered H2 headings " +
		"('## 1. ...', '## 2. ...') with a short paragraph each, at least " +
		"three items, drawn from the key points.\n\n" + promptContext(content)
	return system, user
}

func (f *ListicleFormatter) Validate(draft domain.Draft) error {
	items := 0
	for _, line := range strings.Split(draft.Content, "\n") {
		if numberedHeading(line) {
			items++
		}
	}
	if items < 3 {
		return fmt.Errorf("listicle has %d items, need at least 3: %w", items, domain.ErrGenerationQuality)
	}
	return nil
}

func numberedHeading(line string) bool {
	rest, ok := strings.CutPrefix(strings.TrimSpace(line), "## ")
	if !ok || rest == "" {
		return false
	}
	return rest[0] >= '1' && rest[0] <= '9'
}

// DeepDiveFormatter produces a long-form analytical piece.
type DeepDiveFormatter struct{}

func (f *DeepDiveFormatter) Style() domain.Style { return domain.StyleDeepDive }

func (f *DeepDiveFormatter) Prompt(content domain.AnalyzedContent) (string, string) {
	system := "You are an analyst writing long-form explainers.\n" +
		fmt.Sprintf(sharedRules, languageName(content.Language))
	user := "Write a deep-dive analysis: a '## Background' section, one H2 " +
		"section per outline topic examining causes and implications, and a " +
		"'## Takeaways' section with the key points.\n\n" + promptContext(content)
	return system, user
}

func (f *DeepDiveFormatter) Validate(draft domain.Draft) error {
	if !strings.Contains(draft.Content, "## Background") || !strings.Contains(draft.Content, "## Takeaways") {
		return fmt.Errorf("deep-dive needs background and takeaways sections: %w", domain.ErrGenerationQuality)
	}
	return nil
}

func languageName(code string) string {
	switch strings.ToLower(code) {
	case "", "en":
		return "English"
	case "ja":
		return "Japanese"
	case "zh", "zh-tw", "zh-cn":
		return "Chinese"
	case "ko":
		return "Korean"
	case "es":
		return "Spanish"
	case "de":
		return "German"
	case "fr":
		return "French"
	default:
		return code
	}
}
