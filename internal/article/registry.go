package article

import (
	"fmt"

	"ytdigest/internal/domain"
)

// Formatter captures a single style strategy. Variants differ only in
// structuring rules; the contract is uniform so new styles can be added
// without touching the orchestrator.
type Formatter interface {
	Style() domain.Style
	// Prompt builds the system and user messages for the text generator.
	Prompt(content domain.AnalyzedContent) (system, user string)
	// Validate checks style-specific structure on the generated draft.
	Validate(draft domain.Draft) error
}

// Registry keeps a mapping from styles to their formatters.
type Registry struct {
	formatters map[domain.Style]Formatter
}

// NewRegistry builds a registry preloaded with the built-in styles.
func NewRegistry() *Registry {
	r := &Registry{formatters: map[domain.Style]Formatter{}}
	r.Register(&BlogFormatter{})
	r.Register(&WikiFormatter{})
	r.Register(&ListicleFormatter{})
	r.Register(&DeepDiveFormatter{})
	return r
}

// Register adds or replaces a formatter implementation.
func (r *Registry) Register(f Formatter) {
	if r.formatters == nil {
		r.formatters = map[domain.Style]Formatter{}
	}
	r.formatters[f.Style()] = f
}

// Resolve returns a formatter by style or an error if it is absent.
func (r *Registry) Resolve(style domain.Style) (Formatter, error) {
	if f, ok := r.formatters[style]; ok {
		return f, nil
	}
	return nil, fmt.Errorf("style %q is not registered", style)
}

// ParseStyle validates a style name from configuration.
func ParseStyle(name string) (domain.Style, error) {
	for _, s := range domain.AllStyles() {
		if string(s) == name {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown style %q", name)
}
