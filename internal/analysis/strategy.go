package analysis

import (
	"context"
	"strings"

	"revq.app/revq/internal/model"
)

// Strategy is one independently pluggable analysis technique. The
// orchestrator may invoke the same instance concurrently for different
// files, so implementations must be stateless or internally synchronized.
//
// Failures are reported as data: a strategy returns (nil, err) rather than
// panicking, and the orchestrator records the outcome without letting it
// touch sibling strategies.
type Strategy interface {
	// Name identifies the strategy in metrics and diagnostics.
	Name() string
	// SupportedLanguages lists the languages the strategy applies to.
	// An empty list means every language.
	SupportedLanguages() []string
	// Analyze inspects one file and returns its findings. The context
	// carries the per-invocation timeout and must be respected by any
	// blocking work the strategy does.
	Analyze(ctx context.Context, file model.ReviewFile) ([]model.CodeIssue, error)
}

// Supports reports whether s applies to files of the given language.
func Supports(s Strategy, language string) bool {
	langs := s.SupportedLanguages()
	if len(langs) == 0 {
		return true
	}
	for _, l := range langs {
		if strings.EqualFold(l, language) {
			return true
		}
	}
	return false
}

// Registry holds the strategies decided at construction time. Read-only
// after creation; no runtime discovery.
type Registry struct {
	strategies []Strategy
}

func NewRegistry(strategies ...Strategy) *Registry {
	return &Registry{strategies: strategies}
}

func (r *Registry) All() []Strategy {
	return r.strategies
}

// ForLanguage returns the strategies applicable to one file language,
// in registration order.
func (r *Registry) ForLanguage(language string) []Strategy {
	var out []Strategy
	for _, s := range r.strategies {
		if Supports(s, language) {
			out = append(out, s)
		}
	}
	return out
}
