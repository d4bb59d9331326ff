package strategies

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"revq.app/revq/common/llm"
	"revq.app/revq/internal/model"
)

const llmSystemPrompt = `You are a code reviewer. Inspect the file and report concrete defects:
bugs, unsafe patterns, misleading names. Respond with a JSON array only, each
element {"line": <int>, "severity": "info"|"warning"|"error"|"critical",
"message": <string>, "suggestion": <string>}. Report nothing speculative.
An empty array is a valid answer.`

// LLMStrategy asks a language model to review one file. It is registered
// only when an API key is configured; like every strategy it runs under the
// orchestrator's per-invocation timeout, which bounds the API call.
type LLMStrategy struct {
	client llm.Client
}

func NewLLMStrategy(client llm.Client) *LLMStrategy {
	return &LLMStrategy{client: client}
}

func (s *LLMStrategy) Name() string { return "llm-review" }

func (s *LLMStrategy) SupportedLanguages() []string { return nil }

type llmFinding struct {
	Line       int    `json:"line"`
	Severity   string `json:"severity"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion"`
}

func (s *LLMStrategy) Analyze(ctx context.Context, file model.ReviewFile) ([]model.CodeIssue, error) {
	prompt := fmt.Sprintf("Language: %s\nFile: %s\n\n%s", file.Language, file.Path, file.Content)

	raw, err := s.client.Complete(ctx, llmSystemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("llm review of %s: %w", file.Path, err)
	}

	findings, err := parseFindings(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing llm response for %s: %w", file.Path, err)
	}

	issues := make([]model.CodeIssue, 0, len(findings))
	for _, f := range findings {
		if f.Message == "" {
			continue
		}
		issues = append(issues, model.CodeIssue{
			Level:      severityFromString(f.Severity),
			Category:   "review",
			Message:    f.Message,
			FilePath:   file.Path,
			LineNumber: f.Line,
			Suggestion: f.Suggestion,
			RuleID:     "LLM001",
		})
	}

	slog.DebugContext(ctx, "llm review finished",
		"file", file.Path,
		"model", s.client.Model(),
		"findings", len(issues))
	return issues, nil
}

// parseFindings tolerates a fenced code block around the JSON array, which
// models emit despite instructions.
func parseFindings(raw string) ([]llmFinding, error) {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	var findings []llmFinding
	if err := json.Unmarshal([]byte(text), &findings); err != nil {
		return nil, err
	}
	return findings, nil
}

func severityFromString(s string) model.Severity {
	switch strings.ToLower(s) {
	case "critical":
		return model.SeverityCritical
	case "error":
		return model.SeverityError
	case "warning":
		return model.SeverityWarning
	default:
		return model.SeverityInfo
	}
}
