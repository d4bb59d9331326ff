package model

import "strconv"

// Severity orders code issues from informational to critical.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Rank returns the sort rank used when ordering merged issues:
// critical first (0), info last (3).
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityError:
		return 1
	case SeverityWarning:
		return 2
	default:
		return 3
	}
}

// CodeIssue is a single finding produced by an analysis strategy. Immutable
// once returned.
type CodeIssue struct {
	Level      Severity `json:"level"`
	Category   string   `json:"category"` // free-form, e.g. "security", "style"
	Message    string   `json:"message"`
	FilePath   string   `json:"file_path"`
	LineNumber int      `json:"line_number,omitempty"`
	Column     int      `json:"column,omitempty"`
	Suggestion string   `json:"suggestion,omitempty"`
	RuleID     string   `json:"rule_id,omitempty"`
}

// DedupeKey identifies an issue for cross-strategy deduplication.
func (i CodeIssue) DedupeKey() string {
	return i.FilePath + "\x00" + strconv.Itoa(i.LineNumber) + "\x00" + i.Message
}

// StrategyOutcome records how one strategy fared across a whole job. Exactly
// one of IssueCount/Err is meaningful: a failed strategy contributes no
// issues.
type StrategyOutcome struct {
	IssueCount int    `json:"issue_count"`
	Err        string `json:"error,omitempty"`
	TimedOut   bool   `json:"timed_out,omitempty"`
}

func (o StrategyOutcome) Failed() bool {
	return o.Err != ""
}

// AnalysisMetrics summarizes a merged result.
type AnalysisMetrics struct {
	TotalIssues      int                        `json:"total_issues"`
	IssuesByLevel    map[string]int             `json:"issues_by_level"`
	IssuesByCategory map[string]int             `json:"issues_by_category"`
	StrategyResults  map[string]StrategyOutcome `json:"strategy_results"`
	FilesAnalyzed    int                        `json:"files_analyzed"`
	TotalLines       int                        `json:"total_lines"`
}

// AnalysisResult is the consolidated output of one job: issues sorted by
// severity then line, deduplicated on (file, line, message).
type AnalysisResult struct {
	JobID      int64           `json:"job_id"`
	Repository Repository      `json:"repository"`
	Target     int             `json:"target"`
	Issues     []CodeIssue     `json:"issues"`
	Metrics    AnalysisMetrics `json:"metrics"`
	DurationMs int64           `json:"duration_ms"`
	Failed     bool            `json:"failed,omitempty"` // job-level failure, Issues empty
	FailReason string          `json:"fail_reason,omitempty"`
}
