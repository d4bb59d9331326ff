package model

import "time"

// ReviewFile is one changed file handed to the analysis strategies.
type ReviewFile struct {
	Path     string
	Language string
	Content  string
}

// AnalysisJob is a unit of review work. The queue owns it exclusively until
// a worker claims it; ownership then transfers to that worker for the job's
// lifetime.
type AnalysisJob struct {
	ID            int64
	Priority      int // higher dequeues sooner, clamped to [PriorityMin, PriorityMax]
	Repository    Repository
	TargetNumber  int // PR or issue number
	Files         []ReviewFile
	CorrelationID string
	EnqueuedAt    time.Time
}

const (
	PriorityMin = 0
	PriorityMax = 5
)

// ClampPriority bounds p to the valid priority range.
func ClampPriority(p int) int {
	if p < PriorityMin {
		return PriorityMin
	}
	if p > PriorityMax {
		return PriorityMax
	}
	return p
}
