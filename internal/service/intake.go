// Package service ties the webhook pipeline together: synchronous intake on
// one side, asynchronous job execution on the other.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"revq.app/revq/common/id"
	"revq.app/revq/common/logger"
	"revq.app/revq/internal/model"
	"revq.app/revq/internal/pipeline"
	"revq.app/revq/internal/webhook"
)

// Outcome is the synchronous intake decision the HTTP layer maps to a
// response code.
type Outcome int

const (
	// OutcomeAccepted means a job was enqueued.
	OutcomeAccepted Outcome = iota
	// OutcomeDuplicate means the delivery id was already processed.
	OutcomeDuplicate
	// OutcomeIgnored means the event is valid but warrants no review.
	OutcomeIgnored
	// OutcomeRejected means the delivery is malformed.
	OutcomeRejected
	// OutcomeUnauthorized means the signature did not verify.
	OutcomeUnauthorized
	// OutcomeBusy means the queue is full; the sender should retry later.
	OutcomeBusy
)

// IntakeResult is what the handler reports back to the sender.
type IntakeResult struct {
	Outcome Outcome
	Reason  string
	JobID   int64
}

// Delivery is one raw inbound webhook delivery.
type Delivery struct {
	EventType  string
	DeliveryID string
	Signature  string
	Body       []byte
	ReceivedAt time.Time
}

// deduper marks delivery ids; *webhook.Deduplicator satisfies it.
type deduper interface {
	Seen(ctx context.Context, deliveryID string) (bool, error)
}

// enqueuer accepts assembled jobs; *pipeline.Pipeline satisfies it.
type enqueuer interface {
	Enqueue(job *model.AnalysisJob) error
}

// Intake runs the synchronous half of the pipeline: authenticate, dedup,
// classify, enqueue. Everything past enqueue is the job runner's concern.
type Intake struct {
	validator  *webhook.SignatureValidator
	dedup      deduper
	classifier *webhook.Classifier
	queue      enqueuer
}

func NewIntake(validator *webhook.SignatureValidator, dedup deduper, classifier *webhook.Classifier, queue enqueuer) *Intake {
	return &Intake{
		validator:  validator,
		dedup:      dedup,
		classifier: classifier,
		queue:      queue,
	}
}

// Handle processes one delivery and returns the synchronous outcome. It
// never returns an error: every failure mode is a typed outcome.
func (i *Intake) Handle(ctx context.Context, d Delivery) IntakeResult {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component:  "revq.service.intake",
		DeliveryID: &d.DeliveryID,
		EventType:  &d.EventType,
	})

	if d.EventType == "" || d.DeliveryID == "" || d.Signature == "" {
		return IntakeResult{Outcome: OutcomeRejected, Reason: "missing required headers"}
	}

	if !i.validator.Validate(d.Body, d.Signature) {
		slog.WarnContext(ctx, "rejecting delivery with invalid signature")
		return IntakeResult{Outcome: OutcomeUnauthorized, Reason: "signature verification failed"}
	}

	// A dedup store outage degrades to at-least-once rather than dropping
	// deliveries on the floor.
	seen, err := i.dedup.Seen(ctx, d.DeliveryID)
	if err != nil {
		slog.ErrorContext(ctx, "dedup check failed, processing anyway", "error", err)
	} else if seen {
		slog.InfoContext(ctx, "acknowledging duplicate delivery")
		return IntakeResult{Outcome: OutcomeDuplicate, Reason: "duplicate delivery"}
	}

	classification, err := i.classifier.Classify(d.EventType, d.DeliveryID, d.Body, d.ReceivedAt)
	if err != nil {
		slog.WarnContext(ctx, "rejecting malformed payload", "error", err)
		return IntakeResult{Outcome: OutcomeRejected, Reason: "malformed payload"}
	}
	if !classification.Eligible {
		slog.InfoContext(ctx, "event ignored", "reason", classification.Reason)
		return IntakeResult{Outcome: OutcomeIgnored, Reason: classification.Reason}
	}

	job := &model.AnalysisJob{
		ID:            id.New(),
		Priority:      classification.Priority,
		Repository:    classification.Repository,
		TargetNumber:  classification.TargetNumber,
		CorrelationID: id.NewString(),
	}

	if err := i.queue.Enqueue(job); err != nil {
		if errors.Is(err, pipeline.ErrQueueFull) {
			slog.WarnContext(ctx, "queue full, rejecting delivery", "job_id", job.ID)
			return IntakeResult{Outcome: OutcomeBusy, Reason: "queue is full"}
		}
		slog.ErrorContext(ctx, "enqueue failed", "error", err, "job_id", job.ID)
		return IntakeResult{Outcome: OutcomeBusy, Reason: "not accepting work"}
	}

	slog.InfoContext(ctx, "job enqueued",
		"job_id", job.ID,
		"repository", job.Repository.String(),
		"target", job.TargetNumber,
		"priority", job.Priority)
	return IntakeResult{Outcome: OutcomeAccepted, JobID: job.ID}
}
