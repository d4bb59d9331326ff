package service_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"revq.app/revq/internal/model"
	"revq.app/revq/internal/pipeline"
	"revq.app/revq/internal/service"
	"revq.app/revq/internal/webhook"
)

const intakeSecret = "s3cr3t"

type fakeDeduper struct {
	mu   sync.Mutex
	seen map[string]bool
	err  error
}

func newFakeDeduper() *fakeDeduper {
	return &fakeDeduper{seen: map[string]bool{}}
}

func (f *fakeDeduper) Seen(_ context.Context, deliveryID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	if f.seen[deliveryID] {
		return true, nil
	}
	f.seen[deliveryID] = true
	return false, nil
}

type fakeQueue struct {
	mu   sync.Mutex
	jobs []*model.AnalysisJob
	err  error
}

func (f *fakeQueue) Enqueue(job *model.AnalysisJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	return nil
}

func (f *fakeQueue) all() []*model.AnalysisJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*model.AnalysisJob(nil), f.jobs...)
}

func eligiblePRPayload() []byte {
	return []byte(`{
		"action": "opened",
		"pull_request": {
			"number": 7,
			"body": "small fix, please review @revq-bot",
			"additions": 10,
			"deletions": 2
		},
		"repository": {"name": "rocket", "owner": {"login": "acme"}}
	}`)
}

var _ = Describe("Intake", func() {
	var (
		validator *webhook.SignatureValidator
		dedup     *fakeDeduper
		queue     *fakeQueue
		intake    *service.Intake
		ctx       context.Context
	)

	delivery := func(body []byte) service.Delivery {
		return service.Delivery{
			EventType:  "pull_request",
			DeliveryID: "delivery-1",
			Signature:  validator.Sign(body),
			Body:       body,
			ReceivedAt: time.Now(),
		}
	}

	BeforeEach(func() {
		ctx = context.Background()
		validator = webhook.NewSignatureValidator(intakeSecret)
		dedup = newFakeDeduper()
		queue = &fakeQueue{}
		classifier := webhook.NewClassifier(webhook.ClassifierConfig{BotUser: "revq-bot"})
		intake = service.NewIntake(validator, dedup, classifier, queue)
	})

	It("accepts an eligible delivery and enqueues exactly one job", func() {
		result := intake.Handle(ctx, delivery(eligiblePRPayload()))

		Expect(result.Outcome).To(Equal(service.OutcomeAccepted))
		Expect(result.JobID).NotTo(BeZero())

		jobs := queue.all()
		Expect(jobs).To(HaveLen(1))
		Expect(jobs[0].Repository).To(Equal(model.Repository{Owner: "acme", Name: "rocket"}))
		Expect(jobs[0].TargetNumber).To(Equal(7))
		Expect(jobs[0].CorrelationID).NotTo(BeEmpty())
	})

	It("is idempotent: the same delivery id enqueues exactly one job", func() {
		d := delivery(eligiblePRPayload())

		first := intake.Handle(ctx, d)
		second := intake.Handle(ctx, d)

		Expect(first.Outcome).To(Equal(service.OutcomeAccepted))
		Expect(second.Outcome).To(Equal(service.OutcomeDuplicate))
		Expect(queue.all()).To(HaveLen(1))
	})

	It("rejects deliveries with missing headers", func() {
		d := delivery(eligiblePRPayload())
		d.DeliveryID = ""
		Expect(intake.Handle(ctx, d).Outcome).To(Equal(service.OutcomeRejected))
		Expect(queue.all()).To(BeEmpty())
	})

	It("rejects a bad signature before touching the dedup store", func() {
		d := delivery(eligiblePRPayload())
		last := d.Signature[len(d.Signature)-1]
		flipped := byte('0')
		if last == '0' {
			flipped = '1'
		}
		d.Signature = d.Signature[:len(d.Signature)-1] + string(flipped)

		Expect(intake.Handle(ctx, d).Outcome).To(Equal(service.OutcomeUnauthorized))
		Expect(dedup.seen).To(BeEmpty())
	})

	It("rejects malformed payloads after signature verification", func() {
		body := []byte(`{"action": "opened", "pull_request": "not-an-object"}`)
		Expect(intake.Handle(ctx, delivery(body)).Outcome).To(Equal(service.OutcomeRejected))
	})

	It("ignores valid events that warrant no review", func() {
		body := []byte(`{
			"action": "opened",
			"pull_request": {"number": 7, "body": "no mention here"},
			"repository": {"name": "rocket", "owner": {"login": "acme"}}
		}`)
		result := intake.Handle(ctx, delivery(body))
		Expect(result.Outcome).To(Equal(service.OutcomeIgnored))
		Expect(result.Reason).NotTo(BeEmpty())
		Expect(queue.all()).To(BeEmpty())
	})

	It("ignores unsupported event types", func() {
		d := delivery(eligiblePRPayload())
		d.EventType = "workflow_run"
		Expect(intake.Handle(ctx, d).Outcome).To(Equal(service.OutcomeIgnored))
	})

	It("processes the delivery when the dedup store is down", func() {
		dedup.err = fmt.Errorf("redis unreachable")
		Expect(intake.Handle(ctx, delivery(eligiblePRPayload())).Outcome).To(Equal(service.OutcomeAccepted))
	})

	It("signals backpressure when the queue is full", func() {
		queue.err = pipeline.ErrQueueFull
		result := intake.Handle(ctx, delivery(eligiblePRPayload()))
		Expect(result.Outcome).To(Equal(service.OutcomeBusy))
	})
})
