package model

import (
	"encoding/json"
	"time"
)

// EventType is the coarse classification of an inbound repository event.
type EventType string

const (
	EventTypePullRequest  EventType = "pull_request"
	EventTypeIssueComment EventType = "issue_comment"
	EventTypeReview       EventType = "review"
	EventTypePush         EventType = "push"
	EventTypeUnknown      EventType = "unknown"
)

// WebhookEvent is the immutable result of classifying one inbound delivery.
// It is created at intake and discarded once a job has been enqueued.
type WebhookEvent struct {
	Type       EventType
	Action     string          // source-defined, e.g. "opened", "synchronize"
	DeliveryID string          // re-sent unchanged on upstream retries
	Payload    json.RawMessage // event-specific body, never mutated
	ReceivedAt time.Time
}

// Repository identifies the repo an event refers to.
type Repository struct {
	Owner string
	Name  string
}

func (r Repository) String() string {
	return r.Owner + "/" + r.Name
}
