package webhook

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/go-github/v58/github"

	"revq.app/revq/internal/model"
)

// ClassifierConfig exposes the priority weights as policy rather than
// hard-coded constants. Zero-value weights are replaced with defaults.
type ClassifierConfig struct {
	BotUser string // automation account that assignments/mentions refer to

	SmallDiffLines    int // additions+deletions at or under this count a diff as small
	WeightSmallDiff   int
	WeightUrgentLabel int
	WeightFreshAction int // "opened" or "synchronize"

	UrgentLabels []string
}

func (c ClassifierConfig) withDefaults() ClassifierConfig {
	if c.SmallDiffLines == 0 {
		c.SmallDiffLines = 200
	}
	if c.WeightSmallDiff == 0 {
		c.WeightSmallDiff = 2
	}
	if c.WeightUrgentLabel == 0 {
		c.WeightUrgentLabel = 3
	}
	if c.WeightFreshAction == 0 {
		c.WeightFreshAction = 1
	}
	if len(c.UrgentLabels) == 0 {
		c.UrgentLabels = []string{"urgent", "security"}
	}
	return c
}

// Classification is the outcome of mapping one delivery. Ineligible and
// unknown events are acknowledged and dropped, never errors.
type Classification struct {
	Event        model.WebhookEvent
	Repository   model.Repository
	TargetNumber int
	Eligible     bool
	Reason       string // why the event was dropped, for logging
	Priority     int
}

// Classifier maps a raw event header and payload into a typed WebhookEvent
// and decides whether automated review is wanted. Pure mapping, no state.
type Classifier struct {
	cfg ClassifierConfig
}

func NewClassifier(cfg ClassifierConfig) *Classifier {
	return &Classifier{cfg: cfg.withDefaults()}
}

// Classify maps the event-type header and payload. A parse failure is an
// error (the delivery is malformed); an unsupported event type is not.
func (c *Classifier) Classify(eventHeader, deliveryID string, payload []byte, receivedAt time.Time) (Classification, error) {
	eventType := mapEventType(eventHeader)

	result := Classification{
		Event: model.WebhookEvent{
			Type:       eventType,
			DeliveryID: deliveryID,
			Payload:    payload,
			ReceivedAt: receivedAt,
		},
	}

	switch eventType {
	case model.EventTypePullRequest:
		return c.classifyPullRequest(result, payload)
	case model.EventTypeIssueComment:
		return c.classifyComment(result, payload)
	case model.EventTypeReview, model.EventTypePush:
		result.Reason = "event type carries no review work"
		return result, nil
	default:
		result.Reason = "unsupported event type"
		return result, nil
	}
}

func mapEventType(header string) model.EventType {
	switch header {
	case "pull_request":
		return model.EventTypePullRequest
	case "issue_comment":
		return model.EventTypeIssueComment
	case "pull_request_review":
		return model.EventTypeReview
	case "push":
		return model.EventTypePush
	default:
		return model.EventTypeUnknown
	}
}

func (c *Classifier) classifyPullRequest(result Classification, payload []byte) (Classification, error) {
	var ev github.PullRequestEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return result, fmt.Errorf("parsing pull_request payload: %w", err)
	}
	if ev.PullRequest == nil || ev.Repo == nil {
		return result, fmt.Errorf("pull_request payload missing pull request or repo")
	}

	result.Event.Action = ev.GetAction()
	result.Repository = model.Repository{
		Owner: ev.Repo.GetOwner().GetLogin(),
		Name:  ev.Repo.GetName(),
	}
	result.TargetNumber = ev.PullRequest.GetNumber()

	pr := ev.PullRequest
	if !c.targetsBot(pr, pr.GetBody()) {
		result.Reason = "review not requested for automation account"
		return result, nil
	}

	result.Eligible = true
	result.Priority = model.ClampPriority(c.scorePullRequest(&ev))
	return result, nil
}

func (c *Classifier) classifyComment(result Classification, payload []byte) (Classification, error) {
	var ev github.IssueCommentEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return result, fmt.Errorf("parsing issue_comment payload: %w", err)
	}
	if ev.Issue == nil || ev.Repo == nil {
		return result, fmt.Errorf("issue_comment payload missing issue or repo")
	}

	result.Event.Action = ev.GetAction()
	result.Repository = model.Repository{
		Owner: ev.Repo.GetOwner().GetLogin(),
		Name:  ev.Repo.GetName(),
	}
	result.TargetNumber = ev.Issue.GetNumber()

	if ev.Issue.PullRequestLinks == nil {
		result.Reason = "comment is not on a pull request"
		return result, nil
	}
	if !containsMention(ev.Comment.GetBody(), c.cfg.BotUser) {
		result.Reason = "comment does not mention automation account"
		return result, nil
	}

	// An explicit mention is someone asking for the review right now, so it
	// always jumps to the front of its band.
	result.Eligible = true
	result.Priority = model.PriorityMax
	return result, nil
}

func (c *Classifier) scorePullRequest(ev *github.PullRequestEvent) int {
	pr := ev.PullRequest
	score := 0

	if pr.GetAdditions()+pr.GetDeletions() <= c.cfg.SmallDiffLines {
		score += c.cfg.WeightSmallDiff
	}
	if c.hasUrgentLabel(pr.Labels) {
		score += c.cfg.WeightUrgentLabel
	}
	if action := ev.GetAction(); action == "opened" || action == "synchronize" {
		score += c.cfg.WeightFreshAction
	}
	if containsMention(pr.GetBody(), c.cfg.BotUser) {
		return model.PriorityMax
	}
	return score
}

func (c *Classifier) hasUrgentLabel(labels []*github.Label) bool {
	for _, l := range labels {
		name := strings.ToLower(l.GetName())
		for _, urgent := range c.cfg.UrgentLabels {
			if name == urgent {
				return true
			}
		}
	}
	return false
}

// targetsBot reports whether the PR explicitly involves the automation
// account: assigned, review requested, labeled for it, or mentioned in the
// body.
func (c *Classifier) targetsBot(pr *github.PullRequest, body string) bool {
	bot := strings.ToLower(c.cfg.BotUser)
	if bot == "" {
		return false
	}

	for _, a := range pr.Assignees {
		if strings.ToLower(a.GetLogin()) == bot {
			return true
		}
	}
	for _, r := range pr.RequestedReviewers {
		if strings.ToLower(r.GetLogin()) == bot {
			return true
		}
	}
	for _, l := range pr.Labels {
		if strings.ToLower(l.GetName()) == bot {
			return true
		}
	}
	return containsMention(body, c.cfg.BotUser)
}

func containsMention(text, user string) bool {
	if user == "" || text == "" {
		return false
	}
	return strings.Contains(strings.ToLower(text), "@"+strings.ToLower(user))
}
