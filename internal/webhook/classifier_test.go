package webhook_test

import (
	"encoding/json"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"revq.app/revq/internal/model"
	"revq.app/revq/internal/webhook"
)

func prPayload(action string, pr map[string]any) []byte {
	payload := map[string]any{
		"action":       action,
		"pull_request": pr,
		"repository": map[string]any{
			"name":  "repo",
			"owner": map[string]any{"login": "acme"},
		},
	}
	body, err := json.Marshal(payload)
	Expect(err).ToNot(HaveOccurred())
	return body
}

func commentPayload(commentBody string, onPR bool) []byte {
	issue := map[string]any{"number": 3}
	if onPR {
		issue["pull_request"] = map[string]any{"url": "https://api.github.com/repos/acme/repo/pulls/3"}
	}
	payload := map[string]any{
		"action":  "created",
		"issue":   issue,
		"comment": map[string]any{"body": commentBody},
		"repository": map[string]any{
			"name":  "repo",
			"owner": map[string]any{"login": "acme"},
		},
	}
	body, err := json.Marshal(payload)
	Expect(err).ToNot(HaveOccurred())
	return body
}

var _ = Describe("Classifier", func() {
	var (
		classifier *webhook.Classifier
		now        time.Time
	)

	BeforeEach(func() {
		classifier = webhook.NewClassifier(webhook.ClassifierConfig{BotUser: "revq-bot"})
		now = time.Now()
	})

	classify := func(event string, payload []byte) webhook.Classification {
		result, err := classifier.Classify(event, "d-1", payload, now)
		Expect(err).ToNot(HaveOccurred())
		return result
	}

	Describe("event type mapping", func() {
		It("maps pull_request", func() {
			result := classify("pull_request", prPayload("opened", map[string]any{"number": 7}))
			Expect(result.Event.Type).To(Equal(model.EventTypePullRequest))
		})

		It("maps an unknown header to Unknown without error", func() {
			result := classify("deployment_status", []byte(`{}`))
			Expect(result.Event.Type).To(Equal(model.EventTypeUnknown))
			Expect(result.Eligible).To(BeFalse())
			Expect(result.Reason).ToNot(BeEmpty())
		})

		It("records the delivery id and receipt time on the event", func() {
			result := classify("push", []byte(`{}`))
			Expect(result.Event.DeliveryID).To(Equal("d-1"))
			Expect(result.Event.ReceivedAt).To(Equal(now))
		})

		It("rejects a malformed pull_request payload", func() {
			_, err := classifier.Classify("pull_request", "d-1", []byte(`{"pull_request":`), now)
			Expect(err).To(HaveOccurred())
		})

		It("rejects a pull_request payload without a pull request object", func() {
			_, err := classifier.Classify("pull_request", "d-1", []byte(`{"action":"opened"}`), now)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("pull request eligibility", func() {
		It("is eligible when the bot is assigned", func() {
			result := classify("pull_request", prPayload("opened", map[string]any{
				"number":    7,
				"assignees": []map[string]any{{"login": "revq-bot"}},
			}))
			Expect(result.Eligible).To(BeTrue())
			Expect(result.Repository).To(Equal(model.Repository{Owner: "acme", Name: "repo"}))
			Expect(result.TargetNumber).To(Equal(7))
		})

		It("is eligible when review is requested from the bot", func() {
			result := classify("pull_request", prPayload("opened", map[string]any{
				"number":              7,
				"requested_reviewers": []map[string]any{{"login": "Revq-Bot"}},
			}))
			Expect(result.Eligible).To(BeTrue())
		})

		It("is eligible when labeled with the bot name", func() {
			result := classify("pull_request", prPayload("labeled", map[string]any{
				"number": 7,
				"labels": []map[string]any{{"name": "revq-bot"}},
			}))
			Expect(result.Eligible).To(BeTrue())
		})

		It("is eligible when the body mentions the bot", func() {
			result := classify("pull_request", prPayload("opened", map[string]any{
				"number": 7,
				"body":   "cc @revq-bot have a look",
			}))
			Expect(result.Eligible).To(BeTrue())
		})

		It("is ineligible when the bot is not involved", func() {
			result := classify("pull_request", prPayload("opened", map[string]any{
				"number": 7,
				"body":   "regular PR",
			}))
			Expect(result.Eligible).To(BeFalse())
			Expect(result.Reason).ToNot(BeEmpty())
		})
	})

	Describe("pull request priority", func() {
		eligible := func(extra map[string]any) map[string]any {
			pr := map[string]any{
				"number":    7,
				"assignees": []map[string]any{{"login": "revq-bot"}},
			}
			for k, v := range extra {
				pr[k] = v
			}
			return pr
		}

		It("scores small diff + fresh action", func() {
			result := classify("pull_request", prPayload("opened", eligible(map[string]any{
				"additions": 10, "deletions": 5,
			})))
			Expect(result.Priority).To(Equal(3)) // +2 small, +1 opened
		})

		It("adds the urgent label weight", func() {
			result := classify("pull_request", prPayload("opened", eligible(map[string]any{
				"additions": 10, "deletions": 5,
				"labels": []map[string]any{{"name": "Security"}},
			})))
			Expect(result.Priority).To(Equal(5)) // clamped from 6
		})

		It("does not score a large diff as small", func() {
			result := classify("pull_request", prPayload("synchronize", eligible(map[string]any{
				"additions": 900, "deletions": 200,
			})))
			Expect(result.Priority).To(Equal(1)) // +1 synchronize only
		})

		It("pins an explicit body mention to the maximum", func() {
			result := classify("pull_request", prPayload("edited", eligible(map[string]any{
				"additions": 900, "deletions": 200,
				"body": "@revq-bot now please",
			})))
			Expect(result.Priority).To(Equal(model.PriorityMax))
		})

		It("honours configured weights", func() {
			custom := webhook.NewClassifier(webhook.ClassifierConfig{
				BotUser:         "revq-bot",
				SmallDiffLines:  50,
				WeightSmallDiff: 4,
			})
			result, err := custom.Classify("pull_request", "d-1", prPayload("closed", eligible(map[string]any{
				"additions": 10, "deletions": 5,
			})), now)
			Expect(err).ToNot(HaveOccurred())
			Expect(result.Priority).To(Equal(4))
		})
	})

	Describe("comment eligibility", func() {
		It("treats a PR comment mentioning the bot as maximum priority", func() {
			result := classify("issue_comment", commentPayload("hey @revq-bot review this", true))
			Expect(result.Eligible).To(BeTrue())
			Expect(result.Priority).To(Equal(model.PriorityMax))
			Expect(result.TargetNumber).To(Equal(3))
		})

		It("ignores comments that do not mention the bot", func() {
			result := classify("issue_comment", commentPayload("looks good to me", true))
			Expect(result.Eligible).To(BeFalse())
		})

		It("ignores comments on plain issues", func() {
			result := classify("issue_comment", commentPayload("@revq-bot review", false))
			Expect(result.Eligible).To(BeFalse())
			Expect(result.Reason).To(ContainSubstring("not on a pull request"))
		})

		It(fmt.Sprintf("never produces a priority outside [%d,%d]", model.PriorityMin, model.PriorityMax), func() {
			result := classify("issue_comment", commentPayload("@revq-bot go", true))
			Expect(result.Priority).To(BeNumerically(">=", model.PriorityMin))
			Expect(result.Priority).To(BeNumerically("<=", model.PriorityMax))
		})
	})
})
