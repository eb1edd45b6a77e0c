// Package ghevent classifies the triggering GitHub event into a
// domain.CodeChangeEvent.
package ghevent

import (
	"encoding/json"
	"fmt"

	"github.com/google/go-github/v68/github"

	"github.com/chronograph-pe/report-diffs-action/internal/visual/domain"
)

// zeroSHA is what push payloads carry in "before" when the push created
// the branch, i.e. there is no previous commit to diff against.
const zeroSHA = "0000000000000000000000000000000000000000"

// Classifier maps raw event names and payloads onto the closed
// CodeChangeEvent sum. Anything other than push, pull_request or
// workflow_dispatch classifies as KindUnsupported.
type Classifier struct{}

// New creates a new event classifier.
func New() *Classifier {
	return &Classifier{}
}

// Classify parses the event payload for the given event name.
// fallbackHeadSHA is the runner-provided commit (GITHUB_SHA), used for
// manual dispatches whose payload carries no SHA.
func (c *Classifier) Classify(eventName string, payload []byte, fallbackHeadSHA string) (domain.CodeChangeEvent, error) {
	switch eventName {
	case "push":
		return classifyPush(payload)
	case "pull_request":
		return classifyPullRequest(payload)
	case "workflow_dispatch":
		if fallbackHeadSHA == "" {
			return domain.CodeChangeEvent{}, fmt.Errorf("workflow_dispatch event without a runner commit SHA")
		}
		return domain.CodeChangeEvent{Kind: domain.KindManualDispatch, HeadSHA: fallbackHeadSHA}, nil
	default:
		return domain.CodeChangeEvent{Kind: domain.KindUnsupported}, nil
	}
}

func classifyPush(payload []byte) (domain.CodeChangeEvent, error) {
	var ev github.PushEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return domain.CodeChangeEvent{}, fmt.Errorf("parsing push payload: %w", err)
	}
	if ev.GetAfter() == "" {
		return domain.CodeChangeEvent{}, fmt.Errorf("push payload missing head commit")
	}

	base := ev.GetBefore()
	if base == zeroSHA {
		// Branch creation: nothing on the branch to diff against.
		base = ""
	}

	return domain.CodeChangeEvent{
		Kind:    domain.KindPush,
		HeadSHA: ev.GetAfter(),
		BaseSHA: base,
	}, nil
}

func classifyPullRequest(payload []byte) (domain.CodeChangeEvent, error) {
	var ev github.PullRequestEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return domain.CodeChangeEvent{}, fmt.Errorf("parsing pull_request payload: %w", err)
	}

	pr := ev.GetPullRequest()
	if pr.GetHead().GetSHA() == "" {
		return domain.CodeChangeEvent{}, fmt.Errorf("pull_request payload missing head commit")
	}

	return domain.CodeChangeEvent{
		Kind:     domain.KindPullRequest,
		HeadSHA:  pr.GetHead().GetSHA(),
		BaseSHA:  pr.GetBase().GetSHA(),
		BaseRef:  pr.GetBase().GetRef(),
		PRNumber: ev.GetNumber(),
	}, nil
}
