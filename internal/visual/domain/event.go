package domain

// EventKind identifies the CI event that triggered the action.
type EventKind int

const (
	// KindUnsupported covers every event the integration does not handle.
	// The action treats it as a successful no-op, never a failure.
	KindUnsupported EventKind = iota
	KindPush
	KindPullRequest
	KindManualDispatch
)

// String returns the GitHub event name for supported kinds.
func (k EventKind) String() string {
	switch k {
	case KindPush:
		return "push"
	case KindPullRequest:
		return "pull_request"
	case KindManualDispatch:
		return "workflow_dispatch"
	default:
		return "unsupported"
	}
}

// CodeChangeEvent is the classified trigger for a test run.
// It is immutable once constructed from the CI context.
type CodeChangeEvent struct {
	Kind    EventKind
	HeadSHA string
	// BaseSHA is the commit the run will be diffed against, when the
	// event carries one: the target-branch head for pull requests, the
	// pre-push commit for pushes. Empty for manual dispatches and for
	// pushes that create a branch.
	BaseSHA string
	// BaseRef is the target branch name, pull requests only.
	BaseRef string
	// PRNumber is zero for non-PR events.
	PRNumber int
}

// Supported reports whether the event kind is one the action handles.
func (e CodeChangeEvent) Supported() bool {
	return e.Kind != KindUnsupported
}

// ShortSHA trims a commit SHA to the conventional 7 characters for logs
// and PR-facing text.
func ShortSHA(sha string) string {
	if len(sha) <= 7 {
		return sha
	}
	return sha[:7]
}
