package domain

import (
	"sort"

	"github.com/samber/lo"
)

// TestState is the terminal state of a single test within a run, as
// reported by the external orchestrator.
type TestState string

const (
	TestPassed    TestState = "passed"
	TestDiffering TestState = "differing"
	TestFlake     TestState = "flake"
	TestErrored   TestState = "errored"
)

// FinishedTest describes one completed test within a run.
type FinishedTest struct {
	Name        string
	State       TestState
	Screenshots []string
}

// TestRunResult is the aggregate result returned by the external
// executor. It is consumed only for summarization; the structure of
// individual diffs is owned by the orchestrator.
type TestRunResult struct {
	RunID string
	// URL points at the orchestrator's run page with full diff detail.
	URL   string
	Tests []FinishedTest
}

// Tally holds per-state counts for a run.
type Tally struct {
	Passed    int
	Differing int
	Flakes    int
	Errored   int
}

// Tally counts finished tests by state.
func (r *TestRunResult) Tally() Tally {
	counts := lo.CountValuesBy(r.Tests, func(t FinishedTest) TestState { return t.State })
	return Tally{
		Passed:    counts[TestPassed],
		Differing: counts[TestDiffering],
		Flakes:    counts[TestFlake],
		Errored:   counts[TestErrored],
	}
}

// HasDifferences reports whether any test found a visual regression.
func (r *TestRunResult) HasDifferences() bool {
	return lo.SomeBy(r.Tests, func(t FinishedTest) bool { return t.State == TestDiffering })
}

// ScreenshotNames returns the sorted, de-duplicated screenshot names
// across a set of finished tests. Used to diff the baseline screenshot
// set against the head set.
func ScreenshotNames(tests []FinishedTest) []string {
	names := lo.Uniq(lo.FlatMap(tests, func(t FinishedTest, _ int) []string { return t.Screenshots }))
	sort.Strings(names)
	return names
}
