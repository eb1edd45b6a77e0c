package domain

// RunCreated is passed to OnTestRunCreated once the orchestrator has
// accepted a run and assigned it a page.
type RunCreated struct {
	ID  string
	URL string
}

// ExecuteParams carries everything the external executor needs for a
// run, plus the progress callbacks. Option bags are opaque
// pass-throughs; retry and parallelism semantics live orchestrator-side.
type ExecuteParams struct {
	TestsFile string
	HeadSHA   string
	// BaseSHA empty means a snapshot-generation pass with no diffing.
	BaseSHA   string
	TargetURL string
	SuiteID   string

	Execution      ExecutionOptions
	Screenshotting ScreenshottingOptions

	ParallelTasks       int
	MaxRetriesOnFailure int
	RerunTestsCount     int

	// Environment describes the CI context for the orchestrator's
	// bookkeeping (event name, repository, base ref).
	Environment map[string]string
	// DataDir is the local replay data directory, threaded through
	// explicitly rather than held as process-global state.
	DataDir string

	// Callbacks arrive sequentially; no overlapping invocations.
	OnTestRunCreated func(RunCreated)
	OnTestFinished   func(FinishedTest)
}
