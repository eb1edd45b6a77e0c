package domain

// ExecutionOptions is passed opaquely to the external test executor.
// The orchestrator owns the semantics; this layer only threads values
// through from action inputs.
type ExecutionOptions struct {
	DisableSandbox bool
}

// ScreenshottingOptions controls how the executor captures and compares
// screenshots. Thresholds are opaque to this layer.
type ScreenshottingOptions struct {
	// MaxColorDifference is the per-pixel color distance below which a
	// pixel is not counted as changed.
	MaxColorDifference float64
	// MaxChangedPixelsProportion is the fraction of changed pixels below
	// which a screenshot pair is still considered a match.
	MaxChangedPixelsProportion float64
	CaptureStoryboard          bool
}
