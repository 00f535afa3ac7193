package loop

import "errors"

// Sentinel errors for the loop engine
var (
	// Registry lookups
	ErrLoopNotFound = errors.New("loop not found")
	ErrLoopDisabled = errors.New("loop is disabled")

	// Run handle misuse
	ErrRunClosed      = errors.New("loop run is not in progress")
	ErrInvalidFinding = errors.New("invalid finding")

	// Query layer
	ErrRunNotFound   = errors.New("loop run not found")
	ErrInvalidFilter = errors.New("invalid filter")
)
