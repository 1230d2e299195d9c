package input

// ============================================================================
// Input Error Definitions
// ============================================================================

import "errors"

// Predefined errors
var (
	// ErrInvalidEncoding indicates a decompressed line is not valid UTF-8
	ErrInvalidEncoding = errors.New("input: line is not valid UTF-8")
)
