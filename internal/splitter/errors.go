package splitter

// ============================================================================
// Splitter Error Definitions
// Purpose: Define the engine's internal failure modes
// ============================================================================

import "errors"

// Predefined errors
var (
	// ErrInvariant indicates a precondition inside the file pool or
	// router failed. It always indicates a bug, never bad input.
	ErrInvariant = errors.New("splitter: internal invariant violated")

	// ErrPoolFinished indicates an operation on a file pool after its
	// orderly drain completed
	ErrPoolFinished = errors.New("splitter: file pool already finished")

	// ErrZeroWrite indicates a shard file repeatedly accepted zero bytes;
	// the file cannot make progress
	ErrZeroWrite = errors.New("splitter: file refused to accept data")

	// ErrEncoderFinalized indicates bytes were fed to an encoder after
	// its gzip trailer was written
	ErrEncoderFinalized = errors.New("splitter: encoder already finalized")
)
