package backbone

import "errors"

// Error kinds surfaced by the backbones. All are fatal to the operation that
// raised them; none triggers an internal retry.
var (
	// ErrConfig reports an invalid construction or preparation argument,
	// such as a task size below its minimum or no task size at all.
	ErrConfig = errors.New("invalid configuration")

	// ErrOrdering reports preparing a dependent task before its prerequisite.
	ErrOrdering = errors.New("task preparation out of order")

	// ErrNotPrepared reports invoking a task entry point before the
	// corresponding preparation call.
	ErrNotPrepared = errors.New("task not prepared")

	// ErrShape reports an input tensor dimension mismatch, or an output
	// postcondition violation (the latter signals an implementation bug).
	ErrShape = errors.New("shape mismatch")
)
