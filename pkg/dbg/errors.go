package dbg

import "errors"

// Error taxonomy for the debug-info core. A simple "not found" is
// deliberately a value returned through ok-booleans or nil results,
// not an error — it has no sentinel here because callers never need
// to errors.Is against "absent".
var (
	// ErrLoad covers disk and object-format failures opening a DebugFile.
	ErrLoad = errors.New("coredbg: load error")

	// ErrMalformedDebugInfo covers an unexpected DIE tree shape. Per-unit
	// and per-entry occurrences are logged and swallowed by the
	// component that hits them; only surfaced when every fallback fails.
	ErrMalformedDebugInfo = errors.New("coredbg: malformed debug info")

	// ErrMissingAttribute covers an expected DWARF attribute that is
	// absent from an entry a parser combinator was asked to read.
	ErrMissingAttribute = errors.New("coredbg: missing attribute")

	// ErrExpressionEvaluation covers a location-expression stack machine
	// that aborted (unknown opcode, stack underflow, missing oracle
	// support). Scoped to the single variable being resolved.
	ErrExpressionEvaluation = errors.New("coredbg: expression evaluation failure")

	// ErrPartialLocation names a location expression that resolves to
	// more than one piece. Nothing in this package returns it:
	// ResolveVariablesAt reports such a variable with Partial set, no
	// location, and a logged warning.
	ErrPartialLocation = errors.New("coredbg: partial (multi-piece) location not supported")
)
