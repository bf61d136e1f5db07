// Package variables evaluates DWARF
// location expressions against caller-supplied machine state and
// assembles typed Variable records for a function's parameters,
// locals, and enclosing globals.
package variables

// Oracle is the caller-supplied channel for runtime machine state,
// the only way this package ever observes a live process. No
// component in this codebase reads CPU or memory state through a
// package-level global; it always goes through an injected interface
// like this one.
type Oracle interface {
	// BaseAddress returns the load bias to add to every relocatable
	// address the expression evaluator computes.
	BaseAddress() uint64

	// ReadMemory reads size bytes at address, already adjusted for the
	// load bias by the caller of this method (the evaluator never adds
	// BaseAddress twice).
	ReadMemory(address uint64, size int) ([]byte, error)

	// GetRegister returns the current value of DWARF register number n.
	GetRegister(n int) (uint64, error)

	// GetStackPointer returns the current stack pointer, used to
	// satisfy DW_OP_call_frame_cfa when no richer call-frame
	// information is available.
	GetStackPointer() (uint64, error)
}
