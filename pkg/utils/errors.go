package utils

import (
	"fmt"
)

// MakeError wraps err with a detail message formatted against args,
// the %w-wrapping pattern used throughout pkg/dbg's error returns.
func MakeError(err error, detailsBody string, args ...any) error {
	return fmt.Errorf("%w: "+detailsBody, append([]any{err}, args...)...)
}
