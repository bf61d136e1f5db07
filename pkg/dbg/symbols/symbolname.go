package symbols

import (
	"regexp"
	"strings"
)

// hashToken matches a trailing compiler-hash path segment: a leading
// 'h' followed by hex digits, the shape a demangler appends to make
// monomorphized symbols unique.
var hashToken = regexp.MustCompile(`^h[0-9a-f]+$`)

// SymbolName is a parsed demangled symbol: its module path, leaf
// name, and the compiler-hash suffix (if any), kept separately so the
// hash can be stripped from lookup keys while still being available
// on the indexed entry for disambiguation.
type SymbolName struct {
	Module []string
	Leaf   string
	Hash   string
}

// ParseSymbolName splits a demangled symbol string into its module
// path, leaf name, and compiler-hash suffix.
func ParseSymbolName(demangled string) SymbolName {
	segments := strings.Split(strings.TrimSpace(demangled), "::")

	hash := ""
	if n := len(segments); n > 1 && hashToken.MatchString(segments[n-1]) {
		hash = segments[n-1]
		segments = segments[:n-1]
	}

	leaf := segments[len(segments)-1]
	module := segments[:len(segments)-1]

	return SymbolName{Module: module, Leaf: leaf, Hash: hash}
}

// LookupKey is the hash-stripped form used as a symbol index key, so
// `find_function` succeeds without the caller needing to know or
// guess the compiler hash.
func (s SymbolName) LookupKey() string {
	var b strings.Builder
	for _, m := range s.Module {
		b.WriteString(m)
		b.WriteString("::")
	}
	b.WriteString(s.Leaf)
	return b.String()
}
