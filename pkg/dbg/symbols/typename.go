// Package symbols builds the per-DebugFile
// symbol index (demangled name -> function entry) and module index
// (DIE byte-offset range -> enclosing namespace path), and provides
// the TypeName/SymbolName parsers both indices and the type resolver
// share.
package symbols

import "strings"

// TypeName is a parsed, normalized type name: its enclosing module
// path, its leaf identifier, and any generic arguments (themselves
// TypeNames, to support nested generics like `HashMap<String,
// Vec<i32>>`).
type TypeName struct {
	Module   []string
	Leaf     string
	Generics []TypeName
}

// String formats a TypeName back into its canonical form. Parsing a
// formatted TypeName reproduces the same TypeName: String and the
// parser are inverses.
func (t TypeName) String() string {
	var b strings.Builder
	for _, m := range t.Module {
		b.WriteString(m)
		b.WriteString("::")
	}
	b.WriteString(t.Leaf)
	if len(t.Generics) > 0 {
		b.WriteByte('<')
		for i, g := range t.Generics {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(g.String())
		}
		b.WriteByte('>')
	}
	return b.String()
}

// ParseTypeName parses a raw, compiler-emitted or demangled type name
// into its module path, leaf name, and generic arguments. Names with
// no "::" or "<...>" structure parse as a bare leaf with no module
// and no generics.
func ParseTypeName(raw string) TypeName {
	raw = strings.TrimSpace(raw)

	leafAndGenerics := raw
	var generics []TypeName
	if i := strings.IndexByte(raw, '<'); i >= 0 && strings.HasSuffix(raw, ">") {
		leafAndGenerics = raw[:i]
		inner := raw[i+1 : len(raw)-1]
		for _, arg := range splitTopLevel(inner) {
			generics = append(generics, ParseTypeName(arg))
		}
	}

	segments := strings.Split(leafAndGenerics, "::")
	leaf := segments[len(segments)-1]
	module := segments[:len(segments)-1]

	return TypeName{Module: module, Leaf: leaf, Generics: generics}
}

// splitTopLevel splits a comma-separated argument list, respecting
// nested angle brackets so `A<B, C>, D` splits into ["A<B, C>", "D"],
// not four pieces.
func splitTopLevel(s string) []string {
	var out []string
	depth := 0
	start := 0
	for i, r := range s {
		switch r {
		case '<':
			depth++
		case '>':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	if start < len(s) {
		out = append(out, strings.TrimSpace(s[start:]))
	}
	return out
}
