package symbols

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseTypeNameBareLeaf(t *testing.T) {
	tn := ParseTypeName("i32")
	assert.Empty(t, tn.Module)
	assert.Equal(t, "i32", tn.Leaf)
	assert.Empty(t, tn.Generics)
}

func TestParseTypeNameWithModule(t *testing.T) {
	tn := ParseTypeName("std::collections::HashMap")
	assert.Equal(t, []string{"std", "collections"}, tn.Module)
	assert.Equal(t, "HashMap", tn.Leaf)
}

func TestParseTypeNameWithGenerics(t *testing.T) {
	tn := ParseTypeName("HashMap<String, Vec<i32>>")
	assert.Equal(t, "HashMap", tn.Leaf)
	require := assert.New(t)
	require.Len(tn.Generics, 2)
	require.Equal("String", tn.Generics[0].Leaf)
	require.Equal("Vec", tn.Generics[1].Leaf)
	require.Len(tn.Generics[1].Generics, 1)
	require.Equal("i32", tn.Generics[1].Generics[0].Leaf)
}

func TestTypeNameStringRoundTrips(t *testing.T) {
	for _, raw := range []string{
		"i32",
		"std::collections::HashMap",
		"HashMap<String, Vec<i32>>",
	} {
		tn := ParseTypeName(raw)
		again := ParseTypeName(tn.String())
		assert.Equal(t, tn, again, "parse -> format -> parse should be a fixed point for %q", raw)
	}
}

func TestParseSymbolNameStripsHash(t *testing.T) {
	sn := ParseSymbolName("mycrate::module::function_call::h0123456789abcdef")
	assert.Equal(t, []string{"mycrate", "module"}, sn.Module)
	assert.Equal(t, "function_call", sn.Leaf)
	assert.Equal(t, "h0123456789abcdef", sn.Hash)
	assert.Equal(t, "mycrate::module::function_call", sn.LookupKey())
}

func TestParseSymbolNameWithoutHash(t *testing.T) {
	sn := ParseSymbolName("mycrate::function_call")
	assert.Empty(t, sn.Hash)
	assert.Equal(t, "mycrate::function_call", sn.LookupKey())
}
