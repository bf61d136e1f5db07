package cu

import (
	"debug/dwarf"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entryWith(fields ...dwarf.Field) *dwarf.Entry {
	return &dwarf.Entry{Tag: dwarf.TagCompileUnit, Field: fields}
}

func TestReadPCRangeAbsoluteHighPC(t *testing.T) {
	e := entryWith(
		dwarf.Field{Attr: dwarf.AttrLowpc, Val: uint64(0x1000)},
		dwarf.Field{Attr: dwarf.AttrHighpc, Val: uint64(0x2000)},
	)
	low, high, ok := readPCRange(e)
	require.True(t, ok)
	assert.Equal(t, uint64(0x1000), low)
	assert.Equal(t, uint64(0x2000), high)
}

func TestReadPCRangeOffsetHighPC(t *testing.T) {
	e := entryWith(
		dwarf.Field{Attr: dwarf.AttrLowpc, Val: uint64(0x1000)},
		dwarf.Field{Attr: dwarf.AttrHighpc, Val: int64(0x50)},
	)
	low, high, ok := readPCRange(e)
	require.True(t, ok)
	assert.Equal(t, uint64(0x1000), low)
	assert.Equal(t, uint64(0x1050), high)
}

func TestReadPCRangeMissingLowPC(t *testing.T) {
	e := entryWith()
	_, _, ok := readPCRange(e)
	assert.False(t, ok)
}

func TestTargetLanguages(t *testing.T) {
	targets := NewTargetLanguages(0x1c, 0x21) // e.g. DW_LANG_Rust, DW_LANG_C_plus_plus_14
	assert.True(t, targets.contains(0x1c))
	assert.False(t, targets.contains(0x02))
}

func TestIndexLookupAndSourceLanguage(t *testing.T) {
	idx := &Index{Units: []Unit{
		{ID: ID{Offset: 0}, Language: LanguageTarget, LineFiles: []string{"main.rs"}},
		{ID: ID{Offset: 100}, Language: LanguageOther},
	}}

	u, ok := idx.Lookup(ID{Offset: 0})
	require.True(t, ok)
	assert.Equal(t, LanguageTarget, u.Language)
	assert.Equal(t, []string{"main.rs"}, idx.SourceFiles(ID{Offset: 0}))

	assert.Equal(t, LanguageOther, idx.SourceLanguage(ID{Offset: 100}))
	assert.Equal(t, LanguageUnknown, idx.SourceLanguage(ID{Offset: 999}))

	assert.ElementsMatch(t, []ID{{Offset: 0}, {Offset: 100}}, idx.Roots())
}

func TestBuildWithNilDwarfDataReturnsEmptyIndex(t *testing.T) {
	idx := Build(nil, nil, nil)
	assert.Empty(t, idx.Units)
}
