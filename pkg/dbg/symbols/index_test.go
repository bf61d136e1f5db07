package symbols

import (
	"debug/dwarf"
	"encoding/binary"
	"testing"

	"github.com/coredbg/coredbg/pkg/dbg/cu"
	"github.com/coredbg/coredbg/pkg/dbg/die"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildNamespaceFixture hand-encodes a DWARF v4 compilation unit
// holding one namespace containing one subprogram:
//
//	mod mycrate { fn function_call(); } // linkage name carries a hash suffix
//
// Offsets are computed as the body is built, rather than hand-counted,
// since the string payloads here are long enough that a manual count
// is easy to get wrong.
func buildNamespaceFixture(t *testing.T) (ctx *die.Context, index *cu.Index, cuOff, nsOff, subOff dwarf.Offset) {
	t.Helper()

	const headerLen = 11

	abbrev := []byte{
		1, 0x11, 1, 3, 8, 0, 0, // 1: compile_unit, name/string
		2, 0x39, 1, 3, 8, 0, 0, // 2: namespace, name/string
		3, 0x2e, 0, 3, 8, 0x6e, 8, 0, 0, // 3: subprogram, name/string, linkage_name/string
		0,
	}

	var body []byte
	cuOff = dwarf.Offset(headerLen + len(body))
	body = append(body, 1)
	body = append(body, []byte("a.rs\x00")...)

	nsOff = dwarf.Offset(headerLen + len(body))
	body = append(body, 2)
	body = append(body, []byte("mycrate\x00")...)

	subOff = dwarf.Offset(headerLen + len(body))
	body = append(body, 3)
	body = append(body, []byte("function_call\x00")...)
	body = append(body, []byte("mycrate::function_call::h0123456789abcdef\x00")...)

	body = append(body, 0) // end namespace children
	body = append(body, 0) // end CU children

	header := make([]byte, headerLen)
	binary.LittleEndian.PutUint32(header[0:4], uint32(2+4+1+len(body)))
	binary.LittleEndian.PutUint16(header[4:6], 4)
	binary.LittleEndian.PutUint32(header[6:10], 0)
	header[10] = 8

	info := append(header, body...)

	dwarfData, err := dwarf.New(abbrev, nil, nil, info, nil, nil, nil, nil)
	require.NoError(t, err)

	ctx = die.NewContext(dwarfData)
	index = &cu.Index{Units: []cu.Unit{
		{ID: cu.ID{Offset: cuOff}, Language: cu.LanguageTarget},
	}}
	return
}

func TestBuildSymbolIndexWithoutDemangler(t *testing.T) {
	ctx, index, _, _, _ := buildNamespaceFixture(t)

	idx := BuildSymbolIndex(ctx, index, nil, nil)

	entry, ok := idx.Lookup("mycrate::function_call")
	require.True(t, ok)
	assert.Equal(t, "function_call", entry.Name.Leaf)
	assert.Equal(t, []string{"mycrate"}, entry.Name.Module)
	assert.Equal(t, "h0123456789abcdef", entry.Name.Hash)
}

func TestBuildSymbolIndexSkipsForeignUnits(t *testing.T) {
	ctx, index, _, _, _ := buildNamespaceFixture(t)
	index.Units[0].Language = cu.LanguageOther

	idx := BuildSymbolIndex(ctx, index, nil, nil)

	_, ok := idx.Lookup("mycrate::function_call")
	assert.False(t, ok)
}

func TestBuildModuleIndexFindsEnclosingNamespace(t *testing.T) {
	ctx, _, cuOff, _, subOff := buildNamespaceFixture(t)

	modIdx, err := BuildModuleIndex(ctx, die.Die{Offset: cuOff})
	require.NoError(t, err)

	assert.Equal(t, []string{"mycrate"}, modIdx.ModulePath(subOff))
	assert.Nil(t, modIdx.ModulePath(cuOff))
}
