package address

import (
	"debug/dwarf"
	"encoding/binary"
	"testing"

	"github.com/coredbg/coredbg/pkg/dbg/cu"
	"github.com/coredbg/coredbg/pkg/dbg/die"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildAddressFixture hand-encodes a DWARF v4 compilation unit with
//
//	fn outer_fn() { /* inlined_subroutine inner_fn spans [0x10, 0x30) */ }
//
// and a two-row line-number program: line 17 starts at 0x10, and the
// sequence ends at 0x20. Line 16 (a declaration-only line the
// compiler never emits code for) has no row at all, exercising the
// snap-forward rule. All byte offsets and lengths are computed
// programmatically rather than hand-counted, since a line-program
// header has enough interdependent length fields that a manual count
// is easy to get subtly wrong.
func buildAddressFixture(t *testing.T) (*die.Context, *cu.Index) {
	t.Helper()

	const headerLen = 11

	abbrev := []byte{
		1, 0x11, 1, 3, 8, 0x11, 1, 0x12, 7, 0x10, 0x17, 0, 0,
		// 1: compile_unit, name/string, low_pc/addr, high_pc/data8, stmt_list/sec_offset
		2, 0x2e, 1, 3, 8, 0x11, 1, 0x12, 7, 0, 0,
		// 2: subprogram, name/string, low_pc/addr, high_pc/data8
		3, 0x1d, 0, 3, 8, 0x11, 1, 0x12, 7, 0, 0,
		// 3: inlined_subroutine, name/string, low_pc/addr, high_pc/data8
		0,
	}

	addr := func(v uint64) []byte {
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, v)
		return b
	}

	var body []byte
	body = append(body, 1)
	body = append(body, []byte("main.rs\x00")...)
	body = append(body, addr(0)...)
	body = append(body, addr(0x100)...)
	stmtList := make([]byte, 4)
	binary.LittleEndian.PutUint32(stmtList, 0) // line program starts at offset 0
	body = append(body, stmtList...)

	body = append(body, 2)
	body = append(body, []byte("outer_fn\x00")...)
	body = append(body, addr(0)...)
	body = append(body, addr(0x100)...)

	body = append(body, 3)
	body = append(body, []byte("inner_fn\x00")...)
	body = append(body, addr(0x10)...)
	body = append(body, addr(0x20)...)

	body = append(body, 0) // end subprogram children
	body = append(body, 0) // end CU children

	header := make([]byte, headerLen)
	binary.LittleEndian.PutUint32(header[0:4], uint32(2+4+1+len(body)))
	binary.LittleEndian.PutUint16(header[4:6], 4)
	binary.LittleEndian.PutUint32(header[6:10], 0)
	header[10] = 8

	info := append(header, body...)

	lineSection := buildLineProgram(t)

	dwarfData, err := dwarf.New(abbrev, nil, nil, info, lineSection, nil, nil, nil)
	require.NoError(t, err)

	ctx := die.NewContext(dwarfData)
	index := &cu.Index{Units: []cu.Unit{
		{
			ID:        cu.ID{Offset: dwarf.Offset(headerLen)},
			Language:  cu.LanguageTarget,
			LowPC:     0,
			HighPC:    0x100,
			HasRanges: true,
		},
	}}
	return ctx, index
}

// buildLineProgram encodes a minimal DWARF v4 line-number program: one
// row at address 0x10 on line 17, followed by an end-of-sequence
// marker at address 0x20. The header's length fields are computed
// from the actual encoded bytes rather than asserted by hand.
func buildLineProgram(t *testing.T) []byte {
	t.Helper()

	standardOpcodeLengths := []byte{0, 1, 1, 1, 1, 0, 0, 0, 1, 0, 0, 1}

	var headerBody []byte
	headerBody = append(headerBody, 1)    // minimum_instruction_length
	headerBody = append(headerBody, 1)    // maximum_operations_per_instruction
	headerBody = append(headerBody, 1)    // default_is_stmt
	headerBody = append(headerBody, 0xfb) // line_base = -5, as int8
	headerBody = append(headerBody, 14)   // line_range
	headerBody = append(headerBody, byte(len(standardOpcodeLengths)+1))
	headerBody = append(headerBody, standardOpcodeLengths...)
	headerBody = append(headerBody, 0) // include_directories terminator (comp_dir only)
	headerBody = append(headerBody, []byte("main.rs\x00")...)
	headerBody = append(headerBody, 0, 0, 0) // dir index, mtime, size (all ULEB128 0)
	headerBody = append(headerBody, 0)       // file_names terminator

	var program []byte
	program = append(program, 0x00, 0x09, 0x02) // extended op, len=9, DW_LNE_set_address
	addrBytes := make([]byte, 8)
	binary.LittleEndian.PutUint64(addrBytes, 0x10)
	program = append(program, addrBytes...)
	program = append(program, 0x03, 0x10) // DW_LNS_advance_line, SLEB128(+16) -> line 17
	program = append(program, 0x01)       // DW_LNS_copy: emit row (0x10, line 17)
	program = append(program, 0x02, 0x10) // DW_LNS_advance_pc, ULEB128(16) -> address 0x20
	program = append(program, 0x00, 0x01, 0x01) // extended op, len=1, DW_LNE_end_sequence

	unitLength := 2 + 4 + len(headerBody) + len(program)

	var out []byte
	lenField := make([]byte, 4)
	binary.LittleEndian.PutUint32(lenField, uint32(unitLength))
	out = append(out, lenField...)

	version := make([]byte, 2)
	binary.LittleEndian.PutUint16(version, 4)
	out = append(out, version...)

	headerLenField := make([]byte, 4)
	binary.LittleEndian.PutUint32(headerLenField, uint32(len(headerBody)))
	out = append(out, headerLenField...)

	out = append(out, headerBody...)
	out = append(out, program...)

	require.Equal(t, unitLength+4, len(out), "encoded line program length must match the declared unit_length")
	return out
}

func TestAddressToLocationPrefersInnermostRange(t *testing.T) {
	ctx, index := buildAddressFixture(t)

	tree, err := Build(ctx, index, nil, nil)
	require.NoError(t, err)

	loc, ok := tree.AddressToLocation(0x10)
	require.True(t, ok)
	assert.Equal(t, "inner_fn", loc.Function)
	assert.Equal(t, "main.rs", loc.File)
	assert.Equal(t, 17, loc.Line)
}

func TestAddressToLocationOutsideAnyRowReturnsFalse(t *testing.T) {
	ctx, index := buildAddressFixture(t)

	tree, err := Build(ctx, index, nil, nil)
	require.NoError(t, err)

	_, ok := tree.AddressToLocation(0x50)
	assert.False(t, ok)
}

func TestLocationToAddressSnapsForwardPastDeclarationOnlyLine(t *testing.T) {
	ctx, index := buildAddressFixture(t)

	tree, err := Build(ctx, index, nil, nil)
	require.NoError(t, err)

	pc, ok := tree.LocationToAddress("main.rs", 16, nil)
	require.True(t, ok)
	assert.Equal(t, uint64(0x10), pc)

	loc, ok := tree.AddressToLocation(pc)
	require.True(t, ok)
	assert.Equal(t, 17, loc.Line)
}

func TestAddressToLocationRoundTripsThroughLocationToAddress(t *testing.T) {
	ctx, index := buildAddressFixture(t)

	tree, err := Build(ctx, index, nil, nil)
	require.NoError(t, err)

	loc, ok := tree.AddressToLocation(0x10)
	require.True(t, ok)

	pc, ok := tree.LocationToAddress(loc.File, loc.Line, nil)
	require.True(t, ok)

	loc2, ok := tree.AddressToLocation(pc)
	require.True(t, ok)
	assert.Equal(t, loc.File, loc2.File)
	assert.GreaterOrEqual(t, loc2.Line, loc.Line)
}
