package dbg

import (
	"debug/dwarf"
	"encoding/binary"
	"testing"

	"github.com/coredbg/coredbg/pkg/dbg/address"
	"github.com/coredbg/coredbg/pkg/dbg/cu"
	"github.com/coredbg/coredbg/pkg/dbg/die"
	"github.com/coredbg/coredbg/pkg/dbg/query"
	"github.com/coredbg/coredbg/pkg/dbg/symbols"
	"github.com/coredbg/coredbg/pkg/dbg/types"
	"github.com/coredbg/coredbg/pkg/dbg/variables"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOracle struct {
	registers map[int]uint64
}

func (o *fakeOracle) BaseAddress() uint64                   { return 0 }
func (o *fakeOracle) ReadMemory(uint64, int) ([]byte, error) { return make([]byte, 8), nil }
func (o *fakeOracle) GetRegister(n int) (uint64, error)     { return o.registers[n], nil }
func (o *fakeOracle) GetStackPointer() (uint64, error)      { return 0, nil }

// buildHandleFixture hand-encodes a DWARF v4 compilation unit for:
//
//	fn function_call(x: i32) -> i32 { ... }
//
// with a linkage name so FindFunction exercises the symbol index's
// hash-stripping, and builds every index a real Open call would, so
// the test exercises the facade's wiring rather than any one
// component in isolation.
func buildHandleFixture(t *testing.T) *Handle {
	t.Helper()

	const headerLen = 11

	abbrev := []byte{
		1, 0x11, 1, 3, 8, 0, 0, // 1: compile_unit, name/string
		2, 0x24, 0, 3, 8, 11, 11, 0x3e, 11, 0, 0, // 2: base_type, name/string, byte_size/data1, encoding/data1
		3, 0x2e, 1, 3, 8, 0x6e, 8, 0x11, 1, 0x12, 7, 0x3b, 11, 0x40, 0x0a, 0, 0,
		// 3: subprogram, name/string, linkage_name/string, low_pc/addr,
		//    high_pc/data8, decl_line/data1, frame_base/block1
		4, 0x05, 0, 3, 8, 0x49, 0x13, 2, 0x0a, 0, 0, // 4: formal_parameter, name/string, type/ref4, location/block1
		0,
	}

	ref4 := func(off uint32) []byte {
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, off)
		return b
	}

	var body []byte
	offsetOf := func() uint32 { return headerLen + uint32(len(body)) }

	body = append(body, 1)
	body = append(body, []byte("main.rs\x00")...)

	i32Offset := offsetOf()
	body = append(body, 2)
	body = append(body, []byte("i32\x00")...)
	body = append(body, 4, 5) // byte_size=4, DW_ATE_signed=5

	body = append(body, 3)
	body = append(body, []byte("function_call\x00")...)
	body = append(body, []byte("function_call::habcdef0123456789\x00")...)
	body = append(body, make([]byte, 8)...) // low_pc = 0
	highPC := make([]byte, 8)
	binary.LittleEndian.PutUint64(highPC, 100)
	body = append(body, highPC...)
	body = append(body, 1) // decl_line = 1
	body = append(body, 1, 0x6d) // frame_base: block1 len=1, DW_OP_reg29

	body = append(body, 4)
	body = append(body, []byte("x\x00")...)
	body = append(body, ref4(i32Offset)...)
	body = append(body, 2, 0x91, 8) // location: block1 len=2, DW_OP_fbreg 8

	body = append(body, 0) // end subprogram children
	body = append(body, 0) // end CU children

	header := make([]byte, headerLen)
	binary.LittleEndian.PutUint32(header[0:4], uint32(2+4+1+len(body)))
	binary.LittleEndian.PutUint16(header[4:6], 4)
	binary.LittleEndian.PutUint32(header[6:10], 0)
	header[10] = 8

	info := append(header, body...)

	dwarfData, err := dwarf.New(abbrev, nil, nil, info, nil, nil, nil, nil)
	require.NoError(t, err)

	ctx := die.NewContext(dwarfData)
	units := &cu.Index{Units: []cu.Unit{
		{
			ID:        cu.ID{Offset: dwarf.Offset(headerLen)},
			Language:  cu.LanguageTarget,
			LowPC:     0,
			HighPC:    200,
			HasRanges: true,
		},
	}}

	syms := symbols.BuildSymbolIndex(ctx, units, nil, nil)
	addrs, err := address.Build(ctx, units, nil, nil)
	require.NoError(t, err)
	typeResolver := types.NewResolver(ctx, nil, 8, nil)
	varsResolver := variables.NewResolver(ctx, typeResolver, 8, nil)

	return &Handle{
		ctx:    ctx,
		units:  units,
		syms:   syms,
		types:  typeResolver,
		addrs:  addrs,
		vars:   varsResolver,
		cache:  query.New(),
		logger: discardLogger(),
	}
}

func TestHandleFindFunctionByHashStrippedName(t *testing.T) {
	h := buildHandleFixture(t)

	info, ok := h.FindFunction("function_call")
	require.True(t, ok)
	assert.Equal(t, uint64(0), info.LowPC)
	assert.Equal(t, uint64(100), info.HighPC)
}

func TestHandleFindFunctionUnknownReturnsFalse(t *testing.T) {
	h := buildHandleFixture(t)

	_, ok := h.FindFunction("does_not_exist")
	assert.False(t, ok)
}

func TestHandleResolveTypeResolvesPrimitive(t *testing.T) {
	h := buildHandleFixture(t)

	layout, ok := h.ResolveType("i32")
	require.True(t, ok)
	prim, ok := layout.(types.Primitive)
	require.True(t, ok)
	assert.Equal(t, 4, prim.Size)
}

func TestHandleResolveTypeUnknownReturnsFalse(t *testing.T) {
	h := buildHandleFixture(t)

	_, ok := h.ResolveType("NoSuchType")
	assert.False(t, ok)
}

func TestHandleResolveVariablesAtFindsParameter(t *testing.T) {
	h := buildHandleFixture(t)
	oracle := &fakeOracle{registers: map[int]uint64{29: 0x2000}}

	params, locals, globals, err := h.ResolveVariablesAt(8, oracle)
	require.NoError(t, err)
	require.Len(t, params, 1)
	assert.Empty(t, locals)
	assert.Empty(t, globals)
	assert.Equal(t, "x", params[0].Name)
	assert.Equal(t, uint64(0x2008), params[0].Location.Address)
}

func TestHandleFindFunctionIsMemoized(t *testing.T) {
	h := buildHandleFixture(t)

	first, ok := h.FindFunction("function_call")
	require.True(t, ok)
	second, ok := h.FindFunction("function_call")
	require.True(t, ok)
	assert.Equal(t, first, second)
}
