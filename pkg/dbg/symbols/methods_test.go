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

// buildMethodFixture hand-encodes a DWARF v4 compilation unit for:
//
//	struct Point { }
//	impl Point {
//	    fn new() -> Point { ... }          // nested declaration
//	}
//	fn distance(self: &Point) -> f64 { }   // free function, object_pointer receiver
//
// Offsets are tracked with offsetOf() as the body is built; the
// object_pointer attribute on the free function needs the formal
// parameter's offset before that parameter is written, so its fixed
// prefix length is computed directly and then checked against
// offsetOf() once the bytes are actually in place.
func buildMethodFixture(t *testing.T) (ctx *die.Context, index *cu.Index) {
	t.Helper()

	const headerLen = 11

	abbrev := []byte{
		1, 0x11, 1, 3, 8, 0, 0, // 1: compile_unit, name/string
		2, 0x13, 1, 3, 8, 0, 0, // 2: structure_type, name/string
		3, 0x2e, 0, 3, 8, 0x6e, 8, 0, 0, // 3: subprogram (nested), name/string, linkage_name/string
		4, 0x0f, 0, 0x49, 0x13, 0, 0, // 4: pointer_type, type/ref4
		5, 0x2e, 1, 3, 8, 0x6e, 8, 0x64, 0x13, 0, 0, // 5: subprogram (free), name/string, linkage_name/string, object_pointer/ref4
		6, 0x05, 0, 0x49, 0x13, 0, 0, // 6: formal_parameter, type/ref4
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

	structOff := offsetOf()
	body = append(body, 2)
	body = append(body, []byte("Point\x00")...)

	body = append(body, 3)
	body = append(body, []byte("new\x00")...)
	body = append(body, []byte("Point::new::habcdef1234567890\x00")...)

	body = append(body, 0) // end struct children

	ptrOff := offsetOf()
	body = append(body, 4)
	body = append(body, ref4(structOff)...)

	freeSubOff := offsetOf()
	nameBytes := []byte("distance\x00")
	linkageBytes := []byte("Point::distance::hfedcba0987654321\x00")
	paramOff := freeSubOff + uint32(1+len(nameBytes)+len(linkageBytes)+4)

	body = append(body, 5)
	body = append(body, nameBytes...)
	body = append(body, linkageBytes...)
	body = append(body, ref4(paramOff)...)
	require.Equal(t, paramOff, offsetOf(), "paramOff must match the formal_parameter's actual offset")

	body = append(body, 6)
	body = append(body, ref4(ptrOff)...)

	body = append(body, 0) // end free subprogram children
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
		{ID: cu.ID{Offset: dwarf.Offset(headerLen)}, Language: cu.LanguageTarget},
	}}
	return ctx, index
}

func TestDiscoverMethodsFindsNestedDeclaration(t *testing.T) {
	ctx, index := buildMethodFixture(t)

	methods, err := DiscoverMethods(ctx, index, nil, "Point")
	require.NoError(t, err)

	var names []string
	for _, m := range methods {
		names = append(names, m.Name.Leaf)
	}
	assert.Contains(t, names, "new")
}

func TestDiscoverMethodsFindsReceiverFunction(t *testing.T) {
	ctx, index := buildMethodFixture(t)

	methods, err := DiscoverMethods(ctx, index, nil, "Point")
	require.NoError(t, err)

	var names []string
	for _, m := range methods {
		names = append(names, m.Name.Leaf)
	}
	assert.Contains(t, names, "distance")
}

func TestDiscoverMethodsUnknownTypeReturnsEmpty(t *testing.T) {
	ctx, index := buildMethodFixture(t)

	methods, err := DiscoverMethods(ctx, index, nil, "NoSuchType")
	require.NoError(t, err)
	assert.Empty(t, methods)
}
