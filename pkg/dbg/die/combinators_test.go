package die

import (
	"debug/dwarf"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildFixture hand-encodes a minimal DWARF v4 compilation unit
// containing one structure_type DIE with two members, "x" and "y".
// Every abbreviation code and form value used below fits in one byte,
// so this needs no LEB128 encoder. Offsets are absolute into the
// returned .debug_info section bytes and are asserted inline so a
// slipped byte count fails loudly at the point of the mistake rather
// than as a mysterious downstream Seek error.
func buildFixture(t *testing.T) (ctx *Context, cuDie, structDie, memberX, memberY Die) {
	t.Helper()

	abbrev := []byte{
		1, 0x11, 1, 3, 8, 0, 0, // 1: compile_unit, has children, DW_AT_name/string
		2, 0x13, 1, 3, 8, 0, 0, // 2: structure_type, has children, DW_AT_name/string
		3, 0x0d, 0, 3, 8, 0, 0, // 3: member, no children, DW_AT_name/string
		0,
	}

	body := []byte{}
	body = append(body, 1)
	body = append(body, []byte("main.rs\x00")...) // CU: offset 11
	body = append(body, 2)
	body = append(body, []byte("Point\x00")...) // struct: offset 20
	body = append(body, 3)
	body = append(body, []byte("x\x00")...) // member x: offset 27
	body = append(body, 3)
	body = append(body, []byte("y\x00")...) // member y: offset 30
	body = append(body, 0)                  // end struct children: offset 33
	body = append(body, 0)                  // end CU children: offset 34

	header := make([]byte, 11)
	binary.LittleEndian.PutUint32(header[0:4], uint32(2+4+1+len(body)))
	binary.LittleEndian.PutUint16(header[4:6], 4)
	binary.LittleEndian.PutUint32(header[6:10], 0)
	header[10] = 8

	info := append(header, body...)
	require.Equal(t, 35, len(info))

	dwarfData, err := dwarf.New(abbrev, nil, nil, info, nil, nil, nil, nil)
	require.NoError(t, err)

	ctx = NewContext(dwarfData)
	cuDie = Die{Offset: 11}
	structDie = Die{Offset: 20}
	memberX = Die{Offset: 27}
	memberY = Die{Offset: 30}
	return
}

func TestContextEntryAndTag(t *testing.T) {
	ctx, cuDie, structDie, _, _ := buildFixture(t)

	tag, err := ctx.Tag(cuDie)
	require.NoError(t, err)
	assert.Equal(t, dwarf.TagCompileUnit, tag)

	tag, err = ctx.Tag(structDie)
	require.NoError(t, err)
	assert.Equal(t, dwarf.TagStructType, tag)
}

func TestNamePrimitive(t *testing.T) {
	ctx, _, structDie, memberX, memberY := buildFixture(t)

	n, err := Name()(ctx, structDie)
	require.NoError(t, err)
	assert.Equal(t, "Point", n)

	n, err = Name()(ctx, memberX)
	require.NoError(t, err)
	assert.Equal(t, "x", n)

	n, err = Name()(ctx, memberY)
	require.NoError(t, err)
	assert.Equal(t, "y", n)
}

func TestChildrenOfCUReturnsStructOnly(t *testing.T) {
	ctx, cuDie, structDie, _, _ := buildFixture(t)

	children, err := ctx.Children(cuDie)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, structDie, children[0])
}

func TestChildrenOfStructReturnsBothMembers(t *testing.T) {
	ctx, _, structDie, memberX, memberY := buildFixture(t)

	children, err := ctx.Children(structDie)
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, memberX, children[0])
	assert.Equal(t, memberY, children[1])
}

func TestChildrenOfLeafIsEmpty(t *testing.T) {
	ctx, _, _, memberX, _ := buildFixture(t)

	children, err := ctx.Children(memberX)
	require.NoError(t, err)
	assert.Empty(t, children)
}

func TestIsMember(t *testing.T) {
	ctx, _, structDie, memberX, _ := buildFixture(t)

	ok, err := IsMember("x")(ctx, memberX)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = IsMember("y")(ctx, memberX)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = IsMember("x")(ctx, structDie)
	require.NoError(t, err)
	assert.False(t, ok)
}

func namedChild(name string) Parser[Die] {
	return func(ctx *Context, d Die) (Die, error) {
		n, err := Name()(ctx, d)
		if err != nil {
			return Die{}, err
		}
		if n != name {
			return Die{}, ErrNoMatch
		}
		return d, nil
	}
}

func TestParseChildrenMatchesBothSlotsRegardlessOfConcreteType(t *testing.T) {
	ctx, _, structDie, memberX, memberY := buildFixture(t)

	results, err := ParseChildren(ctx, structDie, []Slot{
		SlotOf("x", namedChild("x")),
		SlotOf("y", namedChild("y")),
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, memberX, Get[Die](results, 0))
	assert.Equal(t, memberY, Get[Die](results, 1))
}

func TestParseChildrenFailsWhenASlotMatchesNothing(t *testing.T) {
	ctx, _, structDie, _, _ := buildFixture(t)

	_, err := ParseChildren(ctx, structDie, []Slot{
		SlotOf("x", namedChild("x")),
		SlotOf("z", namedChild("z")),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedShape))
}

func TestAttrMissingReturnsNoMatch(t *testing.T) {
	ctx, _, structDie, _, _ := buildFixture(t)

	_, err := Attr[string](dwarf.AttrCompDir)(ctx, structDie)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoMatch))
}

func TestFilterSwallowsNoMatch(t *testing.T) {
	ctx, _, structDie, _, _ := buildFixture(t)

	result, err := Filter(Attr[string](dwarf.AttrCompDir))(ctx, structDie)
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestForEachChildCollectsNames(t *testing.T) {
	ctx, _, structDie, _, _ := buildFixture(t)

	names, err := ForEachChild(Name())(ctx, structDie)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, names)
}

func TestAllRunsParsersInOrder(t *testing.T) {
	ctx, _, structDie, _, _ := buildFixture(t)

	results, err := All(ctx, structDie,
		Erase(Name()),
		Erase(MapParser(Name(), func(s string) int { return len(s) })),
	)
	require.NoError(t, err)
	assert.Equal(t, "Point", Get[string](results, 0))
	assert.Equal(t, 5, Get[int](results, 1))
}
