package symbols

import (
	"debug/dwarf"

	"github.com/coredbg/coredbg/pkg/dbg/cu"
	"github.com/coredbg/coredbg/pkg/dbg/die"
)

// MethodInfo is one function associated with a named type: either a
// member declared inside the type's own DIE (the C++ convention) or a
// free function taking that type as its receiver, recognized through
// DW_AT_object_pointer (the convention Rust and Go-style receiver
// methods lower to).
type MethodInfo struct {
	Name        SymbolName
	LinkageName string
	LowPC       uint64
	HighPC      uint64
	IsStatic    bool
	Declaration die.Die
}

// DiscoverMethods returns every function associated with typeName: its
// own nested subprogram Dies, plus any subprogram elsewhere in a
// target-language unit whose first formal parameter is a pointer or
// reference to typeName and is marked DW_AT_object_pointer.
func DiscoverMethods(ctx *die.Context, index *cu.Index, demangle Demangler, typeName string) ([]MethodInfo, error) {
	var out []MethodInfo

	for _, unit := range index.Units {
		if unit.Language != cu.LanguageTarget {
			continue
		}
		root := die.Die{Offset: unit.ID.Offset}

		typeDies, err := findNamedTypes(ctx, root, typeName)
		if err != nil {
			return nil, err
		}

		for _, td := range typeDies {
			nested, err := nestedMethods(ctx, td, demangle)
			if err != nil {
				return nil, err
			}
			out = append(out, nested...)
		}

		freeFns, err := receiverMethods(ctx, root, typeDies, demangle)
		if err != nil {
			return nil, err
		}
		out = append(out, freeFns...)
	}

	return out, nil
}

func findNamedTypes(ctx *die.Context, root die.Die, typeName string) ([]die.Die, error) {
	var out []die.Die
	err := die.Walk(ctx, root, func(d die.Die) (bool, error) {
		tag, err := ctx.Tag(d)
		if err != nil {
			return false, nil
		}
		switch tag {
		case dwarf.TagStructType, dwarf.TagUnionType, dwarf.TagClassType:
			name, _ := die.Name()(ctx, d)
			if name == typeName {
				out = append(out, d)
			}
		}
		return true, nil
	})
	return out, err
}

func nestedMethods(ctx *die.Context, typeDie die.Die, demangle Demangler) ([]MethodInfo, error) {
	children, err := ctx.Children(typeDie)
	if err != nil {
		return nil, err
	}
	var out []MethodInfo
	for _, c := range children {
		tag, err := ctx.Tag(c)
		if err != nil || tag != dwarf.TagSubprogram {
			continue
		}
		m, ok, err := buildMethodInfo(ctx, c, demangle)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, m)
		}
	}
	return out, nil
}

// receiverMethods finds subprograms whose DW_AT_object_pointer formal
// parameter's type (after stripping up to two levels of
// pointer/reference/const indirection) is one of typeDies.
func receiverMethods(ctx *die.Context, root die.Die, typeDies []die.Die, demangle Demangler) ([]MethodInfo, error) {
	typeOffsets := make(map[dwarf.Offset]bool, len(typeDies))
	for _, td := range typeDies {
		typeOffsets[td.Offset] = true
	}
	if len(typeOffsets) == 0 {
		return nil, nil
	}

	var out []MethodInfo
	err := die.Walk(ctx, root, func(d die.Die) (bool, error) {
		tag, err := ctx.Tag(d)
		if err != nil || tag != dwarf.TagSubprogram {
			return true, nil
		}

		entry, err := ctx.Entry(d)
		if err != nil {
			return true, nil
		}
		objPtrOff, ok := entry.Val(dwarf.AttrObjectPointer).(dwarf.Offset)
		if !ok {
			return true, nil
		}

		recv := die.Die{CU: d.CU, Offset: objPtrOff}
		if !receiverMatches(ctx, recv, typeOffsets) {
			return true, nil
		}

		m, ok, err := buildMethodInfo(ctx, d, demangle)
		if err != nil {
			return true, nil
		}
		if ok {
			out = append(out, m)
		}
		return true, nil
	})
	return out, err
}

// receiverMatches strips up to two levels of pointer/reference
// indirection off the formal parameter's declared type, looking for a
// match against one of the candidate struct offsets.
func receiverMatches(ctx *die.Context, d die.Die, candidates map[dwarf.Offset]bool) bool {
	entry, err := ctx.Entry(d)
	if err != nil {
		return false
	}
	typeOff, ok := entry.Val(dwarf.AttrType).(dwarf.Offset)
	if !ok {
		return false
	}
	cur := die.Die{CU: d.CU, Offset: typeOff}
	for range 2 {
		if candidates[cur.Offset] {
			return true
		}
		entry, err := ctx.Entry(cur)
		if err != nil {
			return false
		}
		tag, err := ctx.Tag(cur)
		if err != nil {
			return false
		}
		if tag != dwarf.TagPointerType && tag != dwarf.TagReferenceType && tag != dwarf.TagConstType {
			return false
		}
		nextOff, ok := entry.Val(dwarf.AttrType).(dwarf.Offset)
		if !ok {
			return false
		}
		cur = die.Die{CU: d.CU, Offset: nextOff}
	}
	return candidates[cur.Offset]
}

func buildMethodInfo(ctx *die.Context, d die.Die, demangle Demangler) (MethodInfo, bool, error) {
	entry, err := buildEntry(ctx, d, demangle)
	if err != nil {
		return MethodInfo{}, false, nil
	}
	if entry == nil {
		return MethodInfo{}, false, nil
	}
	objEntry, _ := ctx.Entry(d)
	_, isStatic := objEntry.Val(dwarf.AttrObjectPointer).(dwarf.Offset)
	return MethodInfo{
		Name:        entry.Name,
		LinkageName: entry.LinkageName,
		LowPC:       entry.LowPC,
		HighPC:      entry.HighPC,
		IsStatic:    !isStatic,
		Declaration: entry.Declaration,
	}, true, nil
}
