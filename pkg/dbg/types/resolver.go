package types

import (
	"debug/dwarf"
	"errors"
	"log/slog"
	"strings"

	"github.com/coredbg/coredbg/pkg/dbg/die"
	"github.com/coredbg/coredbg/pkg/utils"
)

// DWARF base-type encodings (DW_ATE_*). debug/dwarf exposes the raw
// attribute value as an int64 but does not name these constants
// itself, so they're spelled out here once.
const (
	ateAddress      = 0x01
	ateBoolean      = 0x02
	ateComplexFloat = 0x03
	ateFloat        = 0x04
	ateSigned       = 0x05
	ateSignedChar   = 0x06
	ateUnsigned     = 0x07
	ateUnsignedChar = 0x08
	ateUTF          = 0x10
)

// ErrUnsupportedShape is returned when a Die's tag or structural shape
// isn't one this resolver recognizes.
var ErrUnsupportedShape = errors.New("types: unsupported type shape")

// Resolver turns Dies into Layouts. It is stateless aside from its
// configuration and safe for concurrent use; callers typically share
// one Resolver per DebugFile.
type Resolver struct {
	ctx      *die.Context
	shapes   []ContainerShape
	addrSize int
	logger   *slog.Logger
}

// NewResolver builds a Resolver. A nil shapes slice uses
// DefaultContainerShapes. addrSize is the target binary's pointer
// width in bytes (4 or 8); it sizes Pointer and Reference layouts
// that carry no DWARF byte_size of their own. A zero addrSize
// defaults to 8, the common case.
func NewResolver(ctx *die.Context, shapes []ContainerShape, addrSize int, logger *slog.Logger) *Resolver {
	if shapes == nil {
		shapes = DefaultContainerShapes()
	}
	if addrSize == 0 {
		addrSize = 8
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Resolver{ctx: ctx, shapes: shapes, addrSize: addrSize, logger: logger}
}

// ResolveShallow resolves only d's own top-level tag. Every nested
// type it references is left as an Alias; call ResolveDeep to follow
// those.
func (r *Resolver) ResolveShallow(d die.Die) (Layout, error) {
	tag, err := r.ctx.Tag(d)
	if err != nil {
		return nil, err
	}

	switch tag {
	case dwarf.TagBaseType:
		return r.resolveBaseType(d)
	case dwarf.TagPointerType:
		return r.resolveIndirection(d, IndirectionPointer)
	case dwarf.TagReferenceType, dwarf.TagRvalueReferenceType:
		return r.resolveIndirection(d, IndirectionReference)
	case dwarf.TagArrayType:
		return r.resolveArray(d)
	case dwarf.TagStructType, dwarf.TagClassType:
		return r.resolveStruct(d)
	case dwarf.TagEnumerationType:
		return r.resolveEnum(d)
	case dwarf.TagTypedef, dwarf.TagConstType, dwarf.TagVolatileType:
		return r.resolveAliasThrough(d)
	default:
		return nil, utils.MakeError(ErrUnsupportedShape, "tag %v", tag)
	}
}

func (r *Resolver) alias(d die.Die) Alias {
	return Alias{CU: d.CU, Offset: d.Offset}
}

func (r *Resolver) resolveBaseType(d die.Die) (Layout, error) {
	entry, err := r.ctx.Entry(d)
	if err != nil {
		return nil, err
	}
	name, _ := entry.Val(dwarf.AttrName).(string)
	size, _ := entry.Val(dwarf.AttrByteSize).(int64)
	encoding, _ := entry.Val(dwarf.AttrEncoding).(int64)

	p := Primitive{Name: name, Size: int(size)}
	switch encoding {
	case ateBoolean:
		p.Encoding = EncodingBoolean
	case ateFloat:
		p.Encoding = EncodingFloat
	case ateSigned:
		p.Encoding = EncodingSigned
		p.Signed = true
	case ateSignedChar:
		p.Encoding = EncodingSignedChar
		p.Signed = true
	case ateUnsigned:
		p.Encoding = EncodingUnsigned
	case ateUnsignedChar:
		p.Encoding = EncodingUnsignedChar
	case ateUTF:
		p.Encoding = EncodingUTF
	default:
		p.Encoding = EncodingUnknown
	}
	return p, nil
}

func (r *Resolver) resolveIndirection(d die.Die, class IndirectionClass) (Layout, error) {
	target, err := die.EntryType()(r.ctx, d)
	if err != nil {
		// A pointer with no DW_AT_type is a void pointer; there's no
		// inner Layout to alias.
		if class == IndirectionReference {
			return Reference{Inner: nil}, nil
		}
		return Pointer{Inner: nil, Indirection: class}, nil
	}
	inner := r.alias(target)
	if class == IndirectionReference {
		return Reference{Inner: inner}, nil
	}
	return Pointer{Inner: inner, Indirection: class}, nil
}

func (r *Resolver) resolveArray(d die.Die) (Layout, error) {
	target, err := die.EntryType()(r.ctx, d)
	if err != nil {
		return nil, err
	}

	count := -1
	children, err := r.ctx.Children(d)
	if err == nil {
		for _, c := range children {
			tag, err := r.ctx.Tag(c)
			if err != nil || tag != dwarf.TagSubrangeType {
				continue
			}
			entry, err := r.ctx.Entry(c)
			if err != nil {
				continue
			}
			if n, ok := entry.Val(dwarf.AttrCount).(int64); ok {
				count = int(n)
				break
			}
			if upper, ok := entry.Val(dwarf.AttrUpperBound).(int64); ok {
				count = int(upper) + 1
				break
			}
		}
	}

	return Array{Inner: r.alias(target), Count: count}, nil
}

// resolveAliasThrough handles tags that are pure indirection over
// DW_AT_type (typedef, const, volatile) by aliasing straight through
// to the named type rather than wrapping it in another Layout layer.
func (r *Resolver) resolveAliasThrough(d die.Die) (Layout, error) {
	target, err := die.EntryType()(r.ctx, d)
	if err != nil {
		return nil, err
	}
	return r.alias(target), nil
}

func leafName(name string) string {
	if i := strings.IndexByte(name, '<'); i >= 0 {
		return name[:i]
	}
	return name
}

func (r *Resolver) resolveStruct(d die.Die) (Layout, error) {
	entry, err := r.ctx.Entry(d)
	if err != nil {
		return nil, err
	}
	name, _ := entry.Val(dwarf.AttrName).(string)

	children, err := r.ctx.Children(d)
	if err != nil {
		return nil, err
	}

	// A structure_type with a variant_part child is an enum in
	// disguise (the shape niche-optimized/tagged-union languages lower
	// to).
	for _, c := range children {
		tag, err := r.ctx.Tag(c)
		if err == nil && tag == dwarf.TagVariantPart {
			return r.resolveVariantPart(d, name, c)
		}
	}

	if shape, ok := Match(r.shapes, leafName(name)); ok {
		switch shape.Kind {
		case ContainerGrowableVector:
			if l, err := r.resolveGrowableVector(d, shape); err == nil {
				return l, nil
			}
		case ContainerHashMap:
			if l, err := r.resolveHashMap(d, shape); err == nil {
				return l, nil
			}
		case ContainerBTreeMap:
			if l, err := r.resolveBTreeMap(d, shape); err == nil {
				return l, nil
			}
		}
		// Fall through to a plain Struct if the recognized name didn't
		// actually have the expected member shape (e.g. a user type
		// that happens to be named "Vec").
	}

	fields := make([]Field, 0, len(children))
	for _, c := range children {
		tag, err := r.ctx.Tag(c)
		if err != nil || tag != dwarf.TagMember {
			continue
		}
		f, err := r.resolveField(c)
		if err != nil {
			continue
		}
		fields = append(fields, f)
	}

	return Struct{Name: name, Fields: fields}, nil
}

func (r *Resolver) resolveField(d die.Die) (Field, error) {
	entry, err := r.ctx.Entry(d)
	if err != nil {
		return Field{}, err
	}
	name, _ := entry.Val(dwarf.AttrName).(string)
	offset, err := die.DataMemberOffset()(r.ctx, d)
	if err != nil {
		offset = 0
	}
	target, err := die.EntryType()(r.ctx, d)
	if err != nil {
		return Field{}, err
	}
	return Field{Name: name, Offset: offset, Type: r.alias(target)}, nil
}

// memberRef is what memberSlot extracts from a matched member Die: the
// byte offset to add to the running total and the Die to descend into
// next.
type memberRef struct {
	offset uint64
	target die.Die
}

// memberSlot builds a Parser that claims a DW_TAG_member child named
// name, declining every other child with ErrNoMatch so ParseChildren
// can try the remaining slots against it.
func memberSlot(name string) die.Parser[memberRef] {
	return func(ctx *die.Context, d die.Die) (memberRef, error) {
		if tag, err := ctx.Tag(d); err != nil || tag != dwarf.TagMember {
			return memberRef{}, die.ErrNoMatch
		}
		n, err := die.Name()(ctx, d)
		if err != nil || n != name {
			return memberRef{}, die.ErrNoMatch
		}
		off, err := die.DataMemberOffset()(ctx, d)
		if err != nil {
			off = 0
		}
		target, err := die.EntryType()(ctx, d)
		if err != nil {
			return memberRef{}, err
		}
		return memberRef{offset: off, target: target}, nil
	}
}

// fieldOffsetSlot is memberSlot's offset-only counterpart, for callers
// that only need the byte offset and not the field's own type, e.g. a
// container's length or root-node member.
func fieldOffsetSlot(name string) die.Parser[uint64] {
	return func(ctx *die.Context, d die.Die) (uint64, error) {
		ref, err := memberSlot(name)(ctx, d)
		if err != nil {
			return 0, err
		}
		return ref.offset, nil
	}
}

// memberOffset walks a nested member path (e.g. "buf","inner","ptr"),
// accumulating byte offsets additively from the outer struct down, and
// returns the final leaf Die plus its total offset. Each path segment
// is resolved with ParseChildren/SlotOf: matching the one named member
// among a parent's children is parse_children's one-slot case, and
// reusing it here keeps this walk robust to field reordering the same
// way the container-shape recognizers below are.
func (r *Resolver) memberOffset(d die.Die, path []string) (die.Die, uint64, error) {
	var total uint64
	cur := d
	for _, name := range path {
		results, err := die.ParseChildren(r.ctx, cur, []die.Slot{die.SlotOf(name, memberSlot(name))})
		if err != nil {
			return die.Die{}, 0, utils.MakeError(ErrUnsupportedShape, "member %q not found while walking path: %v", name, err)
		}
		ref := die.Get[memberRef](results, 0)
		total += ref.offset
		cur = ref.target
	}
	return cur, total, nil
}

func (r *Resolver) resolveGrowableVector(d die.Die, shape ContainerShape) (Layout, error) {
	_, ptrOffset, err := r.memberOffset(d, shape.BufPath)
	if err != nil {
		return nil, err
	}

	results, err := die.ParseChildren(r.ctx, d, []die.Slot{die.SlotOf(shape.LenField, fieldOffsetSlot(shape.LenField))})
	if err != nil {
		return nil, utils.MakeError(ErrUnsupportedShape, "growable-vector length field %q not found: %v", shape.LenField, err)
	}
	lenOffset := die.Get[uint64](results, 0)

	inner, err := die.Generic("T")(r.ctx, d)
	var innerLayout Layout
	if err == nil {
		innerLayout = r.alias(inner)
	}

	return GrowableVector{Inner: innerLayout, PointerOffset: ptrOffset, LengthOffset: lenOffset}, nil
}

func (r *Resolver) resolveHashMap(d die.Die, shape ContainerShape) (Layout, error) {
	table, tableOffset, err := r.memberOffset(d, shape.TablePath)
	if err != nil {
		return nil, err
	}

	results, err := die.ParseChildren(r.ctx, table, []die.Slot{
		die.SlotOf(shape.CtrlField, fieldOffsetSlot(shape.CtrlField)),
		die.SlotOf(shape.BucketMaskField, fieldOffsetSlot(shape.BucketMaskField)),
		die.SlotOf(shape.ItemsField, fieldOffsetSlot(shape.ItemsField)),
	})
	if err != nil {
		return nil, utils.MakeError(ErrUnsupportedShape, "hash-map table shape: %v", err)
	}
	ctrlOffset := tableOffset + die.Get[uint64](results, 0)
	bucketMaskOffset := tableOffset + die.Get[uint64](results, 1)
	itemsOffset := tableOffset + die.Get[uint64](results, 2)

	keyDie, keyErr := die.Generic("K")(r.ctx, d)
	var keyLayout Layout
	if keyErr == nil {
		keyLayout = r.alias(keyDie)
	}
	valDie, valErr := die.Generic("V")(r.ctx, d)
	var valLayout Layout
	if valErr == nil {
		valLayout = r.alias(valDie)
	}

	var keyOffset, valueOffset, pairStride uint64
	if keyErr == nil && valErr == nil {
		keySize, keyAlign := r.sizeAndAlign(keyDie)
		valSize, valAlign := r.sizeAndAlign(valDie)
		keyOffset = 0
		valueOffset = alignUp(keySize, valAlign)
		pairAlign := keyAlign
		if valAlign > pairAlign {
			pairAlign = valAlign
		}
		pairStride = alignUp(valueOffset+valSize, pairAlign)
	}

	return HashMap{
		Key:              keyLayout,
		Value:            valLayout,
		BucketMaskOffset: bucketMaskOffset,
		CtrlOffset:       ctrlOffset,
		ItemsOffset:      itemsOffset,
		PairStride:       pairStride,
		KeyOffset:        keyOffset,
		ValueOffset:      valueOffset,
	}, nil
}

// sizeAndAlign reads d's own DW_AT_byte_size and DW_AT_alignment. A
// type with no explicit DW_AT_alignment aligns to its own size,
// capped at the target's address width, the natural-alignment rule
// every ABI the resolver targets follows.
func (r *Resolver) sizeAndAlign(d die.Die) (size, align uint64) {
	entry, err := r.ctx.Entry(d)
	if err != nil {
		return 0, 1
	}
	if s, ok := entry.Val(dwarf.AttrByteSize).(int64); ok {
		size = uint64(s)
	}
	if a, ok := entry.Val(dwarf.AttrAlignment).(int64); ok {
		align = uint64(a)
		return size, align
	}
	align = size
	if align == 0 {
		align = 1
	}
	if addr := uint64(r.addrSize); addr > 0 && align > addr {
		align = addr
	}
	return size, align
}

// alignUp rounds offset up to the next multiple of align.
func alignUp(offset, align uint64) uint64 {
	if align <= 1 {
		return offset
	}
	return (offset + align - 1) / align * align
}

func (r *Resolver) resolveBTreeMap(d die.Die, shape ContainerShape) (Layout, error) {
	results, err := die.ParseChildren(r.ctx, d, []die.Slot{die.SlotOf(shape.RootField, fieldOffsetSlot(shape.RootField))})
	if err != nil {
		return nil, utils.MakeError(ErrUnsupportedShape, "ordered-map root field %q not found: %v", shape.RootField, err)
	}
	rootOffset := die.Get[uint64](results, 0)

	keyDie, err := die.Generic("K")(r.ctx, d)
	var keyLayout Layout
	if err == nil {
		keyLayout = r.alias(keyDie)
	}
	valDie, err := die.Generic("V")(r.ctx, d)
	var valLayout Layout
	if err == nil {
		valLayout = r.alias(valDie)
	}

	return BTreeMap{Key: keyLayout, Value: valLayout, RootOffset: rootOffset}, nil
}

// resolveEnum handles a plain DW_TAG_enumeration_type (a C-style enum
// with DW_TAG_enumerator children and no payloads).
func (r *Resolver) resolveEnum(d die.Die) (Layout, error) {
	entry, err := r.ctx.Entry(d)
	if err != nil {
		return nil, err
	}
	size, _ := entry.Val(dwarf.AttrByteSize).(int64)

	children, err := r.ctx.Children(d)
	if err != nil {
		return nil, err
	}

	discrType := Primitive{Name: "discriminant", Size: int(size), Encoding: EncodingUnsigned}
	var variants []Variant
	for _, c := range children {
		tag, err := r.ctx.Tag(c)
		if err != nil || tag != dwarf.TagEnumerator {
			continue
		}
		cEntry, err := r.ctx.Entry(c)
		if err != nil {
			continue
		}
		name, _ := cEntry.Val(dwarf.AttrName).(string)
		val, _ := cEntry.Val(dwarf.AttrConstValue).(int64)
		variants = append(variants, Variant{Name: name, TagValue: uint64(val)})
	}

	return Enum{Discriminant: Discriminant{Type: discrType}, Variants: variants}, nil
}

// resolveVariantPart handles the compiler-emitted tagged-union shape:
// an outer structure_type whose variant_part child carries the
// discriminant and whose DW_TAG_variant children each describe one
// payload. Promotes to Option/Result when the outer TypeName matches
// those shapes.
func (r *Resolver) resolveVariantPart(outer die.Die, outerName string, variantPart die.Die) (Layout, error) {
	vpEntry, err := r.ctx.Entry(variantPart)
	if err != nil {
		return nil, err
	}

	var discr Discriminant
	if discrOff, ok := vpEntry.Val(dwarf.AttrDiscr).(dwarf.Offset); ok {
		discrDie := die.Die{CU: outer.CU, Offset: discrOff}
		if off, err := die.DataMemberOffset()(r.ctx, discrDie); err == nil {
			discr.Offset = off
		}
		if t, err := die.EntryType()(r.ctx, discrDie); err == nil {
			discr.Type = r.alias(t)
		}
	}

	children, err := r.ctx.Children(variantPart)
	if err != nil {
		return nil, err
	}

	var variants []Variant
	for _, c := range children {
		tag, err := r.ctx.Tag(c)
		if err != nil || tag != dwarf.TagVariant {
			continue
		}
		cEntry, err := r.ctx.Entry(c)
		if err != nil {
			continue
		}
		tagVal, _ := cEntry.Val(dwarf.AttrDiscrValue).(int64)

		var payload Layout
		memberChildren, err := r.ctx.Children(c)
		if err == nil {
			for _, m := range memberChildren {
				mTag, err := r.ctx.Tag(m)
				if err != nil || mTag != dwarf.TagMember {
					continue
				}
				if target, err := die.EntryType()(r.ctx, m); err == nil {
					payload = r.alias(target)
				}
				break
			}
		}

		name, _ := cEntry.Val(dwarf.AttrName).(string)
		variants = append(variants, Variant{Name: name, TagValue: uint64(tagVal), Payload: payload})
	}

	leaf := leafName(outerName)
	switch {
	case strings.EqualFold(leaf, "Option"):
		for _, v := range variants {
			if strings.EqualFold(v.Name, "Some") && v.Payload != nil {
				return Option{Some: v.Payload, Discr: discr}, nil
			}
		}
		return Option{Discr: discr}, nil
	case strings.EqualFold(leaf, "Result"):
		var ok, errLayout Layout
		for _, v := range variants {
			switch {
			case strings.EqualFold(v.Name, "Ok"):
				ok = v.Payload
			case strings.EqualFold(v.Name, "Err"):
				errLayout = v.Payload
			}
		}
		return Result{Ok: ok, Err: errLayout, Discr: discr}, nil
	default:
		return Enum{Discriminant: discr, Variants: variants}, nil
	}
}
