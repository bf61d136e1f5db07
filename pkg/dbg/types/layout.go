// Package types turns a type-describing
// Die into a Layout describing how a value of that type is arranged
// in memory, recursing into composites and recognizing standard
// container shapes (growable vectors, hash maps, ordered maps,
// options, results).
package types

import (
	"debug/dwarf"

	"github.com/coredbg/coredbg/pkg/dbg/cu"
)

// Layout is a closed tagged union: every concrete type below is the
// only permitted implementation, mirroring the sealed-interface
// pattern used elsewhere in this codebase for small closed variant
// sets.
type Layout interface {
	isLayout()
}

// Primitive is a base type: an integer, float, bool, or char.
type Primitive struct {
	Name     string
	Size     int
	Encoding PrimitiveEncoding
	Signed   bool
}

func (Primitive) isLayout() {}

// PrimitiveEncoding classifies a base type's bit pattern, taken from
// DW_AT_encoding (DW_ATE_*).
type PrimitiveEncoding int

const (
	EncodingUnknown PrimitiveEncoding = iota
	EncodingBoolean
	EncodingFloat
	EncodingSigned
	EncodingSignedChar
	EncodingUnsigned
	EncodingUnsignedChar
	EncodingUTF
)

// IndirectionClass distinguishes an owning pointer from a borrowed
// reference for presentation purposes; both carry the same Layout
// shape.
type IndirectionClass int

const (
	IndirectionPointer IndirectionClass = iota
	IndirectionReference
)

// Pointer is an address-sized value pointing at Inner.
type Pointer struct {
	Inner       Layout
	Indirection IndirectionClass
}

func (Pointer) isLayout() {}

// Reference is a borrowed pointer. Kept distinct from Pointer so
// callers can tell ownership-transferring indirection apart from
// borrowing without inspecting Indirection.
type Reference struct {
	Inner Layout
}

func (Reference) isLayout() {}

// Array is a fixed-size, contiguous, homogeneous sequence.
type Array struct {
	Inner  Layout
	Count  int
	Stride int
}

func (Array) isLayout() {}

// Field is one named, offset member of a Struct.
type Field struct {
	Name   string
	Offset uint64
	Type   Layout
}

// Struct is an ordered set of named fields at byte offsets from the
// struct's base address.
type Struct struct {
	Name   string
	Fields []Field
}

func (Struct) isLayout() {}

// Tuple is a Struct without field names.
type Tuple struct {
	Elements []Layout
}

func (Tuple) isLayout() {}

// NicheRange is the range of raw discriminant-field bit patterns that
// indicate the niche-optimized "no payload" variant, e.g. the null
// pointer value standing in for None in Option<&T>.
type NicheRange struct {
	Low, High uint64
}

// Discriminant describes how to read an enum's tag: its own Layout
// (usually a small unsigned Primitive), its byte offset within the
// enum value, and, for niche-optimized enums, the raw value range
// that signals the nicheless variant instead of a real tag read. The
// Resolver does not read niche ranges from the debug info, so Niche is
// nil in every Layout it builds.
type Discriminant struct {
	Type   Layout
	Offset uint64
	Niche  *NicheRange
}

// Variant is one arm of an Enum: the raw discriminant value that
// selects it and its payload's Layout (a Struct or Tuple, or nil for
// a unit variant).
type Variant struct {
	Name     string
	TagValue uint64
	Payload  Layout
}

// Enum is the general discriminated-union Layout. Option and Result
// are specializations recognized by TypeName and promoted to their
// own variant types below so callers don't have to pattern-match
// variant tables for the two most common cases.
type Enum struct {
	Discriminant Discriminant
	Variants     []Variant
}

func (Enum) isLayout() {}

// Option is the specialized Layout for the standard optional-value
// container: a Some payload at SomeOffset, discriminated by Discr (a
// niche-optimized discriminant has no real tag byte at all — Some is
// distinguished purely by whatever bit pattern Discr.Niche excludes).
type Option struct {
	Some       Layout
	SomeOffset uint64
	Discr      Discriminant
}

func (Option) isLayout() {}

// Result is the specialized Layout for the standard fallible-value
// container: Ok and Err payloads sharing one discriminant.
type Result struct {
	Ok, Err Layout
	Discr   Discriminant
}

func (Result) isLayout() {}

// GrowableVector is the specialized Layout for the standard
// heap-backed growable array: a data pointer at PointerOffset, a
// length field at LengthOffset, and the resolved element Layout.
type GrowableVector struct {
	Inner         Layout
	PointerOffset uint64
	LengthOffset  uint64
}

func (GrowableVector) isLayout() {}

// HashMap is the specialized Layout for the standard open-addressed
// hash table container. Every offset is additive from the outer
// value's base address, already flattened through any nested "table"
// sub-struct the compiler emits. PairStride, KeyOffset, and
// ValueOffset describe the (K, V) pair type the table actually
// stores per bucket: KeyOffset is always 0, ValueOffset is the key's
// size rounded up to the value's alignment, and PairStride is the
// pair's total size rounded up to its own alignment.
type HashMap struct {
	Key, Value Layout

	BucketMaskOffset uint64
	CtrlOffset       uint64
	ItemsOffset      uint64
	PairStride       uint64
	KeyOffset        uint64
	ValueOffset      uint64
}

func (HashMap) isLayout() {}

// BTreeMap is the specialized Layout for the standard ordered-map
// container: a root-node pointer chain rather than a flat bucket
// array.
type BTreeMap struct {
	Key, Value Layout
	RootOffset uint64
}

func (BTreeMap) isLayout() {}

// Alias is an unresolved forward reference, carrying just enough to
// look the target back up: the compilation unit and the Die offset
// within it. ResolveDeep rewrites every reachable Alias into its
// target's Layout, except at a cycle point, where it is deliberately
// left as an Alias — never exposed as a *final* answer outside of
// that one case.
type Alias struct {
	CU     cu.ID
	Offset dwarf.Offset
}

func (Alias) isLayout() {}
