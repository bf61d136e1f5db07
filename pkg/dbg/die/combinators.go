package die

import (
	"debug/dwarf"
	"errors"
	"fmt"

	"github.com/coredbg/coredbg/pkg/utils"
)

// ErrNoMatch is returned by a parser that found nothing to extract,
// as distinct from a malformed-structure error. Combinators that
// probe several possible shapes (Filter, ParseChildren slots) use it
// to tell "this child doesn't fit this slot" apart from "the debug
// info is broken".
var ErrNoMatch = errors.New("die: no match")

// ErrMalformedShape reports a Die whose structure doesn't match any
// of the recognized compiler-emitted shapes, e.g. a struct tagged as
// a growable vector that is missing its length field.
var ErrMalformedShape = errors.New("die: malformed shape")

// Parser extracts a T from a Die, or fails. Parsers never mutate the
// context; composing them never touches the underlying dwarf.Reader
// outside of the call it's currently servicing.
type Parser[T any] func(ctx *Context, d Die) (T, error)

// Name extracts DW_AT_name.
func Name() Parser[string] {
	return Attr[string](dwarf.AttrName)
}

// Attr extracts a single attribute, type-asserting its value to T.
// Fails with ErrNoMatch if the attribute is absent or of a different
// dynamic type than T.
func Attr[T any](attr dwarf.Attr) Parser[T] {
	return func(ctx *Context, d Die) (T, error) {
		var zero T
		entry, err := ctx.Entry(d)
		if err != nil {
			return zero, err
		}
		field := entry.AttrField(attr)
		if field == nil {
			return zero, utils.MakeError(ErrNoMatch, "attribute %v absent", attr)
		}
		v, ok := field.Val.(T)
		if !ok {
			return zero, utils.MakeError(ErrNoMatch, "attribute %v has unexpected type %T", attr, field.Val)
		}
		return v, nil
	}
}

// EntryType follows DW_AT_type to the referenced Die, the single most
// common edge walked while resolving a type layout.
func EntryType() Parser[Die] {
	return func(ctx *Context, d Die) (Die, error) {
		entry, err := ctx.Entry(d)
		if err != nil {
			return Die{}, err
		}
		off, ok := entry.Val(dwarf.AttrType).(dwarf.Offset)
		if !ok {
			return Die{}, utils.MakeError(ErrNoMatch, "DW_AT_type absent")
		}
		return Die{CU: d.CU, Offset: off}, nil
	}
}

// SectionOffset returns a Die's own section-relative offset, the
// stable key used to build Alias placeholders while breaking
// self-referential type cycles.
func SectionOffset() Parser[dwarf.Offset] {
	return func(ctx *Context, d Die) (dwarf.Offset, error) {
		return d.Offset, nil
	}
}

// DataMemberOffset extracts DW_AT_data_member_location as a constant
// byte offset. Locations expressed as DWARF expressions (rare outside
// of virtual-inheritance base-class members) are not supported and
// return ErrNoMatch.
func DataMemberOffset() Parser[uint64] {
	return func(ctx *Context, d Die) (uint64, error) {
		entry, err := ctx.Entry(d)
		if err != nil {
			return 0, err
		}
		field := entry.AttrField(dwarf.AttrDataMemberLoc)
		if field == nil {
			return 0, utils.MakeError(ErrNoMatch, "DW_AT_data_member_location absent")
		}
		switch v := field.Val.(type) {
		case int64:
			return uint64(v), nil
		case uint64:
			return v, nil
		default:
			return 0, utils.MakeError(ErrNoMatch, "DW_AT_data_member_location is an expression, not a constant")
		}
	}
}

// IsMember reports whether d is a DW_TAG_member with the given name.
func IsMember(name string) Parser[bool] {
	return func(ctx *Context, d Die) (bool, error) {
		tag, err := ctx.Tag(d)
		if err != nil {
			return false, err
		}
		if tag != dwarf.TagMember {
			return false, nil
		}
		n, err := Name()(ctx, d)
		return err == nil && n == name, nil
	}
}

// IsMemberTag reports whether d carries the given tag at all,
// regardless of name; used by slot predicates that only care about
// shape (e.g. "the one and only template-parameter child").
func IsMemberTag(tag dwarf.Tag) Parser[bool] {
	return func(ctx *Context, d Die) (bool, error) {
		t, err := ctx.Tag(d)
		if err != nil {
			return false, err
		}
		return t == tag, nil
	}
}

// Generic follows a DW_TAG_template_type_parameter child by name to
// its referenced type Die, e.g. resolving the `T` in `Vec<T>`.
func Generic(name string) Parser[Die] {
	return func(ctx *Context, d Die) (Die, error) {
		children, err := ctx.Children(d)
		if err != nil {
			return Die{}, err
		}
		for _, c := range children {
			tag, err := ctx.Tag(c)
			if err != nil || tag != dwarf.TagTemplateTypeParameter {
				continue
			}
			n, err := Name()(ctx, c)
			if err != nil || n != name {
				continue
			}
			return EntryType()(ctx, c)
		}
		return Die{}, utils.MakeError(ErrNoMatch, "no template parameter named %q", name)
	}
}

// MemberByTag returns the first child carrying the given tag.
func MemberByTag(tag dwarf.Tag) Parser[Die] {
	return func(ctx *Context, d Die) (Die, error) {
		children, err := ctx.Children(d)
		if err != nil {
			return Die{}, err
		}
		for _, c := range children {
			t, err := ctx.Tag(c)
			if err == nil && t == tag {
				return c, nil
			}
		}
		return Die{}, utils.MakeError(ErrNoMatch, "no child with tag %v", tag)
	}
}

// Identity returns d unchanged; useful as the base case of a chain
// built with Then.
func Identity() Parser[Die] {
	return func(ctx *Context, d Die) (Die, error) { return d, nil }
}

// And runs two parsers over the same Die and pairs their results.
// Both must succeed.
func And[A, B any](p1 Parser[A], p2 Parser[B]) Parser[utils.Pair[A, B]] {
	return func(ctx *Context, d Die) (utils.Pair[A, B], error) {
		a, err := p1(ctx, d)
		if err != nil {
			return utils.Pair[A, B]{}, err
		}
		b, err := p2(ctx, d)
		if err != nil {
			return utils.Pair[A, B]{}, err
		}
		return utils.MakePair(a, b), nil
	}
}

// Then navigates with p1 and continues parsing from the resulting Die
// with p2, e.g. EntryType() followed by a layout resolver.
func Then[B any](p1 Parser[Die], p2 Parser[B]) Parser[B] {
	return func(ctx *Context, d Die) (B, error) {
		var zero B
		next, err := p1(ctx, d)
		if err != nil {
			return zero, err
		}
		return p2(ctx, next)
	}
}

// MapParser transforms a successful result, e.g. turning a raw offset
// into a typed ID.
func MapParser[A, B any](p Parser[A], f func(A) B) Parser[B] {
	return func(ctx *Context, d Die) (B, error) {
		var zero B
		a, err := p(ctx, d)
		if err != nil {
			return zero, err
		}
		return f(a), nil
	}
}

// MapRes transforms a successful result through a function that can
// itself fail, e.g. validating a discriminant value is in range.
func MapRes[A, B any](p Parser[A], f func(A) (B, error)) Parser[B] {
	return func(ctx *Context, d Die) (B, error) {
		var zero B
		a, err := p(ctx, d)
		if err != nil {
			return zero, err
		}
		return f(a)
	}
}

// WithContext wraps a parser's failure with a human-readable message
// naming the shape being attempted, without losing the original error
// for errors.Is/As.
func WithContext[T any](p Parser[T], msg string) Parser[T] {
	return func(ctx *Context, d Die) (T, error) {
		v, err := p(ctx, d)
		if err != nil {
			return v, fmt.Errorf("%s: %w", msg, err)
		}
		return v, nil
	}
}

// Filter runs p and turns a no-match failure into a nil result rather
// than propagating the error, for "this shape is optional" uses like
// probing whether a struct happens to carry a niche-optimized enum
// discriminant.
func Filter[T any](p Parser[T]) Parser[*T] {
	return func(ctx *Context, d Die) (*T, error) {
		v, err := p(ctx, d)
		if err != nil {
			if errors.Is(err, ErrNoMatch) {
				return nil, nil
			}
			return nil, err
		}
		return &v, nil
	}
}

// erased is the type-erased form of a Parser[T], used by All to work
// around the lack of variadic generics: each parser in the list can
// carry its own T, and the caller recovers concrete types with Get.
type erased func(ctx *Context, d Die) (any, error)

// Erase adapts a Parser[T] into its type-erased form.
func Erase[T any](p Parser[T]) erased {
	return func(ctx *Context, d Die) (any, error) {
		return p(ctx, d)
	}
}

// Results is the untyped output of All; retrieve each slot's concrete
// value with Get.
type Results []any

// Get type-asserts the i-th result of a Results slice back to T. It
// panics on a mismatched index or type, since a mismatch here is
// always a programmer error in how All was called, not a malformed
// debug-info condition.
func Get[T any](r Results, i int) T {
	return r[i].(T)
}

// All runs every parser against the same Die, in order, failing on
// the first error. This is the building block All/parse_children
// style combinators need where each sub-parser produces a different
// type and Go generics can't express a variadic type list directly.
func All(ctx *Context, d Die, parsers ...erased) (Results, error) {
	results := make(Results, len(parsers))
	for i, p := range parsers {
		v, err := p(ctx, d)
		if err != nil {
			return nil, err
		}
		results[i] = v
	}
	return results, nil
}

// ForEachChild applies p to every direct child of d, discarding
// children p fails to parse.
func ForEachChild[T any](p Parser[T]) Parser[[]T] {
	return func(ctx *Context, d Die) ([]T, error) {
		children, err := ctx.Children(d)
		if err != nil {
			return nil, err
		}
		out := make([]T, 0, len(children))
		for _, c := range children {
			v, err := p(ctx, c)
			if err != nil {
				continue
			}
			out = append(out, v)
		}
		return out, nil
	}
}

// TryForEachChild applies an Option-style parser (one built with
// Filter) to every direct child, collecting only the non-nil results.
func TryForEachChild[T any](p Parser[*T]) Parser[[]T] {
	return func(ctx *Context, d Die) ([]T, error) {
		children, err := ctx.Children(d)
		if err != nil {
			return nil, err
		}
		out := make([]T, 0, len(children))
		for _, c := range children {
			v, err := p(ctx, c)
			if err != nil {
				return nil, err
			}
			if v != nil {
				out = append(out, *v)
			}
		}
		return out, nil
	}
}
