package types

import (
	"github.com/coredbg/coredbg/pkg/dbg/die"
)

// inFlight tracks the (compilation unit, die offset) pairs currently
// being deep-resolved, so a self-referential pointer type terminates
// in a finite Layout instead of recursing forever. A revisited key is
// left as an Alias rather than expanded again.
type inFlight map[die.Die]bool

// ResolveDeep rewrites every Alias reachable from root into its
// target's Layout, recursing until no more Aliases remain or a cycle
// is detected. The returned Layout never exposes an Alias as a final
// answer except at the one Die where a cycle was broken.
func (r *Resolver) ResolveDeep(root Layout) (Layout, error) {
	return r.resolveDeep(root, inFlight{})
}

func (r *Resolver) resolveAlias(a Alias, stack inFlight) (Layout, error) {
	d := die.Die{CU: a.CU, Offset: a.Offset}
	if stack[d] {
		return a, nil
	}
	stack[d] = true
	defer delete(stack, d)

	shallow, err := r.ResolveShallow(d)
	if err != nil {
		return nil, err
	}
	return r.resolveDeep(shallow, stack)
}

func (r *Resolver) resolveDeep(l Layout, stack inFlight) (Layout, error) {
	switch v := l.(type) {
	case nil:
		return nil, nil
	case Alias:
		return r.resolveAlias(v, stack)
	case Primitive:
		return v, nil
	case Pointer:
		inner, err := r.resolveNested(v.Inner, stack)
		if err != nil {
			return nil, err
		}
		v.Inner = inner
		return v, nil
	case Reference:
		inner, err := r.resolveNested(v.Inner, stack)
		if err != nil {
			return nil, err
		}
		v.Inner = inner
		return v, nil
	case Array:
		inner, err := r.resolveNested(v.Inner, stack)
		if err != nil {
			return nil, err
		}
		v.Inner = inner
		if size, ok := r.sizeOf(inner); ok {
			v.Stride = size
		}
		return v, nil
	case Struct:
		fields := make([]Field, len(v.Fields))
		for i, f := range v.Fields {
			resolved, err := r.resolveNested(f.Type, stack)
			if err != nil {
				return nil, err
			}
			fields[i] = Field{Name: f.Name, Offset: f.Offset, Type: resolved}
		}
		v.Fields = fields
		return v, nil
	case Tuple:
		elems := make([]Layout, len(v.Elements))
		for i, e := range v.Elements {
			resolved, err := r.resolveNested(e, stack)
			if err != nil {
				return nil, err
			}
			elems[i] = resolved
		}
		v.Elements = elems
		return v, nil
	case Enum:
		discr, err := r.resolveDiscriminant(v.Discriminant, stack)
		if err != nil {
			return nil, err
		}
		v.Discriminant = discr
		variants := make([]Variant, len(v.Variants))
		for i, variant := range v.Variants {
			payload, err := r.resolveNested(variant.Payload, stack)
			if err != nil {
				return nil, err
			}
			variants[i] = Variant{Name: variant.Name, TagValue: variant.TagValue, Payload: payload}
		}
		v.Variants = variants
		return v, nil
	case Option:
		some, err := r.resolveNested(v.Some, stack)
		if err != nil {
			return nil, err
		}
		v.Some = some
		discr, err := r.resolveDiscriminant(v.Discr, stack)
		if err != nil {
			return nil, err
		}
		v.Discr = discr
		return v, nil
	case Result:
		ok, err := r.resolveNested(v.Ok, stack)
		if err != nil {
			return nil, err
		}
		errLayout, err := r.resolveNested(v.Err, stack)
		if err != nil {
			return nil, err
		}
		v.Ok, v.Err = ok, errLayout
		discr, err := r.resolveDiscriminant(v.Discr, stack)
		if err != nil {
			return nil, err
		}
		v.Discr = discr
		return v, nil
	case GrowableVector:
		inner, err := r.resolveNested(v.Inner, stack)
		if err != nil {
			return nil, err
		}
		v.Inner = inner
		return v, nil
	case HashMap:
		key, err := r.resolveNested(v.Key, stack)
		if err != nil {
			return nil, err
		}
		val, err := r.resolveNested(v.Value, stack)
		if err != nil {
			return nil, err
		}
		v.Key, v.Value = key, val
		return v, nil
	case BTreeMap:
		key, err := r.resolveNested(v.Key, stack)
		if err != nil {
			return nil, err
		}
		val, err := r.resolveNested(v.Value, stack)
		if err != nil {
			return nil, err
		}
		v.Key, v.Value = key, val
		return v, nil
	default:
		return l, nil
	}
}

// resolveNested resolves a possibly-nil nested Layout. A nil Layout
// means the shallow pass had nothing to alias (e.g. a void pointer)
// and is passed through unchanged.
func (r *Resolver) resolveNested(l Layout, stack inFlight) (Layout, error) {
	if l == nil {
		return nil, nil
	}
	return r.resolveDeep(l, stack)
}

func (r *Resolver) resolveDiscriminant(d Discriminant, stack inFlight) (Discriminant, error) {
	t, err := r.resolveNested(d.Type, stack)
	if err != nil {
		return Discriminant{}, err
	}
	d.Type = t
	return d, nil
}

// sizeOf returns a resolved Layout's byte size, when it's statically
// known, for computing an Array's Stride. Pointer and Reference have
// no byte_size of their own in the DIE tree; their size is the
// target's address width.
func (r *Resolver) sizeOf(l Layout) (int, bool) {
	switch v := l.(type) {
	case Primitive:
		return v.Size, true
	case Pointer:
		return r.addrSize, true
	case Reference:
		return r.addrSize, true
	default:
		return 0, false
	}
}
