package die

import (
	"errors"
	"fmt"

	"github.com/coredbg/coredbg/pkg/utils"
)

// Slot is one named position a parent's children are matched against.
// Accept inspects a child and either claims it (returning its parsed
// value and true) or declines it (false, no error) so the next slot
// gets a chance. An error aborts the whole ParseChildren call.
type Slot struct {
	Name   string
	Accept func(ctx *Context, child Die) (any, bool, error)
}

// SlotOf builds a Slot from a Parser[T]: a child is claimed by this
// slot if p succeeds on it (an ErrNoMatch failure just means "not
// this slot", not a hard parse error).
func SlotOf[T any](name string, p Parser[T]) Slot {
	return Slot{
		Name: name,
		Accept: func(ctx *Context, child Die) (any, bool, error) {
			v, err := p(ctx, child)
			if err != nil {
				if errors.Is(err, ErrNoMatch) {
					return nil, false, nil
				}
				return nil, false, err
			}
			return v, true, nil
		},
	}
}

// ParseChildren walks every direct child of parent exactly once,
// offering it to each slot in declaration order and committing it to
// the first slot that accepts it. Every slot must accept at least one
// child or the whole parse fails: this is what lets a struct-shape
// resolver recognize "a growable vector has a pointer member and a
// length member, in any field order" while still rejecting a struct
// that's missing one of them.
func ParseChildren(ctx *Context, parent Die, slots []Slot) ([]any, error) {
	children, err := ctx.Children(parent)
	if err != nil {
		return nil, err
	}

	results := make([]any, len(slots))
	matched := make([]bool, len(slots))

	for _, child := range children {
		for i, slot := range slots {
			v, ok, err := slot.Accept(ctx, child)
			if err != nil {
				return nil, fmt.Errorf("die: slot %q: %w", slot.Name, err)
			}
			if ok {
				results[i] = v
				matched[i] = true
				break
			}
		}
	}

	for i, slot := range slots {
		if !matched[i] {
			return nil, utils.MakeError(ErrMalformedShape, "slot %q matched no child", slot.Name)
		}
	}

	return results, nil
}
