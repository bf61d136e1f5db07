// Package die is a small set of parser
// combinators that compose into typed extractors over Debug
// Information Entry trees. Every structural decode in the types,
// symbols, address, and variables packages is built from these
// primitives, so that recognizing a compiler-emitted shape stays
// declarative and resilient to field-ordering variation.
package die

import (
	"debug/dwarf"
	"fmt"

	"github.com/coredbg/coredbg/pkg/dbg/cu"
)

// Die is an opaque handle to a single node in a compilation unit's
// tree: (compilation unit, entry offset). It owns nothing; resolving
// it re-opens the underlying dwarf.Reader on demand, so a Die is cheap
// to pass and store.
type Die struct {
	CU     cu.ID
	Offset dwarf.Offset
}

// Context is the database handle threaded through every parser. It
// borrows the DWARF accessor; it does not own it.
type Context struct {
	Dwarf *dwarf.Data
}

// NewContext builds a parsing context over a DWARF accessor.
func NewContext(d *dwarf.Data) *Context {
	return &Context{Dwarf: d}
}

// Entry lazily re-opens the reader and returns the raw *dwarf.Entry a
// Die refers to. This is the one place every primitive in this
// package bottoms out at.
func (c *Context) Entry(d Die) (*dwarf.Entry, error) {
	if c.Dwarf == nil {
		return nil, fmt.Errorf("die: nil DWARF data")
	}
	r := c.Dwarf.Reader()
	r.Seek(d.Offset)
	entry, err := r.Next()
	if err != nil {
		return nil, fmt.Errorf("die: reading entry at %v: %w", d.Offset, err)
	}
	if entry == nil {
		return nil, fmt.Errorf("die: no entry at offset %v", d.Offset)
	}
	return entry, nil
}

// Children returns the direct children of a Die, in tree order. An
// entry with no Children flag set returns an empty, non-nil slice.
func (c *Context) Children(d Die) ([]Die, error) {
	if c.Dwarf == nil {
		return nil, fmt.Errorf("die: nil DWARF data")
	}
	r := c.Dwarf.Reader()
	r.Seek(d.Offset)

	parent, err := r.Next()
	if err != nil {
		return nil, fmt.Errorf("die: reading entry at %v: %w", d.Offset, err)
	}
	if parent == nil || !parent.Children {
		return []Die{}, nil
	}

	var children []Die
	for {
		child, err := r.Next()
		if err != nil {
			return nil, fmt.Errorf("die: reading children of %v: %w", d.Offset, err)
		}
		if child == nil || child.Tag == 0 {
			break
		}
		children = append(children, Die{CU: d.CU, Offset: child.Offset})
		if child.Children {
			r.SkipChildren()
		}
	}
	return children, nil
}

// Tag returns the DWARF tag of a Die, e.g. dwarf.TagStructType.
func (c *Context) Tag(d Die) (dwarf.Tag, error) {
	entry, err := c.Entry(d)
	if err != nil {
		return 0, err
	}
	return entry.Tag, nil
}
