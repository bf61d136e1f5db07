package types

import "strings"

// ContainerKind identifies which standard-container combinator a
// structure_type Die's name routes to.
type ContainerKind int

const (
	ContainerNone ContainerKind = iota
	ContainerGrowableVector
	ContainerHashMap
	ContainerBTreeMap
	ContainerOption
	ContainerResult
)

// ContainerShape binds a compiler-normalized leaf-name pattern to a
// container kind and the member-path the combinator for that kind
// should walk to find the container's internals. Keeping this as a
// data table rather than inline logic means a compiler-version field
// rename is a table edit, not a parser rewrite — the same descriptor
// idiom used elsewhere in this codebase for table-driven shape
// recognition.
type ContainerShape struct {
	Kind ContainerKind

	// LeafNames matches the TypeName leaf, ignoring case, e.g. "Vec", "String".
	LeafNames []string

	// BufPath is the nested member path from the outer value down to
	// the raw data pointer, used by the growable-vector combinator,
	// e.g. "buf" -> "inner" -> "ptr".
	BufPath []string
	// LenField is the member holding the element count, a sibling of
	// the path root.
	LenField string

	// TablePath is the nested member path down to the raw hash table
	// struct, used by the hash-map combinator, e.g. "table".
	TablePath []string
	// CtrlField, BucketMaskField, ItemsField name the hash-map table's
	// control-byte array, capacity mask, and live-item-count members.
	CtrlField       string
	BucketMaskField string
	ItemsField      string

	// RootField names the ordered-map's root-node member.
	RootField string
}

// DefaultContainerShapes is the built-in recognition table for the
// well-known standard library containers. A caller
// targeting a different compiler version's internal layout can
// extend or override entries without touching the resolver.
func DefaultContainerShapes() []ContainerShape {
	return []ContainerShape{
		{
			Kind:      ContainerGrowableVector,
			LeafNames: []string{"Vec"},
			BufPath:   []string{"buf", "inner", "ptr"},
			LenField:  "len",
		},
		{
			Kind:            ContainerHashMap,
			LeafNames:       []string{"HashMap"},
			TablePath:       []string{"base", "table"},
			CtrlField:       "ctrl",
			BucketMaskField: "bucket_mask",
			ItemsField:      "items",
		},
		{
			Kind:      ContainerBTreeMap,
			LeafNames: []string{"BTreeMap"},
			RootField: "root",
		},
		{
			Kind:      ContainerOption,
			LeafNames: []string{"Option"},
		},
		{
			Kind:      ContainerResult,
			LeafNames: []string{"Result"},
		},
	}
}

// Match finds the shape whose LeafNames contains leaf, if any.
func Match(shapes []ContainerShape, leaf string) (ContainerShape, bool) {
	for _, s := range shapes {
		for _, name := range s.LeafNames {
			if strings.EqualFold(name, leaf) {
				return s, true
			}
		}
	}
	return ContainerShape{}, false
}
