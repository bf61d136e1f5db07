package symbols

import (
	"debug/dwarf"
	"log/slog"
	"strings"

	"github.com/coredbg/coredbg/pkg/dbg/cu"
	"github.com/coredbg/coredbg/pkg/dbg/die"
	"github.com/coredbg/coredbg/pkg/utils"
)

// FunctionIndexEntry is one resolved function: its qualified name, its
// declared address range, and the Dies needed to resolve the rest of
// its signature and variables on demand.
type FunctionIndexEntry struct {
	Name          SymbolName
	LinkageName   string
	LowPC, HighPC uint64
	Declaration   die.Die
	Specification *die.Die
}

// Demangler turns a mangled linkage name into a parsed SymbolName. It
// is a pluggable seam; this package never demangles names itself.
type Demangler func(mangled string) (SymbolName, bool)

// SymbolIndex maps a hash-stripped lookup key to the function it
// names. Built once per DebugFile, read-only thereafter.
type SymbolIndex struct {
	byLookupKey map[string]FunctionIndexEntry
}

// BuildSymbolIndex walks every target-language compilation unit's
// subprogram Dies and indexes them by demangled, hash-stripped name.
// Units flagged as foreign (cu.LanguageOther) are skipped from
// structural indexing.
func BuildSymbolIndex(ctx *die.Context, index *cu.Index, demangle Demangler, logger *slog.Logger) *SymbolIndex {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	idx := &SymbolIndex{byLookupKey: make(map[string]FunctionIndexEntry)}

	for _, unit := range index.Units {
		if unit.Language != cu.LanguageTarget {
			continue
		}

		root := die.Die{Offset: unit.ID.Offset}
		err := die.Walk(ctx, root, func(d die.Die) (bool, error) {
			tag, err := ctx.Tag(d)
			if err != nil {
				return false, nil
			}
			if tag != dwarf.TagSubprogram {
				return true, nil
			}

			entry, err := buildEntry(ctx, d, demangle)
			if err != nil {
				logger.Warn("skipping malformed subprogram", slog.String("error", err.Error()))
				return false, nil
			}
			if entry == nil {
				return false, nil
			}
			idx.byLookupKey[entry.Name.LookupKey()] = *entry
			return false, nil
		})
		if err != nil {
			logger.Warn("error walking compilation unit for symbol index", slog.String("error", err.Error()))
		}
	}

	return idx
}

func buildEntry(ctx *die.Context, d die.Die, demangle Demangler) (*FunctionIndexEntry, error) {
	entry, err := ctx.Entry(d)
	if err != nil {
		return nil, err
	}

	rawName, _ := entry.Val(dwarf.AttrName).(string)
	linkageName, _ := entry.Val(dwarf.AttrLinkageName).(string)

	if isKnownBadName(rawName) {
		return nil, nil
	}

	var name SymbolName
	switch {
	case linkageName != "" && demangle != nil:
		if parsed, ok := demangle(linkageName); ok {
			name = parsed
		} else {
			name = ParseSymbolName(linkageName)
		}
	case linkageName != "":
		name = ParseSymbolName(linkageName)
	default:
		name = ParseSymbolName(rawName)
	}

	low, high, _ := readPCRange(entry)

	var spec *die.Die
	if specOff, ok := entry.Val(dwarf.AttrSpecification).(dwarf.Offset); ok {
		s := die.Die{CU: d.CU, Offset: specOff}
		spec = &s
	}

	return &FunctionIndexEntry{
		Name:          name,
		LinkageName:   linkageName,
		LowPC:         low,
		HighPC:        high,
		Declaration:   d,
		Specification: spec,
	}, nil
}

func readPCRange(entry *dwarf.Entry) (low, high uint64, ok bool) {
	lowVal, hasLow := entry.Val(dwarf.AttrLowpc).(uint64)
	if !hasLow {
		return 0, 0, false
	}
	switch h := entry.Val(dwarf.AttrHighpc).(type) {
	case uint64:
		return lowVal, h, true
	case int64:
		return lowVal, lowVal + uint64(h), true
	default:
		return lowVal, lowVal, true
	}
}

// isKnownBadName recognizes names that are never meaningfully
// callable: an empty DW_AT_name and compiler-emitted
// closure-environment markers ("{{closure}}", "{closure...").
func isKnownBadName(name string) bool {
	return name == "" || strings.Contains(name, "{{closure}}") || strings.Contains(name, "{closure")
}

// Lookup finds a function by name, stripping any compiler-hash suffix
// the caller included.
func (idx *SymbolIndex) Lookup(name string) (FunctionIndexEntry, bool) {
	key := ParseSymbolName(name).LookupKey()
	entry, ok := idx.byLookupKey[key]
	return entry, ok
}

// ModuleIndex maps any Die's byte offset, within one compilation
// unit, to its enclosing module path (the nested namespace names
// containing it). Built once per compilation unit.
type ModuleIndex struct {
	tree *utils.IntervalTree[[]string]
}

// BuildModuleIndex walks a compilation unit, recording the byte-offset
// range spanned by each DW_TAG_namespace subtree against its
// accumulated module path.
func BuildModuleIndex(ctx *die.Context, unitRoot die.Die) (*ModuleIndex, error) {
	var entries []utils.IntervalEntry[[]string]

	var walk func(d die.Die, path []string) error
	walk = func(d die.Die, path []string) error {
		children, err := ctx.Children(d)
		if err != nil {
			return err
		}
		for _, c := range children {
			tag, err := ctx.Tag(c)
			if err != nil {
				continue
			}
			if tag != dwarf.TagNamespace {
				continue
			}
			name, _ := die.Name()(ctx, c)
			nsPath := append(append([]string{}, path...), name)

			low, high, err := subtreeOffsetRange(ctx, c)
			if err == nil {
				entries = append(entries, utils.IntervalEntry[[]string]{
					Interval: utils.Interval{Low: low, High: high},
					Value:    nsPath,
				})
			}
			if err := walk(c, nsPath); err != nil {
				return err
			}
		}
		return nil
	}

	if err := walk(unitRoot, nil); err != nil {
		return nil, err
	}

	return &ModuleIndex{tree: utils.NewIntervalTree(entries)}, nil
}

// subtreeOffsetRange approximates a namespace Die's span as
// [own-offset, own-offset+1) union every descendant's offset, which
// is enough to build a correct interval since sibling subtrees in a
// pre-order DWARF encoding never interleave: every descendant offset
// of one child falls strictly before the next sibling's offset.
func subtreeOffsetRange(ctx *die.Context, d die.Die) (low, high uint64, err error) {
	low = uint64(d.Offset)
	high = low + 1
	err = die.Walk(ctx, d, func(child die.Die) (bool, error) {
		if uint64(child.Offset) >= high {
			high = uint64(child.Offset) + 1
		}
		return true, nil
	})
	return low, high, err
}

// ModulePath returns the module path containing the Die at offset, or
// nil if it lies outside every indexed namespace (i.e. it's at the
// compilation unit's top level).
func (m *ModuleIndex) ModulePath(offset dwarf.Offset) []string {
	path, ok := m.tree.Find(uint64(offset))
	if !ok {
		return nil
	}
	return path
}
