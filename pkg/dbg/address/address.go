// Package address builds a bidirectional
// mapping between machine addresses and {file, line, column,
// function}, from each compilation unit's line-number program and
// subprogram ranges.
package address

import (
	"debug/dwarf"
	"errors"
	"io"
	"log/slog"
	"sort"

	"github.com/coredbg/coredbg/pkg/dbg/cu"
	"github.com/coredbg/coredbg/pkg/dbg/die"
	"github.com/coredbg/coredbg/pkg/utils"
)

// ResolvedLocation is the answer to an address-to-source query: the
// innermost enclosing function's name (empty if none is known) plus
// the source position.
type ResolvedLocation struct {
	Function string
	File     string
	Line     int
	Column   int
}

// PathRemap canonicalizes a raw source path observed in debug info,
// e.g. applying the caller's (source-prefix, replacement-prefix)
// table. The identity function is a valid PathRemap.
type PathRemap func(path string) string

// LineRow is one row of a decoded line-number program.
type LineRow struct {
	PC     uint64
	File   string
	Line   int
	Column int
}

type functionRange struct {
	Low, High uint64
	Name      string
}

type unitEntry struct {
	rows      *utils.IntervalTree[LineRow]
	functions []functionRange
}

// AddressTree is the aggregate, top-level interval index built from
// every compilation unit's line-number program: address lookups
// resolve in O(log units + log rows).
type AddressTree struct {
	units  *utils.IntervalTree[*unitEntry]
	byFile map[string][]LineRow
}

// Build decodes every compilation unit's line-number program and
// subprogram address ranges into one AddressTree. Units whose source
// language isn't the target language are still included: stack frames
// through foreign code must still resolve by line.
func Build(ctx *die.Context, index *cu.Index, remap PathRemap, logger *slog.Logger) (*AddressTree, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if remap == nil {
		remap = func(p string) string { return p }
	}

	var unitEntries []utils.IntervalEntry[*unitEntry]
	byFile := make(map[string][]LineRow)

	for _, unit := range index.Units {
		if !unit.HasRanges {
			continue
		}

		root := die.Die{Offset: unit.ID.Offset}
		entry, err := ctx.Entry(root)
		if err != nil {
			logger.Warn("skipping unit with unreadable root entry", slog.String("error", err.Error()))
			continue
		}

		rows, rowIntervals, err := decodeLineProgram(ctx.Dwarf, entry, remap)
		if err != nil {
			logger.Warn("skipping unit with malformed line program", slog.String("error", err.Error()))
			continue
		}

		functions, err := collectFunctions(ctx, root)
		if err != nil {
			logger.Warn("error collecting function ranges", slog.String("error", err.Error()))
		}

		ue := &unitEntry{
			rows:      utils.NewIntervalTree(rowIntervals),
			functions: functions,
		}
		unitEntries = append(unitEntries, utils.IntervalEntry[*unitEntry]{
			Interval: utils.Interval{Low: unit.LowPC, High: unit.HighPC},
			Value:    ue,
		})

		for _, r := range rows {
			byFile[r.File] = append(byFile[r.File], r)
		}
	}

	for file := range byFile {
		rows := byFile[file]
		sort.Slice(rows, func(i, j int) bool {
			if rows[i].Line != rows[j].Line {
				return rows[i].Line < rows[j].Line
			}
			return rows[i].PC < rows[j].PC
		})
		byFile[file] = rows
	}

	return &AddressTree{
		units:  utils.NewIntervalTree(unitEntries),
		byFile: byFile,
	}, nil
}

func decodeLineProgram(dwarfData *dwarf.Data, cuEntry *dwarf.Entry, remap PathRemap) ([]LineRow, []utils.IntervalEntry[LineRow], error) {
	lr, err := dwarfData.LineReader(cuEntry)
	if err != nil {
		return nil, nil, err
	}
	if lr == nil {
		return nil, nil, nil
	}

	var entries []dwarf.LineEntry
	for {
		var le dwarf.LineEntry
		if err := lr.Next(&le); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, nil, err
		}
		entries = append(entries, le)
	}

	return buildRows(entries, remap)
}

// buildRows turns a decoded line-number program into LineRows plus the
// [address, next-address) intervals between consecutive rows of the
// same sequence. A row marked EndSequence is a sequence terminator,
// not a real code position: it closes out the previous row's interval
// but never starts one of its own.
func buildRows(entries []dwarf.LineEntry, remap PathRemap) ([]LineRow, []utils.IntervalEntry[LineRow], error) {
	var rows []LineRow
	var intervals []utils.IntervalEntry[LineRow]
	for i, e := range entries {
		if e.EndSequence {
			continue
		}
		file := ""
		if e.File != nil {
			file = remap(e.File.Name)
		}
		row := LineRow{PC: e.Address, File: file, Line: e.Line, Column: e.Column}
		rows = append(rows, row)

		if i+1 < len(entries) {
			intervals = append(intervals, utils.IntervalEntry[LineRow]{
				Interval: utils.Interval{Low: e.Address, High: entries[i+1].Address},
				Value:    row,
			})
		}
	}

	return rows, intervals, nil
}

// collectFunctions walks a unit looking for subprogram and
// inlined_subroutine Dies with a concrete address range.
// inlined_subroutine ranges are typically nested inside their
// enclosing subprogram's range; AddressToLocation prefers the
// tightest enclosing range, which naturally favors them without this
// package needing to track the nesting explicitly.
func collectFunctions(ctx *die.Context, root die.Die) ([]functionRange, error) {
	var functions []functionRange
	err := die.Walk(ctx, root, func(d die.Die) (bool, error) {
		tag, err := ctx.Tag(d)
		if err != nil {
			return false, nil
		}
		if tag != dwarf.TagSubprogram && tag != dwarf.TagInlinedSubroutine {
			return true, nil
		}

		entry, err := ctx.Entry(d)
		if err != nil {
			return true, nil
		}
		low, high, ok := pcRange(entry)
		if !ok {
			return true, nil
		}
		name, _ := entry.Val(dwarf.AttrName).(string)
		functions = append(functions, functionRange{Low: low, High: high, Name: name})
		return true, nil
	})
	return functions, err
}

func pcRange(entry *dwarf.Entry) (low, high uint64, ok bool) {
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

// AddressToLocation resolves a program-counter value to its source
// position and innermost enclosing function.
func (t *AddressTree) AddressToLocation(pc uint64) (ResolvedLocation, bool) {
	unit, ok := t.units.Find(pc)
	if !ok {
		return ResolvedLocation{}, false
	}
	row, ok := unit.rows.Find(pc)
	if !ok {
		return ResolvedLocation{}, false
	}
	return ResolvedLocation{
		Function: innermostFunction(unit.functions, pc),
		File:     row.File,
		Line:     row.Line,
		Column:   row.Column,
	}, true
}

func innermostFunction(functions []functionRange, pc uint64) string {
	best := ""
	bestWidth := uint64(0)
	haveBest := false
	for _, f := range functions {
		if pc < f.Low || pc >= f.High {
			continue
		}
		width := f.High - f.Low
		if !haveBest || width < bestWidth {
			best, bestWidth, haveBest = f.Name, width, true
		}
	}
	return best
}

// LocationToAddress finds the first instruction address for a source
// position. If column is non-nil, an exact column match on that line
// is preferred; otherwise the smallest address on that line is
// returned. If the exact line has no code (a declaration-only line
// the compiler elided), the next strictly greater line's first
// instruction is returned instead, matching standard debugger
// behavior.
func (t *AddressTree) LocationToAddress(file string, line int, column *int) (uint64, bool) {
	rows, ok := t.byFile[file]
	if !ok {
		return 0, false
	}

	i := sort.Search(len(rows), func(i int) bool { return rows[i].Line >= line })
	if i == len(rows) {
		return 0, false
	}
	targetLine := rows[i].Line

	if column != nil {
		for j := i; j < len(rows) && rows[j].Line == targetLine; j++ {
			if rows[j].Column == *column {
				return rows[j].PC, true
			}
		}
	}

	best := rows[i].PC
	for j := i + 1; j < len(rows) && rows[j].Line == targetLine; j++ {
		if rows[j].PC < best {
			best = rows[j].PC
		}
	}
	return best, true
}
