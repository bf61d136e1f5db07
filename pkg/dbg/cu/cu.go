// Package cu enumerates compilation units,
// filters by source language, and records each unit's address range
// and referenced source files.
package cu

import (
	"debug/dwarf"
	"log/slog"

	"github.com/coredbg/coredbg/pkg/utils"
)

// Language identifies a compilation unit's declared DWARF source
// language. Only Target units get full structural indexing (types,
// symbols); Other units are still visible to address-level lookups
// so that stack frames through foreign code (e.g. a C runtime) can
// be located by line.
type Language int

const (
	LanguageUnknown Language = iota
	LanguageTarget
	LanguageOther
)

// TargetLanguages is the set of DWARF DW_LANG_* constants considered
// "the target language" for structural indexing. Populated by the
// caller at Index time, since the compiled-from language is a
// deployment choice, not a core constant.
type TargetLanguages map[int64]struct{}

// NewTargetLanguages builds a TargetLanguages set from DWARF language
// codes (e.g. dwarf.AttrLanguage values such as 0x1c for DW_LANG_Rust).
func NewTargetLanguages(codes ...int64) TargetLanguages {
	set := make(TargetLanguages, len(codes))
	for _, c := range codes {
		set[c] = struct{}{}
	}
	return set
}

func (t TargetLanguages) contains(code int64) bool {
	_, ok := t[code]
	return ok
}

// ID is a stable key into one compilation unit: (debug file identity
// implied by the Index that produced it, unit-section offset).
type ID struct {
	Offset dwarf.Offset
}

// Unit holds the header-level facts about a compilation unit gathered
// during the initial linear scan. Navigating into the tree (beyond
// these header attributes) goes through package die.
type Unit struct {
	ID       ID
	Language Language
	LangCode int64

	Name      string
	CompDir   string
	LowPC     uint64
	HighPC    uint64 // exclusive
	HasRanges bool

	// LineFiles is the file table referenced by this unit's line
	// program, in DWARF file-index order as the line reader reports it.
	// An undefined table entry (such as index 0 before DWARF5, where
	// file indices start at 1) is kept as an empty string.
	LineFiles []string
}

// AddressRange returns the unit's declared [low, high) range, read
// from DW_AT_low_pc/DW_AT_high_pc only. DW_AT_ranges is not read: a
// unit described by it alone reports (0, 0).
func (u Unit) AddressRange() (low, high uint64) {
	return u.LowPC, u.HighPC
}

// Index is the full set of compilation units discovered in one
// DebugFile, built once by Build and thereafter read-only.
type Index struct {
	Units []Unit
}

// Build scans the unit header stream linearly. A read error is logged
// and ends the scan: the units gathered before it are returned, and
// units after it are not visited. No unit failure is fatal to Build.
func Build(dwarfData *dwarf.Data, targets TargetLanguages, logger *slog.Logger) *Index {
	idx := &Index{}
	if dwarfData == nil {
		return idx
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	r := dwarfData.Reader()
	for {
		entry, err := r.Next()
		if err != nil {
			logger.Warn("malformed compilation unit header, skipping remaining units", slog.String("error", err.Error()))
			break
		}
		if entry == nil {
			break
		}
		if entry.Tag != dwarf.TagCompileUnit {
			// Reader.Next walks every entry, not just CU roots, when
			// called this way only if we don't skip children; but at
			// top-level iteration before the first CU's children are
			// consumed, only CU tags appear here because we always
			// call r.SkipChildren below.
			continue
		}

		unit, err := parseUnit(dwarfData, r, entry, targets)
		if err != nil {
			logger.Warn("malformed compilation unit, skipping", slog.String("error", err.Error()))
			r.SkipChildren()
			continue
		}

		idx.Units = append(idx.Units, unit)
		r.SkipChildren()
	}

	return idx
}

func parseUnit(dwarfData *dwarf.Data, r *dwarf.Reader, entry *dwarf.Entry, targets TargetLanguages) (Unit, error) {
	unit := Unit{ID: ID{Offset: entry.Offset}}

	if name, ok := entry.Val(dwarf.AttrName).(string); ok {
		unit.Name = name
	}
	if dir, ok := entry.Val(dwarf.AttrCompDir).(string); ok {
		unit.CompDir = dir
	}
	if lang, ok := entry.Val(dwarf.AttrLanguage).(int64); ok {
		unit.LangCode = lang
		if targets.contains(lang) {
			unit.Language = LanguageTarget
		} else {
			unit.Language = LanguageOther
		}
	} else {
		unit.Language = LanguageOther
	}

	low, high, hasRanges := readPCRange(entry)
	unit.LowPC, unit.HighPC, unit.HasRanges = low, high, hasRanges

	unit.LineFiles = readLineFiles(dwarfData, entry)

	return unit, nil
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

func readLineFiles(dwarfData *dwarf.Data, entry *dwarf.Entry) []string {
	lr, err := dwarfData.LineReader(entry)
	if err != nil || lr == nil {
		return nil
	}
	files := lr.Files()
	names := make([]string, 0, len(files))
	for _, f := range files {
		if f == nil {
			names = append(names, "")
			continue
		}
		names = append(names, f.Name)
	}
	return names
}

// Roots returns the IDs of every discovered compilation unit.
func (idx *Index) Roots() []ID {
	return utils.Map(idx.Units, func(u Unit) ID { return u.ID })
}

// Lookup finds a unit by ID. The second return value is false if no
// such unit was indexed (e.g. the header failed to parse).
func (idx *Index) Lookup(id ID) (Unit, bool) {
	for _, u := range idx.Units {
		if u.ID == id {
			return u, true
		}
	}
	return Unit{}, false
}

// SourceFiles returns the canonical source file names referenced by a
// unit's line program.
func (idx *Index) SourceFiles(id ID) []string {
	u, ok := idx.Lookup(id)
	if !ok {
		return nil
	}
	return u.LineFiles
}

// SourceLanguage returns whether a unit is written in the target
// language, some other language, or unknown (unit not found).
func (idx *Index) SourceLanguage(id ID) Language {
	u, ok := idx.Lookup(id)
	if !ok {
		return LanguageUnknown
	}
	return u.Language
}
