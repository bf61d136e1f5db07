// Package loader memory-maps a binary,
// discovers any supplementary debug file it points to, and exposes its
// raw section bytes in the image's own byte order. Nothing above this package ever
// reads bytes off disk directly.
package loader

import (
	"bytes"
	"debug/dwarf"
	"debug/elf"
	"debug/macho"
	"debug/pe"
	"encoding/binary"
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/coredbg/coredbg/pkg/utils"
	mmap "github.com/edsrzf/mmap-go"
)

// ErrLoad is wrapped by every failure this package returns.
var ErrLoad = errors.New("loader: load error")

// ObjectFormat identifies which container format backs a DebugFile.
type ObjectFormat int

const (
	FormatUnknown ObjectFormat = iota
	FormatELF
	FormatMachO
	FormatPE
)

func (f ObjectFormat) String() string {
	switch f {
	case FormatELF:
		return "elf"
	case FormatMachO:
		return "macho"
	case FormatPE:
		return "pe"
	default:
		return "unknown"
	}
}

// DebugFile is an opaque handle identifying one memory-mapped object
// image plus any supplementary debug image resolved from it. It
// exclusively owns its memory mapping; every reader obtained from it
// borrows from that mapping and must not be used after Close.
type DebugFile struct {
	Path      string
	Format    ObjectFormat
	ByteOrder binary.ByteOrder
	AddrSize  int // bytes per address (4 or 8)

	dwarfData *dwarf.Data

	data mmap.MMap
	file *os.File

	// Supplementary is set when the image's debug data is split across
	// a companion file (.dSYM bundle, .dwo, GNU debuglink target).
	Supplementary *DebugFile

	closers []func() error
}

// Options configures Open.
type Options struct {
	// SupplementaryPath, if non-empty, overrides automatic discovery of
	// a split-debug companion file.
	SupplementaryPath string
	Logger            *slog.Logger
}

func (o *Options) logger() *slog.Logger {
	if o == nil || o.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return o.Logger
}

// Open memory-maps path and builds a DebugFile. A missing debug_info
// section is not an error: queries against it will simply return
// empty results.
func Open(path string, opts *Options) (*DebugFile, error) {
	logger := opts.logger()

	f, err := os.Open(path)
	if err != nil {
		return nil, utils.MakeError(ErrLoad, "open %q: %v", path, err)
	}

	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, utils.MakeError(ErrLoad, "mmap %q: %v", path, err)
	}

	df := &DebugFile{
		Path: path,
		data: data,
		file: f,
	}
	df.closers = append(df.closers, func() error { return data.Unmap() }, f.Close)

	if err := df.parse(); err != nil {
		df.Close()
		return nil, err
	}

	var suppPath string
	if opts != nil && opts.SupplementaryPath != "" {
		suppPath = opts.SupplementaryPath
	} else {
		suppPath = discoverSupplementary(path, df)
	}

	if suppPath != "" {
		supp, err := Open(suppPath, &Options{Logger: logger})
		if err != nil {
			logger.Warn("failed to open supplementary debug file, continuing without it",
				slog.String("path", suppPath), slog.String("error", err.Error()))
		} else {
			df.Supplementary = supp
			df.combineDwarf(supp)
		}
	}

	return df, nil
}

// parse dispatches on magic bytes to the stdlib ELF/Mach-O/PE readers
// and extracts the DWARF accessor each of them exposes.
func (df *DebugFile) parse() error {
	magic := make([]byte, 4)
	copy(magic, df.data)

	switch {
	case bytes.Equal(magic, []byte("\x7fELF")):
		return df.parseELF()
	case isMachOMagic(magic):
		return df.parseMachO()
	case df.data[0] == 'M' && df.data[1] == 'Z':
		return df.parsePE()
	default:
		return utils.MakeError(ErrLoad, "%q: unrecognized object format", df.Path)
	}
}

func isMachOMagic(magic []byte) bool {
	v := binary.BigEndian.Uint32(magic)
	switch v {
	case macho.Magic32, macho.Magic64, macho.MagicFat:
		return true
	}
	v = binary.LittleEndian.Uint32(magic)
	switch v {
	case macho.Magic32, macho.Magic64:
		return true
	}
	return false
}

func (df *DebugFile) parseELF() error {
	ef, err := elf.NewFile(bytes.NewReader(df.data))
	if err != nil {
		return utils.MakeError(ErrLoad, "elf: %v", err)
	}
	df.Format = FormatELF
	df.ByteOrder = ef.ByteOrder
	if ef.Class == elf.ELFCLASS64 {
		df.AddrSize = 8
	} else {
		df.AddrSize = 4
	}
	dd, err := ef.DWARF()
	if err == nil {
		df.dwarfData = dd
	}
	return nil
}

func (df *DebugFile) parseMachO() error {
	mf, err := macho.NewFile(bytes.NewReader(df.data))
	if err != nil {
		return utils.MakeError(ErrLoad, "macho: %v", err)
	}
	df.Format = FormatMachO
	df.ByteOrder = mf.ByteOrder
	if mf.Magic == macho.Magic64 {
		df.AddrSize = 8
	} else {
		df.AddrSize = 4
	}
	dd, err := mf.DWARF()
	if err == nil {
		df.dwarfData = dd
	}
	return nil
}

func (df *DebugFile) parsePE() error {
	pf, err := pe.NewFile(bytes.NewReader(df.data))
	if err != nil {
		return utils.MakeError(ErrLoad, "pe: %v", err)
	}
	df.Format = FormatPE
	df.ByteOrder = binary.LittleEndian
	if pf.Machine == pe.IMAGE_FILE_MACHINE_AMD64 || pf.Machine == pe.IMAGE_FILE_MACHINE_ARM64 {
		df.AddrSize = 8
	} else {
		df.AddrSize = 4
	}
	dd, err := pf.DWARF()
	if err == nil {
		df.dwarfData = dd
	}
	return nil
}

// discoverSupplementary looks for a sibling .dSYM bundle (Mach-O), or
// for ELF a <path>.dwo companion or a <dir>/.debug/<name>.debug file.
// The .gnu_debuglink section itself is not read. It never errors: a missing companion just means no split
// debug info, which is the common case.
func discoverSupplementary(path string, df *DebugFile) string {
	dir := filepath.Dir(path)
	base := filepath.Base(path)

	switch df.Format {
	case FormatMachO:
		dsym := filepath.Join(dir, base+".dSYM", "Contents", "Resources", "DWARF", base)
		if fileExists(dsym) {
			return dsym
		}
	case FormatELF:
		dwo := path + ".dwo"
		if fileExists(dwo) {
			return dwo
		}
		debug := filepath.Join(dir, ".debug", base+".debug")
		if fileExists(debug) {
			return debug
		}
	}
	return ""
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// combineDwarf makes a supplementary file's DWARF data df's DWARF data
// when the primary image carries none (the common split-debug
// arrangement). The two are not merged: when the primary image has
// DWARF data of its own, it is kept, and the supplementary file's
// compilation units are not reachable through DWARF().
func (df *DebugFile) combineDwarf(supp *DebugFile) {
	if df.dwarfData == nil {
		df.dwarfData = supp.dwarfData
	}
}

// DWARF returns the primary image's DWARF accessor, or the
// supplementary image's when the primary has none, or nil if neither
// carries one.
func (df *DebugFile) DWARF() *dwarf.Data {
	return df.dwarfData
}

// Sections exposes raw, little/big-endian section bytes keyed by
// their standard DWARF section name (".debug_info", ".debug_line",
// ...). Downstream readers never outlive the DebugFile that produced
// them.
func (df *DebugFile) Sections() map[string][]byte {
	sections := make(map[string][]byte)
	switch df.Format {
	case FormatELF:
		ef, err := elf.NewFile(bytes.NewReader(df.data))
		if err != nil {
			return sections
		}
		for _, s := range ef.Sections {
			if d, err := s.Data(); err == nil {
				sections[s.Name] = d
			}
		}
	case FormatMachO:
		mf, err := macho.NewFile(bytes.NewReader(df.data))
		if err != nil {
			return sections
		}
		for _, s := range mf.Sections {
			if d, err := s.Data(); err == nil {
				sections["."+s.Name] = d
			}
		}
	case FormatPE:
		pf, err := pe.NewFile(bytes.NewReader(df.data))
		if err != nil {
			return sections
		}
		for _, s := range pf.Sections {
			if d, err := s.Data(); err == nil {
				sections[s.Name] = d
			}
		}
	}
	return sections
}

// Close releases the memory mapping and any open file handles,
// including those of a supplementary DebugFile. A DebugFile must not
// be used after Close.
func (df *DebugFile) Close() error {
	var firstErr error
	if df.Supplementary != nil {
		if err := df.Supplementary.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for i := len(df.closers) - 1; i >= 0; i-- {
		if err := df.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
