// Package dbg is the public facade: it wires the loader, compilation-
// unit index, DIE combinators, type resolver, symbol index, address
// tree, and variable evaluator behind the eight operations external
// consumers use, and memoizes the expensive ones through a query
// cache.
package dbg

import (
	"log/slog"

	"github.com/coredbg/coredbg/pkg/dbg/address"
	"github.com/coredbg/coredbg/pkg/dbg/cu"
	"github.com/coredbg/coredbg/pkg/dbg/die"
	"github.com/coredbg/coredbg/pkg/dbg/loader"
	"github.com/coredbg/coredbg/pkg/dbg/query"
	"github.com/coredbg/coredbg/pkg/dbg/symbols"
	"github.com/coredbg/coredbg/pkg/dbg/types"
	"github.com/coredbg/coredbg/pkg/dbg/variables"
	"github.com/coredbg/coredbg/pkg/utils"
)

// FunctionInfo is the external view of a resolved function: its
// qualified name, address range, and declared source position.
type FunctionInfo struct {
	Name     string
	LowPC    uint64
	HighPC   uint64
	File     string
	Line     int
	IsStatic bool
}

// Options configures a Handle beyond what Open's positional arguments
// capture: an explicit logger and a demangler plug-in, both optional.
type Options struct {
	Logger    *slog.Logger
	Demangle  symbols.Demangler
	Languages cu.TargetLanguages
}

// Handle is one opened DebugFile plus every index built on top of it.
// It is the sole entry point external code uses; every public query
// operation is a method here.
type Handle struct {
	file   *loader.DebugFile
	ctx    *die.Context
	units  *cu.Index
	syms   *symbols.SymbolIndex
	types  *types.Resolver
	addrs  *address.AddressTree
	vars   *variables.Resolver
	cache  *query.Cache
	logger *slog.Logger
	remap  address.PathRemap
}

// Open loads path (and, when non-empty, an explicit supplementary
// debug-info path) and builds every index eagerly: the compilation-
// unit index, symbol index, and address tree. Type layouts and
// variables are resolved lazily since most sessions only ever touch a
// handful of types or scopes.
func Open(path string, supplementaryPath string, opts *Options) (*Handle, error) {
	if opts == nil {
		opts = &Options{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = discardLogger()
	}

	loaderOpts := &loader.Options{Logger: componentLogger(logger, "loader"), SupplementaryPath: supplementaryPath}
	file, err := loader.Open(path, loaderOpts)
	if err != nil {
		return nil, utils.MakeError(ErrLoad, "%v", err)
	}

	ctx := die.NewContext(file.DWARF())
	languages := opts.Languages
	if languages == nil {
		languages = cu.NewTargetLanguages()
	}

	units := cu.Build(file.DWARF(), languages, componentLogger(logger, "cu"))
	syms := symbols.BuildSymbolIndex(ctx, units, opts.Demangle, componentLogger(logger, "symbols"))
	addrs, err := address.Build(ctx, units, nil, componentLogger(logger, "address"))
	if err != nil {
		return nil, utils.MakeError(ErrMalformedDebugInfo, "building address tree: %v", err)
	}
	typeResolver := types.NewResolver(ctx, nil, file.AddrSize, componentLogger(logger, "types"))
	varsResolver := variables.NewResolver(ctx, typeResolver, file.AddrSize, componentLogger(logger, "variables"))

	return &Handle{
		file:   file,
		ctx:    ctx,
		units:  units,
		syms:   syms,
		types:  typeResolver,
		addrs:  addrs,
		vars:   varsResolver,
		cache:  query.New(),
		logger: logger,
	}, nil
}

// Close releases the underlying memory mapping. The Handle must not
// be used afterward.
func (h *Handle) Close() error {
	h.cache.Invalidate()
	return h.file.Close()
}

// SetSourceMap installs a path-remapping table applied to every source
// file name the address resolver reports, and invalidates cached
// address queries built against the previous mapping (remapping
// changes the reported SourceFile but not the underlying line table,
// so only the address cache needs invalidating).
func (h *Handle) SetSourceMap(remap func(path string) string) error {
	h.remap = address.PathRemap(remap)
	addrs, err := address.Build(h.ctx, h.units, h.remap, componentLogger(h.logger, "address"))
	if err != nil {
		return utils.MakeError(ErrMalformedDebugInfo, "rebuilding address tree: %v", err)
	}
	h.addrs = addrs
	h.cache.Invalidate()
	return nil
}

// FindFunction looks up a function by its demangled name (hash suffix
// optional; mangled names are not demangled here), returning its address range and declared
// source position. Returns ok=false when genuinely absent — it never
// guesses.
func (h *Handle) FindFunction(name string) (FunctionInfo, bool) {
	v, err := query.Fetch(h.cache, "find_function", name, func() (*FunctionInfo, error) {
		entry, ok := h.syms.Lookup(name)
		if !ok {
			return nil, nil
		}
		info := FunctionInfo{
			Name:   entry.Name.LookupKey(),
			LowPC:  entry.LowPC,
			HighPC: entry.HighPC,
		}
		if loc, ok := h.addrs.AddressToLocation(entry.LowPC); ok {
			info.File, info.Line = loc.File, loc.Line
		}
		return &info, nil
	})
	if err != nil || v == nil {
		return FunctionInfo{}, false
	}
	return *v, true
}

// AddressToLocation resolves a program counter to its enclosing
// function name and source position.
func (h *Handle) AddressToLocation(pc uint64) (address.ResolvedLocation, bool) {
	v, err := query.Fetch(h.cache, "address_to_location", pc, func() (*address.ResolvedLocation, error) {
		loc, ok := h.addrs.AddressToLocation(pc)
		if !ok {
			return nil, nil
		}
		return &loc, nil
	})
	if err != nil || v == nil {
		return address.ResolvedLocation{}, false
	}
	return *v, true
}

// LocationToAddress resolves a source position to the first matching
// program counter, snapping forward to the next line with code when
// the requested line has none.
func (h *Handle) LocationToAddress(file string, line int, column *int) (uint64, bool) {
	type key struct {
		file   string
		line   int
		column int
	}
	col := -1
	if column != nil {
		col = *column
	}
	v, err := query.Fetch(h.cache, "location_to_address", key{file, line, col}, func() (*uint64, error) {
		pc, ok := h.addrs.LocationToAddress(file, line, column)
		if !ok {
			return nil, nil
		}
		return &pc, nil
	})
	if err != nil || v == nil {
		return 0, false
	}
	return *v, true
}

// ResolveType looks up a named type and returns its full, deeply
// resolved memory layout. Returns ok=false if no matching type Die
// exists in any target-language compilation unit.
func (h *Handle) ResolveType(name string) (types.Layout, bool) {
	v, err := query.Fetch(h.cache, "resolve_type", name, func() (*types.Layout, error) {
		d, ok := h.findTypeDie(name)
		if !ok {
			return nil, nil
		}
		shallow, err := h.types.ResolveShallow(d)
		if err != nil {
			return nil, err
		}
		deep, err := h.types.ResolveDeep(shallow)
		if err != nil {
			return nil, err
		}
		return &deep, nil
	})
	if err != nil || v == nil {
		return nil, false
	}
	return *v, true
}

func (h *Handle) findTypeDie(name string) (die.Die, bool) {
	var found die.Die
	ok := false
	for _, unit := range h.units.Units {
		if unit.Language != cu.LanguageTarget {
			continue
		}
		root := die.Die{Offset: unit.ID.Offset}
		_ = die.Walk(h.ctx, root, func(d die.Die) (bool, error) {
			if ok {
				return false, nil
			}
			n, _ := die.Name()(h.ctx, d)
			if n == name {
				found, ok = d, true
				return false, nil
			}
			return true, nil
		})
		if ok {
			break
		}
	}
	return found, ok
}

// DiscoverMethods returns every function associated with typeName,
// both nested member declarations and free functions recognized by
// their DW_AT_object_pointer receiver.
func (h *Handle) DiscoverMethods(typeName string) ([]symbols.MethodInfo, error) {
	return query.Fetch(h.cache, "discover_methods", typeName, func() ([]symbols.MethodInfo, error) {
		return symbols.DiscoverMethods(h.ctx, h.units, nil, typeName)
	})
}

// ResolveVariablesAt returns every parameter, local, and visible
// global at pc, each resolved against oracle's live machine state.
// Never cached: the result depends on the caller-supplied Oracle's
// current register and memory contents, which the query cache has no
// way to key on.
func (h *Handle) ResolveVariablesAt(pc uint64, oracle variables.Oracle) (params, locals, globals []variables.Variable, err error) {
	return h.vars.ResolveVariablesAt(h.units, pc, oracle, componentLogger(h.logger, "variables"))
}
