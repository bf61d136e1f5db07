package variables

import (
	"debug/dwarf"
	"log/slog"

	"github.com/coredbg/coredbg/pkg/dbg/cu"
	"github.com/coredbg/coredbg/pkg/dbg/die"
	"github.com/coredbg/coredbg/pkg/dbg/types"
	"github.com/coredbg/coredbg/pkg/utils"
)

// Variable is one resolved parameter, local, or global: its name (if
// any), memory layout, declared source position, and the Die it was
// read from. Location is the address or register its location
// expression evaluated to against the caller's Oracle when it was
// resolved; it is left zero, with Partial set, for a multi-piece
// location. Values are not read from memory at this layer.
type Variable struct {
	Name     string
	Layout   types.Layout
	File     string
	Line     int
	Origin   die.Die
	Location Location
	Partial  bool
}

// Resolver assembles Variable records for the scope enclosing a
// program counter, evaluating each variable's location expression
// against a caller-supplied Oracle.
type Resolver struct {
	ctx      *die.Context
	types    *types.Resolver
	addrSize int
	logger   *slog.Logger
}

// NewResolver builds a variable Resolver. addrSize is the target's
// address size in bytes.
func NewResolver(ctx *die.Context, typeResolver *types.Resolver, addrSize int, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Resolver{ctx: ctx, types: typeResolver, addrSize: addrSize, logger: logger}
}

// Scope is the result of resolving a program counter to a function
// body: its own subprogram Die and every ancestor lexical_block Die
// up to (but not including) the subprogram's own parent. Lexical
// blocks nested inside Function are not recorded, so variables
// declared in them are not reached through a Scope.
type Scope struct {
	Function die.Die
	Blocks   []die.Die
}

// FindScope walks unit looking for the innermost subprogram (or
// inlined_subroutine) whose address range contains pc, along with any
// nested lexical_block Dies on the path to it that also contain pc.
func FindScope(ctx *die.Context, unitRoot die.Die, pc uint64) (Scope, bool, error) {
	var best Scope
	haveBest := false
	var bestWidth uint64

	var walk func(d die.Die, blocks []die.Die) error
	walk = func(d die.Die, blocks []die.Die) error {
		children, err := ctx.Children(d)
		if err != nil {
			return err
		}
		for _, c := range children {
			tag, err := ctx.Tag(c)
			if err != nil {
				continue
			}
			switch tag {
			case dwarf.TagSubprogram, dwarf.TagInlinedSubroutine:
				low, high, ok := pcRange(ctx, c)
				if ok && pc >= low && pc < high {
					width := high - low
					if !haveBest || width < bestWidth {
						best = Scope{Function: c, Blocks: append([]die.Die{}, blocks...)}
						bestWidth = width
						haveBest = true
					}
				}
				if err := walk(c, nil); err != nil {
					return err
				}
			case dwarf.TagLexicalBlock:
				low, high, ok := pcRange(ctx, c)
				nestedBlocks := blocks
				if ok && pc >= low && pc < high {
					nestedBlocks = append(append([]die.Die{}, blocks...), c)
				} else if !ok {
					// A lexical_block with no explicit range covers its
					// parent's whole range; keep descending under it.
					nestedBlocks = append(append([]die.Die{}, blocks...), c)
				} else {
					continue
				}
				if err := walk(c, nestedBlocks); err != nil {
					return err
				}
			default:
				if err := walk(c, blocks); err != nil {
					return err
				}
			}
		}
		return nil
	}

	if err := walk(unitRoot, nil); err != nil {
		return Scope{}, false, err
	}
	return best, haveBest, nil
}

func pcRange(ctx *die.Context, d die.Die) (low, high uint64, ok bool) {
	entry, err := ctx.Entry(d)
	if err != nil {
		return 0, 0, false
	}
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

// FrameBase evaluates the enclosing subprogram's DW_AT_frame_base
// location expression, returning a function the caller can pass as
// the DW_OP_fbreg anchor for every variable in that scope. Resolved
// lazily and only once per ResolveVariablesAt call.
func (r *Resolver) FrameBase(fn die.Die, oracle Oracle) (func() (uint64, error), error) {
	entry, err := r.ctx.Entry(fn)
	if err != nil {
		return nil, err
	}
	field := entry.AttrField(dwarf.AttrFrameBase)
	if field == nil {
		return nil, utils.MakeError(ErrExpressionEvaluation, "DW_AT_frame_base absent")
	}
	expr, ok := field.Val.([]byte)
	if !ok {
		return nil, utils.MakeError(ErrExpressionEvaluation, "DW_AT_frame_base is not an expression")
	}

	var cached *uint64
	return func() (uint64, error) {
		if cached != nil {
			return *cached, nil
		}
		loc, err := Evaluate(expr, nil, oracle, r.addrSize)
		if err != nil {
			return 0, err
		}
		var addr uint64
		switch loc.Kind {
		case LocationAddress:
			addr = loc.Address
		case LocationRegister:
			addr, err = oracle.GetRegister(loc.Register)
			if err != nil {
				return 0, utils.MakeError(ErrExpressionEvaluation, "reading frame-base register: %v", err)
			}
		}
		cached = &addr
		return addr, nil
	}, nil
}

// ResolveVariablesAt returns every parameter, local, and file-scope
// global variable visible at pc, each with its Layout and resolved
// Location. Parameters and locals are read from the direct children of
// the Scope's Function and Blocks; a local declared inside a
// lexical_block nested within the function is not returned. A variable
// whose expression evaluation fails is skipped with a logged warning
// rather than aborting the whole query. r's
// addrSize (set once at NewResolver time from the target's actual
// address size) governs every location expression evaluated here.
func (r *Resolver) ResolveVariablesAt(index *cu.Index, pc uint64, oracle Oracle, logger *slog.Logger) (params, locals, globals []Variable, err error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	unit, ok := unitForPC(index, pc)
	if !ok {
		return nil, nil, nil, nil
	}

	root := die.Die{Offset: unit.ID.Offset}
	scope, ok, err := FindScope(r.ctx, root, pc)
	if err != nil {
		return nil, nil, nil, err
	}
	if !ok {
		return nil, nil, nil, nil
	}

	frameBase, err := r.FrameBase(scope.Function, oracle)
	if err != nil {
		logger.Warn("frame base unavailable, variables in this scope will be skipped", slog.String("error", err.Error()))
		frameBase = nil
	}

	scopeDies := append([]die.Die{scope.Function}, scope.Blocks...)
	for _, d := range scopeDies {
		children, err := r.ctx.Children(d)
		if err != nil {
			continue
		}
		for _, c := range children {
			tag, err := r.ctx.Tag(c)
			if err != nil {
				continue
			}
			switch tag {
			case dwarf.TagFormalParameter:
				if v, ok := r.resolveOne(c, frameBase, oracle, logger); ok {
					params = append(params, v)
				}
			case dwarf.TagVariable:
				if v, ok := r.resolveOne(c, frameBase, oracle, logger); ok {
					locals = append(locals, v)
				}
			}
		}
	}

	globals = r.resolveGlobals(root, pc, oracle, logger)

	return params, locals, globals, nil
}

func (r *Resolver) resolveOne(d die.Die, frameBase func() (uint64, error), oracle Oracle, logger *slog.Logger) (Variable, bool) {
	entry, err := r.ctx.Entry(d)
	if err != nil {
		return Variable{}, false
	}
	name, _ := entry.Val(dwarf.AttrName).(string)

	v := Variable{Name: name, Origin: d}

	if typeDie, ok := entry.Val(dwarf.AttrType).(dwarf.Offset); ok {
		td := die.Die{CU: d.CU, Offset: typeDie}
		if shallow, err := r.types.ResolveShallow(td); err == nil {
			if deep, err := r.types.ResolveDeep(shallow); err == nil {
				v.Layout = deep
			} else {
				v.Layout = shallow
			}
		}
	}

	if line, ok := entry.Val(dwarf.AttrDeclLine).(int64); ok {
		v.Line = int(line)
	}

	field := entry.AttrField(dwarf.AttrLocation)
	if field == nil {
		logger.Warn("skipping variable with no location", slog.String("name", name))
		return Variable{}, false
	}
	expr, ok := field.Val.([]byte)
	if !ok {
		logger.Warn("skipping variable with non-constant location", slog.String("name", name))
		return Variable{}, false
	}

	loc, err := Evaluate(expr, frameBase, oracle, r.addrSize)
	if err != nil {
		if err == ErrPartialLocation {
			v.Partial = true
			logger.Warn("variable has a multi-piece location, reporting as partial", slog.String("name", name))
			return v, true
		}
		logger.Warn("skipping variable whose location failed to evaluate", slog.String("name", name), slog.String("error", err.Error()))
		return Variable{}, false
	}
	v.Location = loc
	return v, true
}

// resolveGlobals finds file-scope DW_TAG_variable Dies at the
// compilation-unit's top level (outside any subprogram), which the
// standard library and most compiled languages use for statics and
// globals. They are resolved without a frame base, since file-scope
// globals never use DW_OP_fbreg.
func (r *Resolver) resolveGlobals(unitRoot die.Die, pc uint64, oracle Oracle, logger *slog.Logger) []Variable {
	children, err := r.ctx.Children(unitRoot)
	if err != nil {
		return nil
	}
	var out []Variable
	for _, c := range children {
		tag, err := r.ctx.Tag(c)
		if err != nil || tag != dwarf.TagVariable {
			continue
		}
		if v, ok := r.resolveOne(c, nil, oracle, logger); ok {
			out = append(out, v)
		}
	}
	return out
}

func unitForPC(index *cu.Index, pc uint64) (cu.Unit, bool) {
	for _, u := range index.Units {
		if u.HasRanges && pc >= u.LowPC && pc < u.HighPC {
			return u, true
		}
	}
	return cu.Unit{}, false
}
