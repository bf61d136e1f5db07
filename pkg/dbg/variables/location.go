package variables

import (
	"errors"

	"github.com/coredbg/coredbg/pkg/utils"
)

// ErrExpressionEvaluation is wrapped by every failure the stack
// machine produces: an unknown opcode, stack underflow, or an oracle
// call that failed.
var ErrExpressionEvaluation = errors.New("variables: expression evaluation failure")

// ErrPartialLocation is returned when a location expression resolves
// to more than one piece. Multi-piece locations are rejected rather
// than guessed at: a consumer
// gets an explicit, inspectable error instead of a silently wrong
// address.
var ErrPartialLocation = errors.New("variables: partial (multi-piece) location not supported")

// LocationKind distinguishes where a resolved location lives.
type LocationKind int

const (
	// LocationAddress is a single, relocated memory address.
	LocationAddress LocationKind = iota
	// LocationRegister is a value held entirely in a register, with no
	// backing memory address.
	LocationRegister
)

// Location is the final, single-piece result of evaluating a location
// expression: either a memory address or a register number.
type Location struct {
	Kind     LocationKind
	Address  uint64
	Register int
}

// stackMachine is a tiny evaluator for the DWARF location-expression
// byte-code: push literals and computed addresses, fold them with a
// handful of arithmetic/dereference operators, and terminate in
// exactly one of an address, a register, or (rejected) a set of
// pieces. DW_OP_* opcode numbers follow the DWARF specification;
// Gopher2600's coprocessor/developer/dwarf/dwarf_loclist_operations.go
// is the semantic reference this subset was built against.
type stackMachine struct {
	oracle    Oracle
	frameBase func() (uint64, error)
	addrSize  int

	stack  []uint64
	isReg  bool
	regNum int
	pieces int
}

func (m *stackMachine) push(v uint64) {
	m.stack = append(m.stack, v)
}

func (m *stackMachine) pop() (uint64, error) {
	if len(m.stack) == 0 {
		return 0, utils.MakeError(ErrExpressionEvaluation, "stack underflow")
	}
	v := m.stack[len(m.stack)-1]
	m.stack = m.stack[:len(m.stack)-1]
	return v, nil
}

// Evaluate runs expr to completion and reduces it to a single Location.
// addrSize is the target's address size in bytes (4 or 8), as given by
// the caller; it sets the operand width of DW_OP_addr. A zero addrSize
// defaults to 8, the common case.
func Evaluate(expr []byte, frameBase func() (uint64, error), oracle Oracle, addrSize int) (Location, error) {
	if addrSize == 0 {
		addrSize = 8
	}
	m := &stackMachine{oracle: oracle, frameBase: frameBase, addrSize: addrSize}
	if err := m.run(expr); err != nil {
		return Location{}, err
	}
	return m.result()
}

func (m *stackMachine) result() (Location, error) {
	if m.pieces > 1 {
		return Location{}, ErrPartialLocation
	}
	if m.isReg {
		return Location{Kind: LocationRegister, Register: m.regNum}, nil
	}
	addr, err := m.pop()
	if err != nil {
		return Location{}, utils.MakeError(ErrExpressionEvaluation, "expression left no result")
	}
	return Location{Kind: LocationAddress, Address: addr}, nil
}

func (m *stackMachine) run(expr []byte) error {
	for len(expr) > 0 {
		op := expr[0]
		rest := expr[1:]
		consumed, err := m.step(op, rest)
		if err != nil {
			return err
		}
		expr = expr[1+consumed:]
	}
	return nil
}

// step executes one opcode, returning how many operand bytes (beyond
// the opcode byte itself) it consumed.
func (m *stackMachine) step(op byte, operands []byte) (int, error) {
	switch {
	case op == 0x03: // DW_OP_addr
		if len(operands) < m.addrSize {
			return 0, utils.MakeError(ErrExpressionEvaluation, "DW_OP_addr truncated")
		}
		addr := leUint64(pad8(operands[:m.addrSize]))
		m.push(addr + m.oracle.BaseAddress())
		return m.addrSize, nil

	case op == 0x06: // DW_OP_deref
		addr, err := m.pop()
		if err != nil {
			return 0, err
		}
		data, err := m.oracle.ReadMemory(addr, 8)
		if err != nil {
			return 0, utils.MakeError(ErrExpressionEvaluation, "DW_OP_deref: %v", err)
		}
		m.push(leUint64(pad8(data)))
		return 0, nil

	case op == 0x23: // DW_OP_plus_uconst
		n, consumed := decodeULEB128(operands)
		v, err := m.pop()
		if err != nil {
			return 0, err
		}
		m.push(v + n)
		return consumed, nil

	case op == 0x1c: // DW_OP_minus
		b, err := m.pop()
		if err != nil {
			return 0, err
		}
		a, err := m.pop()
		if err != nil {
			return 0, err
		}
		m.push(a - b)
		return 0, nil

	case op == 0x22: // DW_OP_plus
		b, err := m.pop()
		if err != nil {
			return 0, err
		}
		a, err := m.pop()
		if err != nil {
			return 0, err
		}
		m.push(a + b)
		return 0, nil

	case op == 0x91: // DW_OP_fbreg
		offset, consumed := decodeSLEB128(operands)
		if m.frameBase == nil {
			return 0, utils.MakeError(ErrExpressionEvaluation, "DW_OP_fbreg with no frame base available")
		}
		fb, err := m.frameBase()
		if err != nil {
			return 0, utils.MakeError(ErrExpressionEvaluation, "resolving frame base: %v", err)
		}
		m.push(uint64(int64(fb) + offset))
		return consumed, nil

	case op >= 0x30 && op <= 0x4f: // DW_OP_lit0..DW_OP_lit31
		m.push(uint64(op - 0x30))
		return 0, nil

	case op >= 0x50 && op <= 0x6f: // DW_OP_reg0..DW_OP_reg31
		m.isReg = true
		m.regNum = int(op - 0x50)
		return 0, nil

	case op == 0x90: // DW_OP_regx
		reg, consumed := decodeULEB128(operands)
		m.isReg = true
		m.regNum = int(reg)
		return consumed, nil

	case op >= 0x70 && op <= 0x8f: // DW_OP_breg0..DW_OP_breg31
		reg := int(op - 0x70)
		offset, consumed := decodeSLEB128(operands)
		regVal, err := m.oracle.GetRegister(reg)
		if err != nil {
			return 0, utils.MakeError(ErrExpressionEvaluation, "DW_OP_breg%d: %v", reg, err)
		}
		m.push(uint64(int64(regVal) + offset))
		return consumed, nil

	case op == 0x92: // DW_OP_bregx
		reg, n1 := decodeULEB128(operands)
		offset, n2 := decodeSLEB128(operands[n1:])
		regVal, err := m.oracle.GetRegister(int(reg))
		if err != nil {
			return 0, utils.MakeError(ErrExpressionEvaluation, "DW_OP_bregx: %v", err)
		}
		m.push(uint64(int64(regVal) + offset))
		return n1 + n2, nil

	case op == 0x9c: // DW_OP_call_frame_cfa
		sp, err := m.oracle.GetStackPointer()
		if err != nil {
			return 0, utils.MakeError(ErrExpressionEvaluation, "DW_OP_call_frame_cfa: %v", err)
		}
		m.push(sp)
		return 0, nil

	case op == 0x93: // DW_OP_piece
		_, consumed := decodeULEB128(operands)
		// The preceding simple location is one piece and is left in
		// place, so a single piece still yields that location. This
		// package does not assemble multi-piece values into a single
		// Location (see ErrPartialLocation); it only needs to detect
		// that more than one piece was produced.
		m.pieces++
		return consumed, nil

	case op == 0x9f: // DW_OP_stack_value
		// Marks the top of stack as a literal value rather than an
		// address; no pointer follows. Treated as an address-class
		// result since this package never dereferences on the
		// caller's behalf anyway.
		return 0, nil

	default:
		return 0, utils.MakeError(ErrExpressionEvaluation, "unsupported opcode 0x%02x", op)
	}
}

func leUint64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func pad8(b []byte) []byte {
	if len(b) >= 8 {
		return b[:8]
	}
	out := make([]byte, 8)
	copy(out, b)
	return out
}
