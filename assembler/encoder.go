package assembler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/skarsol/asm86/parser"
)

// Encoding failures, wrapped with context by the encoder.
var (
	// ErrNoEncoding means no catalog row matches the mnemonic and operands.
	ErrNoEncoding = errors.New("no encoding found")
	// ErrUndefinedSymbol means an operand references an unknown or
	// unresolved symbol.
	ErrUndefinedSymbol = errors.New("undefined symbol")
	// ErrInvalidAddressing means a memory operand uses a register
	// combination the 8086 cannot express.
	ErrInvalidAddressing = errors.New("invalid addressing mode")
	// ErrShortJumpRange means a conditional jump target is outside the
	// signed 8-bit displacement range.
	ErrShortJumpRange = errors.New("jump target out of short range")
)

// Encoder turns analyzed instructions into machine code. It borrows the
// analyzer's symbol table for the duration of one generation run.
type Encoder struct {
	symbols *SymbolTable
	addr    uint64
}

// NewEncoder creates an Encoder with no symbol table attached.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// SetSymbolTable attaches the table used to resolve operand symbols.
func (e *Encoder) SetSymbolTable(st *SymbolTable) {
	e.symbols = st
}

// SetCurrentAddress records the instruction's assigned address for
// relative-jump displacement math.
func (e *Encoder) SetCurrentAddress(addr uint64) {
	e.addr = addr
}

// Encode produces the bytes for one instruction, or an error that names the
// failure per the encoding-error taxonomy.
func (e *Encoder) Encode(instr *parser.Instruction) ([]byte, error) {
	row := findEncoding(instr.Mnemonic, instr.Operands)
	if row == nil {
		return nil, fmt.Errorf("%w for instruction: %s", ErrNoEncoding, instr.Mnemonic)
	}

	var bytes []byte

	// Segment override prefix from either memory operand.
	for _, op := range instr.Operands {
		if mem, ok := op.(*parser.Memory); ok && mem.SegOverride != "" {
			prefix, ok := segmentPrefix(mem.SegOverride)
			if !ok {
				return nil, fmt.Errorf("invalid segment override %q", mem.SegOverride)
			}
			bytes = append(bytes, prefix)
			break
		}
	}

	var body []byte
	var err error
	switch row.form {
	case formModRM:
		body, err = e.encodeModRM(row, instr)
	case formRegInOpcode:
		body, err = e.encodeRegInOpcode(row, instr)
	case formImmediate:
		body, err = e.encodeImmediateForm(row, instr)
	case formModRMImm:
		body, err = e.encodeModRMImm(row, instr)
	case formRelative:
		body, err = e.encodeRelative(row, instr)
	case formFixed:
		body, err = e.encodeFixed(row, instr)
	default:
		err = fmt.Errorf("unsupported encoding form")
	}
	if err != nil {
		return nil, err
	}
	return append(bytes, body...), nil
}

// findEncoding picks the best-matching catalog row: specific registers score
// highest, generic registers next, r/m next, everything else lowest. Ties
// keep the first row in table order.
func findEncoding(mnemonic string, operands []parser.Operand) *encoding {
	upper := strings.ToUpper(mnemonic)

	var best *encoding
	bestScore := -1
	for i := range encodings {
		row := &encodings[i]
		if row.mnemonic != upper || len(row.operands) != len(operands) {
			continue
		}
		score := 0
		matched := true
		for j, op := range operands {
			if !matchSpec(op, row.operands[j]) {
				matched = false
				break
			}
			switch row.operands[j] {
			case specAL, specAX, specCL, specDX:
				score += 10
			case specReg8, specReg16, specSegReg:
				score += 5
			case specRM8, specRM16:
				score += 3
			default:
				score++
			}
		}
		if matched && score > bestScore {
			best = row
			bestScore = score
		}
	}
	return best
}

// matchSpec tests one operand against one spec.
func matchSpec(op parser.Operand, spec operandSpec) bool {
	reg, _ := op.(*parser.Register)
	imm, _ := op.(*parser.Immediate)
	mem, _ := op.(*parser.Memory)
	ref, _ := op.(*parser.LabelRef)

	switch spec {
	case specReg8:
		return reg != nil && reg.Size == 8 && !reg.Segment
	case specReg16:
		return reg != nil && reg.Size == 16 && !reg.Segment

	case specMem8:
		// Direct address only; register-indirect memory matches RM8.
		return mem != nil && mem.Direct
	case specMem16:
		// Direct address, label-only memory, or a plain label reference
		// (the last case enables LEA r16, label).
		if ref != nil {
			return true
		}
		if mem == nil {
			return false
		}
		if mem.Direct {
			return true
		}
		return mem.Parsed != nil && len(mem.Parsed.Registers) == 0

	case specRM8:
		if mem != nil {
			return mem.SizeHint == 0 || mem.SizeHint == 8
		}
		return reg != nil && reg.Size == 8 && !reg.Segment
	case specRM16:
		if mem != nil {
			return mem.SizeHint == 0 || mem.SizeHint == 16
		}
		return reg != nil && reg.Size == 16 && !reg.Segment

	case specImm8:
		if imm != nil {
			if imm.SizeHint == 16 {
				return false
			}
			return imm.Symbolic() || (imm.Value >= -128 && imm.Value <= 255)
		}
		return ref != nil
	case specImm16:
		if imm != nil {
			if imm.SizeHint == 8 {
				return false
			}
			return imm.Symbolic() || (imm.Value >= -32768 && imm.Value <= 65535)
		}
		return ref != nil

	case specAL:
		return reg != nil && reg.Size == 8 && reg.Code == 0
	case specAX:
		return reg != nil && reg.Size == 16 && reg.Code == 0 && !reg.Segment
	case specCL:
		return reg != nil && reg.Size == 8 && reg.Code == 1
	case specDX:
		return reg != nil && reg.Size == 16 && reg.Code == 2 && !reg.Segment

	case specSegReg:
		return reg != nil && reg.Segment

	case specRel8:
		return ref != nil && ref.Jump == parser.JumpShort
	case specRel16:
		return ref != nil && (ref.Jump == parser.JumpNear || ref.Jump == parser.JumpFar)
	case specLabel:
		return ref != nil
	}
	return false
}

func (e *Encoder) encodeModRM(row *encoding, instr *parser.Instruction) ([]byte, error) {
	if len(instr.Operands) != 2 {
		return nil, fmt.Errorf("invalid operand combination for ModR/M")
	}
	dstReg, _ := instr.Operands[0].(*parser.Register)
	srcReg, _ := instr.Operands[1].(*parser.Register)
	dstMem, _ := instr.Operands[0].(*parser.Memory)
	srcMem, _ := instr.Operands[1].(*parser.Memory)
	srcRef, _ := instr.Operands[1].(*parser.LabelRef)

	bytes := []byte{row.opcode}

	switch {
	case dstReg != nil && srcReg != nil:
		// Register to register: source carries the reg field.
		bytes = append(bytes, regToReg(srcReg.Code, dstReg.Code))

	case dstReg != nil && srcRef != nil:
		// LEA SI, data: a bare label is a direct memory address.
		value, err := e.lookupSymbol(srcRef.Name)
		if err != nil {
			return nil, err
		}
		modrm, disp := directModRM(uint16(value), dstReg.Code)
		bytes = append(bytes, modrm)
		bytes = append(bytes, disp...)

	case dstMem != nil && srcReg != nil:
		modrm, disp, err := e.memoryOperand(dstMem, srcReg.Code)
		if err != nil {
			return nil, err
		}
		bytes = append(bytes, modrm)
		bytes = append(bytes, disp...)

	case dstReg != nil && srcMem != nil:
		modrm, disp, err := e.memoryOperand(srcMem, dstReg.Code)
		if err != nil {
			return nil, err
		}
		bytes = append(bytes, modrm)
		bytes = append(bytes, disp...)

	default:
		return nil, fmt.Errorf("invalid operand combination for ModR/M")
	}

	return bytes, nil
}

func (e *Encoder) encodeRegInOpcode(row *encoding, instr *parser.Instruction) ([]byte, error) {
	reg, ok := instr.Operands[0].(*parser.Register)
	if !ok {
		return nil, fmt.Errorf("expected register operand")
	}

	bytes := []byte{row.opcode + reg.Code}

	if len(instr.Operands) < 2 {
		return bytes, nil
	}

	// XCHG AX, reg16 (either order): the non-accumulator register's code
	// goes into the opcode.
	if reg2, ok := instr.Operands[1].(*parser.Register); ok {
		other := reg2
		if reg2.Code == 0 && reg2.Size == 16 && !reg2.Segment {
			other = reg
		}
		return []byte{row.opcode + other.Code}, nil
	}

	var value int64
	switch op := instr.Operands[1].(type) {
	case *parser.Immediate:
		v, err := e.resolveImmediate(op)
		if err != nil {
			return nil, err
		}
		value = v
	case *parser.LabelRef:
		v, err := e.lookupSymbol(op.Name)
		if err != nil {
			return nil, err
		}
		value = v
	default:
		return nil, fmt.Errorf("expected immediate operand or label reference")
	}

	// Width follows the register size.
	width := 2
	if reg.Size == 8 {
		width = 1
	}
	return append(bytes, littleEndian(value, width)...), nil
}

func (e *Encoder) encodeImmediateForm(row *encoding, instr *parser.Instruction) ([]byte, error) {
	bytes := []byte{row.opcode}

	if len(instr.Operands) == 0 {
		return bytes, nil
	}

	if len(instr.Operands) == 1 {
		imm, ok := instr.Operands[0].(*parser.Immediate)
		if !ok {
			return nil, fmt.Errorf("expected immediate operand")
		}
		value, err := e.resolveImmediate(imm)
		if err != nil {
			return nil, err
		}
		// INT 3 has its own single-byte breakpoint opcode.
		if strings.EqualFold(instr.Mnemonic, "INT") && value == 3 {
			return []byte{0xCC}, nil
		}
		return append(bytes, littleEndian(value, specWidth(row.operands[0]))...), nil
	}

	// Two operands: an immediate on either side, or the accumulator moffs
	// forms where the memory operand's absolute address is appended.
	if imm, ok := instr.Operands[0].(*parser.Immediate); ok {
		value, err := e.resolveImmediate(imm)
		if err != nil {
			return nil, err
		}
		return append(bytes, littleEndian(value, specWidth(row.operands[0]))...), nil
	}
	if mem, ok := instr.Operands[0].(*parser.Memory); ok {
		addr, err := e.absoluteAddress(mem)
		if err != nil {
			return nil, err
		}
		return append(bytes, littleEndian(addr, 2)...), nil
	}
	if imm, ok := instr.Operands[1].(*parser.Immediate); ok {
		value, err := e.resolveImmediate(imm)
		if err != nil {
			return nil, err
		}
		return append(bytes, littleEndian(value, specWidth(row.operands[1]))...), nil
	}
	if mem, ok := instr.Operands[1].(*parser.Memory); ok {
		addr, err := e.absoluteAddress(mem)
		if err != nil {
			return nil, err
		}
		return append(bytes, littleEndian(addr, 2)...), nil
	}

	return nil, fmt.Errorf("expected immediate operand or direct address")
}

func (e *Encoder) encodeModRMImm(row *encoding, instr *parser.Instruction) ([]byte, error) {
	bytes := []byte{row.opcode}

	switch op := instr.Operands[0].(type) {
	case *parser.Register:
		bytes = append(bytes, regToReg(row.regField, op.Code))
	case *parser.Memory:
		modrm, disp, err := e.memoryOperand(op, row.regField)
		if err != nil {
			return nil, err
		}
		bytes = append(bytes, modrm)
		bytes = append(bytes, disp...)
	default:
		return nil, fmt.Errorf("invalid destination operand")
	}

	if len(instr.Operands) < 2 {
		return bytes, nil
	}

	imm, ok := instr.Operands[1].(*parser.Immediate)
	if !ok {
		// Shift by CL carries no immediate.
		if reg, ok := instr.Operands[1].(*parser.Register); ok &&
			reg.Code == 1 && reg.Size == 8 {
			return bytes, nil
		}
		return nil, fmt.Errorf("expected immediate operand")
	}

	value, err := e.resolveImmediate(imm)
	if err != nil {
		return nil, err
	}

	// Shift/rotate by an explicit 1 on the D0/D1 opcodes: the 1 is implicit.
	if (row.opcode == 0xD0 || row.opcode == 0xD1) && value == 1 {
		return bytes, nil
	}

	return append(bytes, littleEndian(value, specWidth(row.operands[1]))...), nil
}

func (e *Encoder) encodeRelative(row *encoding, instr *parser.Instruction) ([]byte, error) {
	ref, ok := instr.Operands[0].(*parser.LabelRef)
	if !ok {
		return nil, fmt.Errorf("expected label operand for jump")
	}

	target, err := e.lookupSymbol(ref.Name)
	if err != nil {
		return nil, err
	}

	dispWidth := specWidth(row.operands[0])
	opcode := row.opcode

	displacement := target - int64(e.addr) - int64(1+dispWidth)

	if dispWidth == 1 && (displacement < -128 || displacement > 127) {
		if strings.EqualFold(instr.Mnemonic, "JMP") {
			// Silent upgrade to the near form, recomputed for the longer
			// instruction.
			opcode = 0xE9
			dispWidth = 2
			displacement = target - int64(e.addr) - 3
		} else {
			return nil, fmt.Errorf("%w: distance %d, max ±127",
				ErrShortJumpRange, displacement)
		}
	}

	bytes := []byte{opcode}
	return append(bytes, littleEndian(displacement, dispWidth)...), nil
}

func (e *Encoder) encodeFixed(row *encoding, instr *parser.Instruction) ([]byte, error) {
	// PUSH/POP with a segment register fold the register into the opcode:
	// base + code*8 (PUSH ES=06, CS=0E, SS=16, DS=1E).
	if len(instr.Operands) == 1 {
		if reg, ok := instr.Operands[0].(*parser.Register); ok && reg.Segment {
			return []byte{row.opcode + reg.Code<<3}, nil
		}
	}
	return []byte{row.opcode}, nil
}

// memoryOperand emits the ModR/M and displacement for a memory operand.
func (e *Encoder) memoryOperand(mem *parser.Memory, regField byte) (byte, []byte, error) {
	if mem.Direct {
		modrm, disp := directModRM(mem.DirectValue, regField)
		return modrm, disp, nil
	}
	if mem.Parsed != nil {
		return memoryModRM(mem.Parsed, regField, e.resolvedValue)
	}
	return 0, nil, fmt.Errorf("invalid memory operand [%s]", mem.Expr)
}

// absoluteAddress resolves a direct or label-only memory operand to its
// 16-bit absolute address (the moffs forms).
func (e *Encoder) absoluteAddress(mem *parser.Memory) (int64, error) {
	if mem.Direct {
		return int64(mem.DirectValue), nil
	}
	if mem.Parsed != nil && len(mem.Parsed.Registers) == 0 {
		addr := mem.Parsed.Disp
		if mem.Parsed.HasLabel() {
			value, err := e.lookupSymbol(mem.Parsed.Label)
			if err != nil {
				return 0, err
			}
			addr += value
		}
		return addr, nil
	}
	return 0, fmt.Errorf("expected direct address in [%s]", mem.Expr)
}

// resolveImmediate produces the value of an immediate operand. Symbolic
// forms containing arithmetic evaluate with EQU constants substituted;
// plain names go through the symbol table.
func (e *Encoder) resolveImmediate(imm *parser.Immediate) (int64, error) {
	if !imm.Symbolic() {
		return imm.Value, nil
	}
	if strings.ContainsAny(imm.Expr, "+-*/") {
		value, err := parser.EvaluateWithSymbols(imm.Expr, e.constantValue)
		if err != nil {
			return 0, fmt.Errorf("invalid expression %q: %v", imm.Expr, err)
		}
		return value, nil
	}
	return e.lookupSymbol(strings.TrimSpace(imm.Expr))
}

// lookupSymbol resolves a name with scope, falling back to a direct lookup
// for dotted names so segment labels like .text stay reachable.
func (e *Encoder) lookupSymbol(name string) (int64, error) {
	if e.symbols == nil {
		return 0, fmt.Errorf("%w: %s", ErrUndefinedSymbol, name)
	}
	sym, ok := e.symbols.Lookup(name)
	if !ok && IsLocalLabel(name) {
		sym, ok = e.symbols.LookupDirect(name)
	}
	if !ok || !sym.Resolved {
		return 0, fmt.Errorf("%w: %s", ErrUndefinedSymbol, name)
	}
	return sym.Value, nil
}

// resolvedValue adapts lookupSymbol to the address-expression callback.
func (e *Encoder) resolvedValue(name string) (int64, bool) {
	value, err := e.lookupSymbol(name)
	return value, err == nil
}

// constantValue resolves only EQU constants, for symbolic immediate
// expressions.
func (e *Encoder) constantValue(name string) (int64, bool) {
	if e.symbols == nil {
		return 0, false
	}
	sym, ok := e.symbols.Lookup(name)
	if !ok || sym.Kind != SymbolConstant || !sym.Resolved {
		return 0, false
	}
	return sym.Value, true
}

// segmentPrefix maps a segment register name to its override prefix byte.
func segmentPrefix(segment string) (byte, bool) {
	switch strings.ToUpper(segment) {
	case "ES":
		return 0x26, true
	case "CS":
		return 0x2E, true
	case "SS":
		return 0x36, true
	case "DS":
		return 0x3E, true
	}
	return 0, false
}

// specWidth returns the immediate width in bytes an operand spec implies.
func specWidth(spec operandSpec) int {
	if spec == specImm8 || spec == specRel8 {
		return 1
	}
	return 2
}

// littleEndian encodes value in width bytes, low byte first.
func littleEndian(value int64, width int) []byte {
	out := make([]byte, width)
	for i := 0; i < width; i++ {
		out[i] = byte(value)
		value >>= 8
	}
	return out
}
