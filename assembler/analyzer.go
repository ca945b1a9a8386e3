package assembler

import (
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/skarsol/asm86/diag"
	"github.com/skarsol/asm86/parser"
)

// zeroOperandSizes lists every mnemonic that encodes as a single opcode byte
// when written without operands.
var zeroOperandSizes = map[string]bool{
	"MOVSB": true, "MOVSW": true, "CMPSB": true, "CMPSW": true,
	"SCASB": true, "SCASW": true, "LODSB": true, "LODSW": true,
	"STOSB": true, "STOSW": true,
	"NOP": true, "HLT": true, "RET": true, "RETF": true, "IRET": true,
	"PUSHA": true, "POPA": true, "PUSHF": true, "POPF": true,
	"CLC": true, "STC": true, "CMC": true, "CLD": true, "STD": true,
	"CLI": true, "STI": true,
	"CBW": true, "CWD": true, "LAHF": true, "SAHF": true,
	"AAA": true, "AAS": true, "AAM": true, "AAD": true, "DAA": true, "DAS": true,
	"XLAT": true, "WAIT": true, "LOCK": true, "INT3": true, "INTO": true,
	"REP": true, "REPE": true, "REPZ": true, "REPNE": true, "REPNZ": true,
}

var conditionalJumps = map[string]bool{
	"JE": true, "JNE": true, "JZ": true, "JNZ": true,
	"JL": true, "JLE": true, "JG": true, "JGE": true,
	"JNL": true, "JNLE": true, "JNG": true, "JNGE": true,
	"JA": true, "JAE": true, "JB": true, "JBE": true,
	"JNA": true, "JNAE": true, "JNB": true, "JNBE": true,
	"JC": true, "JNC": true, "JO": true, "JNO": true,
	"JS": true, "JNS": true, "JP": true, "JPE": true, "JNP": true, "JPO": true,
	"LOOP": true, "LOOPE": true, "LOOPZ": true,
	"LOOPNE": true, "LOOPNZ": true, "JCXZ": true,
}

var aluMnemonics = map[string]bool{
	"ADD": true, "ADC": true, "SUB": true, "SBB": true,
	"CMP": true, "AND": true, "OR": true, "XOR": true,
}

var shiftMnemonics = map[string]bool{
	"ROL": true, "ROR": true, "RCL": true, "RCR": true,
	"SHL": true, "SHR": true, "SAL": true, "SAR": true,
}

var unaryMnemonics = map[string]bool{
	"NOT": true, "NEG": true, "MUL": true, "IMUL": true,
	"DIV": true, "IDIV": true,
}

// terminators end straight-line control flow; used for the segment
// fall-through warning.
var terminators = map[string]bool{
	"HLT": true, "RET": true, "RETF": true, "IRET": true,
	"JMP": true, "INT": true,
}

type segmentInfo struct {
	name    string
	start   uint64
	current uint64
}

// Analyzer runs the multi-pass semantic analysis: pass 1 discovers symbols,
// assigns addresses and estimates sizes; pass 2 verifies that every symbol
// resolved.
type Analyzer struct {
	symbols  *SymbolTable
	reporter *diag.Reporter

	addr     uint64
	segStart uint64
	origin   uint64

	segments       []segmentInfo
	currentSegment string
	lastTerminator bool
}

// NewAnalyzer creates an Analyzer reporting into reporter.
func NewAnalyzer(reporter *diag.Reporter) *Analyzer {
	return &Analyzer{symbols: NewSymbolTable(), reporter: reporter}
}

// SetOrigin sets the initial load origin. An ORG directive overrides it.
func (a *Analyzer) SetOrigin(addr uint64) {
	a.origin = addr
}

// Origin returns the effective origin after analysis.
func (a *Analyzer) Origin() uint64 { return a.origin }

// Symbols exposes the table for the encoder and the symbol export.
func (a *Analyzer) Symbols() *SymbolTable { return a.symbols }

// Analyze runs both passes over the program. It reports into the shared
// reporter and returns false when any error was recorded.
func (a *Analyzer) Analyze(program *parser.Program) bool {
	a.symbols.Clear()
	a.segments = nil
	a.currentSegment = ""
	a.lastTerminator = false
	a.addr = a.origin
	a.segStart = a.origin

	a.pass1(program)
	a.pass2()

	logrus.Debugf("analysis complete: %d statements, final address %#x",
		len(program.Statements), a.addr)
	return !a.reporter.HasErrors()
}

func (a *Analyzer) pass1(program *parser.Program) {
	for _, stmt := range program.Statements {
		a.layoutStatement(stmt)
	}
}

// pass2 is a verification sweep: every symbol created in pass 1 must be
// resolved by now.
func (a *Analyzer) pass2() {
	for _, sym := range a.symbols.All() {
		if !sym.Resolved {
			a.reporter.Errorf(diag.Location{}, "undefined symbol: %s", sym.Name)
		}
	}
}

func (a *Analyzer) layoutStatement(stmt parser.Statement) {
	switch s := stmt.(type) {
	case *parser.Label:
		if !IsLocalLabel(s.Name) {
			a.symbols.SetGlobalScope(s.Name)
		}
		if !a.symbols.Define(s.Name, SymbolLabel, int64(a.addr), s.Loc().Line) {
			a.reporter.Errorf(s.Loc(), "label %q already defined", s.Name)
		}

	case *parser.EquDirective:
		if !a.symbols.Define(s.Name, SymbolConstant, s.Value, s.Loc().Line) {
			a.reporter.Errorf(s.Loc(), "constant %q already defined", s.Name)
		}

	case *parser.OrgDirective:
		a.origin = uint64(s.Address)
		a.addr = uint64(s.Address)
		a.segStart = uint64(s.Address)

	case *parser.SegmentDirective:
		a.enterSegment(s.Name, s.Loc())
		// Segment names like .text are global labels; clear the scope while
		// defining so they are not qualified as locals.
		saved := a.symbols.GlobalScope()
		a.symbols.SetGlobalScope("")
		if !a.symbols.Define(s.Name, SymbolLabel, int64(a.addr), s.Loc().Line) {
			a.symbols.Update(s.Name, int64(a.addr))
		}
		a.symbols.SetGlobalScope(saved)

	case *parser.EndsDirective:
		a.exitSegment(s.Name)

	case *parser.ResDirective:
		a.addr += uint64(s.Width) * uint64(s.Count)

	case *parser.DataDirective:
		if a.resolveDataSymbols(s) {
			a.addr += dataSize(s)
		}

	case *parser.TimesDirective:
		a.layoutTimes(s)

	case *parser.Instruction:
		a.resolveMemoryOperands(s)
		size := a.instructionSize(s)
		s.Addr = a.addr
		s.Size = size
		a.addr += size
		a.lastTerminator = terminators[strings.ToUpper(s.Mnemonic)]
	}
}

func (a *Analyzer) layoutTimes(times *parser.TimesDirective) {
	if times.Count < 0 {
		count, err := a.evaluateCount(times.CountExpr)
		if err != nil {
			a.reporter.Errorf(times.Loc(), "invalid TIMES count %q: %v",
				times.CountExpr, err)
			times.Count = 0
			return
		}
		times.Count = count
	}
	if times.Count < 0 {
		a.reporter.Errorf(times.Loc(), "negative TIMES count %d", times.Count)
		times.Count = 0
		return
	}

	var single uint64
	switch body := times.Body.(type) {
	case *parser.DataDirective:
		if a.resolveDataSymbols(body) {
			single = dataSize(body)
		}
	case *parser.ResDirective:
		single = uint64(body.Width) * uint64(body.Count)
	case *parser.Instruction:
		a.resolveMemoryOperands(body)
		single = a.instructionSize(body)
		body.Addr = a.addr
		body.Size = single
	}

	a.addr += single * uint64(times.Count)
}

// evaluateCount computes a TIMES count at the directive's own address:
// $$ and $ are substituted first, then constants resolve through the table.
func (a *Analyzer) evaluateCount(expr string) (int64, error) {
	s := strings.ReplaceAll(expr, "$$", strconv.FormatUint(a.segStart, 10))
	s = strings.ReplaceAll(s, "$", strconv.FormatUint(a.addr, 10))
	return parser.EvaluateWithSymbols(s, a.symbolValue)
}

func (a *Analyzer) symbolValue(name string) (int64, bool) {
	sym, ok := a.symbols.Lookup(name)
	if !ok || !sym.Resolved {
		return 0, false
	}
	return sym.Value, true
}

// resolveDataSymbols turns symbol references in a data directive into
// numbers. Reports and returns false when one cannot resolve.
func (a *Analyzer) resolveDataSymbols(data *parser.DataDirective) bool {
	ok := true
	for i := range data.Values {
		v := &data.Values[i]
		if v.Kind != parser.DataSymbol {
			continue
		}
		value, found := a.symbolValue(v.Text)
		if !found {
			a.reporter.Errorf(data.Loc(), "undefined symbol: %s", v.Text)
			ok = false
			continue
		}
		v.Kind = parser.DataNumber
		v.Number = value
	}
	return ok
}

// resolveMemoryOperands re-parses every memory operand's address expression
// with symbol substitution: EQU constants (and already-defined labels) fold
// into the displacement, and the direct-address form is detected.
func (a *Analyzer) resolveMemoryOperands(instr *parser.Instruction) {
	for _, op := range instr.Operands {
		mem, ok := op.(*parser.Memory)
		if !ok {
			continue
		}
		parsed, err := parser.ParseAddressWithSymbols(mem.Expr, a.symbolValue)
		if err != nil {
			a.reporter.Errorf(mem.Loc(), "invalid memory operand [%s]: %v", mem.Expr, err)
			continue
		}
		mem.Parsed = parsed
		if len(parsed.Registers) == 0 && !parsed.HasLabel() {
			mem.Direct = true
			mem.DirectValue = uint16(parsed.Disp)
		} else {
			mem.Direct = false
		}
	}
}

func (a *Analyzer) enterSegment(name string, loc diag.Location) {
	if a.currentSegment != "" &&
		isCodeSegment(a.currentSegment) && isDataSegment(name) &&
		!a.lastTerminator {
		a.reporter.Warnf(loc,
			"code segment %q may fall through into data segment %q; add HLT, JMP, or RET before the data section",
			a.currentSegment, name)
	}
	a.lastTerminator = false

	for i := range a.segments {
		if a.segments[i].name == name {
			// Re-entering resumes where the segment left off.
			a.currentSegment = name
			a.addr = a.segments[i].current
			a.segStart = a.segments[i].start
			return
		}
	}

	a.segments = append(a.segments, segmentInfo{name, a.addr, a.addr})
	a.currentSegment = name
	a.segStart = a.addr
}

func (a *Analyzer) exitSegment(name string) {
	for i := range a.segments {
		if a.segments[i].name == name ||
			(name == "" && a.segments[i].name == a.currentSegment) {
			a.segments[i].current = a.addr
			return
		}
	}
}

func isCodeSegment(name string) bool {
	switch strings.ToLower(name) {
	case ".text", "text", ".code", "code", "_text", "_code":
		return true
	}
	return false
}

func isDataSegment(name string) bool {
	switch strings.ToLower(name) {
	case ".data", "data", ".bss", "bss", ".rodata", "rodata", "_data", "_bss":
		return true
	}
	return false
}

// dataSize is the emitted byte count of a data directive: strings contribute
// their length, character literals one byte, numbers the element width.
func dataSize(data *parser.DataDirective) uint64 {
	var size uint64
	for _, v := range data.Values {
		switch v.Kind {
		case parser.DataString:
			size += uint64(len(v.Text))
		case parser.DataChar:
			size++
		default:
			size += uint64(data.Width)
		}
	}
	return size
}

// instructionSize predicts the encoder's byte count for one instruction.
// The rules must reproduce the encoder exactly; size fidelity is what keeps
// label values and the emitted binary consistent.
func (a *Analyzer) instructionSize(instr *parser.Instruction) uint64 {
	mnemonic := strings.ToUpper(instr.Mnemonic)

	if len(instr.Operands) == 0 && zeroOperandSizes[mnemonic] {
		return 1
	}

	if (mnemonic == "RET" || mnemonic == "RETF") && len(instr.Operands) == 1 {
		return 3 // opcode + imm16
	}

	if mnemonic == "JMP" || mnemonic == "CALL" {
		if len(instr.Operands) == 1 {
			if ref, ok := instr.Operands[0].(*parser.LabelRef); ok {
				if mnemonic == "CALL" {
					return 3 // near only
				}
				if ref.Jump == parser.JumpShort {
					return 2
				}
				return 3
			}
			// Indirect through a register or memory.
			if mem, ok := instr.Operands[0].(*parser.Memory); ok {
				return segPrefix(mem) + 1 + a.memorySize(mem)
			}
			return 2
		}
		return 3
	}

	if conditionalJumps[mnemonic] {
		return 2 // opcode + rel8
	}

	if mnemonic == "INT" && len(instr.Operands) == 1 {
		// INT 3 encodes as the one-byte breakpoint opcode.
		if imm, ok := instr.Operands[0].(*parser.Immediate); ok &&
			!imm.Symbolic() && imm.Value == 3 {
			return 1
		}
		return 2
	}

	if (mnemonic == "IN" || mnemonic == "OUT") && len(instr.Operands) == 2 {
		if hasImmediate(instr.Operands) {
			return 2 // opcode + imm8 port
		}
		return 1 // port in DX
	}

	if mnemonic == "MOV" && len(instr.Operands) == 2 {
		return a.movSize(instr)
	}

	if (mnemonic == "PUSH" || mnemonic == "POP") && len(instr.Operands) == 1 {
		if _, ok := instr.Operands[0].(*parser.Register); ok {
			return 1
		}
		if mem, ok := instr.Operands[0].(*parser.Memory); ok {
			return segPrefix(mem) + 1 + a.memorySize(mem)
		}
		return 2
	}

	if (mnemonic == "INC" || mnemonic == "DEC") && len(instr.Operands) == 1 {
		if reg, ok := instr.Operands[0].(*parser.Register); ok {
			if reg.Size == 16 {
				return 1 // 40+r / 48+r
			}
			return 2 // FE /n
		}
		if mem, ok := instr.Operands[0].(*parser.Memory); ok {
			return segPrefix(mem) + 1 + a.memorySize(mem)
		}
		return 2
	}

	if aluMnemonics[mnemonic] && len(instr.Operands) == 2 {
		return a.aluSize(instr)
	}

	if mnemonic == "TEST" && len(instr.Operands) == 2 {
		return a.testSize(instr)
	}

	if shiftMnemonics[mnemonic] {
		return a.shiftSize(instr)
	}

	if unaryMnemonics[mnemonic] {
		if len(instr.Operands) == 1 {
			if mem, ok := instr.Operands[0].(*parser.Memory); ok {
				return segPrefix(mem) + 1 + a.memorySize(mem)
			}
		}
		return 2
	}

	if mnemonic == "LEA" || mnemonic == "LDS" || mnemonic == "LES" {
		if len(instr.Operands) >= 2 {
			if mem, ok := instr.Operands[1].(*parser.Memory); ok {
				return segPrefix(mem) + 1 + a.memorySize(mem)
			}
		}
		return 4 // reg, label: opcode + ModR/M + disp16
	}

	if mnemonic == "XCHG" && len(instr.Operands) == 2 {
		reg1, _ := instr.Operands[0].(*parser.Register)
		reg2, _ := instr.Operands[1].(*parser.Register)
		if (reg1 != nil && reg1.Code == 0 && reg1.Size == 16) ||
			(reg2 != nil && reg2.Code == 0 && reg2.Size == 16) {
			return 1 // 90+r
		}
		if mem, ok := instr.Operands[0].(*parser.Memory); ok {
			return segPrefix(mem) + 1 + a.memorySize(mem)
		}
		if mem, ok := instr.Operands[1].(*parser.Memory); ok {
			return segPrefix(mem) + 1 + a.memorySize(mem)
		}
		return 2
	}

	// Accepted by the lexer but not sized above; the encoder has the final
	// say and the generator pads to this estimate on failure.
	return 3
}

func (a *Analyzer) movSize(instr *parser.Instruction) uint64 {
	dstReg, _ := instr.Operands[0].(*parser.Register)
	srcReg, _ := instr.Operands[1].(*parser.Register)
	dstMem, _ := instr.Operands[0].(*parser.Memory)
	srcMem, _ := instr.Operands[1].(*parser.Memory)
	imm, _ := instr.Operands[1].(*parser.Immediate)

	// MOV reg, imm: B0+r / B8+r.
	if dstReg != nil && imm != nil {
		if dstReg.Size == 16 {
			return 3
		}
		return 2
	}
	if dstReg != nil && srcReg != nil {
		return 2
	}

	mem := dstMem
	if mem == nil {
		mem = srcMem
	}
	if mem == nil {
		return 3
	}
	seg := segPrefix(mem)

	if dstMem != nil && imm != nil {
		return seg + 1 + a.memorySize(dstMem) + immWidth(dstMem, imm)
	}

	// Accumulator to/from a direct address uses the 3-byte moffs encoding.
	// AX also takes it for label-only memory (MEM16 matches those); AL does
	// not (MEM8 requires a folded direct address), so an unresolved label
	// with an 8-bit accumulator goes through the general r/m form.
	acc := dstReg
	if acc == nil || acc.Code != 0 || acc.Segment {
		acc = srcReg
	}
	if acc != nil && acc.Code == 0 && !acc.Segment && (dstMem == nil) != (srcMem == nil) {
		moffs := mem.Direct ||
			(acc.Size == 16 && mem.Parsed != nil && len(mem.Parsed.Registers) == 0)
		if moffs {
			return seg + 3
		}
	}

	return seg + 1 + a.memorySize(mem)
}

func (a *Analyzer) aluSize(instr *parser.Instruction) uint64 {
	reg, _ := instr.Operands[0].(*parser.Register)
	mem, _ := instr.Operands[0].(*parser.Memory)
	imm, _ := instr.Operands[1].(*parser.Immediate)

	if imm != nil {
		// AL/AX, imm: dedicated accumulator opcodes.
		if reg != nil && reg.Code == 0 && !reg.Segment {
			if reg.Size == 16 {
				return 3
			}
			return 2
		}
		if mem != nil {
			return segPrefix(mem) + 1 + a.memorySize(mem) + immWidth(mem, imm)
		}
		if reg != nil && reg.Size == 16 {
			if imm.SizeHint == 8 {
				return 3 // 83 /n sign-extended
			}
			return 4 // 81 /n imm16
		}
		return 3 // 80 /n imm8
	}

	if mem == nil {
		if m, ok := instr.Operands[1].(*parser.Memory); ok {
			mem = m
		}
	}
	if mem != nil {
		return segPrefix(mem) + 1 + a.memorySize(mem)
	}
	return 2 // reg, reg
}

func (a *Analyzer) testSize(instr *parser.Instruction) uint64 {
	reg, _ := instr.Operands[0].(*parser.Register)
	mem, _ := instr.Operands[0].(*parser.Memory)
	imm, _ := instr.Operands[1].(*parser.Immediate)

	if reg != nil && reg.Code == 0 && !reg.Segment && imm != nil {
		if reg.Size == 16 {
			return 3
		}
		return 2
	}
	if imm != nil {
		if mem != nil {
			return segPrefix(mem) + 1 + a.memorySize(mem) + immWidth(mem, imm)
		}
		if reg != nil && reg.Size == 16 {
			return 4
		}
		return 3
	}
	if mem == nil {
		if m, ok := instr.Operands[1].(*parser.Memory); ok {
			mem = m
		}
	}
	if mem != nil {
		return segPrefix(mem) + 1 + a.memorySize(mem)
	}
	return 2 // TEST r/m, reg
}

func (a *Analyzer) shiftSize(instr *parser.Instruction) uint64 {
	base := uint64(2)
	if len(instr.Operands) >= 1 {
		if mem, ok := instr.Operands[0].(*parser.Memory); ok {
			base = segPrefix(mem) + 1 + a.memorySize(mem)
		}
	}
	if len(instr.Operands) == 2 {
		// An explicit count other than 1 appends an immediate byte; shift
		// by CL or by 1 does not.
		if imm, ok := instr.Operands[1].(*parser.Immediate); ok {
			if imm.Symbolic() || imm.Value != 1 {
				return base + 1
			}
		}
	}
	return base
}

// memorySize is the ModR/M byte plus displacement for a memory operand,
// excluding any segment prefix. Identical to what the ModR/M computer emits.
func (a *Analyzer) memorySize(mem *parser.Memory) uint64 {
	if mem == nil {
		return 3
	}
	if mem.Direct {
		return 3 // ModR/M + disp16
	}
	if mem.Parsed == nil {
		return 3
	}
	addr := mem.Parsed

	if len(addr.Registers) == 0 {
		return 3 // direct or label-only: ModR/M + disp16
	}
	if !addr.HasDisp && !addr.HasLabel() {
		if len(addr.Registers) == 1 && addr.Registers[0] == "BP" {
			return 2 // [BP] forces a zero disp8
		}
		return 1
	}
	if addr.HasLabel() {
		return 3 // labels always take a 16-bit displacement
	}
	if addr.Disp >= -128 && addr.Disp <= 127 {
		return 2
	}
	return 3
}

// immWidth picks the immediate width the encoder's row selection will land
// on for a memory destination: byte unless a word is forced by a size hint
// or an out-of-byte-range value.
func immWidth(mem *parser.Memory, imm *parser.Immediate) uint64 {
	if imm.SizeHint == 8 {
		return 1 // sign-extended 83 /n form
	}
	if mem.SizeHint == 16 || imm.SizeHint == 16 {
		return 2
	}
	if !imm.Symbolic() && (imm.Value > 255 || imm.Value < -128) {
		return 2
	}
	return 1
}

func segPrefix(mem *parser.Memory) uint64 {
	if mem != nil && mem.SegOverride != "" {
		return 1
	}
	return 0
}

func hasImmediate(operands []parser.Operand) bool {
	for _, op := range operands {
		if _, ok := op.(*parser.Immediate); ok {
			return true
		}
	}
	return false
}
