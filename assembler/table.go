package assembler

// operandSpec constrains what an operand may be for one encoding row.
type operandSpec int

const (
	specNone operandSpec = iota

	specReg8  // any 8-bit general register
	specReg16 // any 16-bit general register

	specMem8  // direct-address memory (accumulator moffs forms)
	specMem16 // direct/label-only memory, or a plain label reference (LEA)

	specRM8  // register or memory, 8-bit
	specRM16 // register or memory, 16-bit

	specImm8  // immediate in -128..255
	specImm16 // immediate in -32768..65535

	specAL // the AL register
	specAX // the AX register
	specCL // the CL register
	specDX // the DX register

	specSegReg // segment register

	specRel8  // short label reference
	specRel16 // near/far label reference

	specLabel // any label reference
)

// encodingForm selects the byte emitter for a row.
type encodingForm int

const (
	// formModRM: opcode + ModR/M + displacement. The reg field carries the
	// register operand.
	formModRM encodingForm = iota
	// formFixed: opcode byte alone.
	formFixed
	// formRegInOpcode: opcode+reg as one byte, optional trailing immediate.
	formRegInOpcode
	// formImmediate: opcode + immediate (or moffs16 for accumulator MOVs).
	formImmediate
	// formModRMImm: opcode + ModR/M (reg field = /n extension) + immediate.
	formModRMImm
	// formRelative: opcode + signed 8/16-bit offset from instruction end.
	formRelative
)

// encoding is one row of the catalog.
type encoding struct {
	mnemonic string // uppercase
	operands []operandSpec
	form     encodingForm
	opcode   byte
	regField byte // /n extension for formModRMImm
}

// encodings is the static instruction catalog. When several rows match an
// instruction, the most specific one wins; ties break by table order.
var encodings = []encoding{
	// MOV: register to register/memory.
	{"MOV", []operandSpec{specRM8, specReg8}, formModRM, 0x88, 0},
	{"MOV", []operandSpec{specRM16, specReg16}, formModRM, 0x89, 0},
	// MOV: register/memory to register.
	{"MOV", []operandSpec{specReg8, specRM8}, formModRM, 0x8A, 0},
	{"MOV", []operandSpec{specReg16, specRM16}, formModRM, 0x8B, 0},
	// MOV: immediate to register/memory.
	{"MOV", []operandSpec{specRM8, specImm8}, formModRMImm, 0xC6, 0},
	{"MOV", []operandSpec{specRM16, specImm16}, formModRMImm, 0xC7, 0},
	// MOV: accumulator to/from direct memory (moffs).
	{"MOV", []operandSpec{specAL, specMem8}, formImmediate, 0xA0, 0},
	{"MOV", []operandSpec{specAX, specMem16}, formImmediate, 0xA1, 0},
	{"MOV", []operandSpec{specMem8, specAL}, formImmediate, 0xA2, 0},
	{"MOV", []operandSpec{specMem16, specAX}, formImmediate, 0xA3, 0},
	// MOV: immediate to register (B0+r / B8+r).
	{"MOV", []operandSpec{specAL, specImm8}, formRegInOpcode, 0xB0, 0},
	{"MOV", []operandSpec{specReg8, specImm8}, formRegInOpcode, 0xB0, 0},
	{"MOV", []operandSpec{specAX, specImm16}, formRegInOpcode, 0xB8, 0},
	{"MOV", []operandSpec{specReg16, specImm16}, formRegInOpcode, 0xB8, 0},
	// MOV: segment register moves.
	{"MOV", []operandSpec{specRM16, specSegReg}, formModRM, 0x8C, 0},
	{"MOV", []operandSpec{specSegReg, specRM16}, formModRM, 0x8E, 0},

	// ADD.
	{"ADD", []operandSpec{specRM8, specReg8}, formModRM, 0x00, 0},
	{"ADD", []operandSpec{specRM16, specReg16}, formModRM, 0x01, 0},
	{"ADD", []operandSpec{specReg8, specRM8}, formModRM, 0x02, 0},
	{"ADD", []operandSpec{specReg16, specRM16}, formModRM, 0x03, 0},
	{"ADD", []operandSpec{specAL, specImm8}, formImmediate, 0x04, 0},
	{"ADD", []operandSpec{specAX, specImm16}, formImmediate, 0x05, 0},
	{"ADD", []operandSpec{specRM8, specImm8}, formModRMImm, 0x80, 0},
	{"ADD", []operandSpec{specRM16, specImm16}, formModRMImm, 0x81, 0},
	{"ADD", []operandSpec{specRM16, specImm8}, formModRMImm, 0x83, 0}, // sign-extended

	// ADC.
	{"ADC", []operandSpec{specRM8, specReg8}, formModRM, 0x10, 0},
	{"ADC", []operandSpec{specRM16, specReg16}, formModRM, 0x11, 0},
	{"ADC", []operandSpec{specReg8, specRM8}, formModRM, 0x12, 0},
	{"ADC", []operandSpec{specReg16, specRM16}, formModRM, 0x13, 0},
	{"ADC", []operandSpec{specAL, specImm8}, formImmediate, 0x14, 0},
	{"ADC", []operandSpec{specAX, specImm16}, formImmediate, 0x15, 0},
	{"ADC", []operandSpec{specRM8, specImm8}, formModRMImm, 0x80, 2},
	{"ADC", []operandSpec{specRM16, specImm16}, formModRMImm, 0x81, 2},
	{"ADC", []operandSpec{specRM16, specImm8}, formModRMImm, 0x83, 2},

	// SUB.
	{"SUB", []operandSpec{specRM8, specReg8}, formModRM, 0x28, 0},
	{"SUB", []operandSpec{specRM16, specReg16}, formModRM, 0x29, 0},
	{"SUB", []operandSpec{specReg8, specRM8}, formModRM, 0x2A, 0},
	{"SUB", []operandSpec{specReg16, specRM16}, formModRM, 0x2B, 0},
	{"SUB", []operandSpec{specAL, specImm8}, formImmediate, 0x2C, 0},
	{"SUB", []operandSpec{specAX, specImm16}, formImmediate, 0x2D, 0},
	{"SUB", []operandSpec{specRM8, specImm8}, formModRMImm, 0x80, 5},
	{"SUB", []operandSpec{specRM16, specImm16}, formModRMImm, 0x81, 5},
	{"SUB", []operandSpec{specRM16, specImm8}, formModRMImm, 0x83, 5},

	// SBB.
	{"SBB", []operandSpec{specRM8, specReg8}, formModRM, 0x18, 0},
	{"SBB", []operandSpec{specRM16, specReg16}, formModRM, 0x19, 0},
	{"SBB", []operandSpec{specReg8, specRM8}, formModRM, 0x1A, 0},
	{"SBB", []operandSpec{specReg16, specRM16}, formModRM, 0x1B, 0},
	{"SBB", []operandSpec{specAL, specImm8}, formImmediate, 0x1C, 0},
	{"SBB", []operandSpec{specAX, specImm16}, formImmediate, 0x1D, 0},
	{"SBB", []operandSpec{specRM8, specImm8}, formModRMImm, 0x80, 3},
	{"SBB", []operandSpec{specRM16, specImm16}, formModRMImm, 0x81, 3},
	{"SBB", []operandSpec{specRM16, specImm8}, formModRMImm, 0x83, 3},

	// JMP: short, near, and indirect through r/m16.
	{"JMP", []operandSpec{specRel8}, formRelative, 0xEB, 0},
	{"JMP", []operandSpec{specRel16}, formRelative, 0xE9, 0},
	{"JMP", []operandSpec{specRM16}, formModRMImm, 0xFF, 4},

	// Conditional jumps: short only on the 8086.
	{"JO", []operandSpec{specRel8}, formRelative, 0x70, 0},
	{"JNO", []operandSpec{specRel8}, formRelative, 0x71, 0},
	{"JB", []operandSpec{specRel8}, formRelative, 0x72, 0},
	{"JC", []operandSpec{specRel8}, formRelative, 0x72, 0},
	{"JNAE", []operandSpec{specRel8}, formRelative, 0x72, 0},
	{"JNB", []operandSpec{specRel8}, formRelative, 0x73, 0},
	{"JAE", []operandSpec{specRel8}, formRelative, 0x73, 0},
	{"JNC", []operandSpec{specRel8}, formRelative, 0x73, 0},
	{"JE", []operandSpec{specRel8}, formRelative, 0x74, 0},
	{"JZ", []operandSpec{specRel8}, formRelative, 0x74, 0},
	{"JNE", []operandSpec{specRel8}, formRelative, 0x75, 0},
	{"JNZ", []operandSpec{specRel8}, formRelative, 0x75, 0},
	{"JBE", []operandSpec{specRel8}, formRelative, 0x76, 0},
	{"JNA", []operandSpec{specRel8}, formRelative, 0x76, 0},
	{"JNBE", []operandSpec{specRel8}, formRelative, 0x77, 0},
	{"JA", []operandSpec{specRel8}, formRelative, 0x77, 0},
	{"JS", []operandSpec{specRel8}, formRelative, 0x78, 0},
	{"JNS", []operandSpec{specRel8}, formRelative, 0x79, 0},
	{"JP", []operandSpec{specRel8}, formRelative, 0x7A, 0},
	{"JPE", []operandSpec{specRel8}, formRelative, 0x7A, 0},
	{"JNP", []operandSpec{specRel8}, formRelative, 0x7B, 0},
	{"JPO", []operandSpec{specRel8}, formRelative, 0x7B, 0},
	{"JL", []operandSpec{specRel8}, formRelative, 0x7C, 0},
	{"JNGE", []operandSpec{specRel8}, formRelative, 0x7C, 0},
	{"JNL", []operandSpec{specRel8}, formRelative, 0x7D, 0},
	{"JGE", []operandSpec{specRel8}, formRelative, 0x7D, 0},
	{"JLE", []operandSpec{specRel8}, formRelative, 0x7E, 0},
	{"JNG", []operandSpec{specRel8}, formRelative, 0x7E, 0},
	{"JNLE", []operandSpec{specRel8}, formRelative, 0x7F, 0},
	{"JG", []operandSpec{specRel8}, formRelative, 0x7F, 0},

	// CMP.
	{"CMP", []operandSpec{specRM8, specReg8}, formModRM, 0x38, 0},
	{"CMP", []operandSpec{specRM16, specReg16}, formModRM, 0x39, 0},
	{"CMP", []operandSpec{specReg8, specRM8}, formModRM, 0x3A, 0},
	{"CMP", []operandSpec{specReg16, specRM16}, formModRM, 0x3B, 0},
	{"CMP", []operandSpec{specAL, specImm8}, formImmediate, 0x3C, 0},
	{"CMP", []operandSpec{specAX, specImm16}, formImmediate, 0x3D, 0},
	{"CMP", []operandSpec{specRM8, specImm8}, formModRMImm, 0x80, 7},
	{"CMP", []operandSpec{specRM16, specImm16}, formModRMImm, 0x81, 7},
	{"CMP", []operandSpec{specRM16, specImm8}, formModRMImm, 0x83, 7},

	// INC: short form for 16-bit registers, /0 otherwise.
	{"INC", []operandSpec{specRM8}, formModRMImm, 0xFE, 0},
	{"INC", []operandSpec{specRM16}, formModRMImm, 0xFF, 0},
	{"INC", []operandSpec{specAX}, formFixed, 0x40, 0},
	{"INC", []operandSpec{specReg16}, formRegInOpcode, 0x40, 0},

	// DEC.
	{"DEC", []operandSpec{specRM8}, formModRMImm, 0xFE, 1},
	{"DEC", []operandSpec{specRM16}, formModRMImm, 0xFF, 1},
	{"DEC", []operandSpec{specAX}, formFixed, 0x48, 0},
	{"DEC", []operandSpec{specReg16}, formRegInOpcode, 0x48, 0},

	// Unary group F6/F7.
	{"NEG", []operandSpec{specRM8}, formModRMImm, 0xF6, 3},
	{"NEG", []operandSpec{specRM16}, formModRMImm, 0xF7, 3},
	{"MUL", []operandSpec{specRM8}, formModRMImm, 0xF6, 4},
	{"MUL", []operandSpec{specRM16}, formModRMImm, 0xF7, 4},
	{"IMUL", []operandSpec{specRM8}, formModRMImm, 0xF6, 5},
	{"IMUL", []operandSpec{specRM16}, formModRMImm, 0xF7, 5},
	{"DIV", []operandSpec{specRM8}, formModRMImm, 0xF6, 6},
	{"DIV", []operandSpec{specRM16}, formModRMImm, 0xF7, 6},
	{"IDIV", []operandSpec{specRM8}, formModRMImm, 0xF6, 7},
	{"IDIV", []operandSpec{specRM16}, formModRMImm, 0xF7, 7},

	// AND.
	{"AND", []operandSpec{specRM8, specReg8}, formModRM, 0x20, 0},
	{"AND", []operandSpec{specRM16, specReg16}, formModRM, 0x21, 0},
	{"AND", []operandSpec{specReg8, specRM8}, formModRM, 0x22, 0},
	{"AND", []operandSpec{specReg16, specRM16}, formModRM, 0x23, 0},
	{"AND", []operandSpec{specAL, specImm8}, formImmediate, 0x24, 0},
	{"AND", []operandSpec{specAX, specImm16}, formImmediate, 0x25, 0},
	{"AND", []operandSpec{specRM8, specImm8}, formModRMImm, 0x80, 4},
	{"AND", []operandSpec{specRM16, specImm16}, formModRMImm, 0x81, 4},
	{"AND", []operandSpec{specRM16, specImm8}, formModRMImm, 0x83, 4},

	// OR.
	{"OR", []operandSpec{specRM8, specReg8}, formModRM, 0x08, 0},
	{"OR", []operandSpec{specRM16, specReg16}, formModRM, 0x09, 0},
	{"OR", []operandSpec{specReg8, specRM8}, formModRM, 0x0A, 0},
	{"OR", []operandSpec{specReg16, specRM16}, formModRM, 0x0B, 0},
	{"OR", []operandSpec{specAL, specImm8}, formImmediate, 0x0C, 0},
	{"OR", []operandSpec{specAX, specImm16}, formImmediate, 0x0D, 0},
	{"OR", []operandSpec{specRM8, specImm8}, formModRMImm, 0x80, 1},
	{"OR", []operandSpec{specRM16, specImm16}, formModRMImm, 0x81, 1},
	{"OR", []operandSpec{specRM16, specImm8}, formModRMImm, 0x83, 1},

	// XOR.
	{"XOR", []operandSpec{specRM8, specReg8}, formModRM, 0x30, 0},
	{"XOR", []operandSpec{specRM16, specReg16}, formModRM, 0x31, 0},
	{"XOR", []operandSpec{specReg8, specRM8}, formModRM, 0x32, 0},
	{"XOR", []operandSpec{specReg16, specRM16}, formModRM, 0x33, 0},
	{"XOR", []operandSpec{specAL, specImm8}, formImmediate, 0x34, 0},
	{"XOR", []operandSpec{specAX, specImm16}, formImmediate, 0x35, 0},
	{"XOR", []operandSpec{specRM8, specImm8}, formModRMImm, 0x80, 6},
	{"XOR", []operandSpec{specRM16, specImm16}, formModRMImm, 0x81, 6},
	{"XOR", []operandSpec{specRM16, specImm8}, formModRMImm, 0x83, 6},

	// NOT.
	{"NOT", []operandSpec{specRM8}, formModRMImm, 0xF6, 2},
	{"NOT", []operandSpec{specRM16}, formModRMImm, 0xF7, 2},

	// TEST.
	{"TEST", []operandSpec{specRM8, specReg8}, formModRM, 0x84, 0},
	{"TEST", []operandSpec{specRM16, specReg16}, formModRM, 0x85, 0},
	{"TEST", []operandSpec{specAL, specImm8}, formImmediate, 0xA8, 0},
	{"TEST", []operandSpec{specAX, specImm16}, formImmediate, 0xA9, 0},
	{"TEST", []operandSpec{specRM8, specImm8}, formModRMImm, 0xF6, 0},
	{"TEST", []operandSpec{specRM16, specImm16}, formModRMImm, 0xF7, 0},

	// Shifts and rotates: by 1 (implicit), by explicit immediate, by CL.
	{"ROL", []operandSpec{specRM8}, formModRMImm, 0xD0, 0},
	{"ROL", []operandSpec{specRM16}, formModRMImm, 0xD1, 0},
	{"ROR", []operandSpec{specRM8}, formModRMImm, 0xD0, 1},
	{"ROR", []operandSpec{specRM16}, formModRMImm, 0xD1, 1},
	{"RCL", []operandSpec{specRM8}, formModRMImm, 0xD0, 2},
	{"RCL", []operandSpec{specRM16}, formModRMImm, 0xD1, 2},
	{"RCR", []operandSpec{specRM8}, formModRMImm, 0xD0, 3},
	{"RCR", []operandSpec{specRM16}, formModRMImm, 0xD1, 3},
	{"SHL", []operandSpec{specRM8}, formModRMImm, 0xD0, 4},
	{"SHL", []operandSpec{specRM16}, formModRMImm, 0xD1, 4},
	{"SAL", []operandSpec{specRM8}, formModRMImm, 0xD0, 4},
	{"SAL", []operandSpec{specRM16}, formModRMImm, 0xD1, 4},
	{"SHR", []operandSpec{specRM8}, formModRMImm, 0xD0, 5},
	{"SHR", []operandSpec{specRM16}, formModRMImm, 0xD1, 5},
	{"SAR", []operandSpec{specRM8}, formModRMImm, 0xD0, 7},
	{"SAR", []operandSpec{specRM16}, formModRMImm, 0xD1, 7},

	{"ROL", []operandSpec{specRM8, specImm8}, formModRMImm, 0xD0, 0},
	{"ROL", []operandSpec{specRM16, specImm8}, formModRMImm, 0xD1, 0},
	{"ROR", []operandSpec{specRM8, specImm8}, formModRMImm, 0xD0, 1},
	{"ROR", []operandSpec{specRM16, specImm8}, formModRMImm, 0xD1, 1},
	{"RCL", []operandSpec{specRM8, specImm8}, formModRMImm, 0xD0, 2},
	{"RCL", []operandSpec{specRM16, specImm8}, formModRMImm, 0xD1, 2},
	{"RCR", []operandSpec{specRM8, specImm8}, formModRMImm, 0xD0, 3},
	{"RCR", []operandSpec{specRM16, specImm8}, formModRMImm, 0xD1, 3},
	{"SHL", []operandSpec{specRM8, specImm8}, formModRMImm, 0xD0, 4},
	{"SHL", []operandSpec{specRM16, specImm8}, formModRMImm, 0xD1, 4},
	{"SAL", []operandSpec{specRM8, specImm8}, formModRMImm, 0xD0, 4},
	{"SAL", []operandSpec{specRM16, specImm8}, formModRMImm, 0xD1, 4},
	{"SHR", []operandSpec{specRM8, specImm8}, formModRMImm, 0xD0, 5},
	{"SHR", []operandSpec{specRM16, specImm8}, formModRMImm, 0xD1, 5},
	{"SAR", []operandSpec{specRM8, specImm8}, formModRMImm, 0xD0, 7},
	{"SAR", []operandSpec{specRM16, specImm8}, formModRMImm, 0xD1, 7},

	{"ROL", []operandSpec{specRM8, specCL}, formModRMImm, 0xD2, 0},
	{"ROL", []operandSpec{specRM16, specCL}, formModRMImm, 0xD3, 0},
	{"ROR", []operandSpec{specRM8, specCL}, formModRMImm, 0xD2, 1},
	{"ROR", []operandSpec{specRM16, specCL}, formModRMImm, 0xD3, 1},
	{"RCL", []operandSpec{specRM8, specCL}, formModRMImm, 0xD2, 2},
	{"RCL", []operandSpec{specRM16, specCL}, formModRMImm, 0xD3, 2},
	{"RCR", []operandSpec{specRM8, specCL}, formModRMImm, 0xD2, 3},
	{"RCR", []operandSpec{specRM16, specCL}, formModRMImm, 0xD3, 3},
	{"SHL", []operandSpec{specRM8, specCL}, formModRMImm, 0xD2, 4},
	{"SHL", []operandSpec{specRM16, specCL}, formModRMImm, 0xD3, 4},
	{"SAL", []operandSpec{specRM8, specCL}, formModRMImm, 0xD2, 4},
	{"SAL", []operandSpec{specRM16, specCL}, formModRMImm, 0xD3, 4},
	{"SHR", []operandSpec{specRM8, specCL}, formModRMImm, 0xD2, 5},
	{"SHR", []operandSpec{specRM16, specCL}, formModRMImm, 0xD3, 5},
	{"SAR", []operandSpec{specRM8, specCL}, formModRMImm, 0xD2, 7},
	{"SAR", []operandSpec{specRM16, specCL}, formModRMImm, 0xD3, 7},

	// PUSH: 50+r for registers, segment forms fold the register into the
	// opcode, FF /6 for memory.
	{"PUSH", []operandSpec{specAX}, formFixed, 0x50, 0},
	{"PUSH", []operandSpec{specReg16}, formRegInOpcode, 0x50, 0},
	{"PUSH", []operandSpec{specSegReg}, formFixed, 0x06, 0},
	{"PUSH", []operandSpec{specRM16}, formModRMImm, 0xFF, 6},

	// POP.
	{"POP", []operandSpec{specAX}, formFixed, 0x58, 0},
	{"POP", []operandSpec{specReg16}, formRegInOpcode, 0x58, 0},
	{"POP", []operandSpec{specSegReg}, formFixed, 0x07, 0},
	{"POP", []operandSpec{specRM16}, formModRMImm, 0x8F, 0},

	// CALL and returns.
	{"CALL", []operandSpec{specRel16}, formRelative, 0xE8, 0},
	{"CALL", []operandSpec{specRM16}, formModRMImm, 0xFF, 2},
	{"RET", nil, formFixed, 0xC3, 0},
	{"RET", []operandSpec{specImm16}, formImmediate, 0xC2, 0},
	{"RETF", nil, formFixed, 0xCB, 0},
	{"RETF", []operandSpec{specImm16}, formImmediate, 0xCA, 0},

	// LOOP family.
	{"LOOP", []operandSpec{specRel8}, formRelative, 0xE2, 0},
	{"LOOPE", []operandSpec{specRel8}, formRelative, 0xE1, 0},
	{"LOOPZ", []operandSpec{specRel8}, formRelative, 0xE1, 0},
	{"LOOPNE", []operandSpec{specRel8}, formRelative, 0xE0, 0},
	{"LOOPNZ", []operandSpec{specRel8}, formRelative, 0xE0, 0},
	{"JCXZ", []operandSpec{specRel8}, formRelative, 0xE3, 0},

	// Interrupts.
	{"INT", []operandSpec{specImm8}, formImmediate, 0xCD, 0},
	{"INT3", nil, formFixed, 0xCC, 0},
	{"INTO", nil, formFixed, 0xCE, 0},
	{"IRET", nil, formFixed, 0xCF, 0},

	// String operations.
	{"MOVSB", nil, formFixed, 0xA4, 0},
	{"MOVSW", nil, formFixed, 0xA5, 0},
	{"CMPSB", nil, formFixed, 0xA6, 0},
	{"CMPSW", nil, formFixed, 0xA7, 0},
	{"SCASB", nil, formFixed, 0xAE, 0},
	{"SCASW", nil, formFixed, 0xAF, 0},
	{"LODSB", nil, formFixed, 0xAC, 0},
	{"LODSW", nil, formFixed, 0xAD, 0},
	{"STOSB", nil, formFixed, 0xAA, 0},
	{"STOSW", nil, formFixed, 0xAB, 0},

	// Repeat prefixes.
	{"REP", nil, formFixed, 0xF3, 0},
	{"REPE", nil, formFixed, 0xF3, 0},
	{"REPZ", nil, formFixed, 0xF3, 0},
	{"REPNE", nil, formFixed, 0xF2, 0},
	{"REPNZ", nil, formFixed, 0xF2, 0},

	// I/O.
	{"IN", []operandSpec{specAL, specImm8}, formImmediate, 0xE4, 0},
	{"IN", []operandSpec{specAX, specImm8}, formImmediate, 0xE5, 0},
	{"IN", []operandSpec{specAL, specDX}, formFixed, 0xEC, 0},
	{"IN", []operandSpec{specAX, specDX}, formFixed, 0xED, 0},
	{"OUT", []operandSpec{specImm8, specAL}, formImmediate, 0xE6, 0},
	{"OUT", []operandSpec{specImm8, specAX}, formImmediate, 0xE7, 0},
	{"OUT", []operandSpec{specDX, specAL}, formFixed, 0xEE, 0},
	{"OUT", []operandSpec{specDX, specAX}, formFixed, 0xEF, 0},

	// No-operand instructions.
	{"NOP", nil, formFixed, 0x90, 0},
	{"HLT", nil, formFixed, 0xF4, 0},
	{"PUSHA", nil, formFixed, 0x60, 0},
	{"POPA", nil, formFixed, 0x61, 0},
	{"CLC", nil, formFixed, 0xF8, 0},
	{"STC", nil, formFixed, 0xF9, 0},
	{"CMC", nil, formFixed, 0xF5, 0},
	{"CLD", nil, formFixed, 0xFC, 0},
	{"STD", nil, formFixed, 0xFD, 0},
	{"CLI", nil, formFixed, 0xFA, 0},
	{"STI", nil, formFixed, 0xFB, 0},
	{"LAHF", nil, formFixed, 0x9F, 0},
	{"SAHF", nil, formFixed, 0x9E, 0},
	{"PUSHF", nil, formFixed, 0x9C, 0},
	{"POPF", nil, formFixed, 0x9D, 0},
	{"CBW", nil, formFixed, 0x98, 0},
	{"CWD", nil, formFixed, 0x99, 0},
	{"AAA", nil, formFixed, 0x37, 0},
	{"AAS", nil, formFixed, 0x3F, 0},
	{"AAM", nil, formFixed, 0xD4, 0},
	{"AAD", nil, formFixed, 0xD5, 0},
	{"DAA", nil, formFixed, 0x27, 0},
	{"DAS", nil, formFixed, 0x2F, 0},
	{"XLAT", nil, formFixed, 0xD7, 0},
	{"WAIT", nil, formFixed, 0x9B, 0},
	{"LOCK", nil, formFixed, 0xF0, 0},

	// XCHG: single-byte accumulator form, ModR/M otherwise.
	{"XCHG", []operandSpec{specAX, specReg16}, formRegInOpcode, 0x90, 0},
	{"XCHG", []operandSpec{specReg16, specAX}, formRegInOpcode, 0x90, 0},
	{"XCHG", []operandSpec{specReg8, specRM8}, formModRM, 0x86, 0},
	{"XCHG", []operandSpec{specReg16, specRM16}, formModRM, 0x87, 0},

	// Address loads.
	{"LEA", []operandSpec{specReg16, specMem16}, formModRM, 0x8D, 0},
	{"LDS", []operandSpec{specReg16, specMem16}, formModRM, 0xC5, 0},
	{"LES", []operandSpec{specReg16, specMem16}, formModRM, 0xC4, 0},
}
