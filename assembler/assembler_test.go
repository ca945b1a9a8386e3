package assembler_test

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skarsol/asm86/assembler"
)

// Assembles source and checks the binary against an expected byte sequence
// (in hex). Validates output length and content.
func assembleAndMatchHex(t *testing.T, name, src, expectedHex string) {
	t.Helper()

	expected, err := hex.DecodeString(strings.ToLower(strings.Join(strings.Fields(expectedHex), "")))
	require.NoError(t, err, "[%s] invalid expected hex string", name)

	result := assembler.New().Assemble(src, "test.asm")
	require.True(t, result.Success, "[%s] failed to assemble:\n%s\nerrors: %v",
		name, src, result.Err())
	assert.Equal(t, expected, result.Binary, "[%s] binary mismatch", name)
}

func TestBasicEncodings(t *testing.T) {
	tests := []struct {
		name, src, hex string
	}{
		{"NOP", "nop", "90"},
		{"HLT", "hlt", "F4"},
		{"MOV_AX_Imm16", "mov ax, 0x1234", "B8 34 12"},
		{"MOV_AL_Imm8", "mov al, 0x42", "B0 42"},
		{"MOV_BX_Imm", "mov bx, 0x10", "BB 10 00"},
		{"MOV_CL_Imm", "mov cl, 7", "B1 07"},
		{"PUSH_AX", "push ax", "50"},
		{"POP_BX", "pop bx", "5B"},
		{"PUSH_ES", "push es", "06"},
		{"PUSH_DS", "push ds", "1E"},
		{"POP_DS", "pop ds", "1F"},
		{"INC_AX", "inc ax", "40"},
		{"DEC_BX", "dec bx", "4B"},
		{"INC_AL", "inc al", "FE C0"},
		{"INT3_Explicit", "int3", "CC"},
		{"INT_3", "int 3", "CC"},
		{"INT_21", "int 0x21", "CD 21"},
		{"ADD_AX_Imm", "add ax, 0x1234", "05 34 12"},
		{"SUB_AL_Imm", "sub al, 10", "2C 0A"},
		{"IN_AL_DX", "in al, dx", "EC"},
		{"OUT_DX_AL", "out dx, al", "EE"},
		{"IN_AL_Port", "in al, 0x60", "E4 60"},
		{"OUT_Port_AL", "out 0x20, al", "E6 20"},
		{"XCHG_AX_BX", "xchg ax, bx", "93"},
		{"XCHG_BX_AX", "xchg bx, ax", "93"},
		{"REP_MOVSB", "rep\nmovsb", "F3 A4"},
		{"REPNE_SCASB", "repne\nscasb", "F2 AE"},
		{"RET", "ret", "C3"},
		{"RET_Imm", "ret 2", "C2 02 00"},
		{"RETF_Imm", "retf 4", "CA 04 00"},
		{"IRET", "iret", "CF"},
		{"CLI_STI", "cli\nsti", "FA FB"},
		{"PUSHF_POPF", "pushf\npopf", "9C 9D"},
		{"CBW_CWD", "cbw\ncwd", "98 99"},
		{"AAM_AAD", "aam\naad", "D4 D5"},
		{"XLAT", "xlat", "D7"},
		{"STRING_OPS", "lodsb\nstosw\ncmpsb\nscasw", "AC AB A6 AF"},
	}
	for _, tc := range tests {
		assembleAndMatchHex(t, tc.name, tc.src, tc.hex)
	}
}

func TestRegisterToRegister(t *testing.T) {
	tests := []struct {
		name, src, hex string
	}{
		// The source register carries the reg field.
		{"MOV_AX_BX", "mov ax, bx", "89 D8"},
		{"MOV_BL_AL", "mov bl, al", "88 C3"},
		{"XOR_AX_AX", "xor ax, ax", "31 C0"},
		{"ADD_CX_DX", "add cx, dx", "01 D1"},
		{"CMP_AL_BL", "cmp al, bl", "38 D8"},
		{"TEST_AX_BX", "test ax, bx", "85 D8"},
		{"MOV_AX_CS", "mov ax, cs", "8C C8"},
		{"NEG_AX", "neg ax", "F7 D8"},
		{"NOT_BL", "not bl", "F6 D3"},
		{"MUL_BL", "mul bl", "F6 E3"},
		{"DIV_CX", "div cx", "F7 F1"},
		{"JMP_Indirect_BX", "jmp bx", "FF E3"},
		{"CALL_Indirect_BX", "call bx", "FF D3"},
	}
	for _, tc := range tests {
		assembleAndMatchHex(t, tc.name, tc.src, tc.hex)
	}
}

func TestMemoryAddressing(t *testing.T) {
	tests := []struct {
		name, src, hex string
	}{
		{"MOV_BXInd_AL", "mov [bx], al", "88 07"},
		{"MOV_AX_SIInd", "mov ax, [si]", "8B 04"},
		{"MOV_BPInd_AX", "mov [bp], ax", "89 46 00"}, // [BP] forces disp8
		{"MOV_AX_BXSI", "mov ax, [bx+si]", "8B 00"},
		{"MOV_AX_BPDI", "mov ax, [bp+di]", "8B 03"},
		{"MOV_Disp8", "mov [bx+4], al", "88 47 04"},
		{"MOV_NegDisp8", "mov [bx-2], al", "88 47 FE"},
		{"MOV_Disp16", "mov [bx+0x200], al", "88 87 00 02"},
		{"MOV_Direct_AX", "mov [0x1234], ax", "A3 34 12"}, // moffs form
		{"MOV_AX_Direct", "mov ax, [0x1234]", "A1 34 12"},
		{"MOV_AL_Direct", "mov al, [0x1234]", "A0 34 12"},
		{"MOV_CL_Direct", "mov cl, [0x1234]", "8A 0E 34 12"},
		{"MOV_BX_Direct", "mov bx, [0x10]", "8B 1E 10 00"},
		{"SegOverride_Outside", "mov es:[di], ax", "26 89 05"},
		{"SegOverride_Inside", "mov [es:di], ax", "26 89 05"},
		{"SegOverride_CS", "mov ax, cs:[si]", "2E 8B 04"},
		{"MOV_Mem_Imm8", "mov [bx], 5", "C6 07 05"},
		{"MOV_Mem_Imm16", "mov word [bx], 5", "C7 07 05 00"},
		{"ADD_Mem_Reg", "add [bx+si], cl", "00 08"},
		{"PUSH_Mem", "push word [bx]", "FF 37"},
		{"POP_Mem", "pop word [si]", "8F 04"},
		{"INC_Mem", "inc byte [bx]", "FE 07"},
		{"JMP_Mem", "jmp word [bx]", "FF 27"},
	}
	for _, tc := range tests {
		assembleAndMatchHex(t, tc.name, tc.src, tc.hex)
	}
}

func TestShiftsAndImmediates(t *testing.T) {
	tests := []struct {
		name, src, hex string
	}{
		{"SHL_AX_1", "shl ax, 1", "D1 E0"},
		{"SHR_BL_1", "shr bl, 1", "D0 EB"},
		{"SHL_AX_CL", "shl ax, cl", "D3 E0"},
		{"SAR_DX_CL", "sar dx, cl", "D3 FA"},
		{"ROL_AL_1", "rol al, 1", "D0 C0"},
		// Table order picks the imm16 row for an unhinted immediate.
		{"ADD_BX_Imm", "add bx, 5", "81 C3 05 00"},
		{"ADD_BX_ByteImm", "add bx, byte 5", "83 C3 05"},
		{"ADD_BL_Imm", "add bl, 5", "80 C3 05"},
		{"AND_AX_Imm", "and ax, 0x00FF", "25 FF 00"},
		{"OR_AL_Imm", "or al, 0x80", "0C 80"},
		{"TEST_AL_Imm", "test al, 1", "A8 01"},
		{"TEST_BL_Imm", "test bl, 1", "F6 C3 01"},
		{"CMP_BX_ByteImm", "cmp bx, byte 1", "83 FB 01"},
	}
	for _, tc := range tests {
		assembleAndMatchHex(t, tc.name, tc.src, tc.hex)
	}
}

func TestJumpsAndCalls(t *testing.T) {
	tests := []struct {
		name, src, hex string
	}{
		{"JMP_Near_Back", "start: nop\njmp start", "90 E9 FC FF"},
		{"JMP_Short_Back", "start: nop\njmp short start", "90 EB FD"},
		{"JE_Forward", "je done\nnop\ndone: ret", "74 01 90 C3"},
		{"JNZ_Back", "loop_top: dec cx\njnz loop_top", "49 75 FD"},
		{"LOOP_Back", "top: nop\nloop top", "90 E2 FD"},
		{"JCXZ_Forward", "jcxz skip\nnop\nskip: ret", "E3 01 90 C3"},
		{"CALL_Forward", "call fn\nfn: ret", "E8 00 00 C3"},
		{"CALL_Back", "fn: ret\ncall fn", "C3 E8 FC FF"},
	}
	for _, tc := range tests {
		assembleAndMatchHex(t, tc.name, tc.src, tc.hex)
	}
}

func TestJumpShortUpgrade(t *testing.T) {
	// A SHORT jump whose target is out of range silently upgrades to near.
	src := "jmp short far_away\ntimes 200 nop\nfar_away: ret"
	result := assembler.New().Assemble(src, "test.asm")
	require.True(t, result.Success, "errors: %v", result.Err())
	assert.Equal(t, byte(0xE9), result.Binary[0])
}

func TestConditionalJumpOutOfRange(t *testing.T) {
	// Conditional jumps have no near form on the 8086.
	src := "je far_away\ntimes 200 nop\nfar_away: ret"
	result := assembler.New().Assemble(src, "test.asm")
	assert.False(t, result.Success)
	require.Error(t, result.Err())
	assert.Contains(t, result.Err().Error(), "out of short range")
}

func TestUndefinedSymbol(t *testing.T) {
	result := assembler.New().Assemble("jmp missing_label", "test.asm")
	assert.False(t, result.Success)
	require.Error(t, result.Err())
	assert.Contains(t, result.Err().Error(), "undefined symbol")
}

func TestDuplicateLabel(t *testing.T) {
	result := assembler.New().Assemble("here: nop\nhere: nop", "test.asm")
	assert.False(t, result.Success)
	assert.Contains(t, result.Err().Error(), "already defined")
}

func TestLabelsAndSymbols(t *testing.T) {
	tests := []struct {
		name, src, hex string
	}{
		{"LEA_Label", "lea si, msg\nmsg: db 'A'", "8D 36 04 00 41"},
		{"MOV_LabelImm", "mov ax, msg\nmsg: db 0", "B8 03 00 00"},
		{"MemLabel", "msg: db 7\nmov al, [msg]", "07 A0 00 00"},
		{"MemLabel16", "mov ax, [msg]\nmsg: db 7", "A1 03 00 07"},
		{"MemLabelPlusReg", "mov al, [bx+msg]\nmsg: db 7", "8A 87 04 00 07"},
		{"DataSymbol", "value equ 0x1234\ndw value", "34 12"},
	}
	for _, tc := range tests {
		assembleAndMatchHex(t, tc.name, tc.src, tc.hex)
	}
}

func TestEquConstants(t *testing.T) {
	tests := []struct {
		name, src, hex string
	}{
		{"EQU_Immediate", "count equ 5\nmov ax, count", "B8 05 00"},
		{"EQU_Expression", "count equ 5\nmov ax, count+2", "B8 07 00"},
		{"EQU_Scaled", "count equ 5\nmov ax, count*2", "B8 0A 00"},
		{"EQU_InBrackets", "off equ 8\nmov ax, [bx+off]", "8B 47 08"},
		{"EQU_CaseInsensitive", "Count equ 5\nmov ax, COUNT", "B8 05 00"},
	}
	for _, tc := range tests {
		assembleAndMatchHex(t, tc.name, tc.src, tc.hex)
	}
}

func TestDataDirectives(t *testing.T) {
	tests := []struct {
		name, src, hex string
	}{
		{"DB_Bytes", "db 0x11, 0x22, 0x33", "11 22 33"},
		{"DW_LittleEndian", "dw 0x1122, 0x3344", "22 11 44 33"},
		{"DD_LittleEndian", "dd 0x11223344", "44 33 22 11"},
		{"DB_String", `db "Hi", 0`, "48 69 00"},
		{"DB_Char", "db 'A', 'B'", "41 42"},
		{"DB_Negative", "db -1", "FF"},
		{"RESB", "resb 4", "00 00 00 00"},
		{"RESW", "resw 2", "00 00 00 00"},
		{"TIMES_NOP", "times 3 nop", "90 90 90"},
		{"TIMES_DB", "times 4 db 0xAA", "AA AA AA AA"},
		{"LabelNoColon", "buffer db 1, 2", "01 02"},
	}
	for _, tc := range tests {
		assembleAndMatchHex(t, tc.name, tc.src, tc.hex)
	}
}

func TestLocalLabels(t *testing.T) {
	// Two .loop labels under different global scopes coexist.
	src := strings.Join([]string{
		"first:",
		".loop: dec cx",
		"jnz .loop",
		"second:",
		".loop: dec dx",
		"jnz .loop",
	}, "\n")
	assembleAndMatchHex(t, "LocalLabels", src, "49 75 FD 4A 75 FD")
}

func TestOriginAndSymbols(t *testing.T) {
	src := "org 0x7C00\nentry: nop"
	result := assembler.New().Assemble(src, "test.asm")
	require.True(t, result.Success, "errors: %v", result.Err())
	assert.Equal(t, uint64(0x7C00), result.Origin)
	assert.Equal(t, uint64(0x7C00), result.Symbols["entry"])
}

func TestSetOrigin(t *testing.T) {
	asm := assembler.New()
	asm.SetOrigin(0x100)
	result := asm.Assemble("entry: nop", "test.asm")
	require.True(t, result.Success)
	assert.Equal(t, uint64(0x100), result.Symbols["entry"])
}

func TestBootSector(t *testing.T) {
	src := strings.Join([]string{
		"org 0x7C00",
		"start:",
		"cli",
		"xor ax, ax",
		"mov ds, ax",
		"mov es, ax",
		"mov ss, ax",
		"mov sp, 0x7C00",
		"sti",
		".halt:",
		"hlt",
		"jmp short .halt",
		"times 510-($-$$) db 0",
		"dw 0xAA55",
	}, "\n")

	result := assembler.New().Assemble(src, "boot.asm")
	require.True(t, result.Success, "errors: %v", result.Err())
	require.Len(t, result.Binary, 512)
	assert.Equal(t, uint64(0x7C00), result.Origin)
	assert.Equal(t, uint64(0x7C00), result.Symbols["start"])
	assert.Equal(t, byte(0x55), result.Binary[510])
	assert.Equal(t, byte(0xAA), result.Binary[511])
}

func TestSegmentFallThroughWarning(t *testing.T) {
	src := "section .text\nmov ax, 1\nsection .data\ndb 0"
	result := assembler.New().Assemble(src, "test.asm")
	assert.True(t, result.Success, "a warning must not fail the run")

	found := false
	for _, rec := range result.Diagnostics {
		if strings.Contains(rec.Message, "fall through") {
			found = true
			assert.False(t, rec.IsError())
		}
	}
	assert.True(t, found, "expected a fall-through warning")

	// With a terminator in between there is nothing to warn about.
	src = "section .text\nmov ax, 1\nhlt\nsection .data\ndb 0"
	result = assembler.New().Assemble(src, "test.asm")
	assert.True(t, result.Success)
	for _, rec := range result.Diagnostics {
		assert.NotContains(t, rec.Message, "fall through")
	}
}

func TestWarningsDisabled(t *testing.T) {
	asm := assembler.New()
	asm.EnableWarnings(false)
	src := "section .text\nmov ax, 1\nsection .data\ndb 0"
	result := asm.Assemble(src, "test.asm")
	assert.True(t, result.Success)
	assert.Empty(t, result.Diagnostics)
}

func TestFailedEncodingPadsEstimate(t *testing.T) {
	// A failing instruction pads with its estimated size so later label
	// values stay consistent with the emitted binary.
	src := "jmp missing\nafter: nop"
	result := assembler.New().Assemble(src, "test.asm")
	assert.False(t, result.Success)
	require.Len(t, result.Binary, 4)
	assert.Equal(t, []byte{0, 0, 0}, result.Binary[:3])
	assert.Equal(t, byte(0x90), result.Binary[3])
	assert.Equal(t, uint64(3), result.Symbols["after"])
}

func TestListingFormat(t *testing.T) {
	result := assembler.New().Assemble("org 0x100\nstart: nop\nmov ax, 1", "test.asm")
	require.True(t, result.Success)

	text := result.ListingText()
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	require.Len(t, lines, 4) // ORG, label, NOP, MOV
	for _, line := range lines {
		assert.Equal(t, 3, len(strings.Split(line, " | ")), "line %q", line)
	}
	assert.True(t, strings.HasPrefix(lines[1], "0100 | "))
	assert.Contains(t, lines[1], "start:")
	assert.Contains(t, lines[3], "B8 01 00")
}

func TestDiagnosticFormat(t *testing.T) {
	result := assembler.New().Assemble("here: nop\nhere: nop", "dup.asm")
	require.NotEmpty(t, result.Diagnostics)

	var formatted string
	for _, rec := range result.Diagnostics {
		if rec.IsError() {
			formatted = rec.Format()
			break
		}
	}
	assert.True(t, strings.HasPrefix(formatted, "dup.asm:2:"), "got %q", formatted)
	assert.Contains(t, formatted, ": error: ")
}

func TestCaseInsensitiveMnemonicsAndLabels(t *testing.T) {
	tests := []struct {
		name, src, hex string
	}{
		{"UpperMnemonic", "MOV AX, 0x1234", "B8 34 12"},
		{"MixedCase", "MoV aX, 0x1234", "B8 34 12"},
		{"LabelCase", "Done: NOP\njmp done", "90 E9 FC FF"},
	}
	for _, tc := range tests {
		assembleAndMatchHex(t, tc.name, tc.src, tc.hex)
	}
}

func TestSegmentSwitchAddress(t *testing.T) {
	// A label in a newly opened segment takes the address where the previous
	// segment's code ended (two one-byte instructions, so 2).
	src := strings.Join([]string{
		"section .text",
		"nop",
		"hlt",
		"section .data",
		"val: db 1",
	}, "\n")
	result := assembler.New().Assemble(src, "test.asm")
	require.True(t, result.Success, "errors: %v", result.Err())
	assert.Equal(t, uint64(2), result.Symbols["val"])
}

func TestNumberBases(t *testing.T) {
	tests := []struct {
		name, src, hex string
	}{
		{"HexPrefix", "mov ax, 0x10", "B8 10 00"},
		{"HexSuffix", "mov ax, 10h", "B8 10 00"},
		{"HexDollar", "mov ax, $10", "B8 10 00"},
		{"BinaryPrefix", "mov ax, 0b1010", "B8 0A 00"},
		{"BinarySuffix", "mov ax, 1010b", "B8 0A 00"},
		{"OctalPrefix", "mov ax, 0o17", "B8 0F 00"},
		{"OctalSuffix", "mov ax, 17o", "B8 0F 00"},
		{"Decimal", "mov ax, 100", "B8 64 00"},
		{"CharLiteral", "mov al, 'A'", "B0 41"},
	}
	for _, tc := range tests {
		assembleAndMatchHex(t, tc.name, tc.src, tc.hex)
	}
}
