package assembler

import (
	"fmt"
	"strings"

	"github.com/skarsol/asm86/parser"
)

// The 8086 effective-address table is fixed: these are the only register
// combinations a ModR/M byte can express.
var rmCodes = map[string]byte{
	"BX+SI": 0x00,
	"BX+DI": 0x01,
	"BP+SI": 0x02,
	"BP+DI": 0x03,
	"SI":    0x04,
	"DI":    0x05,
	"BP":    0x06,
	"BX":    0x07,
}

// modRM packs the mod, reg and rm fields into one byte.
func modRM(mod, reg, rm byte) byte {
	return ((mod & 0x03) << 6) | ((reg & 0x07) << 3) | (rm & 0x07)
}

// regToReg builds a register-to-register ModR/M byte (mod=11).
func regToReg(regField, rmField byte) byte {
	return modRM(0x03, regField, rmField)
}

// directModRM encodes a direct address: mod=00, rm=110, disp16.
func directModRM(address uint16, regField byte) (byte, []byte) {
	return modRM(0x00, regField, 0x06), []byte{byte(address), byte(address >> 8)}
}

// memoryModRM encodes a parsed address expression. The resolve callback
// supplies label values; a label forces a 16-bit displacement so the byte
// count matches the analyzer's estimate.
func memoryModRM(addr *parser.AddrExpr, regField byte, resolve func(string) (int64, bool)) (byte, []byte, error) {
	disp := addr.Disp
	hasDisp := addr.HasDisp
	hasLabel := addr.HasLabel()

	if hasLabel {
		if resolve == nil {
			return 0, nil, fmt.Errorf("%w: %s", ErrUndefinedSymbol, addr.Label)
		}
		value, ok := resolve(addr.Label)
		if !ok {
			return 0, nil, fmt.Errorf("%w: %s", ErrUndefinedSymbol, addr.Label)
		}
		disp += value
		hasDisp = true
	}

	rm, err := rmCode(addr.Registers)
	if err != nil {
		return 0, nil, err
	}

	// Direct address: no registers, just a displacement or label.
	if len(addr.Registers) == 0 {
		if !hasDisp && !hasLabel {
			return 0, nil, fmt.Errorf("%w: empty address expression", ErrInvalidAddressing)
		}
		modrm, dispBytes := directModRM(uint16(disp), regField)
		return modrm, dispBytes, nil
	}

	// [BP] has no mod=00 encoding; force a zero disp8.
	if !hasDisp && len(addr.Registers) == 1 && addr.Registers[0] == "BP" {
		return modRM(0x01, regField, rm), []byte{0x00}, nil
	}

	switch {
	case !hasDisp:
		return modRM(0x00, regField, rm), nil, nil
	case !hasLabel && disp >= -128 && disp <= 127:
		return modRM(0x01, regField, rm), []byte{byte(disp)}, nil
	default:
		// 16-bit displacement, or any label reference.
		return modRM(0x02, regField, rm), []byte{byte(disp), byte(disp >> 8)}, nil
	}
}

// rmCode maps a register combination to its R/M field value.
func rmCode(registers []string) (byte, error) {
	switch len(registers) {
	case 0:
		return 0x06, nil // direct address
	case 1:
		if code, ok := rmCodes[registers[0]]; ok {
			return code, nil
		}
		return 0, fmt.Errorf("%w: %s is not an addressing register",
			ErrInvalidAddressing, registers[0])
	case 2:
		has := func(r string) bool {
			return registers[0] == r || registers[1] == r
		}
		switch {
		case has("BX") && has("SI"):
			return rmCodes["BX+SI"], nil
		case has("BX") && has("DI"):
			return rmCodes["BX+DI"], nil
		case has("BP") && has("SI"):
			return rmCodes["BP+SI"], nil
		case has("BP") && has("DI"):
			return rmCodes["BP+DI"], nil
		}
		return 0, fmt.Errorf("%w: [%s] is not a valid 8086 register pair",
			ErrInvalidAddressing, strings.Join(registers, "+"))
	}
	return 0, fmt.Errorf("%w: too many registers in [%s]",
		ErrInvalidAddressing, strings.Join(registers, "+"))
}
