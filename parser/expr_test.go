package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateArithmetic(t *testing.T) {
	tests := []struct {
		expr string
		want int64
	}{
		{"42", 42},
		{"2+3", 5},
		{"10-4", 6},
		{"3*4", 12},
		{"20/5", 4},
		{"2+3*4", 14},    // * binds tighter
		{"10-2*3", 4},
		{"(2+3)*4", 20},  // parens
		{"10-4-3", 3},    // left associative subtraction
		{"100/5/2", 10},  // left associative division
		{"7/2", 3},       // truncation toward zero
		{"-7/2", -3},
		{"-5", -5},
		{"-5+10", 5},
		{"2*-3", -6},     // unary minus after operator
		{"510-(16-0)", 494},
		{"1 + 2 * 3", 7}, // whitespace is ignored
	}
	for _, tc := range tests {
		got, err := Evaluate(tc.expr)
		require.NoError(t, err, "expr %q", tc.expr)
		assert.Equal(t, tc.want, got, "expr %q", tc.expr)
	}
}

func TestEvaluateErrors(t *testing.T) {
	for _, expr := range []string{"", "5/0", "2+", "abc", "1+*2"} {
		_, err := Evaluate(expr)
		assert.Error(t, err, "expr %q", expr)
	}
}

func TestEvaluateWithContext(t *testing.T) {
	// $$ substitutes before $ so the marker is not split.
	got, err := EvaluateWithContext("510-($-$$)", 0x7C10, 0x7C00)
	require.NoError(t, err)
	assert.Equal(t, int64(494), got)

	got, err = EvaluateWithContext("$", 0x100, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0x100), got)
}

func TestEvaluateWithSymbols(t *testing.T) {
	lookup := func(name string) (int64, bool) {
		if name == "count" {
			return 5, true
		}
		return 0, false
	}

	got, err := EvaluateWithSymbols("count*2+1", lookup)
	require.NoError(t, err)
	assert.Equal(t, int64(11), got)

	_, err = EvaluateWithSymbols("missing+1", lookup)
	assert.Error(t, err)
}

func TestParseNumberBases(t *testing.T) {
	tests := []struct {
		text string
		want int64
	}{
		{"255", 255},
		{"0xFF", 255},
		{"0ffh", 255},
		{"$FF", 255},
		{"0b1010", 10},
		{"1010b", 10},
		{"0o17", 15},
		{"17o", 15},
		{"17q", 15},
		{"-16", -16},
	}
	for _, tc := range tests {
		got, err := ParseNumber(tc.text)
		require.NoError(t, err, "number %q", tc.text)
		assert.Equal(t, tc.want, got, "number %q", tc.text)
	}

	for _, text := range []string{"", "-", "zz", "0x"} {
		_, err := ParseNumber(text)
		assert.Error(t, err, "number %q", text)
	}
}

func TestParseAddress(t *testing.T) {
	addr, err := ParseAddress("bx+si")
	require.NoError(t, err)
	assert.Equal(t, []string{"BX", "SI"}, addr.Registers)
	assert.False(t, addr.HasDisp)

	addr, err = ParseAddress("bx+4")
	require.NoError(t, err)
	assert.Equal(t, []string{"BX"}, addr.Registers)
	assert.Equal(t, int64(4), addr.Disp)
	assert.True(t, addr.HasDisp)

	addr, err = ParseAddress("bx-2")
	require.NoError(t, err)
	assert.Equal(t, int64(-2), addr.Disp)

	addr, err = ParseAddress("0x1234")
	require.NoError(t, err)
	assert.Empty(t, addr.Registers)
	assert.Equal(t, int64(0x1234), addr.Disp)

	addr, err = ParseAddress("bp+si+8")
	require.NoError(t, err)
	assert.Equal(t, []string{"BP", "SI"}, addr.Registers)
	assert.Equal(t, int64(8), addr.Disp)

	addr, err = ParseAddress("msg")
	require.NoError(t, err)
	assert.Equal(t, "msg", addr.Label)
	assert.Empty(t, addr.Registers)
}

func TestParseAddressErrors(t *testing.T) {
	// A negated register has no encoding.
	_, err := ParseAddress("bx-si")
	assert.Error(t, err)

	// Only one unresolved label may remain.
	_, err = ParseAddress("foo+bar")
	assert.Error(t, err)
}

func TestParseAddressWithSymbols(t *testing.T) {
	lookup := func(name string) (int64, bool) {
		if name == "off" {
			return 8, true
		}
		return 0, false
	}

	// A resolvable constant folds into the displacement.
	addr, err := ParseAddressWithSymbols("bx+off", lookup)
	require.NoError(t, err)
	assert.Equal(t, []string{"BX"}, addr.Registers)
	assert.Equal(t, int64(8), addr.Disp)
	assert.Empty(t, addr.Label)

	// An unresolvable name stays as the label.
	addr, err = ParseAddressWithSymbols("bx+msg", lookup)
	require.NoError(t, err)
	assert.Equal(t, "msg", addr.Label)

	// Parenthesized arithmetic is a displacement term.
	addr, err = ParseAddressWithSymbols("bx+(2*4)", lookup)
	require.NoError(t, err)
	assert.Equal(t, int64(8), addr.Disp)
}

func TestIsValidIdentifier(t *testing.T) {
	for _, name := range []string{"foo", "_bar", ".loop", "a1", "main.loop"} {
		assert.True(t, IsValidIdentifier(name), name)
	}
	for _, name := range []string{"", "1abc", "a-b", "a b"} {
		assert.False(t, IsValidIdentifier(name), name)
	}
}
