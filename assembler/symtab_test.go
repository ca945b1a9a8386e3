package assembler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSymbolTableDefineAndLookup(t *testing.T) {
	st := NewSymbolTable()

	assert.True(t, st.Define("start", SymbolLabel, 0x100, 1))
	assert.False(t, st.Define("start", SymbolLabel, 0x200, 2), "duplicate must fail")

	sym, ok := st.Lookup("start")
	require.True(t, ok)
	assert.Equal(t, int64(0x100), sym.Value, "failed define must not mutate")
	assert.Equal(t, "start", sym.Name)
	assert.True(t, sym.Resolved)
}

func TestSymbolTableCaseInsensitive(t *testing.T) {
	st := NewSymbolTable()
	require.True(t, st.Define("Start", SymbolLabel, 5, 1))

	for _, name := range []string{"start", "START", "sTaRt"} {
		sym, ok := st.Lookup(name)
		require.True(t, ok, "lookup %q", name)
		assert.Equal(t, int64(5), sym.Value)
		assert.Equal(t, "Start", sym.Name, "original spelling is preserved")
	}

	assert.False(t, st.Define("START", SymbolLabel, 9, 2),
		"same name in different case is a duplicate")
}

func TestSymbolTableLocalScope(t *testing.T) {
	st := NewSymbolTable()

	st.SetGlobalScope("first")
	require.True(t, st.Define(".loop", SymbolLabel, 10, 1))

	st.SetGlobalScope("second")
	require.True(t, st.Define(".loop", SymbolLabel, 20, 2),
		"same local under a new scope is a distinct symbol")

	sym, ok := st.Lookup(".loop")
	require.True(t, ok)
	assert.Equal(t, int64(20), sym.Value)

	st.SetGlobalScope("first")
	sym, ok = st.Lookup(".loop")
	require.True(t, ok)
	assert.Equal(t, int64(10), sym.Value)
}

func TestSymbolTableLookupDirect(t *testing.T) {
	st := NewSymbolTable()

	// A dotted name defined without scope stays reachable directly even
	// when a scope is active.
	require.True(t, st.Define(".text", SymbolLabel, 0, 1))
	st.SetGlobalScope("main")

	_, ok := st.Lookup(".text")
	assert.False(t, ok, "scoped lookup qualifies to main.text")

	sym, ok := st.LookupDirect(".text")
	require.True(t, ok)
	assert.Equal(t, int64(0), sym.Value)
}

func TestSymbolTableUpdateAndResolve(t *testing.T) {
	st := NewSymbolTable()

	assert.False(t, st.Update("missing", 1))
	assert.False(t, st.Resolve("missing", 1))

	require.True(t, st.Define("x", SymbolConstant, 1, 1))
	require.True(t, st.Update("x", 42))
	sym, _ := st.Lookup("x")
	assert.Equal(t, int64(42), sym.Value)

	require.True(t, st.Resolve("x", 99))
	sym, _ = st.Lookup("x")
	assert.Equal(t, int64(99), sym.Value)
	assert.True(t, sym.Resolved)
}

func TestQualify(t *testing.T) {
	st := NewSymbolTable()
	assert.Equal(t, ".foo", st.Qualify(".foo"), "no scope set")

	st.SetGlobalScope("main")
	assert.Equal(t, "main.foo", st.Qualify(".foo"))
	assert.Equal(t, "bar", st.Qualify("bar"), "globals pass through")
}
