package symbols

import (
	"debug/elf"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"symgrep/internal/elfx"
	"symgrep/internal/elfx/elftest"
)

func parseSymbols(t *testing.T, syms ...elftest.Symbol) *elfx.Layout {
	t.Helper()
	built := elftest.Build(elftest.Config{Symbols: syms})
	im, err := elfx.FromBytes(t.Name(), built.Data)
	require.NoError(t, err)
	l, err := elfx.Parse(im)
	require.NoError(t, err)
	require.Equal(t, len(syms)+1, l.Symbols.Len())
	return l
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		sym      elftest.Symbol
		policy   Policy
		wantOK   bool
		wantKind Kind
	}{
		{
			name:     "global undefined function",
			sym:      elftest.Import("printf"),
			wantOK:   true,
			wantKind: Import,
		},
		{
			name:     "weak undefined",
			sym:      elftest.WeakImport("__cxa_finalize"),
			wantOK:   true,
			wantKind: Import,
		},
		{
			name:     "global defined function",
			sym:      elftest.Export("calculate_sum"),
			wantOK:   true,
			wantKind: Export,
		},
		{
			name:     "absolute symbol",
			sym:      elftest.Symbol{Name: "LIBFOO_1.0", Bind: elf.STB_GLOBAL, Type: elf.STT_OBJECT, Section: elf.SHN_ABS},
			wantOK:   true,
			wantKind: Export,
		},
		{
			name:     "common symbol",
			sym:      elftest.Symbol{Name: "shared_buf", Bind: elf.STB_GLOBAL, Type: elf.STT_OBJECT, Section: elf.SHN_COMMON},
			wantOK:   true,
			wantKind: Export,
		},
		{
			name:     "local defined symbol counts as export by default",
			sym:      elftest.Symbol{Name: "local_helper", Bind: elf.STB_LOCAL, Type: elf.STT_FUNC, Section: 1},
			wantOK:   true,
			wantKind: Export,
		},
		{
			name:   "local defined symbol dropped when global only",
			sym:    elftest.Symbol{Name: "local_helper", Bind: elf.STB_LOCAL, Type: elf.STT_FUNC, Section: 1},
			policy: Policy{GlobalOnly: true},
		},
		{
			name:   "hidden defined symbol dropped when global only",
			sym:    elftest.Symbol{Name: "hidden_fn", Bind: elf.STB_GLOBAL, Type: elf.STT_FUNC, Vis: elf.STV_HIDDEN, Section: 1},
			policy: Policy{GlobalOnly: true},
		},
		{
			name:     "protected defined symbol kept when global only",
			sym:      elftest.Symbol{Name: "protected_fn", Bind: elf.STB_GLOBAL, Type: elf.STT_FUNC, Vis: elf.STV_PROTECTED, Section: 1},
			policy:   Policy{GlobalOnly: true},
			wantOK:   true,
			wantKind: Export,
		},
		{
			name:     "undefined symbol stays an import when global only",
			sym:      elftest.WeakImport("__gmon_start__"),
			policy:   Policy{GlobalOnly: true},
			wantOK:   true,
			wantKind: Import,
		},
		{
			name: "unnamed symbol",
			sym:  elftest.Symbol{Bind: elf.STB_LOCAL, Type: elf.STT_SECTION, Section: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := parseSymbols(t, tt.sym)

			sym, ok, err := Classify(l.Symbols.Entry(1), l.Strings, tt.policy)
			require.NoError(t, err)
			require.Equal(t, tt.wantOK, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.sym.Name, sym.Name)
			assert.Equal(t, tt.wantKind, sym.Kind)
			assert.Equal(t, 1, sym.Index)
			assert.Equal(t, tt.sym.Bind, sym.Bind)
			assert.Equal(t, tt.sym.Type, sym.Type)
			assert.Equal(t, tt.sym.Vis, sym.Visibility)
			assert.Equal(t, tt.sym.Section, sym.Section)
		})
	}
}

func TestClassify_NullEntry(t *testing.T) {
	l := parseSymbols(t, elftest.Export("f"))

	_, ok, err := Classify(l.Symbols.Entry(0), l.Strings, Policy{})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClassify_ZeroNameOffsetIsUnnamed(t *testing.T) {
	zero := uint32(0)
	named := elftest.Export("calculate_sum")
	named.NameOff = &zero
	l := parseSymbols(t, named)

	_, ok, err := Classify(l.Symbols.Entry(1), l.Strings, Policy{})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClassify_BadNameOffset(t *testing.T) {
	bad := uint32(0xfffff)
	sym := elftest.Export("ignored")
	sym.NameOff = &bad
	l := parseSymbols(t, sym, elftest.Import("puts"))

	_, ok, err := Classify(l.Symbols.Entry(1), l.Strings, Policy{})
	assert.False(t, ok)
	assert.ErrorIs(t, err, elfx.ErrBadStringOffset)

	// The next entry is unaffected.
	got, ok, err := Classify(l.Symbols.Entry(2), l.Strings, Policy{})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "puts", got.Name)
	assert.Equal(t, Import, got.Kind)
}

func TestClassify_NameOutlivesImage(t *testing.T) {
	built := elftest.Build(elftest.Config{Symbols: []elftest.Symbol{elftest.Export("calculate_sum")}})
	im, err := elfx.FromBytes("owned", built.Data)
	require.NoError(t, err)
	l, err := elfx.Parse(im)
	require.NoError(t, err)

	sym, ok, err := Classify(l.Symbols.Entry(1), l.Strings, Policy{})
	require.NoError(t, err)
	require.True(t, ok)

	for i := range built.Data {
		built.Data[i] = 0
	}
	assert.Equal(t, "calculate_sum", sym.Name)
}

func TestDemangle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "printf", want: "printf"},
		{in: "_ZN3foo3barEv", want: "foo::bar()"},
		{in: "_ZN3foo3bazEi", want: "foo::baz(int)"},
		{in: "_Z", want: "_Z"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Demangle(tt.in))
		})
	}
}
