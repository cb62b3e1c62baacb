package scan

import (
	"debug/elf"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"symgrep/internal/elfx"
	"symgrep/internal/elfx/elftest"
	"symgrep/internal/pattern"
	"symgrep/internal/symbols"
)

var (
	both        = Options{IncludeImports: true, IncludeExports: true}
	importsOnly = Options{IncludeImports: true}
	exportsOnly = Options{IncludeExports: true}
	neither     = Options{}
)

func mustCompile(t *testing.T, expr string) *pattern.Pattern {
	t.Helper()
	p, err := pattern.Compile(expr, pattern.Options{})
	require.NoError(t, err)
	return p
}

func writeELF(t *testing.T, dir, name string, syms ...elftest.Symbol) string {
	t.Helper()
	return elftest.Build(elftest.Config{Symbols: syms}).WriteFile(t, dir, name)
}

func names(ms []Match) []string {
	out := make([]string, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.Name)
	}
	return out
}

func TestScanFile_Scenarios(t *testing.T) {
	dir := t.TempDir()
	exporter := writeELF(t, dir, "libcalc.so",
		elftest.Import("printf"),
		elftest.Export("calculate_sum"),
	)
	importer := writeELF(t, dir, "app",
		elftest.Import("calculate_sum"),
		elftest.Export("main"),
	)
	p := mustCompile(t, "calculate_sum")

	t.Run("exported symbol with both kinds", func(t *testing.T) {
		got, err := ScanFile(exporter, p, both)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "calculate_sum", got[0].Name)
		assert.Equal(t, symbols.Export, got[0].Kind)
	})

	t.Run("exporter with neither kind", func(t *testing.T) {
		got, err := ScanFile(exporter, p, neither)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("imported symbol with imports only", func(t *testing.T) {
		got, err := ScanFile(importer, p, importsOnly)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "calculate_sum", got[0].Name)
		assert.Equal(t, symbols.Import, got[0].Kind)
	})

	t.Run("importer with neither kind", func(t *testing.T) {
		got, err := ScanFile(importer, p, neither)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("importer with exports only", func(t *testing.T) {
		got, err := ScanFile(importer, p, exportsOnly)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestScanFile_NeitherKindDoesNoIO(t *testing.T) {
	got, err := ScanFile(filepath.Join(t.TempDir(), "missing"), matchAll(), neither)
	assert.NoError(t, err)
	assert.Empty(t, got)
}

func TestScanFile_NotELF(t *testing.T) {
	dir := t.TempDir()
	path := elftest.WriteFile(t, dir, "empty", nil)

	got, err := ScanFile(path, matchAll(), both)
	assert.Empty(t, got)
	assert.ErrorIs(t, err, elfx.ErrNotELF)
}

func TestScanFile_MalformedIsAttributedToPath(t *testing.T) {
	built := elftest.Build(elftest.Config{Symbols: []elftest.Symbol{elftest.Export("calculate_sum")}})
	built.SetShoff(uint64(len(built.Data)) * 4)
	path := built.WriteFile(t, t.TempDir(), "broken.so")

	got, err := ScanFile(path, matchAll(), both)
	assert.Empty(t, got)

	var ferr *FileError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, path, ferr.Path)
	assert.ErrorIs(t, err, elfx.ErrMalformedHeader)
	assert.Contains(t, err.Error(), path)
}

func TestScanFile_IOErrorIsAttributedToPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.so")

	_, err := ScanFile(path, matchAll(), both)

	var ferr *FileError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, path, ferr.Path)
	var ioErr *elfx.IOError
	assert.ErrorAs(t, err, &ioErr)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestScanFile_NoDynamicSymbols(t *testing.T) {
	path := elftest.Build(elftest.Config{NoDynsym: true}).WriteFile(t, t.TempDir(), "static")

	got, err := ScanFile(path, matchAll(), both)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestScanFile_PatternWithNoMatch(t *testing.T) {
	path := writeELF(t, t.TempDir(), "libc.so", elftest.Import("malloc"), elftest.Export("free"))

	got, err := ScanFile(path, mustCompile(t, "^zz"), both)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestScanFile_TableOrderIsStable(t *testing.T) {
	path := writeELF(t, t.TempDir(), "libmem.so",
		elftest.Export("memset"),
		elftest.Import("memcpy"),
		elftest.Export("memmove"),
		elftest.Import("strlen"),
		elftest.WeakImport("memchr"),
	)
	p := mustCompile(t, "^mem")

	first, err := ScanFile(path, p, both)
	require.NoError(t, err)
	assert.Equal(t, []string{"memset", "memcpy", "memmove", "memchr"}, names(first))

	for i := 0; i < 5; i++ {
		again, err := ScanFile(path, p, both)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestScanFile_SkipsBadNameOffset(t *testing.T) {
	bad := uint32(1 << 20)
	broken := elftest.Export("never_seen")
	broken.NameOff = &bad
	path := writeELF(t, t.TempDir(), "libodd.so",
		elftest.Import("puts"),
		broken,
		elftest.Export("calculate_sum"),
	)

	got, err := ScanFile(path, matchAll(), both)
	require.NoError(t, err)
	assert.Equal(t, []string{"puts", "calculate_sum"}, names(got))
}

func TestScanFile_Demangle(t *testing.T) {
	path := writeELF(t, t.TempDir(), "libmath.so",
		elftest.Export("_ZN4math13calculate_sumEii"),
		elftest.Import("printf"),
	)
	p := mustCompile(t, `math::calculate_sum\(`)

	got, err := ScanFile(path, p, both)
	require.NoError(t, err)
	assert.Empty(t, got, "mangled name alone does not match")

	opts := both
	opts.Demangle = true
	got, err = ScanFile(path, p, opts)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "_ZN4math13calculate_sumEii", got[0].Name)
	assert.Equal(t, "math::calculate_sum(int, int)", got[0].Demangled)
	assert.Equal(t, "math::calculate_sum(int, int)", got[0].DisplayName())

	// Plain C names get no demangled form.
	got, err = ScanFile(path, mustCompile(t, "printf"), opts)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Empty(t, got[0].Demangled)
	assert.Equal(t, "printf", got[0].DisplayName())
}

func TestScanFile_GlobalOnlyPolicy(t *testing.T) {
	path := writeELF(t, t.TempDir(), "libpriv.so",
		elftest.Symbol{Name: "local_helper", Bind: elf.STB_LOCAL, Type: elf.STT_FUNC, Section: 1},
		elftest.Export("public_api"),
		elftest.Import("abort"),
	)

	got, err := ScanFile(path, matchAll(), both)
	require.NoError(t, err)
	assert.Equal(t, []string{"local_helper", "public_api", "abort"}, names(got))

	opts := both
	opts.Policy = symbols.Policy{GlobalOnly: true}
	got, err = ScanFile(path, matchAll(), opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"public_api", "abort"}, names(got))
}

// TestScanFile_AgreesWithDebugELF checks classification against the
// standard library's reading of the same images: every named dynamic symbol
// is reported exactly once, as an import iff its section is SHN_UNDEF.
func TestScanFile_AgreesWithDebugELF(t *testing.T) {
	syms := []elftest.Symbol{
		elftest.Import("printf"),
		elftest.WeakImport("__gmon_start__"),
		elftest.Export("calculate_sum"),
		{Name: "local_helper", Bind: elf.STB_LOCAL, Type: elf.STT_FUNC, Section: 1},
		{Name: "hidden_fn", Bind: elf.STB_GLOBAL, Type: elf.STT_FUNC, Vis: elf.STV_HIDDEN, Section: 1},
		{Name: "VERSION_1", Bind: elf.STB_GLOBAL, Type: elf.STT_OBJECT, Section: elf.SHN_ABS},
		{Name: "", Bind: elf.STB_LOCAL, Type: elf.STT_SECTION, Section: 1},
		elftest.Import("_ZN3foo3barEv"),
	}

	for _, class := range []elf.Class{elf.ELFCLASS32, elf.ELFCLASS64} {
		for _, data := range []elf.Data{elf.ELFDATA2LSB, elf.ELFDATA2MSB} {
			t.Run(class.String()+"/"+data.String(), func(t *testing.T) {
				built := elftest.Build(elftest.Config{Class: class, Data: data, Symbols: syms})
				path := built.WriteFile(t, t.TempDir(), "lib.so")

				f, err := elf.Open(path)
				require.NoError(t, err)
				defer f.Close()
				ref, err := f.DynamicSymbols()
				require.NoError(t, err)

				type classified struct {
					Name string
					Kind symbols.Kind
				}
				var want []classified
				for _, s := range ref {
					if s.Name == "" {
						continue
					}
					kind := symbols.Export
					if s.Section == elf.SHN_UNDEF {
						kind = symbols.Import
					}
					want = append(want, classified{s.Name, kind})
				}

				got, err := ScanFile(path, matchAll(), both)
				require.NoError(t, err)
				var have []classified
				for _, m := range got {
					have = append(have, classified{m.Name, m.Kind})
				}
				assert.Equal(t, want, have)
			})
		}
	}
}

func matchAll() *pattern.Pattern { return pattern.MatchAll() }

func TestScanImage_InMemory(t *testing.T) {
	built := elftest.Build(elftest.Config{
		Class:   elf.ELFCLASS32,
		Data:    elf.ELFDATA2MSB,
		Symbols: []elftest.Symbol{elftest.Import("calculate_sum"), elftest.Export("calculate_sum")},
	})
	im, err := elfx.FromBytes("mem.so", built.Data)
	require.NoError(t, err)

	got, err := ScanImage(im, mustCompile(t, "calculate"), both)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, symbols.Import, got[0].Kind)
	assert.Equal(t, symbols.Export, got[1].Kind)
	assert.Equal(t, uint64(0x1000), got[1].Value)
}
