// Package scan runs the per-file symbol pipeline and fans it out over a
// directory tree.
package scan

import (
	"fmt"
	"log/slog"

	"symgrep/internal/elfx"
	"symgrep/internal/pattern"
	"symgrep/internal/symbols"
)

// Options select which symbols a scan reports.
type Options struct {
	IncludeImports bool
	IncludeExports bool

	// Demangle stores the demangled name of each match and also tests it
	// against the pattern.
	Demangle bool

	Policy symbols.Policy
}

// Match is one reported symbol.
type Match struct {
	symbols.Symbol
	Demangled string
}

// DisplayName returns the demangled name when one was computed.
func (m Match) DisplayName() string {
	if m.Demangled != "" {
		return m.Demangled
	}
	return m.Name
}

// FileError attributes a loader or parser error to the file it came from.
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

// ScanFile loads path, parses its dynamic symbol table and returns the
// symbols that pass opts and p, in symbol table order. Errors are returned
// as *FileError.
func ScanFile(path string, p *pattern.Pattern, opts Options) ([]Match, error) {
	if !opts.IncludeImports && !opts.IncludeExports {
		return nil, nil
	}

	im, err := elfx.Load(path)
	if err != nil {
		return nil, &FileError{Path: path, Err: err}
	}
	defer func() {
		if closeErr := im.Close(); closeErr != nil {
			slog.Warn("error releasing image", "path", path, "error", closeErr)
		}
	}()

	return ScanImage(im, p, opts)
}

// ScanImage runs the pipeline over an already loaded image. The returned
// matches own their strings and remain valid after im is closed.
func ScanImage(im *elfx.Image, p *pattern.Pattern, opts Options) ([]Match, error) {
	if !opts.IncludeImports && !opts.IncludeExports {
		return nil, nil
	}

	layout, err := elfx.Parse(im)
	if err != nil {
		return nil, &FileError{Path: im.Path, Err: err}
	}
	if !layout.HasDynamic() {
		slog.Debug("no dynamic symbol table", "path", im.Path)
		return nil, nil
	}

	var matches []Match
	n := layout.Symbols.Len()
	for i := 0; i < n; i++ {
		sym, ok, err := symbols.Classify(layout.Symbols.Entry(i), layout.Strings, opts.Policy)
		if err != nil {
			slog.Warn("skipping symbol", "path", im.Path, "error", err)
			continue
		}
		if !ok || !included(sym.Kind, opts) {
			continue
		}

		m := Match{Symbol: sym}
		if opts.Demangle {
			if d := symbols.Demangle(sym.Name); d != sym.Name {
				m.Demangled = d
			}
		}
		if !p.Match(m.Name) && (m.Demangled == "" || !p.Match(m.Demangled)) {
			continue
		}
		matches = append(matches, m)
	}
	return matches, nil
}

func included(k symbols.Kind, opts Options) bool {
	switch k {
	case symbols.Import:
		return opts.IncludeImports
	case symbols.Export:
		return opts.IncludeExports
	}
	return false
}
