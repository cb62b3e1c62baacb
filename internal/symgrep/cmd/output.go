package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"symgrep/internal/scan"
	"symgrep/internal/ui/colorize"
)

// SymbolRecord is one match in JSON output.
type SymbolRecord struct {
	Name       string `json:"name" jsonschema:"title=Name,description=Symbol name as stored in .dynstr with invalid UTF-8 replaced by U+FFFD"`
	RawName    string `json:"raw_name,omitempty" jsonschema:"title=Raw name,description=Go-quoted original bytes of the name when it is not valid UTF-8"`
	Kind       string `json:"kind" jsonschema:"title=Kind,enum=IMPORT,enum=EXPORT"`
	Binding    string `json:"binding" jsonschema:"title=Binding,description=ELF symbol binding (STB_*)"`
	Type       string `json:"type" jsonschema:"title=Type,description=ELF symbol type (STT_*)"`
	Visibility string `json:"visibility" jsonschema:"title=Visibility,description=ELF symbol visibility (STV_*)"`
	Demangled  string `json:"demangled,omitempty" jsonschema:"title=Demangled,description=Demangled name when --demangle is set and the name is mangled"`
}

// FileReport is the JSON output for one file with at least one match.
type FileReport struct {
	Path    string         `json:"path" jsonschema:"title=Path,description=Path of the scanned file"`
	Matches []SymbolRecord `json:"matches" jsonschema:"title=Matches,description=Matching symbols in symbol table order"`
}

func newFileReport(r scan.Result) FileReport {
	rep := FileReport{Path: r.Path, Matches: make([]SymbolRecord, 0, len(r.Matches))}
	for _, m := range r.Matches {
		rec := SymbolRecord{
			Name:       sanitizeForJSON(m.Name),
			Kind:       m.Kind.String(),
			Binding:    m.Bind.String(),
			Type:       m.Type.String(),
			Visibility: m.Visibility.String(),
			Demangled:  sanitizeForJSON(m.Demangled),
		}
		if rec.Name != m.Name {
			rec.RawName = strconv.Quote(m.Name)
		}
		rep.Matches = append(rep.Matches, rec)
	}
	return rep
}

// sanitizeForJSON replaces invalid UTF-8 so encoding/json does not do it
// silently.
func sanitizeForJSON(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, "\uFFFD")
}

// printer writes one file's matches as a single unit.
type printer struct {
	w    io.Writer
	json bool
}

func (p *printer) print(r scan.Result) error {
	if len(r.Matches) == 0 {
		return nil
	}
	if p.json {
		b, err := json.Marshal(newFileReport(r))
		if err != nil {
			return fmt.Errorf("failed to marshal report: %w", err)
		}
		_, err = fmt.Fprintf(p.w, "%s\n", b)
		return err
	}

	buf := colorize.Path(r.Path) + "\n"
	for _, m := range r.Matches {
		name := m.Name
		if m.Demangled != "" {
			name = colorize.Symbol(m.Demangled)
		}
		buf += fmt.Sprintf("  %s %s\n", name, colorize.Tag(m.Kind))
	}
	_, err := io.WriteString(p.w, buf)
	return err
}
