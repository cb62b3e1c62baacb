// Package colorize styles symgrep's terminal output.
package colorize

import (
	"os"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/lipgloss/v2"
	"github.com/charmbracelet/x/exp/charmtone"

	"symgrep/internal/symbols"
)

var (
	importStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(charmtone.Malibu.Hex()))
	exportStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(charmtone.Zest.Hex()))
	pathStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(charmtone.Smoke.Hex()))
)

// Enabled reports whether output should be colored.
func Enabled() bool {
	return os.Getenv("SYMGREP_NO_COLOR") == ""
}

// Tag returns the bracketed kind tag, e.g. "[IMPORT]".
func Tag(k symbols.Kind) string {
	tag := "[" + k.String() + "]"
	if !Enabled() {
		return tag
	}
	switch k {
	case symbols.Import:
		return importStyle.Render(tag)
	case symbols.Export:
		return exportStyle.Render(tag)
	}
	return tag
}

// Path styles a file path header line.
func Path(p string) string {
	if !Enabled() {
		return p
	}
	return pathStyle.Render(p)
}

// getSymbolLexer returns a C++ lexer with fallbacks
func getSymbolLexer() chroma.Lexer {
	candidates := []string{"c++", "cpp", "C++"}
	for _, name := range candidates {
		if lexer := lexers.Get(name); lexer != nil {
			return lexer
		}
	}
	return nil
}

// getSymbolStyle returns the symbol style with fallbacks
func getSymbolStyle() *chroma.Style {
	candidates := []string{"symgrep-dark", "dracula", "monokai"}
	for _, name := range candidates {
		if style := styles.Get(name); style != nil {
			return style
		}
	}
	return styles.Fallback
}

// getTerminalFormatter returns an appropriate terminal formatter
func getTerminalFormatter() chroma.Formatter {
	candidates := []string{"terminal256", "terminal16m"}
	for _, name := range candidates {
		if formatter := formatters.Get(name); formatter != nil {
			return formatter
		}
	}
	return formatters.Fallback
}

// Symbol highlights a demangled symbol name. Plain C names and failures are
// returned unchanged.
func Symbol(name string) string {
	if !Enabled() || !looksDemangled(name) {
		return name
	}

	lexer := getSymbolLexer()
	if lexer == nil {
		return name
	}

	iterator, err := lexer.Tokenise(nil, name)
	if err != nil {
		return name
	}

	var buf strings.Builder
	if err := getTerminalFormatter().Format(&buf, getSymbolStyle(), iterator); err != nil {
		return name
	}
	return strings.ReplaceAll(buf.String(), "\n", "")
}

func looksDemangled(name string) bool {
	return strings.Contains(name, "::") || strings.ContainsAny(name, "(<")
}
