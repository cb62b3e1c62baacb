package colorize

import (
	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/styles"
)

// SymbolDark highlights demangled C++ and Rust signatures.
var SymbolDark = styles.Register(chroma.MustNewStyle("symgrep-dark", chroma.StyleEntries{
	chroma.Text:        "#FFFFFF",
	chroma.Keyword:     "#AF87FF", // const, unsigned, operator
	chroma.KeywordType: "#5FD7FF", // int, char, void
	chroma.Name:        "#FFAF00", // identifiers and namespaces
	chroma.NameClass:   "#5FD7FF",
	chroma.Operator:    "#BCBCBC", // ::, *, &
	chroma.Punctuation: "#BCBCBC",

	chroma.LiteralNumber: "#FF5F87", // template arguments
	chroma.String:        "#EACD53",
}))
