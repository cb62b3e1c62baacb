package cmd

import (
	"debug/elf"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"symgrep/internal/pattern"
	"symgrep/internal/scan"
	"symgrep/internal/symbols"
)

var listCmd = &cobra.Command{
	Use:   "list [file]",
	Short: "List every classified dynamic symbol of one ELF file",
	Long: `List prints every named entry of the dynamic symbol table of a single
ELF file with its import/export classification, binding, type and visibility.`,
	Example: `
# List all dynamic symbols
symgrep list /usr/lib/libc.so.6

# Only exports that are visible to other modules
symgrep list --global-only -e /usr/lib/libc.so.6
  `,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		demangle, _ := cmd.Flags().GetBool("demangle")
		globalOnly, _ := cmd.Flags().GetBool("global-only")
		importsOnly, _ := cmd.Flags().GetBool("imports-only")
		exportsOnly, _ := cmd.Flags().GetBool("exports-only")

		opts := scan.Options{
			IncludeImports: !exportsOnly,
			IncludeExports: !importsOnly,
			Demangle:       demangle,
			Policy:         symbols.Policy{GlobalOnly: globalOnly},
		}
		return runList(cmd.OutOrStdout(), args[0], opts)
	},
}

func runList(w io.Writer, path string, opts scan.Options) error {
	matches, err := scan.ScanFile(path, pattern.MatchAll(), opts)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NUM\tKIND\tBIND\tTYPE\tVIS\tNDX\tNAME")
	for _, m := range matches {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			m.Index, m.Kind, m.Bind, m.Type, m.Visibility, sectionLabel(m.Section), m.DisplayName())
	}
	return tw.Flush()
}

func sectionLabel(s elf.SectionIndex) string {
	switch s {
	case elf.SHN_UNDEF:
		return "UND"
	case elf.SHN_ABS:
		return "ABS"
	case elf.SHN_COMMON:
		return "COM"
	}
	return fmt.Sprintf("%d", uint16(s))
}

func init() {
	listCmd.Flags().BoolP("demangle", "C", false, "Show demangled C++/Rust names")
	listCmd.Flags().Bool("global-only", false, "Only count defined symbols visible outside the binary as exports")
	listCmd.Flags().BoolP("imports-only", "i", false, "Limit results to imported symbols only")
	listCmd.Flags().BoolP("exports-only", "e", false, "Limit results to exported symbols only")
}
