package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime/pprof"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"symgrep/internal/pattern"
	"symgrep/internal/scan"
	"symgrep/internal/symbols"
	"symgrep/internal/symgrep/log"
)

// searchConfig is the per-invocation configuration of the root command.
type searchConfig struct {
	Pattern    string
	Root       string
	Options    scan.Options
	IgnoreCase bool
	NoIgnore   bool
	JSON       bool
	Jobs       int
}

func init() {
	rootCmd.PersistentFlags().StringP("cwd", "c", "", "Current working directory")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Debug")

	rootCmd.Flags().BoolP("help", "h", false, "Help")
	rootCmd.Flags().BoolP("exports-only", "e", false, "Limit results to exported symbols only")
	rootCmd.Flags().BoolP("imports-only", "i", false, "Limit results to imported symbols only")
	rootCmd.Flags().BoolP("demangle", "C", false, "Demangle C++/Rust names for display and matching")
	rootCmd.Flags().Bool("ignore-case", false, "Match the pattern case-insensitively")
	rootCmd.Flags().Bool("global-only", false, "Only count defined symbols visible outside the binary as exports")
	rootCmd.Flags().Bool("no-ignore", false, "Do not respect .gitignore and .ignore files")
	rootCmd.Flags().BoolP("json", "j", false, "Output one JSON object per matching file")
	rootCmd.Flags().IntP("jobs", "J", 0, "Number of files to scan in parallel (default: number of CPUs)")
	rootCmd.Flags().String("cpuprofile", "", "Write CPU profile to file")
	rootCmd.Flags().String("memprofile", "", "Write memory profile to file")

	rootCmd.AddCommand(listCmd)
}

var rootCmd = &cobra.Command{
	Use:   "symgrep [pattern] [path]",
	Short: "Grep for symbols in ELF binaries",
	Long: `Symgrep searches the dynamic symbol tables of ELF binaries for names
matching a regular expression and reports each match as an IMPORT
(referenced but defined elsewhere) or an EXPORT (defined in the binary).
Directories are searched recursively, honoring .gitignore files.`,
	Example: `
# Find every binary under the current directory that touches malloc
symgrep malloc

# Only exports, searching /usr/lib
symgrep -e '^SSL_' /usr/lib

# Demangled C++ names, JSON output
symgrep -C -j 'std::vector' build/
  `,
	Args:         cobra.RangeArgs(1, 2),
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		debug, _ := cmd.Flags().GetBool("debug")
		log.Setup(debug)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cpuprofile, _ := cmd.Flags().GetString("cpuprofile")
		if cpuprofile != "" {
			f, err := os.Create(cpuprofile)
			if err != nil {
				return fmt.Errorf("could not create CPU profile: %w", err)
			}
			defer f.Close()
			if err := pprof.StartCPUProfile(f); err != nil {
				return fmt.Errorf("could not start CPU profile: %w", err)
			}
			defer pprof.StopCPUProfile()
		}

		memprofile, _ := cmd.Flags().GetString("memprofile")
		if memprofile != "" {
			defer func() {
				f, err := os.Create(memprofile)
				if err != nil {
					fmt.Fprintf(os.Stderr, "could not create memory profile: %v\n", err)
					return
				}
				defer f.Close()
				if err := pprof.WriteHeapProfile(f); err != nil {
					fmt.Fprintf(os.Stderr, "could not write memory profile: %v\n", err)
				}
			}()
		}

		if _, err := ResolveCwd(cmd); err != nil {
			return err
		}

		cfg := searchConfig{Pattern: args[0], Root: "."}
		if len(args) > 1 {
			cfg.Root = args[1]
		}

		exportsOnly, _ := cmd.Flags().GetBool("exports-only")
		importsOnly, _ := cmd.Flags().GetBool("imports-only")
		demangle, _ := cmd.Flags().GetBool("demangle")
		globalOnly, _ := cmd.Flags().GetBool("global-only")
		cfg.Options = scan.Options{
			IncludeImports: !exportsOnly,
			IncludeExports: !importsOnly,
			Demangle:       demangle,
			Policy:         symbols.Policy{GlobalOnly: globalOnly},
		}
		cfg.IgnoreCase, _ = cmd.Flags().GetBool("ignore-case")
		cfg.NoIgnore, _ = cmd.Flags().GetBool("no-ignore")
		cfg.JSON, _ = cmd.Flags().GetBool("json")
		cfg.Jobs, _ = cmd.Flags().GetInt("jobs")

		// Plain output when piped or emitting JSON
		if cfg.JSON || !term.IsTerminal(os.Stdout.Fd()) {
			os.Setenv("SYMGREP_NO_COLOR", "1")
		}

		_, err := runSearch(cmd.Context(), cmd.OutOrStdout(), cfg)
		return err
	},
}

// runSearch compiles the pattern, then scans cfg.Root and prints every file
// with matches. An invalid pattern fails before any file is opened. Per-file
// errors are logged and do not fail the run.
func runSearch(ctx context.Context, w io.Writer, cfg searchConfig) (scan.Stats, error) {
	p, err := pattern.Compile(cfg.Pattern, pattern.Options{IgnoreCase: cfg.IgnoreCase})
	if err != nil {
		return scan.Stats{}, err
	}

	sc := &scan.Scanner{
		Pattern: p,
		Options: cfg.Options,
		Walk:    scan.WalkOptions{NoIgnore: cfg.NoIgnore},
		Workers: cfg.Jobs,
	}
	out := &printer{w: w, json: cfg.JSON}

	var printErr error
	stats, err := sc.Run(ctx, cfg.Root, func(r scan.Result) {
		if r.Err != nil {
			slog.Error("Error parsing", "path", r.Path, "error", r.Err)
			return
		}
		if err := out.print(r); err != nil && printErr == nil {
			printErr = err
		}
	})
	if err != nil {
		return stats, fmt.Errorf("cannot search %s: %w", cfg.Root, err)
	}
	return stats, printErr
}

func Execute() {
	err := execute()
	if closeErr := log.Close(); closeErr != nil {
		fmt.Fprintf(os.Stderr, "could not close log: %v\n", closeErr)
	}
	if err != nil {
		os.Exit(1)
	}
}

func execute() error {
	// Bypass fang's styled help and errors when output is being piped
	if !term.IsTerminal(os.Stdout.Fd()) {
		return rootCmd.Execute()
	}
	return fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithNotifySignal(os.Interrupt),
	)
}

func ResolveCwd(cmd *cobra.Command) (string, error) {
	cwd, _ := cmd.Flags().GetString("cwd")
	if cwd != "" {
		err := os.Chdir(cwd)
		if err != nil {
			return "", fmt.Errorf("failed to change directory: %w", err)
		}
		return cwd, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current working directory: %w", err)
	}
	return cwd, nil
}
