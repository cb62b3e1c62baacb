package scan

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
)

// ignoreFiles are read from every directory visited, in this order.
var ignoreFiles = []string{".gitignore", ".ignore"}

// WalkOptions control candidate selection.
type WalkOptions struct {
	// NoIgnore disables .gitignore and .ignore handling.
	NoIgnore bool
}

type ignoreRule struct {
	dir     string
	matcher *ignore.GitIgnore
}

// Walk calls fn for every regular file under root, or for root itself when it
// is a regular file. A root that is a symlink is resolved and walked, with
// paths still reported under root; symlinks below it are not followed.
// Hidden files are included, .git directories are not, and paths matched by a
// .gitignore or .ignore in any enclosing directory below root are skipped.
// Unreadable directories are logged and skipped. An error from fn stops the
// walk and is returned.
func Walk(root string, opts WalkOptions, fn func(path string) error) error {
	fi, err := os.Stat(root)
	if err != nil {
		return err
	}
	if fi.Mode().IsRegular() {
		return fn(root)
	}

	walkRoot, err := resolveRoot(root)
	if err != nil {
		return err
	}

	var rules []ignoreRule
	return filepath.WalkDir(walkRoot, func(path string, d fs.DirEntry, err error) error {
		if walkRoot != root {
			path = underRoot(root, walkRoot, path)
		}
		if err != nil {
			if path == root {
				return err
			}
			slog.Warn("skipping unreadable path", "path", path, "error", err)
			return nil
		}

		if d.IsDir() {
			if path != root && d.Name() == ".git" {
				return filepath.SkipDir
			}
			if path != root && ignored(rules, path, true) {
				slog.Debug("ignored directory", "path", path)
				return filepath.SkipDir
			}
			rules = enterDir(rules, path, opts)
			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}
		if ignored(rules, path, false) {
			return nil
		}
		return fn(path)
	})
}

// resolveRoot returns the directory to hand to WalkDir, which does not follow
// a symlinked root on its own.
func resolveRoot(root string) (string, error) {
	fi, err := os.Lstat(root)
	if err != nil {
		return "", err
	}
	if fi.Mode()&fs.ModeSymlink == 0 {
		return root, nil
	}
	return filepath.EvalSymlinks(root)
}

// underRoot maps a path below the resolved walkRoot back under root.
func underRoot(root, walkRoot, path string) string {
	rel, err := filepath.Rel(walkRoot, path)
	if err != nil || rel == "." {
		return root
	}
	return filepath.Join(root, rel)
}

// enterDir drops rules for directories the walk has left and adds the
// ignore files of dir.
func enterDir(rules []ignoreRule, dir string, opts WalkOptions) []ignoreRule {
	for len(rules) > 0 && !within(rules[len(rules)-1].dir, dir) {
		rules = rules[:len(rules)-1]
	}
	if opts.NoIgnore {
		return rules
	}
	for _, name := range ignoreFiles {
		p := filepath.Join(dir, name)
		m, err := ignore.CompileIgnoreFile(p)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				slog.Warn("cannot read ignore file", "path", p, "error", err)
			}
			continue
		}
		rules = append(rules, ignoreRule{dir: dir, matcher: m})
	}
	return rules
}

func ignored(rules []ignoreRule, path string, isDir bool) bool {
	for _, r := range rules {
		if !within(r.dir, path) {
			continue
		}
		rel, err := filepath.Rel(r.dir, path)
		if err != nil {
			continue
		}
		rel = filepath.ToSlash(rel)
		if r.matcher.MatchesPath(rel) || (isDir && r.matcher.MatchesPath(rel+"/")) {
			return true
		}
	}
	return false
}

// within reports whether path is dir or lies below it. Both are as produced
// by the walk, so a root of "." yields unprefixed relative paths.
func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
