// Package pattern compiles the user's symbol-name expression once per
// invocation and tests names against it.
package pattern

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrInvalidPattern matches every *InvalidPatternError via errors.Is.
var ErrInvalidPattern = errors.New("invalid pattern")

// InvalidPatternError carries the rejected expression and the syntax error.
type InvalidPatternError struct {
	Pattern string
	Err     error
}

func (e *InvalidPatternError) Error() string {
	return fmt.Sprintf("invalid pattern %q: %v", e.Pattern, e.Err)
}

func (e *InvalidPatternError) Unwrap() error { return e.Err }

func (e *InvalidPatternError) Is(target error) bool { return target == ErrInvalidPattern }

// Options modify compilation.
type Options struct {
	IgnoreCase bool
}

// Pattern is a compiled, read-only matcher. It is safe for concurrent use.
type Pattern struct {
	expr string
	re   *regexp.Regexp
}

// Compile compiles expr. Matching is unanchored: a pattern matches a name if
// it matches any substring of it.
func Compile(expr string, opts Options) (*Pattern, error) {
	src := expr
	if opts.IgnoreCase {
		src = "(?i)" + expr
	}
	re, err := regexp.Compile(src)
	if err != nil {
		return nil, &InvalidPatternError{Pattern: expr, Err: err}
	}
	return &Pattern{expr: expr, re: re}, nil
}

// MatchAll returns a pattern that matches every name.
func MatchAll() *Pattern {
	return &Pattern{}
}

// Match reports whether name matches.
func (p *Pattern) Match(name string) bool {
	if p.re == nil {
		return true
	}
	return p.re.MatchString(name)
}

func (p *Pattern) String() string {
	return p.expr
}
