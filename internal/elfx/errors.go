package elfx

import (
	"errors"
	"fmt"
)

var (
	// ErrNotELF indicates the file does not start with the ELF magic bytes.
	// Callers treat it as "skip this file", not as a failure.
	ErrNotELF = errors.New("not an ELF binary")

	// ErrNotRegularFile indicates the path is a directory, device, FIFO or socket.
	ErrNotRegularFile = errors.New("not a regular file")

	// ErrMalformedHeader indicates the ELF header or section header table is
	// self-inconsistent: unknown class or byte order, a header shorter than its
	// class requires, a section table past end of file, or a bad table link.
	ErrMalformedHeader = errors.New("malformed ELF header")

	// ErrTruncatedTable indicates a symbol or string table whose data extends
	// past end of file.
	ErrTruncatedTable = errors.New("truncated ELF table")

	// ErrBadStringOffset indicates a string table offset that does not resolve
	// to a NUL-terminated run inside the table.
	ErrBadStringOffset = errors.New("string table offset out of range")
)

// IOError reports a failure to open, stat or read a file.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedHeader, fmt.Sprintf(format, args...))
}

func truncated(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrTruncatedTable, fmt.Sprintf(format, args...))
}
