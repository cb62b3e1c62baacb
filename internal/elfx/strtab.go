package elfx

import (
	"bytes"
	"fmt"
)

// StringTable is a section of NUL-terminated strings addressed by offset.
type StringTable struct {
	data []byte
}

// Len returns the table size in bytes.
func (t StringTable) Len() int { return len(t.data) }

// Lookup returns the bytes of the string at off without the terminator. The
// result aliases the image and is only valid until the image is closed.
func (t StringTable) Lookup(off uint32) ([]byte, error) {
	if uint64(off) >= uint64(len(t.data)) {
		return nil, fmt.Errorf("%w: %d >= table size %d", ErrBadStringOffset, off, len(t.data))
	}
	rest := t.data[off:]
	end := bytes.IndexByte(rest, 0)
	if end < 0 {
		return nil, fmt.Errorf("%w: no terminator after offset %d", ErrBadStringOffset, off)
	}
	return rest[:end], nil
}

// String is Lookup with the result copied out of the image.
func (t StringTable) String(off uint32) (string, error) {
	b, err := t.Lookup(off)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
