// Package elfx provides helpers for loading ELF binaries into read-only
// buffers and locating the dynamic symbol table and its string table.
package elfx

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/sys/unix"
)

// elfMagic is the 4-byte ELF signature.
var elfMagic = []byte("\x7fELF")

// Image is the read-only contents of one file for the duration of one scan.
// Data is either a private read-only mapping of the file or an owned copy; it
// must never be written to.
type Image struct {
	Path   string
	Data   []byte
	mapped bool
}

// Load opens path, verifies the ELF magic and maps the file read-only.
// Non-ELF files (including empty ones) return ErrNotELF before any mapping
// happens, so callers can cheaply skip them.
func Load(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &IOError{Op: "open", Path: path, Err: err}
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, &IOError{Op: "stat", Path: path, Err: err}
	}
	if !fi.Mode().IsRegular() {
		return nil, &IOError{Op: "open", Path: path, Err: fmt.Errorf("%w: %s", ErrNotRegularFile, fi.Mode())}
	}

	size := fi.Size()
	if size < int64(len(elfMagic)) {
		return nil, ErrNotELF
	}

	magic := make([]byte, len(elfMagic))
	if _, err := f.ReadAt(magic, 0); err != nil {
		return nil, &IOError{Op: "read", Path: path, Err: err}
	}
	if !bytes.Equal(magic, elfMagic) {
		return nil, ErrNotELF
	}

	if int64(int(size)) != size {
		return nil, &IOError{Op: "map", Path: path, Err: errors.New("file too large to address")}
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_PRIVATE)
	if err == nil {
		return &Image{Path: path, Data: data, mapped: true}, nil
	}
	slog.Debug("mmap failed, reading file instead", "path", path, "error", err)

	data = make([]byte, size)
	if _, err := io.ReadFull(io.NewSectionReader(f, 0, size), data); err != nil {
		return nil, &IOError{Op: "read", Path: path, Err: err}
	}
	return &Image{Path: path, Data: data}, nil
}

// FromBytes wraps an in-memory buffer as an Image after checking the magic.
// The caller must not modify data while the Image is in use.
func FromBytes(name string, data []byte) (*Image, error) {
	if len(data) < len(elfMagic) || !bytes.Equal(data[:len(elfMagic)], elfMagic) {
		return nil, ErrNotELF
	}
	return &Image{Path: name, Data: data}, nil
}

// Close releases the mapping. It is safe to call more than once.
func (im *Image) Close() error {
	if im == nil || im.Data == nil {
		return nil
	}
	var err error
	if im.mapped {
		err = unix.Munmap(im.Data)
	}
	im.Data = nil
	im.mapped = false
	return err
}

// Slice returns data[off:off+size] or false when any part of the range lies
// outside the image. The arithmetic is overflow safe.
func (im *Image) Slice(off, size uint64) ([]byte, bool) {
	n := uint64(len(im.Data))
	if off > n || size > n-off {
		return nil, false
	}
	return im.Data[off : off+size], true
}
