// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package mmap provides read-only memory mapped files.
package mmap // import "github.com/go-lpc/warpnet/internal/mmap"

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"

	"golang.org/x/sys/unix"
)

var (
	errClosed = errors.New("mmap: closed")
)

// Reader is a read-only view of a memory mapped file.
type Reader struct {
	data  []byte
	unmap bool
}

// Open memory maps the named file for reading.
// Empty files are not mapped.
func Open(fname string) (*Reader, error) {
	f, err := os.Open(fname)
	if err != nil {
		return nil, fmt.Errorf("mmap: could not open %q: %w", fname, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("mmap: could not stat %q: %w", fname, err)
	}

	size := fi.Size()
	switch {
	case size == 0:
		return FromBytes([]byte{}), nil
	case size < 0 || size != int64(int(size)):
		return nil, fmt.Errorf("mmap: file %q has invalid size %d", fname, size)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap: could not map %q: %w", fname, err)
	}
	r := &Reader{data: data, unmap: true}
	runtime.SetFinalizer(r, (*Reader).Close)
	return r, nil
}

// FromBytes returns a reader over an in-memory buffer.
func FromBytes(data []byte) *Reader {
	return &Reader{data: data}
}

// Close unmaps the file.
func (r *Reader) Close() error {
	if r == nil {
		return os.ErrInvalid
	}

	if r.data == nil {
		return nil
	}
	data := r.data
	r.data = nil
	runtime.SetFinalizer(r, nil)

	if !r.unmap {
		return nil
	}
	return unix.Munmap(data)
}

// Len returns the length of the underlying memory mapped file.
func (r *Reader) Len() int {
	return len(r.data)
}

// Bytes returns the mapped content.
// The returned slice is only valid until Close.
func (r *Reader) Bytes() []byte {
	return r.data
}

// ReadAt implements the io.ReaderAt interface.
func (r *Reader) ReadAt(p []byte, off int64) (int, error) {
	if r == nil {
		return 0, os.ErrInvalid
	}

	if r.data == nil {
		return 0, errClosed
	}
	if off < 0 || int64(len(r.data)) < off {
		return 0, fmt.Errorf("mmap: invalid ReadAt offset %d", off)
	}
	n := copy(p, r.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

var (
	_ io.ReaderAt = (*Reader)(nil)
	_ io.Closer   = (*Reader)(nil)
)
