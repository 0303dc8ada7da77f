// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mmap // import "github.com/go-lpc/txpow/internal/mmap"

import (
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestHandle(t *testing.T) {
	t.Run("nil-handle", func(t *testing.T) {
		var h *Handle

		_, err := h.ReadAt(nil, 0)
		if !errors.Is(err, os.ErrInvalid) {
			t.Fatalf("invalid read-at error: %+v", err)
		}

		_, err = h.WriteAt(nil, 0)
		if !errors.Is(err, os.ErrInvalid) {
			t.Fatalf("invalid write-at error: %+v", err)
		}

		err = h.Close()
		if !errors.Is(err, os.ErrInvalid) {
			t.Fatalf("invalid close error: %+v", err)
		}
	})
	t.Run("nil-data", func(t *testing.T) {
		var h Handle

		_, err := h.ReadAt(nil, 0)
		if !errors.Is(err, errClosed) {
			t.Fatalf("invalid read-at error: %+v", err)
		}

		_, err = h.WriteAt(nil, 0)
		if !errors.Is(err, errClosed) {
			t.Fatalf("invalid write-at error: %+v", err)
		}

		err = h.Close()
		if err != nil {
			t.Fatalf("error closing nil-data handle: %+v", err)
		}
	})
}

func TestHandleAccess(t *testing.T) {
	h := &Handle{data: []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}}

	if got, want := h.Len(), 10; got != want {
		t.Fatalf("invalid len: got=%d, want=%d", got, want)
	}

	if got, want := h.At(1), byte(1); got != want {
		t.Fatalf("invalid value: got=%d, want=%d", got, want)
	}

	_, err := h.WriteAt(nil, -1)
	if got, want := err.Error(), "mmap: invalid WriteAt offset -1"; got != want {
		t.Fatalf("invalid error: %+v", err)
	}

	_, err = h.ReadAt(nil, -1)
	if got, want := err.Error(), "mmap: invalid ReadAt offset -1"; got != want {
		t.Fatalf("invalid error: %+v", err)
	}

	_, err = h.ReadAt(make([]byte, 4), 8)
	if !errors.Is(err, io.EOF) {
		t.Fatalf("invalid short read error: %+v", err)
	}

	_, err = h.WriteAt(make([]byte, 4), 8)
	if !errors.Is(err, io.ErrShortWrite) {
		t.Fatalf("invalid short write error: %+v", err)
	}
}

func TestHandleWord(t *testing.T) {
	h := &Handle{data: make([]byte, 16)}

	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], 0xcafefade)
	n, err := h.WriteAt(buf[:], 4)
	if err != nil {
		t.Fatalf("could not write word: %+v", err)
	}
	if n != 4 {
		t.Fatalf("invalid write count: got=%d, want=4", n)
	}

	if got, want := h.At(4), byte(0xde); got != want {
		t.Fatalf("invalid byte: got=0x%x, want=0x%x", got, want)
	}

	var rbuf [4]byte
	_, err = h.ReadAt(rbuf[:], 4)
	if err != nil {
		t.Fatalf("could not read word: %+v", err)
	}
	if got, want := binary.LittleEndian.Uint32(rbuf[:]), uint32(0xcafefade); got != want {
		t.Fatalf("invalid word: got=0x%x, want=0x%x", got, want)
	}

	// unaligned accesses go through a plain copy.
	_, err = h.WriteAt([]byte{1, 2, 3}, 1)
	if err != nil {
		t.Fatalf("could not write bytes: %+v", err)
	}
	if got, want := h.At(3), byte(3); got != want {
		t.Fatalf("invalid byte: got=%d, want=%d", got, want)
	}
}

func TestOpenFail(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "not-there")
	_, err := Open(fname, 0, 4096)
	if err == nil {
		t.Fatalf("expected an error")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("invalid error: %+v", err)
	}
}
