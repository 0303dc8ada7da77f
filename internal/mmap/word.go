// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mmap

import (
	"sync/atomic"
	"unsafe"
)

// u32 loads the aligned 32-bit word at off with a single bus access.
// A byte-wise copy could tear a CSR read into four transactions.
func (h *Handle) u32(off int64) uint32 {
	return atomic.LoadUint32((*uint32)(unsafe.Pointer(&h.data[off])))
}

// setU32 stores v at the aligned offset off with a single bus access.
func (h *Handle) setU32(off int64, v uint32) {
	atomic.StoreUint32((*uint32)(unsafe.Pointer(&h.data[off])), v)
}
