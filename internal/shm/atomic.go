/*
 * Copyright 2025 SREDiag Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package shm

import (
	"fmt"
	"sync/atomic"
	"unsafe"
)

// The helpers below access naturally aligned words inside a mapped region.
// Stores are releases and loads are acquires for the peer process mapping
// the same pages. The caller guarantees off is aligned to the word size and
// that b starts at an aligned address.

// LoadInt64 atomically loads the int64 at b[off:off+8].
func LoadInt64(b []byte, off int) int64 {
	checkWord(b, off, 8)
	return atomic.LoadInt64((*int64)(unsafe.Pointer(&b[off])))
}

// StoreInt64 atomically stores v at b[off:off+8].
func StoreInt64(b []byte, off int, v int64) {
	checkWord(b, off, 8)
	atomic.StoreInt64((*int64)(unsafe.Pointer(&b[off])), v)
}

// AddInt64 atomically adds delta to the int64 at b[off:off+8] and returns the new value.
func AddInt64(b []byte, off int, delta int64) int64 {
	checkWord(b, off, 8)
	return atomic.AddInt64((*int64)(unsafe.Pointer(&b[off])), delta)
}

// LoadInt32 atomically loads the int32 at b[off:off+4].
func LoadInt32(b []byte, off int) int32 {
	checkWord(b, off, 4)
	return atomic.LoadInt32((*int32)(unsafe.Pointer(&b[off])))
}

// StoreInt32 atomically stores v at b[off:off+4].
func StoreInt32(b []byte, off int, v int32) {
	checkWord(b, off, 4)
	atomic.StoreInt32((*int32)(unsafe.Pointer(&b[off])), v)
}

// checkWord panics unless b[off:off+n] lies within len(b). It must not read
// b: every access to a shared word is atomic.
func checkWord(b []byte, off, n int) {
	if off < 0 || off > len(b)-n {
		panic(fmt.Sprintf("shm: word [%d:%d] out of range [0:%d]", off, off+n, len(b)))
	}
}

// Aligned reports whether the first byte of b sits on an n-byte boundary.
// n must be a power of two.
func Aligned(b []byte, n int) bool {
	if len(b) == 0 {
		return false
	}
	return uintptr(unsafe.Pointer(unsafe.SliceData(b)))&uintptr(n-1) == 0
}
