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

// Package shm contains platform-specific helpers for mapping and accessing
// shared memory files.
package shm

import (
	"errors"
	"os"
)

var (
	// ErrEmptyRegion is returned when an existing file is mapped with no size
	// given and the file has not been truncated to a non-zero length yet.
	ErrEmptyRegion = errors.New("shm: region file is empty")
	// ErrUnsupportedPlatform is returned by the mapping functions on platforms
	// without a shared file mapping implementation.
	ErrUnsupportedPlatform = errors.New("shm: shared memory mapping is not supported on this platform")
)

// MappedRegion represents a memory-mapped shared region.
type MappedRegion struct {
	Addr []byte
	Path string
}

// Size returns the mapped length in bytes.
func (r *MappedRegion) Size() int {
	if r == nil {
		return 0
	}
	return len(r.Addr)
}

// MapOptions defines options for mapping shared memory.
type MapOptions struct {
	Path string
	// Size is the length to map. When zero and Create is false, the current
	// file length is used.
	Size int
	// Create makes a new file of Size bytes and fails if it already exists.
	Create bool
	// Populate pre-faults every page of the mapping.
	Populate bool
}

// PathExists reports whether path names an existing file.
func PathExists(path string) bool {
	_, err := os.Stat(path)
	if err == nil {
		return true
	}
	return !os.IsNotExist(err)
}

// Function implementations are provided in platform-specific files (platform_unix.go, platform_windows.go).
