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

//go:build linux || darwin || freebsd

package shm

import (
	"context"
	"fmt"

	"golang.org/x/sys/unix"
)

const pageSize = 4 * 1024

// MapRegion maps an existing shared file, or creates one when opts.Create is set.
// The file descriptor is closed once the mapping exists.
func MapRegion(ctx context.Context, opts MapOptions) (region *MappedRegion, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	flags := unix.O_RDWR | unix.O_CLOEXEC
	if opts.Create {
		flags |= unix.O_CREAT | unix.O_EXCL
	}
	fd, err := unix.Open(opts.Path, flags, 0666)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", opts.Path, err)
	}
	if opts.Create {
		defer func() {
			if err != nil {
				_ = unix.Unlink(opts.Path)
			}
		}()
	}
	defer func() {
		if cerr := unix.Close(fd); cerr != nil {
			logger.Warnf("close %s: %v", opts.Path, cerr)
		}
	}()

	size := opts.Size
	if opts.Create {
		if err := unix.Ftruncate(fd, int64(size)); err != nil {
			return nil, fmt.Errorf("ftruncate %s: %w", opts.Path, err)
		}
	} else if size == 0 {
		var st unix.Stat_t
		if err := unix.Fstat(fd, &st); err != nil {
			return nil, fmt.Errorf("fstat %s: %w", opts.Path, err)
		}
		if st.Size == 0 {
			return nil, fmt.Errorf("%s: %w", opts.Path, ErrEmptyRegion)
		}
		size = int(st.Size)
	}

	mmapFlags := unix.MAP_SHARED
	if opts.Populate {
		mmapFlags |= mapPopulate
	}
	addr, merr := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, mmapFlags)
	if merr != nil {
		return nil, fmt.Errorf("mmap %s: %w", opts.Path, merr)
	}
	if opts.Populate && mapPopulate == 0 {
		// no MAP_POPULATE: touch one byte per page
		for i := 0; i < len(addr); i += pageSize {
			addr[i] = 0
		}
	}
	return &MappedRegion{Addr: addr, Path: opts.Path}, nil
}

// UnmapRegion unmaps the shared memory region.
func UnmapRegion(_ context.Context, region *MappedRegion) error {
	if region == nil || region.Addr == nil {
		return nil
	}
	if err := unix.Munmap(region.Addr); err != nil {
		return fmt.Errorf("munmap %s: %w", region.Path, err)
	}
	region.Addr = nil
	return nil
}
