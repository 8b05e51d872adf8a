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

//go:build windows

package shm

import (
	"context"
)

const mapPopulate = 0

// MapRegion maps or creates a shared memory region (Windows implementation).
func MapRegion(_ context.Context, _ MapOptions) (*MappedRegion, error) {
	// TODO: implement using CreateFileMapping, MapViewOfFile
	return nil, ErrUnsupportedPlatform
}

// UnmapRegion unmaps and closes the shared memory region (Windows implementation).
func UnmapRegion(_ context.Context, region *MappedRegion) error {
	if region == nil || region.Addr == nil {
		return nil
	}
	return ErrUnsupportedPlatform
}
