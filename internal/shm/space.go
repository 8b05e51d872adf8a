/*
 * Copyright 2025 SREDiag Authors
 * Copyright 2023 CloudWeGo Authors
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
	"path/filepath"
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v3/disk"

	"github.com/srediag/shmring/internal/logging"
)

const devShm = "/dev/shm"

var logger = logging.New("shm", nil)

// CanCreate reports whether a file of size bytes fits on the filesystem that
// would hold path. Only paths under /dev/shm on Linux are checked, because
// tmpfs fails late (SIGBUS on first touch) instead of at ftruncate.
func CanCreate(size uint64, path string) bool {
	if runtime.GOOS != "linux" {
		return true
	}
	if !strings.HasPrefix(filepath.Clean(path), devShm+"/") {
		return true
	}
	stat, err := disk.Usage(devShm)
	if err != nil {
		logger.Warnf("could not read %s usage: %v", devShm, err)
		return true
	}
	return stat.Free >= size
}
