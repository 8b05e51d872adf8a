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

package region

import (
	"context"
	"fmt"
	"strings"

	"github.com/srediag/shmring/pkg/ringbuf"
)

// Snapshot is a diagnostic view of a region and both of its rings.
type Snapshot struct {
	Path           string
	FileLength     int64
	Version        int64
	InboundLength  int64
	OutboundLength int64
	Inbound        ringbuf.State
	Outbound       ringbuf.State
}

func (s Snapshot) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "path:%s length:%d version:%d\n", s.Path, s.FileLength, s.Version)
	fmt.Fprintf(&b, "inbound  @%d len:%d %s\n", InboundOffset(), s.InboundLength, s.Inbound)
	fmt.Fprintf(&b, "outbound @%d len:%d %s", OutboundOffset(s.InboundLength), s.OutboundLength, s.Outbound)
	return b.String()
}

// Snapshot reads the header and the cursors of both rings without changing them.
func (r *Region) Snapshot() (Snapshot, error) {
	in, out := r.header.Capacities()
	s := Snapshot{
		Path:           r.Path(),
		FileLength:     int64(r.mapping.Size()),
		Version:        r.header.Version(),
		InboundLength:  in,
		OutboundLength: out,
	}
	var err error
	if s.Inbound, err = ringbuf.Inspect(r.inbound); err != nil {
		return s, fmt.Errorf("inbound: %w", err)
	}
	if s.Outbound, err = ringbuf.Inspect(r.outbound); err != nil {
		return s, fmt.Errorf("outbound: %w", err)
	}
	return s, nil
}

// Describe attaches to the file at path just long enough to take a Snapshot.
func Describe(ctx context.Context, path string, opts ...Option) (Snapshot, error) {
	r, err := Attach(ctx, path, opts...)
	if err != nil {
		return Snapshot{}, err
	}
	defer func() {
		if cerr := r.Close(); cerr != nil {
			logger.Warnf("close %s: %v", path, cerr)
		}
	}()
	return r.Snapshot()
}
