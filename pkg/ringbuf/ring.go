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

// Package ringbuf implements a wait-free single-producer/single-consumer ring
// buffer of typed, variable-length records over a caller-supplied byte slice,
// usually a segment of a shared mapping.
//
// The layout is the one used by Agrona's OneToOneRingBuffer and Aeron's
// spsc_rb: capacity bytes of records (capacity a power of two) followed by a
// trailer of TrailerLength bytes holding the cursors. A peer using either of
// those libraries on the same mapping interoperates with this package.
//
// Each side gets its own handle type. A *Producer only writes and a *Consumer
// only reads; exactly one of each may be in use per buffer at any time, across
// all processes mapping it. Neither type may be copied.
//
//	p, _ := ringbuf.NewProducer(seg)
//	ok, err := p.TryWrite(1, []byte("hello"))
//
//	c, _ := ringbuf.NewConsumer(seg)
//	ok, err = c.TryRead(func(typeID int32, payload []byte) { ... })
package ringbuf

import (
	"fmt"
	"time"

	"github.com/srediag/shmring/internal/shm"
)

// Handler receives one record. payload aliases the ring and is only valid
// until the handler returns.
type Handler func(typeID int32, payload []byte)

// noCopy makes go vet's copylocks check reject copies of the handle types.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// ring is the state shared by both handle types. It holds no cursor values,
// only the offsets where they live.
type ring struct {
	buf          []byte
	capacity     int
	mask         int64
	maxMsgLength int

	tailIndex        int
	headCacheIndex   int
	headIndex        int
	correlationIndex int
	heartbeatIndex   int
}

func newRing(buf []byte) (ring, error) {
	capacity := len(buf) - TrailerLength
	if err := ValidateCapacity(capacity); err != nil {
		return ring{}, fmt.Errorf("%w: buffer length %d", err, len(buf))
	}
	if !shm.Aligned(buf, RecordAlignment) {
		return ring{}, ErrUnaligned
	}
	return ring{
		buf:              buf,
		capacity:         capacity,
		mask:             int64(capacity - 1),
		maxMsgLength:     capacity / 8,
		tailIndex:        capacity + tailPositionOffset,
		headCacheIndex:   capacity + headCachePositionOffset,
		headIndex:        capacity + headPositionOffset,
		correlationIndex: capacity + correlationCounterOffset,
		heartbeatIndex:   capacity + consumerHeartbeatOffset,
	}, nil
}

// Capacity returns the number of bytes available for records.
func (r *ring) Capacity() int {
	return r.capacity
}

// MaxMessageLength returns the largest payload a single record may carry.
func (r *ring) MaxMessageLength() int {
	return r.maxMsgLength
}

// Size returns the number of bytes currently occupied by unread records,
// including padding. It is a snapshot and may be stale on return.
func (r *ring) Size() int {
	headAfter := shm.LoadInt64(r.buf, r.headIndex)
	for {
		headBefore := headAfter
		tail := shm.LoadInt64(r.buf, r.tailIndex)
		headAfter = shm.LoadInt64(r.buf, r.headIndex)
		if headAfter == headBefore {
			size := tail - headAfter
			switch {
			case size < 0:
				return 0
			case size > int64(r.capacity):
				return r.capacity
			}
			return int(size)
		}
	}
}

// ConsumerHeartbeat returns the last time the consumer stamped its heartbeat,
// or the zero time if it never did.
func (r *ring) ConsumerHeartbeat() time.Time {
	ms := shm.LoadInt64(r.buf, r.heartbeatIndex)
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// State is a point-in-time view of a ring's trailer.
type State struct {
	Capacity          int
	MaxMessageLength  int
	Tail              int64
	Head              int64
	HeadCache         int64
	Used              int64
	CorrelationID     int64
	ConsumerHeartbeat time.Time
}

func (s State) String() string {
	hb := "never"
	if !s.ConsumerHeartbeat.IsZero() {
		hb = s.ConsumerHeartbeat.Format(time.RFC3339Nano)
	}
	return fmt.Sprintf("cap:%d maxMsg:%d head:%d tail:%d headCache:%d used:%d correlation:%d heartbeat:%s",
		s.Capacity, s.MaxMessageLength, s.Head, s.Tail, s.HeadCache, s.Used, s.CorrelationID, hb)
}

// Inspect reads the trailer of buf without modifying it.
func Inspect(buf []byte) (State, error) {
	r, err := newRing(buf)
	if err != nil {
		return State{}, err
	}
	head := shm.LoadInt64(buf, r.headIndex)
	tail := shm.LoadInt64(buf, r.tailIndex)
	return State{
		Capacity:          r.capacity,
		MaxMessageLength:  r.maxMsgLength,
		Tail:              tail,
		Head:              head,
		HeadCache:         shm.LoadInt64(buf, r.headCacheIndex),
		Used:              tail - head,
		CorrelationID:     shm.LoadInt64(buf, r.correlationIndex),
		ConsumerHeartbeat: r.ConsumerHeartbeat(),
	}, nil
}
