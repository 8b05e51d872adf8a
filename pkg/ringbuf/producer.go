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

package ringbuf

import (
	"fmt"

	"github.com/srediag/shmring/internal/shm"
)

// Producer is the write side of a ring. It is not safe for concurrent use:
// one goroutine in one process owns it.
type Producer struct {
	noCopy noCopy
	ring

	// outstanding claim, published on Commit or Abort
	claimed     bool
	claimIndex  int
	claimLength int
	claimTail   int64
	claimSeq    uint64
}

// NewProducer returns the write handle for the ring stored in buf.
// buf is not modified.
func NewProducer(buf []byte) (*Producer, error) {
	r, err := newRing(buf)
	if err != nil {
		return nil, err
	}
	return &Producer{ring: r}, nil
}

// TryWrite appends one record. It returns false, without error, when the ring
// does not currently have room; the caller decides how to wait. Errors are
// reserved for records that are invalid regardless of ring state.
func (p *Producer) TryWrite(typeID int32, payload []byte) (bool, error) {
	if err := p.checkWrite(typeID, len(payload)); err != nil {
		return false, err
	}
	recordLength := len(payload) + HeaderLength
	index, tail, ok := p.claimCapacity(align(recordLength, RecordAlignment))
	if !ok {
		return false, nil
	}
	shm.StoreInt32(p.buf, index+lengthFieldOffset, int32(-recordLength))
	copy(p.buf[index+HeaderLength:], payload)
	p.publish(index, recordLength, typeID, tail)
	return true, nil
}

// TryWriteVectored appends one record whose payload is the concatenation of parts.
func (p *Producer) TryWriteVectored(typeID int32, parts ...[]byte) (bool, error) {
	length := 0
	for _, part := range parts {
		length += len(part)
	}
	if err := p.checkWrite(typeID, length); err != nil {
		return false, err
	}
	recordLength := length + HeaderLength
	index, tail, ok := p.claimCapacity(align(recordLength, RecordAlignment))
	if !ok {
		return false, nil
	}
	shm.StoreInt32(p.buf, index+lengthFieldOffset, int32(-recordLength))
	offset := index + HeaderLength
	for _, part := range parts {
		offset += copy(p.buf[offset:], part)
	}
	p.publish(index, recordLength, typeID, tail)
	return true, nil
}

// Claim is space reserved in the ring by TryClaim. Payload aliases the ring.
type Claim struct {
	Payload []byte
	index   int
	seq     uint64
}

// TryClaim reserves room for a record of length payload bytes so the caller
// can encode in place. Nothing is visible to the consumer until Commit or
// Abort. Only one claim may be outstanding.
func (p *Producer) TryClaim(typeID int32, length int) (Claim, bool, error) {
	if length < 0 {
		return Claim{}, false, fmt.Errorf("ringbuf: negative claim length %d", length)
	}
	if err := p.checkWrite(typeID, length); err != nil {
		return Claim{}, false, err
	}
	recordLength := length + HeaderLength
	index, tail, ok := p.claimCapacity(align(recordLength, RecordAlignment))
	if !ok {
		return Claim{}, false, nil
	}
	shm.StoreInt32(p.buf, index+lengthFieldOffset, int32(-recordLength))
	putTypeID(p.buf, index, typeID)

	p.claimed = true
	p.claimSeq++
	p.claimIndex = index
	p.claimLength = recordLength
	p.claimTail = tail
	start := index + HeaderLength
	return Claim{Payload: p.buf[start : start+length : start+length], index: index, seq: p.claimSeq}, true, nil
}

// Commit publishes a claimed record.
func (p *Producer) Commit(c Claim) error {
	if !p.owns(c) {
		return ErrNoClaim
	}
	typeID := typeIDAt(p.buf, p.claimIndex)
	p.claimed = false
	p.publish(p.claimIndex, p.claimLength, typeID, p.claimTail)
	return nil
}

// Abort turns a claimed record into padding, which the consumer skips.
func (p *Producer) Abort(c Claim) error {
	if !p.owns(c) {
		return ErrNoClaim
	}
	p.claimed = false
	p.publish(p.claimIndex, p.claimLength, PaddingTypeID, p.claimTail)
	return nil
}

// owns reports whether c is the outstanding claim and not an earlier one that
// happened to start at the same index.
func (p *Producer) owns(c Claim) bool {
	return p.claimed && c.seq == p.claimSeq && c.index == p.claimIndex
}

// NextCorrelationID returns a ring-wide unique, increasing id.
func (p *Producer) NextCorrelationID() int64 {
	return shm.AddInt64(p.buf, p.correlationIndex, 1) - 1
}

func (p *Producer) checkWrite(typeID int32, length int) error {
	if p.claimed {
		return ErrClaimPending
	}
	if typeID < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidTypeID, typeID)
	}
	if length > p.maxMsgLength || align(length+HeaderLength, RecordAlignment) > p.capacity {
		return fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, length, p.maxMsgLength)
	}
	return nil
}

// publish completes the record at index and then exposes it, and everything
// written before it, by advancing the tail.
func (p *Producer) publish(index, recordLength int, typeID int32, tail int64) {
	putTypeID(p.buf, index, typeID)
	shm.StoreInt32(p.buf, index+lengthFieldOffset, int32(recordLength))
	shm.StoreInt64(p.buf, p.tailIndex, tail)
}

// claimCapacity finds room for required bytes at the tail, writing a padding
// record first when the tail is too close to the end of the array. It returns
// the record index and the tail value to publish.
func (p *Producer) claimCapacity(required int) (index int, newTail int64, ok bool) {
	capacity := int64(p.capacity)
	req := int64(required)

	tail := shm.LoadInt64(p.buf, p.tailIndex)
	head := shm.LoadInt64(p.buf, p.headCacheIndex)
	if req > capacity-(tail-head) {
		head = shm.LoadInt64(p.buf, p.headIndex)
		if req > capacity-(tail-head) {
			return 0, 0, false
		}
		shm.StoreInt64(p.buf, p.headCacheIndex, head)
	}

	padding := int64(0)
	tailIndex := tail & p.mask
	toBufferEnd := capacity - tailIndex
	if req > toBufferEnd {
		headIndex := head & p.mask
		if req > headIndex {
			head = shm.LoadInt64(p.buf, p.headIndex)
			headIndex = head & p.mask
			if req > headIndex {
				return 0, 0, false
			}
			shm.StoreInt64(p.buf, p.headCacheIndex, head)
		}
		padding = toBufferEnd
	}

	if padding != 0 {
		i := int(tailIndex)
		putTypeID(p.buf, i, PaddingTypeID)
		shm.StoreInt32(p.buf, i+lengthFieldOffset, int32(padding))
		tailIndex = 0
	}
	return int(tailIndex), tail + req + padding, true
}
