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
	"time"

	"github.com/srediag/shmring/internal/shm"
)

// Consumer is the read side of a ring. It is not safe for concurrent use:
// one goroutine in one process owns it.
type Consumer struct {
	noCopy noCopy
	ring
}

// NewConsumer returns the read handle for the ring stored in buf.
// buf is not modified.
func NewConsumer(buf []byte) (*Consumer, error) {
	r, err := newRing(buf)
	if err != nil {
		return nil, err
	}
	return &Consumer{ring: r}, nil
}

// TryRead delivers at most one record to handler. It returns false when the
// ring is empty.
func (c *Consumer) TryRead(handler Handler) (bool, error) {
	n, err := c.Read(handler, 1)
	return n == 1, err
}

// Read delivers up to limit records to handler, skipping padding, and returns
// how many were delivered. The space of every delivered record is zeroed and
// released before Read returns, even if handler panics.
//
// A malformed record stops the read with ErrMalformedFrame. It is not
// consumed, so every later call reports it again.
func (c *Consumer) Read(handler Handler, limit int) (read int, err error) {
	head := shm.LoadInt64(c.buf, c.headIndex)
	tail := shm.LoadInt64(c.buf, c.tailIndex)
	available := tail - head
	if available <= 0 || limit <= 0 {
		return 0, nil
	}

	headIndex := int(head & c.mask)
	bytesRead := 0
	defer func() {
		if bytesRead > 0 {
			c.release(head, headIndex, bytesRead)
		}
	}()

	for read < limit && int64(bytesRead) < available {
		index := (headIndex + bytesRead) & int(c.mask)
		recordLength := int(shm.LoadInt32(c.buf, index+lengthFieldOffset))
		if recordLength <= 0 {
			// claimed but not yet committed by a peer that publishes the tail early
			break
		}
		aligned := align(recordLength, RecordAlignment)
		typeID := typeIDAt(c.buf, index)
		if recordLength < HeaderLength ||
			index+aligned > c.capacity ||
			int64(bytesRead+aligned) > available ||
			(typeID < 1 && typeID != PaddingTypeID) {
			return read, fmt.Errorf("%w: length %d type %d at index %d", ErrMalformedFrame, recordLength, typeID, index)
		}

		bytesRead += aligned
		if typeID == PaddingTypeID {
			continue
		}
		read++
		end := index + recordLength
		handler(typeID, c.buf[index+HeaderLength:end:end])
	}
	return read, nil
}

// SetHeartbeat records t as the consumer's liveness timestamp, readable by
// the producer process.
func (c *Consumer) SetHeartbeat(t time.Time) {
	shm.StoreInt64(c.buf, c.heartbeatIndex, t.UnixMilli())
}

// release zeroes the consumed bytes, so length fields ahead of the tail read
// as zero, and then advances the head.
func (c *Consumer) release(head int64, headIndex, n int) {
	end := headIndex + n
	if end <= c.capacity {
		clear(c.buf[headIndex:end])
	} else {
		clear(c.buf[headIndex:c.capacity])
		clear(c.buf[:end-c.capacity])
	}
	shm.StoreInt64(c.buf, c.headIndex, head+int64(n))
}
