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
	"encoding/binary"
	"errors"
)

// CacheLineLength is the cache line size the trailer and the region header are laid out for.
const CacheLineLength = 64

// Trailer layout. Every cursor lives on its own pair of cache lines, after
// the capacity bytes of record storage.
const (
	tailPositionOffset       = CacheLineLength * 2
	headCachePositionOffset  = CacheLineLength * 4
	headPositionOffset       = CacheLineLength * 6
	correlationCounterOffset = CacheLineLength * 8
	consumerHeartbeatOffset  = CacheLineLength * 10

	// TrailerLength is the number of bytes following the record storage.
	TrailerLength = CacheLineLength * 12
)

// Record layout: length int32 | type id int32 | payload, aligned to RecordAlignment.
const (
	lengthFieldOffset = 0
	typeFieldOffset   = 4

	// HeaderLength is the framing overhead of every record.
	HeaderLength = 8
	// RecordAlignment is the alignment every record starts on.
	RecordAlignment = 8

	// MinCapacity is the smallest ring accepted. Smaller rings would leave the
	// trailer cursors unaligned.
	MinCapacity = CacheLineLength

	// PaddingTypeID marks a record that only fills the space up to the end of
	// the array. Application type ids must be >= 1.
	PaddingTypeID int32 = -1
)

var (
	// ErrCapacity is returned when the buffer length minus TrailerLength is
	// not a power of two of at least MinCapacity.
	ErrCapacity = errors.New("ringbuf: capacity must be a power of two >= 64")
	// ErrUnaligned is returned when the buffer does not start on an 8-byte boundary.
	ErrUnaligned = errors.New("ringbuf: buffer must be 8-byte aligned")
	// ErrMessageTooLarge is returned for a payload that can never fit, even in
	// an empty buffer. Retrying is futile.
	ErrMessageTooLarge = errors.New("ringbuf: message exceeds max message length")
	// ErrInvalidTypeID is returned for type ids below 1.
	ErrInvalidTypeID = errors.New("ringbuf: type id must be >= 1")
	// ErrMalformedFrame is returned when the consumer finds a record header that
	// cannot have been written by a conforming producer.
	ErrMalformedFrame = errors.New("ringbuf: malformed frame")
	// ErrClaimPending is returned when a write is attempted while a claim is outstanding.
	ErrClaimPending = errors.New("ringbuf: claim pending")
	// ErrNoClaim is returned by Commit and Abort when the claim is not the outstanding one.
	ErrNoClaim = errors.New("ringbuf: no matching claim")
)

// BufferLength returns the backing length needed for a ring of capacity bytes.
func BufferLength(capacity int) int {
	return capacity + TrailerLength
}

// ValidateCapacity checks that capacity is a power of two of at least MinCapacity.
func ValidateCapacity(capacity int) error {
	if capacity < MinCapacity || capacity&(capacity-1) != 0 {
		return ErrCapacity
	}
	return nil
}

func align(v, alignment int) int {
	return (v + alignment - 1) &^ (alignment - 1)
}

func putTypeID(buf []byte, index int, typeID int32) {
	binary.NativeEndian.PutUint32(buf[index+typeFieldOffset:], uint32(typeID))
}

func typeIDAt(buf []byte, index int) int32 {
	return int32(binary.NativeEndian.Uint32(buf[index+typeFieldOffset:]))
}
