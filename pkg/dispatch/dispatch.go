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

// Package dispatch routes records to handlers by type id.
package dispatch

import (
	"errors"
	"fmt"
	"sync/atomic"

	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/srediag/shmring/pkg/ringbuf"
)

// ErrNilHandler is returned when registering a nil handler.
var ErrNilHandler = errors.New("dispatch: nil handler")

// Dispatcher is a ringbuf.Handler that forwards each record to the handler
// registered for its type id. Registration may happen from any goroutine,
// also while records are being dispatched.
type Dispatcher struct {
	handlers cmap.ConcurrentMap[int32, ringbuf.Handler]
	fallback atomic.Pointer[ringbuf.Handler]
	unknown  atomic.Int64
}

// New returns an empty dispatcher.
func New() *Dispatcher {
	return &Dispatcher{
		handlers: cmap.NewWithCustomShardingFunction[int32, ringbuf.Handler](func(typeID int32) uint32 {
			return uint32(typeID)
		}),
	}
}

// Handle registers h for typeID, replacing any earlier handler.
func (d *Dispatcher) Handle(typeID int32, h ringbuf.Handler) error {
	if typeID < 1 {
		return fmt.Errorf("%w: %d", ringbuf.ErrInvalidTypeID, typeID)
	}
	if h == nil {
		return ErrNilHandler
	}
	d.handlers.Set(typeID, h)
	return nil
}

// Remove drops the handler for typeID.
func (d *Dispatcher) Remove(typeID int32) {
	d.handlers.Remove(typeID)
}

// HandleUnknown sets the handler for type ids with no registration. A nil h
// drops such records, which are still counted.
func (d *Dispatcher) HandleUnknown(h ringbuf.Handler) {
	if h == nil {
		d.fallback.Store(nil)
		return
	}
	d.fallback.Store(&h)
}

// Dispatch forwards one record. It has the ringbuf.Handler signature.
func (d *Dispatcher) Dispatch(typeID int32, payload []byte) {
	if h, ok := d.handlers.Get(typeID); ok {
		h(typeID, payload)
		return
	}
	d.unknown.Add(1)
	if h := d.fallback.Load(); h != nil {
		(*h)(typeID, payload)
	}
}

// Unknown returns how many records had no registered handler.
func (d *Dispatcher) Unknown() int64 {
	return d.unknown.Load()
}

// Len returns the number of registered type ids.
func (d *Dispatcher) Len() int {
	return d.handlers.Count()
}
