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

package dispatch

import (
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/valyala/bytebufferpool"

	"github.com/srediag/shmring/internal/logging"
	"github.com/srediag/shmring/pkg/ringbuf"
)

var logger = logging.New("dispatch", nil)

// Async runs a handler on a pool of goroutines. Payloads are copied out of
// the ring into pooled buffers, so the ring space is released as soon as the
// record is submitted. Order between records is not kept.
type Async struct {
	pool    *ants.Pool
	handler ringbuf.Handler
	pending sync.WaitGroup
}

// NewAsync returns an Async running h on up to workers goroutines. Submit
// blocks while all workers are busy unless ants.WithNonblocking is passed.
func NewAsync(workers int, h ringbuf.Handler, opts ...ants.Option) (*Async, error) {
	if h == nil {
		return nil, ErrNilHandler
	}
	pool, err := ants.NewPool(workers, opts...)
	if err != nil {
		return nil, fmt.Errorf("dispatch: worker pool: %w", err)
	}
	return &Async{pool: pool, handler: h}, nil
}

// Submit copies payload and queues it for the handler.
func (a *Async) Submit(typeID int32, payload []byte) error {
	buf := bytebufferpool.Get()
	_, _ = buf.Write(payload)
	a.pending.Add(1)
	err := a.pool.Submit(func() {
		defer a.pending.Done()
		defer bytebufferpool.Put(buf)
		a.handler(typeID, buf.B)
	})
	if err != nil {
		a.pending.Done()
		bytebufferpool.Put(buf)
		return fmt.Errorf("dispatch: submit type %d: %w", typeID, err)
	}
	return nil
}

// Handle is Submit with the ringbuf.Handler signature. Records that cannot
// be submitted are logged and dropped.
func (a *Async) Handle(typeID int32, payload []byte) {
	if err := a.Submit(typeID, payload); err != nil {
		logger.Warnf("%v", err)
	}
}

// Wait blocks until every submitted record was handled.
func (a *Async) Wait() {
	a.pending.Wait()
}

// Running returns the number of live workers, idle ones included.
func (a *Async) Running() int {
	return a.pool.Running()
}

// Release waits for submitted records and stops the workers.
func (a *Async) Release() {
	a.Wait()
	a.pool.Release()
}
