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
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/srediag/shmring/pkg/ringbuf"
)

type DispatcherTestSuite struct {
	suite.Suite
	d *Dispatcher
}

func (s *DispatcherTestSuite) SetupTest() {
	s.d = New()
}

func (s *DispatcherTestSuite) TestRouting() {
	var got []string
	s.Require().NoError(s.d.Handle(1, func(_ int32, p []byte) { got = append(got, "one:"+string(p)) }))
	s.Require().NoError(s.d.Handle(2, func(_ int32, p []byte) { got = append(got, "two:"+string(p)) }))
	s.Equal(2, s.d.Len())

	s.d.Dispatch(2, []byte("b"))
	s.d.Dispatch(1, []byte("a"))
	s.d.Dispatch(3, []byte("c"))
	s.Equal([]string{"two:b", "one:a"}, got)
	s.Equal(int64(1), s.d.Unknown())

	s.Require().NoError(s.d.Handle(1, func(_ int32, p []byte) { got = append(got, "uno:"+string(p)) }))
	s.d.Dispatch(1, []byte("a"))
	s.Equal("uno:a", got[len(got)-1])

	s.d.Remove(2)
	s.d.Dispatch(2, []byte("b"))
	s.Equal(int64(2), s.d.Unknown())
	s.Equal(1, s.d.Len())
}

func (s *DispatcherTestSuite) TestUnknownHandler() {
	var ids []int32
	s.d.HandleUnknown(func(typeID int32, _ []byte) { ids = append(ids, typeID) })
	s.d.Dispatch(9, nil)
	s.d.Dispatch(7, nil)
	s.Equal([]int32{9, 7}, ids)

	s.d.HandleUnknown(nil)
	s.d.Dispatch(5, nil)
	s.Equal([]int32{9, 7}, ids)
	s.Equal(int64(3), s.d.Unknown())
}

func (s *DispatcherTestSuite) TestRejects() {
	s.ErrorIs(s.d.Handle(0, func(int32, []byte) {}), ringbuf.ErrInvalidTypeID)
	s.ErrorIs(s.d.Handle(-1, func(int32, []byte) {}), ringbuf.ErrInvalidTypeID)
	s.ErrorIs(s.d.Handle(1, nil), ErrNilHandler)
	s.Equal(0, s.d.Len())
}

func (s *DispatcherTestSuite) TestFromRing() {
	buf := make([]byte, ringbuf.BufferLength(1024))
	p, err := ringbuf.NewProducer(buf)
	s.Require().NoError(err)
	c, err := ringbuf.NewConsumer(buf)
	s.Require().NoError(err)

	counts := map[int32]int{}
	for _, id := range []int32{1, 2} {
		s.Require().NoError(s.d.Handle(id, func(typeID int32, _ []byte) { counts[typeID]++ }))
	}
	for _, id := range []int32{1, 2, 2, 4} {
		ok, err := p.TryWrite(id, []byte("x"))
		s.Require().NoError(err)
		s.Require().True(ok)
	}
	n, err := c.Read(s.d.Dispatch, 10)
	s.Require().NoError(err)
	s.Equal(4, n)
	s.Equal(map[int32]int{1: 1, 2: 2}, counts)
	s.Equal(int64(1), s.d.Unknown())
}

func (s *DispatcherTestSuite) TestConcurrentRegistration() {
	var hits atomic.Int64
	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				id := int32(1 + (g*1000+i)%64)
				_ = s.d.Handle(id, func(int32, []byte) { hits.Add(1) })
				s.d.Dispatch(id, nil)
			}
		}(g)
	}
	wg.Wait()
	s.Equal(int64(4000), hits.Load())
	s.Equal(64, s.d.Len())
}

func TestDispatcherTestSuite(t *testing.T) {
	suite.Run(t, new(DispatcherTestSuite))
}

func TestAsync(t *testing.T) {
	var (
		mu  sync.Mutex
		got = map[string]int32{}
	)
	a, err := NewAsync(4, func(typeID int32, payload []byte) {
		mu.Lock()
		got[string(payload)] = typeID
		mu.Unlock()
	})
	require.NoError(t, err)

	src := make([]byte, 4)
	for i := 0; i < 100; i++ {
		copy(src, []byte{'m', byte('0' + i/10), byte('0' + i%10), '!'})
		a.Handle(int32(1+i%3), src)
	}
	// src is reused above, handlers must have seen copies
	a.Release()

	assert.Len(t, got, 100)
	assert.Equal(t, int32(1), got["m00!"])
	assert.Equal(t, int32(2), got["m01!"])
	assert.Error(t, a.Submit(1, nil), "released pool rejects work")
}

func TestAsyncNonblocking(t *testing.T) {
	release := make(chan struct{})
	a, err := NewAsync(1, func(int32, []byte) { <-release }, ants.WithNonblocking(true))
	require.NoError(t, err)

	require.NoError(t, a.Submit(1, []byte("busy")))
	assert.Eventually(t, func() bool { return a.Running() == 1 }, time.Second, time.Millisecond)
	assert.ErrorIs(t, a.Submit(1, []byte("overflow")), ants.ErrPoolOverload)
	a.Handle(1, []byte("dropped"))

	close(release)
	a.Release()

	_, err = NewAsync(1, nil)
	assert.ErrorIs(t, err, ErrNilHandler)
}
