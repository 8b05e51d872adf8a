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

// Package echo is the srvex service loop: every record read from the inbound
// ring is written back, unchanged, to the outbound ring.
package echo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/Workiva/go-datastructures/queue"
	"github.com/valyala/bytebufferpool"

	"github.com/srediag/shmring/internal/logging"
	"github.com/srediag/shmring/pkg/channel"
	"github.com/srediag/shmring/pkg/poller"
)

// ErrBacklogFull stops the server when the outbound ring stays full for
// longer than the backlog can absorb.
var ErrBacklogFull = errors.New("echo: outbound backlog full")

// readBatch bounds the records handled per poll so the backlog gets flushed
// between batches.
const readBatch = 16

var logger = logging.New("echo", nil)

type pending struct {
	typeID int32
	buf    *bytebufferpool.ByteBuffer
}

// Server echoes records on a service channel. Run owns both directions.
type Server struct {
	ch      *channel.Channel
	poller  poller.Poller
	out     io.Writer
	backlog *queue.Queue
	limit   int64
	err     error

	received atomic.Int64
	echoed   atomic.Int64
}

// New returns a server on ch. Up to backlog records are held while the
// outbound ring is full; 0 makes a full ring fatal. A line per record is
// written to out when it is not nil.
func New(ch *channel.Channel, p poller.Poller, backlog int, out io.Writer) *Server {
	return &Server{
		ch:      ch,
		poller:  p,
		out:     out,
		backlog: queue.New(int64(backlog)),
		limit:   int64(backlog),
	}
}

// Run polls until ctx ends or the server fails. It returns nil on
// cancellation.
func (s *Server) Run(ctx context.Context) error {
	defer s.drop()
	s.poller.Reset()
	for ctx.Err() == nil {
		n, err := s.Step()
		if err != nil {
			return err
		}
		poller.IdleFor(s.poller, n)
	}
	return nil
}

// Step flushes the backlog, polls the inbound ring once and reports how many
// records it moved.
func (s *Server) Step() (int, error) {
	flushed, err := s.flush()
	if err != nil {
		return flushed, err
	}
	n, err := s.ch.Poll(s.handle, readBatch)
	if err != nil {
		return flushed + n, fmt.Errorf("echo: read inbound: %w", err)
	}
	return flushed + n, s.err
}

// Received returns the number of records read.
func (s *Server) Received() int64 {
	return s.received.Load()
}

// Echoed returns the number of records written back.
func (s *Server) Echoed() int64 {
	return s.echoed.Load()
}

// Backlog returns the number of records waiting for outbound room.
func (s *Server) Backlog() int {
	return int(s.backlog.Len())
}

func (s *Server) handle(typeID int32, payload []byte) {
	s.received.Add(1)
	if s.out != nil {
		fmt.Fprintf(s.out, "Message %d\n", typeID)
	}
	if s.err != nil {
		return
	}
	if s.backlog.Empty() {
		ok, err := s.ch.TrySend(typeID, payload)
		if err != nil {
			s.err = fmt.Errorf("echo: write outbound: %w", err)
			return
		}
		if ok {
			s.echoed.Add(1)
			return
		}
	}
	if s.backlog.Len() >= s.limit {
		s.err = fmt.Errorf("%w: %d records", ErrBacklogFull, s.limit)
		return
	}
	buf := bytebufferpool.Get()
	_, _ = buf.Write(payload)
	if err := s.backlog.Put(&pending{typeID: typeID, buf: buf}); err != nil {
		bytebufferpool.Put(buf)
		s.err = fmt.Errorf("echo: backlog: %w", err)
		return
	}
	logger.Debugf("outbound full, %d records waiting", s.backlog.Len())
}

// flush writes waiting records in order until the outbound ring is full.
func (s *Server) flush() (int, error) {
	n := 0
	for !s.backlog.Empty() {
		item, err := s.backlog.Peek()
		if err != nil {
			return n, fmt.Errorf("echo: backlog: %w", err)
		}
		p := item.(*pending)
		ok, err := s.ch.TrySend(p.typeID, p.buf.B)
		if err != nil {
			return n, fmt.Errorf("echo: write outbound: %w", err)
		}
		if !ok {
			return n, nil
		}
		if _, err := s.backlog.Get(1); err != nil {
			return n, fmt.Errorf("echo: backlog: %w", err)
		}
		bytebufferpool.Put(p.buf)
		s.echoed.Add(1)
		n++
	}
	return n, nil
}

func (s *Server) drop() {
	if n := s.backlog.Len(); n > 0 {
		logger.Warnf("dropping %d records that never fit outbound", n)
	}
	for _, item := range s.backlog.Dispose() {
		bytebufferpool.Put(item.(*pending).buf)
	}
}
