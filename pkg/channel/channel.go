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

// Package channel pairs two rings into one side of a full-duplex link. The
// service reads requests from the inbound ring and writes responses to the
// outbound ring; the client does the reverse. The two directions share no
// state and may be driven from different goroutines, one per direction.
package channel

import (
	"context"
	"fmt"
	"time"

	"github.com/srediag/shmring/api"
	"github.com/srediag/shmring/pkg/poller"
	"github.com/srediag/shmring/pkg/region"
	"github.com/srediag/shmring/pkg/ringbuf"
)

// Role selects which ring a side reads.
type Role int

const (
	// Service reads inbound and writes outbound.
	Service Role = iota
	// Client writes inbound and reads outbound.
	Client
)

func (r Role) String() string {
	switch r {
	case Service:
		return "service"
	case Client:
		return "client"
	}
	return fmt.Sprintf("Role(%d)", int(r))
}

// Channel is one side of a link. Send, TrySend and the producer belong to
// one goroutine; Receive, TryReceive, Poll and the consumer to another.
type Channel struct {
	name     string
	producer *ringbuf.Producer
	consumer *ringbuf.Consumer

	sendPoller poller.Poller
	recvPoller poller.Poller
	metrics    *metrics
}

var _ api.Transport = (*Channel)(nil)

// New builds a channel that reads records from recv and writes them to send.
func New(recv, send []byte, opts ...Option) (*Channel, error) {
	o := newOptions(opts)
	consumer, err := ringbuf.NewConsumer(recv)
	if err != nil {
		return nil, fmt.Errorf("receive ring: %w", err)
	}
	producer, err := ringbuf.NewProducer(send)
	if err != nil {
		return nil, fmt.Errorf("send ring: %w", err)
	}
	m, err := newMetrics(o.meter, o.name)
	if err != nil {
		return nil, err
	}
	return &Channel{
		name:       o.name,
		producer:   producer,
		consumer:   consumer,
		sendPoller: o.pollers(),
		recvPoller: o.pollers(),
		metrics:    m,
	}, nil
}

// FromRegion builds the channel for role over the two rings of r.
func FromRegion(r *region.Region, role Role, opts ...Option) (*Channel, error) {
	opts = append([]Option{WithName(role.String())}, opts...)
	switch role {
	case Service:
		return New(r.Inbound(), r.Outbound(), opts...)
	case Client:
		return New(r.Outbound(), r.Inbound(), opts...)
	}
	return nil, fmt.Errorf("channel: unknown role %v", role)
}

// Name returns the name used in metric attributes and log lines.
func (c *Channel) Name() string {
	return c.name
}

// Producer returns the write handle of the send ring.
func (c *Channel) Producer() *ringbuf.Producer {
	return c.producer
}

// Consumer returns the read handle of the receive ring.
func (c *Channel) Consumer() *ringbuf.Consumer {
	return c.consumer
}

// TrySend writes one record if there is room.
func (c *Channel) TrySend(typeID int32, payload []byte) (bool, error) {
	ok, err := c.producer.TryWrite(typeID, payload)
	if ok {
		c.metrics.sent(len(payload))
	}
	return ok, err
}

// Send writes one record, idling on the send poller while the ring is full.
// It returns ctx.Err() once ctx ends, and any write error at once.
func (c *Channel) Send(ctx context.Context, typeID int32, payload []byte) error {
	c.sendPoller.Reset()
	for {
		ok, err := c.producer.TryWrite(typeID, payload)
		if err != nil {
			return err
		}
		if ok {
			c.metrics.sent(len(payload))
			return nil
		}
		c.metrics.backpressure()
		if err := ctx.Err(); err != nil {
			return err
		}
		c.sendPoller.Idle()
	}
}

// TryReceive hands at most one record to handler.
func (c *Channel) TryReceive(handler ringbuf.Handler) (bool, error) {
	n, err := c.Poll(handler, 1)
	return n == 1, err
}

// Receive hands exactly one record to handler, idling on the receive poller
// while the ring is empty. It returns ctx.Err() once ctx ends.
func (c *Channel) Receive(ctx context.Context, handler ringbuf.Handler) error {
	c.recvPoller.Reset()
	for {
		n, err := c.Poll(handler, 1)
		if err != nil || n == 1 {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		c.recvPoller.Idle()
	}
}

// Poll hands up to limit records to handler and returns how many it handed.
// It also stamps the consumer heartbeat of the receive ring.
func (c *Channel) Poll(handler ringbuf.Handler, limit int) (int, error) {
	c.consumer.SetHeartbeat(time.Now())
	bytes := 0
	n, err := c.consumer.Read(func(typeID int32, payload []byte) {
		bytes += len(payload)
		handler(typeID, payload)
	}, limit)
	if n > 0 {
		c.metrics.received(n, bytes)
	}
	return n, err
}
