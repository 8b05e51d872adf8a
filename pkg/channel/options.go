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

package channel

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/srediag/shmring/pkg/poller"
)

// Option configures New and FromRegion.
type Option func(*options)

type options struct {
	name    string
	pollers func() poller.Poller
	meter   metric.Meter
}

func newOptions(opts []Option) options {
	o := options{
		name:    "channel",
		pollers: func() poller.Poller { return poller.Yielding{} },
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithName sets the channel name.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithPoller sets the constructor used to give each direction its own poller.
func WithPoller(f func() poller.Poller) Option {
	return func(o *options) {
		if f != nil {
			o.pollers = f
		}
	}
}

// WithMeter records message, byte and backpressure counters on m.
func WithMeter(m metric.Meter) Option {
	return func(o *options) {
		o.meter = m
	}
}

type metrics struct {
	messages      metric.Int64Counter
	bytes         metric.Int64Counter
	backpressures metric.Int64Counter

	sendAttrs metric.AddOption
	recvAttrs metric.AddOption
}

func newMetrics(m metric.Meter, name string) (*metrics, error) {
	if m == nil {
		m = noop.NewMeterProvider().Meter("")
	}
	messages, err := m.Int64Counter("shmring.channel.messages",
		metric.WithDescription("Records moved through the channel."))
	if err != nil {
		return nil, fmt.Errorf("messages counter: %w", err)
	}
	bytes, err := m.Int64Counter("shmring.channel.bytes",
		metric.WithDescription("Payload bytes moved through the channel."),
		metric.WithUnit("By"))
	if err != nil {
		return nil, fmt.Errorf("bytes counter: %w", err)
	}
	backpressures, err := m.Int64Counter("shmring.channel.backpressure",
		metric.WithDescription("Send attempts that found the ring full."))
	if err != nil {
		return nil, fmt.Errorf("backpressure counter: %w", err)
	}
	return &metrics{
		messages:      messages,
		bytes:         bytes,
		backpressures: backpressures,
		sendAttrs: metric.WithAttributeSet(attribute.NewSet(
			attribute.String("channel", name), attribute.String("direction", "send"))),
		recvAttrs: metric.WithAttributeSet(attribute.NewSet(
			attribute.String("channel", name), attribute.String("direction", "receive"))),
	}, nil
}

func (m *metrics) sent(n int) {
	ctx := context.Background()
	m.messages.Add(ctx, 1, m.sendAttrs)
	m.bytes.Add(ctx, int64(n), m.sendAttrs)
}

func (m *metrics) received(records, n int) {
	ctx := context.Background()
	m.messages.Add(ctx, int64(records), m.recvAttrs)
	m.bytes.Add(ctx, int64(n), m.recvAttrs)
}

func (m *metrics) backpressure() {
	m.backpressures.Add(context.Background(), 1, m.sendAttrs)
}
