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

//go:build linux || darwin || freebsd

package channel

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/srediag/shmring/pkg/poller"
	"github.com/srediag/shmring/pkg/region"
	"github.com/srediag/shmring/pkg/ringbuf"
)

func newRings(t testing.TB, capacity int) (a, b []byte) {
	return make([]byte, ringbuf.BufferLength(capacity)), make([]byte, ringbuf.BufferLength(capacity))
}

type ChannelTestSuite struct {
	suite.Suite
	ctx     context.Context
	created *region.Region
	service *Channel
	client  *Channel
	peer    *region.Region
}

func (s *ChannelTestSuite) SetupTest() {
	s.ctx = context.Background()
	path := filepath.Join(s.T().TempDir(), region.DefaultFileName)
	var err error
	s.created, err = region.Create(s.ctx, path, region.Config{InboundCapacity: 4096, OutboundCapacity: 4096})
	s.Require().NoError(err)
	s.service, err = FromRegion(s.created, Service)
	s.Require().NoError(err)

	// the client maps the file on its own, as another process would
	s.peer, err = region.Attach(s.ctx, path)
	s.Require().NoError(err)
	s.client, err = FromRegion(s.peer, Client, WithPoller(func() poller.Poller { return poller.Yielding{} }))
	s.Require().NoError(err)
}

func (s *ChannelTestSuite) TearDownTest() {
	s.NoError(s.peer.Close())
	s.NoError(s.created.Destroy())
}

func (s *ChannelTestSuite) TestMessageTheFirst() {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
		defer cancel()
		var frames int
		err := s.service.Receive(ctx, func(typeID int32, payload []byte) {
			frames++
			assert.Equal(s.T(), int32(1), typeID)
			assert.Equal(s.T(), "message the first", string(payload))
			ok, err := s.service.TrySend(typeID, payload)
			assert.NoError(s.T(), err)
			assert.True(s.T(), ok)
		})
		assert.NoError(s.T(), err)
		assert.Equal(s.T(), 1, frames)
	}()

	s.Require().NoError(s.client.Send(s.ctx, 1, []byte("message the first")))

	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()
	var echoed string
	s.Require().NoError(s.client.Receive(ctx, func(_ int32, payload []byte) {
		echoed = string(payload)
	}))
	wg.Wait()
	s.Equal("message the first", echoed)

	ok, err := s.service.TryReceive(func(int32, []byte) { s.Fail("exactly one frame was sent") })
	s.NoError(err)
	s.False(ok)
}

func (s *ChannelTestSuite) TestDirectionsAreIndependent() {
	ok, err := s.client.TrySend(3, []byte("request"))
	s.Require().NoError(err)
	s.Require().True(ok)

	// the client does not read its own request back
	ok, err = s.client.TryReceive(func(int32, []byte) { s.Fail("client must read outbound only") })
	s.NoError(err)
	s.False(ok)

	n, err := s.service.Poll(func(typeID int32, payload []byte) {
		s.Equal(int32(3), typeID)
		s.Equal("request", string(payload))
	}, 10)
	s.NoError(err)
	s.Equal(1, n)
	s.False(s.client.Producer().ConsumerHeartbeat().IsZero(), "service poll stamps the inbound heartbeat")
}

func (s *ChannelTestSuite) TestReceiveCancelled() {
	ctx, cancel := context.WithTimeout(s.ctx, 20*time.Millisecond)
	defer cancel()
	err := s.service.Receive(ctx, func(int32, []byte) { s.Fail("nothing was sent") })
	s.ErrorIs(err, context.DeadlineExceeded)
}

func (s *ChannelTestSuite) TestSendBackpressureAndCancel() {
	payload := make([]byte, s.client.Producer().MaxMessageLength())
	for {
		ok, err := s.client.TrySend(1, payload)
		s.Require().NoError(err)
		if !ok {
			break
		}
	}
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	s.ErrorIs(s.client.Send(ctx, 1, payload), context.Canceled)

	s.ErrorIs(s.client.Send(s.ctx, 1, make([]byte, 4096)), ringbuf.ErrMessageTooLarge)
	s.ErrorIs(s.client.Send(s.ctx, 0, nil), ringbuf.ErrInvalidTypeID)
}

func (s *ChannelTestSuite) TestSendWaitsForRoom() {
	payload := make([]byte, s.client.Producer().MaxMessageLength())
	sent := 0
	for {
		ok, err := s.client.TrySend(1, payload)
		s.Require().NoError(err)
		if !ok {
			break
		}
		sent++
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		time.Sleep(10 * time.Millisecond)
		_, _ = s.service.TryReceive(func(int32, []byte) {})
	}()
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()
	s.NoError(s.client.Send(ctx, 1, payload))
	<-done

	n, err := s.service.Poll(func(int32, []byte) {}, 1000)
	s.NoError(err)
	s.Equal(sent, n)
}

func (s *ChannelTestSuite) TestCollector() {
	_, err := s.client.TrySend(1, []byte("abc"))
	s.Require().NoError(err)
	_, err = s.service.Poll(func(int32, []byte) {}, 0)
	s.Require().NoError(err)

	reg := prometheus.NewRegistry()
	s.Require().NoError(reg.Register(NewCollector(s.client)))
	families, err := reg.Gather()
	s.Require().NoError(err)

	values := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			values[mf.GetName()+"/"+labelValue(m, "direction")] = m.GetGauge().GetValue()
			s.Equal("client", labelValue(m, "channel"))
		}
	}
	s.Equal(4096.0, values["shmring_ring_capacity_bytes/send"])
	s.Equal(4096.0, values["shmring_ring_capacity_bytes/receive"])
	s.Equal(16.0, values["shmring_ring_used_bytes/send"])
	s.Equal(0.0, values["shmring_ring_used_bytes/receive"])
	s.Greater(values["shmring_ring_consumer_heartbeat_seconds/send"], 0.0)
	s.Equal(0.0, values["shmring_ring_consumer_heartbeat_seconds/receive"])
}

func labelValue(m *dto.Metric, name string) string {
	for _, l := range m.GetLabel() {
		if l.GetName() == name {
			return l.GetValue()
		}
	}
	return ""
}

func TestChannelTestSuite(t *testing.T) {
	suite.Run(t, new(ChannelTestSuite))
}

func TestNewRejectsBadRings(t *testing.T) {
	good, _ := newRings(t, 1024)
	_, err := New(make([]byte, 100), good)
	assert.ErrorIs(t, err, ringbuf.ErrCapacity)
	assert.True(t, strings.HasPrefix(err.Error(), "receive ring"))
	_, err = New(good, make([]byte, 100))
	assert.ErrorIs(t, err, ringbuf.ErrCapacity)

	_, err = FromRegion(nil, Role(7))
	assert.Error(t, err)
	assert.Equal(t, "Role(7)", Role(7).String())
}

type recordingMeter struct {
	noop.Meter
	counters map[string]*recordingCounter
}

func (m *recordingMeter) Int64Counter(name string, _ ...metric.Int64CounterOption) (metric.Int64Counter, error) {
	c := &recordingCounter{totals: map[string]int64{}}
	m.counters[name] = c
	return c, nil
}

type recordingCounter struct {
	noop.Int64Counter
	totals map[string]int64
}

func (c *recordingCounter) Add(_ context.Context, v int64, opts ...metric.AddOption) {
	set := metric.NewAddConfig(opts).Attributes()
	dir, _ := set.Value("direction")
	c.totals[dir.AsString()] += v
}

func TestMeter(t *testing.T) {
	a, b := newRings(t, 1024)
	m := &recordingMeter{counters: map[string]*recordingCounter{}}
	sender, err := New(b, a, WithMeter(m), WithName("sender"))
	require.NoError(t, err)
	receiver, err := New(a, b, WithPoller(func() poller.Poller { return poller.BusySpin{} }))
	require.NoError(t, err)
	assert.Equal(t, "sender", sender.Name())
	assert.Equal(t, "channel", receiver.Name())

	require.NoError(t, sender.Send(context.Background(), 1, []byte("12345")))
	require.NoError(t, sender.Send(context.Background(), 1, []byte("678")))
	for {
		ok, err := sender.TrySend(1, make([]byte, 100))
		require.NoError(t, err)
		if !ok {
			break
		}
	}
	require.NoError(t, receiver.Receive(context.Background(), func(int32, []byte) {}))

	// the sender's own receive ring is b: feed it through receiver
	require.NoError(t, receiver.Send(context.Background(), 2, []byte("reply")))
	n, err := sender.Poll(func(int32, []byte) {}, 10)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	assert.Equal(t, int64(1), m.counters["shmring.channel.messages"].totals["receive"])
	assert.Equal(t, int64(5), m.counters["shmring.channel.bytes"].totals["receive"])
	assert.GreaterOrEqual(t, m.counters["shmring.channel.messages"].totals["send"], int64(3))
	assert.Equal(t, int64(0), m.counters["shmring.channel.backpressure"].totals["send"])
}
