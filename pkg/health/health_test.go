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

package health

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/srediag/shmring/pkg/ringbuf"
)

type fakeRegion struct {
	ready atomic.Bool
}

func (f *fakeRegion) Ready() bool { return f.ready.Load() }

type fakeHeartbeat struct {
	at atomic.Int64
}

func (f *fakeHeartbeat) ConsumerHeartbeat() time.Time {
	if ms := f.at.Load(); ms != 0 {
		return time.UnixMilli(ms)
	}
	return time.Time{}
}

type HealthTestSuite struct {
	suite.Suite
	checker *Checker
	region  *fakeRegion
	beat    *fakeHeartbeat
	clock   time.Time
}

func (s *HealthTestSuite) SetupTest() {
	s.clock = time.UnixMilli(1_700_000_000_000)
	s.region = &fakeRegion{}
	s.beat = &fakeHeartbeat{}
	s.checker = New(nil, "")
	s.checker.now = func() time.Time { return s.clock }
	s.checker.AddRegion("region", s.region)
	s.checker.AddHeartbeat("inbound-consumer", s.beat, time.Second)
}

func (s *HealthTestSuite) get(path string) *httptest.ResponseRecorder {
	rw := httptest.NewRecorder()
	s.checker.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, path, nil))
	return rw
}

func (s *HealthTestSuite) TestReadiness() {
	rw := s.get("/ready?full=1")
	s.Equal(http.StatusServiceUnavailable, rw.Code)
	s.Contains(rw.Body.String(), ErrNotReady.Error())

	s.region.ready.Store(true)
	s.Equal(http.StatusOK, s.get("/ready").Code)
}

func (s *HealthTestSuite) TestLiveness() {
	s.Equal(http.StatusOK, s.get("/live").Code, "a heartbeat never stamped is fresh for maxAge")

	s.clock = s.clock.Add(2 * time.Second)
	rw := s.get("/live?full=1")
	s.Equal(http.StatusServiceUnavailable, rw.Code)
	s.Contains(rw.Body.String(), "stale consumer heartbeat")

	s.beat.at.Store(s.clock.Add(-500 * time.Millisecond).UnixMilli())
	s.Equal(http.StatusOK, s.get("/live").Code)

	// readiness includes liveness
	s.region.ready.Store(true)
	s.clock = s.clock.Add(time.Minute)
	s.Equal(http.StatusServiceUnavailable, s.get("/ready").Code)
}

func (s *HealthTestSuite) TestEndpoints() {
	s.region.ready.Store(true)
	rw := httptest.NewRecorder()
	s.checker.LiveEndpoint(rw, httptest.NewRequest(http.MethodGet, "/anything", nil))
	s.Equal(http.StatusOK, rw.Code)
	rw = httptest.NewRecorder()
	s.checker.ReadyEndpoint(rw, httptest.NewRequest(http.MethodGet, "/anything", nil))
	s.Equal(http.StatusOK, rw.Code)
}

func TestHealthTestSuite(t *testing.T) {
	suite.Run(t, new(HealthTestSuite))
}

func TestHeartbeatCheckWithRing(t *testing.T) {
	buf := make([]byte, ringbuf.BufferLength(1024))
	p, err := ringbuf.NewProducer(buf)
	require.NoError(t, err)
	c, err := ringbuf.NewConsumer(buf)
	require.NoError(t, err)

	now := time.Now()
	check := HeartbeatCheck(p, time.Second, func() time.Time { return now })
	assert.NoError(t, check())
	now = now.Add(5 * time.Second)
	assert.ErrorIs(t, check(), ErrStaleHeartbeat)
	c.SetHeartbeat(now)
	assert.NoError(t, check())
}

func TestMetricsHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	checker := New(reg, "shmring")
	r := &fakeRegion{}
	checker.AddRegion("region", r)
	checker.AddGoroutineLimit(1 << 20)

	families, err := reg.Gather()
	require.NoError(t, err)
	status := map[string]float64{}
	for _, mf := range families {
		if !strings.HasSuffix(mf.GetName(), "healthcheck_status") {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "check" {
					status[l.GetValue()] = m.GetGauge().GetValue()
				}
			}
		}
	}
	assert.Equal(t, 1.0, status["region"])
	assert.Equal(t, 0.0, status["goroutine-threshold"])
}
