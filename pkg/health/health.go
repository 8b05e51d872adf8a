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

// Package health serves liveness and readiness endpoints for a process that
// owns one side of a channel.
package health

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/srediag/shmring/api"
)

var (
	// ErrNotReady is reported by a readiness check on an unpublished region.
	ErrNotReady = errors.New("health: region not ready")
	// ErrStaleHeartbeat is reported by a liveness check on a consumer that has
	// not polled recently.
	ErrStaleHeartbeat = errors.New("health: stale consumer heartbeat")
)

// Checker collects checks and serves them on /live and /ready.
type Checker struct {
	handler healthcheck.Handler
	now     func() time.Time
}

// New returns a Checker. When reg is not nil every check result is also
// exported as a gauge under namespace.
func New(reg prometheus.Registerer, namespace string) *Checker {
	c := &Checker{now: time.Now}
	if reg != nil {
		c.handler = healthcheck.NewMetricsHandler(reg, namespace)
	} else {
		c.handler = healthcheck.NewHandler()
	}
	return c
}

// AddRegion fails readiness until r reports ready.
func (c *Checker) AddRegion(name string, r api.Readiness) {
	c.handler.AddReadinessCheck(name, RegionCheck(r))
}

// AddHeartbeat fails liveness once the heartbeat of src is older than maxAge.
// A heartbeat that was never stamped counts as fresh until maxAge has passed
// since the check was added.
func (c *Checker) AddHeartbeat(name string, src api.Heartbeater, maxAge time.Duration) {
	c.handler.AddLivenessCheck(name, HeartbeatCheck(src, maxAge, c.now))
}

// AddGoroutineLimit fails liveness when more than n goroutines run.
func (c *Checker) AddGoroutineLimit(n int) {
	c.handler.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(n))
}

// ServeHTTP serves /live and /ready.
func (c *Checker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.handler.ServeHTTP(w, r)
}

// LiveEndpoint serves the liveness checks only.
func (c *Checker) LiveEndpoint(w http.ResponseWriter, r *http.Request) {
	c.handler.LiveEndpoint(w, r)
}

// ReadyEndpoint serves all checks.
func (c *Checker) ReadyEndpoint(w http.ResponseWriter, r *http.Request) {
	c.handler.ReadyEndpoint(w, r)
}

// RegionCheck fails while r is not ready.
func RegionCheck(r api.Readiness) healthcheck.Check {
	return func() error {
		if !r.Ready() {
			return ErrNotReady
		}
		return nil
	}
}

// HeartbeatCheck fails when the heartbeat of src is older than maxAge.
func HeartbeatCheck(src api.Heartbeater, maxAge time.Duration, now func() time.Time) healthcheck.Check {
	added := now()
	return func() error {
		last := src.ConsumerHeartbeat()
		if last.IsZero() {
			last = added
		}
		if age := now().Sub(last); age > maxAge {
			return fmt.Errorf("%w: last seen %s ago", ErrStaleHeartbeat, age.Truncate(time.Millisecond))
		}
		return nil
	}
}
