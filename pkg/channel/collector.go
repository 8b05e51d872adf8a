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
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	capacityDesc = prometheus.NewDesc("shmring_ring_capacity_bytes",
		"Data capacity of the ring.", []string{"channel", "direction"}, nil)
	usedDesc = prometheus.NewDesc("shmring_ring_used_bytes",
		"Bytes of unread records in the ring, padding included.", []string{"channel", "direction"}, nil)
	heartbeatDesc = prometheus.NewDesc("shmring_ring_consumer_heartbeat_seconds",
		"Unix time of the last consumer heartbeat on the ring, 0 if none.", []string{"channel", "direction"}, nil)
)

// Collector exports the state of both rings of a channel. It only loads the
// ring cursors, so it may be scraped from any goroutine.
type Collector struct {
	ch *Channel
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector returns a collector for ch.
func NewCollector(ch *Channel) *Collector {
	return &Collector{ch: ch}
}

func (c *Collector) Describe(descs chan<- *prometheus.Desc) {
	descs <- capacityDesc
	descs <- usedDesc
	descs <- heartbeatDesc
}

type ringStats interface {
	Capacity() int
	Size() int
	ConsumerHeartbeat() time.Time
}

func (c *Collector) Collect(metrics chan<- prometheus.Metric) {
	c.collect(metrics, "send", c.ch.producer)
	c.collect(metrics, "receive", c.ch.consumer)
}

func (c *Collector) collect(metrics chan<- prometheus.Metric, direction string, r ringStats) {
	heartbeat := 0.0
	if t := r.ConsumerHeartbeat(); !t.IsZero() {
		heartbeat = float64(t.UnixMilli()) / 1e3
	}
	name := c.ch.name
	metrics <- prometheus.MustNewConstMetric(capacityDesc, prometheus.GaugeValue, float64(r.Capacity()), name, direction)
	metrics <- prometheus.MustNewConstMetric(usedDesc, prometheus.GaugeValue, float64(r.Size()), name, direction)
	metrics <- prometheus.MustNewConstMetric(heartbeatDesc, prometheus.GaugeValue, heartbeat, name, direction)
}
