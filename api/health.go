package api

import "time"

// Heartbeater reports when the consumer of a ring last stamped its heartbeat.
// The zero time means never.
type Heartbeater interface {
	ConsumerHeartbeat() time.Time
}

// Readiness reports whether a shared region has been published by its creator.
type Readiness interface {
	Ready() bool
}
