// Package api defines the public contracts of shmring.
package api

import (
	"context"

	"github.com/srediag/shmring/pkg/ringbuf"
)

// Transport moves typed messages between two processes.
type Transport interface {
	// Send blocks until the message is written or ctx ends.
	Send(ctx context.Context, typeID int32, payload []byte) error
	// Receive blocks until exactly one message was handed to handler or ctx ends.
	Receive(ctx context.Context, handler ringbuf.Handler) error
	// TrySend returns false when there is no room right now.
	TrySend(typeID int32, payload []byte) (bool, error)
	// TryReceive returns false when there is nothing to read right now.
	TryReceive(handler ringbuf.Handler) (bool, error)
}
