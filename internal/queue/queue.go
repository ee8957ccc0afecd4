// Package queue provides the durable message queue between ingestion
// and the relay consumer: at-least-once delivery, visibility-timeout
// redelivery, explicit acknowledgment.
package queue

import (
	"context"
	"fmt"

	"github.com/relayworks/threadrelay/internal/model"
)

// Queue is the narrow interface the rest of the pipeline consumes.
type Queue interface {
	// Send enqueues one envelope.
	Send(ctx context.Context, env model.Envelope) error

	// Receive fetches up to max in-flight deliveries. Fetched messages
	// stay hidden from other consumers until acknowledged or until the
	// visibility timeout elapses and they are redelivered.
	Receive(ctx context.Context, max int) ([]Delivery, error)
}

// Delivery is one dequeued envelope plus its opaque delivery token.
// Exactly one of Ack or Requeue should be called per delivery; calling
// neither leaves the message to time out and redeliver.
type Delivery interface {
	Envelope() model.Envelope

	// Ack removes the message from the queue for good.
	Ack() error

	// Requeue makes the message immediately eligible for redelivery.
	Requeue() error
}

// Error wraps a queue send/receive/delete failure.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("queue %s failed: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
