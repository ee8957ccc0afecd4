package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/relayworks/threadrelay/internal/model"
	"github.com/relayworks/threadrelay/pkg/logger"
)

const (
	// StreamName is the name of the inbound relay stream.
	StreamName = "RELAY"

	// Subject carries all inbound message envelopes.
	Subject = "relay.inbound"

	// ConsumerName is the durable consumer shared by relay workers.
	ConsumerName = "relay-worker"
)

// JetStreamQueue is the NATS JetStream-backed Queue. Work-queue
// retention plus explicit acks gives at-least-once delivery; AckWait is
// the visibility timeout after which unacknowledged messages redeliver.
type JetStreamQueue struct {
	client  *Client
	ackWait time.Duration
	logger  *logger.Logger

	consumer jetstream.Consumer
}

// NewJetStreamQueue creates the queue and ensures the stream and the
// durable consumer exist.
func NewJetStreamQueue(ctx context.Context, client *Client, ackWait time.Duration, log *logger.Logger) (*JetStreamQueue, error) {
	js := client.JetStream()

	_, err := js.Stream(ctx, StreamName)
	if err != nil {
		_, err = js.CreateStream(ctx, jetstream.StreamConfig{
			Name:        StreamName,
			Subjects:    []string{Subject},
			Retention:   jetstream.WorkQueuePolicy,
			Storage:     jetstream.FileStorage,
			Replicas:    1,
			Description: "Inbound chat message envelopes awaiting relay",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create stream: %w", err)
		}
	}

	consumer, err := js.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		Durable:       ConsumerName,
		FilterSubject: Subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       ackWait,
		MaxDeliver:    -1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	return &JetStreamQueue{
		client:   client,
		ackWait:  ackWait,
		logger:   log,
		consumer: consumer,
	}, nil
}

// Send publishes one envelope to the stream.
func (q *JetStreamQueue) Send(ctx context.Context, env model.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return &Error{Op: "send", Err: err}
	}
	if _, err := q.client.JetStream().Publish(ctx, Subject, data); err != nil {
		return &Error{Op: "send", Err: err}
	}
	return nil
}

// Receive fetches up to max envelopes. Records whose body does not
// decode are acked and dropped; they can never become processable.
func (q *JetStreamQueue) Receive(ctx context.Context, max int) ([]Delivery, error) {
	if max <= 0 {
		max = 1
	}

	batch, err := q.consumer.Fetch(max, jetstream.FetchMaxWait(2*time.Second))
	if err != nil {
		return nil, &Error{Op: "receive", Err: err}
	}

	deliveries := make([]Delivery, 0, max)
	for msg := range batch.Messages() {
		var env model.Envelope
		if err := json.Unmarshal(msg.Data(), &env); err != nil {
			q.logger.Error("discarding undecodable queue record", zap.Error(err))
			_ = msg.Ack()
			continue
		}
		deliveries = append(deliveries, &jsDelivery{env: env, msg: msg})
	}
	if err := batch.Error(); err != nil && err != context.DeadlineExceeded {
		return deliveries, &Error{Op: "receive", Err: err}
	}
	return deliveries, nil
}

type jsDelivery struct {
	env model.Envelope
	msg jetstream.Msg
}

func (d *jsDelivery) Envelope() model.Envelope { return d.env }

func (d *jsDelivery) Ack() error {
	if err := d.msg.Ack(); err != nil {
		return &Error{Op: "ack", Err: err}
	}
	return nil
}

func (d *jsDelivery) Requeue() error {
	if err := d.msg.Nak(); err != nil {
		return &Error{Op: "requeue", Err: err}
	}
	return nil
}
