// Package producer implements the producer-side API (spec.md §6): code
// that delivers or revokes messages against a topic without the
// supervisor itself running. A producer is any process enqueuing work —
// it shares nothing with the master/worker process tree.
package producer

import (
	"context"
	"time"

	"github.com/google/uuid"

	"queuesupervisor/internal/queue"
)

// Producer delivers and revokes messages against one queue backend. It
// holds its own Queue Adapter handle, independent of any Job Descriptor —
// a producer need not know a topic's worker counts or recycling policy,
// only its name and FIFO/delay kind.
type Producer struct {
	q *queue.Adapter
}

// New returns a Producer against the given backend.
func New(cfg queue.Config) *Producer {
	return &Producer{q: queue.New(cfg)}
}

// Deliver enqueues payload on topic. expectedRunTime is ignored for FIFO
// topics; for delay topics it is when the message becomes eligible (the
// zero Time means "eligible immediately").
func (p *Producer) Deliver(ctx context.Context, topic string, isDelay bool, payload string, expectedRunTime time.Time) (bool, error) {
	var eligibleAt int64
	if !expectedRunTime.IsZero() {
		eligibleAt = expectedRunTime.Unix()
	}
	return p.q.Deliver(ctx, topic, isDelay, payload, eligibleAt)
}

// RevokeDelay cancels a not-yet-eligible delay message by value,
// reporting whether it was present. It treats every topic as a delay
// topic: on a topic that holds a FIFO list the backend returns a type
// error.
func (p *Producer) RevokeDelay(ctx context.Context, topic string, payload string) (bool, error) {
	return p.q.Revoke(ctx, topic, true, payload)
}

// Close releases the producer's backend connection.
func (p *Producer) Close() error {
	return p.q.Close()
}

// NewCorrelationID returns a random identifier suitable for tagging a
// produced payload with a unique, traceable value (e.g. embedding it in
// a JSON payload body so a handler's logs can be correlated back to the
// delivering call).
func NewCorrelationID() string {
	return uuid.NewString()
}
