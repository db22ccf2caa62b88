package producer_test

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"queuesupervisor/internal/producer"
	"queuesupervisor/internal/queue"
)

func newTestProducer(t *testing.T) *producer.Producer {
	t.Helper()
	mr := miniredis.RunT(t)
	host, portStr, err := net.SplitHostPort(mr.Addr())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	p := producer.New(queue.Config{Host: host, Port: port})
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestProducer_DeliverFIFO(t *testing.T) {
	p := newTestProducer(t)
	ctx := context.Background()

	ok, err := p.Deliver(ctx, "emails", false, "hello", time.Time{})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestProducer_DeliverAndRevokeDelay(t *testing.T) {
	p := newTestProducer(t)
	ctx := context.Background()

	payload := producer.NewCorrelationID()
	ok, err := p.Deliver(ctx, "reports", true, payload, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, ok)

	revoked, err := p.RevokeDelay(ctx, "reports", payload)
	require.NoError(t, err)
	assert.True(t, revoked)
}

func TestProducer_RevokeDelayOfAbsentPayloadReturnsFalse(t *testing.T) {
	p := newTestProducer(t)
	ctx := context.Background()

	revoked, err := p.RevokeDelay(ctx, "emails", "anything")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestNewCorrelationID_IsUnique(t *testing.T) {
	a := producer.NewCorrelationID()
	b := producer.NewCorrelationID()
	assert.NotEqual(t, a, b)
}
