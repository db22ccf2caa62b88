package queue_test

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"queuesupervisor/internal/queue"
)

func newTestAdapter(t *testing.T) (*queue.Adapter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	host, portStr, err := net.SplitHostPort(mr.Addr())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	a := queue.New(queue.Config{Host: host, Port: port})
	t.Cleanup(func() { _ = a.Close() })
	return a, mr
}

func TestFIFO_DeliverThenPop_PreservesOrder(t *testing.T) {
	a, _ := newTestAdapter(t)
	ctx := context.Background()

	for _, payload := range []string{"a", "b", "c"} {
		ok, err := a.Deliver(ctx, "emails", false, payload, 0)
		require.NoError(t, err)
		require.True(t, ok)
	}

	for _, want := range []string{"a", "b", "c"} {
		got, ok, err := a.Pop(ctx, "emails", false, time.Second)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, want, got)
	}

	_, ok, err := a.Pop(ctx, "emails", false, 50*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFIFO_Size(t *testing.T) {
	a, _ := newTestAdapter(t)
	ctx := context.Background()

	_, _ = a.Deliver(ctx, "jobs", false, "x", 0)
	_, _ = a.Deliver(ctx, "jobs", false, "y", 0)

	n, err := a.Size(ctx, "jobs", false)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestDelay_PopOnlyReturnsEligibleMessages(t *testing.T) {
	a, _ := newTestAdapter(t)
	ctx := context.Background()

	now := time.Now()
	_, err := a.Deliver(ctx, "sched", true, "future", now.Add(3*time.Second).Unix())
	require.NoError(t, err)

	n, err := a.Size(ctx, "sched", true)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n, "future message should not count toward backlog")

	_, ok, err := a.Pop(ctx, "sched", true, 10*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDelay_PopReturnsEligibleMessageExactlyOnce(t *testing.T) {
	a, _ := newTestAdapter(t)
	ctx := context.Background()

	past := time.Now().Add(-1 * time.Second).Unix()
	_, err := a.Deliver(ctx, "sched", true, "ready", past)
	require.NoError(t, err)

	payload, ok, err := a.Pop(ctx, "sched", true, time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "ready", payload)

	_, ok, err = a.Pop(ctx, "sched", true, 10*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok, "message must be claimed at most once")
}

func TestDelay_RevokeRemovesPendingMessage(t *testing.T) {
	a, _ := newTestAdapter(t)
	ctx := context.Background()

	future := time.Now().Add(time.Hour).Unix()
	_, err := a.Deliver(ctx, "sched", true, "cancel-me", future)
	require.NoError(t, err)

	revoked, err := a.Revoke(ctx, "sched", true, "cancel-me")
	require.NoError(t, err)
	assert.True(t, revoked)

	revokedAgain, err := a.Revoke(ctx, "sched", true, "cancel-me")
	require.NoError(t, err)
	assert.False(t, revokedAgain)
}

func TestFIFO_RevokeIsNoOp(t *testing.T) {
	a, _ := newTestAdapter(t)
	ctx := context.Background()

	ok, err := a.Revoke(ctx, "emails", false, "anything")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExec_HardErrorAfterReconnectRetryFails(t *testing.T) {
	mr := miniredis.RunT(t)
	host, portStr, err := net.SplitHostPort(mr.Addr())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	a := queue.New(queue.Config{Host: host, Port: port})
	ctx := context.Background()

	// Establish the initial connection while the backend is still up.
	_, err = a.Size(ctx, "warmup", false)
	require.NoError(t, err)

	// Kill the backend so the live connection breaks and every subsequent
	// reconnect dial also fails: two consecutive dial failures in a row.
	mr.Close()

	_, err = a.Size(ctx, "warmup", false)
	require.Error(t, err, "a persistently unreachable backend must raise a hard error, not hang or retry forever")
}
