package supervisor

import (
	"net"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"queuesupervisor/internal/job"
	"queuesupervisor/internal/logwriter"
	"queuesupervisor/internal/queue"
)

func newBackedDescriptor(t *testing.T, cfg job.Config) (*job.Descriptor, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	host, portStr, err := net.SplitHostPort(mr.Addr())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	cfg.QueueConfig = queue.Config{Host: host, Port: port}
	d := job.New(cfg)
	require.NotNil(t, d)
	return d, mr
}

func TestShouldScale_FiresOnUnhealthyBacklog(t *testing.T) {
	d, mr := newBackedDescriptor(t, job.Config{
		Topic:              "emails",
		StaticWorkerCount:  1,
		DynamicWorkerCount: 2,
		HealthQueueLength:  5,
		Handle:             func(string) error { return nil },
	})
	for i := 0; i < 10; i++ {
		mr.Lpush("emails", "x")
	}

	s := &Supervisor{Log: logwriter.New(t.TempDir() + "/process.log")}
	assert.True(t, s.shouldScale(d))
}

func TestShouldScale_DisabledWhenHealthQueueLengthZero(t *testing.T) {
	d, mr := newBackedDescriptor(t, job.Config{
		Topic:              "emails",
		StaticWorkerCount:  1,
		DynamicWorkerCount: 2,
		HealthQueueLength:  0,
		Handle:             func(string) error { return nil },
	})
	mr.Lpush("emails", "x")

	s := &Supervisor{Log: logwriter.New(t.TempDir() + "/process.log")}
	assert.False(t, s.shouldScale(d))
}

func TestShouldScale_GatedByLiveWorkerCount(t *testing.T) {
	d, mr := newBackedDescriptor(t, job.Config{
		Topic:              "emails",
		StaticWorkerCount:  1,
		DynamicWorkerCount: 2,
		HealthQueueLength:  5,
		Handle:             func(string) error { return nil },
	})
	for i := 0; i < 10; i++ {
		mr.Lpush("emails", "x")
	}
	d.Workers[111] = job.WorkerInfo{IsDynamic: true}
	d.Workers[112] = job.WorkerInfo{IsDynamic: true}

	s := &Supervisor{Log: logwriter.New(t.TempDir() + "/process.log")}
	assert.False(t, s.shouldScale(d), "already above static count, a burst is in flight")
}

func TestShouldScale_FalseBelowHealthThreshold(t *testing.T) {
	d, mr := newBackedDescriptor(t, job.Config{
		Topic:              "emails",
		StaticWorkerCount:  1,
		DynamicWorkerCount: 2,
		HealthQueueLength:  50,
		Handle:             func(string) error { return nil },
	})
	mr.Lpush("emails", "x")

	s := &Supervisor{Log: logwriter.New(t.TempDir() + "/process.log")}
	assert.False(t, s.shouldScale(d))
}
