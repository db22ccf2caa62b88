// Package worker implements the per-child consumption loop: cooperative
// exit on signal or orphaning, time/count-based recycling, and the
// crash-back-off wait a freshly (re)started worker honors.
package worker

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"queuesupervisor/internal/job"
	"queuesupervisor/internal/logwriter"
	"queuesupervisor/internal/procutil"
)

const (
	pollTick = 200 * time.Millisecond
	popTimeout = 1 * time.Second
)

// ExitOK and ExitFailure are the two observable process exit statuses.
const (
	ExitOK      = 0
	ExitFailure = 1
)

// Queue is the subset of the Queue Adapter a worker needs. Accepting an
// interface here (rather than *queue.Adapter directly) keeps the loop
// testable without a real backend.
type Queue interface {
	Pop(ctx context.Context, topic string, isDelay bool, timeout time.Duration) (payload string, ok bool, err error)
}

// Loop runs one worker's lifetime against descriptor d, consuming from
// its topic until told to stop, orphaned, or recycled. It returns the
// process exit status the caller should use.
type Loop struct {
	Descriptor *job.Descriptor
	Queue      Queue
	MasterPID  int
	Log        *logwriter.Writer

	exitRequested atomic.Bool
	startTime     time.Time
	consumeCount  int
}

// Run executes the worker lifecycle to completion.
func (l *Loop) Run(ctx context.Context) int {
	procutil.SetTitle(fmt.Sprintf("worker:%s", l.Descriptor.Topic))

	l.startTime = time.Now()
	l.consumeCount = 0

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGUSR1)
	defer signal.Stop(sigCh)
	go func() {
		for range sigCh {
			l.exitRequested.Store(true)
		}
	}()

	l.backoffWait(l.Descriptor.WorkerEnabledTime)
	if l.exitRequested.Load() {
		return ExitOK
	}

	for {
		if !l.parentAlive() {
			l.Log.Info(fmt.Sprintf("worker topic=%s pid=%d orphaned, exiting", l.Descriptor.Topic, os.Getpid()))
			return ExitOK
		}

		if l.shouldRecycle() {
			return ExitOK
		}

		payload, ok, err := l.Queue.Pop(ctx, l.Descriptor.Topic, l.Descriptor.IsDelay, popTimeout)
		if err != nil {
			l.Log.Error(fmt.Sprintf("worker topic=%s pop error: %v", l.Descriptor.Topic, err))
			time.Sleep(pollTick)
			continue
		}
		if !ok {
			continue
		}

		if err := l.Descriptor.Handle(payload); err != nil {
			l.Log.Error(fmt.Sprintf("worker topic=%s handler raised: %v", l.Descriptor.Topic, err))
			if l.Descriptor.Alarm != nil {
				safeAlarm(l.Descriptor.Alarm, l.Descriptor.Topic, err)
			}
			return ExitFailure
		}
		l.consumeCount++
	}
}

// shouldRecycle reports whether the worker should exit and not consume
// another message: explicit signal, TTL, or consume-count cap.
func (l *Loop) shouldRecycle() bool {
	if l.exitRequested.Load() {
		return true
	}
	if l.Descriptor.MaxExecuteTime > 0 && time.Since(l.startTime) > l.Descriptor.MaxExecuteTime {
		return true
	}
	if l.Descriptor.MaxConsumeCount > 0 && l.consumeCount > l.Descriptor.MaxConsumeCount {
		return true
	}
	return false
}

// parentAlive reports whether this process's parent is still the master
// that forked it — an orphan check cheaper than relying on signal
// delivery during a master crash.
func (l *Loop) parentAlive() bool {
	return os.Getppid() == l.MasterPID
}

// backoffWait blocks until deadline or exitRequested, whichever first.
// It is a loop-head wait rather than a single sleep call so a signal
// arriving mid-wait is honored promptly.
func (l *Loop) backoffWait(deadline time.Time) {
	for {
		now := time.Now()
		if !deadline.After(now) || l.exitRequested.Load() {
			return
		}
		remaining := deadline.Sub(now)
		wait := pollTick
		if remaining < wait {
			wait = remaining
		}
		time.Sleep(wait)
	}
}

func safeAlarm(hook job.AlarmHook, topic string, err error) {
	defer func() { _ = recover() }()
	hook(topic, err)
}
