// Package queue implements the Queue Adapter: FIFO and delay semantics
// over a Redis-shaped backend, with a lazy per-process connection and a
// single reconnect-and-retry on backend failure.
package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
)

// Config holds the connection parameters for one backend.
type Config struct {
	Host     string
	Port     int
	DB       int
	Password string
}

func (c Config) addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

const connectTimeout = 3 * time.Second

// Adapter is the live connection to one backend, lazily established on
// first use. It must never be shared across a fork: each process (master
// or worker) constructs its own.
type Adapter struct {
	cfg Config

	mu     sync.Mutex
	client *redis.Client
}

// New returns an Adapter that connects lazily.
func New(cfg Config) *Adapter {
	return &Adapter{cfg: cfg}
}

// Close releases the underlying connection, if any.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.client == nil {
		return nil
	}
	err := a.client.Close()
	a.client = nil
	return err
}

// Deliver pushes payload onto topic. For FIFO topics it is a left-push
// (so the consumer's right-pop sees FIFO order); eligibleAt is ignored.
// For delay topics payload is added to the sorted set with eligibleAt
// (Unix seconds) as its score.
func (a *Adapter) Deliver(ctx context.Context, topic string, isDelay bool, payload string, eligibleAt int64) (bool, error) {
	return exec(a, ctx, func(c *redis.Client) (bool, error) {
		if isDelay {
			return true, c.ZAdd(ctx, topic, redis.Z{Score: float64(eligibleAt), Member: payload}).Err()
		}
		return true, c.LPush(ctx, topic, payload).Err()
	})
}

// Revoke removes payload from a delay topic by value. It is a no-op for
// FIFO topics, per spec.
func (a *Adapter) Revoke(ctx context.Context, topic string, isDelay bool, payload string) (bool, error) {
	if !isDelay {
		return false, nil
	}
	return exec(a, ctx, func(c *redis.Client) (bool, error) {
		n, err := c.ZRem(ctx, topic, payload).Result()
		if err != nil {
			return false, err
		}
		return n > 0, nil
	})
}

// Pop returns one eligible payload, or ok=false if none is available
// within timeout. FIFO uses a blocking right-pop. Delay queries the
// sorted set for the single lowest-scoring member eligible now and
// claims it by deleting it; the delete's return value is the race-free
// tie-break, so at most one concurrent caller wins a given payload. If
// no delay candidate exists, Pop sleeps timeout and returns ok=false,
// mirroring the source's unconditional usleep on the empty branch.
func (a *Adapter) Pop(ctx context.Context, topic string, isDelay bool, timeout time.Duration) (payload string, ok bool, err error) {
	if !isDelay {
		res, execErr := exec(a, ctx, func(c *redis.Client) (*[]string, error) {
			vals, perr := c.BRPop(ctx, timeout, topic).Result()
			if perr == redis.Nil {
				return nil, nil
			}
			if perr != nil {
				return nil, perr
			}
			return &vals, nil
		})
		if execErr != nil {
			return "", false, execErr
		}
		if res == nil {
			return "", false, nil
		}
		// BRPop returns [key, value].
		return (*res)[1], true, nil
	}

	now := time.Now().Unix()
	candidate, execErr := exec(a, ctx, func(c *redis.Client) (*string, error) {
		members, zerr := c.ZRangeByScore(ctx, topic, &redis.ZRangeBy{
			Min:   "0",
			Max:   strconv.FormatInt(now, 10),
			Count: 1,
		}).Result()
		if zerr != nil {
			return nil, zerr
		}
		if len(members) == 0 {
			return nil, nil
		}
		return &members[0], nil
	})
	if execErr != nil {
		return "", false, execErr
	}
	if candidate == nil {
		sleepInterruptible(ctx, timeout)
		return "", false, nil
	}

	claimed, execErr := a.Revoke(ctx, topic, true, *candidate)
	if execErr != nil {
		return "", false, execErr
	}
	if !claimed {
		// Another worker won the race; behave as if nothing was found.
		return "", false, nil
	}
	return *candidate, true, nil
}

// Size returns the current backlog. FIFO: list length. Delay: count of
// members eligible now — future-dated messages do not count, since
// autoscaling only cares about work that can actually be dispatched.
func (a *Adapter) Size(ctx context.Context, topic string, isDelay bool) (int64, error) {
	return exec(a, ctx, func(c *redis.Client) (int64, error) {
		if isDelay {
			now := time.Now().Unix()
			return c.ZCount(ctx, topic, "0", strconv.FormatInt(now, 10)).Result()
		}
		return c.LLen(ctx, topic).Result()
	})
}

func sleepInterruptible(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// exec runs fn against a connected client, lazily connecting on first
// use. On a connection-shaped error it reconnects and retries fn once
// more (WithMaxRetries(b, 0) lets backoff.Retry run that reconnect-and-
// retry exactly once); a further failure is a hard error.
func exec[T any](a *Adapter, ctx context.Context, fn func(*redis.Client) (T, error)) (T, error) {
	var zero T

	c, err := a.connected(ctx)
	if err != nil {
		return zero, err
	}

	result, err := fn(c)
	if err == nil || !isConnErr(err) {
		return result, err
	}

	var retried T
	retryErr := backoff.Retry(func() error {
		c, rerr := a.reconnect(ctx)
		if rerr != nil {
			return rerr
		}
		retried, rerr = fn(c)
		if rerr != nil && isConnErr(rerr) {
			return rerr
		}
		return backoff.Permanent(rerr)
	}, backoff.WithMaxRetries(backoff.NewConstantBackOff(0), 0))

	if retryErr != nil {
		if perr, ok := retryErr.(*backoff.PermanentError); ok {
			return retried, perr.Unwrap()
		}
		return zero, fmt.Errorf("queue backend unreachable after reconnect: %w", retryErr)
	}
	return retried, nil
}

func (a *Adapter) connected(ctx context.Context) (*redis.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.client != nil {
		return a.client, nil
	}
	return a.dial(ctx)
}

func (a *Adapter) reconnect(ctx context.Context) (*redis.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.client != nil {
		_ = a.client.Close()
		a.client = nil
	}
	return a.dial(ctx)
}

// dial must be called with a.mu held.
func (a *Adapter) dial(ctx context.Context) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        a.cfg.addr(),
		Password:    a.cfg.Password,
		DB:          a.cfg.DB,
		DialTimeout: connectTimeout,
	})
	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to queue backend %s: %w", a.cfg.addr(), err)
	}
	a.client = client
	return client, nil
}

func isConnErr(err error) bool {
	if err == nil || errors.Is(err, redis.Nil) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}
