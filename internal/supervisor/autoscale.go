package supervisor

import (
	"context"
	"fmt"
	"time"

	"queuesupervisor/internal/job"
)

const sizeQueryTimeout = 2 * time.Second

// autoscale fires dynamic_worker_count additional workers for any
// descriptor whose backlog exceeds its health threshold, per spec.md
// §4.F.1. Dynamic workers are never respawned on exit — see reapOnce.
func (s *Supervisor) autoscale() {
	for _, d := range s.Registry.All() {
		if !s.shouldScale(d) {
			continue
		}
		for i := 0; i < d.DynamicWorkerCount; i++ {
			if err := s.spawnWorker(d, true); err != nil {
				s.Log.Error(fmt.Sprintf("autoscale spawn failed topic=%s: %v", d.Topic, err))
			}
		}
		s.Log.Info(fmt.Sprintf("autoscale fired topic=%s count=%d", d.Topic, d.DynamicWorkerCount))
	}
}

func (s *Supervisor) shouldScale(d *job.Descriptor) bool {
	if d.HealthQueueLength <= 0 || d.DynamicWorkerCount <= 0 {
		return false
	}
	if d.LiveWorkerCount() > d.StaticWorkerCount {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), sizeQueryTimeout)
	defer cancel()
	size, err := d.Queue().Size(ctx, d.Topic, d.IsDelay)
	if err != nil {
		s.Log.Error(fmt.Sprintf("autoscale size query failed topic=%s: %v", d.Topic, err))
		return false
	}
	return size > int64(d.HealthQueueLength)
}
