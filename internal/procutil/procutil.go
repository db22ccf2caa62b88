// Package procutil wraps the OS process-liveness probe used by the PID
// registry, and the process-title helper used by both the master and
// worker. The worker's own orphan check is a direct os.Getppid()
// comparison and does not go through this package.
package procutil

import (
	"github.com/shirou/gopsutil/v4/process"
)

// IsAlive reports whether a process with the given PID currently exists.
// It is the Go-level equivalent of the signal-0 liveness probe: it never
// delivers a real signal, it only checks that the OS still schedules pid.
func IsAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return false
	}
	running, err := p.IsRunning()
	if err != nil {
		return false
	}
	return running
}
