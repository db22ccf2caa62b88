package supervisor

import (
	"time"

	"queuesupervisor/internal/pidfile"
	"queuesupervisor/internal/procutil"
)

const (
	stopPollEvery = 500 * time.Millisecond
	stopTimeout   = 30 * time.Second
)

// Stop resolves the live master (if any) and writes the cooperative stop
// directive, then polls for the master's exit. It reports running=false
// when there was nothing to stop (idempotent success), and exited=false
// if the master failed to exit within the timeout.
func Stop(reg *pidfile.Registry) (running bool, exited bool, err error) {
	pid := reg.ReadLiveMaster()
	if pid == 0 {
		return false, true, nil
	}

	if err := reg.WriteMaster(0); err != nil {
		return true, false, err
	}

	deadline := time.Now().Add(stopTimeout)
	for time.Now().Before(deadline) {
		if !procutil.IsAlive(pid) {
			return true, true, nil
		}
		time.Sleep(stopPollEvery)
	}
	return true, !procutil.IsAlive(pid), nil
}
