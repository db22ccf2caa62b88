// Package pidfile implements the PID-file liveness registry: the single
// source of truth for "is a master running", and the cooperative channel
// through which an external stop reaches a running master.
package pidfile

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"queuesupervisor/internal/procutil"
)

// Registry reads and writes the decimal PID stored at Path.
type Registry struct {
	Path string
}

// New returns a Registry rooted at path.
func New(path string) *Registry {
	return &Registry{Path: path}
}

// ReadLiveMaster returns the PID on file if it parses and is still alive,
// 0 otherwise. Any I/O or parse failure is treated as "no master" — this
// registry is a liveness cache, not a source of hard errors.
func (r *Registry) ReadLiveMaster() int {
	raw, err := os.ReadFile(r.Path)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil || pid <= 0 {
		return 0
	}
	if !procutil.IsAlive(pid) {
		return 0
	}
	return pid
}

// WriteMaster atomically writes pid to the registry, creating parent
// directories as needed. Writing 0 is the cooperative stop directive: a
// running master that notices the file no longer holds its own PID
// begins draining.
func (r *Registry) WriteMaster(pid int) error {
	if err := os.MkdirAll(filepath.Dir(r.Path), 0o777); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(r.Path), ".master.pid.*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.WriteString(strconv.Itoa(pid)); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	return os.Rename(tmpPath, r.Path)
}
