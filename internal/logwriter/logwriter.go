// Package logwriter implements the supervisor's append-only line log: one
// record per line, size-triggered rotation across a fixed window of
// siblings, and file-lock serialization across concurrent writers (the
// master and every worker process share one log file by path).
package logwriter

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// Level is the severity tag written into each log line.
type Level string

const (
	// LevelInfo marks a routine event.
	LevelInfo Level = "INFO"
	// LevelError marks an operational failure.
	LevelError Level = "ERROR"

	maxActiveSize = 10 * 1024 * 1024 // 10 MiB
	rotationDepth = 5
)

// Writer appends lines to a single log file and rotates it once it grows
// past maxActiveSize. It is safe to construct one Writer per process
// pointed at the same path; rotation and append are both serialized with
// advisory file locks so multiple processes never interleave a line or
// double-rotate.
type Writer struct {
	path string
	pid  int

	mu sync.Mutex // serializes this process's own writers only
}

// New returns a Writer appending to path. Parent directories are created
// on first use, not here — a Writer with no writes yet touches nothing.
func New(path string) *Writer {
	return &Writer{path: path, pid: os.Getpid()}
}

// Info appends an INFO line. parts are joined with a single space.
func (w *Writer) Info(parts ...any) {
	w.write(LevelInfo, parts...)
}

// Error appends an ERROR line. parts are joined with a single space.
func (w *Writer) Error(parts ...any) {
	w.write(LevelError, parts...)
}

// write never returns an error: per spec, logging must never crash a
// caller. Any I/O failure along the way is silently dropped.
func (w *Writer) write(level Level, parts ...any) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return
	}

	w.maybeRotate()

	line := formatLine(level, w.pid, parts...)

	lock := flock.New(w.path)
	if err := lock.Lock(); err != nil {
		return
	}
	defer lock.Unlock()

	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return
	}
	defer f.Close()

	_, _ = f.WriteString(line)
}

// maybeRotate rotates the active file if it has grown past the size
// threshold. Rotation is attempted under a non-blocking lock; if another
// process already holds it, rotation is skipped for this call and the
// caller proceeds straight to append.
func (w *Writer) maybeRotate() {
	info, err := os.Stat(w.path)
	if err != nil || info.Size() <= maxActiveSize {
		return
	}

	lock := flock.New(w.path)
	locked, err := lock.TryLock()
	if err != nil || !locked {
		return
	}
	defer lock.Unlock()

	// Re-check under the lock: another process may have rotated already.
	info, err = os.Stat(w.path)
	if err != nil || info.Size() <= maxActiveSize {
		return
	}

	for i := rotationDepth - 1; i >= 1; i-- {
		src := fmt.Sprintf("%s.%d", w.path, i)
		dst := fmt.Sprintf("%s.%d", w.path, i+1)
		if _, err := os.Stat(src); err == nil {
			_ = os.Rename(src, dst)
		}
	}
	_ = os.Rename(w.path, w.path+".1")
}

func formatLine(level Level, pid int, parts ...any) string {
	text := strings.TrimSuffix(fmt.Sprintln(parts...), "\n")
	text = strings.ReplaceAll(text, "\n", " ")
	now := time.Now()
	return fmt.Sprintf("[%s.%04d][%s][pid=%d]%s\n",
		now.Format("2006-01-02 15:04:05"), now.Nanosecond()/1e5, level, pid, text)
}
