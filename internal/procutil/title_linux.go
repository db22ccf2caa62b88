//go:build linux

package procutil

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// SetTitle gives the calling process an OS-visible short name so tools
// like ps/top can tell a master apart from its workers. Linux truncates
// PR_SET_NAME to 15 bytes; callers should keep names short.
func SetTitle(name string) {
	if len(name) > 15 {
		name = name[:15]
	}
	buf := append([]byte(name), 0)
	_ = unix.Prctl(unix.PR_SET_NAME, uintptr(unsafe.Pointer(&buf[0])), 0, 0, 0)
}
