//go:build unix && !(linux || freebsd || netbsd || openbsd || dragonfly)

package listener

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// stream creates an IPv4 stream socket and marks it close-on-exec while
// holding syscall.ForkLock, so no child started by os/exec inherits it.
func stream() (int, error) {
	syscall.ForkLock.RLock()
	defer syscall.ForkLock.RUnlock()

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return -1, err
	}
	unix.CloseOnExec(fd)
	return fd, nil
}
