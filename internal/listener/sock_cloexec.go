//go:build linux || freebsd || netbsd || openbsd || dragonfly

package listener

import "golang.org/x/sys/unix"

// stream creates an IPv4 stream socket that is close-on-exec from birth.
func stream() (int, error) {
	return unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
}
