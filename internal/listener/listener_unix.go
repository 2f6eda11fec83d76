//go:build unix

package listener

import (
	"fmt"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

func listen(cfg Config) (net.Listener, error) {
	addr, err := cfg.ipv4()
	if err != nil {
		return nil, err
	}

	fd, err := stream()
	if err != nil {
		return nil, fmt.Errorf("listener: create stream socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("listener: set SO_REUSEADDR: %w", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrInet4{Port: cfg.Port, Addr: addr}); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("listener: bind %s: %w", cfg.Addr(), err)
	}
	if err := unix.Listen(fd, cfg.backlog()); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("listener: listen on %s: %w", cfg.Addr(), err)
	}

	// net.FileListener dups the descriptor; the original is closed with f.
	f := os.NewFile(uintptr(fd), "cosched-listener")
	defer f.Close()
	ln, err := net.FileListener(f)
	if err != nil {
		return nil, fmt.Errorf("listener: wrap socket: %w", err)
	}
	return ln, nil
}
