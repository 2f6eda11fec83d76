//go:build !unix

package listener

import (
	"context"
	"net"
)

// listen falls back to the runtime's listener; the backlog is left to the OS.
func listen(cfg Config) (net.Listener, error) {
	if _, err := cfg.ipv4(); err != nil {
		return nil, err
	}
	var lc net.ListenConfig
	return lc.Listen(context.Background(), "tcp4", cfg.Addr())
}
