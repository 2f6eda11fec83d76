// Package listener creates the single listening socket shared by every
// connection handler. Handlers call Accept on it concurrently.
package listener

import (
	"fmt"
	"net"
	"strconv"
)

const (
	// DefaultPort is the TCP port the server listens on.
	DefaultPort = 1024

	// DefaultBacklog is the pending-connection queue length passed to listen(2).
	DefaultBacklog = 10
)

// Config describes the listening socket.
type Config struct {
	// Host is an IPv4 address; empty means all interfaces.
	Host    string
	Port    int
	Backlog int
}

// Addr returns host:port for the config.
func (c Config) Addr() string {
	host := c.Host
	if host == "" {
		host = "0.0.0.0"
	}
	return net.JoinHostPort(host, strconv.Itoa(c.Port))
}

func (c Config) backlog() int {
	if c.Backlog <= 0 {
		return DefaultBacklog
	}
	return c.Backlog
}

func (c Config) ipv4() ([4]byte, error) {
	var out [4]byte
	if c.Host == "" {
		return out, nil
	}
	ip := net.ParseIP(c.Host).To4()
	if ip == nil {
		return out, fmt.Errorf("listener: %q is not an IPv4 address", c.Host)
	}
	copy(out[:], ip)
	return out, nil
}

// Listen binds and listens according to cfg. Errors name the failing step
// (socket, setsockopt, bind, listen) and are never retried.
func Listen(cfg Config) (net.Listener, error) {
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("listener: invalid port %d", cfg.Port)
	}
	return listen(cfg)
}
