package server

import (
	"fmt"
	"net"
	"strconv"

	"github.com/nerrad567/gray-logic-devserver/internal/infrastructure/config"
)

// bindAttempts returns how many successive ports to try. Only the default
// port is retried.
func bindAttempts(port, retries int) int {
	if port == config.DefaultPort && retries > 0 {
		return retries + 1
	}
	return 1
}

// listen binds host:port, then host:port+1 and so on, up to attempts ports.
//
// Returns:
//   - net.Listener: The bound listener
//   - int: The port actually bound
//   - error: ErrBindExhausted wrapping the last bind error
func listen(host string, port, attempts int, logger Logger) (net.Listener, int, error) {
	var lastErr error
	for i := range attempts {
		p := port + i
		l, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(p)))
		if err == nil {
			if addr, ok := l.Addr().(*net.TCPAddr); ok {
				p = addr.Port
			}
			return l, p, nil
		}
		lastErr = err
		logger.Warn("bind failed", "host", host, "port", p, "error", err)
	}
	return nil, 0, fmt.Errorf("%w: %d attempt(s) from port %d: %w", ErrBindExhausted, attempts, port, lastErr)
}
