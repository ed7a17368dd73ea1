// Package netx contains network helpers used by the sync client.
package netx

import (
	"context"
	"net"
	"time"
)

// Reachable reports whether a TCP connection to addr can be opened within
// timeout.
func Reachable(ctx context.Context, addr string, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
