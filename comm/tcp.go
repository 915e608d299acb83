package comm

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// PollInterval is the minimum time between two connection attempts of WaitForTCPServer
var PollInterval = time.Second

// ConnectSock makes a single attempt to connect to host:port and returns true
// if the remote accepted the connection.  The connection is closed immediately.
func ConnectSock(host string, port int, timeout time.Duration) bool {
	conn, err := TCPSetup(net.JoinHostPort(host, strconv.Itoa(port)), timeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// WaitForTCPServer polls host:port until it accepts a connection, the context is
// cancelled, or timeout elapses.
func WaitForTCPServer(ctx context.Context, host string, port int, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	lim := rate.NewLimiter(rate.Every(PollInterval), 1)
	for {
		if err := lim.Wait(ctx); err != nil {
			return fmt.Errorf("tcp server %s:%d is not running", host, port)
		}
		attempt := PollInterval
		if dl, ok := ctx.Deadline(); ok {
			if left := time.Until(dl); left < attempt {
				attempt = left
			}
		}
		if attempt <= 0 {
			return fmt.Errorf("tcp server %s:%d is not running", host, port)
		}
		if ConnectSock(host, port, attempt) {
			return nil
		}
	}
}
