package tustest

import (
	"fmt"
	"net"
	"net/http"
)

// ResetConnection aborts the connection behind w with a TCP RST, the way a dropped connection looks to a client.
// The request body must be consumed before calling it.
func ResetConnection(w http.ResponseWriter) error {
	hijacker, ok := w.(http.Hijacker)
	if !ok {
		return fmt.Errorf("response writer does not support hijacking")
	}
	conn, _, err := hijacker.Hijack()
	if err != nil {
		return fmt.Errorf("hijack connection: %w", err)
	}
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		if err := tcpConn.SetLinger(0); err != nil {
			return fmt.Errorf("set linger: %w", err)
		}
	}
	return conn.Close()
}
