package transport

import (
	"errors"
	"fmt"
	"strings"
	"syscall"
)

// maxErrorBody limits how much of a response body ends up in an error message.
const maxErrorBody = 1024

// ProtocolError is returned when the server answers with something the protocol does not allow:
// an unexpected status, a missing or malformed header, or an offset that does not match what was sent.
type ProtocolError struct {
	Op         string
	StatusCode int
	Body       []byte
	Msg        string
}

// NewProtocolError captures the status and body of resp for diagnosis. resp may be nil.
func NewProtocolError(op string, resp *Response, format string, args ...interface{}) *ProtocolError {
	e := &ProtocolError{
		Op:  op,
		Msg: fmt.Sprintf(format, args...),
	}
	if resp != nil {
		e.StatusCode = resp.StatusCode
		e.Body = resp.Body
	}
	return e
}

func (e *ProtocolError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
	body := e.Body
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return fmt.Sprintf("%s: %s (HTTP %d: %s)", e.Op, e.Msg, e.StatusCode, body)
}

// TransportError is a network level failure of an exchange.
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// CancelError is returned when the context of an exchange is done.
type CancelError struct {
	Op  string
	Err error
}

func (e *CancelError) Error() string {
	return fmt.Sprintf("%s canceled: %s", e.Op, e.Err)
}

func (e *CancelError) Unwrap() error {
	return e.Err
}

// IsCanceled reports whether err stems from a canceled exchange.
func IsCanceled(err error) bool {
	var cancelErr *CancelError
	return errors.As(err, &cancelErr)
}

// IsConnectionReset reports whether err is a transient connection reset: the peer dropped the connection
// while the request or the response was in flight. A reset on the write side shows up as a broken pipe.
func IsConnectionReset(err error) bool {
	if err == nil || IsCanceled(err) {
		return false
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	// net/http does not wrap every connection error it reports
	msg := err.Error()
	return strings.Contains(msg, "connection reset by peer") || strings.Contains(msg, "broken pipe")
}
