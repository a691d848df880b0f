package transport

import (
	"net/http"
	"strconv"
)

// Response is the result of one exchange.
type Response struct {
	StatusCode int
	Header     http.Header
	// Body is nil when the request streamed the body into a ResponseWriter.
	Body []byte
}

// Success reports whether the status code is 2xx.
func (r *Response) Success() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Int64Header parses a decimal header value.
func (r *Response) Int64Header(name string) (int64, bool) {
	if r.Header == nil {
		return 0, false
	}
	v := r.Header.Get(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
