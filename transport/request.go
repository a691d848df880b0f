package transport

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// Method is one of the HTTP methods the tus protocol uses.
type Method string

// The methods a Request can carry.
const (
	MethodCreate  Method = http.MethodPost
	MethodPatch   Method = http.MethodPatch
	MethodHead    Method = http.MethodHead
	MethodGet     Method = http.MethodGet
	MethodOptions Method = http.MethodOptions
	MethodDelete  Method = http.MethodDelete
)

func (m Method) valid() bool {
	switch m {
	case MethodCreate, MethodPatch, MethodHead, MethodGet, MethodOptions, MethodDelete:
		return true
	}
	return false
}

// idempotent methods may be replayed by the transport on connection errors and 5xx responses.
func (m Method) idempotent() bool {
	switch m {
	case MethodHead, MethodGet, MethodOptions, MethodDelete:
		return true
	}
	return false
}

// ProgressFunc receives the number of bytes transferred so far and the expected total.
type ProgressFunc func(transferred, total int64)

// Request describes a single exchange with a tus server.
type Request struct {
	Method Method
	URL    string
	Header http.Header
	Body   []byte

	// OnUploadProgress is called with (0, len(Body)) before the exchange and after every body buffer.
	// A buffer counts as sent once net/http has read it, which may be before it reaches the connection.
	OnUploadProgress ProgressFunc
	// OnDownloadProgress is called after every response body buffer.
	OnDownloadProgress ProgressFunc
	// ResponseWriter, when set, receives the response body instead of Response.Body.
	ResponseWriter io.Writer
}

// NewRequest creates a request with the Tus-Resumable header set.
// The extra headers are copied, so later changes to them do not leak into the request.
func NewRequest(method Method, rawURL string, body []byte, extra http.Header) (*Request, error) {
	if !method.valid() {
		return nil, fmt.Errorf("unsupported method: %s", method)
	}
	if _, err := url.ParseRequestURI(rawURL); err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", rawURL, err)
	}

	header := http.Header{}
	for k, v := range extra {
		header[http.CanonicalHeaderKey(k)] = append([]string(nil), v...)
	}
	header.Set(HeaderTusResumable, ProtocolVersion)

	return &Request{
		Method: method,
		URL:    rawURL,
		Header: header,
		Body:   body,
	}, nil
}

func (r *Request) reportUpload(sent, total int64) {
	if r.OnUploadProgress != nil {
		r.OnUploadProgress(sent, total)
	}
}

func (r *Request) reportDownload(received, total int64) {
	if r.OnDownloadProgress != nil {
		r.OnDownloadProgress(received, total)
	}
}
