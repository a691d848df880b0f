package transport

import (
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Config holds configuration for the transport.
type Config struct {
	// UploadBufferSize is the size of the buffers a request body is streamed in.
	// Default: 4 KiB
	UploadBufferSize int

	// DownloadBufferSize is the size of the buffers a response body is read in.
	// Default: 16 KiB
	DownloadBufferSize int

	// RetryMax is the number of retries of idempotent exchanges (HEAD, GET, OPTIONS, DELETE)
	// on connection errors and 5xx responses. PATCH and POST are never retried here.
	// Default: 2
	RetryMax int

	// RetryWaitMin and RetryWaitMax bound the backoff between retries.
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration

	// Proxy selects the proxy for a request. If nil, the environment is used.
	Proxy func(*http.Request) (*url.URL, error)

	// HTTPClient is the HTTP client to use.
	// If nil, DefaultHTTPClient is used.
	HTTPClient *http.Client
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		UploadBufferSize:   4 * 1024,
		DownloadBufferSize: 16 * 1024,
		RetryMax:           2,
		RetryWaitMin:       500 * time.Millisecond,
		RetryWaitMax:       5 * time.Second,
	}
}

// Validate checks the configuration for values the transport cannot work with.
func (c Config) Validate() error {
	if c.UploadBufferSize <= 0 {
		return fmt.Errorf("upload buffer size must be positive, got %d", c.UploadBufferSize)
	}
	if c.DownloadBufferSize <= 0 {
		return fmt.Errorf("download buffer size must be positive, got %d", c.DownloadBufferSize)
	}
	if c.RetryMax < 0 {
		return fmt.Errorf("retry max must not be negative, got %d", c.RetryMax)
	}
	return nil
}

// DefaultHTTPClient creates an HTTP client for tus exchanges.
// Redirects are not followed: a Location header is data for the protocol layer.
func DefaultHTTPClient(proxy func(*http.Request) (*url.URL, error)) *http.Client {
	if proxy == nil {
		proxy = http.ProxyFromEnvironment
	}

	return &http.Client{
		// No timeout - exchanges are bounded by their context
		Timeout: 0,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			IdleConnTimeout:     10 * time.Second,
			TLSHandshakeTimeout: 5 * time.Second,
			Proxy:               proxy,
		},
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}
