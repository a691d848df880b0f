// Package transport executes single tus exchanges: it streams request and response bodies through
// fixed-size buffers, reports progress after every buffer and aborts as soon as the context is done.
package transport

import (
	"context"
	"fmt"
	"io"
	"net/http/httputil"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"
	"github.com/hashicorp/go-retryablehttp"
)

// Transport executes requests. It is safe for concurrent use.
type Transport struct {
	config Config
	logger log.Logger

	// idempotent serves HEAD, GET, OPTIONS and DELETE, single serves POST and PATCH.
	idempotent *retryablehttp.Client
	single     *retryablehttp.Client
}

// New creates a Transport. Zero buffer sizes fall back to the defaults.
func New(config Config, logger log.Logger) *Transport {
	defaults := DefaultConfig()
	if config.UploadBufferSize <= 0 {
		config.UploadBufferSize = defaults.UploadBufferSize
	}
	if config.DownloadBufferSize <= 0 {
		config.DownloadBufferSize = defaults.DownloadBufferSize
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = DefaultHTTPClient(config.Proxy)
	}

	return &Transport{
		config:     config,
		logger:     logger,
		idempotent: newRetryableClient(config, httpClient, config.RetryMax, logger),
		single:     newRetryableClient(config, httpClient, 0, logger),
	}
}

// Execute performs the exchange described by req.
// A non-2xx status is not an error here: the status is part of the Response.
// Network failures are returned as *TransportError, a done ctx as *CancelError.
func (t *Transport) Execute(ctx context.Context, req *Request) (*Response, error) {
	op := string(req.Method)
	total := int64(len(req.Body))

	var body interface{}
	if total > 0 {
		body = retryablehttp.ReaderFunc(func() (io.Reader, error) {
			return newBodyReader(ctx, req, t.config.UploadBufferSize), nil
		})
	}

	httpReq, err := retryablehttp.NewRequest(string(req.Method), req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", op, err)
	}
	httpReq = httpReq.WithContext(ctx)
	for k, v := range req.Header {
		httpReq.Header[k] = v
	}
	if httpReq.Header.Get(HeaderAcceptEncoding) == "" {
		httpReq.Header.Set(HeaderAcceptEncoding, acceptEncoding)
	}
	httpReq.ContentLength = total

	dump, err := httputil.DumpRequest(httpReq.Request, false)
	if err != nil {
		t.logger.Warnf("error while dumping request: %s", err)
	}
	t.logger.Debugf("Request dump: %s", string(dump))

	req.reportUpload(0, total)

	client := t.single
	if req.Method.idempotent() {
		client = t.idempotent
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, t.wrapError(ctx, op, req.URL, err)
	}
	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			t.logger.Debugf("close response body: %s", err)
		}
	}(resp.Body)

	dump, err = httputil.DumpResponse(resp, false)
	if err != nil {
		t.logger.Warnf("error while dumping response: %s", err)
	}
	t.logger.Debugf("Response dump: %s", string(dump))

	data, err := readBody(ctx, req, resp, t.config.DownloadBufferSize)
	if err != nil {
		return nil, t.wrapError(ctx, op, req.URL, fmt.Errorf("read response body: %w", err))
	}

	t.logger.Debugf("%s %s: HTTP %d (sent %s, received %s)", op, req.URL, resp.StatusCode,
		units.HumanSize(float64(total)), units.HumanSize(float64(len(data))))

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}

func (t *Transport) wrapError(ctx context.Context, op, url string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return &CancelError{Op: op, Err: ctxErr}
	}
	return &TransportError{Op: op, URL: url, Err: err}
}

// CloseIdleConnections closes idle connections in the HTTP client.
func (t *Transport) CloseIdleConnections() {
	t.idempotent.HTTPClient.CloseIdleConnections()
}
