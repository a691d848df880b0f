// Package tus is a client of the tus resumable upload protocol.
package tus

import (
	"context"
	"fmt"
	"net/http"

	"github.com/bitrise-io/go-tusclient/chunkuploader"
	"github.com/bitrise-io/go-tusclient/transport"
	"github.com/bitrise-io/go-utils/v2/log"
)

// Config holds configuration for the client.
type Config struct {
	Transport transport.Config
	Uploader  chunkuploader.Config

	// Header is added to every request, e.g. for authorization.
	// It is copied by New, later changes have no effect.
	Header http.Header
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Transport: transport.DefaultConfig(),
		Uploader:  chunkuploader.DefaultConfig(),
	}
}

// Client talks to a tus server. Its methods may be called concurrently for independent uploads.
type Client struct {
	transport *transport.Transport
	uploader  *chunkuploader.Uploader
	header    http.Header
	logger    log.Logger

	// ctx is done once Cancel is called, every operation context is derived from it
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Client.
func New(config Config, logger log.Logger) (*Client, error) {
	if err := config.Transport.Validate(); err != nil {
		return nil, fmt.Errorf("invalid transport config: %w", err)
	}

	header := http.Header{}
	for k, v := range config.Header {
		header[http.CanonicalHeaderKey(k)] = append([]string(nil), v...)
	}

	t := transport.New(config.Transport, logger)
	uploader, err := chunkuploader.New(config.Uploader, t, header, logger)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Client{
		transport: t,
		uploader:  uploader,
		header:    header,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Cancel aborts every running operation of the client. Operations started afterwards fail right away.
func (c *Client) Cancel() {
	c.cancel()
}

// CloseIdleConnections closes idle connections in the HTTP client.
func (c *Client) CloseIdleConnections() {
	c.transport.CloseIdleConnections()
}

// operationContext derives a context that is done when either ctx or the client is canceled.
func (c *Client) operationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	if c.ctx.Err() != nil {
		cancel()
		return ctx, cancel
	}
	stop := context.AfterFunc(c.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (c *Client) newRequest(method transport.Method, rawURL string) (*transport.Request, error) {
	return transport.NewRequest(method, rawURL, nil, c.header)
}
