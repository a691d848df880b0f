package tus

import (
	"context"
	"net/http"
	"strings"

	"github.com/bitrise-io/go-tusclient/transport"
)

// ServerInfo describes what a tus server supports.
type ServerInfo struct {
	// Version is the protocol version the server answered with.
	Version            string
	SupportedVersions  []string
	Extensions         []string
	MaxSize            int64
	ChecksumAlgorithms []string

	rawExtensions string
}

// SupportsDelete reports whether the server announces the termination extension.
func (i *ServerInfo) SupportsDelete() bool {
	return strings.Contains(i.rawExtensions, "termination")
}

// SupportsExtension reports whether name is one of the announced extensions.
func (i *ServerInfo) SupportsExtension(name string) bool {
	for _, e := range i.Extensions {
		if e == name {
			return true
		}
	}
	return false
}

// SupportsChecksum reports whether the server verifies checksums of the given algorithm.
func (i *ServerInfo) SupportsChecksum(algorithm string) bool {
	for _, a := range i.ChecksumAlgorithms {
		if strings.EqualFold(a, algorithm) {
			return true
		}
	}
	return false
}

// Head fetches the state of the upload at uploadURL.
// A non-2xx answer is not an error: the returned response carries only its status.
func (c *Client) Head(ctx context.Context, uploadURL string) (*transport.Response, error) {
	ctx, cancel := c.operationContext(ctx)
	defer cancel()

	req, err := c.newRequest(transport.MethodHead, uploadURL)
	if err != nil {
		return nil, err
	}

	resp, err := c.transport.Execute(ctx, req)
	if err != nil {
		return nil, err
	}
	if !resp.Success() {
		c.logger.Debugf("HEAD %s: HTTP %d", uploadURL, resp.StatusCode)
		return &transport.Response{StatusCode: resp.StatusCode}, nil
	}
	return resp, nil
}

// ServerInfo asks the server at endpoint for its capabilities.
func (c *Client) ServerInfo(ctx context.Context, endpoint string) (*ServerInfo, error) {
	ctx, cancel := c.operationContext(ctx)
	defer cancel()

	req, err := c.newRequest(transport.MethodOptions, endpoint)
	if err != nil {
		return nil, err
	}

	resp, err := c.transport.Execute(ctx, req)
	if err != nil {
		return nil, err
	}
	// some servers answer 200 for the sake of browsers
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return nil, transport.NewProtocolError("options", resp, "unexpected status")
	}

	maxSize, ok := resp.Int64Header(transport.HeaderTusMaxSize)
	if !ok || maxSize < 0 {
		maxSize = 0
	}

	return &ServerInfo{
		Version:            resp.Header.Get(transport.HeaderTusResumable),
		SupportedVersions:  splitList(resp.Header.Get(transport.HeaderTusVersion)),
		Extensions:         splitList(resp.Header.Get(transport.HeaderTusExtension)),
		MaxSize:            maxSize,
		ChecksumAlgorithms: splitList(resp.Header.Get(transport.HeaderTusChecksumAlgorithm)),
		rawExtensions:      resp.Header.Get(transport.HeaderTusExtension),
	}, nil
}

// Delete terminates the upload at uploadURL.
// It reports true when the upload is gone afterwards, including when it never existed.
func (c *Client) Delete(ctx context.Context, uploadURL string) (bool, error) {
	ctx, cancel := c.operationContext(ctx)
	defer cancel()

	req, err := c.newRequest(transport.MethodDelete, uploadURL)
	if err != nil {
		return false, err
	}

	resp, err := c.transport.Execute(ctx, req)
	if err != nil {
		return false, err
	}

	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusNotFound, http.StatusGone:
		return true, nil
	default:
		c.logger.Warnf("Upload %s not deleted: HTTP %d", uploadURL, resp.StatusCode)
		return false, nil
	}
}

func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
