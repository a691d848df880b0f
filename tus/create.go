package tus

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"github.com/bitrise-io/go-tusclient/transport"
)

// Create registers an upload of length bytes at endpoint and returns its absolute URL.
func (c *Client) Create(ctx context.Context, endpoint string, length int64, metadata Metadata) (string, error) {
	ctx, cancel := c.operationContext(ctx)
	defer cancel()

	if length < 0 {
		return "", fmt.Errorf("upload length must not be negative, got %d", length)
	}

	req, err := c.newRequest(transport.MethodCreate, endpoint)
	if err != nil {
		return "", err
	}
	req.Header.Set(transport.HeaderUploadLength, strconv.FormatInt(length, 10))
	if encoded := metadata.Encode(); encoded != "" {
		req.Header.Set(transport.HeaderUploadMetadata, encoded)
	}

	resp, err := c.transport.Execute(ctx, req)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusCreated {
		return "", transport.NewProtocolError("create", resp, "unexpected status")
	}

	location := resp.Header.Get(transport.HeaderLocation)
	if location == "" {
		return "", transport.NewProtocolError("create", resp, "missing %s header", transport.HeaderLocation)
	}
	uploadURL, err := resolveLocation(endpoint, location)
	if err != nil {
		return "", transport.NewProtocolError("create", resp, "invalid %s header %q: %s", transport.HeaderLocation, location, err)
	}

	c.logger.Debugf("Created upload of %d bytes: %s", length, uploadURL)
	return uploadURL, nil
}

// CreateFromFile registers an upload for the file at path.
// The file name is sent as the filename metadata unless metadata already has one.
func (c *Client) CreateFromFile(ctx context.Context, endpoint, path string, metadata Metadata) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat file: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", path)
	}

	withName := Metadata{}
	for k, v := range metadata {
		withName[k] = v
	}
	if _, ok := withName["filename"]; !ok {
		withName["filename"] = filepath.Base(path)
	}

	return c.Create(ctx, endpoint, info.Size(), withName)
}

func resolveLocation(endpoint, location string) (string, error) {
	base, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(location)
	if err != nil {
		return "", err
	}

	resolved := base.ResolveReference(ref)
	if resolved.Scheme == "" || resolved.Host == "" {
		return "", fmt.Errorf("not an absolute url: %s", resolved)
	}
	return resolved.String(), nil
}
