package tus

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/bitrise-io/go-tusclient/transport"
)

// FileResponse is the result of a download written to disk.
type FileResponse struct {
	StatusCode int
	Header     http.Header
	Path       string
	Size       int64
}

// Download fetches the upload at uploadURL into memory.
// onProgress receives (received, total) and may be nil.
func (c *Client) Download(ctx context.Context, uploadURL string, onProgress transport.ProgressFunc) (*transport.Response, error) {
	ctx, cancel := c.operationContext(ctx)
	defer cancel()

	req, err := c.newRequest(transport.MethodGet, uploadURL)
	if err != nil {
		return nil, err
	}
	req.OnDownloadProgress = onProgress

	resp, err := c.transport.Execute(ctx, req)
	if err != nil {
		return nil, err
	}
	if !resp.Success() {
		return nil, transport.NewProtocolError("download", resp, "unexpected status")
	}
	return resp, nil
}

// DownloadToFile streams the upload at uploadURL into the file at dest.
// On failure the partially written file is removed.
func (c *Client) DownloadToFile(ctx context.Context, uploadURL, dest string, onProgress transport.ProgressFunc) (*FileResponse, error) {
	ctx, cancel := c.operationContext(ctx)
	defer cancel()

	req, err := c.newRequest(transport.MethodGet, uploadURL)
	if err != nil {
		return nil, err
	}
	req.OnDownloadProgress = onProgress

	file, err := os.Create(dest)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}
	req.ResponseWriter = file

	resp, err := c.transport.Execute(ctx, req)
	if err == nil && !resp.Success() {
		// the error body went to the file
		resp.Body = readErrorBody(file)
		err = transport.NewProtocolError("download", resp, "unexpected status")
	}

	var size int64
	if err == nil {
		size, err = file.Seek(0, io.SeekCurrent)
	}
	if closeErr := file.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("close file: %w", closeErr)
	}
	if err != nil {
		if removeErr := os.Remove(dest); removeErr != nil {
			c.logger.Warnf("Failed to remove %s: %s", dest, removeErr)
		}
		return nil, err
	}

	return &FileResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Path:       dest,
		Size:       size,
	}, nil
}

func readErrorBody(file *os.File) []byte {
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil
	}
	body, err := io.ReadAll(io.LimitReader(file, 1024))
	if err != nil {
		return nil
	}
	return body
}
