package tus

import (
	"context"

	"github.com/bitrise-io/go-tusclient/chunkuploader"
	"github.com/bitrise-io/go-tusclient/transport"
)

// Upload sends src to the upload at uploadURL, resuming from the offset the server already has.
// onProgress receives (offset, total) and may be nil.
func (c *Client) Upload(ctx context.Context, uploadURL string, src chunkuploader.Source, onProgress transport.ProgressFunc) (*chunkuploader.UploadResult, error) {
	ctx, cancel := c.operationContext(ctx)
	defer cancel()

	return c.uploader.Upload(ctx, uploadURL, src, onProgress)
}

// UploadFile sends the file at path to the upload at uploadURL.
func (c *Client) UploadFile(ctx context.Context, uploadURL, path string, onProgress transport.ProgressFunc) (*chunkuploader.UploadResult, error) {
	src, err := chunkuploader.NewFileSource(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := src.Close(); err != nil {
			c.logger.Warnf("Failed to close %s: %s", path, err)
		}
	}()

	return c.Upload(ctx, uploadURL, src, onProgress)
}
