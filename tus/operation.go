package tus

import (
	"context"

	"github.com/bitrise-io/go-tusclient/chunkuploader"
	"github.com/bitrise-io/go-tusclient/transport"
)

// progressBuffer is how many progress updates an Operation holds for a slow reader.
// When it is full the oldest update gives way, so the latest one, including the final one, is always kept.
const progressBuffer = 64

// Progress is a snapshot of a running transfer.
type Progress struct {
	Transferred int64
	Total       int64
}

// Operation is a transfer running in the background.
type Operation[T any] struct {
	progress chan Progress
	done     chan struct{}
	result   T
	err      error
}

func startOperation[T any](run func(onProgress transport.ProgressFunc) (T, error)) *Operation[T] {
	op := &Operation[T]{
		progress: make(chan Progress, progressBuffer),
		done:     make(chan struct{}),
	}

	go func() {
		defer close(op.done)
		op.result, op.err = run(op.report)
		close(op.progress)
	}()

	return op
}

// Progress delivers progress updates. It is closed when the operation finishes.
func (o *Operation[T]) Progress() <-chan Progress {
	return o.progress
}

// Done is closed when the operation finishes.
func (o *Operation[T]) Done() <-chan struct{} {
	return o.done
}

// Wait blocks until the operation finishes and returns its result.
func (o *Operation[T]) Wait() (T, error) {
	<-o.done
	return o.result, o.err
}

// report is only called from the goroutine of the operation, so the loop ends once a slot is freed.
func (o *Operation[T]) report(transferred, total int64) {
	p := Progress{Transferred: transferred, Total: total}
	for {
		select {
		case o.progress <- p:
			return
		default:
		}

		select {
		case <-o.progress:
		default:
		}
	}
}

// UploadAsync runs Upload in the background.
func (c *Client) UploadAsync(ctx context.Context, uploadURL string, src chunkuploader.Source) *Operation[*chunkuploader.UploadResult] {
	return startOperation(func(onProgress transport.ProgressFunc) (*chunkuploader.UploadResult, error) {
		return c.Upload(ctx, uploadURL, src, onProgress)
	})
}

// DownloadAsync runs Download in the background.
func (c *Client) DownloadAsync(ctx context.Context, uploadURL string) *Operation[*transport.Response] {
	return startOperation(func(onProgress transport.ProgressFunc) (*transport.Response, error) {
		return c.Download(ctx, uploadURL, onProgress)
	})
}
