// Package chunkuploader transfers a byte source to a tus upload in bounded PATCH requests,
// resuming from the server's offset whenever the connection drops.
package chunkuploader

import (
	"context"
	"time"

	"github.com/bitrise-io/go-tusclient/transport"
)

// Exchanger executes a single tus exchange. *transport.Transport implements it.
type Exchanger interface {
	Execute(ctx context.Context, req *transport.Request) (*transport.Response, error)
}

// UploadResult summarizes a finished upload.
type UploadResult struct {
	// Offset is the offset the server acknowledged last. It equals the size of the source.
	Offset int64
	// Chunks is the number of PATCH requests the server accepted.
	Chunks int64
	// BytesSent is the number of bytes in accepted chunks.
	BytesSent int64
	// Resumes is the number of times the upload resumed after a connection reset.
	Resumes  int
	Duration time.Duration
}

type state int

const (
	stateQuerying state = iota
	stateSending
	stateVerifying
	stateRetrying
	stateComplete
	stateFailed
)

func (s state) String() string {
	switch s {
	case stateQuerying:
		return "querying"
	case stateSending:
		return "sending"
	case stateVerifying:
		return "verifying"
	case stateRetrying:
		return "retrying"
	case stateComplete:
		return "complete"
	case stateFailed:
		return "failed"
	}
	return "unknown"
}
