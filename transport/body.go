package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// acceptEncoding lists the content encodings readBody can decode.
const acceptEncoding = "gzip, zstd"

// bodyReader hands out the request body one buffer at a time,
// checking the context before every buffer and reporting progress after it.
type bodyReader struct {
	ctx     context.Context
	req     *Request
	bufSize int
	sent    int
}

func newBodyReader(ctx context.Context, req *Request, bufSize int) *bodyReader {
	return &bodyReader{ctx: ctx, req: req, bufSize: bufSize}
}

func (r *bodyReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	if r.sent >= len(r.req.Body) {
		return 0, io.EOF
	}
	if len(p) > r.bufSize {
		p = p[:r.bufSize]
	}

	n := copy(p, r.req.Body[r.sent:])
	r.sent += n
	r.req.reportUpload(int64(r.sent), int64(len(r.req.Body)))
	return n, nil
}

// Len lets retryablehttp size the request.
func (r *bodyReader) Len() int {
	return len(r.req.Body) - r.sent
}

// readBody reads the response body in bufSize buffers into the request's ResponseWriter,
// or into memory when there is none.
func readBody(ctx context.Context, req *Request, resp *http.Response, bufSize int) ([]byte, error) {
	body, total, closeDecoder, err := decodedBody(req, resp)
	if err != nil {
		return nil, err
	}
	defer closeDecoder()

	var buffered bytes.Buffer
	var w io.Writer = &buffered
	if req.ResponseWriter != nil {
		w = req.ResponseWriter
	}

	req.reportDownload(0, progressTotal(total, 0))

	buf := make([]byte, bufSize)
	var received int64
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, readErr := body.Read(buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				return nil, fmt.Errorf("write response body: %w", err)
			}
			received += int64(n)
			req.reportDownload(received, progressTotal(total, received))
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return nil, readErr
		}
	}

	if req.ResponseWriter != nil {
		return nil, nil
	}
	return buffered.Bytes(), nil
}

// decodedBody wraps the response body in a decoder matching its Content-Encoding.
// The declared length of an encoded body says nothing about the decoded size, so total is -1 then.
func decodedBody(req *Request, resp *http.Response) (io.Reader, int64, func(), error) {
	noop := func() {}
	encoding := strings.ToLower(strings.TrimSpace(resp.Header.Get(HeaderContentEncoding)))
	if encoding == "" || encoding == "identity" || req.Method == MethodHead || resp.StatusCode == http.StatusNoContent {
		return resp.Body, resp.ContentLength, noop, nil
	}

	switch encoding {
	case "gzip":
		zr, err := gzip.NewReader(resp.Body)
		if errors.Is(err, io.EOF) {
			return bytes.NewReader(nil), -1, noop, nil
		}
		if err != nil {
			return nil, 0, noop, fmt.Errorf("create gzip reader: %w", err)
		}
		return zr, -1, func() { _ = zr.Close() }, nil
	case "zstd":
		zr, err := zstd.NewReader(resp.Body)
		if err != nil {
			return nil, 0, noop, fmt.Errorf("create zstd reader: %w", err)
		}
		return zr, -1, zr.Close, nil
	default:
		return nil, 0, noop, fmt.Errorf("unsupported content encoding: %s", encoding)
	}
}

func progressTotal(declared, received int64) int64 {
	if declared < 0 {
		return received
	}
	return declared
}
