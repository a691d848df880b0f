package chunkuploader

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/bitrise-io/go-tusclient/transport"
	"github.com/bitrise-io/go-utils/retry"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"
)

// Uploader drives the resume loop of tus uploads.
// It keeps no state between Upload calls, but a single upload URL must not be driven by two calls at once.
type Uploader struct {
	config    Config
	exchanger Exchanger
	header    http.Header
	logger    log.Logger
}

// New creates an Uploader. header is added to every request and must not be modified afterwards.
func New(config Config, exchanger Exchanger, header http.Header, logger log.Logger) (*Uploader, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid chunk uploader config: %w", err)
	}

	return &Uploader{
		config:    config,
		exchanger: exchanger,
		header:    header,
		logger:    logger,
	}, nil
}

// session is the state of one Upload call.
type session struct {
	url      string
	src      Source
	total    int64
	offset   int64
	stats    *Stats
	progress *progressReporter
}

// Upload sends src to the upload at uploadURL, starting from the offset the server reports.
// onProgress receives (offset, total) with a non-decreasing offset. It may be nil.
func (u *Uploader) Upload(ctx context.Context, uploadURL string, src Source, onProgress transport.ProgressFunc) (*UploadResult, error) {
	start := time.Now()
	s := &session{
		url:      uploadURL,
		src:      src,
		total:    src.Size(),
		stats:    NewStats(),
		progress: &progressReporter{fn: onProgress, total: src.Size()},
	}

	var (
		st       = stateQuerying
		resp     *transport.Response
		chunkLen int64
		sentAt   time.Time
		lastErr  error
	)

	for {
		u.logger.Debugf("[%s] offset=%d/%d", st, s.offset, s.total)

		switch st {
		case stateQuerying:
			offset, err := u.queryOffset(ctx, s)
			if err != nil {
				lastErr = err
				st = stateFailed
				continue
			}
			s.offset = offset
			if offset == s.total {
				s.progress.report(offset)
				st = stateComplete
				continue
			}
			st = stateSending

		case stateSending:
			sentAt = time.Now()
			var err error
			resp, chunkLen, err = u.sendChunk(ctx, s)
			switch {
			case err == nil:
				st = stateVerifying
			case transport.IsConnectionReset(err):
				lastErr = err
				st = stateRetrying
			default:
				lastErr = err
				st = stateFailed
			}

		case stateVerifying:
			offset, err := verifyPatch(resp, s.offset, chunkLen)
			if err != nil {
				lastErr = err
				st = stateFailed
				continue
			}
			took := time.Since(sentAt)
			s.stats.Update(took, chunkLen)
			s.offset = offset
			s.progress.report(offset)
			u.logger.Debugf("Chunk %d accepted in %v, offset: %d/%d",
				s.stats.FinishedCount(), took.Round(time.Millisecond), offset, s.total)

			if s.offset == s.total {
				st = stateComplete
			} else {
				st = stateSending
			}

		case stateRetrying:
			resumes := s.stats.Resume()
			if u.config.MaxResumes > 0 && resumes > u.config.MaxResumes {
				lastErr = fmt.Errorf("giving up after %d resumes: %w", u.config.MaxResumes, lastErr)
				st = stateFailed
				continue
			}
			u.logger.Warnf("Connection reset at offset %d, querying offset again (resume %d): %s", s.offset, resumes, lastErr)
			if err := wait(ctx, u.config.ResumeWait); err != nil {
				lastErr = err
				st = stateFailed
				continue
			}
			st = stateQuerying

		case stateComplete:
			result := &UploadResult{
				Offset:    s.offset,
				Chunks:    s.stats.FinishedCount(),
				BytesSent: s.stats.BytesSent(),
				Resumes:   s.stats.Resumes(),
				Duration:  time.Since(start),
			}
			u.logger.Infof("Uploaded %s in %d chunks (%d resumes) in %s, sending took %s, avg chunk: %s",
				units.HumanSizeWithPrecision(float64(s.total), 3), result.Chunks, result.Resumes,
				result.Duration.Round(time.Millisecond), s.stats.TotalDuration().Round(time.Millisecond),
				s.stats.Average().Round(time.Millisecond))
			return result, nil

		case stateFailed:
			return nil, lastErr
		}
	}
}

// queryOffset asks the server for the offset of the upload, retrying on connection resets.
func (u *Uploader) queryOffset(ctx context.Context, s *session) (int64, error) {
	var offset int64
	err := retry.Times(uint(u.config.OffsetQueryRetries)).Wait(u.config.ResumeWait).TryWithAbort(func(attempt uint) (error, bool) {
		if attempt > 0 {
			u.logger.Warnf("%d. attempt to query offset", attempt+1)
		}

		o, err := u.head(ctx, s)
		if err != nil {
			return err, !transport.IsConnectionReset(err)
		}
		offset = o
		return nil, true
	})
	return offset, err
}

func (u *Uploader) head(ctx context.Context, s *session) (int64, error) {
	req, err := transport.NewRequest(transport.MethodHead, s.url, nil, u.header)
	if err != nil {
		return 0, err
	}

	resp, err := u.exchanger.Execute(ctx, req)
	if err != nil {
		return 0, err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return 0, transport.NewProtocolError("head", resp, "unexpected status")
	}

	if resp.Header.Get(transport.HeaderUploadOffset) == "" {
		return 0, transport.NewProtocolError("head", resp, "missing %s header", transport.HeaderUploadOffset)
	}
	offset, ok := resp.Int64Header(transport.HeaderUploadOffset)
	if !ok {
		return 0, transport.NewProtocolError("head", resp, "invalid %s header: %q",
			transport.HeaderUploadOffset, resp.Header.Get(transport.HeaderUploadOffset))
	}
	if offset < 0 || offset > s.total {
		return 0, transport.NewProtocolError("head", resp, "offset %d out of range [0, %d]", offset, s.total)
	}
	if length, ok := resp.Int64Header(transport.HeaderUploadLength); ok && length != s.total {
		return 0, transport.NewProtocolError("head", resp, "server expects %d bytes, source has %d", length, s.total)
	}

	return offset, nil
}

// sendChunk PATCHes the window starting at the session offset.
func (u *Uploader) sendChunk(ctx context.Context, s *session) (*transport.Response, int64, error) {
	size := u.config.ChunkSize
	if remaining := s.total - s.offset; remaining < size {
		size = remaining
	}

	data, err := readWindow(s.src, s.offset, size)
	if err != nil {
		return nil, 0, err
	}
	checksum, err := u.config.ChecksumAlgorithm.HeaderValue(data)
	if err != nil {
		return nil, 0, err
	}

	req, err := transport.NewRequest(transport.MethodPatch, s.url, data, u.header)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set(transport.HeaderUploadOffset, strconv.FormatInt(s.offset, 10))
	req.Header.Set(transport.HeaderUploadChecksum, checksum)
	req.Header.Set(transport.HeaderContentType, transport.ContentTypeOffsetOctetStream)

	base := s.offset
	req.OnUploadProgress = func(sent, _ int64) {
		s.progress.report(base + sent)
	}

	u.logger.Debugf("Sending %s at offset %d", units.HumanSize(float64(size)), s.offset)

	resp, err := u.exchanger.Execute(ctx, req)
	if err != nil {
		return nil, 0, err
	}
	return resp, size, nil
}

// verifyPatch checks the server's answer to a PATCH of sent bytes at offset and returns the new offset.
func verifyPatch(resp *transport.Response, offset, sent int64) (int64, error) {
	if resp.StatusCode != http.StatusNoContent {
		return 0, transport.NewProtocolError("patch", resp, "unexpected status")
	}

	newOffset, ok := resp.Int64Header(transport.HeaderUploadOffset)
	if !ok {
		return 0, transport.NewProtocolError("patch", resp, "missing or invalid %s header", transport.HeaderUploadOffset)
	}
	if newOffset != offset+sent {
		return 0, transport.NewProtocolError("patch", resp, "offset mismatch: sent %d bytes at %d, server reports %d",
			sent, offset, newOffset)
	}
	return newOffset, nil
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		if err := ctx.Err(); err != nil {
			return &transport.CancelError{Op: "resume", Err: err}
		}
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return &transport.CancelError{Op: "resume", Err: ctx.Err()}
	case <-timer.C:
		return nil
	}
}

// progressReporter drops reports that would move the offset backwards.
// After a reset the bytes reported in flight may not have landed.
type progressReporter struct {
	fn       transport.ProgressFunc
	total    int64
	reported int64
	started  bool
}

func (p *progressReporter) report(offset int64) {
	if p.fn == nil {
		return
	}
	if p.started && offset <= p.reported {
		return
	}
	p.started = true
	p.reported = offset
	p.fn(offset, p.total)
}
