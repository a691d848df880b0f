package chunkuploader

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"net/http"
	"syscall"
	"testing"

	"github.com/bitrise-io/go-tusclient/internal/tustest"
	"github.com/bitrise-io/go-tusclient/transport"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mib = 1024 * 1024

type exchangerFunc func(ctx context.Context, req *transport.Request) (*transport.Response, error)

func (f exchangerFunc) Execute(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	return f(ctx, req)
}

type progressLog struct {
	offsets []int64
	totals  []int64
}

func (p *progressLog) record(offset, total int64) {
	p.offsets = append(p.offsets, offset)
	p.totals = append(p.totals, total)
}

func (p *progressLog) last() int64 {
	if len(p.offsets) == 0 {
		return -1
	}
	return p.offsets[len(p.offsets)-1]
}

func randomData(size int) []byte {
	data := make([]byte, size)
	rand.New(rand.NewSource(int64(size))).Read(data)
	return data
}

func newTestUploader(t *testing.T, config Config) *Uploader {
	uploader, err := New(config, transport.New(transport.DefaultConfig(), log.NewLogger()), http.Header{}, log.NewLogger())
	require.NoError(t, err)
	return uploader
}

func chunkConfig(chunkSize int64) Config {
	config := DefaultConfig()
	config.ChunkSize = chunkSize
	return config
}

func TestUpload_SendsChunksAtOffsets(t *testing.T) {
	server := tustest.NewServer(tustest.Options{})
	defer server.Close()

	data := randomData(10 * mib)
	uploadURL := server.AddUpload(int64(len(data)), nil)
	progress := &progressLog{}

	result, err := newTestUploader(t, chunkConfig(3*mib)).Upload(context.Background(), uploadURL, bytes.NewReader(data), progress.record)
	require.NoError(t, err)

	assert.Equal(t, int64(10*mib), result.Offset)
	assert.Equal(t, int64(4), result.Chunks)
	assert.Equal(t, int64(10*mib), result.BytesSent)
	assert.Equal(t, 0, result.Resumes)

	patches := server.Patches()
	require.Len(t, patches, 4)
	for i, want := range []int64{0, 3 * mib, 6 * mib, 9 * mib} {
		p := patches[i]
		assert.Equal(t, want, p.Offset)
		assert.Equal(t, tustest.Checksum("sha1", data[p.Offset:p.Offset+int64(p.Length)]), p.Checksum)
	}
	assert.Equal(t, mib, patches[3].Length)

	upload, ok := server.Upload(uploadURL)
	require.True(t, ok)
	assert.Equal(t, data, upload.Data)

	assert.Equal(t, int64(10*mib), progress.last())
	for i := 1; i < len(progress.offsets); i++ {
		assert.GreaterOrEqual(t, progress.offsets[i], progress.offsets[i-1])
	}
	for _, total := range progress.totals {
		assert.Equal(t, int64(10*mib), total)
	}
}

func TestUpload_ChecksumAlgorithms(t *testing.T) {
	for _, algorithm := range []ChecksumAlgorithm{ChecksumSHA1, ChecksumSHA256, ChecksumSHA512, ChecksumMD5} {
		t.Run(string(algorithm), func(t *testing.T) {
			server := tustest.NewServer(tustest.Options{})
			defer server.Close()

			data := randomData(100 * 1024)
			uploadURL := server.AddUpload(int64(len(data)), nil)

			config := chunkConfig(64 * 1024)
			config.ChecksumAlgorithm = algorithm

			_, err := newTestUploader(t, config).Upload(context.Background(), uploadURL, bytes.NewReader(data), nil)
			require.NoError(t, err)

			for _, p := range server.Patches() {
				assert.Equal(t, tustest.Checksum(string(algorithm), data[p.Offset:p.Offset+int64(p.Length)]), p.Checksum)
			}
		})
	}
}

func TestUpload_ResumesFromQueriedOffsetAfterReset(t *testing.T) {
	server := tustest.NewServer(tustest.Options{})
	defer server.Close()

	data := randomData(10 * mib)
	uploadURL := server.AddUpload(int64(len(data)), nil)
	server.ResetPatches(1000)
	progress := &progressLog{}

	result, err := newTestUploader(t, chunkConfig(3*mib)).Upload(context.Background(), uploadURL, bytes.NewReader(data), progress.record)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Resumes)
	assert.Equal(t, int64(10*mib), result.Offset)

	var offsets []int64
	for _, p := range server.Patches() {
		offsets = append(offsets, p.Offset)
	}
	assert.Equal(t, []int64{0, 1000, 3*mib + 1000, 6*mib + 1000, 9*mib + 1000}, offsets)
	assert.True(t, server.Patches()[0].Reset)
	assert.Equal(t, 2, server.CountRequests(http.MethodHead))

	upload, ok := server.Upload(uploadURL)
	require.True(t, ok)
	assert.Equal(t, data, upload.Data)

	for i := 1; i < len(progress.offsets); i++ {
		assert.GreaterOrEqual(t, progress.offsets[i], progress.offsets[i-1])
	}
	assert.Equal(t, int64(10*mib), progress.last())
}

func TestUpload_ResumesFromServerOffset(t *testing.T) {
	server := tustest.NewServer(tustest.Options{})
	defer server.Close()

	data := randomData(20000)
	uploadURL := server.AddUpload(int64(len(data)), data[:5000])

	result, err := newTestUploader(t, chunkConfig(8000)).Upload(context.Background(), uploadURL, bytes.NewReader(data), nil)
	require.NoError(t, err)

	assert.Equal(t, int64(2), result.Chunks)
	assert.Equal(t, int64(15000), result.BytesSent)
	patches := server.Patches()
	require.Len(t, patches, 2)
	assert.Equal(t, int64(5000), patches[0].Offset)
	assert.Equal(t, int64(13000), patches[1].Offset)

	upload, _ := server.Upload(uploadURL)
	assert.Equal(t, data, upload.Data)
}

func TestUpload_AlreadyComplete(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{name: "full upload", data: randomData(4096)},
		{name: "empty upload", data: []byte{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := tustest.NewServer(tustest.Options{})
			defer server.Close()

			uploadURL := server.AddUpload(int64(len(tt.data)), tt.data)
			progress := &progressLog{}

			result, err := newTestUploader(t, chunkConfig(1024)).Upload(context.Background(), uploadURL, bytes.NewReader(tt.data), progress.record)
			require.NoError(t, err)

			assert.Equal(t, int64(len(tt.data)), result.Offset)
			assert.Equal(t, int64(0), result.Chunks)
			assert.Empty(t, server.Patches())
			assert.Equal(t, []int64{int64(len(tt.data))}, progress.offsets)
			assert.Equal(t, []int64{int64(len(tt.data))}, progress.totals)
		})
	}
}

func TestUpload_GivesUpAfterMaxResumes(t *testing.T) {
	server := tustest.NewServer(tustest.Options{})
	defer server.Close()

	data := randomData(10000)
	uploadURL := server.AddUpload(int64(len(data)), nil)
	server.ResetPatches(0, 0, 0, 0)

	config := chunkConfig(4000)
	config.MaxResumes = 2

	_, err := newTestUploader(t, config).Upload(context.Background(), uploadURL, bytes.NewReader(data), nil)
	require.Error(t, err)

	assert.True(t, transport.IsConnectionReset(err))
	assert.Contains(t, err.Error(), "giving up after 2 resumes")
	assert.Len(t, server.Patches(), 3)
}

func TestUpload_Canceled(t *testing.T) {
	server := tustest.NewServer(tustest.Options{})
	defer server.Close()

	data := randomData(100000)
	uploadURL := server.AddUpload(int64(len(data)), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := newTestUploader(t, chunkConfig(10000)).Upload(ctx, uploadURL, bytes.NewReader(data), func(offset, total int64) {
		if offset >= 30000 {
			cancel()
		}
	})
	require.Error(t, err)

	assert.True(t, transport.IsCanceled(err))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Less(t, len(server.Patches()), 10)
}

func TestUpload_ProtocolErrors(t *testing.T) {
	headResponse := func(status int, header map[string]string) *transport.Response {
		resp := &transport.Response{StatusCode: status, Header: http.Header{}}
		for k, v := range header {
			resp.Header.Set(k, v)
		}
		return resp
	}

	tests := []struct {
		name     string
		head     *transport.Response
		patch    *transport.Response
		wantMsg  string
		wantCode int
	}{
		{
			name:     "head not found",
			head:     headResponse(http.StatusNotFound, nil),
			wantMsg:  "unexpected status",
			wantCode: http.StatusNotFound,
		},
		{
			name:    "head without offset",
			head:    headResponse(http.StatusOK, nil),
			wantMsg: "missing Upload-Offset header",
		},
		{
			name:    "head with invalid offset",
			head:    headResponse(http.StatusOK, map[string]string{"Upload-Offset": "abc"}),
			wantMsg: "invalid Upload-Offset header",
		},
		{
			name:    "head offset beyond length",
			head:    headResponse(http.StatusOK, map[string]string{"Upload-Offset": "101"}),
			wantMsg: "out of range",
		},
		{
			name:    "head length differs from source",
			head:    headResponse(http.StatusOK, map[string]string{"Upload-Offset": "0", "Upload-Length": "99"}),
			wantMsg: "server expects 99 bytes",
		},
		{
			name:     "patch rejected",
			head:     headResponse(http.StatusNoContent, map[string]string{"Upload-Offset": "0"}),
			patch:    headResponse(http.StatusConflict, nil),
			wantMsg:  "unexpected status",
			wantCode: http.StatusConflict,
		},
		{
			name:     "patch offset mismatch",
			head:     headResponse(http.StatusOK, map[string]string{"Upload-Offset": "0"}),
			patch:    headResponse(http.StatusNoContent, map[string]string{"Upload-Offset": "40"}),
			wantMsg:  "offset mismatch",
			wantCode: http.StatusNoContent,
		},
		{
			name:    "patch without offset",
			head:    headResponse(http.StatusOK, map[string]string{"Upload-Offset": "0"}),
			patch:   headResponse(http.StatusNoContent, nil),
			wantMsg: "missing or invalid Upload-Offset header",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exchanger := exchangerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
				if req.Method == transport.MethodHead {
					return tt.head, nil
				}
				return tt.patch, nil
			})
			uploader, err := New(chunkConfig(50), exchanger, nil, log.NewLogger())
			require.NoError(t, err)

			_, err = uploader.Upload(context.Background(), "http://localhost/files/1", bytes.NewReader(randomData(100)), nil)
			require.Error(t, err)

			var protocolErr *transport.ProtocolError
			require.True(t, errors.As(err, &protocolErr), "unexpected error: %s", err)
			assert.Contains(t, protocolErr.Msg, tt.wantMsg)
			if tt.wantCode != 0 {
				assert.Equal(t, tt.wantCode, protocolErr.StatusCode)
			}
		})
	}
}

func TestUpload_RetriesOffsetQueryOnReset(t *testing.T) {
	heads := 0
	var patchHeader http.Header
	exchanger := exchangerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
		if req.Method == transport.MethodHead {
			heads++
			if heads == 1 {
				return nil, &transport.TransportError{Op: "HEAD", URL: req.URL, Err: syscall.ECONNRESET}
			}
			resp := &transport.Response{StatusCode: http.StatusOK, Header: http.Header{}}
			resp.Header.Set(transport.HeaderUploadOffset, "0")
			return resp, nil
		}
		patchHeader = req.Header
		resp := &transport.Response{StatusCode: http.StatusNoContent, Header: http.Header{}}
		resp.Header.Set(transport.HeaderUploadOffset, "10")
		return resp, nil
	})

	extra := http.Header{}
	extra.Set("Authorization", "Bearer secret")
	uploader, err := New(chunkConfig(50), exchanger, extra, log.NewLogger())
	require.NoError(t, err)

	result, err := uploader.Upload(context.Background(), "http://localhost/files/1", bytes.NewReader(randomData(10)), nil)
	require.NoError(t, err)

	assert.Equal(t, 2, heads)
	assert.Equal(t, int64(10), result.Offset)
	assert.Equal(t, "Bearer secret", patchHeader.Get("Authorization"))
	assert.Equal(t, "0", patchHeader.Get(transport.HeaderUploadOffset))
	assert.Equal(t, transport.ContentTypeOffsetOctetStream, patchHeader.Get(transport.HeaderContentType))
	assert.Equal(t, transport.ProtocolVersion, patchHeader.Get(transport.HeaderTusResumable))
	assert.Len(t, extra, 1)
}

func TestUpload_FatalTransportError(t *testing.T) {
	heads := 0
	exchanger := exchangerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
		heads++
		return nil, &transport.TransportError{Op: "HEAD", URL: req.URL, Err: errors.New("no such host")}
	})
	uploader, err := New(chunkConfig(50), exchanger, nil, log.NewLogger())
	require.NoError(t, err)

	_, err = uploader.Upload(context.Background(), "http://localhost/files/1", bytes.NewReader(randomData(10)), nil)
	require.Error(t, err)

	var transportErr *transport.TransportError
	assert.True(t, errors.As(err, &transportErr))
	assert.Equal(t, 1, heads)
}

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
	}{
		{name: "zero chunk size", modify: func(c *Config) { c.ChunkSize = 0 }},
		{name: "unknown checksum", modify: func(c *Config) { c.ChecksumAlgorithm = "crc32" }},
		{name: "negative resumes", modify: func(c *Config) { c.MaxResumes = -1 }},
		{name: "negative wait", modify: func(c *Config) { c.ResumeWait = -1 }},
		{name: "negative offset retries", modify: func(c *Config) { c.OffsetQueryRetries = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.modify(&config)

			_, err := New(config, nil, nil, log.NewLogger())
			assert.Error(t, err)
		})
	}

	assert.NoError(t, DefaultConfig().Validate())
}
