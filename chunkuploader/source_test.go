package chunkuploader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/bitrise-io/go-tusclient/internal/tustest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSource(t *testing.T) {
	data := randomData(10000)
	path := filepath.Join(t.TempDir(), "data.bin")
	require.NoError(t, os.WriteFile(path, data, 0644))

	src, err := NewFileSource(path)
	require.NoError(t, err)
	defer func() { assert.NoError(t, src.Close()) }()

	assert.Equal(t, int64(10000), src.Size())
	assert.Equal(t, path, src.Name())

	window, err := readWindow(src, 3000, 4000)
	require.NoError(t, err)
	assert.Equal(t, data[3000:7000], window)

	_, err = readWindow(src, 8000, 4000)
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
}

func TestFileSource_Errors(t *testing.T) {
	_, err := NewFileSource(filepath.Join(t.TempDir(), "missing.bin"))
	assert.True(t, errors.Is(err, os.ErrNotExist))

	_, err = NewFileSource(t.TempDir())
	assert.Error(t, err)
}

func TestReadSeekerSource(t *testing.T) {
	data := randomData(5000)

	src, err := NewReadSeekerSource(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, int64(5000), src.Size())

	buf := make([]byte, 1000)
	n, err := src.ReadAt(buf, 4500)
	assert.Equal(t, 500, n)
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, data[4500:], buf[:n])

	window, err := readWindow(src, 1000, 1000)
	require.NoError(t, err)
	assert.Equal(t, data[1000:2000], window)

	_, err = src.ReadAt(buf, 5000)
	assert.Equal(t, io.EOF, err)
}

func TestChecksumAlgorithm_HeaderValue(t *testing.T) {
	tests := []struct {
		algorithm ChecksumAlgorithm
		want      string
	}{
		{algorithm: ChecksumSHA1, want: "sha1 Kq5sNclPz7QV2+lfQIuc6R7oRu0="},
		{algorithm: ChecksumMD5, want: "md5 XrY7u+Ae7tCTyyK7j1rNww=="},
		{algorithm: ChecksumSHA256, want: "sha256 uU0nuZNNPgilLlLX2n2r+sSE7+N6U4DukIj3rOLvzek="},
	}
	for _, tt := range tests {
		t.Run(string(tt.algorithm), func(t *testing.T) {
			got, err := tt.algorithm.HeaderValue([]byte("hello world"))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ChecksumAlgorithm("crc32").HeaderValue(nil)
	assert.Error(t, err)
	assert.False(t, ChecksumAlgorithm("").Supported())
}

func newFakeS3(bucket, key string, data []byte) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/"+bucket+"/"+key {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		switch r.Method {
		case http.MethodHead:
			w.Header().Set("Content-Length", strconv.Itoa(len(data)))
			w.WriteHeader(http.StatusOK)
		case http.MethodGet:
			var start, end int
			if _, err := fmt.Sscanf(r.Header.Get("Range"), "bytes=%d-%d", &start, &end); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			if end >= len(data) {
				end = len(data) - 1
			}
			w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, len(data)))
			w.Header().Set("Content-Length", strconv.Itoa(end-start+1))
			w.WriteHeader(http.StatusPartialContent)
			_, _ = w.Write(data[start : end+1])
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
}

func newFakeS3Client(endpoint string) *s3.Client {
	return s3.New(s3.Options{
		Region:       "us-east-1",
		Credentials:  credentials.NewStaticCredentialsProvider("access-key", "secret-key", ""),
		BaseEndpoint: aws.String(endpoint),
		UsePathStyle: true,
	})
}

func TestS3Source(t *testing.T) {
	data := randomData(10000)
	fake := newFakeS3("uploads", "video.mp4", data)
	defer fake.Close()

	src, err := NewS3Source(context.Background(), newFakeS3Client(fake.URL), "uploads", "video.mp4")
	require.NoError(t, err)
	assert.Equal(t, int64(10000), src.Size())

	window, err := readWindow(src, 2500, 3000)
	require.NoError(t, err)
	assert.Equal(t, data[2500:5500], window)

	buf := make([]byte, 4000)
	n, err := src.ReadAt(buf, 8000)
	assert.Equal(t, 2000, n)
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, data[8000:], buf[:n])
}

func TestS3Source_NotFound(t *testing.T) {
	fake := newFakeS3("uploads", "video.mp4", nil)
	defer fake.Close()

	_, err := NewS3Source(context.Background(), newFakeS3Client(fake.URL), "uploads", "missing.mp4")
	assert.True(t, errors.Is(err, ErrSourceNotFound), "unexpected error: %v", err)

	_, err = NewS3Source(context.Background(), newFakeS3Client(fake.URL), "", "video.mp4")
	assert.Error(t, err)
}

func TestUpload_FromS3Source(t *testing.T) {
	data := randomData(50000)
	fake := newFakeS3("uploads", "archive.tar", data)
	defer fake.Close()

	server := tustest.NewServer(tustest.Options{})
	defer server.Close()
	uploadURL := server.AddUpload(int64(len(data)), nil)

	src, err := NewS3Source(context.Background(), newFakeS3Client(fake.URL), "uploads", "archive.tar")
	require.NoError(t, err)

	result, err := newTestUploader(t, chunkConfig(16*1024)).Upload(context.Background(), uploadURL, src, nil)
	require.NoError(t, err)

	assert.Equal(t, int64(4), result.Chunks)
	upload, _ := server.Upload(uploadURL)
	assert.Equal(t, data, upload.Data)
}

func TestLoadS3Client(t *testing.T) {
	_, err := LoadS3Client(context.Background(), S3Params{}, nil)
	assert.Error(t, err)
}
