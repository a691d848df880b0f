package chunkuploader

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// Source is the data of an upload. *bytes.Reader satisfies it.
type Source interface {
	io.ReaderAt
	Size() int64
}

// FileSource reads an upload from a file on disk.
type FileSource struct {
	file *os.File
	size int64
}

// NewFileSource opens the file at path. The caller must Close it.
func NewFileSource(path string) (*FileSource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if info.IsDir() {
		_ = file.Close()
		return nil, fmt.Errorf("%s is a directory", path)
	}

	return &FileSource{file: file, size: info.Size()}, nil
}

// ReadAt reads from the underlying file.
func (s *FileSource) ReadAt(p []byte, off int64) (int, error) {
	return s.file.ReadAt(p, off)
}

// Size returns the size of the file when it was opened.
func (s *FileSource) Size() int64 {
	return s.size
}

// Name returns the path of the file.
func (s *FileSource) Name() string {
	return s.file.Name()
}

// Close closes the underlying file.
func (s *FileSource) Close() error {
	if s.file != nil {
		return s.file.Close()
	}
	return nil
}

// ReadSeekerSource serves reads from a stream that can seek.
// Reads are serialized, since every read moves the stream position.
type ReadSeekerSource struct {
	rs   io.ReadSeeker
	size int64
	mu   sync.Mutex
}

// NewReadSeekerSource measures the stream by seeking to its end.
func NewReadSeekerSource(rs io.ReadSeeker) (*ReadSeekerSource, error) {
	size, err := rs.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("seek to end of stream: %w", err)
	}
	return &ReadSeekerSource{rs: rs, size: size}, nil
}

// ReadAt seeks to off and reads len(p) bytes.
func (s *ReadSeekerSource) ReadAt(p []byte, off int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if off >= s.size {
		return 0, io.EOF
	}
	if _, err := s.rs.Seek(off, io.SeekStart); err != nil {
		return 0, fmt.Errorf("seek to position %d: %w", off, err)
	}

	n, err := io.ReadFull(s.rs, p)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = io.EOF
	}
	return n, err
}

// Size returns the size of the stream.
func (s *ReadSeekerSource) Size() int64 {
	return s.size
}

// readWindow reads exactly size bytes at offset.
func readWindow(src Source, offset, size int64) ([]byte, error) {
	buf := make([]byte, size)
	n, err := src.ReadAt(buf, offset)
	if int64(n) == size {
		return buf, nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return nil, fmt.Errorf("read %d bytes at offset %d: %w", size, offset, err)
}
