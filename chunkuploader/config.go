package chunkuploader

import (
	"fmt"
	"time"
)

// Config holds configuration for the chunk uploader.
type Config struct {
	// ChunkSize is the maximum number of bytes sent in a single PATCH.
	// Default: 5 MiB
	ChunkSize int64

	// ChecksumAlgorithm is used for the Upload-Checksum header of every chunk.
	// Default: sha1
	ChecksumAlgorithm ChecksumAlgorithm

	// MaxResumes caps how many times an upload resumes after a connection reset.
	// Default: 0, resume as long as the server keeps accepting data
	MaxResumes int

	// ResumeWait is the pause before the offset is queried again after a reset.
	// Default: 0
	ResumeWait time.Duration

	// OffsetQueryRetries is the number of retries of an offset query that hits a connection reset.
	// Default: 3
	OffsetQueryRetries int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		ChunkSize:          5 * 1024 * 1024,
		ChecksumAlgorithm:  ChecksumSHA1,
		MaxResumes:         0,
		ResumeWait:         0,
		OffsetQueryRetries: 3,
	}
}

// Validate checks the configuration for values the uploader cannot work with.
func (c Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.ChunkSize)
	}
	if !c.ChecksumAlgorithm.Supported() {
		return fmt.Errorf("unsupported checksum algorithm: %q", c.ChecksumAlgorithm)
	}
	if c.MaxResumes < 0 {
		return fmt.Errorf("max resumes must not be negative, got %d", c.MaxResumes)
	}
	if c.ResumeWait < 0 {
		return fmt.Errorf("resume wait must not be negative, got %s", c.ResumeWait)
	}
	if c.OffsetQueryRetries < 0 {
		return fmt.Errorf("offset query retries must not be negative, got %d", c.OffsetQueryRetries)
	}
	return nil
}
