package chunkuploader

import (
	"sync"
	"time"
)

// Stats tracks the chunks, bytes and resumes of one upload.
type Stats struct {
	sum            time.Duration
	finishedChunks int64
	bytesSent      int64
	resumes        int
	mu             sync.Mutex
}

// NewStats creates a new Stats instance.
func NewStats() *Stats {
	return &Stats{}
}

// Update records an accepted chunk.
func (s *Stats) Update(d time.Duration, size int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sum += d
	s.finishedChunks++
	s.bytesSent += size
}

// Resume records a resume after a connection reset.
func (s *Stats) Resume() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resumes++
	return s.resumes
}

// Average returns the average duration of accepted chunks.
func (s *Stats) Average() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finishedChunks == 0 {
		return 0
	}
	return s.sum / time.Duration(s.finishedChunks)
}

// FinishedCount returns the number of accepted chunks.
func (s *Stats) FinishedCount() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finishedChunks
}

// BytesSent returns the number of bytes in accepted chunks.
func (s *Stats) BytesSent() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bytesSent
}

// Resumes returns the number of resumes.
func (s *Stats) Resumes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resumes
}

// TotalDuration returns the sum of all chunk durations.
func (s *Stats) TotalDuration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sum
}
