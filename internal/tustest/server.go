// Package tustest provides an in-memory tus server for tests.
package tustest

import (
	"bytes"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"hash"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
)

// BasePath is the path uploads are created under.
const BasePath = "/files/"

// StatusChecksumMismatch is the status a tus server answers a PATCH with when its checksum does not match.
const StatusChecksumMismatch = 460

// LocationMode controls the Location header of creation responses.
type LocationMode int

const (
	LocationRelative LocationMode = iota
	LocationAbsolute
	LocationNone
)

// Options configures a Server. The zero value is a server with the usual extensions and a relative Location.
type Options struct {
	Location LocationMode
	// Extensions is returned in Tus-Extension. Nil means creation,termination,checksum; empty omits the header.
	Extensions []string
	// ChecksumAlgorithms is returned in Tus-Checksum-Algorithm. Nil means sha1,sha256,sha512,md5.
	ChecksumAlgorithms []string
	MaxSize            int64
	// OptionsStatus is the status of OPTIONS responses. Default: 204
	OptionsStatus int
	// CreateStatus overrides the status of successful creations.
	CreateStatus int
	// StatusOverrides answers every request of a method with a fixed status and no other effect.
	StatusOverrides map[string]int
}

// Upload is the server side state of one upload.
type Upload struct {
	ID       string
	Length   int64
	Metadata string
	Data     []byte
	Deleted  bool
}

// Patch is a PATCH the server accepted (fully or, when reset, partially).
type Patch struct {
	UploadID string
	Offset   int64
	Length   int
	Checksum string
	Reset    bool
}

// RecordedRequest is a request the server received.
type RecordedRequest struct {
	Method string
	Path   string
	Header http.Header
}

// Server is a tus server backed by memory.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	opts     Options
	uploads  map[string]*Upload
	nextID   int
	patches  []Patch
	requests []RecordedRequest
	resets   []int
}

// NewServer starts a server. Call Close when done.
func NewServer(opts Options) *Server {
	s := &Server{
		opts:    opts,
		uploads: map[string]*Upload{},
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// Endpoint is the creation URL.
func (s *Server) Endpoint() string {
	return s.URL + BasePath
}

// ResetPatches makes the next PATCH requests store only keep[i] bytes of their body and then drop the connection.
func (s *Server) ResetPatches(keep ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets = append(s.resets, keep...)
}

// AddUpload registers an upload that already holds data.
func (s *Server) AddUpload(length int64, data []byte) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.newUpload(length, "")
	u.Data = append([]byte(nil), data...)
	return s.URL + BasePath + u.ID
}

// Upload returns a copy of the upload with the given ID or URL.
func (s *Server) Upload(idOrURL string) (Upload, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.uploads[uploadID(idOrURL)]
	if !ok {
		return Upload{}, false
	}
	c := *u
	c.Data = append([]byte(nil), u.Data...)
	return c, true
}

// Patches returns the PATCH requests received so far.
func (s *Server) Patches() []Patch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Patch(nil), s.patches...)
}

// Requests returns every request received so far.
func (s *Server) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RecordedRequest(nil), s.requests...)
}

// CountRequests counts the requests received with the given method.
func (s *Server) CountRequests(method string) int {
	count := 0
	for _, r := range s.Requests() {
		if r.Method == method {
			count++
		}
	}
	return count
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests = append(s.requests, RecordedRequest{Method: r.Method, Path: r.URL.Path, Header: r.Header.Clone()})
	override, overridden := s.opts.StatusOverrides[r.Method]
	s.mu.Unlock()

	w.Header().Set("Tus-Resumable", "1.0.0")

	if overridden {
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(override)
		return
	}

	if r.Method == http.MethodOptions {
		s.handleOptions(w)
		return
	}
	if r.Header.Get("Tus-Resumable") != "1.0.0" {
		w.Header().Set("Tus-Version", "1.0.0")
		w.WriteHeader(http.StatusPreconditionFailed)
		return
	}

	if !strings.HasPrefix(r.URL.Path, BasePath) {
		http.NotFound(w, r)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, BasePath)

	switch {
	case r.Method == http.MethodPost && id == "":
		s.handleCreate(w, r)
	case r.Method == http.MethodHead:
		s.handleHead(w, id)
	case r.Method == http.MethodPatch:
		s.handlePatch(w, r, id)
	case r.Method == http.MethodGet:
		s.handleGet(w, id)
	case r.Method == http.MethodDelete:
		s.handleDelete(w, id)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleOptions(w http.ResponseWriter) {
	extensions := s.opts.Extensions
	if extensions == nil {
		extensions = []string{"creation", "termination", "checksum"}
	}
	algorithms := s.opts.ChecksumAlgorithms
	if algorithms == nil {
		algorithms = []string{"sha1", "sha256", "sha512", "md5"}
	}

	w.Header().Set("Tus-Version", "1.0.0,0.2.2")
	if len(extensions) > 0 {
		w.Header().Set("Tus-Extension", strings.Join(extensions, ","))
	}
	if len(algorithms) > 0 {
		w.Header().Set("Tus-Checksum-Algorithm", strings.Join(algorithms, ","))
	}
	if s.opts.MaxSize > 0 {
		w.Header().Set("Tus-Max-Size", strconv.FormatInt(s.opts.MaxSize, 10))
	}

	status := s.opts.OptionsStatus
	if status == 0 {
		status = http.StatusNoContent
	}
	w.WriteHeader(status)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	length, err := strconv.ParseInt(r.Header.Get("Upload-Length"), 10, 64)
	if err != nil || length < 0 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if s.opts.MaxSize > 0 && length > s.opts.MaxSize {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		return
	}

	s.mu.Lock()
	u := s.newUpload(length, r.Header.Get("Upload-Metadata"))
	s.mu.Unlock()

	switch s.opts.Location {
	case LocationRelative:
		w.Header().Set("Location", BasePath+u.ID)
	case LocationAbsolute:
		w.Header().Set("Location", s.URL+BasePath+u.ID)
	}

	status := s.opts.CreateStatus
	if status == 0 {
		status = http.StatusCreated
	}
	w.WriteHeader(status)
}

func (s *Server) handleHead(w http.ResponseWriter, id string) {
	s.mu.Lock()
	u, ok := s.uploads[id]
	var offset, length int64
	var metadata string
	if ok && !u.Deleted {
		offset, length, metadata = int64(len(u.Data)), u.Length, u.Metadata
	} else {
		ok = false
	}
	s.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Upload-Offset", strconv.FormatInt(offset, 10))
	w.Header().Set("Upload-Length", strconv.FormatInt(length, 10))
	if metadata != "" {
		w.Header().Set("Upload-Metadata", metadata)
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handlePatch(w http.ResponseWriter, r *http.Request, id string) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if r.Header.Get("Content-Type") != "application/offset+octet-stream" {
		w.WriteHeader(http.StatusUnsupportedMediaType)
		return
	}
	offset, err := strconv.ParseInt(r.Header.Get("Upload-Offset"), 10, 64)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	checksum := r.Header.Get("Upload-Checksum")

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.uploads[id]
	if !ok || u.Deleted {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if offset != int64(len(u.Data)) {
		w.WriteHeader(http.StatusConflict)
		return
	}
	if offset+int64(len(body)) > u.Length {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		return
	}

	if len(s.resets) > 0 {
		keep := s.resets[0]
		s.resets = s.resets[1:]
		if keep > len(body) {
			keep = len(body)
		}
		u.Data = append(u.Data, body[:keep]...)
		s.patches = append(s.patches, Patch{UploadID: id, Offset: offset, Length: len(body), Checksum: checksum, Reset: true})
		_ = ResetConnection(w)
		return
	}

	if checksum != "" {
		if status := verifyChecksum(checksum, body); status != 0 {
			w.WriteHeader(status)
			return
		}
	}

	u.Data = append(u.Data, body...)
	s.patches = append(s.patches, Patch{UploadID: id, Offset: offset, Length: len(body), Checksum: checksum})

	w.Header().Set("Upload-Offset", strconv.Itoa(len(u.Data)))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGet(w http.ResponseWriter, id string) {
	s.mu.Lock()
	u, ok := s.uploads[id]
	var data []byte
	if ok && !u.Deleted {
		data = append([]byte(nil), u.Data...)
	} else {
		ok = false
	}
	s.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, bytes.NewReader(data))
}

func (s *Server) handleDelete(w http.ResponseWriter, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.uploads[id]
	switch {
	case !ok:
		w.WriteHeader(http.StatusNotFound)
	case u.Deleted:
		w.WriteHeader(http.StatusGone)
	default:
		u.Deleted = true
		u.Data = nil
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) newUpload(length int64, metadata string) *Upload {
	s.nextID++
	u := &Upload{
		ID:       fmt.Sprintf("upload-%d", s.nextID),
		Length:   length,
		Metadata: metadata,
	}
	s.uploads[u.ID] = u
	return u
}

// verifyChecksum returns 0 when the checksum header matches body, or the status to answer with.
func verifyChecksum(header string, body []byte) int {
	algorithm, encoded, ok := strings.Cut(header, " ")
	if !ok {
		return http.StatusBadRequest
	}
	h := newHash(algorithm)
	if h == nil {
		return http.StatusBadRequest
	}
	h.Write(body)

	if base64.StdEncoding.EncodeToString(h.Sum(nil)) != encoded {
		return StatusChecksumMismatch
	}
	return 0
}

// Checksum returns the Upload-Checksum value a client should send for body.
func Checksum(algorithm string, body []byte) string {
	h := newHash(algorithm)
	h.Write(body)
	return algorithm + " " + base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func newHash(algorithm string) hash.Hash {
	switch algorithm {
	case "sha1":
		return sha1.New()
	case "sha256":
		return sha256.New()
	case "sha512":
		return sha512.New()
	case "md5":
		return md5.New()
	}
	return nil
}

func uploadID(idOrURL string) string {
	if i := strings.LastIndex(idOrURL, "/"); i >= 0 {
		return idOrURL[i+1:]
	}
	return idOrURL
}
