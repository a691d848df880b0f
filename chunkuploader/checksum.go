package chunkuploader

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"hash"
)

// ChecksumAlgorithm names a hash of the tus checksum extension.
type ChecksumAlgorithm string

// Supported checksum algorithms.
const (
	ChecksumSHA1   ChecksumAlgorithm = "sha1"
	ChecksumSHA256 ChecksumAlgorithm = "sha256"
	ChecksumSHA512 ChecksumAlgorithm = "sha512"
	ChecksumMD5    ChecksumAlgorithm = "md5"
)

// Supported reports whether the algorithm can be computed.
func (a ChecksumAlgorithm) Supported() bool {
	return a.newHash() != nil
}

// HeaderValue computes the Upload-Checksum value of data: the algorithm name and the base64 encoded digest.
func (a ChecksumAlgorithm) HeaderValue(data []byte) (string, error) {
	h := a.newHash()
	if h == nil {
		return "", fmt.Errorf("unsupported checksum algorithm: %q", a)
	}
	h.Write(data)
	return fmt.Sprintf("%s %s", a, base64.StdEncoding.EncodeToString(h.Sum(nil))), nil
}

func (a ChecksumAlgorithm) newHash() hash.Hash {
	switch a {
	case ChecksumSHA1:
		return sha1.New()
	case ChecksumSHA256:
		return sha256.New()
	case ChecksumSHA512:
		return sha512.New()
	case ChecksumMD5:
		return md5.New()
	}
	return nil
}
