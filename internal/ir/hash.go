package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
)

// ChunkSize bounds a single read while hashing a payload stream, so a large
// payload is never read into memory at once.
const ChunkSize = 10_000_000

// digestDomain prefixes every payload hash. The version suffix enables
// future algorithm migration.
const digestDomain = "chartgen/payload/v1/"

// Digest is the lowercase hex SHA-256 identifying a payload within a Kind.
type Digest string

// Short returns an abbreviated digest for log output.
func (d Digest) Short() string {
	if len(d) > 12 {
		return string(d[:12])
	}
	return string(d)
}

// NewHasher returns a SHA-256 hash already primed with the domain for kind.
// Format: SHA256("chartgen/payload/v1/" + kind + 0x00 + payload)
// The null byte separator prevents domain/data boundary ambiguity.
func NewHasher(kind Kind) hash.Hash {
	h := sha256.New()
	h.Write([]byte(digestDomain + string(kind)))
	h.Write([]byte{0x00})
	return h
}

// SumDigest finalizes a hasher created by NewHasher.
func SumDigest(h hash.Hash) Digest {
	return Digest(hex.EncodeToString(h.Sum(nil)))
}

// DigestReader hashes r in ChunkSize reads.
func DigestReader(kind Kind, r io.Reader) (Digest, error) {
	h := NewHasher(kind)
	if _, err := CopyChunked(h, r); err != nil {
		return "", fmt.Errorf("DigestReader: %w", err)
	}
	return SumDigest(h), nil
}

// CopyChunked copies src to dst reading at most ChunkSize bytes at a time.
// The wrappers hide WriterTo/ReaderFrom so io.CopyBuffer cannot bypass the
// buffer with a single unbounded write.
func CopyChunked(dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, ChunkSize)
	return io.CopyBuffer(struct{ io.Writer }{dst}, struct{ io.Reader }{src}, buf)
}
