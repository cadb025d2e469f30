// Package chunk implements content-addressed chunking of upload artifacts.
//
// Artifacts are sliced into fixed-size byte ranges, each identified by a
// cryptographic digest. Slicing is deterministic: the same bytes with the
// same chunk size always yield the same ordered checksum list, which is what
// makes dedup and safe resumption possible.
package chunk

import (
	"crypto/sha1"
	"crypto/sha256"
	"fmt"
	"hash"
)

// Algorithm selects the digest used for chunk and artifact checksums.
// The server advertises which algorithm it addresses chunks by.
type Algorithm string

// Supported checksum algorithms.
const (
	SHA1   Algorithm = "sha1"
	SHA256 Algorithm = "sha256"
)

// New returns a fresh hash instance for the algorithm.
func (a Algorithm) New() (hash.Hash, error) {
	switch a {
	case SHA1:
		return sha1.New(), nil
	case SHA256:
		return sha256.New(), nil
	default:
		return nil, fmt.Errorf("unsupported checksum algorithm %q", a)
	}
}

// Valid reports whether the algorithm is supported by this client.
func (a Algorithm) Valid() bool {
	_, err := a.New()
	return err == nil
}
