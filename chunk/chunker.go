package chunk

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/pithecene-io/sluice/iox"
	"github.com/pithecene-io/sluice/types"
)

// DefaultChunkSize is used when the server does not advertise a chunk size.
const DefaultChunkSize int64 = 8 * 1024 * 1024

// Descriptor identifies one chunk of an artifact: its content digest and the
// byte range it came from. The descriptor sequence for an artifact is ordered,
// gap-free and non-overlapping.
type Descriptor struct {
	// Checksum is the hex digest of the chunk bytes.
	Checksum string
	// Offset is the chunk's byte offset within the artifact.
	Offset int64
	// Length is the chunk length in bytes. Only the final chunk of an
	// artifact may be shorter than the chunk size.
	Length int64
}

// Chunked is an artifact together with its computed checksums. It does not
// retain the artifact bytes; chunk payloads are re-read from disk on demand
// so that resident memory stays bounded by upload concurrency.
type Chunked struct {
	// Artifact is the source descriptor.
	Artifact *types.Artifact
	// Checksum is the hex digest of the whole artifact.
	Checksum string
	// Descriptors holds the ordered chunk descriptors. Empty for an
	// empty artifact, which still carries an artifact checksum.
	Descriptors []Descriptor

	chunkSize int64
}

// NewFromFile chunks the artifact at its LocalPath in a single streaming
// pass, computing the per-chunk digests and the whole-artifact digest.
func NewFromFile(art *types.Artifact, chunkSize int64, algo Algorithm) (*Chunked, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk %s: invalid chunk size %d", art.Name, chunkSize)
	}

	f, err := os.Open(art.LocalPath)
	if err != nil {
		return nil, fmt.Errorf("chunk %s: %w", art.Name, err)
	}
	defer iox.DiscardClose(f)

	total, err := algo.New()
	if err != nil {
		return nil, err
	}

	var descriptors []Descriptor
	var offset int64
	buf := make([]byte, chunkSize)

	for {
		n, readErr := io.ReadFull(f, buf)
		if n > 0 {
			part, hashErr := algo.New()
			if hashErr != nil {
				return nil, hashErr
			}
			part.Write(buf[:n])
			total.Write(buf[:n])

			descriptors = append(descriptors, Descriptor{
				Checksum: hex.EncodeToString(part.Sum(nil)),
				Offset:   offset,
				Length:   int64(n),
			})
			offset += int64(n)
		}

		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			break
		}
		if readErr != nil {
			return nil, fmt.Errorf("chunk %s: %w", art.Name, readErr)
		}
	}

	return &Chunked{
		Artifact:    art,
		Checksum:    hex.EncodeToString(total.Sum(nil)),
		Descriptors: descriptors,
		chunkSize:   chunkSize,
	}, nil
}

// ChunkSize returns the size bound this artifact was chunked with.
func (c *Chunked) ChunkSize() int64 {
	return c.chunkSize
}

// Checksums returns the ordered chunk checksum list, as sent in the
// assembly manifest.
func (c *Chunked) Checksums() []string {
	sums := make([]string, len(c.Descriptors))
	for i, d := range c.Descriptors {
		sums[i] = d.Checksum
	}
	return sums
}

// ReadPayload reads one chunk's bytes back from the artifact file.
// The read is verified against the artifact size implicitly: a short read
// means the file changed since chunking and is reported as an error.
func (c *Chunked) ReadPayload(d Descriptor) ([]byte, error) {
	f, err := os.Open(c.Artifact.LocalPath)
	if err != nil {
		return nil, fmt.Errorf("read chunk %s: %w", d.Checksum, err)
	}
	defer iox.DiscardClose(f)

	buf := make([]byte, d.Length)
	if _, err := f.ReadAt(buf, d.Offset); err != nil {
		return nil, fmt.Errorf("read chunk %s at %d: %w", d.Checksum, d.Offset, err)
	}
	return buf, nil
}
