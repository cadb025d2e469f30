package chunk

import (
	"sync"
	"sync/atomic"
)

// shardCount is the number of index shards. Sharding by checksum prefix
// avoids one global lock serializing concurrent present-flag updates from
// upload workers.
const shardCount = 16

// Entry is one distinct chunk in the batch. Two byte-identical ranges,
// anywhere in the batch, resolve to the same Entry.
type Entry struct {
	// Checksum is the hex content digest.
	Checksum string
	// Length is the chunk length in bytes.
	Length int64

	// present is true once the chunk is confirmed on the server, either
	// via diff or after a successful upload.
	present atomic.Bool

	// source is the first artifact seen carrying these bytes; payloads
	// are read from it. Identical content yields identical bytes, so any
	// owner would do.
	source     *Chunked
	descriptor Descriptor

	// owners are the indices (into the batch's artifact list) of every
	// artifact containing this chunk. Built single-threaded before upload
	// starts, read-only afterwards.
	owners []int
}

// Present reports whether the chunk is confirmed on the server.
func (e *Entry) Present() bool {
	return e.present.Load()
}

// MarkPresent flips the present flag. Safe for concurrent use; later
// consumers of the same checksum observe the flag and skip re-upload.
func (e *Entry) MarkPresent() {
	e.present.Store(true)
}

// MarkMissing clears the present flag, forcing re-upload. Used when the
// server reports a chunk missing that was diffed or uploaded earlier.
func (e *Entry) MarkMissing() {
	e.present.Store(false)
}

// Owners returns the owning artifact indices.
func (e *Entry) Owners() []int {
	return e.owners
}

// ReadPayload reads the chunk bytes from its source artifact.
func (e *Entry) ReadPayload() ([]byte, error) {
	return e.source.ReadPayload(e.descriptor)
}

// Index is the batch-wide deduplicated chunk map, keyed by checksum.
// Insertion happens once, single-threaded, at batch start; afterwards the
// only mutation is marking entries present, which is lock-free per entry.
type Index struct {
	shards [shardCount]indexShard
	count  int64
}

type indexShard struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	idx := &Index{}
	for i := range idx.shards {
		idx.shards[i].entries = make(map[string]*Entry)
	}
	return idx
}

// shardFor picks a shard by the first checksum byte. Checksums are hex
// digests, so the low bits of the first byte distribute uniformly.
func (x *Index) shardFor(checksum string) *indexShard {
	if checksum == "" {
		return &x.shards[0]
	}
	return &x.shards[checksum[0]%shardCount]
}

// Insert records every chunk of the artifact, merging duplicates. The
// artifactIdx is the artifact's position in the batch input.
func (x *Index) Insert(artifactIdx int, c *Chunked) {
	for _, d := range c.Descriptors {
		s := x.shardFor(d.Checksum)
		s.mu.Lock()
		e, ok := s.entries[d.Checksum]
		if !ok {
			e = &Entry{
				Checksum:   d.Checksum,
				Length:     d.Length,
				source:     c,
				descriptor: d,
			}
			s.entries[d.Checksum] = e
			x.count++
		}
		e.owners = append(e.owners, artifactIdx)
		s.mu.Unlock()
	}
}

// Get returns the entry for a checksum, or nil.
func (x *Index) Get(checksum string) *Entry {
	s := x.shardFor(checksum)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[checksum]
}

// Len returns the number of distinct chunks in the batch.
func (x *Index) Len() int {
	return int(x.count)
}

// Checksums returns every distinct checksum. Order is unspecified.
func (x *Index) Checksums() []string {
	out := make([]string, 0, x.count)
	for i := range x.shards {
		s := &x.shards[i]
		s.mu.RLock()
		for sum := range s.entries {
			out = append(out, sum)
		}
		s.mu.RUnlock()
	}
	return out
}

// Missing returns every entry not yet confirmed on the server.
func (x *Index) Missing() []*Entry {
	var out []*Entry
	for i := range x.shards {
		s := &x.shards[i]
		s.mu.RLock()
		for _, e := range s.entries {
			if !e.Present() {
				out = append(out, e)
			}
		}
		s.mu.RUnlock()
	}
	return out
}

// MarkPresent marks the checksum's entry present, if it exists.
func (x *Index) MarkPresent(checksum string) {
	if e := x.Get(checksum); e != nil {
		e.MarkPresent()
	}
}
