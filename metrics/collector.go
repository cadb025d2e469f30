// Package metrics provides per-batch metrics collection.
//
// The Collector accumulates counters during a single upload batch. It is a
// leaf package with no internal dependencies. All increment methods are
// nil-receiver safe so callers never guard against a missing collector.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all batch metrics.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Chunks
	ChunksUploaded     int64
	ChunksDeduplicated int64
	ChunksFailed       int64
	BytesUploaded      int64
	UploadRetries      int64

	// Artifacts
	ArtifactsOk       int64
	ArtifactsAccepted int64
	ArtifactsSkipped  int64
	ArtifactsFailed   int64

	// Server interactions
	DiffRequests     int64
	UploadRequests   int64
	AssembleRequests int64
	PollRequests     int64

	// Dimensions (informational, set at construction)
	BatchID string
	Org     string
	Project string
}

// Collector accumulates metrics during a single batch.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	chunksUploaded     int64
	chunksDeduplicated int64
	chunksFailed       int64
	bytesUploaded      int64
	uploadRetries      int64

	artifactsOk       int64
	artifactsAccepted int64
	artifactsSkipped  int64
	artifactsFailed   int64

	diffRequests     int64
	uploadRequests   int64
	assembleRequests int64
	pollRequests     int64

	batchID string
	org     string
	project string
}

// NewCollector creates a Collector with dimension labels.
func NewCollector(batchID, org, project string) *Collector {
	return &Collector{
		batchID: batchID,
		org:     org,
		project: project,
	}
}

// --- Chunks ---

// AddChunkUploaded records one accepted chunk payload of the given size.
func (c *Collector) AddChunkUploaded(bytes int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.chunksUploaded++
	c.bytesUploaded += bytes
	c.mu.Unlock()
}

// AddChunksDeduplicated records chunks excluded by dedup (locally repeated
// or already on the server).
func (c *Collector) AddChunksDeduplicated(n int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.chunksDeduplicated += n
	c.mu.Unlock()
}

// IncChunkFailed records a chunk that exhausted its upload retries.
func (c *Collector) IncChunkFailed() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.chunksFailed++
	c.mu.Unlock()
}

// IncUploadRetry records one retried upload attempt.
func (c *Collector) IncUploadRetry() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.uploadRetries++
	c.mu.Unlock()
}

// --- Artifacts ---

// IncArtifactOk records an artifact the server finished processing.
func (c *Collector) IncArtifactOk() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.artifactsOk++
	c.mu.Unlock()
}

// IncArtifactAccepted records an artifact submitted without waiting for a
// terminal state.
func (c *Collector) IncArtifactAccepted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.artifactsAccepted++
	c.mu.Unlock()
}

// IncArtifactSkipped records an artifact excluded before upload.
func (c *Collector) IncArtifactSkipped() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.artifactsSkipped++
	c.mu.Unlock()
}

// IncArtifactFailed records an artifact that failed upload or assembly.
func (c *Collector) IncArtifactFailed() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.artifactsFailed++
	c.mu.Unlock()
}

// --- Server interactions ---

// IncDiffRequest records one missing-checksums request.
func (c *Collector) IncDiffRequest() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.diffRequests++
	c.mu.Unlock()
}

// IncUploadRequest records one chunk upload request (possibly many chunks).
func (c *Collector) IncUploadRequest() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.uploadRequests++
	c.mu.Unlock()
}

// IncAssembleRequest records one assemble submission.
func (c *Collector) IncAssembleRequest() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.assembleRequests++
	c.mu.Unlock()
}

// IncPollRequest records one poll round against the assemble endpoint.
func (c *Collector) IncPollRequest() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.pollRequests++
	c.mu.Unlock()
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
// The returned Snapshot is safe to read concurrently; the Collector can
// continue to be mutated independently.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		ChunksUploaded:     c.chunksUploaded,
		ChunksDeduplicated: c.chunksDeduplicated,
		ChunksFailed:       c.chunksFailed,
		BytesUploaded:      c.bytesUploaded,
		UploadRetries:      c.uploadRetries,

		ArtifactsOk:       c.artifactsOk,
		ArtifactsAccepted: c.artifactsAccepted,
		ArtifactsSkipped:  c.artifactsSkipped,
		ArtifactsFailed:   c.artifactsFailed,

		DiffRequests:     c.diffRequests,
		UploadRequests:   c.uploadRequests,
		AssembleRequests: c.assembleRequests,
		PollRequests:     c.pollRequests,

		BatchID: c.batchID,
		Org:     c.org,
		Project: c.project,
	}
}
