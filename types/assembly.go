package types

// AssemblyState is the server-side processing state of one artifact.
// Driven exclusively by server responses; the poll loop is the only mutator.
type AssemblyState string

// Assembly state constants, matching the server wire values.
const (
	// AssemblyCreated means the assemble request was accepted but
	// processing has not started.
	AssemblyCreated AssemblyState = "created"
	// AssemblyInProgress means the server is assembling the artifact.
	AssemblyInProgress AssemblyState = "assembling"
	// AssemblyOk is the successful terminal state.
	AssemblyOk AssemblyState = "ok"
	// AssemblyError is the failed terminal state; Detail carries the reason.
	AssemblyError AssemblyState = "error"
	// AssemblyNotFound means the server lost track of the assembly,
	// typically after chunk expiry.
	AssemblyNotFound AssemblyState = "not_found"
)

// IsTerminal returns true once the server will not change the state anymore.
// NotFound is not terminal: the engine restarts the artifact once.
func (s AssemblyState) IsTerminal() bool {
	return s == AssemblyOk || s == AssemblyError
}

// IsPending returns true while the artifact is still being processed.
func (s AssemblyState) IsPending() bool {
	return !s.IsTerminal()
}

// IsErr returns true for states that count against the batch.
func (s AssemblyState) IsErr() bool {
	return s == AssemblyError || s == AssemblyNotFound
}

// OutcomeStatus is the final client-side disposition of one artifact.
type OutcomeStatus string

// Outcome status constants.
const (
	// OutcomeOk means the server finished processing the artifact.
	OutcomeOk OutcomeStatus = "ok"
	// OutcomeAccepted means the artifact was submitted without waiting
	// for processing (fire-and-forget) or the wait ceiling expired while
	// the server was still working. Counts as success.
	OutcomeAccepted OutcomeStatus = "accepted"
	// OutcomeSkipped means the artifact was excluded before upload
	// (size limit). Counts as success with a warning.
	OutcomeSkipped OutcomeStatus = "skipped"
	// OutcomeUploadFailed means chunk uploads for this artifact
	// exhausted their retries.
	OutcomeUploadFailed OutcomeStatus = "upload_failed"
	// OutcomeAssemblyFailed means the server rejected the content.
	OutcomeAssemblyFailed OutcomeStatus = "assembly_failed"
)

// Failed reports whether this status fails the batch.
func (s OutcomeStatus) Failed() bool {
	return s == OutcomeUploadFailed || s == OutcomeAssemblyFailed
}

// ArtifactOutcome is the final record for one artifact in a batch.
type ArtifactOutcome struct {
	// Name is the artifact display name.
	Name string `msgpack:"name"`
	// Checksum is the hex whole-artifact checksum.
	Checksum string `msgpack:"checksum"`
	// DebugID is the artifact debug id, when known.
	DebugID string `msgpack:"debug_id,omitempty"`
	// Status is the final disposition.
	Status OutcomeStatus `msgpack:"status"`
	// Detail is the server-provided or client-side failure reason.
	Detail string `msgpack:"detail,omitempty"`
}

// BatchResult aggregates every artifact's final (or time-boxed) status.
type BatchResult struct {
	// BatchID is the batch identifier.
	BatchID string `msgpack:"batch_id"`
	// Outcomes holds one entry per artifact, in input order.
	Outcomes []ArtifactOutcome `msgpack:"outcomes"`
	// ChunksUploaded is the number of chunk payloads sent this batch.
	ChunksUploaded int64 `msgpack:"chunks_uploaded"`
	// ChunksDeduplicated is the number of distinct chunks that were
	// already known (server-side or within the batch) and never sent.
	ChunksDeduplicated int64 `msgpack:"chunks_deduplicated"`
	// ChunksFailed is the number of distinct chunks that exhausted retries.
	ChunksFailed int64 `msgpack:"chunks_failed"`
	// BytesUploaded is the total payload bytes sent (pre-compression).
	BytesUploaded int64 `msgpack:"bytes_uploaded"`
	// DurationMs is the wall-clock batch duration in milliseconds.
	DurationMs int64 `msgpack:"duration_ms"`
}

// Failed reports whether the batch as a whole failed: any artifact in a
// failed outcome fails the batch; Accepted and Skipped do not.
func (r *BatchResult) Failed() bool {
	for _, o := range r.Outcomes {
		if o.Status.Failed() {
			return true
		}
	}
	return false
}
