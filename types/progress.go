package types

// ProgressKind discriminates progress events emitted by the engine.
type ProgressKind string

// Progress event kinds.
const (
	// ProgressChunkUploaded fires after a chunk payload is accepted.
	ProgressChunkUploaded ProgressKind = "chunk_uploaded"
	// ProgressChunkSkipped fires for each chunk excluded by dedup.
	ProgressChunkSkipped ProgressKind = "chunk_skipped"
	// ProgressArtifactState fires on every observed assembly state change.
	ProgressArtifactState ProgressKind = "artifact_state"
	// ProgressArtifactSkipped fires when an artifact is excluded before
	// upload (size limit).
	ProgressArtifactSkipped ProgressKind = "artifact_skipped"
)

// ProgressEvent is one observation from the engine. Presentation layers
// subscribe via an Observer; the engine itself performs no output.
type ProgressEvent struct {
	// Kind discriminates the event.
	Kind ProgressKind
	// Checksum is the chunk or artifact checksum the event refers to.
	Checksum string
	// ArtifactName is set for artifact-scoped events.
	ArtifactName string
	// Bytes is the payload size for chunk events.
	Bytes int64
	// State is the new assembly state for artifact_state events.
	State AssemblyState
}

// Observer receives progress events. Called synchronously from engine
// goroutines; implementations must be fast and thread-safe. A nil Observer
// is valid and disables progress reporting.
type Observer func(ProgressEvent)

// Emit calls the observer if it is non-nil.
func (o Observer) Emit(ev ProgressEvent) {
	if o != nil {
		o(ev)
	}
}
