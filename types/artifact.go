//nolint:revive // types is a common Go package naming convention
package types

// ArtifactKind classifies what an artifact is to the server.
// It is metadata only; the engine treats all kinds identically.
type ArtifactKind string

// Artifact kind constants.
const (
	KindDebugFile ArtifactKind = "debug_file"
	KindSource    ArtifactKind = "source"
	KindBundle    ArtifactKind = "bundle"
)

// Artifact describes a single logical file to upload. The descriptor is
// produced by upstream tooling (format detection, debug-id extraction) and is
// immutable once the batch starts.
type Artifact struct {
	// LocalPath is the absolute path to the file on disk.
	LocalPath string `msgpack:"local_path" yaml:"path"`
	// Name is the display name sent to the server (often a relative path).
	Name string `msgpack:"name" yaml:"name"`
	// Size is the file size in bytes.
	Size int64 `msgpack:"size" yaml:"size"`
	// Checksum is the expected whole-file digest, when upstream tooling
	// already computed one. The engine recomputes the digest while chunking
	// and treats a mismatch as fatal for the artifact. Empty means
	// "unverified".
	Checksum string `msgpack:"checksum,omitempty" yaml:"checksum,omitempty"`
	// DebugID correlates a symbol file with the binary it describes.
	// Opaque to the engine; empty when unknown.
	DebugID string `msgpack:"debug_id,omitempty" yaml:"debug_id,omitempty"`
	// Kind is the artifact classification.
	Kind ArtifactKind `msgpack:"kind" yaml:"kind"`
}

// BatchMeta identifies one upload batch. Carried as logger context the same
// way run identity is carried through a run.
type BatchMeta struct {
	// BatchID is the unique identifier for this batch invocation.
	BatchID string
	// Org is the organization slug on the server.
	Org string
	// Project is the project slug on the server.
	Project string
}
