// Package engine implements the content-addressed chunked upload and
// assembly pipeline.
//
// A batch flows strictly downward: artifacts are chunked and deduplicated
// into a shared index, the server is asked which chunks it is missing,
// missing chunks are uploaded under bounded concurrency with retries, then
// one assembly job per artifact is submitted and polled to a terminal state.
// The only consumer-facing return value is the BatchResult.
package engine

import (
	"errors"
	"fmt"
)

// Sentinel errors for upload failure classification.
// Use errors.Is(err, ErrXxx) for typed assertions.
var (
	// ErrChunkUploadFailed indicates a chunk exhausted its upload retries.
	ErrChunkUploadFailed = errors.New("chunk upload failed")

	// ErrChecksumMismatch indicates the locally computed artifact checksum
	// does not match the descriptor's expected checksum. This is a
	// client-side defect or a file changed underfoot, never retried.
	ErrChecksumMismatch = errors.New("artifact checksum mismatch")

	// ErrAssemblyLost indicates the server reported not_found for an
	// assembly a second time, after one automatic restart.
	ErrAssemblyLost = errors.New("assembly lost on server")

	// ErrArtifactTooLarge indicates an artifact exceeds the size ceiling.
	// The artifact is skipped with a warning; the batch continues.
	ErrArtifactTooLarge = errors.New("artifact exceeds size limit")
)

// UploadError wraps the final failure of one chunk after all attempts.
// It preserves the underlying error in the chain for errors.As inspection.
type UploadError struct {
	// Checksum identifies the failed chunk.
	Checksum string
	// Attempts is the number of attempts made.
	Attempts int
	// Err is the last attempt's error.
	Err error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("chunk %s: %v after %d attempts: %v",
		e.Checksum, ErrChunkUploadFailed, e.Attempts, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrChunkUploadFailed) hold for UploadError values.
func (e *UploadError) Is(target error) bool {
	return target == ErrChunkUploadFailed
}
