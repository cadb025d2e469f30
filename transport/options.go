package transport

import "github.com/pithecene-io/sluice/chunk"

// Capability names a server feature relevant to chunked upload.
type Capability string

// Known capabilities. Unknown values from the server are carried verbatim
// and simply never match.
const (
	CapDebugFiles Capability = "debug_files"
	CapSources    Capability = "sources"
	CapBundles    Capability = "artifact_bundles"
	CapDebugIDs   Capability = "debug_ids"
)

// ServerOptions is the server configuration for chunked uploads, fetched
// once per batch. Server values take precedence over local defaults.
type ServerOptions struct {
	// URL is the chunk upload endpoint, possibly on a separate host.
	URL string `json:"url"`
	// ChunkSize is the server-preferred chunk size in bytes.
	ChunkSize int64 `json:"chunkSize"`
	// MaxRequestSize bounds the total payload bytes per upload request.
	MaxRequestSize int64 `json:"maxRequestSize"`
	// MaxFileSize is the hard per-artifact size ceiling; 0 means no limit.
	MaxFileSize int64 `json:"maxFileSize"`
	// MaxWait caps blocking-mode polling, in seconds; 0 means no server cap.
	MaxWait int64 `json:"maxWait"`
	// Concurrency is the server-suggested number of parallel uploads.
	Concurrency int `json:"concurrency"`
	// HashAlgorithm is the digest chunks are addressed by.
	HashAlgorithm chunk.Algorithm `json:"hashAlgorithm"`
	// Compression lists accepted compression schemes.
	Compression []string `json:"compression"`
	// Accept lists server capabilities.
	Accept []Capability `json:"accept"`
}

// Supports reports whether the server advertises the capability.
func (o *ServerOptions) Supports(c Capability) bool {
	for _, a := range o.Accept {
		if a == c {
			return true
		}
	}
	return false
}

// defaults for fields the server left unset.
const (
	defaultMaxRequestSize = 32 * 1024 * 1024
	defaultConcurrency    = 4
)

// Normalize fills unset fields with client defaults and validates the
// hash algorithm.
func (o *ServerOptions) Normalize() error {
	if o.ChunkSize <= 0 {
		o.ChunkSize = chunk.DefaultChunkSize
	}
	if o.MaxRequestSize <= 0 {
		o.MaxRequestSize = defaultMaxRequestSize
	}
	if o.Concurrency <= 0 {
		o.Concurrency = defaultConcurrency
	}
	if o.HashAlgorithm == "" {
		o.HashAlgorithm = chunk.SHA1
	}
	if _, err := o.HashAlgorithm.New(); err != nil {
		return err
	}
	return nil
}
