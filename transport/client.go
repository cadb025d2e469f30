package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/pithecene-io/sluice/types"
)

// missingChecksumsPerPage bounds how many checksums one diff request
// carries. Checksums travel as query parameters, so the page size keeps the
// URL within common proxy limits.
const missingChecksumsPerPage = 100

// Client implements the chunked-upload wire protocol on top of a Transport.
// It is stateless; one instance serves a whole batch across all workers.
type Client struct {
	t       Transport
	org     string
	project string
}

// NewClient creates a protocol client for the given org and project.
func NewClient(t Transport, org, project string) *Client {
	return &Client{t: t, org: org, project: project}
}

// ChunkUploadOptions fetches the server's chunked-upload configuration.
func (c *Client) ChunkUploadOptions(ctx context.Context) (*ServerOptions, error) {
	resp, err := c.t.Do(ctx, &Request{
		Method: http.MethodGet,
		Path:   fmt.Sprintf("/organizations/%s/chunk-upload/", url.PathEscape(c.org)),
	})
	if err != nil {
		return nil, fmt.Errorf("fetch chunk upload options: %w", err)
	}

	var opts ServerOptions
	if err := json.Unmarshal(resp.Body, &opts); err != nil {
		return nil, fmt.Errorf("decode chunk upload options: %w", err)
	}
	if err := opts.Normalize(); err != nil {
		return nil, fmt.Errorf("invalid chunk upload options: %w", err)
	}
	return &opts, nil
}

// MissingChecksums asks the server which of the given checksums it does not
// hold. Requests are paginated; the union of pages is returned. Errors are
// reported as-is; callers that need conservative degradation handle it
// themselves.
func (c *Client) MissingChecksums(ctx context.Context, checksums []string) ([]string, error) {
	var missing []string

	for start := 0; start < len(checksums); start += missingChecksumsPerPage {
		end := min(start+missingChecksumsPerPage, len(checksums))

		q := url.Values{}
		for _, sum := range checksums[start:end] {
			q.Add("checksums", sum)
		}

		resp, err := c.t.Do(ctx, &Request{
			Method: http.MethodGet,
			Path: fmt.Sprintf("/projects/%s/%s/files/difs/unknown/?%s",
				url.PathEscape(c.org), url.PathEscape(c.project), q.Encode()),
		})
		if err != nil {
			return nil, fmt.Errorf("diff checksums: %w", err)
		}

		var page struct {
			Missing []string `json:"missing"`
		}
		if err := json.Unmarshal(resp.Body, &page); err != nil {
			return nil, fmt.Errorf("decode diff response: %w", err)
		}
		missing = append(missing, page.Missing...)
	}

	return missing, nil
}

// ChunkPayload is one chunk ready for the wire.
type ChunkPayload struct {
	// Checksum addresses the chunk; the server stores it under this key.
	Checksum string
	// Data is the raw (uncompressed) chunk bytes.
	Data []byte
}

// UploadChunks sends a batch of chunks as one multipart request to the
// upload endpoint from ServerOptions. Each part is compressed with the
// negotiated scheme and named by the compression's field name, with the
// checksum as the file name.
func (c *Client) UploadChunks(ctx context.Context, uploadURL string, chunks []ChunkPayload, compression Compression) error {
	if len(chunks) == 0 {
		return nil
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	for _, ch := range chunks {
		compressed, err := compression.Compress(ch.Data)
		if err != nil {
			return err
		}
		part, err := form.CreateFormFile(compression.FieldName(), ch.Checksum)
		if err != nil {
			return fmt.Errorf("build upload form: %w", err)
		}
		if _, err := part.Write(compressed); err != nil {
			return fmt.Errorf("build upload form: %w", err)
		}
	}
	if err := form.Close(); err != nil {
		return fmt.Errorf("build upload form: %w", err)
	}

	header := http.Header{}
	header.Set("Content-Type", form.FormDataContentType())

	_, err := c.t.Do(ctx, &Request{
		Method: http.MethodPost,
		Path:   uploadURL,
		Body:   body.Bytes(),
		Header: header,
	})
	if err != nil {
		return fmt.Errorf("upload chunks: %w", err)
	}
	return nil
}

// Manifest is the per-artifact assemble request: the ordered chunk checksum
// list plus metadata. Keyed by artifact checksum in the request map.
type Manifest struct {
	// Name is the artifact display name.
	Name string `json:"name"`
	// DebugID is included when known and the server supports debug ids.
	DebugID string `json:"debug_id,omitempty"`
	// Chunks is the ordered chunk checksum list.
	Chunks []string `json:"chunks"`
}

// AssemblyResponse is the server's per-artifact assemble/poll answer.
type AssemblyResponse struct {
	// State is the assembly state.
	State types.AssemblyState `json:"state"`
	// MissingChunks lists chunks the server still needs, triggering one
	// more upload round.
	MissingChunks []string `json:"missingChunks"`
	// Detail is a human-readable explanation for error states.
	Detail string `json:"detail,omitempty"`
}

// Assemble submits manifests for assembly, keyed by artifact checksum, and
// returns the per-artifact state. Polling is the same request repeated: the
// server answers with the current state for every known checksum.
func (c *Client) Assemble(ctx context.Context, manifests map[string]Manifest) (map[string]AssemblyResponse, error) {
	body, err := json.Marshal(manifests)
	if err != nil {
		return nil, fmt.Errorf("encode assemble request: %w", err)
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")

	resp, err := c.t.Do(ctx, &Request{
		Method: http.MethodPost,
		Path: fmt.Sprintf("/projects/%s/%s/files/difs/assemble/",
			url.PathEscape(c.org), url.PathEscape(c.project)),
		Body:   body,
		Header: header,
	})
	if err != nil {
		return nil, fmt.Errorf("assemble: %w", err)
	}

	var out map[string]AssemblyResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, fmt.Errorf("decode assemble response: %w", err)
	}
	return out, nil
}
