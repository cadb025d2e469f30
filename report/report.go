// Package report persists batch results as msgpack files so later
// invocations can inspect what a batch did without the server.
package report

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/pithecene-io/sluice/types"
)

// FormatVersion is bumped on incompatible report layout changes.
const FormatVersion = 1

// ErrBadReport indicates a file that is not a readable batch report.
var ErrBadReport = errors.New("not a batch report")

// Report is the on-disk record of one batch.
type Report struct {
	// Version is the report format version.
	Version int `msgpack:"version"`
	// CreatedAt is the RFC 3339 completion timestamp.
	CreatedAt string `msgpack:"created_at"`
	// Org and Project identify where the batch went.
	Org     string `msgpack:"org"`
	Project string `msgpack:"project"`
	// Result is the batch outcome.
	Result *types.BatchResult `msgpack:"result"`
}

// New builds a report for a finished batch.
func New(meta *types.BatchMeta, result *types.BatchResult) *Report {
	return &Report{
		Version:   FormatVersion,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Org:       meta.Org,
		Project:   meta.Project,
		Result:    result,
	}
}

// Write encodes the report to path. The write goes through a temp file in
// the same directory and a rename, so a crash never leaves a torn report.
func Write(path string, r *Report) error {
	data, err := msgpack.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".report-*")
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write report: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// Read decodes a report from path, validating the format version.
func Read(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}

	var r Report
	if err := msgpack.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadReport, err)
	}
	if r.Version != FormatVersion || r.Result == nil {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrBadReport, r.Version)
	}
	return &r, nil
}
