package report

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/pithecene-io/sluice/types"
)

func sampleResult() *types.BatchResult {
	return &types.BatchResult{
		BatchID: "batch-42",
		Outcomes: []types.ArtifactOutcome{
			{Name: "lib.so", Checksum: "abc", Status: types.OutcomeOk},
			{Name: "app.dSYM", Checksum: "def", Status: types.OutcomeUploadFailed, Detail: "rejected"},
		},
		ChunksUploaded:     5,
		ChunksDeduplicated: 3,
		BytesUploaded:      4096,
		DurationMs:         1200,
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.report")
	meta := &types.BatchMeta{BatchID: "batch-42", Org: "acme", Project: "api"}

	if err := Write(path, New(meta, sampleResult())); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Org != "acme" || got.Project != "api" {
		t.Errorf("identity = %s/%s, want acme/api", got.Org, got.Project)
	}
	if got.Result.BatchID != "batch-42" {
		t.Errorf("batch id = %s", got.Result.BatchID)
	}
	if len(got.Result.Outcomes) != 2 {
		t.Fatalf("outcomes = %d, want 2", len(got.Result.Outcomes))
	}
	if got.Result.Outcomes[1].Detail != "rejected" {
		t.Errorf("detail = %q", got.Result.Outcomes[1].Detail)
	}
	if !got.Result.Failed() {
		t.Error("result with a failed outcome must report failed")
	}
	if got.CreatedAt == "" {
		t.Error("missing created_at")
	}
}

func TestReadRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage")
	if err := os.WriteFile(path, []byte("not msgpack at all"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Read(path)
	if !errors.Is(err, ErrBadReport) {
		t.Fatalf("err = %v, want ErrBadReport", err)
	}
}

func TestReadRejectsMissingFile(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "absent"))
	if err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestWriteLeavesNoTempOnSuccess(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "batch.report")
	meta := &types.BatchMeta{BatchID: "b", Org: "o", Project: "p"}
	if err := Write(path, New(meta, sampleResult())); err != nil {
		t.Fatalf("write: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "batch.report" {
		t.Errorf("leftover files in %s: %v", dir, entries)
	}
}
