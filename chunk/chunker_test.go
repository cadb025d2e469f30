package chunk

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/pithecene-io/sluice/types"
)

func writeArtifact(t *testing.T, name string, data []byte) *types.Artifact {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return &types.Artifact{
		LocalPath: path,
		Name:      name,
		Size:      int64(len(data)),
		Kind:      types.KindDebugFile,
	}
}

func TestNewFromFile_Deterministic(t *testing.T) {
	data := bytes.Repeat([]byte("abcdefgh"), 1000)
	art := writeArtifact(t, "lib.so", data)

	first, err := NewFromFile(art, 1024, SHA1)
	if err != nil {
		t.Fatalf("chunk: %v", err)
	}
	second, err := NewFromFile(art, 1024, SHA1)
	if err != nil {
		t.Fatalf("chunk: %v", err)
	}

	if first.Checksum != second.Checksum {
		t.Errorf("artifact checksum not deterministic: %s vs %s", first.Checksum, second.Checksum)
	}
	if len(first.Descriptors) != len(second.Descriptors) {
		t.Fatalf("descriptor counts differ: %d vs %d", len(first.Descriptors), len(second.Descriptors))
	}
	for i := range first.Descriptors {
		if first.Descriptors[i] != second.Descriptors[i] {
			t.Errorf("descriptor %d differs: %+v vs %+v", i, first.Descriptors[i], second.Descriptors[i])
		}
	}
}

func TestNewFromFile_ChunkBoundaries(t *testing.T) {
	// 2.5 chunks: expect 3 descriptors, last one short
	data := make([]byte, 2560)
	for i := range data {
		data[i] = byte(i)
	}
	art := writeArtifact(t, "app.dSYM", data)

	c, err := NewFromFile(art, 1024, SHA1)
	if err != nil {
		t.Fatalf("chunk: %v", err)
	}

	if len(c.Descriptors) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(c.Descriptors))
	}
	wantLengths := []int64{1024, 1024, 512}
	var offset int64
	for i, d := range c.Descriptors {
		if d.Length != wantLengths[i] {
			t.Errorf("chunk %d: expected length %d, got %d", i, wantLengths[i], d.Length)
		}
		if d.Offset != offset {
			t.Errorf("chunk %d: expected offset %d, got %d", i, offset, d.Offset)
		}
		offset += d.Length

		sum := sha1.Sum(data[d.Offset : d.Offset+d.Length])
		if want := hex.EncodeToString(sum[:]); d.Checksum != want {
			t.Errorf("chunk %d: checksum mismatch", i)
		}
	}

	total := sha1.Sum(data)
	if want := hex.EncodeToString(total[:]); c.Checksum != want {
		t.Errorf("artifact checksum mismatch: got %s, want %s", c.Checksum, want)
	}
}

func TestNewFromFile_EmptyArtifact(t *testing.T) {
	art := writeArtifact(t, "empty.txt", nil)

	c, err := NewFromFile(art, 1024, SHA1)
	if err != nil {
		t.Fatalf("chunk: %v", err)
	}

	if len(c.Descriptors) != 0 {
		t.Errorf("empty artifact should yield zero chunks, got %d", len(c.Descriptors))
	}
	empty := sha1.Sum(nil)
	if want := hex.EncodeToString(empty[:]); c.Checksum != want {
		t.Errorf("empty artifact still has a checksum: got %s, want %s", c.Checksum, want)
	}
}

func TestNewFromFile_SHA256(t *testing.T) {
	art := writeArtifact(t, "bundle.zip", []byte("payload"))

	c, err := NewFromFile(art, 1024, SHA256)
	if err != nil {
		t.Fatalf("chunk: %v", err)
	}
	if len(c.Checksum) != 64 {
		t.Errorf("expected sha256 hex length 64, got %d", len(c.Checksum))
	}
}

func TestNewFromFile_InvalidChunkSize(t *testing.T) {
	art := writeArtifact(t, "x", []byte("data"))
	if _, err := NewFromFile(art, 0, SHA1); err == nil {
		t.Error("expected error for chunk size 0")
	}
}

func TestReadPayload_RoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte{0xAB}, 3000)
	art := writeArtifact(t, "round.bin", data)

	c, err := NewFromFile(art, 1024, SHA1)
	if err != nil {
		t.Fatalf("chunk: %v", err)
	}

	for i, d := range c.Descriptors {
		payload, err := c.ReadPayload(d)
		if err != nil {
			t.Fatalf("read chunk %d: %v", i, err)
		}
		if !bytes.Equal(payload, data[d.Offset:d.Offset+d.Length]) {
			t.Errorf("chunk %d payload mismatch", i)
		}
	}
}
