package render

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

type item struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Size   int64  `json:"size"`
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"json", FormatJSON, false},
		{"JSON", FormatJSON, false},
		{"table", FormatTable, false},
		{"yaml", FormatYAML, false},
		{"", "", false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRenderJSON(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatJSON, &buf)
	if err := r.Render(item{Name: "lib.so", Status: "ok", Size: 42}); err != nil {
		t.Fatal(err)
	}

	var got item
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if got.Name != "lib.so" || got.Status != "ok" {
		t.Errorf("got %+v", got)
	}
}

func TestRenderSliceTable(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatTable, &buf)
	err := r.Render([]item{
		{Name: "a.so", Status: "ok", Size: 1},
		{Name: "b.so", Status: "failed", Size: 2},
	})
	if err != nil {
		t.Fatal(err)
	}

	out := buf.String()
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want header + 2 rows:\n%s", len(lines), out)
	}
	if !strings.Contains(lines[0], "name") || !strings.Contains(lines[0], "status") {
		t.Errorf("header missing json tag names: %q", lines[0])
	}
	if !strings.Contains(lines[2], "failed") {
		t.Errorf("row content missing: %q", lines[2])
	}
}

func TestRenderEmptySliceTable(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatTable, &buf)
	if err := r.Render([]item{}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "(no results)") {
		t.Errorf("got %q", buf.String())
	}
}

func TestRenderStructTableUsesKeyValueRows(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatTable, &buf)
	if err := r.Render(item{Name: "lib.so", Status: "ok"}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "name:") {
		t.Errorf("got %q", buf.String())
	}
}

func TestRenderYAML(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatYAML, &buf)
	if err := r.Render(map[string]string{"state": "ok"}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "state: ok") {
		t.Errorf("got %q", buf.String())
	}
}
