package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/sluice/cli/config"
	"github.com/pithecene-io/sluice/engine"
	"github.com/pithecene-io/sluice/types"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "app.so", "binary-bytes")
	writeFile(t, dir, "app.dSYM", "debug-bytes!")

	path := writeFile(t, dir, "manifest.yaml", `
artifacts:
  - path: app.so
    kind: bundle
  - path: app.dSYM
    name: MyApp.dSYM
    debug_id: 1b0f78d1-6ab3-4f21-a09b-d437a778f2c3
`)

	artifacts, err := loadManifest(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(artifacts) != 2 {
		t.Fatalf("artifacts = %d, want 2", len(artifacts))
	}

	first := artifacts[0]
	if first.Name != "app.so" {
		t.Errorf("name default = %q, want base name", first.Name)
	}
	if first.Kind != types.KindBundle {
		t.Errorf("kind = %q", first.Kind)
	}
	if first.Size != int64(len("binary-bytes")) {
		t.Errorf("size = %d", first.Size)
	}
	if !filepath.IsAbs(first.LocalPath) {
		t.Errorf("path not resolved against manifest dir: %q", first.LocalPath)
	}

	second := artifacts[1]
	if second.Name != "MyApp.dSYM" {
		t.Errorf("explicit name lost: %q", second.Name)
	}
	if second.DebugID == "" {
		t.Error("debug id lost")
	}
	if second.Kind != types.KindDebugFile {
		t.Errorf("kind default = %q, want debug_file", second.Kind)
	}
}

func TestLoadManifestErrors(t *testing.T) {
	dir := t.TempDir()

	if _, err := loadManifest(filepath.Join(dir, "absent.yaml")); err == nil {
		t.Error("missing manifest must fail")
	}

	empty := writeFile(t, dir, "empty.yaml", "artifacts: []\n")
	if _, err := loadManifest(empty); err == nil {
		t.Error("empty manifest must fail")
	}

	noPath := writeFile(t, dir, "nopath.yaml", "artifacts:\n  - name: x\n")
	if _, err := loadManifest(noPath); err == nil {
		t.Error("artifact without path must fail")
	}

	ghost := writeFile(t, dir, "ghost.yaml", "artifacts:\n  - path: does-not-exist\n")
	if _, err := loadManifest(ghost); err == nil {
		t.Error("artifact pointing at a missing file must fail")
	}
}

func TestArtifactsFromPaths(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "lib.so", "xxxx")

	artifacts, err := artifactsFromPaths([]string{p})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if artifacts[0].Name != "lib.so" || artifacts[0].Size != 4 {
		t.Errorf("got %+v", artifacts[0])
	}

	if _, err := artifactsFromPaths(nil); err == nil {
		t.Error("no paths must fail")
	}
	if _, err := artifactsFromPaths([]string{dir}); err == nil {
		t.Error("directory must fail")
	}
}

// runEngineOptions parses args through the real upload flag set and returns
// the merged engine options.
func runEngineOptions(t *testing.T, cfg *config.Config, args ...string) (engine.Options, error) {
	t.Helper()
	var opts engine.Options
	var optsErr error
	app := &cli.App{
		Flags: UploadCommand().Flags,
		Action: func(c *cli.Context) error {
			opts, optsErr = engineOptions(c, cfg)
			return nil
		},
	}
	if err := app.Run(append([]string{"sluice"}, args...)); err != nil {
		t.Fatalf("app run: %v", err)
	}
	return opts, optsErr
}

func TestEngineOptionsFlagsOverrideConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.Upload.Concurrency = 4
	cfg.Upload.ChunkSize.Bytes = 1024
	cfg.Wait.WaitFor.Duration = time.Minute

	opts, err := runEngineOptions(t, cfg, "--concurrency", "9", "--chunk-size", "2MiB", "--wait-for", "30s")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Concurrency != 9 {
		t.Errorf("concurrency = %d, want flag value 9", opts.Concurrency)
	}
	if opts.ChunkSize != 2*1024*1024 {
		t.Errorf("chunk size = %d", opts.ChunkSize)
	}
	if opts.WaitFor != 30*time.Second {
		t.Errorf("wait-for = %v", opts.WaitFor)
	}
}

func TestEngineOptionsConfigDefaultsApply(t *testing.T) {
	cfg := &config.Config{}
	cfg.Upload.Concurrency = 4
	cfg.Wait.Wait = true
	cfg.Upload.NoDedup = true

	opts, err := runEngineOptions(t, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Concurrency != 4 || !opts.Wait || !opts.DisableDedup {
		t.Errorf("config defaults not applied: %+v", opts)
	}
}

func TestEngineOptionsRejectsWaitConflict(t *testing.T) {
	_, err := runEngineOptions(t, &config.Config{}, "--wait", "--wait-for", "10s")
	if err == nil {
		t.Fatal("wait and wait-for together must be rejected")
	}
}

func TestEngineOptionsRejectsBadSize(t *testing.T) {
	_, err := runEngineOptions(t, &config.Config{}, "--chunk-size", "many")
	if err == nil {
		t.Fatal("unparsable chunk size must be rejected")
	}
}

func TestPrintSummary(t *testing.T) {
	result := &types.BatchResult{
		BatchID: "b1",
		Outcomes: []types.ArtifactOutcome{
			{Name: "a.so", Status: types.OutcomeOk},
			{Name: "b.so", Status: types.OutcomeSkipped, Detail: "too large"},
			{Name: "c.so", Status: types.OutcomeUploadFailed, Detail: "rejected"},
		},
		ChunksUploaded:     7,
		ChunksDeduplicated: 3,
		BytesUploaded:      2048,
		DurationMs:         1500,
	}

	var buf bytes.Buffer
	printSummary(&buf, result, true)
	out := buf.String()

	for _, want := range []string{"a.so", "too large", "rejected", "1 ok, 0 accepted, 1 skipped, 1 failed", "7 chunks sent", "3 deduplicated"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\033[") {
		t.Error("no-color summary contains escape codes")
	}
}

func TestFirstHelpers(t *testing.T) {
	if got := firstOf("", "b", "c"); got != "b" {
		t.Errorf("firstOf = %q", got)
	}
	if got := firstOf("", ""); got != "" {
		t.Errorf("firstOf = %q", got)
	}
	if got := firstPositive(0, 0, 5); got != 5 {
		t.Errorf("firstPositive = %d", got)
	}
	if got := firstPositive(); got != 0 {
		t.Errorf("firstPositive = %d", got)
	}
}
