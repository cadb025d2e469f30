package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/pithecene-io/sluice/cli/config"
	"github.com/pithecene-io/sluice/types"
)

// manifestFile is the YAML shape of an upload manifest: a closed list of
// artifact descriptors produced by upstream tooling.
type manifestFile struct {
	Artifacts []types.Artifact `yaml:"artifacts"`
}

// loadManifest reads an artifact manifest, expands environment variables,
// and normalizes each entry: the size is taken from disk, the name defaults
// to the base name, the kind defaults to debug_file.
func loadManifest(path string) ([]*types.Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read manifest %q: %w", path, err)
	}

	var mf manifestFile
	if err := yaml.Unmarshal([]byte(config.ExpandEnv(string(data))), &mf); err != nil {
		return nil, fmt.Errorf("invalid manifest %s: %w", path, err)
	}
	if len(mf.Artifacts) == 0 {
		return nil, fmt.Errorf("manifest %s lists no artifacts", path)
	}

	base := filepath.Dir(path)
	artifacts := make([]*types.Artifact, len(mf.Artifacts))
	for i := range mf.Artifacts {
		art := mf.Artifacts[i]
		if art.LocalPath == "" {
			return nil, fmt.Errorf("manifest %s: artifact %d has no path", path, i)
		}
		if !filepath.IsAbs(art.LocalPath) {
			art.LocalPath = filepath.Join(base, art.LocalPath)
		}
		if err := fillFromDisk(&art); err != nil {
			return nil, err
		}
		artifacts[i] = &art
	}
	return artifacts, nil
}

// artifactsFromPaths builds descriptors straight from file arguments, for
// invocations without a manifest.
func artifactsFromPaths(paths []string) ([]*types.Artifact, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("nothing to upload: pass file paths or --manifest")
	}
	artifacts := make([]*types.Artifact, len(paths))
	for i, p := range paths {
		art := types.Artifact{LocalPath: p}
		if err := fillFromDisk(&art); err != nil {
			return nil, err
		}
		artifacts[i] = &art
	}
	return artifacts, nil
}

func fillFromDisk(art *types.Artifact) error {
	info, err := os.Stat(art.LocalPath)
	if err != nil {
		return fmt.Errorf("artifact %s: %w", art.LocalPath, err)
	}
	if info.IsDir() {
		return fmt.Errorf("artifact %s is a directory", art.LocalPath)
	}
	art.Size = info.Size()
	if art.Name == "" {
		art.Name = filepath.Base(art.LocalPath)
	}
	if art.Kind == "" {
		art.Kind = types.KindDebugFile
	}
	return nil
}
