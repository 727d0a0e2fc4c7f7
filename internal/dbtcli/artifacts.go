package dbtcli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/roach88/dbtbridge/internal/ir"
)

// ErrArtifactMissing is returned when dbt did not write an artifact.
var ErrArtifactMissing = errors.New("dbt artifact missing")

// LoadManifest decodes a manifest.json file.
func LoadManifest(path string) (*ir.Manifest, error) {
	var m ir.Manifest
	if err := loadJSON(path, &m); err != nil {
		return nil, fmt.Errorf("load manifest: %w", err)
	}
	if m.Nodes == nil {
		m.Nodes = map[string]ir.ManifestNode{}
	}
	return &m, nil
}

// LoadRunResults decodes a run_results.json file.
func LoadRunResults(path string) (*ir.RunResults, error) {
	var rr ir.RunResults
	if err := loadJSON(path, &rr); err != nil {
		return nil, fmt.Errorf("load run results: %w", err)
	}
	return &rr, nil
}

func loadJSON(path string, v any) error {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrArtifactMissing, path)
	}
	if err != nil {
		return err
	}
	defer f.Close()

	if err := json.NewDecoder(f).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
