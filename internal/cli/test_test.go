package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const groupScenario = `name: orders_group
description: "orders is grouped by its folder"
nodes:
  model.shop.orders:
    name: orders
    database: analytics
    schema: public
    path: core_data/orders.sql
events:
  - kind: output
    output: orders
    metadata: { unique_id: model.shop.orders }
assertions:
  - type: group
    node: model.shop.orders
    group: core_data
  - type: materialization_count
    count: 1
`

const failingScenario = `name: wrong_group
description: "asserts a group the translator never derives"
nodes:
  model.shop.orders:
    name: orders
    path: core_data/orders.sql
assertions:
  - type: group
    node: model.shop.orders
    group: marts
`

func TestTestCommandMissingArgs(t *testing.T) {
	cmd := NewTestCommand(&RootOptions{Format: "text"})
	_, err := execute(cmd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommandNonExistentScenariosDir(t *testing.T) {
	cmd := NewTestCommand(&RootOptions{Format: "text"})
	_, err := execute(cmd, "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")
}

func TestTestCommandEmptyScenariosDir(t *testing.T) {
	cmd := NewTestCommand(&RootOptions{Format: "text"})
	out, err := execute(cmd, t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found")
}

func TestTestCommandEmptyScenariosDirJSON(t *testing.T) {
	cmd := NewTestCommand(&RootOptions{Format: "json"})
	out, err := execute(cmd, t.TempDir())
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 0, resp.Data.Total)
	assert.Empty(t, resp.Data.Scenarios)
}

func TestTestCommandHarnessScenarios(t *testing.T) {
	cmd := NewTestCommand(&RootOptions{Format: "json"})
	out, err := execute(cmd, filepath.Join("..", "harness", "testdata", "scenarios"))
	require.NoError(t, err)

	var resp struct {
		Data TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, 4, resp.Data.Total)
	assert.Equal(t, 4, resp.Data.Passed)
	for _, sr := range resp.Data.Scenarios {
		assert.True(t, sr.Pass, "%s: %v", sr.Name, sr.Errors)
	}
}

func TestTestCommandFailingScenario(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "orders_group.yaml", groupScenario)
	writeFile(t, dir, "wrong_group.yaml", failingScenario)

	cmd := NewTestCommand(&RootOptions{Format: "text"})
	out, err := execute(cmd, dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✓ orders_group")
	assert.Contains(t, out, "✗ wrong_group")
	assert.Contains(t, out, `in group "marts"`)
	assert.Contains(t, out, "1 passed, 1 failed, 2 total")
}

func TestTestCommandFilter(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "orders_group.yaml", groupScenario)
	writeFile(t, dir, "wrong_group.yaml", failingScenario)

	cmd := NewTestCommand(&RootOptions{Format: "text"})
	out, err := execute(cmd, dir, "--filter", "orders_*")
	require.NoError(t, err)
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
}

func TestTestCommandGolden(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "orders_group.yaml", groupScenario)
	goldenPath := filepath.Join(dir, "golden", "orders_group.golden")

	// --update writes the snapshot
	cmd := NewTestCommand(&RootOptions{Format: "text"})
	out, err := execute(cmd, dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ orders_group (golden updated)")

	golden, err := os.ReadFile(goldenPath)
	require.NoError(t, err)
	assert.Contains(t, string(golden), `"scenario_name":"orders_group"`)

	// an unchanged run matches
	cmd = NewTestCommand(&RootOptions{Format: "text"})
	_, err = execute(cmd, dir)
	require.NoError(t, err)

	// a tampered snapshot does not
	require.NoError(t, os.WriteFile(goldenPath, []byte(`{"scenario_name":"orders_group"}`), 0o644))
	cmd = NewTestCommand(&RootOptions{Format: "text"})
	out, err = execute(cmd, dir)
	require.Error(t, err)
	assert.Contains(t, out, "trace does not match golden file")
}

func TestFindScenarioFilesSkipsGolden(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", groupScenario)
	writeFile(t, dir, "nested/b.yml", groupScenario)
	writeFile(t, dir, "golden/c.yaml", groupScenario)
	writeFile(t, dir, "notes.txt", "not a scenario")

	files, err := findScenarioFiles(dir, "")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.yaml"), filepath.Join(dir, "nested", "b.yml")}, files)

	_, err = findScenarioFiles(dir, "[")
	assert.Error(t, err)
}

func TestGoldenFilePath(t *testing.T) {
	assert.Equal(t, filepath.Join("scenarios", "golden", "core_build.golden"), goldenFilePath(filepath.Join("scenarios", "core_build.yaml")))
}
