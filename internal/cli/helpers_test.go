package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dbtbridge/internal/testutil"
)

// writeFile writes content to dir/name and returns the path.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// deploymentConfig writes a CUE config with one dev deployment over a fake
// dbt project and returns the config directory.
func deploymentConfig(t *testing.T, fake *testutil.FakeDBT, dbPath string) string {
	t.Helper()
	cfg := fmt.Sprintf(`
deployment: dev: {
	dbt: {
		project_dir: %q
		executable:  %q
	}
	store: path: %q
}
`, fake.Dir, fake.Executable, dbPath)
	dir := t.TempDir()
	writeFile(t, dir, "config.cue", cfg)
	return dir
}

// sampleLog is the structured log of a successful build of the sample
// manifest.
func sampleLog() string {
	return strings.Join(testutil.SampleStdout(), "\n") + "\n"
}

// execute runs cmd with args and returns what it wrote to stdout.
func execute(cmd *cobra.Command, args ...string) (string, error) {
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}
