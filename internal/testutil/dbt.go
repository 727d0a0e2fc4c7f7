package testutil

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// FakeDBTOptions script the behavior of a fake dbt executable.
type FakeDBTOptions struct {
	// ProjectYAML is written as dbt_project.yml when non-empty.
	ProjectYAML string
	// Stdout lines, printed in order.
	Stdout []string
	// Stderr is printed to standard error.
	Stderr string
	// Manifest is copied to <target>/manifest.json on every invocation,
	// where <target> is --target-path when given, else <Dir>/target.
	Manifest string
	// RunResults is copied to <target>/run_results.json unless the mode is parse.
	RunResults string
	// ExitCode is the process exit status.
	ExitCode int
}

// FakeDBT is a dbt project directory plus a shell script standing in for
// the dbt executable. Each call records its arguments.
type FakeDBT struct {
	Dir        string
	Executable string

	fixtures string
}

// NewFakeDBT builds a fake project. Tests using it are skipped on Windows.
func NewFakeDBT(t testing.TB, opts FakeDBTOptions) *FakeDBT {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake dbt executable needs a POSIX shell")
	}

	f := &FakeDBT{Dir: t.TempDir(), fixtures: t.TempDir()}
	f.Executable = filepath.Join(f.fixtures, "dbt")

	if opts.ProjectYAML != "" {
		mustWrite(t, filepath.Join(f.Dir, "dbt_project.yml"), opts.ProjectYAML)
	}
	if len(opts.Stdout) > 0 {
		mustWrite(t, filepath.Join(f.fixtures, "stdout.txt"), strings.Join(opts.Stdout, "\n")+"\n")
	}
	if opts.Stderr != "" {
		mustWrite(t, filepath.Join(f.fixtures, "stderr.txt"), opts.Stderr)
	}
	if opts.Manifest != "" {
		mustWrite(t, filepath.Join(f.fixtures, "manifest.json"), opts.Manifest)
	}
	if opts.RunResults != "" {
		mustWrite(t, filepath.Join(f.fixtures, "run_results.json"), opts.RunResults)
	}

	script := fmt.Sprintf(`#!/bin/sh
fixtures='%s'
target='%s'
mode=""
prev=""
for a in "$@"; do
  if [ "$prev" = "--target-path" ]; then target="$a"; fi
  case "$a" in
    build|run|parse) mode="$a" ;;
  esac
  prev="$a"
done
printf '%%s\n' "$@" > "$fixtures/args.txt"
echo "$mode" >> "$fixtures/calls.txt"
echo "$target" > "$fixtures/target.txt"
mkdir -p "$target"
if [ -f "$fixtures/manifest.json" ]; then cp "$fixtures/manifest.json" "$target/manifest.json"; fi
if [ "$mode" != "parse" ] && [ -f "$fixtures/run_results.json" ]; then cp "$fixtures/run_results.json" "$target/run_results.json"; fi
if [ -f "$fixtures/stdout.txt" ]; then cat "$fixtures/stdout.txt"; fi
if [ -f "$fixtures/stderr.txt" ]; then cat "$fixtures/stderr.txt" >&2; fi
exit %d
`, f.fixtures, filepath.Join(f.Dir, "target"), opts.ExitCode)

	if err := os.WriteFile(f.Executable, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake dbt: %v", err)
	}
	return f
}

// LastArgs returns the arguments of the most recent invocation.
func (f *FakeDBT) LastArgs(t testing.TB) []string {
	t.Helper()
	return readLines(t, filepath.Join(f.fixtures, "args.txt"))
}

// LastTarget returns the artifact directory of the most recent invocation.
func (f *FakeDBT) LastTarget(t testing.TB) string {
	t.Helper()
	return readLines(t, filepath.Join(f.fixtures, "target.txt"))[0]
}

// Calls returns the mode of every invocation so far.
func (f *FakeDBT) Calls(t testing.TB) []string {
	t.Helper()
	path := filepath.Join(f.fixtures, "calls.txt")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return readLines(t, path)
}

// NodeFinishedLine renders a dbt structured log line for a finished node.
func NodeFinishedLine(uniqueID any, name, status, resourceType string) string {
	line := map[string]any{
		"info": map[string]any{
			"name":  "NodeFinished",
			"level": "info",
			"msg":   fmt.Sprintf("Finished running node %s", name),
		},
		"data": map[string]any{
			"node_info": map[string]any{
				"unique_id":     uniqueID,
				"node_name":     name,
				"node_status":   status,
				"resource_type": resourceType,
			},
		},
	}
	data, err := json.Marshal(line)
	if err != nil {
		panic(err)
	}
	return string(data)
}

// LogLine renders a plain structured dbt log line.
func LogLine(name, msg string) string {
	data, err := json.Marshal(map[string]any{
		"info": map[string]any{"name": name, "level": "info", "msg": msg},
		"data": map[string]any{},
	})
	if err != nil {
		panic(err)
	}
	return string(data)
}

func mustWrite(t testing.TB, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func readLines(t testing.TB, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}
