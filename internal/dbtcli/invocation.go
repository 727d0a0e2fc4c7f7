package dbtcli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/roach88/dbtbridge/internal/ir"
)

// ErrStreamConsumed is returned when Stream is called a second time.
// The event stream is read-once.
var ErrStreamConsumed = errors.New("event stream already consumed")

// maxStderr bounds the stderr tail kept for error messages.
const maxStderr = 64 * 1024

// Invocation is one running (or finished) dbt subprocess.
//
// Failures of the subprocess are captured, not returned from Invoke: they
// surface through Err once the stream is drained, and as failure events
// and failed run results, so the models that did succeed can still be
// reconciled.
type Invocation struct {
	Mode string
	Args []string
	Vars ir.Object

	// TargetDir holds the artifacts of this invocation only. Build and
	// run write to a fresh directory under the project target path, so a
	// dbt that dies early never leaves an older run's files in view.
	TargetDir string

	project *Project
	cmd     *exec.Cmd
	stdout  io.ReadCloser
	stderr  *tailBuffer

	mu       sync.Mutex
	consumed bool
	done     bool
	err      error
}

// Invoke starts dbt in the given mode. A window adds partition vars.
// Only caller mistakes (bad mode, bad window) are returned as errors.
func (p *Project) Invoke(ctx context.Context, mode string, window *Window) (*Invocation, error) {
	if err := ValidateMode(mode); err != nil {
		return nil, err
	}
	return p.invoke(ctx, mode, window)
}

func (p *Project) invoke(ctx context.Context, mode string, window *Window) (*Invocation, error) {
	inv := &Invocation{Mode: mode, project: p, stderr: &tailBuffer{max: maxStderr}}

	if window != nil {
		if err := window.Validate(); err != nil {
			return nil, err
		}
		inv.Vars = window.Vars()
	}

	args, err := p.Args(mode, window)
	if err != nil {
		return nil, err
	}
	inv.TargetDir, err = p.invocationTargetDir(mode)
	if err != nil {
		return nil, err
	}
	if mode != modeParse {
		args = append(args, "--target-path", inv.TargetDir)
	}
	inv.Args = args

	// nolint: gosec
	cmd := exec.CommandContext(ctx, p.Executable, args...)
	cmd.Dir = p.Dir
	cmd.Env = append(os.Environ(), p.Env...)
	cmd.Stderr = inv.stderr
	inv.cmd = cmd

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		inv.finish(fmt.Errorf("dbt %s: stdout pipe: %w", mode, err))
		return inv, nil
	}
	inv.stdout = stdout

	slog.Debug("starting dbt", "executable", p.Executable, "args", args, "dir", p.Dir)
	if err := cmd.Start(); err != nil {
		inv.finish(fmt.Errorf("dbt %s: start: %w", mode, err))
		return inv, nil
	}
	return inv, nil
}

// Stream reads the dbt event stream to the end and waits for the process.
// It can be called once; later calls return ErrStreamConsumed.
func (inv *Invocation) Stream() ([]ir.Event, error) {
	inv.mu.Lock()
	if inv.consumed {
		inv.mu.Unlock()
		return nil, ErrStreamConsumed
	}
	inv.consumed = true
	inv.mu.Unlock()

	events := []ir.Event{}
	if inv.stdout != nil && !inv.isDone() {
		var scanErr error
		events, scanErr = ParseLog(inv.stdout)
		if scanErr != nil {
			// Drain so Wait does not block on a full pipe.
			_, _ = io.Copy(io.Discard, inv.stdout)
		}

		waitErr := inv.cmd.Wait()
		switch {
		case waitErr != nil:
			inv.finish(fmt.Errorf("dbt %s exited: %w%s", inv.Mode, waitErr, inv.stderr.suffix()))
		case scanErr != nil:
			inv.finish(fmt.Errorf("dbt %s: read events: %w", inv.Mode, scanErr))
		default:
			inv.finish(nil)
		}
	}

	return events, nil
}

// Err is the captured subprocess failure, if any. It is only meaningful
// after Stream has returned.
func (inv *Invocation) Err() error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.err
}

// Manifest loads the manifest written by this invocation.
func (inv *Invocation) Manifest() (*ir.Manifest, error) {
	if err := inv.requireDone(); err != nil {
		return nil, err
	}
	return LoadManifest(filepath.Join(inv.TargetDir, ManifestFile))
}

// RunResults loads the run results written by this invocation.
func (inv *Invocation) RunResults() (*ir.RunResults, error) {
	if err := inv.requireDone(); err != nil {
		return nil, err
	}
	return LoadRunResults(filepath.Join(inv.TargetDir, RunResultsFile))
}

// Close removes the per-invocation target directory. Parse writes to the
// shared target path, which is left alone.
func (inv *Invocation) Close() error {
	if inv.Mode == modeParse || inv.TargetDir == "" {
		return nil
	}
	if err := os.RemoveAll(inv.TargetDir); err != nil {
		return fmt.Errorf("remove %s: %w", inv.TargetDir, err)
	}
	return nil
}

// invocationTargetDir is the shared target path for parse and a fresh
// <target>/<uuid> directory for anything else. The path is absolute
// because dbt resolves a relative one against the project dir.
func (p *Project) invocationTargetDir(mode string) (string, error) {
	dir, err := filepath.Abs(p.TargetDir())
	if err != nil {
		return "", fmt.Errorf("resolve target path: %w", err)
	}
	if mode == modeParse {
		return dir, nil
	}
	return filepath.Join(dir, uuid.NewString()), nil
}

func (inv *Invocation) requireDone() error {
	if !inv.isDone() {
		return fmt.Errorf("dbt %s still running: consume the event stream first", inv.Mode)
	}
	return nil
}

func (inv *Invocation) isDone() bool {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.done
}

func (inv *Invocation) finish(err error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.done = true
	inv.err = err
}

// Prepare runs `dbt parse` when the project has no manifest yet, so that a
// development checkout can be translated before its first build.
func (p *Project) Prepare(ctx context.Context) error {
	if _, err := os.Stat(p.ManifestPath()); err == nil {
		return nil
	}

	slog.Info("manifest missing, running dbt parse", "project_dir", p.Dir)
	inv, err := p.invoke(ctx, modeParse, nil)
	if err != nil {
		return err
	}
	if _, err := inv.Stream(); err != nil {
		return err
	}
	if err := inv.Err(); err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	return nil
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}

// suffix formats the stderr tail for an error message.
func (t *tailBuffer) suffix() string {
	s := string(bytes.TrimSpace([]byte(t.String())))
	if s == "" {
		return ""
	}
	return ": " + s
}
