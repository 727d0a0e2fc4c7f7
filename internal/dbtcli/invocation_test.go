package dbtcli

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dbtbridge/internal/ir"
	"github.com/roach88/dbtbridge/internal/testutil"
)

func fakeProject(t *testing.T, opts testutil.FakeDBTOptions) (*Project, *testutil.FakeDBT) {
	t.Helper()
	fake := testutil.NewFakeDBT(t, opts)
	p, err := NewProject(Options{Dir: fake.Dir, Executable: fake.Executable})
	require.NoError(t, err)
	return p, fake
}

func TestInvokeBuild(t *testing.T) {
	p, fake := fakeProject(t, testutil.FakeDBTOptions{
		Stdout:     testutil.SampleStdout(),
		Manifest:   testutil.SampleManifest,
		RunResults: testutil.SampleRunResults,
	})

	inv, err := p.Invoke(context.Background(), ModeBuild, nil)
	require.NoError(t, err)

	events, err := inv.Stream()
	require.NoError(t, err)
	require.NoError(t, inv.Err())
	require.Len(t, events, 5)

	assert.Equal(t, ir.EventLog, events[0].Kind)
	assert.Equal(t, ir.EventOutput, events[1].Kind)
	assert.Equal(t, ir.String("model.shop.customers"), events[1].UniqueID())
	assert.Equal(t, ir.EventOutput, events[2].Kind)
	assert.Equal(t, ir.EventObservation, events[3].Kind)

	m, err := inv.Manifest()
	require.NoError(t, err)
	assert.Len(t, m.Nodes, 3)

	rr, err := inv.RunResults()
	require.NoError(t, err)
	assert.Len(t, rr.Results, 3)

	args := fake.LastArgs(t)
	assert.Contains(t, args, "build")
	assert.Contains(t, args, "--log-format")
	assert.NotContains(t, args, "--vars")
}

func TestInvokeWritesToFreshTargetDir(t *testing.T) {
	p, fake := fakeProject(t, testutil.FakeDBTOptions{
		Stdout:   []string{testutil.NodeFinishedLine("model.shop.orders", "orders", "success", "model")},
		Manifest: testutil.SampleManifest,
		ExitCode: 1,
	})

	// artifacts left behind by an earlier run
	shared := filepath.Join(fake.Dir, "target")
	require.NoError(t, os.MkdirAll(shared, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(shared, RunResultsFile), []byte(testutil.SampleRunResults), 0o644))

	inv, err := p.Invoke(context.Background(), ModeBuild, nil)
	require.NoError(t, err)
	_, err = inv.Stream()
	require.NoError(t, err)
	require.Error(t, inv.Err())

	assert.Equal(t, shared, filepath.Dir(inv.TargetDir))
	assert.Equal(t, inv.TargetDir, fake.LastTarget(t))
	assert.Contains(t, fake.LastArgs(t), "--target-path")

	_, err = inv.Manifest()
	require.NoError(t, err)
	_, err = inv.RunResults()
	assert.ErrorIs(t, err, ErrArtifactMissing)

	require.NoError(t, inv.Close())
	_, err = os.Stat(inv.TargetDir)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(shared, RunResultsFile))
	assert.NoError(t, err, "the shared target is untouched")
}

func TestInvocationsDoNotShareTargetDir(t *testing.T) {
	p, _ := fakeProject(t, testutil.FakeDBTOptions{Manifest: testutil.SampleManifest})

	first, err := p.Invoke(context.Background(), ModeBuild, nil)
	require.NoError(t, err)
	_, err = first.Stream()
	require.NoError(t, err)

	second, err := p.Invoke(context.Background(), ModeBuild, nil)
	require.NoError(t, err)
	_, err = second.Stream()
	require.NoError(t, err)

	assert.NotEqual(t, first.TargetDir, second.TargetDir)
}

func TestInvokeWithWindow(t *testing.T) {
	p, fake := fakeProject(t, testutil.FakeDBTOptions{})

	w := &Window{
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	}
	inv, err := p.Invoke(context.Background(), ModeRun, w)
	require.NoError(t, err)
	_, err = inv.Stream()
	require.NoError(t, err)

	assert.Equal(t, ir.String("2024-01-01 00:00:00+00:00"), inv.Vars["min_date"])
	assert.Contains(t, fake.LastArgs(t), `{"max_date":"2024-01-02 00:00:00+00:00","min_date":"2024-01-01 00:00:00+00:00"}`)
}

func TestInvokeRejectsBadInput(t *testing.T) {
	p, _ := fakeProject(t, testutil.FakeDBTOptions{})

	_, err := p.Invoke(context.Background(), "seed", nil)
	require.Error(t, err)

	bad := &Window{Start: time.Now(), End: time.Now().Add(-time.Hour)}
	_, err = p.Invoke(context.Background(), ModeBuild, bad)
	require.Error(t, err)
}

func TestStreamIsReadOnce(t *testing.T) {
	p, _ := fakeProject(t, testutil.FakeDBTOptions{Stdout: testutil.SampleStdout()})

	inv, err := p.Invoke(context.Background(), ModeBuild, nil)
	require.NoError(t, err)

	first, err := inv.Stream()
	require.NoError(t, err)
	assert.NotEmpty(t, first)

	_, err = inv.Stream()
	assert.ErrorIs(t, err, ErrStreamConsumed)
}

func TestInvokeNonZeroExitIsCaptured(t *testing.T) {
	p, _ := fakeProject(t, testutil.FakeDBTOptions{
		Stdout: []string{
			testutil.NodeFinishedLine("model.shop.orders", "orders", "success", "model"),
			testutil.NodeFinishedLine("model.shop.customers", "customers", "error", "model"),
		},
		Stderr:     "Database Error in model customers",
		Manifest:   testutil.SampleManifest,
		RunResults: testutil.SampleRunResults,
		ExitCode:   1,
	})

	inv, err := p.Invoke(context.Background(), ModeBuild, nil)
	require.NoError(t, err, "a failing dbt is not an invoke error")

	events, err := inv.Stream()
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, ir.EventOutput, events[0].Kind)
	assert.Equal(t, ir.EventFailure, events[1].Kind)

	require.Error(t, inv.Err())
	assert.Contains(t, inv.Err().Error(), "Database Error in model customers")

	_, err = inv.RunResults()
	assert.NoError(t, err, "artifacts are still readable after a failed run")
}

func TestInvokeMissingExecutable(t *testing.T) {
	p, err := NewProject(Options{Dir: t.TempDir(), Executable: "/nonexistent/dbt"})
	require.NoError(t, err)

	inv, err := p.Invoke(context.Background(), ModeBuild, nil)
	require.NoError(t, err)

	events, err := inv.Stream()
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Error(t, inv.Err())

	_, err = inv.Manifest()
	assert.ErrorIs(t, err, ErrArtifactMissing)
}

func TestArtifactsRequireDrainedStream(t *testing.T) {
	p, _ := fakeProject(t, testutil.FakeDBTOptions{Manifest: testutil.SampleManifest})

	inv, err := p.Invoke(context.Background(), ModeBuild, nil)
	require.NoError(t, err)

	_, err = inv.Manifest()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "still running")

	_, err = inv.Stream()
	require.NoError(t, err)
	_, err = inv.Manifest()
	assert.NoError(t, err)
}

func TestPrepareRunsParseOnce(t *testing.T) {
	p, fake := fakeProject(t, testutil.FakeDBTOptions{Manifest: testutil.SampleManifest})

	_, err := os.Stat(p.ManifestPath())
	require.True(t, os.IsNotExist(err))

	require.NoError(t, p.Prepare(context.Background()))
	require.NoError(t, p.Prepare(context.Background()))

	assert.Equal(t, []string{"parse"}, fake.Calls(t))
	assert.NotContains(t, fake.LastArgs(t), "--target-path")
	_, err = LoadManifest(p.ManifestPath())
	assert.NoError(t, err)
}

func TestPrepareFailure(t *testing.T) {
	p, _ := fakeProject(t, testutil.FakeDBTOptions{Stderr: "Compilation Error", ExitCode: 2})

	err := p.Prepare(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Compilation Error")
}
