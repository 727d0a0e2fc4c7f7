package harness

import (
	"context"
	"fmt"

	"github.com/roach88/dbtbridge/internal/dbtcli"
	"github.com/roach88/dbtbridge/internal/engine"
	"github.com/roach88/dbtbridge/internal/store"
	"github.com/roach88/dbtbridge/internal/testutil"
	"github.com/roach88/dbtbridge/internal/translator"
)

// Deployment is recorded on every scenario run.
const Deployment = "scenario"

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database with a fixed run id and
// a deterministic clock. The run goes through engine.Ingest, the same path
// a recorded dbt invocation takes, and the trace is read back from the
// store afterwards.
//
// Errors are returned for malformed scenarios and store failures only;
// assertion failures are reported in Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	cfg := scenario.Translator.Config()
	manifest, err := scenario.Manifest()
	if err != nil {
		return nil, fmt.Errorf("failed to build manifest: %w", err)
	}
	results, err := scenario.RunResultsArtifact()
	if err != nil {
		return nil, fmt.Errorf("failed to build run results: %w", err)
	}
	events, err := scenario.EventStream()
	if err != nil {
		return nil, fmt.Errorf("failed to build event stream: %w", err)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	eng := engine.New(st, nil, cfg,
		engine.WithRunIDGenerator(testutil.NewFixedRunIDGenerator(scenario.RunID)),
		engine.WithClock(testutil.NewDeterministicClock()),
		engine.WithDeployment(Deployment))

	result := NewResult()
	result.Translations = translator.TranslateManifest(cfg, manifest)

	recorded, runErr := eng.Ingest(ctx, dbtcli.ModeBuild, nil, engine.Artifacts{
		Manifest:   manifest,
		RunResults: results,
		Events:     events,
	})
	if recorded == nil {
		return nil, fmt.Errorf("failed to record run: %w", runErr)
	}
	if runErr != nil {
		result.Code = engine.CodeOf(runErr)
		if result.Code == "" {
			return nil, fmt.Errorf("failed to record run: %w", runErr)
		}
	}

	if err := readBack(ctx, st, recorded.Run.ID, result); err != nil {
		return nil, err
	}

	for _, assertion := range scenario.Assertions {
		if err := evaluate(ctx, st, result, assertion); err != nil {
			result.AddError(err.Error())
		}
	}

	if result.Code != "" && !expectsError(scenario) {
		result.AddError(fmt.Sprintf("run stopped with %s: %v", result.Code, runErr))
	}
	return result, nil
}

// readBack fills the result from what the store recorded.
func readBack(ctx context.Context, st *store.Store, runID string, result *Result) error {
	run, err := st.ReadRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to read run: %w", err)
	}
	result.Run = run

	if result.Trace, err = st.ReadEvents(ctx, runID); err != nil {
		return fmt.Errorf("failed to read trace: %w", err)
	}
	if result.Materializations, err = st.ReadMaterializations(ctx, runID); err != nil {
		return fmt.Errorf("failed to read materializations: %w", err)
	}
	return nil
}

func expectsError(s *Scenario) bool {
	for _, a := range s.Assertions {
		if a.Type == AssertError {
			return true
		}
	}
	return false
}
