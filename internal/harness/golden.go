package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/dbtbridge/internal/ir"
)

// Snapshot converts a result into the canonical value stored in golden
// files. Materialization ids are content hashes of fields already in the
// snapshot and are left out.
func Snapshot(scenarioName string, result *Result) ir.Object {
	translations := make(ir.Array, 0, len(result.Translations))
	for _, tr := range result.Translations {
		translations = append(translations, ir.Object{
			"unique_id": ir.String(tr.UniqueID),
			"asset_key": tr.AssetKey.Value(),
			"group":     ir.String(tr.Group),
			"metadata":  nonNil(tr.Metadata),
		})
	}

	trace := make(ir.Array, 0, len(result.Trace))
	for _, ev := range result.Trace {
		entry := ir.Object{
			"seq":      ir.Int(ev.Seq),
			"kind":     ir.String(ev.Kind),
			"metadata": nonNil(ev.Metadata),
		}
		if ev.OutputName != "" {
			entry["output_name"] = ir.String(ev.OutputName)
		}
		if ev.Status != "" {
			entry["status"] = ir.String(ev.Status)
		}
		if ev.Message != "" {
			entry["message"] = ir.String(ev.Message)
		}
		if len(ev.Attached) > 0 {
			entry["attached"] = ev.Attached
		}
		trace = append(trace, entry)
	}

	materializations := make(ir.Array, 0, len(result.Materializations))
	for _, m := range result.Materializations {
		materializations = append(materializations, ir.Object{
			"seq":        ir.Int(m.Seq),
			"asset_key":  m.AssetKey.Value(),
			"unique_id":  ir.String(m.UniqueID),
			"group_name": ir.String(m.GroupName),
			"metadata":   nonNil(m.Metadata),
		})
	}

	run := ir.Object{
		"id":     ir.String(result.Run.ID),
		"status": ir.String(result.Run.Status),
	}
	if result.Code != "" {
		run["error_code"] = ir.String(string(result.Code))
	}

	return ir.Object{
		"scenario_name":    ir.String(scenarioName),
		"run":              run,
		"translations":     translations,
		"trace":            trace,
		"materializations": materializations,
	}
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can also check Pass and Errors.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against its golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := ir.MarshalCanonical(Snapshot(scenarioName, result))
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}

func nonNil(o ir.Object) ir.Object {
	if o == nil {
		return ir.Object{}
	}
	return o
}
