package harness

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/roach88/dbtbridge/internal/ir"
	"github.com/roach88/dbtbridge/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string     // Assertion type for categorization
	Expected string     // Human-readable expected outcome
	Actual   string     // Human-readable actual outcome
	Trace    []ir.Event // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s %s\n", ev.Seq, ev.Kind, ev.OutputName, render(ev.Metadata))
		}
	}
	return buf.String()
}

// evaluate dispatches one assertion.
func evaluate(ctx context.Context, st *store.Store, result *Result, a Assertion) error {
	switch a.Type {
	case AssertAssetKey:
		return assertAssetKey(result, a)
	case AssertGroup:
		return assertGroup(result, a)
	case AssertMetadata:
		return assertMetadata(result, a)
	case AssertAttached:
		return assertAttached(result, a)
	case AssertNotAttached:
		return assertNotAttached(result, a)
	case AssertTraceCount:
		return assertTraceCount(result, a)
	case AssertMaterializationCount:
		return assertMaterializationCount(result, a)
	case AssertLatestMaterialization:
		return assertLatestMaterialization(ctx, st, a)
	case AssertRunStatus:
		return assertRunStatus(result, a)
	case AssertError:
		return assertError(result, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func assertAssetKey(result *Result, a Assertion) error {
	tr, ok := result.translation(a.Node)
	if !ok {
		return notTranslated(a)
	}
	if !tr.AssetKey.Equal(ir.AssetKey(a.Key)) {
		return &AssertionError{
			Type:     AssertAssetKey,
			Expected: fmt.Sprintf("%s has key %s", a.Node, ir.AssetKey(a.Key)),
			Actual:   tr.AssetKey.String(),
		}
	}
	return nil
}

func assertGroup(result *Result, a Assertion) error {
	tr, ok := result.translation(a.Node)
	if !ok {
		return notTranslated(a)
	}
	if tr.Group != a.Group {
		return &AssertionError{
			Type:     AssertGroup,
			Expected: fmt.Sprintf("%s in group %q", a.Node, a.Group),
			Actual:   fmt.Sprintf("group %q", tr.Group),
		}
	}
	return nil
}

func assertMetadata(result *Result, a Assertion) error {
	tr, ok := result.translation(a.Node)
	if !ok {
		return notTranslated(a)
	}
	if mismatch := matchSubset(tr.Metadata, a.Metadata); mismatch != "" {
		return &AssertionError{
			Type:     AssertMetadata,
			Expected: fmt.Sprintf("%s metadata contains %v", a.Node, a.Metadata),
			Actual:   mismatch,
		}
	}
	return nil
}

func assertAttached(result *Result, a Assertion) error {
	ev, ok := findOutput(result.Trace, a.Output)
	if !ok {
		return missingOutput(result, a)
	}
	if mismatch := matchSubset(ev.Attached, a.Metadata); mismatch != "" {
		return &AssertionError{
			Type:     AssertAttached,
			Expected: fmt.Sprintf("%s attached contains %v", a.Output, a.Metadata),
			Actual:   mismatch,
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertNotAttached(result *Result, a Assertion) error {
	ev, ok := findOutput(result.Trace, a.Output)
	if !ok {
		return missingOutput(result, a)
	}
	for _, key := range a.Keys {
		if v, present := ev.Attached[key]; present {
			return &AssertionError{
				Type:     AssertNotAttached,
				Expected: fmt.Sprintf("%s has no attached %q", a.Output, key),
				Actual:   fmt.Sprintf("%q = %s", key, render(v)),
				Trace:    result.Trace,
			}
		}
	}
	return nil
}

func assertTraceCount(result *Result, a Assertion) error {
	count := 0
	for _, ev := range result.Trace {
		if ev.Kind == a.Kind {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d %s events", a.Count, a.Kind),
			Actual:   fmt.Sprintf("%d %s events", count, a.Kind),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertMaterializationCount(result *Result, a Assertion) error {
	if len(result.Materializations) != a.Count {
		return &AssertionError{
			Type:     AssertMaterializationCount,
			Expected: fmt.Sprintf("%d materializations", a.Count),
			Actual:   fmt.Sprintf("%d materializations", len(result.Materializations)),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertLatestMaterialization(ctx context.Context, st *store.Store, a Assertion) error {
	key := ir.AssetKey(a.Key)
	m, ok, err := st.LatestMaterialization(ctx, key)
	if err != nil {
		return fmt.Errorf("latest materialization of %s: %w", key, err)
	}
	if !ok {
		return &AssertionError{
			Type:     AssertLatestMaterialization,
			Expected: fmt.Sprintf("%s materialized", key),
			Actual:   "never materialized",
		}
	}
	if mismatch := matchSubset(m.Metadata, a.Metadata); mismatch != "" {
		return &AssertionError{
			Type:     AssertLatestMaterialization,
			Expected: fmt.Sprintf("%s metadata contains %v", key, a.Metadata),
			Actual:   mismatch,
		}
	}
	return nil
}

func assertRunStatus(result *Result, a Assertion) error {
	if result.Run.Status != a.Status {
		return &AssertionError{
			Type:     AssertRunStatus,
			Expected: fmt.Sprintf("run status %q", a.Status),
			Actual:   fmt.Sprintf("run status %q (%s)", result.Run.Status, result.Run.Error),
		}
	}
	return nil
}

func assertError(result *Result, a Assertion) error {
	if string(result.Code) != a.Code {
		actual := "no runtime error"
		if result.Code != "" {
			actual = string(result.Code)
		}
		return &AssertionError{
			Type:     AssertError,
			Expected: a.Code,
			Actual:   actual,
			Trace:    result.Trace,
		}
	}
	return nil
}

// matchSubset returns "" when every expected key is present in actual
// with an equal value, or a description of the first mismatch.
func matchSubset(actual ir.Object, expected map[string]any) string {
	want, ok := ir.FromAny(expected)
	if !ok {
		return "expected metadata is not representable"
	}
	for _, key := range want.(ir.Object).SortedKeys() {
		got, present := actual[key]
		if !present {
			return fmt.Sprintf("%q missing from %s", key, render(actual))
		}
		if !reflect.DeepEqual(got, want.(ir.Object)[key]) {
			return fmt.Sprintf("%q = %s", key, render(got))
		}
	}
	return ""
}

func findOutput(trace []ir.Event, name string) (ir.Event, bool) {
	for _, ev := range trace {
		if ev.IsOutput() && ev.OutputName == name {
			return ev, true
		}
	}
	return ir.Event{}, false
}

func notTranslated(a Assertion) error {
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("%s translated", a.Node),
		Actual:   "not an asset node",
	}
}

func missingOutput(result *Result, a Assertion) error {
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("output %q in trace", a.Output),
		Actual:   "not found in trace",
		Trace:    result.Trace,
	}
}

// render formats a value as canonical JSON for messages.
func render(v ir.Value) string {
	if v == nil {
		return "<missing>"
	}
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
