package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/dbtbridge/internal/dbtcli"
	"github.com/roach88/dbtbridge/internal/ir"
	"github.com/roach88/dbtbridge/internal/reconcile"
	"github.com/roach88/dbtbridge/internal/store"
	"github.com/roach88/dbtbridge/internal/translator"
)

// DefaultDeployment is recorded on runs when no deployment is configured.
const DefaultDeployment = "dev"

// Engine executes runs of one dbt project against one store.
type Engine struct {
	store      *store.Store
	project    *dbtcli.Project
	translator translator.Config
	deployment string
	runIDs     RunIDGenerator
	clock      SeqSource
}

// Option configures an Engine.
type Option func(*Engine)

// WithRunIDGenerator replaces the UUIDv7 run id generator.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(e *Engine) {
		e.runIDs = g
	}
}

// WithClock replaces the logical clock. Without it, the engine resumes
// from the highest seq in the store on the first run.
func WithClock(c SeqSource) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithDeployment names the deployment recorded on each run.
func WithDeployment(name string) Option {
	return func(e *Engine) {
		e.deployment = name
	}
}

// New creates an Engine.
func New(s *store.Store, project *dbtcli.Project, cfg translator.Config, opts ...Option) *Engine {
	e := &Engine{
		store:      s,
		project:    project,
		translator: cfg.WithDefaults(),
		deployment: DefaultDeployment,
		runIDs:     UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Request selects what a run does. An empty Mode means build; a nil Window
// runs without partition vars.
type Request struct {
	Mode   string
	Window *dbtcli.Window
}

// Result is the recorded outcome of a run.
type Result struct {
	Run              ir.Run
	Events           []ir.Event
	Materializations []ir.Materialization

	// InvocationErr is the captured dbt failure, if any. It is reflected in
	// Run.Status and is never returned from Execute.
	InvocationErr error
}

// Execute performs one run. Errors are returned for invalid requests,
// store failures and RuntimeErrors; in the last case the run is still
// recorded with status error.
func (e *Engine) Execute(ctx context.Context, req Request) (*Result, error) {
	if e.project == nil {
		return nil, fmt.Errorf("engine has no dbt project")
	}
	mode := req.Mode
	if mode == "" {
		mode = dbtcli.ModeBuild
	}
	if err := dbtcli.ValidateMode(mode); err != nil {
		return nil, err
	}
	var vars ir.Object
	if req.Window != nil {
		if err := req.Window.Validate(); err != nil {
			return nil, err
		}
		vars = req.Window.Vars()
	}

	result, err := e.begin(ctx, mode, vars)
	if err != nil {
		return nil, err
	}

	inv, err := e.project.Invoke(ctx, mode, req.Window)
	if err != nil {
		return result, e.fail(ctx, result, err)
	}
	defer func() {
		if err := inv.Close(); err != nil {
			slog.Warn("failed to remove invocation target", "run_id", result.Run.ID, "error", err)
		}
	}()
	events, err := inv.Stream()
	if err != nil {
		return result, e.fail(ctx, result, err)
	}
	artifacts := Artifacts{Events: events, InvocationErr: inv.Err()}
	result.InvocationErr = artifacts.InvocationErr
	if artifacts.InvocationErr != nil {
		slog.Warn("dbt invocation failed", "run_id", result.Run.ID, "error", artifacts.InvocationErr)
	}

	artifacts.Manifest, err = inv.Manifest()
	if err != nil {
		return result, e.fail(ctx, result, classify(result.Run.ID, err))
	}
	artifacts.RunResults, err = inv.RunResults()
	if errors.Is(err, dbtcli.ErrArtifactMissing) {
		slog.Warn("run results missing, rows_affected will not be attached", "run_id", result.Run.ID)
		artifacts.RunResults = nil
	} else if err != nil {
		return result, e.fail(ctx, result, err)
	}

	return result, e.complete(ctx, result, artifacts)
}

// Artifacts is everything one dbt invocation produced.
type Artifacts struct {
	Manifest   *ir.Manifest
	RunResults *ir.RunResults // nil when dbt wrote none
	Events     []ir.Event

	// InvocationErr is the captured dbt failure, if any.
	InvocationErr error
}

// Ingest records a run from artifacts of an invocation that happened
// elsewhere (a scheduler, a CI job, a saved log). It reconciles and
// records exactly like Execute, without starting dbt.
func (e *Engine) Ingest(ctx context.Context, mode string, vars ir.Object, artifacts Artifacts) (*Result, error) {
	if mode == "" {
		mode = dbtcli.ModeBuild
	}
	if err := dbtcli.ValidateMode(mode); err != nil {
		return nil, err
	}

	result, err := e.begin(ctx, mode, vars)
	if err != nil {
		return nil, err
	}
	if artifacts.Manifest == nil {
		cause := fmt.Errorf("%w: manifest", dbtcli.ErrArtifactMissing)
		return result, e.fail(ctx, result, classify(result.Run.ID, cause))
	}
	return result, e.complete(ctx, result, artifacts)
}

// begin records a new run in the running state.
func (e *Engine) begin(ctx context.Context, mode string, vars ir.Object) (*Result, error) {
	if e.clock == nil {
		last, err := e.store.MaxSeq(ctx)
		if err != nil {
			return nil, err
		}
		e.clock = NewClockAt(last)
	}

	run := ir.Run{
		ID:         e.runIDs.Generate(),
		Deployment: e.deployment,
		Mode:       mode,
		Vars:       vars,
		Status:     ir.RunStatusRunning,
		Seq:        e.clock.Next(),
	}
	if err := e.store.WriteRun(ctx, run); err != nil {
		return nil, err
	}
	slog.Info("run started", "run_id", run.ID, "mode", mode, "deployment", run.Deployment)
	return &Result{Run: run}, nil
}

// complete reconciles the artifacts, records the outcome and finishes the
// run.
func (e *Engine) complete(ctx context.Context, result *Result, artifacts Artifacts) error {
	run := result.Run
	result.InvocationErr = artifacts.InvocationErr

	outcome, reconcileErr := Reconcile(e.translator, artifacts.Manifest, artifacts.RunResults, artifacts.Events, e.clock)
	for i := range outcome.Materializations {
		m := &outcome.Materializations[i]
		m.RunID = run.ID
		id, err := ir.MaterializationID(run.ID, m.AssetKey, m.Seq)
		if err != nil {
			return e.fail(ctx, result, err)
		}
		m.ID = id
	}
	result.Events = outcome.Events
	result.Materializations = outcome.Materializations

	if err := e.record(ctx, result); err != nil {
		return err
	}
	if reconcileErr != nil {
		return e.fail(ctx, result, classify(run.ID, reconcileErr))
	}

	status := runStatus(result, artifacts.RunResults)
	var errMsg string
	if result.InvocationErr != nil {
		errMsg = result.InvocationErr.Error()
	}
	if err := e.store.FinishRun(ctx, run.ID, status, errMsg); err != nil {
		return err
	}
	result.Run.Status = status
	result.Run.Error = errMsg

	slog.Info("run finished",
		"run_id", run.ID,
		"status", status,
		"events", len(result.Events),
		"materializations", len(result.Materializations),
		"last_seq", e.clock.Current())
	return nil
}

// record writes every event and materialization of a run.
func (e *Engine) record(ctx context.Context, result *Result) error {
	for _, ev := range result.Events {
		if err := e.store.WriteEvent(ctx, result.Run.ID, ev); err != nil {
			return err
		}
	}
	for _, m := range result.Materializations {
		if err := e.store.WriteMaterialization(ctx, m); err != nil {
			return err
		}
		slog.Debug("asset materialized", "run_id", m.RunID, "asset_key", m.AssetKey.String(), "seq", m.Seq)
	}
	return nil
}

// fail marks the run as errored and returns cause.
func (e *Engine) fail(ctx context.Context, result *Result, cause error) error {
	slog.Error("run failed", "run_id", result.Run.ID, "error", cause)
	if err := e.store.FinishRun(ctx, result.Run.ID, ir.RunStatusError, cause.Error()); err != nil {
		return errors.Join(cause, err)
	}
	result.Run.Status = ir.RunStatusError
	result.Run.Error = cause.Error()
	return cause
}

// runStatus is success unless dbt exited non-zero, logged a failed node
// or reported one in run_results.json. A failed run that still
// materialized something is a partial failure.
func runStatus(result *Result, results *ir.RunResults) string {
	failed := result.InvocationErr != nil
	for _, ev := range result.Events {
		if ev.Kind == ir.EventFailure {
			failed = true
			break
		}
	}
	if results != nil {
		for _, r := range results.Results {
			if !r.Succeeded() {
				failed = true
				break
			}
		}
	}
	switch {
	case !failed:
		return ir.RunStatusSuccess
	case len(result.Materializations) > 0:
		return ir.RunStatusPartialFailure
	default:
		return ir.RunStatusError
	}
}

// Outcome is the reconciled form of one invocation's event stream.
type Outcome struct {
	// Events are all input events in order, seq-stamped, with enrichment
	// in Attached.
	Events []ir.Event

	// Materializations has one entry per output event. RunID and ID are
	// left for the caller.
	Materializations []ir.Materialization
}

// Reconcile enriches an event stream against the invocation's artifacts
// and derives one materialization per output event. Each event is stamped
// with the next seq from clock.
//
// On a contract violation the events processed before it are returned
// along with the error.
func Reconcile(cfg translator.Config, manifest *ir.Manifest, results *ir.RunResults, events []ir.Event, clock SeqSource) (Outcome, error) {
	cfg = cfg.WithDefaults()

	lookups, err := reconcile.BuildLookups(manifest, results)
	if err != nil {
		return Outcome{Events: []ir.Event{}}, err
	}

	processed, processErr := reconcile.Process(manifest, lookups, events)

	out := Outcome{
		Events:           make([]ir.Event, 0, len(processed)),
		Materializations: []ir.Materialization{},
	}
	for _, ev := range processed {
		ev.Seq = clock.Next()
		out.Events = append(out.Events, ev)

		if !ev.IsOutput() {
			continue
		}
		// Process already checked the unique id is a known string.
		uniqueID := string(ev.UniqueID().(ir.String))
		node := manifest.Nodes[uniqueID]
		out.Materializations = append(out.Materializations, ir.Materialization{
			AssetKey:  translator.AssetKey(node),
			UniqueID:  uniqueID,
			GroupName: translator.GroupName(cfg, node),
			Metadata:  translator.Metadata(cfg, node).Merge(ev.Attached),
			Seq:       ev.Seq,
		})
	}

	if processErr != nil {
		return out, fmt.Errorf("reconcile: %w", processErr)
	}
	return out, nil
}
