package harness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/dbtbridge/internal/dbtcli"
	"github.com/roach88/dbtbridge/internal/ir"
	"github.com/roach88/dbtbridge/internal/translator"
)

// Scenario is one translation scenario.
type Scenario struct {
	// Name uniquely identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario validates.
	Description string `yaml:"description"`

	// Translator overrides translation defaults.
	Translator TranslatorSpec `yaml:"translator,omitempty"`

	// Nodes are manifest nodes keyed by unique id.
	Nodes map[string]map[string]any `yaml:"nodes"`

	// RunResults are run_results.json entries. Omitted means dbt wrote
	// no run results.
	RunResults []map[string]any `yaml:"run_results,omitempty"`

	// Events is the dbt event stream, in order.
	Events []EventStep `yaml:"events,omitempty"`

	// Assertions validate the translations and the recorded run.
	Assertions []Assertion `yaml:"assertions"`

	// RunID fixes the run id. Defaults to testutil.DefaultRunID.
	RunID string `yaml:"run_id,omitempty"`
}

// TranslatorSpec mirrors translator.Config.
type TranslatorSpec struct {
	PartitionColumn    string            `yaml:"partition_column,omitempty"`
	PartitionOverrides map[string]string `yaml:"partition_overrides,omitempty"`
	ModelPaths         []string          `yaml:"model_paths,omitempty"`
	SourcePrefix       string            `yaml:"source_prefix,omitempty"`
	RawDataGroup       string            `yaml:"raw_data_group,omitempty"`
	UpstreamGroup      string            `yaml:"upstream_group,omitempty"`
}

// Config converts the scenario translator section into a translator.Config with defaults applied.
func (t TranslatorSpec) Config() translator.Config {
	return translator.Config{
		PartitionColumn:    t.PartitionColumn,
		PartitionOverrides: t.PartitionOverrides,
		ModelPaths:         t.ModelPaths,
		SourcePrefix:       t.SourcePrefix,
		RawDataGroup:       t.RawDataGroup,
		UpstreamGroup:      t.UpstreamGroup,
	}.WithDefaults()
}

// EventStep is one event of the stream: either Line, a raw dbt log line,
// or the spelled-out fields.
type EventStep struct {
	Line string `yaml:"line,omitempty"`

	Kind     string         `yaml:"kind,omitempty"`
	Output   string         `yaml:"output,omitempty"`
	Status   string         `yaml:"status,omitempty"`
	Message  string         `yaml:"message,omitempty"`
	Metadata map[string]any `yaml:"metadata,omitempty"`
}

// Assertion validates the translations or the recorded run.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Node is a unique id (asset_key, group, metadata).
	Node string `yaml:"node,omitempty"`

	// Output is an event output name (attached, not_attached).
	Output string `yaml:"output,omitempty"`

	// Key is an asset key (asset_key, latest_materialization).
	Key []string `yaml:"key,omitempty"`

	// Group is the expected group (group).
	Group string `yaml:"group,omitempty"`

	// Metadata is matched as a subset (metadata, attached,
	// latest_materialization).
	Metadata map[string]any `yaml:"metadata,omitempty"`

	// Keys must be absent (not_attached).
	Keys []string `yaml:"keys,omitempty"`

	// Kind is an event kind (trace_count).
	Kind string `yaml:"kind,omitempty"`

	// Count is the expected number (trace_count, materialization_count).
	Count int `yaml:"count,omitempty"`

	// Status is the expected run status (run_status).
	Status string `yaml:"status,omitempty"`

	// Code is the expected runtime error code (error).
	Code string `yaml:"code,omitempty"`
}

// Assertion type constants.
const (
	AssertAssetKey              = "asset_key"
	AssertGroup                 = "group"
	AssertMetadata              = "metadata"
	AssertAttached              = "attached"
	AssertNotAttached           = "not_attached"
	AssertTraceCount            = "trace_count"
	AssertMaterializationCount  = "materialization_count"
	AssertLatestMaterialization = "latest_materialization"
	AssertRunStatus             = "run_status"
	AssertError                 = "error"
)

var eventKinds = []string{ir.EventOutput, ir.EventObservation, ir.EventFailure, ir.EventLog}

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so that typos do not silently pass.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Nodes) == 0 {
		return fmt.Errorf("nodes map is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Events {
		if step.Line != "" {
			if step.Kind != "" || step.Output != "" || step.Status != "" || step.Message != "" || step.Metadata != nil {
				return fmt.Errorf("events[%d]: line cannot be combined with other fields", i)
			}
			continue
		}
		if !slices.Contains(eventKinds, step.Kind) {
			return fmt.Errorf("events[%d]: kind must be one of %v, got %q", i, eventKinds, step.Kind)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertAssetKey:
		if a.Node == "" || len(a.Key) == 0 {
			return fmt.Errorf("assertions[%d]: node and key are required for asset_key", index)
		}
	case AssertGroup:
		if a.Node == "" || a.Group == "" {
			return fmt.Errorf("assertions[%d]: node and group are required for group", index)
		}
	case AssertMetadata:
		if a.Node == "" || len(a.Metadata) == 0 {
			return fmt.Errorf("assertions[%d]: node and metadata are required for metadata", index)
		}
	case AssertAttached:
		if a.Output == "" || len(a.Metadata) == 0 {
			return fmt.Errorf("assertions[%d]: output and metadata are required for attached", index)
		}
	case AssertNotAttached:
		if a.Output == "" || len(a.Keys) == 0 {
			return fmt.Errorf("assertions[%d]: output and keys are required for not_attached", index)
		}
	case AssertTraceCount:
		if !slices.Contains(eventKinds, a.Kind) {
			return fmt.Errorf("assertions[%d]: kind must be one of %v for trace_count", index, eventKinds)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertMaterializationCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for materialization_count", index)
		}
	case AssertLatestMaterialization:
		if len(a.Key) == 0 {
			return fmt.Errorf("assertions[%d]: key is required for latest_materialization", index)
		}
	case AssertRunStatus:
		if a.Status == "" {
			return fmt.Errorf("assertions[%d]: status is required for run_status", index)
		}
	case AssertError:
		if a.Code == "" {
			return fmt.Errorf("assertions[%d]: code is required for error", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

// Manifest builds a manifest from the scenario nodes. Each entry is decoded
// with the manifest.json field names; unique_id defaults to the map key.
func (s *Scenario) Manifest() (*ir.Manifest, error) {
	m := &ir.Manifest{Nodes: make(map[string]ir.ManifestNode, len(s.Nodes))}
	for id, fields := range s.Nodes {
		var node ir.ManifestNode
		if err := reencode(fields, &node); err != nil {
			return nil, fmt.Errorf("node %q: %w", id, err)
		}
		if node.UniqueID == "" {
			node.UniqueID = id
		}
		if node.ResourceType == "" {
			node.ResourceType = "model"
		}
		m.Nodes[id] = node
	}
	return m, nil
}

// RunResultsArtifact builds run results from the scenario, or nil when the
// scenario has none.
func (s *Scenario) RunResultsArtifact() (*ir.RunResults, error) {
	if s.RunResults == nil {
		return nil, nil
	}
	rr := &ir.RunResults{Results: make([]ir.RunResult, 0, len(s.RunResults))}
	for i, fields := range s.RunResults {
		var result ir.RunResult
		if err := reencode(fields, &result); err != nil {
			return nil, fmt.Errorf("run_results[%d]: %w", i, err)
		}
		rr.Results = append(rr.Results, result)
	}
	return rr, nil
}

// EventStream builds the event stream from the scenario.
func (s *Scenario) EventStream() ([]ir.Event, error) {
	events := make([]ir.Event, 0, len(s.Events))
	for i, step := range s.Events {
		if step.Line != "" {
			events = append(events, dbtcli.ParseLogLine([]byte(step.Line)))
			continue
		}
		ev := ir.Event{
			Kind:       step.Kind,
			OutputName: step.Output,
			Status:     step.Status,
			Message:    step.Message,
		}
		if step.Metadata != nil {
			md, ok := ir.FromAny(step.Metadata)
			if !ok {
				return nil, fmt.Errorf("events[%d]: metadata is not representable", i)
			}
			ev.Metadata = md.(ir.Object)
		}
		events = append(events, ev)
	}
	return events, nil
}

// reencode moves YAML-decoded fields into a JSON-tagged struct.
func reencode(fields map[string]any, v any) error {
	data, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
