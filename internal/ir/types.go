package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Manifest is the static description of a dbt project (target/manifest.json).
// Only the fields the bridge reads are declared; the rest is ignored.
type Manifest struct {
	Metadata ManifestMetadata        `json:"metadata"`
	Nodes    map[string]ManifestNode `json:"nodes"`
	Sources  map[string]ManifestNode `json:"sources,omitempty"`
}

// ManifestMetadata identifies the dbt invocation that produced a manifest.
type ManifestMetadata struct {
	DbtVersion   string `json:"dbt_version"`
	ProjectName  string `json:"project_name,omitempty"`
	GeneratedAt  string `json:"generated_at"`
	InvocationID string `json:"invocation_id"`
}

// ManifestNode is one dbt resource (model, seed, snapshot, test).
type ManifestNode struct {
	UniqueID         string            `json:"unique_id"`
	ResourceType     string            `json:"resource_type"`
	Name             string            `json:"name"`
	Version          NodeVersion       `json:"version,omitempty"`
	Database         string            `json:"database"`
	Schema           string            `json:"schema"`
	Alias            string            `json:"alias,omitempty"`
	Path             string            `json:"path"`
	OriginalFilePath string            `json:"original_file_path,omitempty"`
	Group            string            `json:"group,omitempty"`
	Meta             map[string]any    `json:"meta,omitempty"` // free-form, user owned
	Config           NodeConfig        `json:"config"`
	CompiledCode     string            `json:"compiled_code,omitempty"`
	RelationName     string            `json:"relation_name,omitempty"`
	Columns          map[string]Column `json:"columns,omitempty"`
	DependsOn        DependsOn         `json:"depends_on"`
	Tags             []string          `json:"tags,omitempty"`
}

// dbt resource types the bridge distinguishes.
const (
	ResourceModel    = "model"
	ResourceSeed     = "seed"
	ResourceSnapshot = "snapshot"
	ResourceTest     = "test"
	ResourceUnitTest = "unit_test"
)

// IsAssetResource reports whether nodes of this resource type materialize
// data. An empty type is read as a model.
func IsAssetResource(resourceType string) bool {
	switch resourceType {
	case ResourceModel, ResourceSeed, ResourceSnapshot, "":
		return true
	default:
		return false
	}
}

// IsTestResource reports whether the resource type is a data or unit test.
func IsTestResource(resourceType string) bool {
	return resourceType == ResourceTest || resourceType == ResourceUnitTest
}

// NodeConfig is the resolved dbt config block of a node.
type NodeConfig struct {
	Materialized string         `json:"materialized,omitempty"`
	Group        string         `json:"group,omitempty"`
	Meta         map[string]any `json:"meta,omitempty"`
	Tags         []string       `json:"tags,omitempty"`
}

// Column is a documented column of a node.
type Column struct {
	Name        string `json:"name"`
	DataType    string `json:"data_type,omitempty"`
	Description string `json:"description,omitempty"`
}

// DependsOn lists upstream unique ids.
type DependsOn struct {
	Nodes []string `json:"nodes,omitempty"`
}

// NodeVersion is a dbt model version. dbt accepts both numbers and strings,
// so the raw JSON text of a number is kept as-is ("2", "1.5").
// The zero value means the node is unversioned.
type NodeVersion string

// UnmarshalJSON implements json.Unmarshaler.
func (v *NodeVersion) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*v = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = NodeVersion(s)
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("version must be a string or number: %w", err)
		}
		*v = NodeVersion(n.String())
	}
	return nil
}

// IsSet reports whether the node declares a version.
func (v NodeVersion) IsSet() bool {
	return v != ""
}

// RunResults is the execution outcome of a dbt invocation
// (target/run_results.json).
type RunResults struct {
	Metadata    ManifestMetadata `json:"metadata"`
	Results     []RunResult      `json:"results"`
	ElapsedTime json.Number      `json:"elapsed_time,omitempty"`
}

// RunResult is the outcome of one executed node.
type RunResult struct {
	UniqueID        string          `json:"unique_id"`
	Status          string          `json:"status"`
	Message         string          `json:"message,omitempty"`
	ThreadID        string          `json:"thread_id,omitempty"`
	AdapterResponse AdapterResponse `json:"adapter_response"`
}

// AdapterResponse is the warehouse adapter's report for one node.
type AdapterResponse struct {
	Message      string `json:"_message,omitempty"`
	Code         string `json:"code,omitempty"`
	RowsAffected *int64 `json:"rows_affected,omitempty"` // absent for views and some adapters
}

// Run result statuses reported by dbt.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusSkipped = "skipped"
	StatusPass    = "pass"
	StatusFail    = "fail"
	StatusWarn    = "warn"
)

// Succeeded reports whether the result counts as a successful execution.
func (r RunResult) Succeeded() bool {
	switch r.Status {
	case StatusSuccess, StatusPass, StatusWarn:
		return true
	default:
		return false
	}
}
