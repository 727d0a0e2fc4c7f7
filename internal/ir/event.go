package ir

// EventKind classifies an item of the execution event stream.
type EventKind = string

// Event kinds.
const (
	// EventOutput is a successfully materialized node (model, seed, snapshot).
	EventOutput EventKind = "output"
	// EventObservation is a completed data test.
	EventObservation EventKind = "observation"
	// EventFailure is a node that errored, failed or was skipped.
	EventFailure EventKind = "failure"
	// EventLog is any other structured log line.
	EventLog EventKind = "log"
)

// MetaUniqueID is the metadata key carrying the dbt unique id of a node.
const MetaUniqueID = "unique_id"

// Event is one item of the sequential execution event stream.
//
// Metadata is what the producer observed (it always carries unique_id for
// node events, typed as whatever the producer emitted). Attached is the
// side channel filled in by reconciliation; it never changes which events
// exist or their order.
type Event struct {
	Seq        int64     `json:"seq"`
	Kind       EventKind `json:"kind"`
	OutputName string    `json:"output_name,omitempty"`
	Status     string    `json:"status,omitempty"`
	Message    string    `json:"message,omitempty"`
	Metadata   Object    `json:"metadata"`
	Attached   Object    `json:"attached,omitempty"`
}

// IsOutput reports whether the event is a materialized output.
func (e Event) IsOutput() bool {
	return e.Kind == EventOutput
}

// UniqueID returns the raw unique_id metadata value, or nil when absent.
func (e Event) UniqueID() Value {
	if e.Metadata == nil {
		return nil
	}
	return e.Metadata[MetaUniqueID]
}

// Materialization is an enriched output event recorded against an asset.
type Materialization struct {
	ID        string   `json:"id"`
	RunID     string   `json:"run_id"`
	AssetKey  AssetKey `json:"asset_key"`
	UniqueID  string   `json:"unique_id"`
	GroupName string   `json:"group_name,omitempty"`
	Metadata  Object   `json:"metadata"`
	Seq       int64    `json:"seq"`
}

// Run is one execution of the dbt project.
type Run struct {
	ID         string `json:"id"`
	Deployment string `json:"deployment"`
	Mode       string `json:"mode"`
	Vars       Object `json:"vars,omitempty"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	Seq        int64  `json:"seq"`
}

// Run statuses.
const (
	RunStatusRunning        = "running"
	RunStatusSuccess        = "success"
	RunStatusPartialFailure = "partial_failure"
	RunStatusError          = "error"
)
