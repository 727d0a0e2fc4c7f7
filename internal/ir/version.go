package ir

// Version constants for the persisted schema and the bridge.
const (
	// SchemaVersion is the version of the persisted event log format.
	SchemaVersion = "1"

	// BridgeVersion is the dbtbridge version.
	BridgeVersion = "0.1.0"
)
