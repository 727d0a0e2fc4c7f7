// Package harness runs translation scenarios: a handful of manifest nodes,
// an optional dbt event stream and a translator config, checked against
// assertions and a golden trace.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: versioned_models
//	description: "Versioned models get a _v suffix"
//	translator:
//	  partition_column: event_date
//	  partition_overrides: { orders: order_day }
//	nodes:
//	  model.shop.orders:
//	    name: orders
//	    database: analytics
//	    schema: public
//	    path: core_data/orders.sql
//	run_results:
//	  - unique_id: model.shop.orders
//	    status: success
//	    adapter_response: { rows_affected: 3 }
//	events:
//	  - kind: output
//	    output: orders
//	    metadata: { unique_id: model.shop.orders }
//	  - line: '{"info": {"name": "NodeFinished", ...}, "data": {...}}'
//	assertions:
//	  - type: asset_key
//	    node: model.shop.orders
//	    key: [analytics, public, orders]
//	  - type: attached
//	    output: orders
//	    metadata: { rows_affected: 3 }
//
// Node and run result entries use the field names of manifest.json and
// run_results.json. An event is either spelled out or given as a raw dbt
// log line, which is parsed the way a live invocation's stdout is.
//
// # Assertion Types
//
//   - asset_key: the translated key of a node
//   - group: the translated group of a node
//   - metadata: a subset of a node's definition metadata
//   - attached: a subset of what reconciliation attached to an output
//   - not_attached: keys that must not be attached to an output
//   - trace_count: number of trace events of a kind
//   - materialization_count: number of recorded materializations
//   - latest_materialization: the stored latest materialization of a key
//   - run_status: the recorded run status
//   - error: the runtime error code reconciliation stopped with
//
// # Deterministic Testing
//
// Every scenario runs against a fresh in-memory store with a fixed run id
// (scenario.run_id, or testutil.DefaultRunID) and a deterministic clock, so
// the golden trace is byte-identical across runs.
package harness
