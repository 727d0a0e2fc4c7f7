// Package engine runs a dbt project and records what it produced.
//
// One Execute call is one run:
//
//  1. A run id is generated and the run is written to the store.
//  2. dbt is invoked and its event stream consumed once.
//  3. Lookups are built from the invocation's own manifest and run results.
//  4. Every output event is enriched (rows_affected, compiled_sql, owner).
//  5. Events are stamped from the logical clock and written, together with
//     one materialization per output event.
//  6. The run is marked success, partial_failure or error.
//
// Runs are synchronous and single-threaded. Lookups are rebuilt for every
// run and never shared. All ordering uses the seq from Clock, never wall
// time, and the clock resumes from the highest seq in the store.
package engine
