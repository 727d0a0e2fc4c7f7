// Package store provides SQLite-backed durable storage for dbt runs.
//
// The store is an append-only log of:
//   - Runs: one row per dbt invocation, with its final status
//   - Events: every item of the run's event stream, enriched metadata included
//   - Materializations: one row per output event, keyed by asset key
//
// All ordering uses the logical seq column, never wall-clock time. Every
// query that returns several rows orders by seq ASC, id COLLATE BINARY ASC
// so reads are identical across processes.
//
// Event and materialization ids are content-addressed (see ir.EventID and
// ir.MaterializationID), and inserts use ON CONFLICT DO NOTHING, so writing
// the same run twice is a no-op.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
