// Package ir provides the shared types for dbtbridge: the dbt artifact shapes
// (manifest, run results), asset keys, execution events and the constrained
// metadata value type.
//
// This package imports nothing internal. Every other internal package builds
// on it.
//
// Key design constraints:
//   - Metadata values are a sealed set (string, int, bool, array, object, null)
//   - NO float types in metadata - use int64 for numbers
//   - All JSON tags use snake_case, matching the dbt artifact schema
//   - Persisted metadata is always RFC 8785 canonical JSON
package ir
