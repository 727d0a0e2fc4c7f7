// Package config loads the dbtbridge configuration: translator settings
// and named deployments, written in CUE.
//
// A configuration directory holds one or more .cue files and optionally a
// .env file. Load reads the .env first (existing environment variables
// win), then builds the CUE instance, unifies it with the embedded schema
// and compiles it into a Config. Resolve picks one deployment by name.
//
//	translator: {
//		partition_column: "day_dt"
//		partition_overrides: orders: "order_date"
//	}
//	deployment: prod: {
//		dbt: {
//			project_dir: "../warehouse"
//			target:      "prod"
//			exclude:     "tag:long_running_test"
//		}
//		warehouse: path: "/data/ascii.duckdb"
//		store: path:     "/data/dbtbridge.db"
//	}
//
// The Config is built once at process start and passed explicitly; there
// is no package-level state.
package config
