// Package dbtcli drives the dbt command line as a subprocess.
//
// A Project wraps one dbt project directory. Invoke starts `dbt build` or
// `dbt run` with structured JSON logging and returns an Invocation whose
// event stream is read exactly once. After the stream is drained the
// manifest and run results written to the target directory can be loaded.
//
// A non-zero dbt exit code is not an Invoke error. It is recorded on the
// Invocation (see Err) and shows up as failure events and failed run
// results, so the nodes that did succeed are still reported.
package dbtcli
