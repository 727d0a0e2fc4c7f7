package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/dbtbridge/internal/dbtcli"
	"github.com/roach88/dbtbridge/internal/reconcile"
)

// RuntimeError is an error that aborts a run.
//
// A failing dbt process is not a RuntimeError: it is recorded as failure
// events and a partial_failure or error run status. RuntimeErrors are for
// contract violations between dbt's outputs.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// RunID identifies the affected run.
	RunID string

	// Err is the underlying cause.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeTypeContract indicates a value of the wrong type, such as a
	// non-string unique_id on an output event.
	ErrCodeTypeContract RuntimeErrorCode = "TYPE_CONTRACT"

	// ErrCodeUnknownNode indicates a unique id with no manifest node.
	ErrCodeUnknownNode RuntimeErrorCode = "UNKNOWN_NODE"

	// ErrCodeDuplicateAssetKey indicates two manifest nodes with one asset key.
	ErrCodeDuplicateAssetKey RuntimeErrorCode = "DUPLICATE_ASSET_KEY"

	// ErrCodeArtifactMissing indicates dbt wrote no manifest.
	ErrCodeArtifactMissing RuntimeErrorCode = "ARTIFACT_MISSING"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.RunID != "" {
		return fmt.Sprintf("%s: %s (run=%s)", e.Code, e.Message, e.RunID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// CodeOf returns the RuntimeErrorCode of err, or "" when err is not a
// RuntimeError. Uses errors.As to handle wrapped errors.
func CodeOf(err error) RuntimeErrorCode {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}

// classify wraps reconciliation and artifact errors in a RuntimeError with
// the matching code. Other errors are returned unchanged.
func classify(runID string, err error) error {
	if err == nil {
		return nil
	}
	var code RuntimeErrorCode
	var dup *reconcile.DuplicateAssetKeyError
	switch {
	case reconcile.IsTypeContractError(err):
		code = ErrCodeTypeContract
	case errors.As(err, &dup):
		code = ErrCodeDuplicateAssetKey
	case errors.Is(err, reconcile.ErrUnknownNode):
		code = ErrCodeUnknownNode
	case errors.Is(err, dbtcli.ErrArtifactMissing):
		code = ErrCodeArtifactMissing
	default:
		return err
	}
	return &RuntimeError{Code: code, Message: err.Error(), RunID: runID, Err: err}
}
