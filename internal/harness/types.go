package harness

import (
	"github.com/roach88/dbtbridge/internal/engine"
	"github.com/roach88/dbtbridge/internal/ir"
	"github.com/roach88/dbtbridge/internal/translator"
)

// Result is the outcome of running a scenario.
type Result struct {
	// Pass is true when every assertion held and no unexpected runtime
	// error stopped the run.
	Pass bool

	// Run is the recorded run, read back from the store.
	Run ir.Run

	// Translations are the asset nodes of the manifest, by unique id.
	Translations []translator.Translation

	// Trace is the recorded event stream, read back from the store.
	Trace []ir.Event

	// Materializations are the recorded materializations in seq order.
	Materializations []ir.Materialization

	// Code is the runtime error code the run stopped with, if any.
	Code engine.RuntimeErrorCode

	// Errors lists assertion failures and unexpected runtime errors.
	Errors []string
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []ir.Event{},
		Errors: []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(msg string) {
	r.Pass = false
	r.Errors = append(r.Errors, msg)
}

// translation returns the translation of a unique id.
func (r *Result) translation(uniqueID string) (translator.Translation, bool) {
	for _, tr := range r.Translations {
		if tr.UniqueID == uniqueID {
			return tr, true
		}
	}
	return translator.Translation{}, false
}
