package store

import (
	"context"
	"fmt"

	"github.com/roach88/dbtbridge/internal/ir"
)

// RunSummary is the recorded state of one run, for history output.
type RunSummary struct {
	Run              ir.Run
	Events           int
	Outputs          int
	Observations     int
	Failures         int
	Materializations int
	LastSeq          int64
}

// GetRunSummary counts the events and materializations recorded for a run.
func (s *Store) GetRunSummary(ctx context.Context, runID string) (RunSummary, error) {
	run, err := s.ReadRun(ctx, runID)
	if err != nil {
		return RunSummary{}, fmt.Errorf("get run summary: %w", err)
	}
	summary := RunSummary{Run: run, LastSeq: run.Seq}

	events, err := s.ReadEvents(ctx, runID)
	if err != nil {
		return summary, fmt.Errorf("get run summary: %w", err)
	}
	summary.Events = len(events)
	for _, ev := range events {
		switch ev.Kind {
		case ir.EventOutput:
			summary.Outputs++
		case ir.EventObservation:
			summary.Observations++
		case ir.EventFailure:
			summary.Failures++
		}
		if ev.Seq > summary.LastSeq {
			summary.LastSeq = ev.Seq
		}
	}

	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM materializations WHERE run_id = ?
	`, runID).Scan(&summary.Materializations); err != nil {
		return summary, fmt.Errorf("get run summary: count materializations: %w", err)
	}
	return summary, nil
}
