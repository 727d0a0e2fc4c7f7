package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/dbtbridge/internal/ir"
)

// ErrRunNotFound is returned by ReadRun for an unknown run id.
var ErrRunNotFound = errors.New("run not found")

// rowScanner is the common interface of *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

const runColumns = `id, deployment, mode, vars, status, error, seq`

// ReadRun returns one run by id.
func (s *Store) ReadRun(ctx context.Context, runID string) (ir.Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return ir.Run{}, err
	}
	return run, nil
}

// ListRuns returns the most recent runs, oldest first. A limit <= 0 returns
// every run.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]ir.Run, error) {
	query := `
		SELECT ` + runColumns + ` FROM (
			SELECT ` + runColumns + ` FROM runs
			ORDER BY seq DESC, id COLLATE BINARY DESC
			LIMIT ?
		)
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []ir.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadEvents returns the event stream of a run in seq order.
// Returns an empty slice (not nil) if the run has no events.
func (s *Store) ReadEvents(ctx context.Context, runID string) ([]ir.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, kind, output_name, status, message, metadata, attached
		FROM events
		WHERE run_id = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []ir.Event{}
	for rows.Next() {
		var (
			ev                     ir.Event
			metadataJSON, attached string
		)
		if err := rows.Scan(&ev.Seq, &ev.Kind, &ev.OutputName, &ev.Status, &ev.Message, &metadataJSON, &attached); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if ev.Metadata, err = unmarshalObject("metadata", metadataJSON); err != nil {
			return nil, err
		}
		if ev.Attached, err = unmarshalObject("attached", attached); err != nil {
			return nil, err
		}
		if len(ev.Attached) == 0 {
			ev.Attached = nil
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

const materializationColumns = `id, run_id, asset_key, unique_id, group_name, metadata, seq`

// ReadMaterializations returns the materializations recorded by a run.
func (s *Store) ReadMaterializations(ctx context.Context, runID string) ([]ir.Materialization, error) {
	return s.queryMaterializations(ctx, `
		SELECT `+materializationColumns+`
		FROM materializations
		WHERE run_id = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, runID)
}

// ListMaterializations returns every materialization of one asset across
// runs, oldest first.
func (s *Store) ListMaterializations(ctx context.Context, key ir.AssetKey) ([]ir.Materialization, error) {
	return s.queryMaterializations(ctx, `
		SELECT `+materializationColumns+`
		FROM materializations
		WHERE asset_key = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, key.ID())
}

// LatestMaterialization returns the most recent materialization of an
// asset. The bool is false when the asset was never materialized.
func (s *Store) LatestMaterialization(ctx context.Context, key ir.AssetKey) (ir.Materialization, bool, error) {
	ms, err := s.queryMaterializations(ctx, `
		SELECT `+materializationColumns+`
		FROM materializations
		WHERE asset_key = ?
		ORDER BY seq DESC, id COLLATE BINARY DESC
		LIMIT 1
	`, key.ID())
	if err != nil {
		return ir.Materialization{}, false, err
	}
	if len(ms) == 0 {
		return ir.Materialization{}, false, nil
	}
	return ms[0], true, nil
}

func (s *Store) queryMaterializations(ctx context.Context, query string, args ...any) ([]ir.Materialization, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query materializations: %w", err)
	}
	defer rows.Close()

	out := []ir.Materialization{}
	for rows.Next() {
		m, err := scanMaterialization(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate materializations: %w", err)
	}
	return out, nil
}

func scanRun(row rowScanner) (ir.Run, error) {
	var (
		run      ir.Run
		varsJSON string
	)
	if err := row.Scan(&run.ID, &run.Deployment, &run.Mode, &varsJSON, &run.Status, &run.Error, &run.Seq); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return run, err
		}
		return run, fmt.Errorf("scan run: %w", err)
	}
	vars, err := unmarshalObject("vars", varsJSON)
	if err != nil {
		return run, err
	}
	if len(vars) > 0 {
		run.Vars = vars
	}
	return run, nil
}

func scanMaterialization(row rowScanner) (ir.Materialization, error) {
	var (
		m                     ir.Materialization
		keyJSON, metadataJSON string
	)
	if err := row.Scan(&m.ID, &m.RunID, &keyJSON, &m.UniqueID, &m.GroupName, &metadataJSON, &m.Seq); err != nil {
		return m, fmt.Errorf("scan materialization: %w", err)
	}
	key, err := unmarshalAssetKey(keyJSON)
	if err != nil {
		return m, err
	}
	m.AssetKey = key
	if m.Metadata, err = unmarshalObject("metadata", metadataJSON); err != nil {
		return m, err
	}
	return m, nil
}
