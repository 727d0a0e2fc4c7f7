package store

import (
	"context"
	"fmt"

	"github.com/roach88/dbtbridge/internal/ir"
)

// WriteRun inserts a run record.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - duplicate IDs are silently ignored.
func (s *Store) WriteRun(ctx context.Context, run ir.Run) error {
	varsJSON, err := marshalObject("vars", run.Vars)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs
		(id, deployment, mode, vars, status, error, seq, bridge_version, schema_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		run.Deployment,
		run.Mode,
		varsJSON,
		run.Status,
		run.Error,
		run.Seq,
		ir.BridgeVersion,
		ir.SchemaVersion,
	)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	return nil
}

// FinishRun records the final status of a run.
// This is the only update the store performs; everything else is append-only.
func (s *Store) FinishRun(ctx context.Context, runID, status, errMsg string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, error = ? WHERE id = ?
	`, status, errMsg, runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finish run: run %q not found", runID)
	}
	return nil
}

// WriteEvent appends one event of a run. Its id is content-addressed from
// the run id and the observed fields, so rewriting an event is a no-op.
//
// Note: The run referenced by runID must exist (foreign key constraint).
func (s *Store) WriteEvent(ctx context.Context, runID string, ev ir.Event) error {
	id, err := ir.EventID(runID, ev)
	if err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	metadataJSON, err := marshalObject("metadata", ev.Metadata)
	if err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	attachedJSON, err := marshalObject("attached", ev.Attached)
	if err != nil {
		return fmt.Errorf("write event: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events
		(id, run_id, seq, kind, output_name, status, message, metadata, attached)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		id,
		runID,
		ev.Seq,
		ev.Kind,
		ev.OutputName,
		ev.Status,
		ev.Message,
		metadataJSON,
		attachedJSON,
	)
	if err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

// WriteMaterialization appends one asset materialization.
// An empty ID is filled in with ir.MaterializationID.
//
// Note: The run referenced by m.RunID must exist (foreign key constraint).
func (s *Store) WriteMaterialization(ctx context.Context, m ir.Materialization) error {
	if m.ID == "" {
		id, err := ir.MaterializationID(m.RunID, m.AssetKey, m.Seq)
		if err != nil {
			return fmt.Errorf("write materialization: %w", err)
		}
		m.ID = id
	}
	if len(m.AssetKey) == 0 {
		return fmt.Errorf("write materialization: empty asset key")
	}
	metadataJSON, err := marshalObject("metadata", m.Metadata)
	if err != nil {
		return fmt.Errorf("write materialization: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO materializations
		(id, run_id, asset_key, unique_id, group_name, metadata, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		m.ID,
		m.RunID,
		m.AssetKey.ID(),
		m.UniqueID,
		m.GroupName,
		metadataJSON,
		m.Seq,
	)
	if err != nil {
		return fmt.Errorf("write materialization: %w", err)
	}
	return nil
}
