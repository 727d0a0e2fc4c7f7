package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/dbtbridge/internal/ir"
)

// createTestStore creates a new store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRun writes a running run with minimal fields.
func createTestRun(t *testing.T, s *Store, id string, seq int64) ir.Run {
	t.Helper()
	run := ir.Run{ID: id, Deployment: "dev", Mode: "build", Status: ir.RunStatusRunning, Seq: seq}
	require.NoError(t, s.WriteRun(context.Background(), run))
	return run
}

func outputEvent(seq int64, uniqueID, name string) ir.Event {
	return ir.Event{
		Seq:        seq,
		Kind:       ir.EventOutput,
		OutputName: name,
		Status:     ir.StatusSuccess,
		Metadata:   ir.Object{ir.MetaUniqueID: ir.String(uniqueID)},
	}
}

func testMaterialization(runID string, seq int64, key ...string) ir.Materialization {
	return ir.Materialization{
		RunID:     runID,
		AssetKey:  ir.NewAssetKey(key...),
		UniqueID:  "model.shop." + key[len(key)-1],
		GroupName: "core_data",
		Metadata:  ir.Object{"rows_affected": ir.Int(seq * 10)},
		Seq:       seq,
	}
}
