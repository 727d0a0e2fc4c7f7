package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dbtbridge/internal/ir"
)

func TestWriteRunIdempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	run := createTestRun(t, s, "run-1", 1)
	run.Status = ir.RunStatusSuccess
	require.NoError(t, s.WriteRun(ctx, run), "duplicate id is ignored")

	got, err := s.ReadRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, ir.RunStatusRunning, got.Status, "first write wins")
}

func TestWriteRunStoresVersions(t *testing.T) {
	s := createTestStore(t)
	createTestRun(t, s, "run-1", 1)

	var bridge, schema string
	require.NoError(t, s.db.QueryRow(`SELECT bridge_version, schema_version FROM runs WHERE id = ?`, "run-1").Scan(&bridge, &schema))
	assert.Equal(t, ir.BridgeVersion, bridge)
	assert.Equal(t, ir.SchemaVersion, schema)
}

func TestFinishRun(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestRun(t, s, "run-1", 1)

	require.NoError(t, s.FinishRun(ctx, "run-1", ir.RunStatusPartialFailure, "dbt build exited: exit status 1"))

	got, err := s.ReadRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, ir.RunStatusPartialFailure, got.Status)
	assert.Equal(t, "dbt build exited: exit status 1", got.Error)

	assert.Error(t, s.FinishRun(ctx, "ghost", ir.RunStatusSuccess, ""))
}

func TestWriteEventIdempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestRun(t, s, "run-1", 1)

	ev := outputEvent(2, "model.shop.orders", "orders")
	require.NoError(t, s.WriteEvent(ctx, "run-1", ev))
	require.NoError(t, s.WriteEvent(ctx, "run-1", ev))

	events, err := s.ReadEvents(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestWriteEventRequiresRun(t *testing.T) {
	s := createTestStore(t)

	err := s.WriteEvent(context.Background(), "ghost", outputEvent(1, "model.shop.orders", "orders"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FOREIGN KEY")
}

func TestWriteEventRejectsMissingMetadataValue(t *testing.T) {
	s := createTestStore(t)
	createTestRun(t, s, "run-1", 1)

	ev := ir.Event{Seq: 2, Kind: ir.EventOutput, Metadata: ir.Object{"unique_id": nil}}
	assert.Error(t, s.WriteEvent(context.Background(), "run-1", ev))
}

func TestWriteMaterializationFillsID(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestRun(t, s, "run-1", 1)

	m := testMaterialization("run-1", 2, "analytics", "public", "orders")
	require.NoError(t, s.WriteMaterialization(ctx, m))
	require.NoError(t, s.WriteMaterialization(ctx, m), "same content is a no-op")

	got, err := s.ReadMaterializations(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 1)

	wantID, err := ir.MaterializationID("run-1", m.AssetKey, 2)
	require.NoError(t, err)
	assert.Equal(t, wantID, got[0].ID)
}

func TestWriteMaterializationEmptyKey(t *testing.T) {
	s := createTestStore(t)
	createTestRun(t, s, "run-1", 1)

	err := s.WriteMaterialization(context.Background(), ir.Materialization{RunID: "run-1", Seq: 2})
	assert.Error(t, err)
}
