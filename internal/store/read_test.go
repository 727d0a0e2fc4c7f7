package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dbtbridge/internal/ir"
)

func TestReadRunNotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.ReadRun(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestReadRunVars(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	vars := ir.Object{"min_date": ir.String("2024-01-01 00:00:00+00:00"), "max_date": ir.String("2024-01-02 00:00:00+00:00")}
	require.NoError(t, s.WriteRun(ctx, ir.Run{ID: "run-1", Deployment: "prod", Mode: "run", Vars: vars, Status: ir.RunStatusRunning, Seq: 3}))

	got, err := s.ReadRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, ir.Run{ID: "run-1", Deployment: "prod", Mode: "run", Vars: vars, Status: ir.RunStatusRunning, Seq: 3}, got)
}

func TestListRuns(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	createTestRun(t, s, "run-b", 20)
	createTestRun(t, s, "run-a", 10)
	createTestRun(t, s, "run-c", 30)

	all, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"run-a", "run-b", "run-c"}, []string{all[0].ID, all[1].ID, all[2].ID})

	recent, err := s.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "run-b", recent[0].ID)
	assert.Equal(t, "run-c", recent[1].ID)
}

func TestReadEventsRoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestRun(t, s, "run-1", 1)

	enriched := outputEvent(3, "model.shop.orders", "orders")
	enriched.Attached = ir.Object{"rows_affected": ir.Int(9007199254740993), "owner": ir.String("data-team")}

	written := []ir.Event{
		{Seq: 2, Kind: ir.EventLog, Message: "Running with dbt=1.8.0", Metadata: ir.Object{}},
		enriched,
		{Seq: 4, Kind: ir.EventFailure, OutputName: "customers", Status: ir.StatusError, Metadata: ir.Object{ir.MetaUniqueID: ir.Int(7)}},
	}
	// Written out of order; reads come back by seq.
	for _, i := range []int{2, 0, 1} {
		require.NoError(t, s.WriteEvent(ctx, "run-1", written[i]))
	}

	got, err := s.ReadEvents(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, written, got)
}

func TestReadEventsEmpty(t *testing.T) {
	s := createTestStore(t)

	got, err := s.ReadEvents(context.Background(), "ghost")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestMaterializationHistory(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	orders := ir.NewAssetKey("analytics", "public", "orders")

	_, found, err := s.LatestMaterialization(ctx, orders)
	require.NoError(t, err)
	assert.False(t, found)

	createTestRun(t, s, "run-1", 1)
	createTestRun(t, s, "run-2", 10)
	require.NoError(t, s.WriteMaterialization(ctx, testMaterialization("run-1", 2, "analytics", "public", "orders")))
	require.NoError(t, s.WriteMaterialization(ctx, testMaterialization("run-1", 3, "analytics", "public", "customers")))
	require.NoError(t, s.WriteMaterialization(ctx, testMaterialization("run-2", 11, "analytics", "public", "orders")))

	history, err := s.ListMaterializations(ctx, orders)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "run-1", history[0].RunID)
	assert.Equal(t, "run-2", history[1].RunID)
	assert.Equal(t, orders, history[1].AssetKey)
	assert.Equal(t, ir.Object{"rows_affected": ir.Int(110)}, history[1].Metadata)

	latest, found, err := s.LatestMaterialization(ctx, orders)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(11), latest.Seq)

	perRun, err := s.ReadMaterializations(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, perRun, 2)
	assert.Equal(t, "model.shop.orders", perRun[0].UniqueID)
	assert.Equal(t, "model.shop.customers", perRun[1].UniqueID)
}

func TestAssetKeysWithSlashesDoNotCollide(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestRun(t, s, "run-1", 1)

	require.NoError(t, s.WriteMaterialization(ctx, testMaterialization("run-1", 2, "a/b", "c")))
	require.NoError(t, s.WriteMaterialization(ctx, testMaterialization("run-1", 3, "a", "b/c")))

	got, err := s.ListMaterializations(ctx, ir.NewAssetKey("a", "b/c"))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(3), got[0].Seq)
}

func TestGetRunSummary(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestRun(t, s, "run-1", 1)

	require.NoError(t, s.WriteEvent(ctx, "run-1", ir.Event{Seq: 2, Kind: ir.EventLog, Message: "start"}))
	require.NoError(t, s.WriteEvent(ctx, "run-1", outputEvent(3, "model.shop.orders", "orders")))
	require.NoError(t, s.WriteEvent(ctx, "run-1", ir.Event{Seq: 4, Kind: ir.EventObservation, Metadata: ir.Object{ir.MetaUniqueID: ir.String("test.shop.nn")}}))
	require.NoError(t, s.WriteEvent(ctx, "run-1", ir.Event{Seq: 5, Kind: ir.EventFailure, Metadata: ir.Object{ir.MetaUniqueID: ir.String("model.shop.customers")}}))
	require.NoError(t, s.WriteMaterialization(ctx, testMaterialization("run-1", 3, "analytics", "public", "orders")))

	summary, err := s.GetRunSummary(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Events)
	assert.Equal(t, 1, summary.Outputs)
	assert.Equal(t, 1, summary.Observations)
	assert.Equal(t, 1, summary.Failures)
	assert.Equal(t, 1, summary.Materializations)
	assert.Equal(t, int64(5), summary.LastSeq)

	_, err = s.GetRunSummary(ctx, "ghost")
	assert.ErrorIs(t, err, ErrRunNotFound)
}
