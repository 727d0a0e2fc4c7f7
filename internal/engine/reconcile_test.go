package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dbtbridge/internal/ir"
	"github.com/roach88/dbtbridge/internal/translator"
)

func offlineManifest() *ir.Manifest {
	return &ir.Manifest{Nodes: map[string]ir.ManifestNode{
		"model.p.orders": {
			UniqueID:     "model.p.orders",
			ResourceType: "model",
			Name:         "orders",
			Database:     "analytics",
			Schema:       "public",
			Path:         "models/source_raw/orders.sql",
		},
	}}
}

func TestReconcileOffline(t *testing.T) {
	rows := int64(5)
	results := &ir.RunResults{Results: []ir.RunResult{
		{UniqueID: "model.p.orders", Status: ir.StatusSuccess, AdapterResponse: ir.AdapterResponse{RowsAffected: &rows}},
	}}
	events := []ir.Event{
		{Kind: ir.EventLog, Message: "start"},
		{Kind: ir.EventOutput, OutputName: "orders", Metadata: ir.Object{ir.MetaUniqueID: ir.String("model.p.orders")}},
	}

	out, err := Reconcile(translator.Config{PartitionOverrides: map[string]string{"orders": "order_date"}}, offlineManifest(), results, events, NewClock())
	require.NoError(t, err)
	require.Len(t, out.Events, 2)
	assert.Equal(t, int64(1), out.Events[0].Seq)
	assert.Equal(t, int64(2), out.Events[1].Seq)

	require.Len(t, out.Materializations, 1)
	m := out.Materializations[0]
	assert.Equal(t, "RAW_DATA", m.GroupName)
	assert.Equal(t, int64(2), m.Seq)
	assert.Empty(t, m.RunID)
	assert.Equal(t, ir.String("order_date"), m.Metadata["partition_expr"])
	assert.Equal(t, ir.Int(5), m.Metadata["rows_affected"])
}

func TestReconcileWithoutResults(t *testing.T) {
	events := []ir.Event{
		{Kind: ir.EventOutput, Metadata: ir.Object{ir.MetaUniqueID: ir.String("model.p.orders")}},
	}

	out, err := Reconcile(translator.Config{}, offlineManifest(), nil, events, NewClock())
	require.NoError(t, err)
	require.Len(t, out.Materializations, 1)
	assert.NotContains(t, out.Materializations[0].Metadata, "rows_affected")
}

func TestReconcileStopsAtViolation(t *testing.T) {
	events := []ir.Event{
		{Kind: ir.EventOutput, Metadata: ir.Object{ir.MetaUniqueID: ir.String("model.p.orders")}},
		{Kind: ir.EventOutput, Metadata: ir.Object{ir.MetaUniqueID: ir.Bool(true)}},
	}

	out, err := Reconcile(translator.Config{}, offlineManifest(), nil, events, NewClock())
	require.Error(t, err)
	assert.Len(t, out.Events, 1)
	assert.Len(t, out.Materializations, 1)
	assert.Equal(t, ErrCodeTypeContract, CodeOf(classify("", err)))
}
