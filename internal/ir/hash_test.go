package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventIDDeterminism(t *testing.T) {
	ev := Event{
		Seq:        3,
		Kind:       EventOutput,
		OutputName: "analytics_public_orders",
		Metadata:   Object{MetaUniqueID: String("model.p.orders")},
	}

	id1, err := EventID("run-1", ev)
	require.NoError(t, err)
	id2, err := EventID("run-1", ev)
	require.NoError(t, err)

	assert.Equal(t, id1, id2, "EventID must be deterministic")
	assert.Len(t, id1, 64, "SHA-256 hex is 64 characters")
}

func eventID(t *testing.T, runID string, ev Event) string {
	t.Helper()
	id, err := EventID(runID, ev)
	require.NoError(t, err)
	return id
}

func TestEventIDIgnoresAttached(t *testing.T) {
	ev := Event{Seq: 1, Kind: EventOutput, Metadata: Object{}}
	enriched := ev
	enriched.Attached = Object{"rows_affected": Int(3)}

	assert.Equal(t, eventID(t, "run-1", ev), eventID(t, "run-1", enriched))
}

func TestEventIDChangesWithInput(t *testing.T) {
	ev := Event{Seq: 1, Kind: EventOutput, Metadata: Object{}}
	other := ev
	other.Seq = 2

	assert.NotEqual(t, eventID(t, "run-1", ev), eventID(t, "run-2", ev))
	assert.NotEqual(t, eventID(t, "run-1", ev), eventID(t, "run-1", other))
}

func TestMaterializationID(t *testing.T) {
	key := AssetKey{"analytics", "public", "orders"}
	id1, err := MaterializationID("run-1", key, 4)
	require.NoError(t, err)
	id2, err := MaterializationID("run-1", AssetKey{"analytics", "public", "customers"}, 4)
	require.NoError(t, err)

	assert.Len(t, id1, 64)
	assert.NotEqual(t, id1, id2)
}
