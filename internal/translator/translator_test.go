package translator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dbtbridge/internal/ir"
)

func ordersNode(path string) ir.ManifestNode {
	return ir.ManifestNode{
		UniqueID:     "model.interview.orders",
		ResourceType: "model",
		Name:         "orders",
		Database:     "analytics",
		Schema:       "public",
		Path:         path,
	}
}

func TestAssetKeyDerived(t *testing.T) {
	node := ordersNode("models/core_data/orders.sql")
	assert.Equal(t, ir.AssetKey{"analytics", "public", "orders"}, AssetKey(node))
}

func TestAssetKeyVersioned(t *testing.T) {
	tests := []struct {
		version ir.NodeVersion
		want    string
	}{
		{"2", "orders_v2"},
		{"1.5", "orders_v1.5"},
		{"beta", "orders_vbeta"},
		{"", "orders"},
	}

	for _, tt := range tests {
		t.Run(string(tt.version), func(t *testing.T) {
			node := ordersNode("")
			node.Version = tt.version
			key := AssetKey(node)
			require.Len(t, key, 3)
			assert.Equal(t, []string{"analytics", "public"}, []string(key[:2]))
			assert.Equal(t, tt.want, key[2])
		})
	}
}

func TestAssetKeyOverrideWins(t *testing.T) {
	tests := []struct {
		name string
		meta map[string]any
		cfg  map[string]any
		want ir.AssetKey
	}{
		{
			name: "list override",
			meta: map[string]any{"dagster": map[string]any{"asset_key": []any{"raw", "orders"}}},
			want: ir.AssetKey{"raw", "orders"},
		},
		{
			name: "string override",
			meta: map[string]any{"dagster": map[string]any{"asset_key": "orders_total"}},
			want: ir.AssetKey{"orders_total"},
		},
		{
			name: "config meta override",
			cfg:  map[string]any{"dagster": map[string]any{"asset_key": []any{"cfg", "orders"}}},
			want: ir.AssetKey{"cfg", "orders"},
		},
		{
			name: "empty list is not an override",
			meta: map[string]any{"dagster": map[string]any{"asset_key": []any{}}},
			want: ir.AssetKey{"analytics", "public", "orders_v3"},
		},
		{
			name: "non-string segment is not an override",
			meta: map[string]any{"dagster": map[string]any{"asset_key": []any{"a", 1.0}}},
			want: ir.AssetKey{"analytics", "public", "orders_v3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := ordersNode("models/source_raw/orders.sql")
			node.Version = "3"
			node.Meta = tt.meta
			node.Config.Meta = tt.cfg
			assert.Equal(t, tt.want, AssetKey(node))
		})
	}
}

func TestGroupName(t *testing.T) {
	tests := []struct {
		name string
		path string
		want string
	}{
		{"folder under model root", "models/core_data/orders.sql", "core_data"},
		{"folder without model root", "core_data/orders.sql", "core_data"},
		{"nested folder uses first segment", "models/marts/finance/orders.sql", "marts"},
		{"source prefix", "models/source_raw/orders.sql", DefaultRawDataGroup},
		{"source prefix without root", "source_crm/orders.sql", DefaultRawDataGroup},
		{"empty path", "", DefaultUpstreamGroup},
		{"file only", "orders.sql", DefaultUpstreamGroup},
		{"file in model root", "models/orders.sql", DefaultUpstreamGroup},
		{"windows separators", `models\core_data\orders.sql`, "core_data"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GroupName(Config{}, ordersNode(tt.path)))
		})
	}
}

func TestGroupNameExplicitWins(t *testing.T) {
	node := ordersNode("models/source_raw/orders.sql")
	node.Group = "finance"
	assert.Equal(t, "finance", GroupName(Config{}, node))

	node = ordersNode("models/source_raw/orders.sql")
	node.Config.Group = "sales"
	assert.Equal(t, "sales", GroupName(Config{}, node))

	node = ordersNode("")
	node.Meta = map[string]any{"dagster": map[string]any{"group": "ops"}}
	assert.Equal(t, "ops", GroupName(Config{}, node))
}

func TestGroupNameCustomConfig(t *testing.T) {
	cfg := Config{
		ModelPaths:    []string{"transform/models"},
		SourcePrefix:  "src_",
		RawDataGroup:  "landing",
		UpstreamGroup: "external",
	}

	assert.Equal(t, "core", GroupName(cfg, ordersNode("transform/models/core/orders.sql")))
	assert.Equal(t, "landing", GroupName(cfg, ordersNode("transform/models/src_erp/orders.sql")))
	assert.Equal(t, "external", GroupName(cfg, ordersNode("")))
	// "source_" is no longer reserved under this config
	assert.Equal(t, "source_raw", GroupName(cfg, ordersNode("source_raw/orders.sql")))
}

func TestEndToEndScenarios(t *testing.T) {
	node := ordersNode("models/core_data/orders.sql")
	tr := Translate(Config{}, node)
	assert.Equal(t, ir.AssetKey{"analytics", "public", "orders"}, tr.AssetKey)
	assert.Equal(t, "core_data", tr.Group)

	node = ordersNode("models/source_raw/orders.sql")
	tr = Translate(Config{}, node)
	assert.Equal(t, ir.AssetKey{"analytics", "public", "orders"}, tr.AssetKey)
	assert.Equal(t, DefaultRawDataGroup, tr.Group)
}
