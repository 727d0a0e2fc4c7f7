package translator

import (
	"slices"
	"strings"

	"github.com/samber/lo"

	"github.com/roach88/dbtbridge/internal/ir"
)

// Metadata returns the definition metadata of a node.
//
// partition_expr is always present: an exact model-name override wins,
// otherwise the configured default column. It is merged over
// DefaultMetadata and wins on key collision. Metadata never fails; fields
// that are missing or unrepresentable are left out.
func Metadata(cfg Config, node ir.ManifestNode) ir.Object {
	cfg = cfg.WithDefaults()

	partition := cfg.PartitionColumn
	if override, ok := cfg.PartitionOverrides[node.Name]; ok {
		partition = override
	}

	return DefaultMetadata(node).Merge(ir.Object{
		MetaPartitionExpr: ir.String(partition),
	})
}

// DefaultMetadata is the metadata dbt itself implies for a node: the
// relation it builds, its documented column schema and its materialization.
func DefaultMetadata(node ir.ManifestNode) ir.Object {
	md := ir.Object{}

	if table := tableName(node); table != "" {
		md[MetaTableName] = ir.String(table)
	}

	if len(node.Columns) > 0 {
		names := lo.Keys(node.Columns)
		slices.Sort(names)

		schema := make(ir.Array, 0, len(names))
		for _, key := range names {
			col := node.Columns[key]
			name := col.Name
			if name == "" {
				name = key
			}
			typ := col.DataType
			if typ == "" {
				typ = "?"
			}
			schema = append(schema, ir.Object{
				"name": ir.String(name),
				"type": ir.String(typ),
			})
		}
		md[MetaColumnSchema] = schema
	}

	if node.Config.Materialized != "" {
		md[MetaMaterializationType] = ir.String(node.Config.Materialized)
	}

	return md
}

// tableName joins the non-empty relation parts: database.schema.alias.
// The alias falls back to the model name.
func tableName(node ir.ManifestNode) string {
	alias := node.Alias
	if alias == "" {
		alias = node.Name
	}
	parts := lo.Compact([]string{node.Database, node.Schema, alias})
	return strings.Join(parts, ".")
}

// Translation is everything the asset graph needs to know about a node.
type Translation struct {
	UniqueID string      `json:"unique_id"`
	AssetKey ir.AssetKey `json:"asset_key"`
	Group    string      `json:"group"`
	Metadata ir.Object   `json:"metadata"`
}

// Translate applies AssetKey, GroupName and Metadata to a node.
func Translate(cfg Config, node ir.ManifestNode) Translation {
	return Translation{
		UniqueID: node.UniqueID,
		AssetKey: AssetKey(node),
		Group:    GroupName(cfg, node),
		Metadata: Metadata(cfg, node),
	}
}

// TranslateManifest translates every asset-producing node of a manifest,
// ordered by unique id.
func TranslateManifest(cfg Config, manifest *ir.Manifest) []Translation {
	ids := lo.Keys(manifest.Nodes)
	slices.Sort(ids)

	out := make([]Translation, 0, len(ids))
	for _, id := range ids {
		node := manifest.Nodes[id]
		if !IsAsset(node) {
			continue
		}
		out = append(out, Translate(cfg, node))
	}
	return out
}

// IsAsset reports whether a node materializes data.
// Tests, operations and analyses do not.
func IsAsset(node ir.ManifestNode) bool {
	return ir.IsAssetResource(node.ResourceType)
}
