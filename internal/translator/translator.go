// Package translator maps dbt manifest nodes onto the asset graph.
//
// All functions are pure: given a Config and a node they return the same
// asset key, group and metadata every time. Config is constructed once (see
// internal/config) and passed by value; there are no instance-level tables.
package translator

import (
	"path"
	"slices"
	"strings"

	"github.com/roach88/dbtbridge/internal/ir"
)

// Defaults applied by Config.WithDefaults.
const (
	DefaultPartitionColumn = "day_dt"
	DefaultUpstreamGroup   = "upstream"
	DefaultRawDataGroup    = "RAW_DATA"
	DefaultSourcePrefix    = "source_"
	DefaultModelPath       = "models"
)

// Metadata keys produced by the translator.
const (
	MetaPartitionExpr       = "partition_expr"
	MetaTableName           = "table_name"
	MetaColumnSchema        = "column_schema"
	MetaMaterializationType = "materialization_type"
)

// Config carries the translation settings.
type Config struct {
	// PartitionColumn is the partition expression used when no override matches.
	PartitionColumn string `json:"partition_column"`

	// PartitionOverrides maps an exact model name to its partition expression.
	PartitionOverrides map[string]string `json:"partition_overrides,omitempty"`

	// ModelPaths are dbt model roots stripped from a node path before the
	// folder-derived group is taken (dbt_project.yml model-paths).
	ModelPaths []string `json:"model_paths,omitempty"`

	// SourcePrefix marks folders holding raw source models.
	SourcePrefix string `json:"source_prefix"`

	// RawDataGroup is the group of every model under SourcePrefix.
	RawDataGroup string `json:"raw_data_group"`

	// UpstreamGroup is the group of models that have no folder.
	UpstreamGroup string `json:"upstream_group"`
}

// WithDefaults returns a copy of c with empty fields set to their defaults.
func (c Config) WithDefaults() Config {
	if c.PartitionColumn == "" {
		c.PartitionColumn = DefaultPartitionColumn
	}
	if len(c.ModelPaths) == 0 {
		c.ModelPaths = []string{DefaultModelPath}
	}
	if c.SourcePrefix == "" {
		c.SourcePrefix = DefaultSourcePrefix
	}
	if c.RawDataGroup == "" {
		c.RawDataGroup = DefaultRawDataGroup
	}
	if c.UpstreamGroup == "" {
		c.UpstreamGroup = DefaultUpstreamGroup
	}
	return c
}

// AssetKey derives the canonical key of a node.
//
// An explicit meta.dagster.asset_key wins verbatim. Otherwise the key is
// [database, schema, name] where name gets a "_v{version}" suffix for
// versioned models.
func AssetKey(node ir.ManifestNode) ir.AssetKey {
	if key, ok := assetKeyOverride(node); ok {
		return key
	}

	name := node.Name
	if node.Version.IsSet() {
		name = name + "_v" + string(node.Version)
	}
	return ir.NewAssetKey(name).WithPrefix(node.Database, node.Schema)
}

// assetKeyOverride reads meta.dagster.asset_key, falling back to
// config.meta.dagster.asset_key. An empty list is not an override.
func assetKeyOverride(node ir.ManifestNode) (ir.AssetKey, bool) {
	for _, meta := range []map[string]any{node.Meta, node.Config.Meta} {
		raw, ok := dagsterMeta(meta)["asset_key"]
		if !ok {
			continue
		}
		switch v := raw.(type) {
		case string:
			if v != "" {
				return ir.AssetKey{v}, true
			}
		case []string:
			if len(v) > 0 {
				return ir.AssetKey(v), true
			}
		case []any:
			key := make(ir.AssetKey, 0, len(v))
			for _, seg := range v {
				s, ok := seg.(string)
				if !ok {
					key = nil
					break
				}
				key = append(key, s)
			}
			if len(key) > 0 {
				return key, true
			}
		}
	}
	return nil, false
}

// GroupName derives the logical group of a node.
//
// Order: explicit group > reserved source prefix > first folder segment >
// upstream default.
func GroupName(cfg Config, node ir.ManifestNode) string {
	cfg = cfg.WithDefaults()

	if group := explicitGroup(node); group != "" {
		return group
	}

	folders := folderSegments(cfg, node.Path)
	if len(folders) == 0 {
		return cfg.UpstreamGroup
	}
	if strings.HasPrefix(folders[0], cfg.SourcePrefix) {
		return cfg.RawDataGroup
	}
	return folders[0]
}

func explicitGroup(node ir.ManifestNode) string {
	if node.Group != "" {
		return node.Group
	}
	if node.Config.Group != "" {
		return node.Config.Group
	}
	for _, meta := range []map[string]any{node.Meta, node.Config.Meta} {
		if g, ok := dagsterMeta(meta)["group"].(string); ok && g != "" {
			return g
		}
	}
	return ""
}

// folderSegments returns the directory segments of a node path with a
// leading model root removed. The file name is never a segment.
func folderSegments(cfg Config, nodePath string) []string {
	nodePath = strings.Trim(path.Clean(strings.ReplaceAll(nodePath, "\\", "/")), "/")
	if nodePath == "" || nodePath == "." {
		return nil
	}

	segments := strings.Split(nodePath, "/")
	segments = segments[:len(segments)-1]

	for _, root := range cfg.ModelPaths {
		rootSegments := strings.Split(strings.Trim(root, "/"), "/")
		if len(rootSegments) <= len(segments) && slices.Equal(segments[:len(rootSegments)], rootSegments) {
			return segments[len(rootSegments):]
		}
	}
	return segments
}

// dagsterMeta returns meta["dagster"] as a map, or nil.
func dagsterMeta(meta map[string]any) map[string]any {
	if meta == nil {
		return nil
	}
	m, _ := meta["dagster"].(map[string]any)
	return m
}
