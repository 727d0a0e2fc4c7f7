// Package reconcile correlates a dbt invocation's run results with the
// events it emitted and attaches per-asset metadata to each output event.
//
// Lookups are built fresh for every invocation and discarded afterwards;
// nothing here is shared across runs.
package reconcile

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/dbtbridge/internal/ir"
	"github.com/roach88/dbtbridge/internal/translator"
)

// Enrichment metadata keys.
const (
	MetaRowsAffected = "rows_affected"
	MetaCompiledSQL  = "compiled_sql"
	MetaOwner        = "owner"
)

// ErrUnknownNode is returned when a unique id has no manifest node.
var ErrUnknownNode = errors.New("unique id not found in manifest")

// TypeContractError reports a value whose type violates a stated contract,
// e.g. a unique_id that is not a string. It is fatal for the event.
type TypeContractError struct {
	Field    string
	Expected string
	Got      ir.Value
}

func (e *TypeContractError) Error() string {
	return fmt.Sprintf("expected %s to be a %s, got %s instead", e.Field, e.Expected, ir.TypeName(e.Got))
}

// DuplicateAssetKeyError reports two manifest nodes that derive the same
// asset key. Asset keys must be unique across the graph.
type DuplicateAssetKeyError struct {
	AssetKey ir.AssetKey
	First    string
	Second   string
}

func (e *DuplicateAssetKeyError) Error() string {
	return fmt.Sprintf("asset key %s derived by both %s and %s", e.AssetKey, e.First, e.Second)
}

// Lookups are the per-invocation join tables keyed by AssetKey.ID().
type Lookups struct {
	ResultsByKey map[string]ir.RunResult
	NodesByKey   map[string]ir.ManifestNode
}

// Result returns the run result for an asset key.
func (l *Lookups) Result(key ir.AssetKey) (ir.RunResult, bool) {
	r, ok := l.ResultsByKey[key.ID()]
	return r, ok
}

// Node returns the manifest node for an asset key.
func (l *Lookups) Node(key ir.AssetKey) (ir.ManifestNode, bool) {
	n, ok := l.NodesByKey[key.ID()]
	return n, ok
}

// BuildLookups applies asset-key derivation to every manifest node and to
// the node of every run result.
//
// Two nodes with the same key fail fast. Two results for the same key (a
// partial rerun) keep the last one. A result whose unique id has no node
// returns ErrUnknownNode.
func BuildLookups(manifest *ir.Manifest, results *ir.RunResults) (*Lookups, error) {
	l := &Lookups{
		ResultsByKey: make(map[string]ir.RunResult),
		NodesByKey:   make(map[string]ir.ManifestNode, len(manifest.Nodes)),
	}

	for id, node := range manifest.Nodes {
		if !translator.IsAsset(node) {
			continue
		}
		key := translator.AssetKey(node)
		if prev, exists := l.NodesByKey[key.ID()]; exists {
			first, second := prev.UniqueID, id
			if second < first {
				first, second = second, first
			}
			return nil, &DuplicateAssetKeyError{AssetKey: key, First: first, Second: second}
		}
		l.NodesByKey[key.ID()] = node
	}

	if results == nil {
		return l, nil
	}
	for _, result := range results.Results {
		node, ok := manifest.Nodes[result.UniqueID]
		if !ok {
			return nil, fmt.Errorf("run result %q: %w", result.UniqueID, ErrUnknownNode)
		}
		key := translator.AssetKey(node)
		if prev, exists := l.ResultsByKey[key.ID()]; exists {
			slog.Warn("duplicate run result, keeping last",
				"asset_key", key.String(),
				"previous_status", prev.Status,
				"status", result.Status)
		}
		l.ResultsByKey[key.ID()] = result
	}

	return l, nil
}

// Enrich computes the metadata to attach to one output event: rows_affected
// from the run result, compiled_sql and owner from the manifest node.
//
// The event's unique_id must be a string; anything else is a
// TypeContractError. Absent values are never attached.
func Enrich(manifest *ir.Manifest, lookups *Lookups, ev ir.Event) (ir.Object, error) {
	raw := ev.UniqueID()
	uniqueID, ok := raw.(ir.String)
	if !ok {
		return nil, &TypeContractError{Field: ir.MetaUniqueID, Expected: "string", Got: raw}
	}

	node, ok := manifest.Nodes[string(uniqueID)]
	if !ok {
		return nil, fmt.Errorf("event %q: %w", uniqueID, ErrUnknownNode)
	}
	key := translator.AssetKey(node)

	md := ir.Object{}

	if result, ok := lookups.Result(key); ok && result.AdapterResponse.RowsAffected != nil {
		md[MetaRowsAffected] = ir.Int(*result.AdapterResponse.RowsAffected)
	}

	if props, ok := lookups.Node(key); ok {
		if props.CompiledCode != "" {
			md[MetaCompiledSQL] = ir.String(props.CompiledCode)
		}
		if owner, ok := ownerOf(props); ok {
			md[MetaOwner] = owner
		}
	}

	return md, nil
}

// ownerOf returns meta.owner when it is present and representable.
func ownerOf(node ir.ManifestNode) (ir.Value, bool) {
	raw, ok := node.Meta["owner"]
	if !ok || raw == nil {
		return nil, false
	}
	if s, isString := raw.(string); isString && s == "" {
		return nil, false
	}
	v, ok := ir.FromAny(raw)
	if !ok {
		return nil, false
	}
	if _, isNull := v.(ir.Null); isNull {
		return nil, false
	}
	return v, true
}

// Process enriches every output event of a stream and forwards all events
// in their original order. Only Event.Attached changes; which events exist
// does not. The first contract violation aborts processing.
func Process(manifest *ir.Manifest, lookups *Lookups, events []ir.Event) ([]ir.Event, error) {
	out := make([]ir.Event, 0, len(events))
	for i, ev := range events {
		if ev.IsOutput() {
			md, err := Enrich(manifest, lookups, ev)
			if err != nil {
				return out, fmt.Errorf("event %d (%s): %w", i, ev.OutputName, err)
			}
			if len(md) > 0 {
				ev.Attached = ev.Attached.Merge(md)
			}
		}
		out = append(out, ev)
	}
	return out, nil
}

// IsTypeContractError reports whether err is or wraps a TypeContractError.
func IsTypeContractError(err error) bool {
	var te *TypeContractError
	return errors.As(err, &te)
}
