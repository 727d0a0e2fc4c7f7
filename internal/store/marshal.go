package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/dbtbridge/internal/ir"
)

// marshalObject converts an Object to canonical JSON TEXT for storage.
// A nil object is stored as "{}".
func marshalObject(field string, obj ir.Object) (string, error) {
	if obj == nil {
		return "{}", nil
	}
	data, err := ir.MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", field, err)
	}
	return string(data), nil
}

// unmarshalObject parses canonical JSON TEXT back into an Object.
// Large integers survive: Object decodes numbers without going through float64.
func unmarshalObject(field, data string) (ir.Object, error) {
	if data == "" || data == "{}" {
		return ir.Object{}, nil
	}
	var obj ir.Object
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", field, err)
	}
	return obj, nil
}

// unmarshalAssetKey parses a stored canonical JSON array of segments.
func unmarshalAssetKey(data string) (ir.AssetKey, error) {
	var segments []string
	if err := json.Unmarshal([]byte(data), &segments); err != nil {
		return nil, fmt.Errorf("unmarshal asset key: %w", err)
	}
	return ir.AssetKey(segments), nil
}
