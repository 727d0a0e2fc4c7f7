package ir

import "strings"

// AssetKey is the ordered, composite identifier of an asset.
// It joins manifest nodes to run results.
type AssetKey []string

// NewAssetKey builds a key from path segments.
func NewAssetKey(segments ...string) AssetKey {
	return AssetKey(segments)
}

// WithPrefix returns a new key with prefix segments prepended.
func (k AssetKey) WithPrefix(prefix ...string) AssetKey {
	out := make(AssetKey, 0, len(prefix)+len(k))
	out = append(out, prefix...)
	return append(out, k...)
}

// String renders the key in user form, segments joined with "/".
func (k AssetKey) String() string {
	return strings.Join(k, "/")
}

// Value converts the key to an Array of strings.
func (k AssetKey) Value() Array {
	arr := make(Array, len(k))
	for i, s := range k {
		arr[i] = String(s)
	}
	return arr
}

// ID is an unambiguous map key for the asset key: its canonical JSON.
// Unlike String, segments containing "/" cannot collide.
func (k AssetKey) ID() string {
	return string(MustMarshalCanonical(k.Value()))
}

// Equal reports whether both keys have the same segments.
func (k AssetKey) Equal(other AssetKey) bool {
	if len(k) != len(other) {
		return false
	}
	for i := range k {
		if k[i] != other[i] {
			return false
		}
	}
	return true
}
