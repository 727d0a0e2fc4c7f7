package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainEvent           = "dbtbridge/event/v1"
	DomainMaterialization = "dbtbridge/materialization/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// EventID computes the content-addressed id of an event within a run.
// The attached enrichment is excluded: it is derived, not observed.
func EventID(runID string, ev Event) (string, error) {
	obj := Object{
		"run_id":      String(runID),
		"seq":         Int(ev.Seq),
		"kind":        String(ev.Kind),
		"output_name": String(ev.OutputName),
		"metadata":    ev.Metadata,
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("EventID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainEvent, canonical), nil
}

// MaterializationID computes the id of one asset materialization.
func MaterializationID(runID string, key AssetKey, seq int64) (string, error) {
	obj := Object{
		"run_id":    String(runID),
		"asset_key": key.Value(),
		"seq":       Int(seq),
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("MaterializationID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainMaterialization, canonical), nil
}
