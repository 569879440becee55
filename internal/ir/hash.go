package ir

import (
	"encoding/hex"
	"fmt"

	"lukechampine.com/blake3"
)

// Domain prefixes for content-addressed names.
// Version suffix enables future algorithm migration.
const (
	DomainBlob     = "verdant/blob/v1"
	DomainSnapshot = "verdant/snapshot/v1"
)

// hashWithDomain computes a BLAKE3-256 digest with domain separation.
// Format: BLAKE3(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := blake3.New(32, nil)
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// BlobName returns the content-addressed name of an offloaded payload.
func BlobName(data []byte) string {
	return hashWithDomain(DomainBlob, data)
}

// SnapshotDigest hashes the canonical form of a serialized snapshot so two
// snapshots can be compared regardless of key order or whitespace.
func SnapshotDigest(snapshot []byte) (string, error) {
	var generic any
	if err := unmarshalNumbers(snapshot, &generic); err != nil {
		return "", fmt.Errorf("SnapshotDigest: %w", err)
	}
	canonical, err := MarshalCanonical(generic)
	if err != nil {
		return "", fmt.Errorf("SnapshotDigest: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainSnapshot, canonical), nil
}
