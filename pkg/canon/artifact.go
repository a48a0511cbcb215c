package canon

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"unicode/utf8"
)

// Artifact represents a canonicalized, content-addressed object — the
// common envelope around event payloads and manifest blobs.
type Artifact struct {
	SchemaID       string            `json:"schema_id"`
	ContentType    string            `json:"content_type"`
	CanonicalBytes []byte            `json:"canonical_bytes"`
	Digest         string            `json:"digest"`
	Preview        string            `json:"preview"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// Canonicalize converts a raw value into a canonical Artifact, selecting the
// encoding strategy from the Go type of raw: strings get NFC text
// normalization, byte slices pass through untouched, and anything else is
// treated as structured data and run through JCS.
func Canonicalize(schemaID string, raw interface{}) (*Artifact, error) {
	var canonicalBytes []byte
	var contentType string
	var err error

	switch v := raw.(type) {
	case string:
		contentType = "text/plain"
		if !utf8.ValidString(v) {
			return nil, fmt.Errorf("canon: invalid UTF-8 string")
		}
		canonicalBytes = []byte(NormalizeText(v))
	case []byte:
		contentType = "application/octet-stream"
		canonicalBytes = v
	default:
		contentType = "application/json"
		canonicalBytes, err = JCS(v)
		if err != nil {
			return nil, fmt.Errorf("canon: failed to canonicalize as JSON: %w", err)
		}
	}

	digest := ComputeArtifactHash(canonicalBytes)
	preview := generatePreview(canonicalBytes)

	return &Artifact{
		SchemaID:       schemaID,
		ContentType:    contentType,
		CanonicalBytes: canonicalBytes,
		Digest:         digest,
		Preview:        preview,
		Metadata:       make(map[string]string),
	}, nil
}

// ComputeArtifactHash returns the SHA-256 multihash of canonical bytes.
func ComputeArtifactHash(data []byte) string {
	hash := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(hash[:])
}

func generatePreview(data []byte) string {
	const maxPreviewLen = 50
	if len(data) <= maxPreviewLen {
		return string(data)
	}
	return string(data[:maxPreviewLen]) + "..."
}
