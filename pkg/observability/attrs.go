// Package observability provides repomesh-specific instrumentation helpers.
package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// repomesh-specific semantic convention attributes.
var (
	// Event attributes (C2 admission).
	AttrEventType    = attribute.Key("repomesh.event.type")
	AttrEventRepo    = attribute.Key("repomesh.event.repo")
	AttrEventVersion = attribute.Key("repomesh.event.version")

	// Anchor attributes (C3 Merkle anchoring).
	AttrAnchorPartition = attribute.Key("repomesh.anchor.partition_id")
	AttrAnchorRoot      = attribute.Key("repomesh.anchor.root")
	AttrAnchorLeafCount = attribute.Key("repomesh.anchor.leaf_count")

	// Attestation attributes (C4 aggregation).
	AttrAttestationCheck     = attribute.Key("repomesh.attestation.check")
	AttrAttestationConsensus = attribute.Key("repomesh.attestation.consensus")

	// Scoring attributes (C5).
	AttrScoreIntegrity = attribute.Key("repomesh.score.integrity")
	AttrScoreAssurance = attribute.Key("repomesh.score.assurance")
	AttrScoreProfile   = attribute.Key("repomesh.score.profile")

	// Crypto attributes, shared across C1/C2/C7 key resolution.
	AttrCryptoAlgorithm = attribute.Key("repomesh.crypto.algorithm")
	AttrCryptoOperation = attribute.Key("repomesh.crypto.operation")
	AttrCryptoKeyID     = attribute.Key("repomesh.crypto.key_id")

	// Ingest attributes (webhook bridge).
	AttrIngestSource = attribute.Key("repomesh.ingest.source")
)

// EventOperation creates attributes for an event-log admission span.
func EventOperation(eventType, repo, version string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEventType.String(eventType),
		AttrEventRepo.String(repo),
		AttrEventVersion.String(version),
	}
}

// AnchorOperation creates attributes for a partition anchoring span.
func AnchorOperation(partitionID, root string, leafCount int) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrAnchorPartition.String(partitionID),
		AttrAnchorRoot.String(root),
		AttrAnchorLeafCount.Int(leafCount),
	}
}

// AttestationOperation creates attributes for a consensus-resolution span.
func AttestationOperation(check, consensus string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrAttestationCheck.String(check),
		AttrAttestationConsensus.String(consensus),
	}
}

// ScoreOperation creates attributes for a scoring span.
func ScoreOperation(profile string, integrity, assurance int) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrScoreProfile.String(profile),
		AttrScoreIntegrity.Int(integrity),
		AttrScoreAssurance.Int(assurance),
	}
}

// CryptoOperation creates attributes for a signing or verification span.
func CryptoOperation(algorithm, operation, keyID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrCryptoAlgorithm.String(algorithm),
		AttrCryptoOperation.String(operation),
		AttrCryptoKeyID.String(keyID),
	}
}

// SpanFromContext extracts the span from context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// AddSpanEvent adds an event to the current span.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// SetSpanStatus records err, if any, on the current span.
func SetSpanStatus(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if err != nil {
		span.RecordError(err)
	}
}
