// Package rmerror defines the stable, machine-readable error taxonomy shared
// by every repomesh component. Every fallible operation in this module
// returns (or wraps) a *rmerror.Error carrying one of these Kinds so that
// CLI and API consumers can discriminate failure modes without parsing
// strings.
package rmerror

import "fmt"

// Kind is a stable error classifier. Values are part of the external
// contract: renaming one is a breaking change for any consumer that
// branches on it.
type Kind string

const (
	KindCanonicalHashMismatch    Kind = "CanonicalHashMismatch"
	KindSignatureInvalid         Kind = "SignatureInvalid"
	KindUnknownKey               Kind = "UnknownKey"
	KindMalformedEvent           Kind = "MalformedEvent"
	KindSchemaViolation          Kind = "SchemaViolation"
	KindDuplicateEvent           Kind = "DuplicateEvent"
	KindTimestampOutOfRange      Kind = "TimestampOutOfRange"
	KindLogRewrite               Kind = "LogRewrite"
	KindReleaseNotFound          Kind = "ReleaseNotFound"
	KindManifestConflict         Kind = "ManifestConflict"
	KindManifestUnavailable      Kind = "ManifestUnavailable"
	KindManifestTampered         Kind = "ManifestTampered"
	KindMemoDecodeFailed         Kind = "MemoDecodeFailed"
	KindMemoTooLarge             Kind = "MemoTooLarge"
	KindPartitionLeafCountMismatch Kind = "PartitionLeafCountMismatch"
	KindRootMismatch             Kind = "RootMismatch"
	KindExternalLedgerUnavailable Kind = "ExternalLedgerUnavailable"
	KindEvidenceUnavailable      Kind = "EvidenceUnavailable"
	KindPolicyNoTrustedSources   Kind = "PolicyNoTrustedSources"
	KindIngestUnauthorized       Kind = "IngestUnauthorized"
	KindIngestRateLimited        Kind = "IngestRateLimited"
)

// Classification buckets a Kind by how a caller should react to it.
type Classification string

const (
	ClassFatal Classification = "fatal"  // aborts the enclosing operation entirely
	ClassWarn  Classification = "warn"   // degrades the result but is not a hard failure
)

var classifications = map[Kind]Classification{
	KindExternalLedgerUnavailable: ClassWarn,
	KindEvidenceUnavailable:       ClassWarn,
	KindPolicyNoTrustedSources:    ClassWarn,
	KindIngestRateLimited:         ClassWarn,
}

// ClassificationOf reports how callers should treat a Kind. Kinds absent
// from the table are fatal by default — unrecognized failures must not
// silently degrade.
func ClassificationOf(k Kind) Classification {
	if c, ok := classifications[k]; ok {
		return c
	}
	return ClassFatal
}

// Error is the concrete error type returned across repomesh package
// boundaries. It always carries a Kind; Detail and Cause are optional
// context for logs and RFC 7807 responses.
type Error struct {
	Kind   Kind
	Detail string
	Cause  error
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an Error of the given Kind with a formatted detail message.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// Wrap constructs an Error of the given Kind that chains an underlying cause.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...), Cause: cause}
}

// Is reports whether err is an *Error of the given Kind, unwrapping as
// needed.
func Is(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if ae, ok := err.(*Error); ok {
			e = ae
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return e != nil && e.Kind == kind
}
