package eventlog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mcp-tool-shop-org/repomesh/pkg/crypto"
	"github.com/mcp-tool-shop-org/repomesh/pkg/participant"
	"github.com/mcp-tool-shop-org/repomesh/pkg/rmerror"
)

// timestampLayout is the ISO-8601 millisecond-precision UTC layout events
// are expected to use.
const timestampLayout = "2006-01-02T15:04:05.000Z"

// Log is the append-only event log. It never mutates
// previously committed lines — Admit either extends the log or leaves it
// byte-identical.
type Log struct {
	mu       sync.Mutex
	lines    [][]byte
	events   []Event
	byKey    map[string]int // UniquenessKey/AttestationUniquenessKey -> index into events
	registry *participant.Registry
	verifier crypto.Verifier
	now      func() time.Time
}

// NewLog constructs an empty log bound to a participant registry (for key
// resolution) and a signature verifier, using time.Now as its clock
// (overridable in tests via WithClock).
func NewLog(registry *participant.Registry, verifier crypto.Verifier) *Log {
	return &Log{
		byKey:    make(map[string]int),
		registry: registry,
		verifier: verifier,
		now:      time.Now,
	}
}

// WithClock overrides the log's time source; used by tests to pin
// "now" for deterministic timestamp-bounds checks.
func (l *Log) WithClock(now func() time.Time) *Log {
	l.now = now
	return l
}

// Events returns a snapshot of all admitted events in log order.
func (l *Log) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// Len reports the number of admitted lines.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lines)
}

// Bytes returns the raw newline-joined log content — used for the
// append-only baseline check and for persistence.
func (l *Log) Bytes() []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	var buf bytes.Buffer
	for _, line := range l.lines {
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// LoadFromBytes replaces the log's baseline, re-parsing and re-indexing
// every line without re-running admission checks (the lines are assumed
// already-admitted history, e.g. loaded from a persisted file at startup).
func (l *Log) LoadFromBytes(data []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var lines [][]byte
	var events []Event
	byKey := make(map[string]int)

	for scanner.Scan() {
		line := append([]byte(nil), scanner.Bytes()...)
		if len(line) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			return rmerror.Wrap(rmerror.KindMalformedEvent, err, "failed to reload persisted log")
		}
		idx := len(events)
		events = append(events, ev)
		lines = append(lines, line)
		byKey[uniquenessKeyFor(ev)] = idx
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("eventlog: scan persisted log: %w", err)
	}

	l.lines = lines
	l.events = events
	l.byKey = byKey
	return nil
}

func uniquenessKeyFor(e Event) string {
	if e.Type == EventAttestationPublished {
		return e.AttestationUniquenessKey()
	}
	return e.UniquenessKey()
}

// Admit validates and appends a batch of new lines. All checks are total:
// if any event in the batch fails, the whole batch is rejected and the log
// is left byte-identical to before the call.
func (l *Log) Admit(batch [][]byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	// 1. Append-only check is implicit: Admit only ever appends to l.lines,
	// never replaces prior entries. A persisted log re-opened from disk is
	// compared byte-for-byte against its last trusted baseline with
	// VerifyExtendsBaseline (rewrite.go) before LoadFromBytes; cmd/repomesh's
	// newEnvironment does that, not this method.

	newEvents := make([]Event, 0, len(batch))
	newKeys := make([]string, 0, len(batch))
	seen := make(map[string]bool, len(batch))

	for _, line := range batch {
		// 2. Parse
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			return rmerror.Wrap(rmerror.KindMalformedEvent, err, "line is not valid JSON")
		}

		// 3. Schema conformance
		if err := ValidateSchema(line); err != nil {
			return err
		}

		// 4. Timestamp sanity
		if err := l.checkTimestamp(ev.Timestamp); err != nil {
			return err
		}

		// 5. Uniqueness (within batch and against existing log)
		key := uniquenessKeyFor(ev)
		if seen[key] {
			return rmerror.New(rmerror.KindDuplicateEvent, "duplicate %s within batch", key)
		}
		if _, exists := l.byKey[key]; exists {
			return rmerror.New(rmerror.KindDuplicateEvent, "event %s already admitted", key)
		}
		seen[key] = true

		// 6. Content-hash agreement
		if err := VerifyCanonicalHash(ev); err != nil {
			return err
		}

		// 7. Signature verification with key-resolution authority rule
		if err := l.verifySignature(ev); err != nil {
			return err
		}

		newEvents = append(newEvents, ev)
		newKeys = append(newKeys, key)
	}

	// All checks passed for the whole batch: commit atomically.
	for i, ev := range newEvents {
		idx := len(l.events)
		l.events = append(l.events, ev)
		l.lines = append(l.lines, batch[i])
		l.byKey[newKeys[i]] = idx
	}
	return nil
}

func (l *Log) checkTimestamp(ts string) error {
	t, err := time.Parse(timestampLayout, ts)
	if err != nil {
		// Fall back to RFC3339 for callers that didn't pad milliseconds.
		t, err = time.Parse(time.RFC3339, ts)
		if err != nil {
			return rmerror.Wrap(rmerror.KindMalformedEvent, err, "timestamp %q is not ISO-8601", ts)
		}
	}
	now := l.now().UTC()
	lowerBound := now.AddDate(-1, 0, 0)
	upperBound := now.Add(1 * time.Hour)
	if t.Before(lowerBound) || t.After(upperBound) {
		return rmerror.New(rmerror.KindTimestampOutOfRange, "timestamp %s outside [now-1y, now+1h]", ts)
	}
	return nil
}

// verifySignature enforces the key-resolution authority rule: a
// ReleasePublished event must be signed by a maintainer of the *target*
// repo's own manifest (self-signed releases), while every other event
// type may be signed by any registered participant.
func (l *Log) verifySignature(ev Event) error {
	hashBytes, err := HashBytes(ev.Signature.CanonicalHash)
	if err != nil {
		return rmerror.Wrap(rmerror.KindMalformedEvent, err, "invalid canonicalHash")
	}

	var pubKeyHex string
	if ev.Type == EventReleasePublished {
		pubKeyHex, err = l.registry.ResolveActiveKey(ev.Repo, ev.Signature.KeyID)
		if err != nil {
			return err
		}
	} else {
		_, pubKeyHex, err = l.registry.ResolveActiveParticipant(ev.Signature.KeyID)
		if err != nil {
			return err
		}
	}

	ok, err := l.verifier.Verify(pubKeyHex, ev.Signature.Value, hashBytes)
	if err != nil {
		return rmerror.Wrap(rmerror.KindSignatureInvalid, err, "signature verification error")
	}
	if !ok {
		return rmerror.New(rmerror.KindSignatureInvalid, "signature for %s@%s does not verify under key %s", ev.Repo, ev.Version, ev.Signature.KeyID)
	}
	return nil
}

// EncodeLine serializes an event to its single-line JSON log form.
func EncodeLine(ev Event) ([]byte, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("eventlog: encode line: %w", err)
	}
	if bytes.ContainsRune(b, '\n') {
		return nil, fmt.Errorf("eventlog: encoded event must not contain a literal newline")
	}
	return b, nil
}

// SplitLines splits raw multi-line log content into individual lines,
// skipping blank trailing lines.
func SplitLines(data []byte) [][]byte {
	var lines [][]byte
	for _, raw := range strings.Split(string(data), "\n") {
		if raw == "" {
			continue
		}
		lines = append(lines, []byte(raw))
	}
	return lines
}
