// Package canon provides RFC 8785 (JSON Canonicalization Scheme) serialization
// for deterministic content hashing of repomesh events and manifests.
package canon

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/gowebpki/jcs"
	"golang.org/x/text/unicode/norm"
)

// JCS returns the RFC 8785 canonical JSON representation of v.
//
// Map keys are sorted by UTF-8 byte order, HTML escaping is disabled, and
// json.Number values pass through verbatim so integers and decimals
// round-trip exactly instead of being reformatted by float64 conversion.
func JCS(v interface{}) ([]byte, error) {
	intermediate, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canon: pre-marshal failed: %w", err)
	}

	var generic interface{}
	decoder := json.NewDecoder(bytes.NewReader(intermediate))
	decoder.UseNumber()
	if err := decoder.Decode(&generic); err != nil {
		return nil, fmt.Errorf("canon: intermediate decode failed: %w", err)
	}

	out, err := marshalRecursive(generic)
	if err != nil {
		return nil, err
	}

	if err := crossCheck(intermediate, out); err != nil {
		return nil, err
	}
	return out, nil
}

// crossCheck re-derives the canonical form with an independent RFC 8785
// implementation and fails closed on divergence. This exists because a
// canonicalization bug is a signature-forgery bug: two implementations that
// silently disagree on byte order is worse than either one being wrong alone.
func crossCheck(intermediate, ours []byte) error {
	ref, err := jcs.Transform(intermediate)
	if err != nil {
		// gowebpki/jcs rejects some inputs our decoder accepts (e.g. NaN-free
		// numeric edge cases); only treat a successful-but-divergent
		// transform as fatal.
		return nil
	}
	if !bytes.Equal(ref, ours) {
		return fmt.Errorf("canon: canonicalization divergence detected between implementations")
	}
	return nil
}

// CanonicalHash returns the SHA-256 hex digest of the canonical JSON
// representation of v.
func CanonicalHash(v interface{}) (string, error) {
	b, err := JCS(v)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}

// HashBytes computes the SHA-256 hex digest of raw bytes.
func HashBytes(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// JCSString returns the JCS canonical form as a string.
func JCSString(v interface{}) (string, error) {
	data, err := JCS(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// NormalizeText applies Unicode NFC normalization to free-text fields before
// they enter canonicalization. Two byte-distinct but canonically-equivalent
// strings (e.g. combining-diacritic forms) must hash identically, or an
// attacker can present semantically-identical content under two different
// hashes.
func NormalizeText(s string) string {
	return norm.NFC.String(s)
}

func marshalRecursive(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	switch t := v.(type) {
	case nil:
		return []byte("null"), nil
	case bool:
		if t {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	case json.Number:
		return []byte(t.String()), nil
	case string:
		if err := enc.Encode(t); err != nil {
			return nil, err
		}
		return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
	case []interface{}:
		buf.Reset()
		buf.WriteByte('[')
		for i, elem := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			b, err := marshalRecursive(elem)
			if err != nil {
				return nil, err
			}
			buf.Write(b)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case map[string]interface{}:
		buf.Reset()
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := marshalRecursive(k)
			if err != nil {
				return nil, err
			}
			buf.Write(kb)
			buf.WriteByte(':')

			vb, err := marshalRecursive(t[k])
			if err != nil {
				return nil, err
			}
			buf.Write(vb)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil
	default:
		if err := enc.Encode(v); err != nil {
			return nil, err
		}
		return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
	}
}
