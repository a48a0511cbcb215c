package eventlog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/mcp-tool-shop-org/repomesh/pkg/rmerror"
)

// eventSchemaDoc is the Draft 2020-12 JSON Schema every admitted event line
// must conform to. Structural shape only — semantic checks (timestamp
// bounds, signature validity, uniqueness) happen downstream in the
// admission pipeline.
const eventSchemaDoc = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["type", "repo", "version", "commit", "timestamp", "signature"],
  "properties": {
    "type": {
      "type": "string",
      "enum": ["ReleasePublished", "AttestationPublished", "PolicyViolation", "BreakingChangeDetected", "HealthCheckFailed", "DependencyVulnFound", "InterfaceUpdated"]
    },
    "repo": {"type": "string", "pattern": "^[^/]+/[^/]+$"},
    "version": {"type": "string"},
    "commit": {"type": "string"},
    "timestamp": {"type": "string"},
    "artifacts": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "sha256", "uri"],
        "properties": {
          "name": {"type": "string"},
          "sha256": {"type": "string", "pattern": "^[0-9a-f]{64}$"},
          "uri": {"type": "string"}
        }
      }
    },
    "attestations": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["type", "uri"],
        "properties": {
          "type": {"type": "string"},
          "uri": {"type": "string"}
        }
      }
    },
    "notes": {"type": "string"},
    "signature": {
      "type": "object",
      "required": ["alg", "keyId", "value", "canonicalHash"],
      "properties": {
        "alg": {"type": "string", "const": "ed25519"},
        "keyId": {"type": "string"},
        "value": {"type": "string"},
        "canonicalHash": {"type": "string", "pattern": "^[0-9a-f]{64}$"}
      }
    }
  }
}`

var (
	compiledSchema     *jsonschema.Schema
	compiledSchemaOnce sync.Once
	compiledSchemaErr  error
)

// compile lazily compiles the event schema once and caches it — the
// compile-once/validate-many pattern jsonschema.Compile is built for.
func compile() (*jsonschema.Schema, error) {
	compiledSchemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		if err := c.AddResource("event.schema.json", bytes.NewReader([]byte(eventSchemaDoc))); err != nil {
			compiledSchemaErr = fmt.Errorf("eventlog: add schema resource: %w", err)
			return
		}
		s, err := c.Compile("event.schema.json")
		if err != nil {
			compiledSchemaErr = fmt.Errorf("eventlog: compile schema: %w", err)
			return
		}
		compiledSchema = s
	})
	return compiledSchema, compiledSchemaErr
}

// ValidateSchema checks a raw JSON event line against the event schema,
// returning SchemaViolation on any conformance failure.
func ValidateSchema(raw []byte) error {
	schema, err := compile()
	if err != nil {
		return err
	}

	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return rmerror.Wrap(rmerror.KindMalformedEvent, err, "invalid JSON")
	}

	if err := schema.Validate(doc); err != nil {
		return rmerror.Wrap(rmerror.KindSchemaViolation, err, "event does not conform to schema")
	}
	return nil
}
