package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/mcp-tool-shop-org/repomesh/pkg/anchor"
	"github.com/mcp-tool-shop-org/repomesh/pkg/config"
	"github.com/mcp-tool-shop-org/repomesh/pkg/crypto"
	"github.com/mcp-tool-shop-org/repomesh/pkg/eventlog"
	"github.com/mcp-tool-shop-org/repomesh/pkg/ledgerclient"
	"github.com/mcp-tool-shop-org/repomesh/pkg/observability"
	"github.com/mcp-tool-shop-org/repomesh/pkg/participant"
	"github.com/mcp-tool-shop-org/repomesh/pkg/policygate"

	_ "modernc.org/sqlite"
)

// environment wires together every collaborator a repomesh subcommand
// needs: the event log and its backing participant registry, the
// partition manifest store, an external-ledger client, and (optionally)
// an observability Provider. It is deliberately thin — cmd/repomesh owns
// no business logic of its own, only construction and flag parsing.
type environment struct {
	cfg       *config.Config
	db        *sql.DB
	registry  *participant.Registry
	log       *eventlog.Log
	manifests anchor.ManifestStore
	verifier  crypto.Verifier
	ledger    ledgerclient.Client
	telemetry *observability.Provider
	logPath   string
	trustPath string

	// attestationGate and manifestGate are the two CEL environments
	// policygate.Gate exposes — distinct variable sets, so distinct envs —
	// guarding C4's consensus resolution and C3's manifest materialization
	// respectively.
	attestationGate *policygate.Gate
	manifestGate    *policygate.Gate
}

// newEnvironment bootstraps an environment in "lite mode": a local sqlite
// database backs both the partition-manifest store and, absent a
// REPOMESH_LEDGER_RPC_URL, a self-contained LocalLedgerClient — mirroring
// how the teacher binary falls back to sqlite when DATABASE_URL is unset,
// so a single operator can run the whole pipeline without standing up
// Postgres, Redis, or a real ledger connection first.
func newEnvironment(ctx context.Context) (*environment, error) {
	cfg := config.Load()

	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return nil, fmt.Errorf("repomesh: create data dir %s: %w", cfg.DataDir, err)
	}

	dbPath := filepath.Join(cfg.DataDir, "repomesh.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("repomesh: open sqlite at %s: %w", dbPath, err)
	}

	manifests := anchor.NewSQLManifestStore(db)
	if err := manifests.Init(ctx); err != nil {
		return nil, fmt.Errorf("repomesh: init manifest store: %w", err)
	}

	var ledger ledgerclient.Client
	if rpcURL := os.Getenv("REPOMESH_LEDGER_RPC_URL"); rpcURL != "" {
		ledger = ledgerclient.NewHTTPClient(rpcURL)
	} else {
		local := ledgerclient.NewLocalLedgerClient(db, cfg.Network+"-lite")
		if err := local.Init(ctx); err != nil {
			return nil, fmt.Errorf("repomesh: init local ledger: %w", err)
		}
		ledger = local
	}
	resilient := ledgerclient.NewResilientClient(ledger, 10.0)

	attestationGate, err := policygate.New(policygate.AttestationVariables, policygate.AttestationSystemRules)
	if err != nil {
		return nil, fmt.Errorf("repomesh: build attestation policy gate: %w", err)
	}
	manifestGate, err := policygate.New(policygate.ManifestVariables, policygate.ManifestSystemRules)
	if err != nil {
		return nil, fmt.Errorf("repomesh: build manifest policy gate: %w", err)
	}

	registry := participant.NewRegistry()
	if err := loadParticipants(filepath.Join(cfg.DataDir, "participants"), registry); err != nil {
		return nil, fmt.Errorf("repomesh: load participants: %w", err)
	}

	logFile := filepath.Join(cfg.DataDir, "log.jsonl")
	trustFile := logFile + ".trusted"
	lg := eventlog.NewLog(registry, crypto.Ed25519Verifier{})
	if data, err := os.ReadFile(logFile); err == nil {
		if trusted, terr := os.ReadFile(trustFile); terr == nil {
			// trustFile holds the bytes this process itself wrote out the
			// last time appendBatch succeeded. Requiring the file on disk
			// to still byte-for-byte extend it catches any rewrite of a
			// previously-committed line made outside this process between
			// invocations — the same LogRewrite check a candidate batch
			// gets before being admitted, applied here to the log we're
			// about to trust as our new baseline.
			if err := eventlog.VerifyExtendsBaseline(trusted, data); err != nil {
				return nil, fmt.Errorf("repomesh: persisted log %s failed append-only check against last trusted state: %w", logFile, err)
			}
		} else if !os.IsNotExist(terr) {
			return nil, fmt.Errorf("repomesh: read trust anchor %s: %w", trustFile, terr)
		}
		if err := lg.LoadFromBytes(data); err != nil {
			return nil, fmt.Errorf("repomesh: reload persisted log %s: %w", logFile, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("repomesh: read log %s: %w", logFile, err)
	}

	var telemetry *observability.Provider
	obsCfg := observability.DefaultConfig()
	obsCfg.Enabled = os.Getenv("REPOMESH_OTEL_ENABLED") == "1"
	if endpoint := os.Getenv("REPOMESH_OTEL_ENDPOINT"); endpoint != "" {
		obsCfg.OTLPEndpoint = endpoint
	}
	telemetry, err = observability.New(ctx, obsCfg)
	if err != nil {
		log.Printf("[repomesh] observability disabled: %v", err)
		telemetry = nil
	}

	return &environment{
		cfg:             cfg,
		db:              db,
		registry:        registry,
		log:             lg,
		manifests:       manifests,
		verifier:        crypto.Ed25519Verifier{},
		ledger:          resilient,
		telemetry:       telemetry,
		logPath:         logFile,
		trustPath:       trustFile,
		attestationGate: attestationGate,
		manifestGate:    manifestGate,
	}, nil
}

// persistLog writes the log's current bytes back to disk so the next
// invocation of the CLI picks up where this one left off — repomesh has
// no long-running process to hold the log in memory between commands —
// and refreshes the trust anchor newEnvironment checks the file against
// on the following invocation.
func (e *environment) persistLog() error {
	data := e.log.Bytes()
	if err := os.WriteFile(e.logPath, data, 0o644); err != nil {
		return err
	}
	return os.WriteFile(e.trustPath, data, 0o644)
}

func (e *environment) close(ctx context.Context) {
	if e.telemetry != nil {
		_ = e.telemetry.Shutdown(ctx)
	}
	_ = e.db.Close()
}

// loadParticipants reads every *.json manifest file in dir and registers
// it, assigning each file a sequentially increasing Lamport height in
// directory-listing order. participant.Registry has no built-in file
// loader of its own — it is purely event-sourced over PutManifest — so
// this is the CLI's bootstrap-time substitute for whatever out-of-process
// registry feed a production deployment would otherwise have.
func loadParticipants(dir string, registry *participant.Registry) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var height uint64
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return fmt.Errorf("reading %s: %w", entry.Name(), err)
		}
		var m participant.Manifest
		if err := json.Unmarshal(data, &m); err != nil {
			return fmt.Errorf("parsing %s: %w", entry.Name(), err)
		}
		height++
		if err := registry.PutManifest(m, height); err != nil {
			return fmt.Errorf("registering %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// loadOrGenerateTestSigner is used only by the "sign-event" development
// helper (see dev_cmd.go): a disk-persisted Ed25519 key at
// <dataDir>/<name>.key (data/dev.key with sign-event's defaults),
// generated on first use. It never participates in
// verification — verification always resolves keys from a participant
// manifest, never from this key's existence on disk.
func loadOrGenerateTestSigner(dataDir, name string) (crypto.Signer, error) {
	keyPath := filepath.Join(dataDir, name+".key")
	if raw, err := os.ReadFile(keyPath); err == nil {
		seed, err := hex.DecodeString(string(raw))
		if err != nil {
			return nil, fmt.Errorf("repomesh: invalid key file %s: %w", keyPath, err)
		}
		priv := ed25519.NewKeyFromSeed(seed)
		return crypto.NewEd25519SignerFromKey(priv, name), nil
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, err
	}
	if err := os.WriteFile(keyPath, []byte(hex.EncodeToString(priv.Seed())), 0o600); err != nil {
		return nil, fmt.Errorf("repomesh: save key file %s: %w", keyPath, err)
	}
	_ = os.WriteFile(filepath.Join(dataDir, name+".pub"), []byte(hex.EncodeToString(pub)), 0o644)
	return crypto.NewEd25519SignerFromKey(priv, name), nil
}
