package ledgerclient

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/mcp-tool-shop-org/repomesh/pkg/rmerror"
)

// LocalLedgerClient is a self-contained substitute for the external public
// ledger, backed by database/sql instead of a live network connection. It
// exists for the same reason cmd/repomesh's lite mode runs the manifest
// store against sqlite rather than Postgres: a single operator should be
// able to run the whole pipeline, anchor included, without standing up
// external infrastructure first.
//
// Submit assigns each memo a deterministic "transaction hash" (sha256 of
// the memo plus a monotonic sequence number, mirroring how a real ledger's
// hash commits to the transaction's content) and persists it; FetchMemo
// looks the row back up. Nothing here is cryptographically meaningful
// beyond content-addressing — it never talks to xrpl-testnet or any other
// real network.
type LocalLedgerClient struct {
	db      *sql.DB
	network string
	mu      sync.Mutex
}

// NewLocalLedgerClient builds a LocalLedgerClient over db, tagging stored
// transactions with network (e.g. "xrpl-testnet-lite").
func NewLocalLedgerClient(db *sql.DB, network string) *LocalLedgerClient {
	return &LocalLedgerClient{db: db, network: network}
}

const localLedgerSchema = `
CREATE TABLE IF NOT EXISTS local_ledger_transactions (
	tx_hash TEXT PRIMARY KEY,
	seq INTEGER,
	network TEXT,
	hex_memo TEXT
);
`

// Init creates the backing table if absent. Idempotent.
func (c *LocalLedgerClient) Init(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, localLedgerSchema)
	return err
}

func (c *LocalLedgerClient) nextSeq(ctx context.Context) (int, error) {
	row := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM local_ledger_transactions`)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n + 1, nil
}

// Submit records hexMemo as a new self-addressed "transaction" and returns
// its deterministic hash.
func (c *LocalLedgerClient) Submit(ctx context.Context, hexMemo string) (SubmitResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	seq, err := c.nextSeq(ctx)
	if err != nil {
		return SubmitResult{}, rmerror.Wrap(rmerror.KindExternalLedgerUnavailable, err, "local ledger: assigning sequence")
	}

	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%s", c.network, seq, hexMemo)))
	txHash := hex.EncodeToString(sum[:])

	_, err = c.db.ExecContext(ctx,
		`INSERT INTO local_ledger_transactions (tx_hash, seq, network, hex_memo) VALUES ($1, $2, $3, $4)`,
		txHash, seq, c.network, hexMemo,
	)
	if err != nil {
		return SubmitResult{}, rmerror.Wrap(rmerror.KindExternalLedgerUnavailable, err, "local ledger: storing transaction")
	}

	return SubmitResult{TxHash: txHash, TransactionResult: "tesSUCCESS"}, nil
}

// FetchMemo looks up a previously submitted transaction by hash.
func (c *LocalLedgerClient) FetchMemo(ctx context.Context, txHash string) (string, error) {
	row := c.db.QueryRowContext(ctx, `SELECT hex_memo FROM local_ledger_transactions WHERE tx_hash = $1`, txHash)
	var memo string
	err := row.Scan(&memo)
	if errors.Is(err, sql.ErrNoRows) {
		return "", rmerror.New(rmerror.KindExternalLedgerUnavailable, "local ledger: no transaction %s", txHash)
	}
	if err != nil {
		return "", rmerror.Wrap(rmerror.KindExternalLedgerUnavailable, err, "local ledger: fetching transaction %s", txHash)
	}
	return memo, nil
}
