package ledgerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/mcp-tool-shop-org/repomesh/pkg/rmerror"
)

// HTTPClient talks to a real external-ledger JSON-RPC endpoint (e.g. an
// xrpl-testnet rippled node) over plain net/http. No library in this
// corpus wraps the specific "submit a self-addressed payment carrying a
// hex memo" / "fetch a transaction's memos by hash" pair this package's
// Client interface models, so this adapter is hand-rolled against the
// standard library rather than against an invented third-party client.
type HTTPClient struct {
	rpcURL string
	http   *http.Client
}

// NewHTTPClient builds an HTTPClient against rpcURL.
func NewHTTPClient(rpcURL string) *HTTPClient {
	return &HTTPClient{rpcURL: rpcURL, http: &http.Client{Timeout: 10 * time.Second}}
}

type rpcRequest struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type submitParams struct {
	HexMemo string `json:"hex_memo"`
}

type submitResponse struct {
	TxHash            string `json:"tx_hash"`
	TransactionResult string `json:"transaction_result"`
	Error             string `json:"error,omitempty"`
}

func (c *HTTPClient) call(ctx context.Context, method string, params interface{}, out interface{}) error {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return rmerror.Wrap(rmerror.KindExternalLedgerUnavailable, err, "encoding %s params", method)
	}
	body, err := json.Marshal(rpcRequest{Method: method, Params: paramsJSON})
	if err != nil {
		return rmerror.Wrap(rmerror.KindExternalLedgerUnavailable, err, "encoding %s request", method)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return rmerror.Wrap(rmerror.KindExternalLedgerUnavailable, err, "building %s request", method)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return rmerror.Wrap(rmerror.KindExternalLedgerUnavailable, err, "%s request failed", method)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return rmerror.New(rmerror.KindExternalLedgerUnavailable, "%s: unexpected status %d", method, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return rmerror.Wrap(rmerror.KindExternalLedgerUnavailable, err, "decoding %s response", method)
	}
	return nil
}

// Submit posts hexMemo to the ledger as a self-addressed payment memo.
func (c *HTTPClient) Submit(ctx context.Context, hexMemo string) (SubmitResult, error) {
	var resp submitResponse
	if err := c.call(ctx, "submit", submitParams{HexMemo: hexMemo}, &resp); err != nil {
		return SubmitResult{}, err
	}
	if resp.Error != "" {
		return SubmitResult{}, rmerror.New(rmerror.KindExternalLedgerUnavailable, "ledger rejected submission: %s", resp.Error)
	}
	return SubmitResult{TxHash: resp.TxHash, TransactionResult: resp.TransactionResult}, nil
}

type fetchParams struct {
	TxHash string `json:"tx_hash"`
}

type fetchResponse struct {
	HexMemo string `json:"hex_memo"`
	Error   string `json:"error,omitempty"`
}

// FetchMemo retrieves the memo carried by txHash.
func (c *HTTPClient) FetchMemo(ctx context.Context, txHash string) (string, error) {
	var resp fetchResponse
	if err := c.call(ctx, "tx", fetchParams{TxHash: txHash}, &resp); err != nil {
		return "", err
	}
	if resp.Error != "" {
		return "", rmerror.New(rmerror.KindExternalLedgerUnavailable, "ledger lookup failed: %s", resp.Error)
	}
	if resp.HexMemo == "" {
		return "", rmerror.New(rmerror.KindExternalLedgerUnavailable, "no memo for tx %s", txHash)
	}
	return resp.HexMemo, nil
}
