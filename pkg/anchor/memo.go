package anchor

import (
	"encoding/hex"
	"encoding/json"

	"github.com/mcp-tool-shop-org/repomesh/pkg/rmerror"
)

// memoMaxBytes bounds the hex-encoded memo attached to a self-addressed
// external-ledger payment. Exceeding it is always a caller error: shrink the
// partition (fewer leaves between anchors) rather than widen the bound.
const memoMaxBytes = 700

// memoWire is the compact on-chain representation of a Manifest, using
// short keys to leave headroom under the ledger's memo size limit:
//
//	v  schemaVersion
//	p  partitionId
//	n  network
//	r  root
//	h  manifestHash
//	c  count
//	pv prev root, or "0" for genesis
//	rg "first..last" leaf range (first == last for a single-leaf partition),
//	   or "0" when the manifest carries no range
type memoWire struct {
	V  int    `json:"v"`
	P  string `json:"p"`
	N  string `json:"n"`
	R  string `json:"r"`
	H  string `json:"h"`
	C  int    `json:"c"`
	PV string `json:"pv"`
	RG string `json:"rg"`
}

// EncodeMemo renders m as the hex-encoded UTF-8 JSON memo attached to the
// anchoring transaction. Returns MemoTooLarge if the encoded memo would
// exceed the external ledger's memo field bound.
func EncodeMemo(m Manifest) (string, error) {
	wire := memoWire{
		V: m.V,
		P: m.PartitionID,
		N: m.Network,
		R: m.Root,
		H: m.ManifestHash,
		C: m.Count,
	}
	if m.Prev == nil {
		wire.PV = "0"
	} else {
		wire.PV = *m.Prev
	}
	if len(m.Range) == 2 {
		wire.RG = m.Range[0] + ".." + m.Range[1]
	} else {
		wire.RG = "0"
	}

	raw, err := json.Marshal(wire)
	if err != nil {
		return "", rmerror.Wrap(rmerror.KindMemoDecodeFailed, err, "encoding memo")
	}

	encoded := hex.EncodeToString(raw)
	if len(encoded) > memoMaxBytes {
		return "", rmerror.New(rmerror.KindMemoTooLarge, "memo is %d bytes, exceeds bound of %d", len(encoded), memoMaxBytes)
	}
	return encoded, nil
}

// DecodeMemo parses a hex-encoded memo string back into its manifest
// summary fields. The result is not a full Manifest — Algo is not carried
// on the wire — so callers reconcile it against a manifest fetched from the
// anchor engine's own store rather than treating the memo as authoritative.
func DecodeMemo(hexMemo string) (*Manifest, error) {
	if len(hexMemo) > memoMaxBytes {
		return nil, rmerror.New(rmerror.KindMemoTooLarge, "memo is %d bytes, exceeds bound of %d", len(hexMemo), memoMaxBytes)
	}

	raw, err := hex.DecodeString(hexMemo)
	if err != nil {
		return nil, rmerror.Wrap(rmerror.KindMemoDecodeFailed, err, "memo is not valid hex")
	}

	var wire memoWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, rmerror.Wrap(rmerror.KindMemoDecodeFailed, err, "memo is not valid JSON")
	}

	m := &Manifest{
		V:            wire.V,
		Algo:         ManifestAlgo,
		PartitionID:  wire.P,
		Network:      wire.N,
		Root:         wire.R,
		ManifestHash: wire.H,
		Count:        wire.C,
	}
	if wire.PV != "0" {
		prev := wire.PV
		m.Prev = &prev
	}
	if wire.RG != "0" {
		parts := splitRange(wire.RG)
		if parts == nil {
			return nil, rmerror.New(rmerror.KindMemoDecodeFailed, "memo range %q is malformed", wire.RG)
		}
		m.Range = parts
	}
	return m, nil
}

func splitRange(rg string) []string {
	for i := 0; i < len(rg)-1; i++ {
		if rg[i] == '.' && rg[i+1] == '.' {
			return []string{rg[:i], rg[i+2:]}
		}
	}
	return nil
}
