package anchor

import (
	"encoding/json"

	"github.com/mcp-tool-shop-org/repomesh/pkg/canon"
	"github.com/mcp-tool-shop-org/repomesh/pkg/rmerror"
)

// Manifest is the partition manifest materialized after building a
// partition's Merkle tree: self-describing, self-binding (ManifestHash
// covers every other field), and immutable once written.
type Manifest struct {
	V            int      `json:"v"`
	Algo         string   `json:"algo"` // "sha256-merkle-v1"
	PartitionID  string   `json:"partitionId"`
	Network      string   `json:"network"`
	Prev         *string  `json:"prev"` // hex root of previous partition, nil for genesis
	Range        []string `json:"range"` // [firstLeafHex, lastLeafHex]
	Count        int      `json:"count"`
	Root         string   `json:"root"`
	ManifestHash string   `json:"manifestHash"`
}

const ManifestSchemaVersion = 1
const ManifestAlgo = "sha256-merkle-v1"

// Materialize builds the complete, self-binding manifest for a partition
// given its ordered leaf hex hashes.
func Materialize(partitionID, network string, prev *string, leafHexes []string) (*Manifest, error) {
	if len(leafHexes) == 0 {
		return nil, rmerror.New(rmerror.KindPartitionLeafCountMismatch, "cannot materialize a manifest over zero leaves")
	}

	root, err := MerkleRootHex(leafHexes)
	if err != nil {
		return nil, err
	}

	base := Manifest{
		V:           ManifestSchemaVersion,
		Algo:        ManifestAlgo,
		PartitionID: partitionID,
		Network:     network,
		Prev:        prev,
		Range:       []string{leafHexes[0], leafHexes[len(leafHexes)-1]},
		Count:       len(leafHexes),
		Root:        root,
	}

	hash, err := hashManifestBase(base)
	if err != nil {
		return nil, err
	}
	base.ManifestHash = hash
	return &base, nil
}

// hashManifestBase computes SHA-256 over the canonical JSON of every field
// except ManifestHash itself. The field is removed from the canonicalized
// map entirely (not merely zeroed) so it never participates in the hash
// under any key, present-but-empty included.
func hashManifestBase(m Manifest) (string, error) {
	raw, err := canon.JCS(m)
	if err != nil {
		return "", err
	}
	var asMap map[string]interface{}
	if err := json.Unmarshal(raw, &asMap); err != nil {
		return "", err
	}
	delete(asMap, "manifestHash")
	return canon.CanonicalHash(asMap)
}

// VerifySelfBinding checks that m.ManifestHash matches the hash of its own
// other fields — the manifest self-binding property.
func VerifySelfBinding(m Manifest) error {
	got, err := hashManifestBase(m)
	if err != nil {
		return err
	}
	if got != m.ManifestHash {
		return rmerror.New(rmerror.KindManifestTampered, "manifestHash %s does not match recomputed %s", m.ManifestHash, got)
	}
	return nil
}
