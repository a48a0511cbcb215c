// Package anchor implements partition selection, Merkle root construction,
// manifest materialization, and external-ledger memo encoding — the anchor
// engine (C3) that periodically commits the event log to an external
// public ledger.
package anchor

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/mcp-tool-shop-org/repomesh/pkg/rmerror"
)

// Tree is a bottom-up binary Merkle tree over 32-byte leaf hashes. Unlike
// transparency-log constructions (RFC 6962), nodes here are plain
// SHA-256(left || right) with no leaf/node domain-separation prefix — an
// intentional divergence required to match this network's anchor memo
// format, which predates any RFC 6962 alignment.
type Tree struct {
	Levels [][][]byte // Levels[0] = leaves, Levels[last] = [root]
	Root   []byte
}

// BuildTree constructs a Merkle tree from an ordered, non-empty list of
// 32-byte leaf hashes (each the raw decoding of an event's canonicalHash).
// A single-leaf partition's root is that leaf's bytes, unmodified.
func BuildTree(leaves [][]byte) (*Tree, error) {
	if len(leaves) == 0 {
		return nil, fmt.Errorf("anchor: cannot build a Merkle tree over zero leaves")
	}
	for i, l := range leaves {
		if len(l) != 32 {
			return nil, fmt.Errorf("anchor: leaf %d is %d bytes, want 32", i, len(l))
		}
	}

	tree := &Tree{Levels: [][][]byte{leaves}}
	current := leaves
	for len(current) > 1 {
		current = nextLevel(current)
		tree.Levels = append(tree.Levels, current)
	}
	tree.Root = current[0]
	return tree, nil
}

// RootHex returns the tree's root as lowercase hex.
func (t *Tree) RootHex() string {
	return hex.EncodeToString(t.Root)
}

func nextLevel(level [][]byte) [][]byte {
	nodes := level
	if len(nodes)%2 != 0 {
		nodes = append(append([][]byte{}, nodes...), nodes[len(nodes)-1])
	}
	next := make([][]byte, len(nodes)/2)
	for i := 0; i < len(nodes); i += 2 {
		next[i/2] = nodeHash(nodes[i], nodes[i+1])
	}
	return next
}

func nodeHash(left, right []byte) []byte {
	h := sha256.New()
	h.Write(left)
	h.Write(right)
	sum := h.Sum(nil)
	return sum
}

// MerkleRootHex computes the hex root directly from hex-encoded leaf
// hashes, decoding and re-encoding at the boundary. This is the entry point
// verifyRelease and the anchor engine both use.
func MerkleRootHex(leafHexes []string) (string, error) {
	leaves := make([][]byte, len(leafHexes))
	for i, h := range leafHexes {
		b, err := hex.DecodeString(h)
		if err != nil {
			return "", rmerror.Wrap(rmerror.KindMalformedEvent, err, "leaf %d is not valid hex", i)
		}
		if len(b) != 32 {
			return "", rmerror.New(rmerror.KindMalformedEvent, "leaf %d decodes to %d bytes, want 32", i, len(b))
		}
		leaves[i] = b
	}
	tree, err := BuildTree(leaves)
	if err != nil {
		return "", err
	}
	return tree.RootHex(), nil
}

// InclusionProof is the sibling path from a leaf to the root, used to
// replay and verify membership without rebuilding the whole tree.
type InclusionProof struct {
	LeafIndex int
	Siblings  [][]byte // ordered root-ward; Side indicates left/right pairing at each level
	Sides     []Side
}

// Side indicates whether a sibling hash is the left or right operand when
// combined with the running hash during proof verification.
type Side int

const (
	SideLeft Side = iota
	SideRight
)

// Prove builds an inclusion proof for the leaf at index i within tree.
func (t *Tree) Prove(i int) (*InclusionProof, error) {
	if i < 0 || i >= len(t.Levels[0]) {
		return nil, fmt.Errorf("anchor: leaf index %d out of range", i)
	}
	proof := &InclusionProof{LeafIndex: i}
	idx := i
	for level := 0; level < len(t.Levels)-1; level++ {
		nodes := t.Levels[level]
		// Reconstruct the padded level used during construction.
		padded := nodes
		if len(padded)%2 != 0 {
			padded = append(append([][]byte{}, padded...), padded[len(padded)-1])
		}
		var siblingIdx int
		var side Side
		if idx%2 == 0 {
			siblingIdx = idx + 1
			side = SideRight
		} else {
			siblingIdx = idx - 1
			side = SideLeft
		}
		proof.Siblings = append(proof.Siblings, padded[siblingIdx])
		proof.Sides = append(proof.Sides, side)
		idx /= 2
	}
	return proof, nil
}

// VerifyInclusionProof recomputes the root from leaf and proof, returning
// whether it matches expectedRoot.
func VerifyInclusionProof(leaf []byte, proof *InclusionProof, expectedRoot []byte) bool {
	current := leaf
	for i, sibling := range proof.Siblings {
		if proof.Sides[i] == SideRight {
			current = nodeHash(current, sibling)
		} else {
			current = nodeHash(sibling, current)
		}
	}
	return hex.EncodeToString(current) == hex.EncodeToString(expectedRoot)
}
