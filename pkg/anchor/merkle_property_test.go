//go:build property
// +build property

package anchor_test

import (
	"crypto/sha256"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/mcp-tool-shop-org/repomesh/pkg/anchor"
)

func genLeaves(n int) [][]byte {
	leaves := make([][]byte, n)
	for i := range leaves {
		h := sha256.Sum256([]byte{byte(i), byte(i >> 8)})
		leaves[i] = h[:]
	}
	return leaves
}

func TestMerkleRootDeterminism(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("building the same leaf set twice yields the same root", prop.ForAll(
		func(n int) bool {
			if n <= 0 {
				return true
			}
			leaves := genLeaves(n % 50)
			if len(leaves) == 0 {
				return true
			}
			t1, err1 := anchor.BuildTree(leaves)
			t2, err2 := anchor.BuildTree(leaves)
			if err1 != nil || err2 != nil {
				return err1 != nil && err2 != nil
			}
			return t1.RootHex() == t2.RootHex()
		},
		gen.IntRange(1, 50),
	))

	properties.TestingRun(t)
}

func TestMerkleInclusionProofsAlwaysVerify(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("every leaf's inclusion proof verifies against the tree root", prop.ForAll(
		func(n int) bool {
			leaves := genLeaves(1 + n%40)
			tree, err := anchor.BuildTree(leaves)
			if err != nil {
				return false
			}
			for i, leaf := range leaves {
				proof, err := tree.Prove(i)
				if err != nil {
					return false
				}
				if !anchor.VerifyInclusionProof(leaf, proof, tree.Root) {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 40),
	))

	properties.TestingRun(t)
}
