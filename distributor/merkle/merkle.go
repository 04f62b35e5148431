// Package merkle implements the sorted-pair keccak256 merkle tree used by
// allocation tables. Leaves commit to (account, amount) pairs and interior
// nodes hash their children in ascending byte order, so proofs carry no
// left/right position bits and verify against the same roots produced by the
// common Solidity proof libraries.
package merkle

import (
	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// Allocation is one recipient's entitlement in a distribution table.
type Allocation struct {
	Account common.Address
	Amount  sdkmath.Int
}

// Leaf computes the commitment for one allocation:
// keccak256(account ‖ uint256(amount)). Amount must be non-negative and fit
// in 256 bits.
func Leaf(account common.Address, amount sdkmath.Int) common.Hash {
	buf := make([]byte, 32)
	amount.BigInt().FillBytes(buf)
	return common.BytesToHash(crypto.Keccak256(account.Bytes(), buf))
}

// hashPair hashes two nodes in ascending byte order.
func hashPair(a, b common.Hash) common.Hash {
	if bytesCompare(a, b) > 0 {
		a, b = b, a
	}
	return common.BytesToHash(crypto.Keccak256(a.Bytes(), b.Bytes()))
}

func bytesCompare(a, b common.Hash) int {
	for i := 0; i < common.HashLength; i++ {
		switch {
		case a[i] < b[i]:
			return -1
		case a[i] > b[i]:
			return 1
		}
	}
	return 0
}

// Verify walks the proof from leaf to root, hashing each (node, sibling) pair
// in sorted order. An empty proof verifies only when leaf == root.
func Verify(proof []common.Hash, root, leaf common.Hash) bool {
	computed := leaf
	for _, sibling := range proof {
		computed = hashPair(computed, sibling)
	}
	return computed == root
}

// Tree is a fully materialized sorted-pair merkle tree. Odd nodes at any
// level are carried up unchanged rather than duplicated.
type Tree struct {
	// levels[0] holds the leaves, the last level holds the root.
	levels [][]common.Hash
}

// NewTree builds a tree over the given leaves.
func NewTree(leaves []common.Hash) (*Tree, error) {
	if len(leaves) == 0 {
		return nil, errors.New("merkle: no leaves")
	}

	levels := [][]common.Hash{append([]common.Hash(nil), leaves...)}
	for current := levels[0]; len(current) > 1; {
		next := make([]common.Hash, 0, (len(current)+1)/2)
		for i := 0; i < len(current); i += 2 {
			if i+1 == len(current) {
				next = append(next, current[i])
				break
			}
			next = append(next, hashPair(current[i], current[i+1]))
		}
		levels = append(levels, next)
		current = next
	}
	return &Tree{levels: levels}, nil
}

// Root returns the tree root.
func (t *Tree) Root() common.Hash {
	top := t.levels[len(t.levels)-1]
	return top[0]
}

// Prove returns the sibling path for the leaf at the given index, ordered
// from the leaf level upward.
func (t *Tree) Prove(index int) ([]common.Hash, error) {
	if index < 0 || index >= len(t.levels[0]) {
		return nil, errors.Errorf("merkle: leaf index %d out of range", index)
	}

	proof := make([]common.Hash, 0, len(t.levels)-1)
	for _, level := range t.levels[:len(t.levels)-1] {
		sibling := index ^ 1
		if sibling < len(level) {
			proof = append(proof, level[sibling])
		}
		index /= 2
	}
	return proof, nil
}

// AllocationTree pairs a tree with the ordered allocations it commits to.
type AllocationTree struct {
	*Tree
	allocations []Allocation
}

// BuildAllocationTree hashes each allocation into a leaf and builds the tree
// over them. Allocation order is preserved, so proof indexes match input
// indexes.
func BuildAllocationTree(allocations []Allocation) (*AllocationTree, error) {
	if len(allocations) == 0 {
		return nil, errors.New("merkle: no allocations")
	}

	leaves := make([]common.Hash, len(allocations))
	for i, alloc := range allocations {
		if alloc.Amount.IsNil() || alloc.Amount.IsNegative() {
			return nil, errors.Errorf("merkle: invalid amount for %s", alloc.Account.Hex())
		}
		leaves[i] = Leaf(alloc.Account, alloc.Amount)
	}

	tree, err := NewTree(leaves)
	if err != nil {
		return nil, err
	}
	return &AllocationTree{
		Tree:        tree,
		allocations: append([]Allocation(nil), allocations...),
	}, nil
}

// ProveAccount returns the proof and committed amount for the first
// allocation matching the account.
func (t *AllocationTree) ProveAccount(account common.Address) ([]common.Hash, sdkmath.Int, error) {
	for i, alloc := range t.allocations {
		if alloc.Account == account {
			proof, err := t.Prove(i)
			if err != nil {
				return nil, sdkmath.ZeroInt(), err
			}
			return proof, alloc.Amount, nil
		}
	}
	return nil, sdkmath.ZeroInt(), errors.Errorf("merkle: no allocation for %s", account.Hex())
}
