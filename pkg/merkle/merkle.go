// Package merkle implements the chunked Keccak-256 Merkle tree that backs
// the challenge-response protocol between a renter and a lessor.
//
// Data is partitioned into fixed-size blocks; each block is hashed into a
// leaf and leaves are combined bottom-up, two at a time, in tree-position
// order (H(left || right)), matching the layering convention of the
// rs_merkle reference library this design was ported from. An odd node at
// any level is promoted unchanged to the next level rather than being
// self-duplicated.
package merkle

import (
	"github.com/ethereum/go-ethereum/crypto"
)

// BlockSize is the fixed block size, in bytes, used to partition data into
// Merkle leaves. The last block of an input may be shorter and is hashed at
// its actual length.
const BlockSize = 544

// Hash is a 32-byte Keccak-256 digest.
type Hash [32]byte

// Tree incrementally builds a Merkle tree over an append-only byte stream.
// The zero value is an empty tree. Tree is not safe for concurrent use.
type Tree struct {
	leaves  []Hash
	partial []byte
}

// New returns an empty Merkle tree.
func New() *Tree {
	return &Tree{}
}

// Append feeds data into the tree. Data may be supplied in arbitrary chunk
// sizes; it accumulates into block-aligned leaves internally.
func (t *Tree) Append(data []byte) {
	for len(data) > 0 {
		remaining := BlockSize - len(t.partial)
		n := remaining
		if n > len(data) {
			n = len(data)
		}
		t.partial = append(t.partial, data[:n]...)
		data = data[n:]
		if len(t.partial) == BlockSize {
			t.leaves = append(t.leaves, keccak256(t.partial))
			t.partial = t.partial[:0]
		}
	}
}

// Size returns the total number of bytes appended so far.
func (t *Tree) Size() int {
	return len(t.leaves)*BlockSize + len(t.partial)
}

// snapshotLeaves returns the leaf hashes including a final short leaf for
// any partial block, without mutating the tree. Root and Proof are
// non-destructive: further Append calls remain valid afterwards.
func (t *Tree) snapshotLeaves() []Hash {
	if len(t.partial) == 0 {
		return t.leaves
	}
	leaves := make([]Hash, len(t.leaves)+1)
	copy(leaves, t.leaves)
	leaves[len(t.leaves)] = keccak256(t.partial)
	return leaves
}

// Root finalizes the tree (flushing any partial block as a final leaf,
// without discarding it) and returns the 32-byte Merkle root. Empty input
// yields the Keccak-256 hash of the empty byte string, by convention.
func (t *Tree) Root() Hash {
	levels := buildLevels(t.snapshotLeaves())
	top := levels[len(levels)-1]
	return top[0]
}

// Proof returns the sibling hashes from leafIndex to the root, omitting the
// root itself. It panics if leafIndex is out of range; callers should
// validate against ceil(Size()/BlockSize) first.
func (t *Tree) Proof(leafIndex int) []Hash {
	leaves := t.snapshotLeaves()
	levels := buildLevels(leaves)
	if leafIndex < 0 || leafIndex >= len(leaves) {
		panic("merkle: leaf index out of range")
	}

	var proof []Hash
	idx := leafIndex
	for level := 0; level < len(levels)-1; level++ {
		cur := levels[level]
		if idx%2 == 0 {
			if idx+1 < len(cur) {
				proof = append(proof, cur[idx+1])
			}
		} else {
			proof = append(proof, cur[idx-1])
		}
		idx /= 2
	}
	return proof
}

// Verify recomputes the leaf hash for blockData, walks proof to the root
// using totalSize to derive the tree shape, and reports whether the result
// equals root. It returns false (never panics) on any mismatch, out-of-range
// leafIndex, or malformed proof.
func Verify(leafIndex int, blockData []byte, proof []Hash, root Hash, totalSize int) bool {
	totalLeaves := LeafCount(totalSize)
	if leafIndex < 0 || leafIndex >= totalLeaves {
		return false
	}

	hash := keccak256(blockData)
	idx := leafIndex
	levelSize := totalLeaves
	proofPos := 0

	for levelSize > 1 {
		hasSibling := idx%2 == 1 || idx+1 < levelSize
		if hasSibling {
			if proofPos >= len(proof) {
				return false
			}
			sibling := proof[proofPos]
			proofPos++
			if idx%2 == 0 {
				hash = hashPair(hash, sibling)
			} else {
				hash = hashPair(sibling, hash)
			}
		}
		idx /= 2
		levelSize = (levelSize + 1) / 2
	}

	if proofPos != len(proof) {
		return false
	}
	return hash == root
}

// LeafCount returns ceil(totalSize/BlockSize), the number of Merkle leaves
// for a blob of the given size.
func LeafCount(totalSize int) int {
	if totalSize <= 0 {
		return 0
	}
	return (totalSize + BlockSize - 1) / BlockSize
}

// buildLevels returns every level of the tree, from leaves (index 0) to the
// single-node root level (last index). An empty leaf set yields a single
// root level containing the Keccak-256 hash of the empty string.
func buildLevels(leaves []Hash) [][]Hash {
	if len(leaves) == 0 {
		return [][]Hash{{keccak256(nil)}}
	}

	levels := [][]Hash{leaves}
	current := leaves
	for len(current) > 1 {
		next := make([]Hash, 0, (len(current)+1)/2)
		for i := 0; i < len(current); i += 2 {
			if i+1 < len(current) {
				next = append(next, hashPair(current[i], current[i+1]))
			} else {
				next = append(next, current[i])
			}
		}
		levels = append(levels, next)
		current = next
	}
	return levels
}

func hashPair(left, right Hash) Hash {
	var out Hash
	copy(out[:], crypto.Keccak256(left[:], right[:]))
	return out
}

func keccak256(data []byte) Hash {
	var out Hash
	copy(out[:], crypto.Keccak256(data))
	return out
}
