package merkle

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmptyTreeRoot(t *testing.T) {
	tree := New()
	root := tree.Root()
	assert.Equal(t, keccak256(nil), root)
}

func TestRootStableAcrossBlockBoundaries(t *testing.T) {
	cases := []int{0, 1, BlockSize - 1, BlockSize, BlockSize + 1, BlockSize * 3}
	for _, size := range cases {
		tree := New()
		data := bytes.Repeat([]byte{0xAB}, size)
		tree.Append(data)
		root := tree.Root()
		assert.Equal(t, size, tree.Size())

		// Appending in small chunks must produce the same root.
		chunked := New()
		for i := 0; i < len(data); i += 7 {
			end := i + 7
			if end > len(data) {
				end = len(data)
			}
			chunked.Append(data[i:end])
		}
		assert.Equal(t, root, chunked.Root(), "size=%d", size)
	}
}

func TestRoundTripSingleLeaf(t *testing.T) {
	tree := New()
	data := []byte("hello world")
	tree.Append(data)
	root := tree.Root()

	proof := tree.Proof(0)
	assert.Empty(t, proof)
	assert.True(t, Verify(0, data, proof, root, len(data)))
}

func TestRoundTripMultiLeaf(t *testing.T) {
	data := bytes.Repeat([]byte{0x01}, BlockSize*5+37)
	tree := New()
	tree.Append(data)
	root := tree.Root()

	totalLeaves := LeafCount(len(data))
	require.Equal(t, 6, totalLeaves)

	for i := 0; i < totalLeaves; i++ {
		start := i * BlockSize
		end := start + BlockSize
		if end > len(data) {
			end = len(data)
		}
		block := data[start:end]
		proof := tree.Proof(i)
		assert.True(t, Verify(i, block, proof, root, len(data)), "leaf %d", i)
	}
}

func TestVerifyRejectsTamperedBlock(t *testing.T) {
	data := bytes.Repeat([]byte{0x02}, BlockSize*2)
	tree := New()
	tree.Append(data)
	root := tree.Root()

	block := append([]byte(nil), data[:BlockSize]...)
	proof := tree.Proof(0)
	require.True(t, Verify(0, block, proof, root, len(data)))

	block[0] ^= 0xFF
	assert.False(t, Verify(0, block, proof, root, len(data)))
}

func TestVerifyRejectsTamperedProof(t *testing.T) {
	data := bytes.Repeat([]byte{0x03}, BlockSize*2)
	tree := New()
	tree.Append(data)
	root := tree.Root()

	block := append([]byte(nil), data[:BlockSize]...)
	proof := tree.Proof(0)
	require.NotEmpty(t, proof)
	proof[0][0] ^= 0xFF
	assert.False(t, Verify(0, block, proof, root, len(data)))
}

func TestVerifyRejectsTamperedRoot(t *testing.T) {
	data := bytes.Repeat([]byte{0x04}, BlockSize*2)
	tree := New()
	tree.Append(data)
	root := tree.Root()
	proof := tree.Proof(0)
	block := append([]byte(nil), data[:BlockSize]...)

	root[0] ^= 0xFF
	assert.False(t, Verify(0, block, proof, root, len(data)))
}

func TestVerifyRejectsOutOfRangeLeaf(t *testing.T) {
	data := bytes.Repeat([]byte{0x05}, BlockSize)
	tree := New()
	tree.Append(data)
	root := tree.Root()

	assert.False(t, Verify(1, data, nil, root, len(data)))
	assert.False(t, Verify(0, data, nil, root, 0))
}

func TestProofNonDestructive(t *testing.T) {
	data := bytes.Repeat([]byte{0x06}, BlockSize*3+10)
	tree := New()
	tree.Append(data)

	root1 := tree.Root()
	_ = tree.Proof(0)
	root2 := tree.Root()
	assert.Equal(t, root1, root2)

	// Further appends after Root()/Proof() must still extend the tree.
	tree.Append([]byte{0x07})
	assert.Equal(t, len(data)+1, tree.Size())
}

func TestLeafCount(t *testing.T) {
	assert.Equal(t, 0, LeafCount(0))
	assert.Equal(t, 1, LeafCount(1))
	assert.Equal(t, 1, LeafCount(BlockSize))
	assert.Equal(t, 2, LeafCount(BlockSize+1))
}
