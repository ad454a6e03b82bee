package datastore

import (
	"testing"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p2pim/node/pkg/merkle"
)

func testPeerID(t *testing.T) peer.ID {
	t.Helper()
	id, err := peer.Decode("12D3KooWGRujMHVvYSmrC9qhnRYPCKtMtuDXzWPKjPWNDL33VWAS")
	require.NoError(t, err)
	return id
}

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreAndProof(t *testing.T) {
	store := openStore(t)
	peerID := testPeerID(t)
	data := make([]byte, merkle.BlockSize*3+17)
	for i := range data {
		data[i] = byte(i)
	}

	params, err := store.Store(peerID, 1, data)
	require.NoError(t, err)
	assert.Equal(t, uint64(len(data)), params.Size)

	proof, err := store.Proof(peerID, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, data[merkle.BlockSize:merkle.BlockSize*2], proof.BlockData)
	assert.True(t, Verify(params, 1, proof))
}

func TestStoreRejectsDuplicateNonce(t *testing.T) {
	store := openStore(t)
	peerID := testPeerID(t)

	_, err := store.Store(peerID, 1, []byte("first"))
	require.NoError(t, err)

	_, err = store.Store(peerID, 1, []byte("second"))
	assert.Error(t, err)
}

func TestProofLastBlockClipped(t *testing.T) {
	store := openStore(t)
	peerID := testPeerID(t)
	data := make([]byte, merkle.BlockSize+10)

	params, err := store.Store(peerID, 2, data)
	require.NoError(t, err)

	proof, err := store.Proof(peerID, 2, 1)
	require.NoError(t, err)
	assert.Len(t, proof.BlockData, 10)
	assert.True(t, Verify(params, 1, proof))
}

func TestProofOutOfRangeFails(t *testing.T) {
	store := openStore(t)
	peerID := testPeerID(t)

	_, err := store.Store(peerID, 3, []byte("small"))
	require.NoError(t, err)

	_, err = store.Proof(peerID, 3, 5)
	assert.Error(t, err)
}

func TestProofMissingBlobFails(t *testing.T) {
	store := openStore(t)
	peerID := testPeerID(t)

	_, err := store.Proof(peerID, 99, 0)
	assert.Error(t, err)
}

func TestVerifyRejectsTamperedBlock(t *testing.T) {
	store := openStore(t)
	peerID := testPeerID(t)
	data := make([]byte, merkle.BlockSize*2)

	params, err := store.Store(peerID, 4, data)
	require.NoError(t, err)

	proof, err := store.Proof(peerID, 4, 0)
	require.NoError(t, err)
	proof.BlockData[0] ^= 0xFF

	assert.False(t, Verify(params, 0, proof))
}

func TestDeleteRemovesBlob(t *testing.T) {
	store := openStore(t)
	peerID := testPeerID(t)

	_, err := store.Store(peerID, 5, []byte("data"))
	require.NoError(t, err)

	require.NoError(t, store.Delete(peerID, 5))

	_, err = store.Proof(peerID, 5, 0)
	assert.Error(t, err)
}

func TestListReturnsStoredBlobs(t *testing.T) {
	store := openStore(t)
	peerID := testPeerID(t)

	paramsA, err := store.Store(peerID, 10, []byte("a"))
	require.NoError(t, err)
	paramsB, err := store.Store(peerID, 11, []byte("bb"))
	require.NoError(t, err)

	blobs, err := store.List(peerID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []StoredBlob{
		{Nonce: 10, Parameters: paramsA},
		{Nonce: 11, Parameters: paramsB},
	}, blobs)
}

func TestListOmitsDeletedBlobs(t *testing.T) {
	store := openStore(t)
	peerID := testPeerID(t)

	_, err := store.Store(peerID, 20, []byte("gone"))
	require.NoError(t, err)
	require.NoError(t, store.Delete(peerID, 20))

	blobs, err := store.List(peerID)
	require.NoError(t, err)
	assert.Empty(t, blobs)
}

func TestParametersIsPure(t *testing.T) {
	data := []byte("hello world")
	a := Parameters(data)
	b := Parameters(data)
	assert.Equal(t, a, b)
}
