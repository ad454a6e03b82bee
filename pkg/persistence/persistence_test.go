package persistence

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p2pim/node/pkg/types"
)

func testPeerID(t *testing.T) peer.ID {
	t.Helper()
	id, err := peer.Decode("12D3KooWGRujMHVvYSmrC9qhnRYPCKtMtuDXzWPKjPWNDL33VWAS")
	require.NoError(t, err)
	return id
}

func sampleLease(t *testing.T, nonce uint64) types.Lease {
	t.Helper()
	return types.Lease{
		PeerID:      testPeerID(t),
		PeerAddress: common.HexToAddress("0x0000000000000000000000000000000000000002"),
		Nonce:       nonce,
		Terms: types.LeaseTerms{
			TokenAddress:       common.HexToAddress("0x0000000000000000000000000000000000000001"),
			LeaseDuration:      time.Hour,
			ProposalExpiration: time.Now().Add(time.Hour),
		},
	}
}

func TestRentStoreAndGet(t *testing.T) {
	s := New()
	lease := sampleLease(t, 1)
	s.RentStore(lease)

	got, found := s.RentGet(lease.Key())
	require.True(t, found)
	assert.Equal(t, lease, got)
}

func TestRentStoreOverwritesSameKey(t *testing.T) {
	s := New()
	lease := sampleLease(t, 1)
	s.RentStore(lease)

	updated := lease
	updated.Terms.LeaseDuration = 2 * time.Hour
	s.RentStore(updated)

	got, found := s.RentGet(lease.Key())
	require.True(t, found)
	assert.Equal(t, 2*time.Hour, got.Terms.LeaseDuration)
	assert.Len(t, s.RentList(), 1)
}

func TestRentUpdateChainByAddress(t *testing.T) {
	s := New()
	lease := sampleLease(t, 1)
	s.RentStore(lease)

	confirmation := &types.ChainConfirmation{Timestamp: time.Now()}
	err := s.RentUpdateChain(lease.PeerAddress, lease.Nonce, confirmation)
	require.NoError(t, err)

	got, _ := s.RentGet(lease.Key())
	assert.Equal(t, confirmation, got.ChainConfirmation)
}

func TestRentUpdateChainMissingLeaseFails(t *testing.T) {
	s := New()
	err := s.RentUpdateChain(common.HexToAddress("0x00"), 1, nil)
	assert.Error(t, err)
}

func TestRentListReturnsSnapshot(t *testing.T) {
	s := New()
	s.RentStore(sampleLease(t, 1))
	s.RentStore(sampleLease(t, 2))

	leases := s.RentList()
	assert.Len(t, leases, 2)
}
