package reactor

import (
	"context"
	"testing"

	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/require"

	"github.com/p2pim/node/pkg/datastore"
	"github.com/p2pim/node/pkg/lessor"
	"github.com/p2pim/node/pkg/network"
	"github.com/p2pim/node/pkg/network/wire"
	"github.com/p2pim/node/pkg/persistence"
	"github.com/p2pim/node/pkg/types"
)

// fakeNetwork is a minimal in-memory network.Network used to exercise the
// reactor's command surface without a real libp2p transport.
type fakeNetwork struct {
	events  chan network.InboundEvent
	pubkeys map[peer.ID]crypto.PubKey

	onChallengeRequest func(p peer.ID, key types.ChallengeKey)
	onRetrieveRequest  func(p peer.ID, nonce uint64)
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{
		events:  make(chan network.InboundEvent, 16),
		pubkeys: make(map[peer.ID]crypto.PubKey),
	}
}

func (f *fakeNetwork) SendProposal(ctx context.Context, p peer.ID, nonce uint64, terms types.LeaseTerms, sig types.Signature, data []byte) error {
	return nil
}
func (f *fakeNetwork) SendProposalRejection(ctx context.Context, p peer.ID, nonce uint64, reason string) error {
	return nil
}
func (f *fakeNetwork) SendChallengeRequest(ctx context.Context, p peer.ID, key types.ChallengeKey) error {
	if f.onChallengeRequest != nil {
		f.onChallengeRequest(p, key)
	}
	return nil
}
func (f *fakeNetwork) SendChallengeResponse(ctx context.Context, p peer.ID, key types.ChallengeKey, proof types.ChallengeProof) error {
	return nil
}
func (f *fakeNetwork) SendRetrieveRequest(ctx context.Context, p peer.ID, nonce uint64) error {
	if f.onRetrieveRequest != nil {
		f.onRetrieveRequest(p, nonce)
	}
	return nil
}
func (f *fakeNetwork) SendRetrieveDelivery(ctx context.Context, p peer.ID, nonce uint64, data []byte) error {
	return nil
}
func (f *fakeNetwork) Events() <-chan network.InboundEvent { return f.events }
func (f *fakeNetwork) FindPublicKey(p peer.ID) (crypto.PubKey, bool) {
	k, ok := f.pubkeys[p]
	return k, ok
}
func (f *fakeNetwork) Peers() []peer.ID {
	peers := make([]peer.ID, 0, len(f.pubkeys))
	for p := range f.pubkeys {
		peers = append(peers, p)
	}
	return peers
}
func (f *fakeNetwork) Close() error { return nil }

func newTestReactor(t *testing.T) (*Reactor, *fakeNetwork, *datastore.Store, *persistence.Store) {
	t.Helper()
	store, err := datastore.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ledger := persistence.New()
	fake := newFakeNetwork()
	helper := network.NewHelper(context.Background(), fake)
	policy := lessor.NewPolicy(nil)

	r := &Reactor{net: helper, store: store, ledger: ledger, policy: policy}
	return r, fake, store, ledger
}

func testPeerID(t *testing.T) peer.ID {
	t.Helper()
	id, err := peer.Decode("12D3KooWGRujMHVvYSmrC9qhnRYPCKtMtuDXzWPKjPWNDL33VWAS")
	require.NoError(t, err)
	return id
}

func TestChallengeFailsWhenLeaseUnknown(t *testing.T) {
	r, _, _, _ := newTestReactor(t)
	p := testPeerID(t)

	err := r.Challenge(context.Background(), p, types.ChallengeKey{Nonce: 1, BlockNumber: 0})
	require.Error(t, err)
}

func TestChallengeFailsWhenBlockOutOfRange(t *testing.T) {
	r, _, _, ledger := newTestReactor(t)
	p := testPeerID(t)

	ledger.RentStore(types.Lease{
		PeerID:         p,
		Nonce:          1,
		DataParameters: types.DataParameters{Size: 10},
	})

	err := r.Challenge(context.Background(), p, types.ChallengeKey{Nonce: 1, BlockNumber: 1})
	require.Error(t, err)
}

func TestChallengeSucceedsOnValidProof(t *testing.T) {
	r, fake, store, ledger := newTestReactor(t)
	p := testPeerID(t)

	data := []byte("hello world")
	params, err := store.Store(p, 1, data)
	require.NoError(t, err)

	ledger.RentStore(types.Lease{PeerID: p, Nonce: 1, DataParameters: params})

	fake.onChallengeRequest = func(challengedPeer peer.ID, key types.ChallengeKey) {
		proof, err := store.Proof(challengedPeer, key.Nonce, key.BlockNumber)
		require.NoError(t, err)
		fake.events <- network.InboundEvent{
			Peer: challengedPeer,
			Message: wire.ProtocolMessage{
				Kind:              wire.KindChallengeResponse,
				ChallengeResponse: &wire.ChallengeResponse{Nonce: key.Nonce, BlockNumber: key.BlockNumber, Proof: proof},
			},
		}
	}

	err = r.Challenge(context.Background(), p, types.ChallengeKey{Nonce: 1, BlockNumber: 0})
	require.NoError(t, err)
}

func TestChallengeFailsOnTamperedProof(t *testing.T) {
	r, fake, store, ledger := newTestReactor(t)
	p := testPeerID(t)

	data := []byte("hello world")
	params, err := store.Store(p, 1, data)
	require.NoError(t, err)
	ledger.RentStore(types.Lease{PeerID: p, Nonce: 1, DataParameters: params})

	fake.onChallengeRequest = func(challengedPeer peer.ID, key types.ChallengeKey) {
		proof, err := store.Proof(challengedPeer, key.Nonce, key.BlockNumber)
		require.NoError(t, err)
		proof.BlockData[0] ^= 0xFF
		fake.events <- network.InboundEvent{
			Peer: challengedPeer,
			Message: wire.ProtocolMessage{
				Kind:              wire.KindChallengeResponse,
				ChallengeResponse: &wire.ChallengeResponse{Nonce: key.Nonce, BlockNumber: key.BlockNumber, Proof: proof},
			},
		}
	}

	err = r.Challenge(context.Background(), p, types.ChallengeKey{Nonce: 1, BlockNumber: 0})
	require.Error(t, err)
}

func TestRetrieveFailsOnSizeMismatch(t *testing.T) {
	r, fake, _, ledger := newTestReactor(t)
	p := testPeerID(t)

	original := []byte("the quick brown fox")
	ledger.RentStore(types.Lease{PeerID: p, Nonce: 2, DataParameters: datastore.Parameters(original)})

	fake.onRetrieveRequest = func(requestedPeer peer.ID, nonce uint64) {
		fake.events <- network.InboundEvent{
			Peer: requestedPeer,
			Message: wire.ProtocolMessage{
				Kind:             wire.KindRetrieveDelivery,
				RetrieveDelivery: &wire.RetrieveDelivery{Nonce: nonce, Data: original[:5]},
			},
		}
	}

	_, err := r.Retrieve(context.Background(), p, 2)
	require.Error(t, err)
}

func TestRetrieveSucceedsOnMatchingData(t *testing.T) {
	r, fake, _, ledger := newTestReactor(t)
	p := testPeerID(t)

	original := []byte("the quick brown fox")
	ledger.RentStore(types.Lease{PeerID: p, Nonce: 3, DataParameters: datastore.Parameters(original)})

	fake.onRetrieveRequest = func(requestedPeer peer.ID, nonce uint64) {
		fake.events <- network.InboundEvent{
			Peer: requestedPeer,
			Message: wire.ProtocolMessage{
				Kind:             wire.KindRetrieveDelivery,
				RetrieveDelivery: &wire.RetrieveDelivery{Nonce: nonce, Data: original},
			},
		}
	}

	got, err := r.Retrieve(context.Background(), p, 3)
	require.NoError(t, err)
	require.Equal(t, original, got)
}

func TestStoredBlobsReflectsDatastoreIndex(t *testing.T) {
	r, _, store, _ := newTestReactor(t)
	p := testPeerID(t)

	params, err := store.Store(p, 7, []byte("stored on disk"))
	require.NoError(t, err)

	blobs, err := r.StoredBlobs(p)
	require.NoError(t, err)
	require.Len(t, blobs, 1)
	require.Equal(t, uint64(7), blobs[0].Nonce)
	require.Equal(t, params, blobs[0].Parameters)
}

func TestStoredBlobsEmptyForUnknownPeer(t *testing.T) {
	r, _, _, _ := newTestReactor(t)
	p := testPeerID(t)

	blobs, err := r.StoredBlobs(p)
	require.NoError(t, err)
	require.Empty(t, blobs)
}
