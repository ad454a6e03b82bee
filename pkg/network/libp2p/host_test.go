package libp2p

import (
	"context"
	"testing"
	"time"

	p2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/stretchr/testify/require"

	"github.com/p2pim/node/pkg/network/wire"
	"github.com/p2pim/node/pkg/types"
)

func newTestHost(t *testing.T) *Host {
	t.Helper()
	priv, _, err := p2pcrypto.GenerateSecp256k1Key(nil)
	require.NoError(t, err)

	h, err := New(priv, []string{"/ip4/127.0.0.1/tcp/0"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func waitForEvent(t *testing.T, h *Host, timeout time.Duration) wire.ProtocolMessage {
	t.Helper()
	select {
	case ev := <-h.Events():
		return ev.Message
	case <-time.After(timeout):
		t.Fatal("timed out waiting for inbound event")
		return wire.ProtocolMessage{}
	}
}

func TestHostRoundTripsRetrieveRequest(t *testing.T) {
	alice := newTestHost(t)
	bob := newTestHost(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	bobAddrs := bob.h.Addrs()
	require.NotEmpty(t, bobAddrs)

	bobInfo := bob.h.ID()
	alice.h.Peerstore().AddAddrs(bobInfo, bobAddrs, time.Hour)

	require.NoError(t, alice.SendRetrieveRequest(ctx, bobInfo, 42))

	msg := waitForEvent(t, bob, 5*time.Second)
	require.Equal(t, wire.KindRetrieveRequest, msg.Kind)
	require.Equal(t, uint64(42), msg.RetrieveRequest.Nonce)
}

func TestHostRoundTripsChallengeResponse(t *testing.T) {
	alice := newTestHost(t)
	bob := newTestHost(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	alice.h.Peerstore().AddAddrs(bob.h.ID(), bob.h.Addrs(), time.Hour)

	proof := types.ChallengeProof{BlockData: []byte("leaf"), Proof: [][32]byte{{1}, {2}}}
	require.NoError(t, alice.SendChallengeResponse(ctx, bob.h.ID(), types.ChallengeKey{Nonce: 7, BlockNumber: 3}, proof))

	msg := waitForEvent(t, bob, 5*time.Second)
	require.Equal(t, wire.KindChallengeResponse, msg.Kind)
	require.Equal(t, uint64(7), msg.ChallengeResponse.Nonce)
	require.Equal(t, []byte("leaf"), msg.ChallengeResponse.Proof.BlockData)
}

func TestFindPublicKeyAfterConnect(t *testing.T) {
	alice := newTestHost(t)
	bob := newTestHost(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	alice.h.Peerstore().AddAddrs(bob.h.ID(), bob.h.Addrs(), time.Hour)
	require.NoError(t, alice.SendRetrieveRequest(ctx, bob.h.ID(), 1))
	waitForEvent(t, bob, 5*time.Second)

	_, ok := bob.FindPublicKey(alice.h.ID())
	require.True(t, ok)
}
