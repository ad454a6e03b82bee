// Package network defines the abstract peer-network surface described by
// spec.md §4.6: a typed, fire-and-forget outbound surface, an infinite
// inbound event stream, and a directory of Identify-derived peer public
// keys. pkg/network/libp2p provides the concrete transport; this package
// also hosts the request/response convenience helpers built on top of the
// primitives plus pkg/correlator.
package network

import (
	"context"

	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/p2pim/node/pkg/network/wire"
	"github.com/p2pim/node/pkg/types"
)

// InboundEvent pairs a decoded protocol message with the peer it arrived
// from.
type InboundEvent struct {
	Peer    peer.ID
	Message wire.ProtocolMessage
}

// Network is the transport-agnostic peer-network surface. Outbound sends
// are fire-and-forget: delivery is attempted on at most one established
// connection per peer, and failures are returned synchronously rather
// than retried internally.
type Network interface {
	SendProposal(ctx context.Context, p peer.ID, nonce uint64, terms types.LeaseTerms, sig types.Signature, data []byte) error
	SendProposalRejection(ctx context.Context, p peer.ID, nonce uint64, reason string) error
	SendChallengeRequest(ctx context.Context, p peer.ID, key types.ChallengeKey) error
	SendChallengeResponse(ctx context.Context, p peer.ID, key types.ChallengeKey, proof types.ChallengeProof) error
	SendRetrieveRequest(ctx context.Context, p peer.ID, nonce uint64) error
	SendRetrieveDelivery(ctx context.Context, p peer.ID, nonce uint64, data []byte) error

	// Events delivers every inbound ProtocolMessage, forever. It is never
	// restarted; a transport-level reconnect yields a fresh stream of
	// events on this same channel.
	Events() <-chan InboundEvent

	// FindPublicKey returns the public key an Identify handshake has
	// associated with p, if any. Implementations reject any key that
	// does not hash to p or that is not a secp256k1 key before recording
	// it, so a hit here is always safe to trust.
	FindPublicKey(p peer.ID) (crypto.PubKey, bool)

	// Peers lists every peer this transport has ever recorded a public
	// key for, backing the supplemented swarm/peers query.
	Peers() []peer.ID

	Close() error
}
