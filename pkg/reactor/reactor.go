// Package reactor implements the lease-lifecycle event loop described by
// spec.md §4.8: it fuses peer protocol events, on-chain adjudicator
// events, and operator commands into one coherent set of lease state
// transitions, owning the only write path into pkg/persistence.
package reactor

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	libp2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/p2pim/node/internal/logger"
	"github.com/p2pim/node/pkg/datastore"
	"github.com/p2pim/node/pkg/lessor"
	"github.com/p2pim/node/pkg/metrics"
	"github.com/p2pim/node/pkg/network"
	"github.com/p2pim/node/pkg/nodeerrors"
	"github.com/p2pim/node/pkg/onchain"
	"github.com/p2pim/node/pkg/persistence"
)

// Reactor owns the single write path into the node's persisted lease
// state and is the only component that calls both the peer network and
// the chain client with mutating intent.
type Reactor struct {
	net     *network.Helper
	store   *datastore.Store
	ledger  *persistence.Store
	chain   *onchain.Client
	policy  *lessor.Policy
	metrics *metrics.ReactorMetrics
}

// New builds a Reactor wired to its collaborators. Run must be called to
// start the background event loops before any operator command is issued.
// m may be nil, matching metrics.NewReactorMetrics's disabled return.
func New(net *network.Helper, store *datastore.Store, ledger *persistence.Store, chain *onchain.Client, policy *lessor.Policy, m *metrics.ReactorMetrics) *Reactor {
	return &Reactor{net: net, store: store, ledger: ledger, chain: chain, policy: policy, metrics: m}
}

// Run starts Loop A (peer events) and Loop B (onchain events) and blocks
// until ctx is canceled. Both loops log and continue on recoverable
// errors; neither loop exits except via ctx cancellation.
func (r *Reactor) Run(ctx context.Context) error {
	chainEvents, err := r.chain.ListenAdjudicatorEvents(ctx)
	if err != nil {
		return fmt.Errorf("reactor: subscribing to adjudicator events: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-r.net.Unhandled():
			if !ok {
				return nil
			}
			r.metrics.ObserveLoopEvent("peer")
			go r.handlePeerEvent(ctx, ev)

		case ev, ok := <-chainEvents:
			if !ok {
				return nil
			}
			r.metrics.ObserveLoopEvent("chain")
			go r.handleChainEvent(ctx, ev)
		}
	}
}

// resolvePeerAddress derives the on-chain identity of p from its
// Identify-announced public key, per spec.md §6.2's addressing scheme:
// every storage identity is a secp256k1 key, so the same key that
// authenticates the libp2p connection also derives the address used in
// the signed lease tuple.
func (r *Reactor) resolvePeerAddress(p peer.ID) (common.Address, error) {
	pub, ok := r.net.FindPublicKey(p)
	if !ok {
		return common.Address{}, nodeerrors.Protocol("peer public key unknown", p.String())
	}
	if pub.Type() != libp2pcrypto.Secp256k1 {
		return common.Address{}, nodeerrors.Protocol("peer public key is not secp256k1", p.String())
	}

	raw, err := pub.Raw()
	if err != nil {
		return common.Address{}, nodeerrors.Protocol("reading peer public key bytes", err.Error())
	}

	ecdsaPub, err := crypto.DecompressPubkey(raw)
	if err != nil {
		return common.Address{}, nodeerrors.Protocol("decompressing peer public key", err.Error())
	}

	return crypto.PubkeyToAddress(*ecdsaPub), nil
}

func randomNonce() (uint64, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, nodeerrors.Invariant("generating lease nonce", err.Error())
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}

func logUnexpected(msg string, err error) {
	logger.Error(msg, logger.Err(err))
}
