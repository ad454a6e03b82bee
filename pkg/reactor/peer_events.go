package reactor

import (
	"context"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/p2pim/node/internal/logger"
	"github.com/p2pim/node/pkg/network"
	"github.com/p2pim/node/pkg/network/wire"
	"github.com/p2pim/node/pkg/types"
)

// handlePeerEvent dispatches one inbound protocol message that the
// network helper did not itself correlate: a lease proposal, a challenge
// request, or a retrieve request, per spec.md §4.8 Loop A. Every other
// message kind is resolved by the correlator before it reaches here.
func (r *Reactor) handlePeerEvent(ctx context.Context, ev network.InboundEvent) {
	switch ev.Message.Kind {
	case wire.KindLeaseProposal:
		r.receivedLeaseProposal(ctx, ev.Peer, ev.Message.LeaseProposal)
	case wire.KindChallengeRequest:
		r.receivedChallengeRequest(ctx, ev.Peer, ev.Message.ChallengeRequest)
	case wire.KindRetrieveRequest:
		r.receivedRetrieveRequest(ctx, ev.Peer, ev.Message.RetrieveRequest)
	default:
		logger.Warn("unexpected unhandled message kind reached the reactor", logger.PeerID(ev.Peer.String()))
	}
}

// receivedLeaseProposal is the lessor-side acceptance path: policy check,
// peer-address resolution, duplicate-nonce guard, blob persistence, and
// on-chain sealing, with a roll-back of the stored blob if sealing fails.
func (r *Reactor) receivedLeaseProposal(ctx context.Context, p peer.ID, proposal *wire.LeaseProposal) {
	size := uint64(len(proposal.Data))

	if ok, reason := r.policy.Evaluate(p, proposal.Terms, size); !ok {
		logger.Info("rejecting lease proposal", logger.PeerID(p.String()), logger.Nonce(proposal.Nonce))
		r.metrics.ObserveLeaseRejected(reason.String())
		if err := r.net.SendProposalRejection(ctx, p, proposal.Nonce, reason.String()); err != nil {
			logger.Warn("failed to send proposal rejection", logger.PeerID(p.String()), logger.Err(err))
		}
		return
	}

	lesseeAddr, err := r.resolvePeerAddress(p)
	if err != nil {
		logger.Warn("dropping lease proposal from peer with unresolved address", logger.PeerID(p.String()), logger.Err(err))
		return
	}

	key := types.LeaseKey{PeerID: p, Nonce: proposal.Nonce}
	if _, exists := r.ledger.RentGet(key); exists {
		logger.Info("rejecting duplicate lease nonce", logger.PeerID(p.String()), logger.Nonce(proposal.Nonce))
		if err := r.net.SendProposalRejection(ctx, p, proposal.Nonce, "duplicate nonce"); err != nil {
			logger.Warn("failed to send duplicate-nonce rejection", logger.PeerID(p.String()), logger.Err(err))
		}
		return
	}

	dataParams, err := r.store.Store(p, proposal.Nonce, proposal.Data)
	if err != nil {
		logger.Error("failed to persist lease blob", logger.PeerID(p.String()), logger.Nonce(proposal.Nonce), logger.Err(err))
		return
	}

	submitStart := time.Now()
	tx, err := r.chain.SealLease(ctx, lesseeAddr, proposal.Nonce, proposal.Terms, dataParams, proposal.Signature)
	r.metrics.ObserveOnchainSubmission("seal_lease", err, time.Since(submitStart))
	if err != nil {
		logger.Error("seal_lease submission failed, rolling back blob", logger.PeerID(p.String()), logger.Nonce(proposal.Nonce), logger.Err(err))
		if delErr := r.store.Delete(p, proposal.Nonce); delErr != nil {
			logger.Error("rollback delete failed after seal_lease failure", logger.PeerID(p.String()), logger.Nonce(proposal.Nonce), logger.Err(delErr))
		}
		return
	}

	r.ledger.RentStore(types.Lease{
		PeerID:         p,
		PeerAddress:    lesseeAddr,
		Nonce:          proposal.Nonce,
		Terms:          proposal.Terms,
		DataParameters: dataParams,
	})

	logger.Info("lease proposal accepted, seal_lease submitted", logger.PeerID(p.String()), logger.Nonce(proposal.Nonce), logger.TxHash(tx.Hash().Hex()))
}

// receivedChallengeRequest serves a Merkle proof for one block of a lease
// this node holds the blob for. A missing blob is logged and left to time
// out at the challenger, matching spec.md §4.8.
func (r *Reactor) receivedChallengeRequest(ctx context.Context, p peer.ID, req *wire.ChallengeRequest) {
	proof, err := r.store.Proof(p, req.Nonce, req.BlockNumber)
	if err != nil {
		logger.Error("cannot build challenge proof", logger.PeerID(p.String()), logger.Nonce(req.Nonce), logger.Err(err))
		return
	}

	key := types.ChallengeKey{Nonce: req.Nonce, BlockNumber: req.BlockNumber}
	if err := r.net.SendChallengeResponse(ctx, p, key, proof); err != nil {
		logger.Warn("failed to send challenge response", logger.PeerID(p.String()), logger.Nonce(req.Nonce), logger.Err(err))
	}
}

// receivedRetrieveRequest serves the full stored blob for a lease. Any
// peer may retrieve any blob it names by nonce; there is no separate
// retrieve ACL in this design (see the open-question decisions in
// DESIGN.md).
func (r *Reactor) receivedRetrieveRequest(ctx context.Context, p peer.ID, req *wire.RetrieveRequest) {
	data, err := r.store.Read(p, req.Nonce)
	if err != nil {
		logger.Error("cannot read blob for retrieve request", logger.PeerID(p.String()), logger.Nonce(req.Nonce), logger.Err(err))
		return
	}

	if err := r.net.SendRetrieveDelivery(ctx, p, req.Nonce, data); err != nil {
		logger.Warn("failed to send retrieve delivery", logger.PeerID(p.String()), logger.Nonce(req.Nonce), logger.Err(err))
	}
}
