package network

import (
	"context"
	"errors"

	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/p2pim/node/internal/logger"
	"github.com/p2pim/node/pkg/correlator"
	"github.com/p2pim/node/pkg/network/wire"
	"github.com/p2pim/node/pkg/types"
)

type challengeKey struct {
	peer peer.ID
	key  types.ChallengeKey
}

type nonceKey struct {
	peer  peer.ID
	nonce uint64
}

// Helper layers the reactor's request/response conveniences (challenge,
// retrieve, propose-with-rejection) on top of a Network and the generic
// correlator, per spec.md §4.6/§4.7. It owns a background goroutine that
// drains the Network's event stream, resolving correlator listeners for
// response-shaped events and forwarding everything else — inbound
// proposals, challenge requests, retrieve requests — on Unhandled.
type Helper struct {
	net Network

	challenges *correlator.Table[challengeKey, types.ChallengeProof]
	retrievals *correlator.Table[nonceKey, []byte]
	rejections *correlator.Table[nonceKey, string]

	unhandled chan InboundEvent
	done      chan struct{}
}

// NewHelper wraps net and starts the background event router. Cancel ctx
// to stop it.
func NewHelper(ctx context.Context, net Network) *Helper {
	h := &Helper{
		net:        net,
		challenges: correlator.New[challengeKey, types.ChallengeProof](),
		retrievals: correlator.New[nonceKey, []byte](),
		rejections: correlator.New[nonceKey, string](),
		unhandled:  make(chan InboundEvent, 64),
		done:       make(chan struct{}),
	}
	go h.route(ctx)
	return h
}

func (h *Helper) route(ctx context.Context) {
	defer close(h.done)
	events := h.net.Events()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			h.dispatch(ev)
		}
	}
}

func (h *Helper) dispatch(ev InboundEvent) {
	switch ev.Message.Kind {
	case wire.KindChallengeResponse:
		resp := ev.Message.ChallengeResponse
		key := challengeKey{peer: ev.Peer, key: types.ChallengeKey{Nonce: resp.Nonce, BlockNumber: resp.BlockNumber}}
		if count := h.challenges.Notify(key, resp.Proof); count == 0 {
			logger.Debug("unexpected challenge response", logger.PeerID(ev.Peer.String()), logger.Nonce(resp.Nonce))
		}
	case wire.KindRetrieveDelivery:
		delivery := ev.Message.RetrieveDelivery
		key := nonceKey{peer: ev.Peer, nonce: delivery.Nonce}
		if count := h.retrievals.Notify(key, delivery.Data); count == 0 {
			logger.Debug("unexpected retrieve delivery", logger.PeerID(ev.Peer.String()), logger.Nonce(delivery.Nonce))
		}
	case wire.KindLeaseRejection:
		rejection := ev.Message.LeaseRejection
		key := nonceKey{peer: ev.Peer, nonce: rejection.Nonce}
		if count := h.rejections.Notify(key, rejection.Reason); count == 0 {
			logger.Debug("unexpected lease rejection", logger.PeerID(ev.Peer.String()), logger.Nonce(rejection.Nonce))
		}
	default:
		h.unhandled <- ev
	}
}

// Unhandled delivers every inbound event this helper does not itself
// correlate: lease proposals, challenge requests, and retrieve requests,
// which the reactor handles directly.
func (h *Helper) Unhandled() <-chan InboundEvent {
	return h.unhandled
}

// Peers passes through to the underlying transport's peer directory.
func (h *Helper) Peers() []peer.ID {
	return h.net.Peers()
}

// FindPublicKey passes through to the underlying transport.
func (h *Helper) FindPublicKey(p peer.ID) (crypto.PubKey, bool) {
	return h.net.FindPublicKey(p)
}

// Challenge sends a challenge request and waits for the matching
// response or ctx cancellation, registering the listener before sending
// to avoid a lost wakeup.
func (h *Helper) Challenge(ctx context.Context, p peer.ID, key types.ChallengeKey) (types.ChallengeProof, error) {
	listener := correlator.NewListener(h.challenges, challengeKey{peer: p, key: key})
	if err := h.net.SendChallengeRequest(ctx, p, key); err != nil {
		listener.Cancel()
		return types.ChallengeProof{}, err
	}
	return listener.Wait(ctx)
}

// Retrieve sends a retrieve request and waits for the matching delivery.
func (h *Helper) Retrieve(ctx context.Context, p peer.ID, nonce uint64) ([]byte, error) {
	listener := correlator.NewListener(h.retrievals, nonceKey{peer: p, nonce: nonce})
	if err := h.net.SendRetrieveRequest(ctx, p, nonce); err != nil {
		listener.Cancel()
		return nil, err
	}
	return listener.Wait(ctx)
}

// ErrProposalTimedOut is returned by ProposeLease when ctx expires without
// a rejection arriving; the caller should treat this as a tentative
// acceptance pending the on-chain seal_lease race.
var ErrProposalTimedOut = errors.New("network: proposal wait timed out without a rejection")

// ProposeLease sends a lease proposal and waits for either a rejection or
// ctx's deadline. A non-empty reason means the lessor rejected the deal;
// ErrProposalTimedOut means no rejection arrived before the deadline the
// caller chose to wait.
func (h *Helper) ProposeLease(ctx context.Context, p peer.ID, nonce uint64, terms types.LeaseTerms, sig types.Signature, data []byte) (reason string, err error) {
	listener := correlator.NewListener(h.rejections, nonceKey{peer: p, nonce: nonce})
	if err := h.net.SendProposal(ctx, p, nonce, terms, sig, data); err != nil {
		listener.Cancel()
		return "", err
	}

	reason, waitErr := listener.Wait(ctx)
	if waitErr != nil {
		return "", ErrProposalTimedOut
	}
	return reason, nil
}
