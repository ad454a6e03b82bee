package reactor

import (
	"context"

	"github.com/p2pim/node/internal/logger"
	"github.com/p2pim/node/pkg/nodeerrors"
	"github.com/p2pim/node/pkg/onchain"
	"github.com/p2pim/node/pkg/types"
)

// handleChainEvent processes one LeaseSealed event (Added or Removed),
// updating whichever side of the lease this node is party to, per
// spec.md §4.8 Loop B. Unlike the original, which leaves the lessor-side
// ("lets") branch as an unpersisted gap, both branches are handled
// symmetrically here: each records a ChainConfirmation keyed by the
// counterparty's address, matching how that side's Lease was originally
// stored (see DESIGN.md's open-question decisions).
func (r *Reactor) handleChainEvent(ctx context.Context, ev onchain.LeaseSealedEvent) {
	self := r.chain.OwnAddress()

	var confirmation *types.ChainConfirmation
	if !ev.Removed {
		timestamp, err := r.chain.BlockTimestamp(ctx, ev.BlockNumber)
		if err != nil {
			logger.Warn("failed to read block timestamp for chain confirmation", logger.ChainBlock(ev.BlockNumber), logger.Err(err))
			return
		}
		confirmation = &types.ChainConfirmation{TransactionHash: ev.TransactionHash, Timestamp: timestamp}
	}

	switch {
	case ev.Lessee == self:
		if err := r.ledger.RentUpdateChain(ev.Lessor, ev.Nonce, confirmation); err != nil {
			if nodeerrors.Is(err, nodeerrors.ClassInvariant) {
				logUnexpected("lease sealed event for untracked renter-side lease", err)
			}
		}
	case ev.Lessor == self:
		if err := r.ledger.RentUpdateChain(ev.Lessee, ev.Nonce, confirmation); err != nil {
			if nodeerrors.Is(err, nodeerrors.ClassInvariant) {
				logUnexpected("lease sealed event for untracked lessor-side lease", err)
			}
		}
	default:
		logger.Debug("ignoring LeaseSealed event for unrelated parties", logger.Nonce(ev.Nonce))
	}
}
