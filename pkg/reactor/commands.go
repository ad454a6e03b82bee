package reactor

import (
	"bytes"
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/p2pim/node/internal/telemetry"
	"github.com/p2pim/node/pkg/datastore"
	"github.com/p2pim/node/pkg/merkle"
	"github.com/p2pim/node/pkg/nodeerrors"
	"github.com/p2pim/node/pkg/onchain"
	"github.com/p2pim/node/pkg/types"
)

// Lease is the renter-side operator command: propose a lease to p and
// race a rejection against a LeaseSealed confirmation, per spec.md §4.8.
func (r *Reactor) Lease(ctx context.Context, p peer.ID, terms types.LeaseTerms, data []byte) (hash common.Hash, err error) {
	start := time.Now()
	defer func() { r.metrics.ObserveCommand("lease", err, time.Since(start)) }()

	hash, err = r.lease(ctx, p, terms, data)
	return hash, err
}

func (r *Reactor) lease(ctx context.Context, p peer.ID, terms types.LeaseTerms, data []byte) (common.Hash, error) {
	ctx, span := telemetry.StartReactorSpan(ctx, telemetry.SpanLease, p.String(),
		telemetry.TokenAddress(terms.TokenAddress.Hex()), telemetry.Size(uint64(len(data))))
	defer span.End()

	nonce, err := randomNonce()
	if err != nil {
		telemetry.RecordError(ctx, err)
		return common.Hash{}, err
	}

	dataParams := datastore.Parameters(data)
	span.SetAttributes(telemetry.Nonce(nonce), telemetry.MerkleRoot(common.Bytes2Hex(dataParams.MerkleRoot[:])))

	lessorAddr, err := r.resolvePeerAddress(p)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return common.Hash{}, err
	}

	sig, err := r.chain.SignProposal(lessorAddr, nonce, terms, dataParams)
	if err != nil {
		return common.Hash{}, err
	}

	r.ledger.RentStore(types.Lease{
		PeerID:         p,
		PeerAddress:    lessorAddr,
		Nonce:          nonce,
		Terms:          terms,
		DataParameters: dataParams,
	})
	r.metrics.SetActiveLeases(len(r.ledger.RentList()))

	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type rejectOutcome struct {
		reason string
		err    error
	}
	type sealOutcome struct {
		event *onchain.LeaseSealedEvent
		err   error
	}

	rejectCh := make(chan rejectOutcome, 1)
	sealCh := make(chan sealOutcome, 1)

	go func() {
		reason, err := r.net.ProposeLease(raceCtx, p, nonce, terms, sig, data)
		rejectCh <- rejectOutcome{reason: reason, err: err}
	}()
	go func() {
		ev, err := r.chain.WaitForSealLease(raceCtx, terms.TokenAddress, lessorAddr, nonce, terms.ProposalExpiration)
		sealCh <- sealOutcome{event: ev, err: err}
	}()

	select {
	case res := <-rejectCh:
		cancel()
		if res.err != nil {
			err := nodeerrors.Transient("lease proposal wait failed", res.err.Error())
			telemetry.RecordError(ctx, err)
			return common.Hash{}, err
		}
		err := nodeerrors.Policy(res.reason)
		telemetry.RecordError(ctx, err)
		return common.Hash{}, err

	case res := <-sealCh:
		cancel()
		if res.err != nil {
			err := nodeerrors.Transient("wait for seal lease failed", res.err.Error())
			telemetry.RecordError(ctx, err)
			return common.Hash{}, err
		}
		if res.event == nil {
			err := nodeerrors.Transient("lease timed out", "no LeaseSealed event observed before proposal_expiration")
			telemetry.RecordError(ctx, err)
			return common.Hash{}, err
		}
		span.SetAttributes(telemetry.TxHash(res.event.TransactionHash.Hex()))
		return res.event.TransactionHash, nil
	}
}

// Challenge is the renter-side operator command: request a Merkle proof
// for one block of a lease and verify it against the stored parameters.
func (r *Reactor) Challenge(ctx context.Context, p peer.ID, key types.ChallengeKey) error {
	ctx, span := telemetry.StartReactorSpan(ctx, telemetry.SpanChallenge, p.String(), telemetry.Nonce(key.Nonce))
	defer span.End()

	lease, found := r.ledger.RentGet(types.LeaseKey{PeerID: p, Nonce: key.Nonce})
	if !found {
		err := nodeerrors.Validation("lease not found", "")
		telemetry.RecordError(ctx, err)
		return err
	}
	if uint64(key.BlockNumber)*merkle.BlockSize >= lease.DataParameters.Size {
		err := nodeerrors.Validation("block number out of range", "")
		telemetry.RecordError(ctx, err)
		return err
	}

	proof, err := r.net.Challenge(ctx, p, key)
	if err != nil {
		wrapped := nodeerrors.Transient("challenge request failed", err.Error())
		telemetry.RecordError(ctx, wrapped)
		return wrapped
	}

	if !datastore.Verify(lease.DataParameters, key.BlockNumber, proof) {
		err := nodeerrors.Validation("proof not valid", "")
		telemetry.RecordError(ctx, err)
		return err
	}
	return nil
}

// Retrieve is the renter-side operator command: fetch the full blob for a
// lease and validate it still matches the parameters recorded at lease
// time.
func (r *Reactor) Retrieve(ctx context.Context, p peer.ID, nonce uint64) ([]byte, error) {
	ctx, span := telemetry.StartReactorSpan(ctx, telemetry.SpanRetrieve, p.String(), telemetry.Nonce(nonce))
	defer span.End()

	lease, found := r.ledger.RentGet(types.LeaseKey{PeerID: p, Nonce: nonce})
	if !found {
		err := nodeerrors.Validation("lease not found", "")
		telemetry.RecordError(ctx, err)
		return nil, err
	}

	data, err := r.net.Retrieve(ctx, p, nonce)
	if err != nil {
		wrapped := nodeerrors.Transient("retrieve request failed", err.Error())
		telemetry.RecordError(ctx, wrapped)
		return nil, wrapped
	}

	recomputed := datastore.Parameters(data)
	if recomputed.Size != lease.DataParameters.Size {
		err := nodeerrors.Validation("retrieved data size mismatch", "")
		telemetry.RecordError(ctx, err)
		return nil, err
	}
	if !bytes.Equal(recomputed.MerkleRoot[:], lease.DataParameters.MerkleRoot[:]) {
		err := nodeerrors.Validation("retrieved data merkle root mismatch", "")
		telemetry.RecordError(ctx, err)
		return nil, err
	}
	span.SetAttributes(telemetry.Size(recomputed.Size))
	return data, nil
}

// Deposit, Withdraw, and Approve pass through to the chain client.
func (r *Reactor) Deposit(ctx context.Context, token common.Address, amount *big.Int) (*gethtypes.Transaction, error) {
	return r.chain.Deposit(ctx, token, amount)
}

func (r *Reactor) Withdraw(ctx context.Context, token common.Address, amount *big.Int) (*gethtypes.Transaction, error) {
	return r.chain.Withdraw(ctx, token, amount)
}

func (r *Reactor) Approve(ctx context.Context, token common.Address) (*gethtypes.Transaction, error) {
	return r.chain.Approve(ctx, token)
}

// NodeInfo is the aggregated snapshot returned by GetInfo.
type NodeInfo struct {
	OwnAddress common.Address
	Leases     []types.Lease
}

// GetInfo passes through to the chain client and persistence for a
// combined node status snapshot, per SPEC_FULL.md's supplemented
// get_info/rent_list surface.
func (r *Reactor) GetInfo() NodeInfo {
	return NodeInfo{
		OwnAddress: r.chain.OwnAddress(),
		Leases:     r.ledger.RentList(),
	}
}

// Balance passes through to the chain client.
func (r *Reactor) Balance(ctx context.Context, token common.Address) (types.Balance, error) {
	return r.chain.Balance(ctx, token)
}

// StoredBlobs returns the blobs this node holds on disk for peerID as
// lessor, read back from the datastore's side index. This is the
// restart-survivable counterpart to GetInfo's in-memory lease ledger: a
// blob can be listed here even after the process restarts and before any
// lease for it has been re-learned from chain.
func (r *Reactor) StoredBlobs(peerID peer.ID) ([]datastore.StoredBlob, error) {
	return r.store.List(peerID)
}

// PeerInfo pairs a connected peer's transport identity with its resolved
// on-chain address, for the supplemented swarm/peers query.
type PeerInfo struct {
	PeerID  peer.ID
	Address common.Address
}

// ListPeers returns every peer this node's transport currently holds an
// Identify-derived public key for, per the original's swarm command.
// A peer whose address cannot yet be resolved is omitted rather than
// reported with a zero address.
func (r *Reactor) ListPeers() []PeerInfo {
	ids := r.net.Peers()
	peers := make([]PeerInfo, 0, len(ids))
	for _, id := range ids {
		addr, err := r.resolvePeerAddress(id)
		if err != nil {
			continue
		}
		peers = append(peers, PeerInfo{PeerID: id, Address: addr})
	}
	return peers
}
