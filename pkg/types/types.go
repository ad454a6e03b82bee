// Package types holds the canonical in-memory records shared across the
// node: lease terms, signatures, persisted leases, challenge keys/proofs
// and per-token balances. Types in this package carry no behavior beyond
// small invariant-checking constructors; they are the vocabulary every
// other component speaks.
package types

import (
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/libp2p/go-libp2p/core/peer"
)

// LeaseTerms are the immutable-once-signed economic terms of a lease.
type LeaseTerms struct {
	TokenAddress       common.Address
	Price              *big.Int // smallest token unit
	Penalty            *big.Int // smallest token unit
	LeaseDuration      time.Duration
	ProposalExpiration time.Time
}

// Validate enforces LeaseTerms invariants: proposal_expiration > now and
// lease_duration > 0.
func (t LeaseTerms) Validate(now time.Time) error {
	if !t.ProposalExpiration.After(now) {
		return errors.New("lease terms: proposal_expiration must be after now")
	}
	if t.LeaseDuration <= 0 {
		return errors.New("lease terms: lease_duration must be positive")
	}
	if t.Price == nil || t.Penalty == nil {
		return errors.New("lease terms: price and penalty are required")
	}
	return nil
}

// DataParameters describes the stored blob: its Merkle root and byte size.
type DataParameters struct {
	MerkleRoot [32]byte
	Size       uint64
}

// Signature is a 65-byte (r, s, v) ECDSA signature over the canonical
// encoding of a lease tuple (see pkg/onchain for the encoding).
type Signature struct {
	R [32]byte
	S [32]byte
	V byte
}

// Bytes returns the 65-byte wire form r||s||v.
func (s Signature) Bytes() []byte {
	out := make([]byte, 65)
	copy(out[0:32], s.R[:])
	copy(out[32:64], s.S[:])
	out[64] = s.V
	return out
}

// SignatureFromBytes parses a 65-byte r||s||v signature.
func SignatureFromBytes(buf []byte) (Signature, error) {
	if len(buf) != 65 {
		return Signature{}, errors.New("signature: incorrect input length")
	}
	var s Signature
	copy(s.R[:], buf[0:32])
	copy(s.S[:], buf[32:64])
	s.V = buf[64]
	return s, nil
}

// ChainConfirmation is attached to a Lease once its LeaseSealed event has
// been observed on chain.
type ChainConfirmation struct {
	TransactionHash common.Hash
	Timestamp       time.Time
}

// Lease is the mutable lifecycle record for a single lease. Only
// ChainConfirmation transitions after creation (none -> Some on Added,
// Some -> none on Removed).
type Lease struct {
	PeerID            peer.ID
	PeerAddress       common.Address
	Nonce             uint64
	Terms             LeaseTerms
	DataParameters    DataParameters
	ChainConfirmation *ChainConfirmation
}

// Key returns the (peer_id, nonce) identity used by persistence lookups.
func (l Lease) Key() LeaseKey {
	return LeaseKey{PeerID: l.PeerID, Nonce: l.Nonce}
}

// LeaseKey identifies a lease by counterparty peer and nonce.
type LeaseKey struct {
	PeerID peer.ID
	Nonce  uint64
}

// ChallengeKey uniquely identifies which Merkle leaf is being challenged
// within a lease.
type ChallengeKey struct {
	Nonce       uint64
	BlockNumber uint32
}

// ChallengeProof carries the leaf bytes and sibling hashes along the
// Merkle path for a challenged block.
type ChallengeProof struct {
	BlockData []byte
	Proof     [][32]byte
}

// TokenMetadata is best-effort ERC-20 metadata; fields are empty when the
// token does not implement the optional metadata methods.
type TokenMetadata struct {
	Name     string
	Symbol   string
	Decimals uint8
}

// StorageBalance is the lessor-side balance held by the adjudicator.
type StorageBalance struct {
	Available   *big.Int
	LockedRents *big.Int
	LockedLets  *big.Int
}

// WalletBalance is the renter-side ERC-20 wallet state.
type WalletBalance struct {
	Available *big.Int
	Allowance *big.Int
}

// Balance is the full per-token, per-node balance snapshot.
type Balance struct {
	TokenMetadata  *TokenMetadata
	StorageBalance StorageBalance
	WalletBalance  WalletBalance
}
