package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys for reactor and onchain spans.
const (
	AttrPeerID             = "p2pim.peer_id"
	AttrTokenAddress       = "p2pim.token_address"
	AttrAdjudicatorAddress = "p2pim.adjudicator_address"
	AttrNonce              = "p2pim.nonce"
	AttrTxHash             = "p2pim.tx_hash"
	AttrBlockNumber        = "p2pim.block_number"
	AttrMerkleRoot         = "p2pim.merkle_root"
	AttrSize               = "p2pim.size"
	AttrLeaseDuration      = "p2pim.lease_duration"
	AttrPrice              = "p2pim.price"
	AttrPenalty            = "p2pim.penalty"
	AttrRejectReason       = "p2pim.reject_reason"
	AttrComponent          = "p2pim.component"
)

// Span names for reactor operations and onchain submissions.
const (
	SpanLease        = "reactor.lease"
	SpanChallenge    = "reactor.challenge"
	SpanRetrieve     = "reactor.retrieve"
	SpanDeposit      = "reactor.deposit"
	SpanWithdraw     = "reactor.withdraw"
	SpanApprove      = "reactor.approve"
	SpanSubmitSeal   = "onchain.submit_seal_lease"
	SpanSubmitProof  = "onchain.submit_challenge_proof"
	SpanWatchChain   = "onchain.watch"
	SpanNetworkSend  = "network.send"
	SpanNetworkRecv  = "network.receive"
)

// PeerID returns an attribute for a libp2p peer ID.
func PeerID(id string) attribute.KeyValue {
	return attribute.String(AttrPeerID, id)
}

// TokenAddress returns an attribute for an ERC-20 token address.
func TokenAddress(addr string) attribute.KeyValue {
	return attribute.String(AttrTokenAddress, addr)
}

// AdjudicatorAddress returns an attribute for the on-chain adjudicator address.
func AdjudicatorAddress(addr string) attribute.KeyValue {
	return attribute.String(AttrAdjudicatorAddress, addr)
}

// Nonce returns an attribute for a lease nonce.
func Nonce(nonce uint64) attribute.KeyValue {
	return attribute.Int64(AttrNonce, int64(nonce))
}

// TxHash returns an attribute for a submitted transaction hash.
func TxHash(hash string) attribute.KeyValue {
	return attribute.String(AttrTxHash, hash)
}

// BlockNumber returns an attribute for a chain block number.
func BlockNumber(n uint64) attribute.KeyValue {
	return attribute.Int64(AttrBlockNumber, int64(n))
}

// MerkleRoot returns an attribute for a Merkle tree root, hex-encoded.
func MerkleRoot(root string) attribute.KeyValue {
	return attribute.String(AttrMerkleRoot, root)
}

// Size returns an attribute for a blob size in bytes.
func Size(size uint64) attribute.KeyValue {
	return attribute.Int64(AttrSize, int64(size))
}

// Component returns an attribute identifying the emitting component
// (reactor, onchain, datastore, network).
func Component(name string) attribute.KeyValue {
	return attribute.String(AttrComponent, name)
}

// StartReactorSpan starts a span for a reactor operator command.
func StartReactorSpan(ctx context.Context, name string, peerID string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{PeerID(peerID)}, attrs...)
	return StartSpan(ctx, name, trace.WithAttributes(allAttrs...))
}

// StartOnchainSpan starts a span for an onchain submission or watch cycle.
func StartOnchainSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, name, trace.WithAttributes(attrs...))
}
