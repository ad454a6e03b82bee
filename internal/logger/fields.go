package logger

import (
	"fmt"
	"log/slog"
)

// Standard field keys for structured logging across the reactor, onchain,
// peer network, data store and persistence components.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// ========================================================================
	// Component & Operation
	// ========================================================================
	KeyComponent = "component" // reactor, onchain, datastore, network, persistence, lessor
	KeyOperation = "operation" // lease, retrieve, challenge, deposit, withdraw, approve

	// ========================================================================
	// Peer identity
	// ========================================================================
	KeyPeerID        = "peer_id"        // libp2p peer id, base58
	KeyPeerAddress   = "peer_address"   // on-chain address derived from peer's public key
	KeyRemoteAddr    = "remote_addr"    // multiaddr of the remote endpoint

	// ========================================================================
	// Lease / economics
	// ========================================================================
	KeyNonce           = "nonce"            // 64-bit lease nonce
	KeyTokenAddress    = "token_address"    // ERC-20 token contract address
	KeyAdjudicator     = "adjudicator"      // adjudicator contract address for the token
	KeyPrice           = "price"            // lease price, smallest token unit
	KeyPenalty         = "penalty"          // lease penalty, smallest token unit
	KeyLeaseDuration   = "lease_duration"   // lease duration, seconds
	KeyExpiration      = "expiration"       // proposal expiration, unix seconds
	KeyRejectReason    = "reject_reason"    // lessor policy rejection reason

	// ========================================================================
	// Data / Merkle
	// ========================================================================
	KeyMerkleRoot  = "merkle_root"   // 32-byte Merkle root, hex
	KeySize        = "size"          // blob size in bytes
	KeyBlockNumber = "block_number"  // Merkle leaf / block index being challenged
	KeyBlockCount  = "block_count"   // total leaf count for a blob

	// ========================================================================
	// Chain
	// ========================================================================
	KeyTxHash      = "tx_hash"       // on-chain transaction hash
	KeyChainBlock  = "chain_block"   // chain block number
	KeyEventKind   = "event_kind"    // Added | Removed
	KeyGasTipCap   = "gas_tip_cap"   // EIP-1559 suggested tip cap
	KeyGasFeeCap   = "gas_fee_cap"   // EIP-1559 fee cap

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyErrorCode  = "error_code"  // Numeric error code / error class
	KeyAttempt    = "attempt"     // Retry attempt number

	// ========================================================================
	// Correlator
	// ========================================================================
	KeyListenerKey   = "listener_key"   // string form of the correlator key
	KeyListenerCount = "listener_count" // number of listeners notified
)

// ----------------------------------------------------------------------------
// Distributed Tracing
// ----------------------------------------------------------------------------

// TraceID returns a slog.Attr for OpenTelemetry trace ID
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// SpanID returns a slog.Attr for OpenTelemetry span ID
func SpanID(id string) slog.Attr {
	return slog.String(KeySpanID, id)
}

// ----------------------------------------------------------------------------
// Component & Operation
// ----------------------------------------------------------------------------

// Component returns a slog.Attr naming the emitting component.
func Component(name string) slog.Attr {
	return slog.String(KeyComponent, name)
}

// Operation returns a slog.Attr for the operator command name.
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// ----------------------------------------------------------------------------
// Peer identity
// ----------------------------------------------------------------------------

// PeerID returns a slog.Attr for a peer's network identity.
func PeerID(id string) slog.Attr {
	return slog.String(KeyPeerID, id)
}

// PeerAddress returns a slog.Attr for a peer's on-chain address.
func PeerAddress(addr string) slog.Attr {
	return slog.String(KeyPeerAddress, addr)
}

// RemoteAddr returns a slog.Attr for a remote multiaddr.
func RemoteAddr(addr string) slog.Attr {
	return slog.String(KeyRemoteAddr, addr)
}

// ----------------------------------------------------------------------------
// Lease / economics
// ----------------------------------------------------------------------------

// Nonce returns a slog.Attr for a lease nonce.
func Nonce(n uint64) slog.Attr {
	return slog.Uint64(KeyNonce, n)
}

// TokenAddress returns a slog.Attr for a token contract address.
func TokenAddress(addr string) slog.Attr {
	return slog.String(KeyTokenAddress, addr)
}

// Adjudicator returns a slog.Attr for an adjudicator contract address.
func Adjudicator(addr string) slog.Attr {
	return slog.String(KeyAdjudicator, addr)
}

// Price returns a slog.Attr for a lease price in smallest token unit.
func Price(p string) slog.Attr {
	return slog.String(KeyPrice, p)
}

// Penalty returns a slog.Attr for a lease penalty in smallest token unit.
func Penalty(p string) slog.Attr {
	return slog.String(KeyPenalty, p)
}

// LeaseDuration returns a slog.Attr for a lease duration in seconds.
func LeaseDuration(seconds int64) slog.Attr {
	return slog.Int64(KeyLeaseDuration, seconds)
}

// Expiration returns a slog.Attr for a proposal expiration (unix seconds).
func Expiration(unixSeconds int64) slog.Attr {
	return slog.Int64(KeyExpiration, unixSeconds)
}

// RejectReason returns a slog.Attr for a lessor policy rejection reason.
func RejectReason(reason string) slog.Attr {
	return slog.String(KeyRejectReason, reason)
}

// ----------------------------------------------------------------------------
// Data / Merkle
// ----------------------------------------------------------------------------

// MerkleRoot returns a slog.Attr for a 32-byte Merkle root.
func MerkleRoot(root []byte) slog.Attr {
	return slog.String(KeyMerkleRoot, fmt.Sprintf("%x", root))
}

// Size returns a slog.Attr for a blob size.
func Size(s uint64) slog.Attr {
	return slog.Uint64(KeySize, s)
}

// BlockNumber returns a slog.Attr for a Merkle leaf/block index.
func BlockNumber(n uint32) slog.Attr {
	return slog.Any(KeyBlockNumber, n)
}

// BlockCount returns a slog.Attr for a total leaf count.
func BlockCount(n int) slog.Attr {
	return slog.Int(KeyBlockCount, n)
}

// ----------------------------------------------------------------------------
// Chain
// ----------------------------------------------------------------------------

// TxHash returns a slog.Attr for a transaction hash.
func TxHash(hash string) slog.Attr {
	return slog.String(KeyTxHash, hash)
}

// ChainBlock returns a slog.Attr for a chain block number.
func ChainBlock(n uint64) slog.Attr {
	return slog.Uint64(KeyChainBlock, n)
}

// EventKind returns a slog.Attr for Added/Removed event classification.
func EventKind(kind string) slog.Attr {
	return slog.String(KeyEventKind, kind)
}

// GasTipCap returns a slog.Attr for an EIP-1559 suggested tip cap.
func GasTipCap(v string) slog.Attr {
	return slog.String(KeyGasTipCap, v)
}

// GasFeeCap returns a slog.Attr for an EIP-1559 fee cap.
func GasFeeCap(v string) slog.Attr {
	return slog.String(KeyGasFeeCap, v)
}

// ----------------------------------------------------------------------------
// Operation Metadata
// ----------------------------------------------------------------------------

// DurationMs returns a slog.Attr for duration in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// ErrorCode returns a slog.Attr for a numeric/symbolic error class.
func ErrorCode(code string) slog.Attr {
	return slog.String(KeyErrorCode, code)
}

// Attempt returns a slog.Attr for retry attempt number
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}

// ----------------------------------------------------------------------------
// Correlator
// ----------------------------------------------------------------------------

// ListenerKey returns a slog.Attr for a correlator key.
func ListenerKey(key string) slog.Attr {
	return slog.String(KeyListenerKey, key)
}

// ListenerCount returns a slog.Attr for the number of listeners notified.
func ListenerCount(n int) slog.Attr {
	return slog.Int(KeyListenerCount, n)
}
