// Package lessor implements the stateless acceptance policy that screens
// incoming lease proposals against a configured per-token Ask, per
// spec.md §4.5. It holds no mutable state beyond the immutable ask table
// built at construction time.
package lessor

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/p2pim/node/pkg/types"
)

// RejectedReason enumerates the policy's rejection outcomes, in the order
// they are checked.
type RejectedReason int

const (
	// TokenNotAccepted means there is no configured Ask for the lease's token.
	TokenNotAccepted RejectedReason = iota + 1
	// DurationTooShort means lease_duration is below the ask's range.
	DurationTooShort
	// DurationTooLong means lease_duration is at or above the ask's range.
	DurationTooLong
	// SizeTooSmall means size is below the ask's range.
	SizeTooSmall
	// SizeTooBig means size is at or above the ask's range.
	SizeTooBig
	// TotalTokensTooSmall means price is below the ask's minimum total.
	TotalTokensTooSmall
	// PriceRateTooSmall means the effective price per GiB-hour is too low.
	PriceRateTooSmall
	// PenaltyRateTooHigh means penalty/price exceeds the ask's maximum.
	PenaltyRateTooHigh
)

// String returns a human-readable rejection reason.
func (r RejectedReason) String() string {
	switch r {
	case TokenNotAccepted:
		return "token not accepted"
	case DurationTooShort:
		return "duration too short"
	case DurationTooLong:
		return "duration too long"
	case SizeTooSmall:
		return "size too small"
	case SizeTooBig:
		return "size too big"
	case TotalTokensTooSmall:
		return "total tokens too small"
	case PriceRateTooSmall:
		return "price per gb per hour too small"
	case PenaltyRateTooHigh:
		return "penalty too high"
	default:
		return "unknown rejection"
	}
}

// DurationRange is a half-open range [Min, Max) of acceptable lease durations.
type DurationRange struct {
	Min time.Duration
	Max time.Duration
}

func (r DurationRange) contains(d time.Duration) bool {
	return d >= r.Min && d < r.Max
}

// SizeRange is a half-open range [Min, Max) of acceptable blob sizes, in bytes.
type SizeRange struct {
	Min uint64
	Max uint64
}

func (r SizeRange) contains(s uint64) bool {
	return s >= r.Min && s < r.Max
}

// Ask is the lessor's advertised acceptance criteria for a single token.
type Ask struct {
	DurationRange      DurationRange
	SizeRange          SizeRange
	MinTokensTotal     *big.Int
	MinTokensPerGBHour *big.Int
	MaxPenaltyRate     float64
}

// Policy is the stateless predicate described by spec.md §4.5.
type Policy struct {
	asks map[common.Address]Ask
}

// NewPolicy builds a Policy from a per-token ask table.
func NewPolicy(asks map[common.Address]Ask) *Policy {
	copied := make(map[common.Address]Ask, len(asks))
	for addr, ask := range asks {
		copied[addr] = ask
	}
	return &Policy{asks: copied}
}

var (
	secondsPerHour = big.NewInt(3600)
	bytesPerGiB    = new(big.Int).Lsh(big.NewInt(1), 30)
)

// Evaluate screens a proposal against the configured ask for its token. The
// peerID is accepted for symmetry with spec.md's signature and future
// per-peer policy extensions; the current policy does not consult it.
func (p *Policy) Evaluate(peerID peer.ID, terms types.LeaseTerms, size uint64) (ok bool, reason RejectedReason) {
	_ = peerID

	ask, found := p.asks[terms.TokenAddress]
	if !found {
		return false, TokenNotAccepted
	}

	if !ask.DurationRange.contains(terms.LeaseDuration) {
		if terms.LeaseDuration < ask.DurationRange.Min {
			return false, DurationTooShort
		}
		return false, DurationTooLong
	}

	if !ask.SizeRange.contains(size) {
		if size < ask.SizeRange.Min {
			return false, SizeTooSmall
		}
		return false, SizeTooBig
	}

	if terms.Price.Cmp(ask.MinTokensTotal) < 0 {
		return false, TotalTokensTooSmall
	}

	// price_per_gb_hour = price * 3600 * 2^30 / (duration_secs * size)
	durationSecs := big.NewInt(int64(terms.LeaseDuration / time.Second))
	if durationSecs.Sign() == 0 || size == 0 {
		return false, PriceRateTooSmall
	}
	numerator := new(big.Int).Mul(terms.Price, secondsPerHour)
	numerator.Mul(numerator, bytesPerGiB)
	denominator := new(big.Int).Mul(durationSecs, new(big.Int).SetUint64(size))
	pricePerGBHour := new(big.Int).Div(numerator, denominator)

	if pricePerGBHour.Cmp(ask.MinTokensPerGBHour) < 0 {
		return false, PriceRateTooSmall
	}

	// A zero price makes penalty/price undefined. The original divides as
	// plain floats, where 0/0 is NaN (every comparison false, so this
	// check never rejects) and n/0 for n>0 is +Inf (always rejects);
	// big.Float.Quo panics on 0/0 instead of producing NaN, so the two
	// price-zero cases are handled explicitly here to match that behavior
	// without crashing on a zero-price, zero-penalty proposal.
	if terms.Price.Sign() == 0 {
		if terms.Penalty.Sign() > 0 {
			return false, PenaltyRateTooHigh
		}
	} else {
		penaltyRate := new(big.Float).Quo(
			new(big.Float).SetInt(terms.Penalty),
			new(big.Float).SetInt(terms.Price),
		)
		maxRate := big.NewFloat(ask.MaxPenaltyRate)
		if penaltyRate.Cmp(maxRate) > 0 {
			return false, PenaltyRateTooHigh
		}
	}

	return true, 0
}
