package lessor

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"

	"github.com/p2pim/node/pkg/types"
)

var testToken = common.HexToAddress("0x0000000000000000000000000000000000000001")

func baseAsk() Ask {
	return Ask{
		DurationRange:      DurationRange{Min: time.Minute, Max: 24 * time.Hour},
		SizeRange:          SizeRange{Min: 1, Max: 1 << 30},
		MinTokensTotal:     big.NewInt(1),
		MinTokensPerGBHour: big.NewInt(0),
		MaxPenaltyRate:     1.0,
	}
}

func leaseTerms(token common.Address, price, penalty *big.Int, duration time.Duration) types.LeaseTerms {
	return types.LeaseTerms{
		TokenAddress:       token,
		Price:              price,
		Penalty:            penalty,
		LeaseDuration:      duration,
		ProposalExpiration: time.Now().Add(time.Hour),
	}
}

func TestPolicyAcceptsWithinAsk(t *testing.T) {
	p := NewPolicy(map[common.Address]Ask{testToken: baseAsk()})

	terms := leaseTerms(testToken, big.NewInt(100), big.NewInt(1), time.Hour)
	ok, reason := p.Evaluate("", terms, 1024)
	assert.True(t, ok)
	assert.Equal(t, RejectedReason(0), reason)
}

func TestPolicyRejectsUnknownToken(t *testing.T) {
	p := NewPolicy(map[common.Address]Ask{})
	terms := leaseTerms(testToken, big.NewInt(100), big.NewInt(1), time.Hour)
	ok, reason := p.Evaluate("", terms, 1024)
	assert.False(t, ok)
	assert.Equal(t, TokenNotAccepted, reason)
}

func TestPolicyRejectsZeroPrice(t *testing.T) {
	ask := baseAsk()
	ask.MinTokensTotal = big.NewInt(1)
	p := NewPolicy(map[common.Address]Ask{testToken: ask})

	terms := leaseTerms(testToken, big.NewInt(0), big.NewInt(0), time.Hour)
	ok, reason := p.Evaluate("", terms, 1024)
	assert.False(t, ok)
	assert.Equal(t, TotalTokensTooSmall, reason)
}

func TestPolicyRejectsDurationOutOfRange(t *testing.T) {
	p := NewPolicy(map[common.Address]Ask{testToken: baseAsk()})

	tooShort := leaseTerms(testToken, big.NewInt(100), big.NewInt(1), time.Second)
	ok, reason := p.Evaluate("", tooShort, 1024)
	assert.False(t, ok)
	assert.Equal(t, DurationTooShort, reason)

	tooLong := leaseTerms(testToken, big.NewInt(100), big.NewInt(1), 48*time.Hour)
	ok, reason = p.Evaluate("", tooLong, 1024)
	assert.False(t, ok)
	assert.Equal(t, DurationTooLong, reason)
}

func TestPolicyRejectsPenaltyTooHigh(t *testing.T) {
	ask := baseAsk()
	ask.MaxPenaltyRate = 0.1
	p := NewPolicy(map[common.Address]Ask{testToken: ask})

	terms := leaseTerms(testToken, big.NewInt(100), big.NewInt(50), time.Hour)
	ok, reason := p.Evaluate("", terms, 1024)
	assert.False(t, ok)
	assert.Equal(t, PenaltyRateTooHigh, reason)
}

func TestPolicyAcceptsZeroPriceZeroPenaltyWithPermissiveAsk(t *testing.T) {
	ask := baseAsk()
	ask.MinTokensTotal = big.NewInt(0)
	ask.MinTokensPerGBHour = big.NewInt(0)
	p := NewPolicy(map[common.Address]Ask{testToken: ask})

	terms := leaseTerms(testToken, big.NewInt(0), big.NewInt(0), time.Hour)
	assert.NotPanics(t, func() {
		ok, reason := p.Evaluate("", terms, 1024)
		assert.True(t, ok)
		assert.Equal(t, RejectedReason(0), reason)
	})
}

func TestPolicyRejectsZeroPriceNonzeroPenaltyWithPermissiveAsk(t *testing.T) {
	ask := baseAsk()
	ask.MinTokensTotal = big.NewInt(0)
	ask.MinTokensPerGBHour = big.NewInt(0)
	p := NewPolicy(map[common.Address]Ask{testToken: ask})

	terms := leaseTerms(testToken, big.NewInt(0), big.NewInt(1), time.Hour)
	assert.NotPanics(t, func() {
		ok, reason := p.Evaluate("", terms, 1024)
		assert.False(t, ok)
		assert.Equal(t, PenaltyRateTooHigh, reason)
	})
}

func TestPolicyMonotonicity(t *testing.T) {
	ask := baseAsk()
	ask.MinTokensTotal = big.NewInt(1000)
	p := NewPolicy(map[common.Address]Ask{testToken: ask})

	terms := leaseTerms(testToken, big.NewInt(500), big.NewInt(1), time.Hour)
	ok, _ := p.Evaluate("", terms, 1024)
	assert.False(t, ok)

	// Lowering min_tokens_total must not turn an accepted proposal into a
	// rejection: an already-accepting ask stays accepting when widened.
	widened := ask
	widened.MinTokensTotal = big.NewInt(1)
	p2 := NewPolicy(map[common.Address]Ask{testToken: widened})
	ok2, _ := p2.Evaluate("", terms, 1024)
	assert.True(t, ok2)
}
