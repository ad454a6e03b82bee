package types

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLeaseTermsValidate(t *testing.T) {
	now := time.Now()

	valid := LeaseTerms{
		Price:              big.NewInt(1),
		Penalty:            big.NewInt(1),
		LeaseDuration:      time.Hour,
		ProposalExpiration: now.Add(time.Minute),
	}
	assert.NoError(t, valid.Validate(now))

	expired := valid
	expired.ProposalExpiration = now.Add(-time.Second)
	assert.Error(t, expired.Validate(now))

	zeroDuration := valid
	zeroDuration.LeaseDuration = 0
	assert.Error(t, zeroDuration.Validate(now))
}

func TestSignatureRoundTrip(t *testing.T) {
	var sig Signature
	for i := range sig.R {
		sig.R[i] = byte(i)
		sig.S[i] = byte(255 - i)
	}
	sig.V = 27

	buf := sig.Bytes()
	assert.Len(t, buf, 65)

	parsed, err := SignatureFromBytes(buf)
	assert.NoError(t, err)
	assert.Equal(t, sig, parsed)

	_, err = SignatureFromBytes(buf[:64])
	assert.Error(t, err)
}

func TestLeaseKey(t *testing.T) {
	l := Lease{Nonce: 42}
	assert.Equal(t, LeaseKey{Nonce: 42}, l.Key())
}
