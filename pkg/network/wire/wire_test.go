package wire

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p2pim/node/pkg/types"
)

func TestLeaseProposalRoundTrip(t *testing.T) {
	original := ProtocolMessage{
		Kind: KindLeaseProposal,
		LeaseProposal: &LeaseProposal{
			Nonce: 42,
			Terms: types.LeaseTerms{
				TokenAddress:       common.HexToAddress("0x0000000000000000000000000000000000000001"),
				Price:              big.NewInt(1000),
				Penalty:            big.NewInt(5),
				LeaseDuration:      time.Hour,
				ProposalExpiration: time.Unix(2_000_000_000, 0),
			},
			Signature: types.Signature{V: 27},
			Data:      []byte("hello"),
		},
	}

	buf, err := Marshal(original)
	require.NoError(t, err)

	decoded, err := Unmarshal(buf)
	require.NoError(t, err)

	assert.Equal(t, KindLeaseProposal, decoded.Kind)
	assert.Equal(t, original.LeaseProposal.Nonce, decoded.LeaseProposal.Nonce)
	assert.Equal(t, original.LeaseProposal.Terms.TokenAddress, decoded.LeaseProposal.Terms.TokenAddress)
	assert.Equal(t, 0, original.LeaseProposal.Terms.Price.Cmp(decoded.LeaseProposal.Terms.Price))
	assert.Equal(t, original.LeaseProposal.Terms.LeaseDuration, decoded.LeaseProposal.Terms.LeaseDuration)
	assert.Equal(t, original.LeaseProposal.Terms.ProposalExpiration.Unix(), decoded.LeaseProposal.Terms.ProposalExpiration.Unix())
	assert.Equal(t, original.LeaseProposal.Data, decoded.LeaseProposal.Data)
}

func TestLeaseRejectionRoundTrip(t *testing.T) {
	original := ProtocolMessage{Kind: KindLeaseRejection, LeaseRejection: &LeaseRejection{Nonce: 1, Reason: "token not accepted"}}
	buf, err := Marshal(original)
	require.NoError(t, err)
	decoded, err := Unmarshal(buf)
	require.NoError(t, err)
	assert.Equal(t, original.LeaseRejection, decoded.LeaseRejection)
}

func TestChallengeRequestRoundTrip(t *testing.T) {
	original := ProtocolMessage{Kind: KindChallengeRequest, ChallengeRequest: &ChallengeRequest{Nonce: 7, BlockNumber: 3}}
	buf, err := Marshal(original)
	require.NoError(t, err)
	decoded, err := Unmarshal(buf)
	require.NoError(t, err)
	assert.Equal(t, original.ChallengeRequest, decoded.ChallengeRequest)
}

func TestChallengeResponseRoundTrip(t *testing.T) {
	original := ProtocolMessage{
		Kind: KindChallengeResponse,
		ChallengeResponse: &ChallengeResponse{
			Nonce:       7,
			BlockNumber: 3,
			Proof: types.ChallengeProof{
				BlockData: []byte("block"),
				Proof:     [][32]byte{{1}, {2}, {3}},
			},
		},
	}
	buf, err := Marshal(original)
	require.NoError(t, err)
	decoded, err := Unmarshal(buf)
	require.NoError(t, err)
	assert.Equal(t, original.ChallengeResponse, decoded.ChallengeResponse)
}

func TestRetrieveRoundTrip(t *testing.T) {
	req := ProtocolMessage{Kind: KindRetrieveRequest, RetrieveRequest: &RetrieveRequest{Nonce: 9}}
	buf, err := Marshal(req)
	require.NoError(t, err)
	decoded, err := Unmarshal(buf)
	require.NoError(t, err)
	assert.Equal(t, req.RetrieveRequest, decoded.RetrieveRequest)

	delivery := ProtocolMessage{Kind: KindRetrieveDelivery, RetrieveDelivery: &RetrieveDelivery{Nonce: 9, Data: []byte("blob")}}
	buf, err = Marshal(delivery)
	require.NoError(t, err)
	decoded, err = Unmarshal(buf)
	require.NoError(t, err)
	assert.Equal(t, delivery.RetrieveDelivery, decoded.RetrieveDelivery)
}

func TestUnmarshalRejectsMalformedBuffer(t *testing.T) {
	_, err := Unmarshal([]byte{0xFF})
	assert.Error(t, err)
}
