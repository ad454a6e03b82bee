package wire

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/p2pim/node/pkg/types"
)

func appendVarintField(buf []byte, num protowire.Number, v uint64) []byte {
	buf = protowire.AppendTag(buf, num, protowire.VarintType)
	return protowire.AppendVarint(buf, v)
}

func appendBytesField(buf []byte, num protowire.Number, v []byte) []byte {
	buf = protowire.AppendTag(buf, num, protowire.BytesType)
	return protowire.AppendBytes(buf, v)
}

// decodeFields walks a flat sequence of protobuf tag/value pairs, invoking
// onVarint or onBytes per field. It does not support nested or packed
// repeated fields beyond what each message below needs (plain repeated
// bytes, accumulated by the caller across multiple onBytes calls for the
// same field number).
func decodeFields(buf []byte, onVarint func(num protowire.Number, v uint64), onBytes func(num protowire.Number, v []byte)) error {
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return fmt.Errorf("wire: malformed field tag")
		}
		buf = buf[n:]

		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(buf)
			if n < 0 {
				return fmt.Errorf("wire: malformed varint field %d", num)
			}
			buf = buf[n:]
			onVarint(num, v)
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(buf)
			if n < 0 {
				return fmt.Errorf("wire: malformed bytes field %d", num)
			}
			buf = buf[n:]
			onBytes(num, append([]byte(nil), v...))
		default:
			return fmt.Errorf("wire: unsupported wire type %d for field %d", typ, num)
		}
	}
	return nil
}

const (
	leaseProposalFieldNonce      = 1
	leaseProposalFieldToken      = 2
	leaseProposalFieldPrice      = 3
	leaseProposalFieldPenalty    = 4
	leaseProposalFieldDuration   = 5
	leaseProposalFieldExpiration = 6
	leaseProposalFieldSignature  = 7
	leaseProposalFieldData       = 8
)

func marshalLeaseProposal(m *LeaseProposal) []byte {
	var buf []byte
	buf = appendVarintField(buf, leaseProposalFieldNonce, m.Nonce)
	buf = appendBytesField(buf, leaseProposalFieldToken, m.Terms.TokenAddress.Bytes())
	buf = appendBytesField(buf, leaseProposalFieldPrice, m.Terms.Price.Bytes())
	buf = appendBytesField(buf, leaseProposalFieldPenalty, m.Terms.Penalty.Bytes())
	buf = appendVarintField(buf, leaseProposalFieldDuration, uint64(m.Terms.LeaseDuration.Seconds()))
	buf = appendVarintField(buf, leaseProposalFieldExpiration, uint64(m.Terms.ProposalExpiration.Unix()))
	buf = appendBytesField(buf, leaseProposalFieldSignature, m.Signature.Bytes())
	buf = appendBytesField(buf, leaseProposalFieldData, m.Data)
	return buf
}

func unmarshalLeaseProposal(buf []byte) (*LeaseProposal, error) {
	m := &LeaseProposal{Terms: types.LeaseTerms{Price: new(big.Int), Penalty: new(big.Int)}}
	var sigBytes []byte

	err := decodeFields(buf,
		func(num protowire.Number, v uint64) {
			switch num {
			case leaseProposalFieldNonce:
				m.Nonce = v
			case leaseProposalFieldDuration:
				m.Terms.LeaseDuration = time.Duration(v) * time.Second
			case leaseProposalFieldExpiration:
				m.Terms.ProposalExpiration = time.Unix(int64(v), 0)
			}
		},
		func(num protowire.Number, v []byte) {
			switch num {
			case leaseProposalFieldToken:
				m.Terms.TokenAddress = common.BytesToAddress(v)
			case leaseProposalFieldPrice:
				m.Terms.Price.SetBytes(v)
			case leaseProposalFieldPenalty:
				m.Terms.Penalty.SetBytes(v)
			case leaseProposalFieldSignature:
				sigBytes = v
			case leaseProposalFieldData:
				m.Data = v
			}
		},
	)
	if err != nil {
		return nil, err
	}

	if sigBytes != nil {
		sig, err := types.SignatureFromBytes(sigBytes)
		if err != nil {
			return nil, fmt.Errorf("wire: lease proposal signature: %w", err)
		}
		m.Signature = sig
	}

	return m, nil
}

const (
	leaseRejectionFieldNonce  = 1
	leaseRejectionFieldReason = 2
)

func marshalLeaseRejection(m *LeaseRejection) []byte {
	var buf []byte
	buf = appendVarintField(buf, leaseRejectionFieldNonce, m.Nonce)
	buf = appendBytesField(buf, leaseRejectionFieldReason, []byte(m.Reason))
	return buf
}

func unmarshalLeaseRejection(buf []byte) (*LeaseRejection, error) {
	m := &LeaseRejection{}
	err := decodeFields(buf,
		func(num protowire.Number, v uint64) {
			if num == leaseRejectionFieldNonce {
				m.Nonce = v
			}
		},
		func(num protowire.Number, v []byte) {
			if num == leaseRejectionFieldReason {
				m.Reason = string(v)
			}
		},
	)
	return m, err
}

const (
	challengeRequestFieldNonce       = 1
	challengeRequestFieldBlockNumber = 2
)

func marshalChallengeRequest(m *ChallengeRequest) []byte {
	var buf []byte
	buf = appendVarintField(buf, challengeRequestFieldNonce, m.Nonce)
	buf = appendVarintField(buf, challengeRequestFieldBlockNumber, uint64(m.BlockNumber))
	return buf
}

func unmarshalChallengeRequest(buf []byte) (*ChallengeRequest, error) {
	m := &ChallengeRequest{}
	err := decodeFields(buf,
		func(num protowire.Number, v uint64) {
			switch num {
			case challengeRequestFieldNonce:
				m.Nonce = v
			case challengeRequestFieldBlockNumber:
				m.BlockNumber = uint32(v)
			}
		},
		func(num protowire.Number, v []byte) {},
	)
	return m, err
}

const (
	challengeResponseFieldNonce       = 1
	challengeResponseFieldBlockNumber = 2
	challengeResponseFieldBlockData   = 3
	challengeResponseFieldProofHash   = 4
)

func marshalChallengeResponse(m *ChallengeResponse) []byte {
	var buf []byte
	buf = appendVarintField(buf, challengeResponseFieldNonce, m.Nonce)
	buf = appendVarintField(buf, challengeResponseFieldBlockNumber, uint64(m.BlockNumber))
	buf = appendBytesField(buf, challengeResponseFieldBlockData, m.Proof.BlockData)
	for _, h := range m.Proof.Proof {
		buf = appendBytesField(buf, challengeResponseFieldProofHash, h[:])
	}
	return buf
}

func unmarshalChallengeResponse(buf []byte) (*ChallengeResponse, error) {
	m := &ChallengeResponse{}
	err := decodeFields(buf,
		func(num protowire.Number, v uint64) {
			switch num {
			case challengeResponseFieldNonce:
				m.Nonce = v
			case challengeResponseFieldBlockNumber:
				m.BlockNumber = uint32(v)
			}
		},
		func(num protowire.Number, v []byte) {
			switch num {
			case challengeResponseFieldBlockData:
				m.Proof.BlockData = v
			case challengeResponseFieldProofHash:
				var h [32]byte
				copy(h[:], v)
				m.Proof.Proof = append(m.Proof.Proof, h)
			}
		},
	)
	return m, err
}

const retrieveRequestFieldNonce = 1

func marshalRetrieveRequest(m *RetrieveRequest) []byte {
	return appendVarintField(nil, retrieveRequestFieldNonce, m.Nonce)
}

func unmarshalRetrieveRequest(buf []byte) (*RetrieveRequest, error) {
	m := &RetrieveRequest{}
	err := decodeFields(buf,
		func(num protowire.Number, v uint64) {
			if num == retrieveRequestFieldNonce {
				m.Nonce = v
			}
		},
		func(num protowire.Number, v []byte) {},
	)
	return m, err
}

const (
	retrieveDeliveryFieldNonce = 1
	retrieveDeliveryFieldData  = 2
)

func marshalRetrieveDelivery(m *RetrieveDelivery) []byte {
	var buf []byte
	buf = appendVarintField(buf, retrieveDeliveryFieldNonce, m.Nonce)
	buf = appendBytesField(buf, retrieveDeliveryFieldData, m.Data)
	return buf
}

func unmarshalRetrieveDelivery(buf []byte) (*RetrieveDelivery, error) {
	m := &RetrieveDelivery{}
	err := decodeFields(buf,
		func(num protowire.Number, v uint64) {
			if num == retrieveDeliveryFieldNonce {
				m.Nonce = v
			}
		},
		func(num protowire.Number, v []byte) {
			if num == retrieveDeliveryFieldData {
				m.Data = v
			}
		},
	)
	return m, err
}
