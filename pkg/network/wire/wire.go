// Package wire implements the length-delimited protobuf wire encoding for
// the peer protocol's ProtocolMessage union, described by spec.md §4.6.
// Encoding is hand-written against google.golang.org/protobuf's protowire
// primitives rather than generated from a .proto file: the union is small
// and stable enough that a generated package would add a build step for
// little benefit here.
package wire

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/p2pim/node/pkg/types"
)

// MessageKind discriminates the ProtocolMessage oneof.
type MessageKind int

const (
	KindLeaseProposal MessageKind = iota + 1
	KindLeaseRejection
	KindChallengeRequest
	KindChallengeResponse
	KindRetrieveRequest
	KindRetrieveDelivery
)

// field numbers for the ProtocolMessage oneof, matching the original's
// proto definition field ordering.
const (
	fieldLeaseProposal     = 1
	fieldLeaseRejection    = 2
	fieldChallengeRequest  = 3
	fieldChallengeResponse = 4
	fieldRetrieveRequest   = 5
	fieldRetrieveDelivery  = 6
)

// LeaseProposal is sent lessee -> lessor to open a lease negotiation.
type LeaseProposal struct {
	Nonce     uint64
	Terms     types.LeaseTerms
	Signature types.Signature
	Data      []byte
}

// LeaseRejection is sent lessor -> lessee when the lessor policy declines
// a proposal.
type LeaseRejection struct {
	Nonce  uint64
	Reason string
}

// ChallengeRequest is sent lessor -> lessee to request a Merkle proof for
// one block of a leased blob.
type ChallengeRequest struct {
	Nonce       uint64
	BlockNumber uint32
}

// ChallengeResponse carries the requested block and its Merkle proof.
type ChallengeResponse struct {
	Nonce       uint64
	BlockNumber uint32
	Proof       types.ChallengeProof
}

// RetrieveRequest asks the lessor to return the full blob for a lease.
type RetrieveRequest struct {
	Nonce uint64
}

// RetrieveDelivery carries the full blob in response to a RetrieveRequest.
type RetrieveDelivery struct {
	Nonce uint64
	Data  []byte
}

// ProtocolMessage is the oneof envelope exchanged over the p2pim protobuf
// stream protocol. Exactly one of the typed fields is non-nil.
type ProtocolMessage struct {
	Kind               MessageKind
	LeaseProposal      *LeaseProposal
	LeaseRejection     *LeaseRejection
	ChallengeRequest   *ChallengeRequest
	ChallengeResponse  *ChallengeResponse
	RetrieveRequest    *RetrieveRequest
	RetrieveDelivery   *RetrieveDelivery
}

// Marshal encodes m as a length-delimited protobuf message. The oneof is
// encoded as a single embedded-message field whose number matches the
// active variant.
func Marshal(m ProtocolMessage) ([]byte, error) {
	var inner []byte
	var field protowire.Number

	switch m.Kind {
	case KindLeaseProposal:
		field = fieldLeaseProposal
		inner = marshalLeaseProposal(m.LeaseProposal)
	case KindLeaseRejection:
		field = fieldLeaseRejection
		inner = marshalLeaseRejection(m.LeaseRejection)
	case KindChallengeRequest:
		field = fieldChallengeRequest
		inner = marshalChallengeRequest(m.ChallengeRequest)
	case KindChallengeResponse:
		field = fieldChallengeResponse
		inner = marshalChallengeResponse(m.ChallengeResponse)
	case KindRetrieveRequest:
		field = fieldRetrieveRequest
		inner = marshalRetrieveRequest(m.RetrieveRequest)
	case KindRetrieveDelivery:
		field = fieldRetrieveDelivery
		inner = marshalRetrieveDelivery(m.RetrieveDelivery)
	default:
		return nil, fmt.Errorf("wire: unknown message kind %d", m.Kind)
	}

	var out []byte
	out = protowire.AppendTag(out, field, protowire.BytesType)
	out = protowire.AppendBytes(out, inner)
	return out, nil
}

// Unmarshal decodes a ProtocolMessage previously produced by Marshal.
func Unmarshal(buf []byte) (ProtocolMessage, error) {
	field, wireType, n := protowire.ConsumeTag(buf)
	if n < 0 {
		return ProtocolMessage{}, errors.New("wire: malformed tag")
	}
	if wireType != protowire.BytesType {
		return ProtocolMessage{}, errors.New("wire: unexpected wire type for oneof field")
	}
	inner, n2 := protowire.ConsumeBytes(buf[n:])
	if n2 < 0 {
		return ProtocolMessage{}, errors.New("wire: malformed embedded message")
	}

	switch field {
	case fieldLeaseProposal:
		v, err := unmarshalLeaseProposal(inner)
		return ProtocolMessage{Kind: KindLeaseProposal, LeaseProposal: v}, err
	case fieldLeaseRejection:
		v, err := unmarshalLeaseRejection(inner)
		return ProtocolMessage{Kind: KindLeaseRejection, LeaseRejection: v}, err
	case fieldChallengeRequest:
		v, err := unmarshalChallengeRequest(inner)
		return ProtocolMessage{Kind: KindChallengeRequest, ChallengeRequest: v}, err
	case fieldChallengeResponse:
		v, err := unmarshalChallengeResponse(inner)
		return ProtocolMessage{Kind: KindChallengeResponse, ChallengeResponse: v}, err
	case fieldRetrieveRequest:
		v, err := unmarshalRetrieveRequest(inner)
		return ProtocolMessage{Kind: KindRetrieveRequest, RetrieveRequest: v}, err
	case fieldRetrieveDelivery:
		v, err := unmarshalRetrieveDelivery(inner)
		return ProtocolMessage{Kind: KindRetrieveDelivery, RetrieveDelivery: v}, err
	default:
		return ProtocolMessage{}, fmt.Errorf("wire: unknown oneof field number %d", field)
	}
}
