package onchain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	ptypes "github.com/p2pim/node/pkg/types"
)

var leaseMessageArguments = mustArguments(
	"address", // token
	"address", // lessee
	"address", // lessor
	"uint256", // nonce
	"bytes32", // merkle_root
	"uint256", // size
	"uint256", // price
	"uint256", // penalty
	"uint256", // lease_duration_secs
	"uint256", // proposal_expiration_unix_secs
)

func mustArguments(solidityTypes ...string) abi.Arguments {
	args := make(abi.Arguments, len(solidityTypes))
	for i, t := range solidityTypes {
		typ, err := abi.NewType(t, "", nil)
		if err != nil {
			panic("onchain: invalid abi type " + t + ": " + err.Error())
		}
		args[i] = abi.Argument{Type: typ}
	}
	return args
}

// hashLeaseMessage ABI-encodes the canonical lease tuple and returns its
// keccak256 hash, matching spec.md §4.4's sign_proposal/seal_lease message.
func hashLeaseMessage(token, lessee, lessor common.Address, nonce uint64, terms ptypes.LeaseTerms, data ptypes.DataParameters) ([]byte, error) {
	encoded, err := leaseMessageArguments.Pack(
		token,
		lessee,
		lessor,
		new(big.Int).SetUint64(nonce),
		data.MerkleRoot,
		new(big.Int).SetUint64(data.Size),
		terms.Price,
		terms.Penalty,
		big.NewInt(int64(terms.LeaseDuration.Seconds())),
		big.NewInt(terms.ProposalExpiration.Unix()),
	)
	if err != nil {
		return nil, err
	}
	return crypto.Keccak256(encoded), nil
}

// accounts191Hash frames a message digest with the EIP-191
// "\x19Ethereum Signed Message:\n32" prefix before signing, matching
// go-ethereum's accounts.TextHash convention.
func accounts191Hash(digest []byte) []byte {
	prefixed := []byte("\x19Ethereum Signed Message:\n32")
	prefixed = append(prefixed, digest...)
	return crypto.Keccak256(prefixed)
}

// leaseDealStruct mirrors the adjudicator's on-chain Deal struct field
// order; go-ethereum's ABI packer matches struct fields positionally
// against tuple components of the same name-insensitive shape.
type leaseDealStruct struct {
	Lessee                    common.Address
	Lessor                    common.Address
	Nonce                     *big.Int
	MerkleRoot                [32]byte
	Size                      *big.Int
	Price                     *big.Int
	Penalty                   *big.Int
	LeaseDurationSecs         *big.Int
	ProposalExpirationUnixSecs *big.Int
}

func leaseDealTuple(lessee, lessor common.Address, nonce uint64, terms ptypes.LeaseTerms, data ptypes.DataParameters) leaseDealStruct {
	return leaseDealStruct{
		Lessee:                     lessee,
		Lessor:                     lessor,
		Nonce:                      new(big.Int).SetUint64(nonce),
		MerkleRoot:                 data.MerkleRoot,
		Size:                       new(big.Int).SetUint64(data.Size),
		Price:                      terms.Price,
		Penalty:                    terms.Penalty,
		LeaseDurationSecs:          big.NewInt(int64(terms.LeaseDuration.Seconds())),
		ProposalExpirationUnixSecs: big.NewInt(terms.ProposalExpiration.Unix()),
	}
}
