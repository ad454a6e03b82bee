package grpcserver

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/p2pim/node/pkg/datastore"
	"github.com/p2pim/node/pkg/reactor"
	"github.com/p2pim/node/pkg/types"
)

// Every request/response pair below is a plain JSON-tagged struct rather
// than a generated protobuf message: see codec.go for why this service
// forces the JSON codec instead of requiring a .proto build step.

type LeaseRequest struct {
	PeerID             string `json:"peer_id"`
	TokenAddress       string `json:"token_address"`
	Price              string `json:"price"`
	Penalty            string `json:"penalty"`
	LeaseDurationSecs  int64  `json:"lease_duration_seconds"`
	ProposalExpiration int64  `json:"proposal_expiration_unix"`
	Data               []byte `json:"data"`
}

func (r *LeaseRequest) terms() (types.LeaseTerms, error) {
	price, ok := new(big.Int).SetString(r.Price, 10)
	if !ok {
		return types.LeaseTerms{}, errInvalidRequest("price", r.Price)
	}
	penalty, ok := new(big.Int).SetString(r.Penalty, 10)
	if !ok {
		return types.LeaseTerms{}, errInvalidRequest("penalty", r.Penalty)
	}
	return types.LeaseTerms{
		TokenAddress:       common.HexToAddress(r.TokenAddress),
		Price:              price,
		Penalty:            penalty,
		LeaseDuration:      time.Duration(r.LeaseDurationSecs) * time.Second,
		ProposalExpiration: time.Unix(r.ProposalExpiration, 0),
	}, nil
}

type LeaseResponse struct {
	TransactionHash string `json:"transaction_hash"`
}

type ChallengeRequest struct {
	PeerID      string `json:"peer_id"`
	Nonce       uint64 `json:"nonce"`
	BlockNumber uint32 `json:"block_number"`
}

type ChallengeResponse struct {
	Valid bool `json:"valid"`
}

type RetrieveRequest struct {
	PeerID string `json:"peer_id"`
	Nonce  uint64 `json:"nonce"`
}

type RetrieveResponse struct {
	Data []byte `json:"data"`
}

type TokenAmountRequest struct {
	TokenAddress string `json:"token_address"`
	Amount       string `json:"amount"`
}

func (r *TokenAmountRequest) amount() (*big.Int, error) {
	amount, ok := new(big.Int).SetString(r.Amount, 10)
	if !ok {
		return nil, errInvalidRequest("amount", r.Amount)
	}
	return amount, nil
}

type TokenRequest struct {
	TokenAddress string `json:"token_address"`
}

type TransactionResponse struct {
	TransactionHash string `json:"transaction_hash"`
}

type BalanceResponse struct {
	TokenName         string `json:"token_name,omitempty"`
	TokenSymbol       string `json:"token_symbol,omitempty"`
	TokenDecimals     uint32 `json:"token_decimals,omitempty"`
	StorageAvailable  string `json:"storage_available"`
	StorageLockedRent string `json:"storage_locked_rent"`
	StorageLockedLets string `json:"storage_locked_lets"`
	WalletAvailable   string `json:"wallet_available"`
	WalletAllowance   string `json:"wallet_allowance"`
}

func balanceResponse(b types.Balance) *BalanceResponse {
	resp := &BalanceResponse{
		StorageAvailable:  b.StorageBalance.Available.String(),
		StorageLockedRent: b.StorageBalance.LockedRents.String(),
		StorageLockedLets: b.StorageBalance.LockedLets.String(),
		WalletAvailable:   b.WalletBalance.Available.String(),
		WalletAllowance:   b.WalletBalance.Allowance.String(),
	}
	if b.TokenMetadata != nil {
		resp.TokenName = b.TokenMetadata.Name
		resp.TokenSymbol = b.TokenMetadata.Symbol
		resp.TokenDecimals = uint32(b.TokenMetadata.Decimals)
	}
	return resp
}

type GetInfoRequest struct{}

type LeaseView struct {
	PeerID          string `json:"peer_id"`
	PeerAddress     string `json:"peer_address"`
	Nonce           uint64 `json:"nonce"`
	TokenAddress    string `json:"token_address"`
	Price           string `json:"price"`
	Penalty         string `json:"penalty"`
	Size            uint64 `json:"size"`
	Confirmed       bool   `json:"confirmed"`
	TransactionHash string `json:"transaction_hash,omitempty"`
}

func leaseView(l types.Lease) LeaseView {
	view := LeaseView{
		PeerID:       l.PeerID.String(),
		PeerAddress:  l.PeerAddress.Hex(),
		Nonce:        l.Nonce,
		TokenAddress: l.Terms.TokenAddress.Hex(),
		Price:        l.Terms.Price.String(),
		Penalty:      l.Terms.Penalty.String(),
		Size:         l.DataParameters.Size,
	}
	if l.ChainConfirmation != nil {
		view.Confirmed = true
		view.TransactionHash = l.ChainConfirmation.TransactionHash.Hex()
	}
	return view
}

type GetInfoResponse struct {
	OwnAddress string      `json:"own_address"`
	Leases     []LeaseView `json:"leases"`
}

// ListLeasesRequest's PeerID is optional: when set, the response also
// includes the blobs this node holds on disk for that peer as lessor,
// per SPEC_FULL.md §12's "locally stored blobs" supplement.
type ListLeasesRequest struct {
	PeerID string `json:"peer_id,omitempty"`
}

type ListLeasesResponse struct {
	Leases      []LeaseView      `json:"leases"`
	StoredBlobs []StoredBlobView `json:"stored_blobs,omitempty"`
}

type StoredBlobView struct {
	Nonce      uint64 `json:"nonce"`
	MerkleRoot string `json:"merkle_root"`
	Size       uint64 `json:"size"`
}

func storedBlobView(b datastore.StoredBlob) StoredBlobView {
	return StoredBlobView{
		Nonce:      b.Nonce,
		MerkleRoot: common.Bytes2Hex(b.Parameters.MerkleRoot[:]),
		Size:       b.Parameters.Size,
	}
}

type ListPeersRequest struct{}

type PeerView struct {
	PeerID  string `json:"peer_id"`
	Address string `json:"address"`
}

type ListPeersResponse struct {
	Peers []PeerView `json:"peers"`
}

func peersView(peers []reactor.PeerInfo) []PeerView {
	out := make([]PeerView, 0, len(peers))
	for _, p := range peers {
		out = append(out, PeerView{PeerID: p.PeerID.String(), Address: p.Address.Hex()})
	}
	return out
}
