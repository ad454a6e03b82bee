package grpcserver

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/libp2p/go-libp2p/core/peer"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/p2pim/node/pkg/nodeerrors"
	"github.com/p2pim/node/pkg/reactor"
	"github.com/p2pim/node/pkg/types"
)

// nodeServer is the operator command surface exposed over gRPC: every
// method on pkg/reactor.Reactor, per spec.md §4.8, plus the supplemented
// ListPeers/ListLeases queries from SPEC_FULL.md §12.
type nodeServer interface {
	Lease(context.Context, *LeaseRequest) (*LeaseResponse, error)
	Challenge(context.Context, *ChallengeRequest) (*ChallengeResponse, error)
	Retrieve(context.Context, *RetrieveRequest) (*RetrieveResponse, error)
	Deposit(context.Context, *TokenAmountRequest) (*TransactionResponse, error)
	Withdraw(context.Context, *TokenAmountRequest) (*TransactionResponse, error)
	Approve(context.Context, *TokenRequest) (*TransactionResponse, error)
	Balance(context.Context, *TokenRequest) (*BalanceResponse, error)
	GetInfo(context.Context, *GetInfoRequest) (*GetInfoResponse, error)
	ListLeases(context.Context, *ListLeasesRequest) (*ListLeasesResponse, error)
	ListPeers(context.Context, *ListPeersRequest) (*ListPeersResponse, error)
}

// nodeService adapts a *reactor.Reactor to nodeServer, translating
// between the wire message structs and the reactor's native types.
type nodeService struct {
	reactor *reactor.Reactor
}

func (s *nodeService) Lease(ctx context.Context, req *LeaseRequest) (*LeaseResponse, error) {
	p, err := peer.Decode(req.PeerID)
	if err != nil {
		return nil, errInvalidRequest("peer_id", req.PeerID)
	}
	terms, err := req.terms()
	if err != nil {
		return nil, err
	}
	txHash, err := s.reactor.Lease(ctx, p, terms, req.Data)
	if err != nil {
		return nil, classify(err)
	}
	return &LeaseResponse{TransactionHash: txHash.Hex()}, nil
}

func (s *nodeService) Challenge(ctx context.Context, req *ChallengeRequest) (*ChallengeResponse, error) {
	p, err := peer.Decode(req.PeerID)
	if err != nil {
		return nil, errInvalidRequest("peer_id", req.PeerID)
	}
	key := types.ChallengeKey{Nonce: req.Nonce, BlockNumber: req.BlockNumber}
	if err := s.reactor.Challenge(ctx, p, key); err != nil {
		return nil, classify(err)
	}
	return &ChallengeResponse{Valid: true}, nil
}

func (s *nodeService) Retrieve(ctx context.Context, req *RetrieveRequest) (*RetrieveResponse, error) {
	p, err := peer.Decode(req.PeerID)
	if err != nil {
		return nil, errInvalidRequest("peer_id", req.PeerID)
	}
	data, err := s.reactor.Retrieve(ctx, p, req.Nonce)
	if err != nil {
		return nil, classify(err)
	}
	return &RetrieveResponse{Data: data}, nil
}

func (s *nodeService) Deposit(ctx context.Context, req *TokenAmountRequest) (*TransactionResponse, error) {
	amount, err := req.amount()
	if err != nil {
		return nil, err
	}
	tx, err := s.reactor.Deposit(ctx, common.HexToAddress(req.TokenAddress), amount)
	if err != nil {
		return nil, classify(err)
	}
	return &TransactionResponse{TransactionHash: tx.Hash().Hex()}, nil
}

func (s *nodeService) Withdraw(ctx context.Context, req *TokenAmountRequest) (*TransactionResponse, error) {
	amount, err := req.amount()
	if err != nil {
		return nil, err
	}
	tx, err := s.reactor.Withdraw(ctx, common.HexToAddress(req.TokenAddress), amount)
	if err != nil {
		return nil, classify(err)
	}
	return &TransactionResponse{TransactionHash: tx.Hash().Hex()}, nil
}

func (s *nodeService) Approve(ctx context.Context, req *TokenRequest) (*TransactionResponse, error) {
	tx, err := s.reactor.Approve(ctx, common.HexToAddress(req.TokenAddress))
	if err != nil {
		return nil, classify(err)
	}
	return &TransactionResponse{TransactionHash: tx.Hash().Hex()}, nil
}

func (s *nodeService) Balance(ctx context.Context, req *TokenRequest) (*BalanceResponse, error) {
	balance, err := s.reactor.Balance(ctx, common.HexToAddress(req.TokenAddress))
	if err != nil {
		return nil, classify(err)
	}
	return balanceResponse(balance), nil
}

func (s *nodeService) GetInfo(_ context.Context, _ *GetInfoRequest) (*GetInfoResponse, error) {
	info := s.reactor.GetInfo()
	views := make([]LeaseView, 0, len(info.Leases))
	for _, l := range info.Leases {
		views = append(views, leaseView(l))
	}
	return &GetInfoResponse{OwnAddress: info.OwnAddress.Hex(), Leases: views}, nil
}

func (s *nodeService) ListLeases(_ context.Context, req *ListLeasesRequest) (*ListLeasesResponse, error) {
	info := s.reactor.GetInfo()
	views := make([]LeaseView, 0, len(info.Leases))
	for _, l := range info.Leases {
		views = append(views, leaseView(l))
	}
	resp := &ListLeasesResponse{Leases: views}

	if req.PeerID != "" {
		p, err := peer.Decode(req.PeerID)
		if err != nil {
			return nil, errInvalidRequest("peer_id", req.PeerID)
		}
		blobs, err := s.reactor.StoredBlobs(p)
		if err != nil {
			return nil, classify(err)
		}
		resp.StoredBlobs = make([]StoredBlobView, 0, len(blobs))
		for _, b := range blobs {
			resp.StoredBlobs = append(resp.StoredBlobs, storedBlobView(b))
		}
	}

	return resp, nil
}

func (s *nodeService) ListPeers(_ context.Context, _ *ListPeersRequest) (*ListPeersResponse, error) {
	return &ListPeersResponse{Peers: peersView(s.reactor.ListPeers())}, nil
}

func errInvalidRequest(field, value string) error {
	return status.Errorf(codes.InvalidArgument, "invalid %s: %q", field, value)
}

// classify maps the reactor's error taxonomy onto gRPC status codes.
func classify(err error) error {
	nerr, ok := err.(*nodeerrors.Error)
	if !ok {
		return status.Error(codes.Unknown, err.Error())
	}
	switch nerr.Class {
	case nodeerrors.ClassPolicy:
		return status.Error(codes.PermissionDenied, nerr.Error())
	case nodeerrors.ClassValidation:
		return status.Error(codes.InvalidArgument, nerr.Error())
	case nodeerrors.ClassProtocol:
		return status.Error(codes.FailedPrecondition, nerr.Error())
	case nodeerrors.ClassTransient:
		return status.Error(codes.Unavailable, nerr.Error())
	case nodeerrors.ClassInvariant:
		return status.Error(codes.Internal, nerr.Error())
	default:
		return status.Error(codes.Unknown, nerr.Error())
	}
}

// unaryHandler adapts a typed nodeServer method into a grpc.MethodHandler,
// tagging the interceptor's UnaryServerInfo with the RPC's full method
// name so authInterceptor can key mutatingMethods off it correctly.
func unaryHandler[Req, Resp any](rpcName string, method func(nodeServer, context.Context, *Req) (*Resp, error)) func(interface{}, context.Context, func(interface{}) error, grpc.UnaryServerInterceptor) (interface{}, error) {
	fullMethod := fmt.Sprintf("/%s/%s", serviceName, rpcName)
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		req := new(Req)
		if err := dec(req); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return method(srv.(nodeServer), ctx, req)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return method(srv.(nodeServer), ctx, req.(*Req))
		}
		return interceptor(ctx, req, info, handler)
	}
}

const serviceName = "p2pim.Node"

// serviceDesc is the hand-written equivalent of a protoc-generated
// grpc.ServiceDesc: one MethodDesc per nodeServer RPC, dispatched through
// unaryHandler instead of generated _Node_Lease_Handler-style functions.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*nodeServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Lease", Handler: unaryHandler("Lease", nodeServer.Lease)},
		{MethodName: "Challenge", Handler: unaryHandler("Challenge", nodeServer.Challenge)},
		{MethodName: "Retrieve", Handler: unaryHandler("Retrieve", nodeServer.Retrieve)},
		{MethodName: "Deposit", Handler: unaryHandler("Deposit", nodeServer.Deposit)},
		{MethodName: "Withdraw", Handler: unaryHandler("Withdraw", nodeServer.Withdraw)},
		{MethodName: "Approve", Handler: unaryHandler("Approve", nodeServer.Approve)},
		{MethodName: "Balance", Handler: unaryHandler("Balance", nodeServer.Balance)},
		{MethodName: "GetInfo", Handler: unaryHandler("GetInfo", nodeServer.GetInfo)},
		{MethodName: "ListLeases", Handler: unaryHandler("ListLeases", nodeServer.ListLeases)},
		{MethodName: "ListPeers", Handler: unaryHandler("ListPeers", nodeServer.ListPeers)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "p2pim/node.proto",
}
