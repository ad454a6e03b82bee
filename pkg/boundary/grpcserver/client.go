package grpcserver

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

// Client is the CLI-side counterpart to Server: a thin wrapper around a
// grpc.ClientConn that speaks the same forced JSON codec and mints its
// own bearer JWTs for the mutating RPCs auth.go gates, since this
// boundary has exactly one operator and no token issuance flow beyond
// "holds the configured secret".
type Client struct {
	cc         *grpc.ClientConn
	authSecret string
}

// Dial connects to a gRPC boundary server at address. authSecret is the
// same Boundary.GRPC.AuthToken the server was started with; pass "" if
// the server has authentication disabled.
func Dial(address, authSecret string) (*Client, error) {
	cc, err := grpc.NewClient(address,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(jsonCodec{}.Name())),
	)
	if err != nil {
		return nil, fmt.Errorf("grpcserver: dialing %s: %w", address, err)
	}
	return &Client{cc: cc, authSecret: authSecret}, nil
}

// Close tears down the underlying connection.
func (c *Client) Close() error {
	return c.cc.Close()
}

// callOpts attaches a freshly minted bearer token to mutating calls. A
// blank authSecret sends no token, matching a server running with
// authentication disabled.
func (c *Client) callOpts(ctx context.Context, mutating bool) (context.Context, error) {
	if !mutating || c.authSecret == "" {
		return ctx, nil
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Minute).Unix(),
	})
	signed, err := token.SignedString([]byte(c.authSecret))
	if err != nil {
		return nil, fmt.Errorf("grpcserver: signing bearer token: %w", err)
	}
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+signed), nil
}

func (c *Client) Lease(ctx context.Context, req *LeaseRequest) (*LeaseResponse, error) {
	ctx, err := c.callOpts(ctx, true)
	if err != nil {
		return nil, err
	}
	resp := new(LeaseResponse)
	if err := c.cc.Invoke(ctx, "/p2pim.Node/Lease", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) Challenge(ctx context.Context, req *ChallengeRequest) (*ChallengeResponse, error) {
	resp := new(ChallengeResponse)
	if err := c.cc.Invoke(ctx, "/p2pim.Node/Challenge", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) Retrieve(ctx context.Context, req *RetrieveRequest) (*RetrieveResponse, error) {
	resp := new(RetrieveResponse)
	if err := c.cc.Invoke(ctx, "/p2pim.Node/Retrieve", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) Deposit(ctx context.Context, req *TokenAmountRequest) (*TransactionResponse, error) {
	ctx, err := c.callOpts(ctx, true)
	if err != nil {
		return nil, err
	}
	resp := new(TransactionResponse)
	if err := c.cc.Invoke(ctx, "/p2pim.Node/Deposit", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) Withdraw(ctx context.Context, req *TokenAmountRequest) (*TransactionResponse, error) {
	ctx, err := c.callOpts(ctx, true)
	if err != nil {
		return nil, err
	}
	resp := new(TransactionResponse)
	if err := c.cc.Invoke(ctx, "/p2pim.Node/Withdraw", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) Approve(ctx context.Context, req *TokenRequest) (*TransactionResponse, error) {
	ctx, err := c.callOpts(ctx, true)
	if err != nil {
		return nil, err
	}
	resp := new(TransactionResponse)
	if err := c.cc.Invoke(ctx, "/p2pim.Node/Approve", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) Balance(ctx context.Context, req *TokenRequest) (*BalanceResponse, error) {
	resp := new(BalanceResponse)
	if err := c.cc.Invoke(ctx, "/p2pim.Node/Balance", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) GetInfo(ctx context.Context) (*GetInfoResponse, error) {
	resp := new(GetInfoResponse)
	if err := c.cc.Invoke(ctx, "/p2pim.Node/GetInfo", &GetInfoRequest{}, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// ListLeases lists this node's leases. When peerID is non-empty, the
// response also includes the blobs stored on disk for that peer as lessor.
func (c *Client) ListLeases(ctx context.Context, peerID string) (*ListLeasesResponse, error) {
	resp := new(ListLeasesResponse)
	if err := c.cc.Invoke(ctx, "/p2pim.Node/ListLeases", &ListLeasesRequest{PeerID: peerID}, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) ListPeers(ctx context.Context) (*ListPeersResponse, error) {
	resp := new(ListPeersResponse)
	if err := c.cc.Invoke(ctx, "/p2pim.Node/ListPeers", &ListPeersRequest{}, resp); err != nil {
		return nil, err
	}
	return resp, nil
}
