// Package libp2p is the concrete peer-network transport: a libp2p host
// wired with TCP+DNS dialing, a Noise XX handshake, and Yamux/Mplex stream
// multiplexing, speaking a single custom stream protocol that carries
// pkg/network/wire-encoded messages length-delimited over the wire.
// Grounded on the original transport's libp2p.core::transport stack
// (TokioDnsConfig+TokioTcpConfig, NoiseConfig::xx, SelectUpgrade over
// Yamux/Mplex) and its per-peer lazily-opened outbound stream handler.
package libp2p

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	mplex "github.com/libp2p/go-libp2p/p2p/muxer/mplex"
	"github.com/libp2p/go-libp2p/p2p/muxer/yamux"
	"github.com/libp2p/go-libp2p/p2p/security/noise"
	tcp "github.com/libp2p/go-libp2p/p2p/transport/tcp"
	"github.com/multiformats/go-multiaddr"

	"github.com/p2pim/node/internal/logger"
	p2pimnet "github.com/p2pim/node/pkg/network"
	"github.com/p2pim/node/pkg/network/wire"
	"github.com/p2pim/node/pkg/nodeerrors"
	"github.com/p2pim/node/pkg/types"
)

// ProtocolID is the single custom stream protocol this node speaks. Every
// ProtocolMessage variant shares it; the message's own Kind discriminates
// further, matching the original's single-protocol, tagged-oneof design.
const ProtocolID = protocol.ID("/p2pim/protobuf/0.1.0")

const (
	maxMessageSize   = 64 << 20
	streamIdleExpiry = 10 * time.Minute
)

var _ p2pimnet.Network = (*Host)(nil)

// Host is a Network implementation backed by a real libp2p host.
type Host struct {
	h host.Host

	mu      sync.Mutex
	streams map[peer.ID]network.Stream

	pubkeys sync.Map // peer.ID -> crypto.PubKey

	events chan p2pimnet.InboundEvent

	closeOnce sync.Once
}

// New constructs and starts listening on listenAddrs, authenticating with
// identity. identity must be a secp256k1 key matching the node's on-chain
// and storage identity (Open Question 5: one key serves both roles).
func New(identity crypto.PrivKey, listenAddrs []string) (*Host, error) {
	addrs := make([]multiaddr.Multiaddr, 0, len(listenAddrs))
	for _, raw := range listenAddrs {
		addr, err := multiaddr.NewMultiaddr(raw)
		if err != nil {
			return nil, fmt.Errorf("libp2p: invalid listen address %q: %w", raw, err)
		}
		addrs = append(addrs, addr)
	}

	h, err := libp2p.New(
		libp2p.Identity(identity),
		libp2p.ListenAddrs(addrs...),
		libp2p.Transport(tcp.NewTCPTransport),
		libp2p.Security(noise.ID, noise.New),
		libp2p.Muxer(yamux.ID, yamux.DefaultTransport),
		libp2p.Muxer(mplex.ID, mplex.DefaultTransport),
		libp2p.EnableRelay(),
	)
	if err != nil {
		return nil, fmt.Errorf("libp2p: starting host: %w", err)
	}

	host := &Host{
		h:       h,
		streams: make(map[peer.ID]network.Stream),
		events:  make(chan p2pimnet.InboundEvent, 256),
	}

	h.SetStreamHandler(ProtocolID, host.handleInboundStream)
	h.Network().Notify(&noteBundle{host: host})

	logger.Info("libp2p host started", logger.PeerID(h.ID().String()))
	return host, nil
}

// Connect dials addr, running the Noise handshake and recording the
// peer's Identify-derived public key for later FindPublicKey lookups.
func (hst *Host) Connect(ctx context.Context, addr multiaddr.Multiaddr) error {
	info, err := peer.AddrInfoFromP2pAddr(addr)
	if err != nil {
		return fmt.Errorf("libp2p: parsing peer address: %w", err)
	}
	if err := hst.h.Connect(ctx, *info); err != nil {
		return fmt.Errorf("libp2p: dialing %s: %w", info.ID, err)
	}
	return nil
}

func (hst *Host) recordPubKey(p peer.ID) {
	if _, ok := hst.pubkeys.Load(p); ok {
		return
	}
	pub := hst.h.Peerstore().PubKey(p)
	if pub == nil {
		return
	}
	if pub.Type() != crypto.Secp256k1 {
		logger.Warn("ignoring non-secp256k1 identify public key", logger.PeerID(p.String()))
		return
	}
	derived, err := peer.IDFromPublicKey(pub)
	if err != nil || derived != p {
		logger.Warn("identify public key does not hash to announced peer id", logger.PeerID(p.String()))
		return
	}
	hst.pubkeys.Store(p, pub)
}

// FindPublicKey implements network.Network.
func (hst *Host) FindPublicKey(p peer.ID) (crypto.PubKey, bool) {
	hst.recordPubKey(p)
	v, ok := hst.pubkeys.Load(p)
	if !ok {
		return nil, false
	}
	return v.(crypto.PubKey), true
}

// Peers implements network.Network, listing every peer whose Identify
// public key this host has recorded.
func (hst *Host) Peers() []peer.ID {
	var peers []peer.ID
	hst.pubkeys.Range(func(key, _ any) bool {
		peers = append(peers, key.(peer.ID))
		return true
	})
	return peers
}

// Events implements network.Network.
func (hst *Host) Events() <-chan p2pimnet.InboundEvent {
	return hst.events
}

func (hst *Host) streamTo(ctx context.Context, p peer.ID) (network.Stream, error) {
	hst.mu.Lock()
	if s, ok := hst.streams[p]; ok {
		hst.mu.Unlock()
		return s, nil
	}
	hst.mu.Unlock()

	s, err := hst.h.NewStream(ctx, p, ProtocolID)
	if err != nil {
		return nil, fmt.Errorf("libp2p: opening stream to %s: %w", p, err)
	}

	hst.mu.Lock()
	hst.streams[p] = s
	hst.mu.Unlock()

	go hst.readLoop(p, s)
	return s, nil
}

func (hst *Host) send(ctx context.Context, p peer.ID, msg wire.ProtocolMessage) error {
	s, err := hst.streamTo(ctx, p)
	if err != nil {
		return err
	}

	buf, err := wire.Marshal(msg)
	if err != nil {
		return nodeerrors.Invariant("encoding protocol message", err.Error())
	}

	_ = s.SetWriteDeadline(time.Now().Add(30 * time.Second))
	if err := writeFramed(s, buf); err != nil {
		hst.dropStream(p, s)
		return nodeerrors.Transient("sending protocol message", err.Error())
	}
	return nil
}

// SendProposal implements network.Network.
func (hst *Host) SendProposal(ctx context.Context, p peer.ID, nonce uint64, terms types.LeaseTerms, sig types.Signature, data []byte) error {
	return hst.send(ctx, p, wire.ProtocolMessage{
		Kind: wire.KindLeaseProposal,
		LeaseProposal: &wire.LeaseProposal{
			Nonce:     nonce,
			Terms:     terms,
			Signature: sig,
			Data:      data,
		},
	})
}

// SendProposalRejection implements network.Network.
func (hst *Host) SendProposalRejection(ctx context.Context, p peer.ID, nonce uint64, reason string) error {
	return hst.send(ctx, p, wire.ProtocolMessage{
		Kind:           wire.KindLeaseRejection,
		LeaseRejection: &wire.LeaseRejection{Nonce: nonce, Reason: reason},
	})
}

// SendChallengeRequest implements network.Network.
func (hst *Host) SendChallengeRequest(ctx context.Context, p peer.ID, key types.ChallengeKey) error {
	return hst.send(ctx, p, wire.ProtocolMessage{
		Kind:             wire.KindChallengeRequest,
		ChallengeRequest: &wire.ChallengeRequest{Nonce: key.Nonce, BlockNumber: key.BlockNumber},
	})
}

// SendChallengeResponse implements network.Network.
func (hst *Host) SendChallengeResponse(ctx context.Context, p peer.ID, key types.ChallengeKey, proof types.ChallengeProof) error {
	return hst.send(ctx, p, wire.ProtocolMessage{
		Kind: wire.KindChallengeResponse,
		ChallengeResponse: &wire.ChallengeResponse{
			Nonce:       key.Nonce,
			BlockNumber: key.BlockNumber,
			Proof:       proof,
		},
	})
}

// SendRetrieveRequest implements network.Network.
func (hst *Host) SendRetrieveRequest(ctx context.Context, p peer.ID, nonce uint64) error {
	return hst.send(ctx, p, wire.ProtocolMessage{
		Kind:            wire.KindRetrieveRequest,
		RetrieveRequest: &wire.RetrieveRequest{Nonce: nonce},
	})
}

// SendRetrieveDelivery implements network.Network.
func (hst *Host) SendRetrieveDelivery(ctx context.Context, p peer.ID, nonce uint64, data []byte) error {
	return hst.send(ctx, p, wire.ProtocolMessage{
		Kind:             wire.KindRetrieveDelivery,
		RetrieveDelivery: &wire.RetrieveDelivery{Nonce: nonce, Data: data},
	})
}

func (hst *Host) dropStream(p peer.ID, s network.Stream) {
	hst.mu.Lock()
	if hst.streams[p] == s {
		delete(hst.streams, p)
	}
	hst.mu.Unlock()
	_ = s.Reset()
}

func (hst *Host) handleInboundStream(s network.Stream) {
	p := s.Conn().RemotePeer()

	hst.mu.Lock()
	if existing, ok := hst.streams[p]; ok && existing != s {
		_ = existing.Reset()
	}
	hst.streams[p] = s
	hst.mu.Unlock()

	hst.readLoop(p, s)
}

func (hst *Host) readLoop(p peer.ID, s network.Stream) {
	r := bufio.NewReader(s)
	for {
		_ = s.SetReadDeadline(time.Now().Add(streamIdleExpiry))
		buf, err := readFramed(r)
		if err != nil {
			if err != io.EOF {
				logger.Debug("protocol stream closed", logger.PeerID(p.String()), logger.Err(err))
			}
			hst.dropStream(p, s)
			return
		}

		msg, err := wire.Unmarshal(buf)
		if err != nil {
			logger.Warn("discarding malformed protocol message", logger.PeerID(p.String()), logger.Err(err))
			continue
		}

		select {
		case hst.events <- p2pimnet.InboundEvent{Peer: p, Message: msg}:
		default:
			logger.Warn("inbound event queue full, dropping message", logger.PeerID(p.String()))
		}
	}
}

// Close implements network.Network.
func (hst *Host) Close() error {
	var err error
	hst.closeOnce.Do(func() {
		close(hst.events)
		err = hst.h.Close()
	})
	return err
}

// noteBundle records Identify-derived peer public keys as connections are
// established, independent of the custom protocol's own stream lifecycle.
type noteBundle struct {
	host *Host
}

func (n *noteBundle) Listen(network.Network, multiaddr.Multiaddr)      {}
func (n *noteBundle) ListenClose(network.Network, multiaddr.Multiaddr) {}
func (n *noteBundle) Connected(_ network.Network, c network.Conn) {
	n.host.recordPubKey(c.RemotePeer())
}
func (n *noteBundle) Disconnected(network.Network, network.Conn) {}
