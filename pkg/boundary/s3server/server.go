// Package s3server is the S3-compatible half of component 10 (Boundary):
// a minimal single-bucket PUT/GET surface mapping bucket-relative keys
// onto the reactor's lease/retrieve operator commands, per SPEC_FULL.md
// §2 and §9. It is a thin, real home for what spec.md explicitly scopes
// out as a non-goal, not a general-purpose S3 implementation: there is no
// multipart upload, no bucket listing, and no ACL model.
package s3server

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/ethereum/go-ethereum/common"
	"github.com/p2pim/node/internal/logger"
	"github.com/p2pim/node/pkg/reactor"
	"github.com/p2pim/node/pkg/types"
)

// Config configures the S3-compatible HTTP server.
type Config struct {
	Port int

	// DefaultToken is the ERC-20 token address used for leases created
	// through PUT when the x-p2pim-token header is absent.
	DefaultToken common.Address
	// DefaultLeaseDuration is used when x-p2pim-lease-duration-seconds
	// is absent.
	DefaultLeaseDuration time.Duration
	// DefaultProposalWindow bounds how long a PUT waits for the lessor
	// to accept before the proposal is considered expired.
	DefaultProposalWindow time.Duration
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = 9091
	}
	if c.DefaultLeaseDuration == 0 {
		c.DefaultLeaseDuration = 24 * time.Hour
	}
	if c.DefaultProposalWindow == 0 {
		c.DefaultProposalWindow = 30 * time.Second
	}
}

// Server is the S3-compatible HTTP front-end, mirroring the teacher's
// pkg/api.Server Start/Stop lifecycle shape.
type Server struct {
	httpServer   *http.Server
	config       Config
	shutdownOnce sync.Once
}

// New builds an S3-compatible server bound to r. Call Start to serve.
func New(config Config, r *reactor.Reactor) *Server {
	config.applyDefaults()

	router := newRouter(config, r)
	return &Server{
		config: config,
		httpServer: &http.Server{
			Addr:    fmt.Sprintf(":%d", config.Port),
			Handler: router,
		},
	}
}

func newRouter(config Config, r *reactor.Reactor) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	h := &handler{config: config, reactor: r}
	router.Put("/{bucket}/{key}", h.put)
	router.Get("/{bucket}/{key}", h.get)
	return router
}

// Start listens on the configured port and serves until ctx is canceled.
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		logger.Info("S3-compatible boundary server listening", "port", s.config.Port)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("S3-compatible boundary server shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("s3server: listen failed: %w", err)
	}
}

// Stop gracefully shuts the server down. Safe to call multiple times.
func (s *Server) Stop(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		err = s.httpServer.Shutdown(ctx)
	})
	return err
}

// handler implements the PUT/GET mapping onto the reactor's Lease and
// Retrieve commands. "bucket" is a libp2p peer ID; "key" is a lease
// nonce, so bucket-relative keys are (peer, nonce) pairs, not arbitrary
// object names.
type handler struct {
	config  Config
	reactor *reactor.Reactor
}

func (h *handler) put(w http.ResponseWriter, r *http.Request) {
	p, err := peer.Decode(chi.URLParam(r, "bucket"))
	if err != nil {
		http.Error(w, "bucket must be a libp2p peer id", http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, 64<<20))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	terms, err := h.termsFromHeaders(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.config.DefaultProposalWindow+5*time.Second)
	defer cancel()

	txHash, err := h.reactor.Lease(ctx, p, terms, data)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	w.Header().Set("ETag", txHash.Hex())
	w.WriteHeader(http.StatusOK)
}

func (h *handler) get(w http.ResponseWriter, r *http.Request) {
	p, err := peer.Decode(chi.URLParam(r, "bucket"))
	if err != nil {
		http.Error(w, "bucket must be a libp2p peer id", http.StatusBadRequest)
		return
	}
	nonce, err := strconv.ParseUint(chi.URLParam(r, "key"), 10, 64)
	if err != nil {
		http.Error(w, "key must be a lease nonce", http.StatusBadRequest)
		return
	}

	data, err := h.reactor.Retrieve(r.Context(), p, nonce)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(data)
}

func (h *handler) termsFromHeaders(r *http.Request) (types.LeaseTerms, error) {
	token := h.config.DefaultToken
	if v := r.Header.Get("X-P2pim-Token"); v != "" {
		token = common.HexToAddress(v)
	}

	price, ok := parseBigInt(r.Header.Get("X-P2pim-Price"), "0")
	if !ok {
		return types.LeaseTerms{}, fmt.Errorf("invalid X-P2pim-Price header")
	}
	penalty, ok := parseBigInt(r.Header.Get("X-P2pim-Penalty"), "0")
	if !ok {
		return types.LeaseTerms{}, fmt.Errorf("invalid X-P2pim-Penalty header")
	}

	duration := h.config.DefaultLeaseDuration
	if v := r.Header.Get("X-P2pim-Lease-Duration-Seconds"); v != "" {
		seconds, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return types.LeaseTerms{}, fmt.Errorf("invalid X-P2pim-Lease-Duration-Seconds header")
		}
		duration = time.Duration(seconds) * time.Second
	}

	return types.LeaseTerms{
		TokenAddress:       token,
		Price:              price,
		Penalty:            penalty,
		LeaseDuration:      duration,
		ProposalExpiration: time.Now().Add(h.config.DefaultProposalWindow),
	}, nil
}

func parseBigInt(s, fallback string) (*big.Int, bool) {
	if s == "" {
		s = fallback
	}
	return new(big.Int).SetString(s, 10)
}
