package commands

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/multiformats/go-multiaddr"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/p2pim/node/internal/logger"
	"github.com/p2pim/node/internal/telemetry"
	"github.com/p2pim/node/pkg/boundary/grpcserver"
	"github.com/p2pim/node/pkg/boundary/s3server"
	"github.com/p2pim/node/pkg/config"
	"github.com/p2pim/node/pkg/datastore"
	"github.com/p2pim/node/pkg/lessor"
	"github.com/p2pim/node/pkg/metrics"
	"github.com/p2pim/node/pkg/network"
	"github.com/p2pim/node/pkg/network/libp2p"
	"github.com/p2pim/node/pkg/onchain"
	"github.com/p2pim/node/pkg/persistence"
	"github.com/p2pim/node/pkg/reactor"
	"github.com/p2pim/node/pkg/wallet"
)

var (
	foreground bool
	pidFile    string
	logFile    string
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the p2pimd node",
	Long: `Start the p2pimd node with the specified configuration: dial the
chain RPC endpoint, bring up the libp2p transport, and start the reactor's
two event loops alongside the gRPC and S3-compatible operator surfaces.

By default, the node runs in the background (daemon mode). Use --foreground
to run in the foreground for debugging or when managed by a process supervisor.

Examples:
  # Start in background (default)
  p2pimd start

  # Start in foreground
  p2pimd start --foreground

  # Start with custom config file
  p2pimd start --config /etc/p2pim/config.yaml`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().BoolVarP(&foreground, "foreground", "f", false, "Run in foreground (default: background/daemon mode)")
	startCmd.Flags().StringVar(&pidFile, "pid-file", "", "Path to PID file (default: $XDG_STATE_HOME/p2pim/p2pimd.pid)")
	startCmd.Flags().StringVar(&logFile, "log-file", "", "Path to log file for daemon mode (default: $XDG_STATE_HOME/p2pim/p2pimd.log)")
}

func runStart(cmd *cobra.Command, args []string) error {
	if !foreground {
		return startDaemon()
	}

	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "p2pim",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", logger.Err(err))
		}
	}()

	profilingShutdown, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "p2pim",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", logger.Err(err))
		}
	}()

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
	}
	reactorMetrics := metrics.NewReactorMetrics()

	logger.Info("p2pimd starting", "version", Version)

	identity, err := wallet.LoadOrGenerate(cfg.Node.SigningKeyPath)
	if err != nil {
		return fmt.Errorf("failed to load storage identity: %w", err)
	}
	logger.Info("storage identity loaded", logger.PeerAddress(identity.Address()))

	chain, err := onchain.Dial(ctx, onchain.Config{
		PrivateKey:   identity.PrivateKey,
		MasterRecord: common.HexToAddress(cfg.Node.MasterRecordAddress),
		RPCEndpoint:  cfg.Node.ChainRPCEndpoint,
	})
	if err != nil {
		return fmt.Errorf("failed to dial chain RPC endpoint: %w", err)
	}

	libp2pKey, err := identity.LibP2PKey()
	if err != nil {
		return fmt.Errorf("failed to derive libp2p key: %w", err)
	}
	host, err := libp2p.New(libp2pKey, cfg.Network.ListenAddresses)
	if err != nil {
		return fmt.Errorf("failed to start libp2p host: %w", err)
	}
	defer func() {
		if err := host.Close(); err != nil {
			logger.Error("libp2p host close error", logger.Err(err))
		}
	}()

	for _, raw := range cfg.Network.BootstrapPeers {
		addr, err := multiaddr.NewMultiaddr(raw)
		if err != nil {
			logger.Warn("skipping invalid bootstrap peer address", "address", raw, logger.Err(err))
			continue
		}
		dialCtx, dialCancel := context.WithTimeout(ctx, 10*time.Second)
		if err := host.Connect(dialCtx, addr); err != nil {
			logger.Warn("failed to connect to bootstrap peer", "address", raw, logger.Err(err))
		}
		dialCancel()
	}

	netHelper := network.NewHelper(ctx, host)

	store, err := datastore.Open(cfg.Node.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open blob store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("blob store close error", logger.Err(err))
		}
	}()

	ledger := persistence.New()

	asks, err := buildAsks(cfg.Lessor)
	if err != nil {
		return fmt.Errorf("failed to build lessor asks: %w", err)
	}
	policy := lessor.NewPolicy(asks)

	r := reactor.New(netHelper, store, ledger, chain, policy, reactorMetrics)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return r.Run(groupCtx)
	})

	if cfg.Metrics.Enabled {
		metricsServer := metrics.NewServer(cfg.Metrics.Port)
		group.Go(func() error {
			return metricsServer.Start(groupCtx)
		})
		logger.Info("metrics server enabled", "port", cfg.Metrics.Port)
	}

	grpcSrv := grpcserver.New(grpcserver.Config{
		Port:       grpcPort(cfg.Boundary.GRPC.ListenAddress),
		AuthSecret: cfg.Boundary.GRPC.AuthToken,
	}, r)
	group.Go(func() error {
		return grpcSrv.Start(groupCtx)
	})
	logger.Info("gRPC boundary server enabled", "address", cfg.Boundary.GRPC.ListenAddress)

	s3Srv := s3server.New(s3server.Config{
		Port:                 s3Port(cfg.Boundary.S3.ListenAddress),
		DefaultToken:         common.HexToAddress(cfg.Boundary.S3.DefaultTokenAddress),
		DefaultLeaseDuration: cfg.Boundary.S3.DefaultLeaseDuration,
	}, r)
	group.Go(func() error {
		return s3Srv.Start(groupCtx)
	})
	logger.Info("S3-compatible boundary server enabled", "address", cfg.Boundary.S3.ListenAddress)

	if pidFile != "" {
		if err := os.WriteFile(pidFile, []byte(fmt.Sprintf("%d", os.Getpid())), 0644); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = os.Remove(pidFile) }()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("p2pimd is running, press Ctrl+C to stop")

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("shutdown signal received, initiating graceful shutdown")
		cancel()
	case <-groupCtx.Done():
		signal.Stop(sigChan)
	}

	if err := group.Wait(); err != nil && ctx.Err() == nil {
		logger.Error("node stopped with error", logger.Err(err))
		return err
	}

	logger.Info("p2pimd stopped gracefully")
	return nil
}

// buildAsks marshals the config's AskConfig entries into the lessor
// package's native per-token Ask table.
func buildAsks(cfg config.LessorConfig) (map[common.Address]lessor.Ask, error) {
	asks := make(map[common.Address]lessor.Ask, len(cfg.Asks))
	for _, a := range cfg.Asks {
		minTotal, ok := new(big.Int).SetString(a.MinTokensTotal, 10)
		if !ok {
			return nil, fmt.Errorf("invalid min_tokens_total %q for token %s", a.MinTokensTotal, a.TokenAddress)
		}
		minPerGBHour, ok := new(big.Int).SetString(a.MinTokensPerGBHour, 10)
		if !ok {
			return nil, fmt.Errorf("invalid min_tokens_per_gb_hour %q for token %s", a.MinTokensPerGBHour, a.TokenAddress)
		}
		asks[common.HexToAddress(a.TokenAddress)] = lessor.Ask{
			DurationRange:      lessor.DurationRange{Min: a.DurationMin, Max: a.DurationMax},
			SizeRange:          lessor.SizeRange{Min: a.SizeMin.Uint64(), Max: a.SizeMax.Uint64()},
			MinTokensTotal:     minTotal,
			MinTokensPerGBHour: minPerGBHour,
			MaxPenaltyRate:     a.MaxPenaltyRate,
		}
	}
	return asks, nil
}

// grpcPort and s3Port extract the numeric port from a ":port" or
// "host:port" listen address, since grpcserver.Config and s3server.Config
// take a bare port rather than a full address.
func grpcPort(listenAddress string) int {
	return portFrom(listenAddress, 9090)
}

func s3Port(listenAddress string) int {
	return portFrom(listenAddress, 9091)
}

func portFrom(listenAddress string, fallback int) int {
	for i := len(listenAddress) - 1; i >= 0; i-- {
		if listenAddress[i] == ':' {
			var port int
			if _, err := fmt.Sscanf(listenAddress[i+1:], "%d", &port); err == nil && port > 0 {
				return port
			}
			break
		}
	}
	return fallback
}

// startDaemon starts the node as a background daemon process.
func startDaemon() error {
	stateDir := GetDefaultStateDir()
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	pidPath := pidFile
	if pidPath == "" {
		pidPath = filepath.Join(stateDir, "p2pimd.pid")
	}

	if _, err := os.Stat(pidPath); err == nil {
		if running, pid := processRunning(pidPath); running {
			return fmt.Errorf("p2pimd is already running (PID %d)\nUse 'p2pimd stop' to stop the running instance", pid)
		}
		_ = os.Remove(pidPath)
	}

	logPath := logFile
	if logPath == "" {
		logPath = filepath.Join(stateDir, "p2pimd.log")
	}

	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	daemonArgs := []string{"start", "--foreground", "--pid-file", pidPath}
	if GetConfigFile() != "" {
		daemonArgs = append(daemonArgs, "--config", GetConfigFile())
	}

	cmd := exec.Command(executable, daemonArgs...)

	logFileHandle, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	cmd.Stdout = logFileHandle
	cmd.Stderr = logFileHandle
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		_ = logFileHandle.Close()
		return fmt.Errorf("failed to start daemon: %w", err)
	}
	_ = logFileHandle.Close()

	fmt.Printf("p2pimd started in background (PID %d)\n", cmd.Process.Pid)
	fmt.Printf("  PID file: %s\n", pidPath)
	fmt.Printf("  Log file: %s\n", logPath)
	fmt.Println("\nUse 'p2pimd status' to check node status")
	fmt.Println("Use 'p2pimd logs' to follow the node's logs")

	return nil
}
