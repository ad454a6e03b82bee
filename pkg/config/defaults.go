package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/p2pim/node/internal/bytesize"
)

// ApplyDefaults fills in unspecified configuration fields with sensible
// defaults. Zero values are replaced; explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyMetricsDefaults(&cfg.Metrics)
	applyNodeDefaults(&cfg.Node)
	applyNetworkDefaults(&cfg.Network)
	applyBoundaryDefaults(&cfg.Boundary)

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}

	// Lessor.Asks has no default: an operator who configures no asks is
	// choosing to reject every incoming lease proposal.
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
	applyProfilingDefaults(&cfg.Profiling)
}

func applyProfilingDefaults(cfg *ProfilingConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}
	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = []string{
			"cpu", "alloc_objects", "alloc_space", "inuse_objects", "inuse_space", "goroutines",
		}
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = 9092
	}
}

func applyNodeDefaults(cfg *NodeConfig) {
	if cfg.DataDir == "" {
		cfg.DataDir = defaultDataDir()
	}
	if cfg.ChainPollInterval == 0 {
		cfg.ChainPollInterval = 12 * time.Second
	}
	if cfg.ReorgCushionBlocks == 0 {
		cfg.ReorgCushionBlocks = 6
	}
}

func applyNetworkDefaults(cfg *NetworkConfig) {
	if len(cfg.ListenAddresses) == 0 {
		cfg.ListenAddresses = []string{"/ip4/0.0.0.0/tcp/4001"}
	}
}

func applyBoundaryDefaults(cfg *BoundaryConfig) {
	if cfg.GRPC.ListenAddress == "" {
		cfg.GRPC.ListenAddress = ":9090"
	}
	if cfg.S3.ListenAddress == "" {
		cfg.S3.ListenAddress = ":9091"
	}
	if cfg.S3.BucketName == "" {
		cfg.S3.BucketName = "p2pim"
	}
	if cfg.S3.DefaultLeaseDuration == 0 {
		cfg.S3.DefaultLeaseDuration = 24 * time.Hour
	}
}

func defaultDataDir() string {
	return filepath.Join(getConfigDir(), "data")
}

// GetDefaultConfig returns a Config with every default value applied, used
// by the init command to write a starter config file and in tests.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Node: NodeConfig{
			ChainRPCEndpoint:    "http://localhost:8545",
			MasterRecordAddress: "0x0000000000000000000000000000000000000000",
			SigningKeyPath:      filepath.Join(getConfigDir(), "node.key"),
		},
		Lessor: LessorConfig{
			Asks: []AskConfig{
				{
					TokenAddress:       "0x0000000000000000000000000000000000000000",
					DurationMin:        time.Hour,
					DurationMax:        30 * 24 * time.Hour,
					SizeMin:            bytesize.ByteSize(1 << 20),   // 1 MiB
					SizeMax:            bytesize.ByteSize(1 << 34),   // 16 GiB
					MinTokensTotal:     "1",
					MinTokensPerGBHour: "1",
					MaxPenaltyRate:     1.0,
				},
			},
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
