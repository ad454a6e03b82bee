// Package config loads and validates the node's static configuration:
// logging, telemetry, metrics, and the node/lessor/network/boundary
// sections that configure the reactor and its surfaces.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/p2pim/node/internal/bytesize"
)

// Config is the node's static configuration.
//
// Configuration sources, in order of precedence:
//  1. CLI flags (highest priority)
//  2. Environment variables (P2PIM_*)
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing and profiling.
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// Metrics contains Prometheus metrics server configuration.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Node configures the reactor's identity and chain connection.
	Node NodeConfig `mapstructure:"node" yaml:"node"`

	// Lessor configures the lessor-side acceptance policy.
	Lessor LessorConfig `mapstructure:"lessor" yaml:"lessor"`

	// Network configures the libp2p transport.
	Network NetworkConfig `mapstructure:"network" yaml:"network"`

	// Boundary configures the gRPC and S3-compatible operator surfaces.
	Boundary BoundaryConfig `mapstructure:"boundary" yaml:"boundary"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output.
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase).
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format.
	// Valid values: text, json.
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written: stdout, stderr, or a file path.
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port).
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure controls whether to use an insecure (non-TLS) connection.
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0).
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	// Profiling contains Pyroscope continuous profiling configuration.
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	// Enabled controls whether continuous profiling is enabled.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server endpoint (URL).
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// ProfileTypes specifies which profile types to collect.
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// MetricsConfig configures the Prometheus metrics HTTP server.
type MetricsConfig struct {
	// Enabled controls whether metrics collection and its HTTP server run.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port for the metrics endpoint.
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// NodeConfig identifies this node and its chain connection.
type NodeConfig struct {
	// DataDir is the root directory for leased blobs and the badger
	// side-index, per spec.md §6.3's persisted-state layout.
	DataDir string `mapstructure:"data_dir" validate:"required" yaml:"data_dir"`

	// ChainRPCEndpoint is the Ethereum JSON-RPC endpoint ethclient dials.
	ChainRPCEndpoint string `mapstructure:"chain_rpc_endpoint" validate:"required" yaml:"chain_rpc_endpoint"`

	// MasterRecordAddress is the on-chain master record contract address.
	MasterRecordAddress string `mapstructure:"master_record_address" validate:"required" yaml:"master_record_address"`

	// SigningKeyPath is the path to this node's secp256k1 private key file.
	SigningKeyPath string `mapstructure:"signing_key_path" validate:"required" yaml:"signing_key_path"`

	// ChainPollInterval is how often the onchain watcher polls for new blocks.
	ChainPollInterval time.Duration `mapstructure:"chain_poll_interval" yaml:"chain_poll_interval"`

	// ReorgCushionBlocks is how many confirmations the watcher waits past a
	// block before treating it as final.
	ReorgCushionBlocks uint64 `mapstructure:"reorg_cushion_blocks" yaml:"reorg_cushion_blocks"`
}

// AskConfig is one entry of the lessor's advertised per-token acceptance
// criteria, marshaled into a lessor.Ask at startup.
type AskConfig struct {
	TokenAddress string `mapstructure:"token_address" validate:"required" yaml:"token_address"`

	DurationMin time.Duration `mapstructure:"duration_min" yaml:"duration_min"`
	DurationMax time.Duration `mapstructure:"duration_max" yaml:"duration_max"`

	SizeMin bytesize.ByteSize `mapstructure:"size_min" yaml:"size_min"`
	SizeMax bytesize.ByteSize `mapstructure:"size_max" yaml:"size_max"`

	// MinTokensTotal and MinTokensPerGBHour are base-10 integer strings,
	// since the underlying amounts are arbitrary-precision *big.Int.
	MinTokensTotal     string `mapstructure:"min_tokens_total" yaml:"min_tokens_total"`
	MinTokensPerGBHour string `mapstructure:"min_tokens_per_gb_hour" yaml:"min_tokens_per_gb_hour"`

	MaxPenaltyRate float64 `mapstructure:"max_penalty_rate" yaml:"max_penalty_rate"`
}

// LessorConfig configures the lessor-side acceptance policy.
type LessorConfig struct {
	Asks []AskConfig `mapstructure:"asks" yaml:"asks"`
}

// NetworkConfig configures the libp2p transport.
type NetworkConfig struct {
	// ListenAddresses are the multiaddrs the host listens on.
	ListenAddresses []string `mapstructure:"listen_addresses" yaml:"listen_addresses"`

	// BootstrapPeers are multiaddrs (with a trailing /p2p/<peer-id>) dialed
	// at startup to join the network.
	BootstrapPeers []string `mapstructure:"bootstrap_peers" yaml:"bootstrap_peers"`
}

// GRPCConfig configures the gRPC operator surface.
type GRPCConfig struct {
	ListenAddress string `mapstructure:"listen_address" yaml:"listen_address"`

	// AuthToken, when non-empty, is the HMAC secret mutating RPCs' bearer
	// JWTs must verify against.
	AuthToken string `mapstructure:"auth_token" yaml:"auth_token,omitempty"`
}

// S3Config configures the S3-compatible operator surface.
type S3Config struct {
	ListenAddress string `mapstructure:"listen_address" yaml:"listen_address"`
	BucketName    string `mapstructure:"bucket_name" yaml:"bucket_name"`

	DefaultTokenAddress  string        `mapstructure:"default_token_address" yaml:"default_token_address"`
	DefaultLeaseDuration time.Duration `mapstructure:"default_lease_duration" yaml:"default_lease_duration"`
}

// BoundaryConfig configures the node's two operator-facing surfaces.
type BoundaryConfig struct {
	GRPC GRPCConfig `mapstructure:"grpc" yaml:"grpc"`
	S3   S3Config   `mapstructure:"s3" yaml:"s3"`
}

// Load loads configuration from file, environment, and defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	if !configFileFound {
		cfg := GetDefaultConfig()
		return cfg, nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages when the config
// file is missing.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  p2pimd init\n\n"+
				"Or specify a custom config file:\n"+
				"  p2pimd <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s\n\n"+
				"Please create the configuration file:\n"+
				"  p2pimd init --config %s",
				configPath, configPath)
		}
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to path in YAML format.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks cfg against its struct tags using go-playground/validator.
func Validate(cfg *Config) error {
	return validator.New().Struct(cfg)
}

// setupViper configures viper with environment variable and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use the P2PIM_ prefix, e.g. P2PIM_LOGGING_LEVEL=DEBUG.
	v.SetEnvPrefix("P2PIM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		configDir := getConfigDir()
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists. Returns
// (fileFound, error) where fileFound indicates a config file was found.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}

	return true, nil
}

// configDecodeHooks returns the combined decode hook for ByteSize and
// time.Duration fields.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

// byteSizeDecodeHook converts strings and numbers to bytesize.ByteSize,
// enabling human-readable sizes like "1Gi", "500Mi", "100MB" in config files.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook converts strings to time.Duration, enabling
// human-readable durations like "30s", "5m", "1h" in config files.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory: $XDG_CONFIG_HOME/p2pim
// if set, otherwise ~/.p2pim, falling back to "." if the home directory
// cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "p2pim")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".p2pim")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	path := GetDefaultConfigPath()
	_, err := os.Stat(path)
	return err == nil
}

// GetConfigDir returns the configuration directory (exposed for the init command).
func GetConfigDir() string {
	return getConfigDir()
}
