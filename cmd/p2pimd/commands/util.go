package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/p2pim/node/internal/logger"
	"github.com/p2pim/node/pkg/config"
)

// InitLogger initializes the structured logger from configuration.
func InitLogger(cfg *config.Config) error {
	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if err := logger.Init(loggerCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// GetDefaultStateDir returns the default state directory path.
func GetDefaultStateDir() string {
	stateDir := os.Getenv("XDG_STATE_HOME")
	if stateDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "/tmp"
		}
		stateDir = filepath.Join(homeDir, ".local", "state")
	}
	return filepath.Join(stateDir, "p2pim")
}

// GetDefaultPidFile returns the default PID file path.
func GetDefaultPidFile() string {
	return filepath.Join(GetDefaultStateDir(), "p2pimd.pid")
}

// GetDefaultLogFile returns the default log file path for daemon mode.
func GetDefaultLogFile() string {
	return filepath.Join(GetDefaultStateDir(), "p2pimd.log")
}

// dialNode opens a gRPC connection to the node's boundary server, loading
// the gRPC listen address and auth token from cfg.Boundary.GRPC.
func dialAddress(listenAddress string) string {
	if len(listenAddress) > 0 && listenAddress[0] == ':' {
		return "localhost" + listenAddress
	}
	return listenAddress
}
