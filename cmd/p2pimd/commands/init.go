package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/p2pim/node/pkg/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Initialize a sample p2pimd configuration file with default values.

By default, the configuration file is created at $XDG_CONFIG_HOME/p2pim/config.yaml.
Use --config to specify a custom path.

Examples:
  # Initialize with default location
  p2pimd init

  # Initialize with custom path
  p2pimd init --config /etc/p2pim/config.yaml`,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath := GetConfigFile()
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}

	if config.DefaultConfigExists() && GetConfigFile() == "" {
		return fmt.Errorf("configuration file already exists at: %s", configPath)
	}

	cfg := config.GetDefaultConfig()
	if err := config.SaveConfig(cfg, configPath); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	cmd.Printf("Configuration file created at: %s\n", configPath)
	cmd.Println("\nNext steps:")
	cmd.Println("  1. Edit the configuration file: set node.signing_key_path, node.chain_rpc_endpoint,")
	cmd.Println("     node.master_record_address, and at least one lessor.asks entry.")
	cmd.Printf("  2. Start the node with: p2pimd start --config %s\n", configPath)

	return nil
}
