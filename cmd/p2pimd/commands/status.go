package commands

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/p2pim/node/pkg/boundary/grpcserver"
	"github.com/p2pim/node/pkg/config"
)

var statusPidFile string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show node status",
	Long: `Display the current status of the p2pimd node.

This checks for a running process via its PID file and, if reachable,
queries the gRPC boundary server's GetInfo RPC for the node's own
address and lease count.

Examples:
  # Check status using the default config location
  p2pimd status

  # Check status for a custom config file
  p2pimd status --config /etc/p2pim/config.yaml`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusPidFile, "pid-file", "", "Path to PID file (default: $XDG_STATE_HOME/p2pim/p2pimd.pid)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	pidPath := statusPidFile
	if pidPath == "" {
		pidPath = GetDefaultPidFile()
	}

	running, pid := processRunning(pidPath)

	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		printStatus(running, pid, false, 0, "", fmt.Sprintf("configuration error: %v", err))
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client, err := grpcserver.Dial(dialAddress(cfg.Boundary.GRPC.ListenAddress), cfg.Boundary.GRPC.AuthToken)
	if err != nil {
		printStatus(running, pid, false, 0, "", fmt.Sprintf("could not reach gRPC boundary: %v", err))
		return nil
	}
	defer func() { _ = client.Close() }()

	info, err := client.GetInfo(ctx)
	if err != nil {
		printStatus(running, pid, false, 0, "", fmt.Sprintf("GetInfo failed: %v", err))
		return nil
	}

	printStatus(true, pid, true, len(info.Leases), info.OwnAddress, "node is reachable")
	return nil
}

func processRunning(pidPath string) (running bool, pid int) {
	pidData, err := os.ReadFile(pidPath)
	if err != nil {
		return false, 0
	}
	pid, err = strconv.Atoi(strings.TrimSpace(string(pidData)))
	if err != nil {
		return false, 0
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false, 0
	}
	if err := process.Signal(syscall.Signal(0)); err != nil {
		return false, 0
	}
	return true, pid
}

func printStatus(running bool, pid int, healthy bool, leaseCount int, ownAddress, message string) {
	fmt.Println()
	fmt.Println("p2pimd Node Status")
	fmt.Println("==================")
	fmt.Println()

	switch {
	case running && healthy:
		fmt.Printf("  Status:       \033[32m* Running\033[0m\n")
	case running:
		fmt.Printf("  Status:       \033[33m* Running (unreachable)\033[0m\n")
	default:
		fmt.Printf("  Status:       \033[31mo Stopped\033[0m\n")
	}
	if pid != 0 {
		fmt.Printf("  PID:          %d\n", pid)
	}
	if ownAddress != "" {
		fmt.Printf("  Address:      %s\n", ownAddress)
	}
	if healthy {
		fmt.Printf("  Leases:       %d\n", leaseCount)
	}
	fmt.Println()
	fmt.Printf("  %s\n", message)
	fmt.Println()
}
