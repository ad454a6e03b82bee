package commands

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show this node's address and active leases",
	Long: `Query the node's gRPC boundary for its own storage address and the
leases it currently has open, as either lessor or renter.

Examples:
  p2pimd info`,
	RunE: runInfo,
}

func runInfo(cmd *cobra.Command, args []string) error {
	client, _, err := dialNode()
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	info, err := client.GetInfo(ctx)
	if err != nil {
		return err
	}

	cmd.Printf("Own address: %s\n\n", info.OwnAddress)
	printLeaseTable(cmd, info.Leases)
	return nil
}
