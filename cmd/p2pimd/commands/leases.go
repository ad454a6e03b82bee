package commands

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

var leasesPeer string

var leasesCmd = &cobra.Command{
	Use:   "leases",
	Short: "List this node's leases",
	Long: `List every lease this node currently holds open, whether it is
acting as lessor or renter on that lease. With --peer, also list the
blobs this node holds on disk for that peer as lessor, read straight
from the on-disk index rather than the in-memory lease ledger.

Examples:
  p2pimd leases
  p2pimd leases --peer 12D3Koo...`,
	RunE: runLeases,
}

func init() {
	leasesCmd.Flags().StringVar(&leasesPeer, "peer", "", "also list locally stored blobs for this peer ID")
}

func runLeases(cmd *cobra.Command, args []string) error {
	client, _, err := dialNode()
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	resp, err := client.ListLeases(ctx, leasesPeer)
	if err != nil {
		return err
	}

	printLeaseTable(cmd, resp.Leases)
	if leasesPeer != "" {
		cmd.Println()
		printStoredBlobTable(cmd, resp.StoredBlobs)
	}
	return nil
}
