package commands

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

var peersCmd = &cobra.Command{
	Use:   "peers",
	Short: "List connected peers",
	Long: `List the peers this node currently has a libp2p connection with.

Examples:
  p2pimd peers`,
	RunE: runPeers,
}

func runPeers(cmd *cobra.Command, args []string) error {
	client, _, err := dialNode()
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	resp, err := client.ListPeers(ctx)
	if err != nil {
		return err
	}

	printPeerTable(cmd, resp.Peers)
	return nil
}
