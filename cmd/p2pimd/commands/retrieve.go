package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/p2pim/node/pkg/boundary/grpcserver"
)

var (
	retrievePeer   string
	retrieveNonce  uint64
	retrieveOutput string
)

var retrieveCmd = &cobra.Command{
	Use:   "retrieve",
	Short: "Fetch leased data back from a lessor peer",
	Long: `Request the data backing a lease this node rents from a peer, and
write it to the given output path.

Examples:
  p2pimd retrieve --peer 12D3Koo... --nonce 3 --output ./blob.bin`,
	RunE: runRetrieve,
}

func init() {
	retrieveCmd.Flags().StringVar(&retrievePeer, "peer", "", "lessor peer ID (required)")
	retrieveCmd.Flags().Uint64Var(&retrieveNonce, "nonce", 0, "lease nonce to retrieve (required)")
	retrieveCmd.Flags().StringVar(&retrieveOutput, "output", "", "path to write the retrieved data (required)")
	_ = retrieveCmd.MarkFlagRequired("peer")
	_ = retrieveCmd.MarkFlagRequired("nonce")
	_ = retrieveCmd.MarkFlagRequired("output")
}

func runRetrieve(cmd *cobra.Command, args []string) error {
	client, _, err := dialNode()
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	resp, err := client.Retrieve(ctx, &grpcserver.RetrieveRequest{PeerID: retrievePeer, Nonce: retrieveNonce})
	if err != nil {
		return err
	}

	if err := os.WriteFile(retrieveOutput, resp.Data, 0o600); err != nil {
		return fmt.Errorf("writing retrieved data: %w", err)
	}

	cmd.Printf("Wrote %d bytes to %s\n", len(resp.Data), retrieveOutput)
	return nil
}
