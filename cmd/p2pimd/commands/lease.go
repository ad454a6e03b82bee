package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/p2pim/node/internal/cli/prompt"
	"github.com/p2pim/node/pkg/boundary/grpcserver"
)

var (
	leasePeer      string
	leaseToken     string
	leasePrice     string
	leasePenalty   string
	leaseDuration  time.Duration
	leaseExpiresIn time.Duration
	leaseDataPath  string
	leaseForce     bool
)

var leaseCmd = &cobra.Command{
	Use:   "lease",
	Short: "Propose a lease of local data to a peer",
	Long: `Read a file from disk and propose leasing it to a peer as storage,
under the given price and penalty terms. The proposal is sent over the
libp2p transport and, once accepted, submitted to the adjudicator.

Examples:
  p2pimd lease --peer 12D3Koo... --token 0x... --price 1000 --penalty 100 \
    --duration 24h --data ./blob.bin`,
	RunE: runLease,
}

func init() {
	leaseCmd.Flags().StringVar(&leasePeer, "peer", "", "renter peer ID (required)")
	leaseCmd.Flags().StringVar(&leaseToken, "token", "", "ERC-20 token address (required)")
	leaseCmd.Flags().StringVar(&leasePrice, "price", "", "total lease price in base units (required)")
	leaseCmd.Flags().StringVar(&leasePenalty, "penalty", "", "penalty amount in base units (required)")
	leaseCmd.Flags().DurationVar(&leaseDuration, "duration", 24*time.Hour, "lease duration")
	leaseCmd.Flags().DurationVar(&leaseExpiresIn, "expires-in", 5*time.Minute, "how long the proposal stays open")
	leaseCmd.Flags().StringVar(&leaseDataPath, "data", "", "path to the file to lease (required)")
	leaseCmd.Flags().BoolVar(&leaseForce, "force", false, "skip confirmation prompt")
	_ = leaseCmd.MarkFlagRequired("peer")
	_ = leaseCmd.MarkFlagRequired("token")
	_ = leaseCmd.MarkFlagRequired("price")
	_ = leaseCmd.MarkFlagRequired("penalty")
	_ = leaseCmd.MarkFlagRequired("data")
}

func runLease(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(leaseDataPath)
	if err != nil {
		return fmt.Errorf("reading lease data: %w", err)
	}

	label := fmt.Sprintf("Lease %d bytes to peer %s for %s", len(data), leasePeer, leaseDuration)
	ok, err := prompt.ConfirmWithForce(label, leaseForce)
	if err != nil {
		if prompt.IsAborted(err) {
			cmd.Println("aborted")
			return nil
		}
		return err
	}
	if !ok {
		cmd.Println("aborted")
		return nil
	}

	client, _, err := dialNode()
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resp, err := client.Lease(ctx, &grpcserver.LeaseRequest{
		PeerID:             leasePeer,
		TokenAddress:       leaseToken,
		Price:              leasePrice,
		Penalty:            leasePenalty,
		LeaseDurationSecs:  int64(leaseDuration.Seconds()),
		ProposalExpiration: time.Now().Add(leaseExpiresIn).Unix(),
		Data:               data,
	})
	if err != nil {
		return err
	}

	cmd.Printf("Transaction submitted: %s\n", resp.TransactionHash)
	return nil
}
