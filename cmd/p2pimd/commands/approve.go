package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/p2pim/node/internal/cli/prompt"
	"github.com/p2pim/node/pkg/boundary/grpcserver"
)

var (
	approveToken string
	approveForce bool
)

var approveCmd = &cobra.Command{
	Use:   "approve",
	Short: "Approve the adjudicator contract to pull a token from the wallet",
	Long: `Submit an ERC-20 approve transaction granting the adjudicator
contract an allowance over the node's wallet balance for a token,
required once before the first deposit of that token.

Examples:
  p2pimd approve --token 0x...`,
	RunE: runApprove,
}

func init() {
	approveCmd.Flags().StringVar(&approveToken, "token", "", "ERC-20 token address (required)")
	approveCmd.Flags().BoolVar(&approveForce, "force", false, "skip confirmation prompt")
	_ = approveCmd.MarkFlagRequired("token")
}

func runApprove(cmd *cobra.Command, args []string) error {
	ok, err := prompt.ConfirmWithForce(fmt.Sprintf("Approve adjudicator for token %s", approveToken), approveForce)
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

	resp, err := client.Approve(ctx, &grpcserver.TokenRequest{TokenAddress: approveToken})
	if err != nil {
		return err
	}

	cmd.Printf("Transaction submitted: %s\n", resp.TransactionHash)
	return nil
}
