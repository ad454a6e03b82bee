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
	withdrawToken  string
	withdrawAmount string
	withdrawForce  bool
)

var withdrawCmd = &cobra.Command{
	Use:   "withdraw",
	Short: "Withdraw a token amount from the node's storage balance",
	Long: `Withdraw ERC-20 tokens from the node's storage balance on the
adjudicator contract back into its wallet. Only funds not locked by an
open lease can be withdrawn.

Examples:
  p2pimd withdraw --token 0x... --amount 1000000000000000000`,
	RunE: runWithdraw,
}

func init() {
	withdrawCmd.Flags().StringVar(&withdrawToken, "token", "", "ERC-20 token address (required)")
	withdrawCmd.Flags().StringVar(&withdrawAmount, "amount", "", "amount in base units (required)")
	withdrawCmd.Flags().BoolVar(&withdrawForce, "force", false, "skip confirmation prompt")
	_ = withdrawCmd.MarkFlagRequired("token")
	_ = withdrawCmd.MarkFlagRequired("amount")
}

func runWithdraw(cmd *cobra.Command, args []string) error {
	ok, err := prompt.ConfirmWithForce(fmt.Sprintf("Withdraw %s of token %s", withdrawAmount, withdrawToken), withdrawForce)
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

	resp, err := client.Withdraw(ctx, &grpcserver.TokenAmountRequest{TokenAddress: withdrawToken, Amount: withdrawAmount})
	if err != nil {
		return err
	}

	cmd.Printf("Transaction submitted: %s\n", resp.TransactionHash)
	return nil
}
