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
	depositToken  string
	depositAmount string
	depositForce  bool
)

var depositCmd = &cobra.Command{
	Use:   "deposit",
	Short: "Deposit a token amount into the node's storage balance",
	Long: `Deposit ERC-20 tokens from the node's wallet into its storage
balance on the adjudicator contract. Requires a prior approve for at
least this amount.

Examples:
  p2pimd deposit --token 0x... --amount 1000000000000000000`,
	RunE: runDeposit,
}

func init() {
	depositCmd.Flags().StringVar(&depositToken, "token", "", "ERC-20 token address (required)")
	depositCmd.Flags().StringVar(&depositAmount, "amount", "", "amount in base units (required)")
	depositCmd.Flags().BoolVar(&depositForce, "force", false, "skip confirmation prompt")
	_ = depositCmd.MarkFlagRequired("token")
	_ = depositCmd.MarkFlagRequired("amount")
}

func runDeposit(cmd *cobra.Command, args []string) error {
	ok, err := prompt.ConfirmWithForce(fmt.Sprintf("Deposit %s of token %s", depositAmount, depositToken), depositForce)
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

	resp, err := client.Deposit(ctx, &grpcserver.TokenAmountRequest{TokenAddress: depositToken, Amount: depositAmount})
	if err != nil {
		return err
	}

	cmd.Printf("Transaction submitted: %s\n", resp.TransactionHash)
	return nil
}
