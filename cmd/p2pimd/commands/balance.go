package commands

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/p2pim/node/pkg/boundary/grpcserver"
)

var balanceToken string

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Show storage and wallet balance for a token",
	Long: `Show the node's balance in a given ERC-20 token: storage balance
(available, locked by rents, locked by lets) and wallet balance
(available, allowance granted to the adjudicator).

Examples:
  p2pimd balance --token 0x0000000000000000000000000000000000000000`,
	RunE: runBalance,
}

func init() {
	balanceCmd.Flags().StringVar(&balanceToken, "token", "", "ERC-20 token address (required)")
	_ = balanceCmd.MarkFlagRequired("token")
}

func runBalance(cmd *cobra.Command, args []string) error {
	client, _, err := dialNode()
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	resp, err := client.Balance(ctx, &grpcserver.TokenRequest{TokenAddress: balanceToken})
	if err != nil {
		return err
	}

	table := newTable(cmd)
	table.SetHeader([]string{"Field", "Value"})
	if resp.TokenSymbol != "" {
		table.Append([]string{"Token", resp.TokenSymbol})
	}
	table.Append([]string{"Storage available", resp.StorageAvailable})
	table.Append([]string{"Storage locked (rents)", resp.StorageLockedRent})
	table.Append([]string{"Storage locked (lets)", resp.StorageLockedLets})
	table.Append([]string{"Wallet available", resp.WalletAvailable})
	table.Append([]string{"Wallet allowance", resp.WalletAllowance})
	table.Render()

	return nil
}
