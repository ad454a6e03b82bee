package commands

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/p2pim/node/pkg/boundary/grpcserver"
)

var (
	challengePeer  string
	challengeNonce uint64
	challengeBlock uint32
)

var challengeCmd = &cobra.Command{
	Use:   "challenge",
	Short: "Issue a Merkle-proof challenge to a renter peer",
	Long: `Send a challenge request for a given lease nonce to a peer and
verify the returned Merkle proof against the block hash at the given
block number.

Examples:
  p2pimd challenge --peer 12D3Koo... --nonce 3 --block 19234567`,
	RunE: runChallenge,
}

func init() {
	challengeCmd.Flags().StringVar(&challengePeer, "peer", "", "peer ID holding the lease (required)")
	challengeCmd.Flags().Uint64Var(&challengeNonce, "nonce", 0, "lease nonce to challenge (required)")
	challengeCmd.Flags().Uint32Var(&challengeBlock, "block", 0, "block number to derive the challenge index from (required)")
	_ = challengeCmd.MarkFlagRequired("peer")
	_ = challengeCmd.MarkFlagRequired("nonce")
	_ = challengeCmd.MarkFlagRequired("block")
}

func runChallenge(cmd *cobra.Command, args []string) error {
	client, _, err := dialNode()
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resp, err := client.Challenge(ctx, &grpcserver.ChallengeRequest{
		PeerID:      challengePeer,
		Nonce:       challengeNonce,
		BlockNumber: challengeBlock,
	})
	if err != nil {
		return err
	}

	if resp.Valid {
		cmd.Println("proof valid")
	} else {
		cmd.Println("proof invalid")
	}
	return nil
}
