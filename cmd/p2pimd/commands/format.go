package commands

import (
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/p2pim/node/pkg/boundary/grpcserver"
)

// newTable returns a tablewriter configured the way the rest of the CLI
// renders tabular output: borderless, left-aligned, no padding noise.
func newTable(cmd *cobra.Command) *tablewriter.Table {
	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)
	return table
}

func printLeaseTable(cmd *cobra.Command, leases []grpcserver.LeaseView) {
	table := newTable(cmd)
	table.SetHeader([]string{"Peer ID", "Peer Address", "Nonce", "Token", "Price", "Penalty", "Size", "Confirmed"})

	for _, l := range leases {
		confirmed := "no"
		if l.Confirmed {
			confirmed = "yes"
		}
		table.Append([]string{
			l.PeerID,
			l.PeerAddress,
			strconv.FormatUint(l.Nonce, 10),
			l.TokenAddress,
			l.Price,
			l.Penalty,
			strconv.FormatUint(l.Size, 10),
			confirmed,
		})
	}

	table.Render()
}

func printStoredBlobTable(cmd *cobra.Command, blobs []grpcserver.StoredBlobView) {
	table := newTable(cmd)
	table.SetHeader([]string{"Nonce", "Merkle Root", "Size"})

	for _, b := range blobs {
		table.Append([]string{
			strconv.FormatUint(b.Nonce, 10),
			b.MerkleRoot,
			strconv.FormatUint(b.Size, 10),
		})
	}

	table.Render()
}

func printPeerTable(cmd *cobra.Command, peers []grpcserver.PeerView) {
	table := newTable(cmd)
	table.SetHeader([]string{"Peer ID", "Address"})

	for _, p := range peers {
		table.Append([]string{p.PeerID, p.Address})
	}

	table.Render()
}
