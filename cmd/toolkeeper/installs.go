package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ZebulonRouseFrantzich/toolkeeper/internal/binary"
	"github.com/ZebulonRouseFrantzich/toolkeeper/internal/transaction"
)

func newInstallsCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "installs",
		Short: "Show the install journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := root.load(cmd.Context())
			if err != nil {
				return err
			}

			txns, err := transaction.List(binary.JournalDir(a.dataDir))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(txns) == 0 {
				fmt.Fprintln(out, "No installs recorded.")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tSTATE\tASSET\tSIGNED\tRESULT")
			for _, txn := range txns {
				result := txn.Path
				if txn.State == transaction.StateFailed {
					result = txn.LastError
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n",
					txn.Timestamp.Local().Format(time.DateTime),
					txn.State,
					txn.Asset,
					txn.Signed,
					result,
				)
			}
			return tw.Flush()
		},
	}
}
