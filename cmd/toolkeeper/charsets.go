package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ZebulonRouseFrantzich/toolkeeper/internal/charset"
)

// detectSampleSize bounds how much of a file charsets reads.
const detectSampleSize = 64 * 1024

func newCharsetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "charsets [file]",
		Short: "List console encodings, or guess the encoding of a file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) == 0 {
				fmt.Fprintln(out, charset.Auto)
				for _, name := range charset.Names() {
					fmt.Fprintln(out, name)
				}
				return nil
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			sample, err := io.ReadAll(io.LimitReader(f, detectSampleSize))
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			name, err := charset.Detect(sample)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, name)
			return nil
		},
	}
}
