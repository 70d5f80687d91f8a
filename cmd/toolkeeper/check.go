package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ZebulonRouseFrantzich/toolkeeper/internal/binary"
)

func newCheckCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Report whether a usable tool is available, without repairing anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			a, err := root.load(ctx)
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "Platform: %s\n", a.info.AssetTag())
			fmt.Fprintf(out, "Config:   %s\n", a.store.Path())
			fmt.Fprintf(out, "Data:     %s\n", a.dataDir)
			fmt.Fprintln(out)

			res, err := a.resolver(a.trust())
			if err != nil {
				return err
			}

			cand, err := res.Resolve(ctx, a.override())
			if err == nil {
				printOK(out, "%s", cand)
				return nil
			}

			var (
				notFound   *binary.NotFoundError
				notAllowed *binary.NotAllowedError
				outdated   *binary.OutdatedError
			)
			switch {
			case errors.As(err, &outdated):
				printWarn(out, "%v", err)
				printHint(out, "run `toolkeeper download` for version %s or newer", res.Thresholds().Recommended)
				return nil
			case errors.As(err, &notFound):
				printError(out, "%s not found", res.ExecutableName())
				for _, dir := range notFound.Searched {
					printHint(out, "searched %s", dir)
				}
			case errors.As(err, &notAllowed):
				printError(out, "%v", err)
				printHint(out, "`toolkeeper run` asks whether to keep it")
			default:
				printError(out, "%v", err)
				if c := binary.CandidateOf(err); c != nil {
					printHint(out, "found %s", c)
				}
			}
			return &exitError{code: 1}
		},
	}
}
