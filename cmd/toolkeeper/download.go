package main

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ZebulonRouseFrantzich/toolkeeper/internal/binary"
)

func newDownloadCmd(root *rootOptions) *cobra.Command {
	var noRemember bool

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Install the latest tool release into the data directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			a, err := root.load(ctx)
			if err != nil {
				return err
			}

			inst, err := a.installer()
			if err != nil {
				return err
			}
			if inst == nil {
				return errors.New("no release source configured: set toolkeeper.release.api in " + a.store.Path())
			}

			p := newProgress(cmd.ErrOrStderr())
			path, err := inst.Install(ctx, p.update)
			p.finish()
			if err != nil {
				return err
			}
			printOK(out, "installed %s", path)

			res, err := a.resolver(a.trust())
			if err != nil {
				return err
			}
			if cand, err := res.Validate(ctx, path, binary.ProvenanceDownloaded); err != nil {
				printWarn(out, "%v", err)
			} else {
				printOK(out, "%s", cand)
			}

			if noRemember {
				return nil
			}
			if err := a.store.Remember(path, ""); err != nil {
				return err
			}
			printOK(out, "tool.path saved to %s", a.store.Path())
			return nil
		},
	}

	cmd.Flags().BoolVar(&noRemember, "no-remember", false, "Do not save the installed path to the config file")
	return cmd
}
