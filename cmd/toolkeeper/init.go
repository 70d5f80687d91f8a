package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ZebulonRouseFrantzich/toolkeeper/internal/config"
	"github.com/ZebulonRouseFrantzich/toolkeeper/internal/platform"
)

func newInitCmd(root *rootOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := root.configStore(platform.NewDetector())
			if err != nil {
				return err
			}
			if store.Exists() && !force {
				return fmt.Errorf("config already exists at %s (use --force to overwrite)", store.Path())
			}

			if err := store.Save(config.Default()); err != nil {
				return err
			}
			printOK(cmd.OutOrStdout(), "wrote %s", store.Path())
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing config file")
	return cmd
}
