package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-holocrypt"
)

func newUserCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage accounts of the local session store",
	}

	confirm := &cobra.Command{
		Use:   "confirm <email>",
		Short: "Confirm a local account so it can sign in",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			if cfg.GetStore().Driver != holocrypt.DriverLocal {
				return fmt.Errorf("user confirm needs the %q driver, configured %q", holocrypt.DriverLocal, cfg.GetStore().Driver)
			}

			logger := holocrypt.NewSlogLogger(defaultLogger(cfg.GetDebug()))
			stores, err := buildStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer stores.Close()

			if err := stores.Local.Confirm(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "confirmed %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(confirm)
	return cmd
}
