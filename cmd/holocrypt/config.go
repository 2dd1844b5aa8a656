package main

import (
	"errors"
	"fmt"

	"github.com/goliatone/go-print"
	"github.com/spf13/cobra"
)

// errMisconfigured makes `config check` exit non zero
var errMisconfigured = errors.New("configuration has warnings")

func newConfigCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration",
	}

	var dump bool
	check := &cobra.Command{
		Use:   "check",
		Short: "Report missing or placeholder session store settings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if dump {
				fmt.Fprintln(out, print.MaybePrettyJSON(cfg.Redacted()))
			}

			warnings := cfg.Warnings()
			if len(warnings) == 0 {
				fmt.Fprintf(out, "ok: %s session store configured\n", cfg.GetStore().Driver)
				return nil
			}

			for _, w := range warnings {
				fmt.Fprintf(out, "warning: %s\n", w)
			}
			return errMisconfigured
		},
	}
	check.Flags().BoolVar(&dump, "print", false, "print the effective configuration, secrets redacted")

	cmd.AddCommand(check)
	return cmd
}
