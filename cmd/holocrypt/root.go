package main

import (
	"github.com/spf13/cobra"

	"github.com/goliatone/go-holocrypt"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "holocrypt",
		Short: "HoloCrypt authentication front-end",
		Long: `holocrypt serves the HoloCrypt landing, login, registration and
account pages. Sessions live in an external session store: a hosted
Supabase Auth project or, for development, a local SQLite database.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to a YAML config file")

	cmd.AddCommand(
		newServeCmd(opts),
		newConfigCmd(opts),
		newUserCmd(opts),
	)
	return cmd
}

func (o *rootOptions) load() (*holocrypt.BaseConfig, error) {
	return holocrypt.LoadConfig(o.configPath)
}
