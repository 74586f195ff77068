package main

import (
	"github.com/spf13/cobra"
)

var configPath string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "stationd",
		Short: "Process-and-service supervisor for the station runtime",
	}

	root.PersistentFlags().StringVar(&configPath, "config", "/etc/stationd/stationd.yaml", "path to the station config file")

	root.AddCommand(newRunCmd())
	root.AddCommand(newValidateCmd())
	root.AddCommand(newHealthCmd())

	return root
}
