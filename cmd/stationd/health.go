package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"station.fm/stationd/internal/config"
	"station.fm/stationd/internal/healthsrv"
)

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Print the health snapshot of a running stationd instance",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printHealth()
		},
	}
}

func printHealth() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	snap, err := healthsrv.Query(cfg.Control.HealthSocket)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
