package main

import (
	"context"
	"fmt"

	uuid "github.com/satori/go.uuid"
	"github.com/spf13/cobra"

	"station.fm/stationd/internal/bus"
	"station.fm/stationd/internal/config"
	"station.fm/stationd/internal/healthsrv"
	"station.fm/stationd/internal/logging"
	"station.fm/stationd/internal/stationnodes"
	"station.fm/stationd/internal/supervisor"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Construct the graph and run the supervisor in the foreground until shutdown",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runForeground(cmd.Context())
		},
	}
}

func runForeground(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.Init(cfg.Log)
	if err != nil {
		return err
	}

	b := bus.New()
	descriptors, err := stationnodes.BuildDescriptors(cfg, b)
	if err != nil {
		return err
	}

	runIDVal, err := uuid.NewV4()
	if err != nil {
		return fmt.Errorf("stationd: generate run id: %w", err)
	}
	runID := runIDVal.String()
	sv, err := supervisor.New(descriptors, b, logger, runID)
	if err != nil {
		return err
	}

	if cfg.Control.HealthSocket != "" {
		srv, err := healthsrv.Listen(cfg.Control.HealthSocket, sv, logger)
		if err != nil {
			logger.Warn("stationd.health_socket_unavailable", "error", err)
		} else {
			go srv.Serve()
			defer srv.Close()
		}
	}

	logger.Info("stationd.starting", "run_id", runID, "nodes", len(descriptors))
	if err := sv.Run(ctx); err != nil {
		return fmt.Errorf("stationd: %w", err)
	}
	logger.Info("stationd.stopped", "run_id", runID)
	return nil
}
