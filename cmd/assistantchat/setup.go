package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"AssistantChat/internal/app"
	"AssistantChat/internal/backend"
	"AssistantChat/internal/config"
	"AssistantChat/internal/history"
	"AssistantChat/internal/mcp"
	"AssistantChat/internal/session"
	"AssistantChat/internal/telemetry"
)

// flagKey maps a flag name to its viper key
func flagKey(name string) string {
	return strings.ReplaceAll(name, "-", "_")
}

// needs lists the collaborators a subcommand uses
type needs struct {
	api     bool
	tools   bool
	history bool
}

// withApp builds the application for one invocation, runs fn and tears
// everything down again
func withApp(cmd *cobra.Command, v *viper.Viper, n needs, fn func(context.Context, *app.App) error) error {
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	logger, closeLog, err := telemetry.InitLogger(cfg.LogDir, cfg.Debug)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer closeLog()

	ctx := cmd.Context()
	tracer, meter, shutdown, err := telemetry.InitTelemetry(ctx, cfg.LogDir)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer shutdown()

	if cfg.Debug {
		logger.Info("Debug mode enabled")
	}
	logger.Info("starting command", "command", cmd.Name(), "session_file", cfg.SessionFile)

	st, err := session.Load(cfg.SessionFile)
	if err != nil {
		return err
	}

	def, err := config.LoadAssistantDefinition(cfg.AssistantFile)
	if err != nil {
		return err
	}

	var api backend.API
	if n.api {
		client, err := backend.NewClient(backend.Options{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
		}, logger, tracer, meter)
		if err != nil {
			return err
		}
		api = client
	}

	var registry *mcp.Registry
	if cfg.MCPEnabled && n.tools {
		registry = mcp.Connect(ctx, cfg.MCPLocalServers, cfg.MCPRemoteServers, logger)
		defer registry.Close()
	}

	var store *history.Store
	if !cfg.NoHistory && n.history {
		store, err = history.Open(cfg.DBPath)
		if err != nil {
			if !n.api {
				return err
			}
			// history is a side record for ask; carry on without it
			logger.Warn("failed to open history database, continuing without history", "path", cfg.DBPath, "error", err)
			store = nil
		} else {
			defer store.Close()
		}
	}

	a, err := app.New(app.Deps{
		Config:     cfg,
		State:      st,
		API:        api,
		Definition: def,
		Tools:      registry,
		History:    store,
		Logger:     logger,
		Tracer:     tracer,
		Meter:      meter,
		Out:        cmd.OutOrStdout(),
	})
	if err != nil {
		return err
	}

	if err := fn(ctx, a); err != nil {
		logger.Error("command failed", "command", cmd.Name(), "error", err)
		return err
	}
	return nil
}
