package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/pmdeck"
	"github.com/loykin/pmdeck/internal/config"
	"github.com/loykin/pmdeck/internal/logger"
	"github.com/loykin/pmdeck/internal/mcpserver"
	"github.com/loykin/pmdeck/internal/server"
)

const shutdownGrace = 30 * time.Second

func createServeCommand(flags *GlobalFlags) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Run the supervisor daemon with the HTTP API",
		Long: `Run the supervisor. Registered processes are restored from the store and
autoStart processes are started. The HTTP API is served until SIGINT or SIGTERM,
after which every process is stopped.

Examples:
  pmdeck serve
  pmdeck serve pmdeck.toml
  PMDECK_SERVER_LISTEN=0.0.0.0:9615 pmdeck serve`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := flags.ConfigPath
			if len(args) > 0 {
				path = args[0]
			}
			cfg, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("error loading config: %w", err)
			}
			if listen != "" {
				cfg.Server.Listen = listen
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "override [server].listen")
	return cmd
}

func setupLogger(cfg *config.Config) (*slog.Logger, func(), error) {
	log, closer, err := logger.New(cfg.Log, os.Stderr)
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(log)
	return log, func() { _ = closer.Close() }, nil
}

func runServe(parent context.Context, cfg *config.Config) error {
	log, closeLog, err := setupLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(contextOrBackground(parent), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sup, err := pmdeck.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	srv, err := server.NewServer(cfg.Server.Listen, sup.Handler(), cfg.Server.CertFile, cfg.Server.KeyFile)
	if err != nil {
		closeSupervisor(sup, log)
		return fmt.Errorf("listen %s: %w", cfg.Server.Listen, err)
	}
	log.Info("pmdeck serving", "addr", srv.Addr, "base", cfg.Server.BasePath, "version", pmdeck.Version)

	<-ctx.Done()
	log.Info("shutting down")
	if err := server.Shutdown(srv, 5*time.Second); err != nil {
		log.Warn("http shutdown", "error", err)
	}
	closeSupervisor(sup, log)
	return nil
}

func createMCPCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Run an embedded supervisor as an MCP server on stdio",
		Long: `Run the supervisor and expose it as Model Context Protocol tools over
stdin/stdout. Logs go to stderr. Use a store that no running daemon holds.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(flags.ConfigPath)
			if err != nil {
				return fmt.Errorf("error loading config: %w", err)
			}
			log, closeLog, err := setupLogger(cfg)
			if err != nil {
				return err
			}
			defer closeLog()

			ctx, stop := signal.NotifyContext(contextOrBackground(cmd.Context()), os.Interrupt, syscall.SIGTERM)
			defer stop()
			sup, err := pmdeck.Open(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer closeSupervisor(sup, log)
			if err := mcpserver.Run(ctx, sup.Service(), pmdeck.Version); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}
}

func closeSupervisor(sup *pmdeck.Supervisor, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := sup.Close(ctx); err != nil {
		log.Warn("supervisor shutdown", "error", err)
	}
}

func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
