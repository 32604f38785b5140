package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/scribefs/scribefs/internal/logger"
	"github.com/scribefs/scribefs/pkg/catalog"
	"github.com/scribefs/scribefs/pkg/config"
	"github.com/scribefs/scribefs/pkg/metrics"
	"github.com/scribefs/scribefs/pkg/nameserver"
	"github.com/scribefs/scribefs/pkg/nameserver/api"

	// Import prometheus metrics to register init() functions
	_ "github.com/scribefs/scribefs/pkg/metrics/prometheus"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the name server",
	Long: `Start the name server with the specified configuration.

Examples:
  # Start with the default config location
  scribefs start

  # Start with a custom config file
  scribefs start --config /etc/scribefs/config.yaml

  # Override config with environment variables
  SCRIBEFS_LOGGING_LEVEL=DEBUG scribefs start`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if err := initLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Metrics come first so catalog and session collectors exist when
	// the services are built.
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		logger.Info("metrics enabled")
	}

	cat, err := catalog.NewService(catalog.Config{
		DataDir:       cfg.NameServer.DataDir,
		CacheCapacity: cfg.NameServer.CacheCapacity,
		Metrics:       metrics.NewCatalogMetrics(),
	})
	if err != nil {
		return err
	}

	var executor nameserver.Executor
	if cfg.NameServer.ExecCommand != "" {
		executor = &nameserver.CommandExecutor{
			Command: cfg.NameServer.ExecCommand,
			Timeout: cfg.NameServer.ExecTimeout,
		}
		logger.Info("exec enabled", "command", cfg.NameServer.ExecCommand)
	}

	srv := nameserver.NewServer(nameserver.ServerConfig{
		ListenAddr: cfg.NameServer.ListenAddr,
		Catalog:    cat,
		Executor:   executor,
		Metrics:    metrics.NewSessionMetrics(),
	})

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.Serve(ctx)
	}()

	var apiDone chan error
	if cfg.API.Enabled {
		apiSrv := api.NewServer(api.Config{
			ListenAddr: cfg.API.ListenAddr,
			Catalog:    cat,
		})
		apiDone = make(chan error, 1)
		go func() {
			apiDone <- apiSrv.Serve(ctx)
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("name server running", "address", cfg.NameServer.ListenAddr)

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("shutdown signal received")
		cancel()
		srv.Stop()
		if err := waitOrTimeout(serverDone, cfg.ShutdownTimeout); err != nil {
			logger.Error("server shutdown error", logger.Err(err))
			return err
		}
		if apiDone != nil {
			if err := waitOrTimeout(apiDone, cfg.ShutdownTimeout); err != nil {
				logger.Error("api shutdown error", logger.Err(err))
			}
		}
		logger.Info("name server stopped")
		return nil

	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("server error", logger.Err(err))
			return err
		}
		return nil
	}
}

// waitOrTimeout drains a done channel but gives up after the shutdown
// timeout so a stuck connection cannot wedge process exit.
func waitOrTimeout(done <-chan error, timeout time.Duration) error {
	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		return nil
	}
}
