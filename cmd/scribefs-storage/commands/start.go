package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/scribefs/scribefs/internal/logger"
	"github.com/scribefs/scribefs/pkg/config"
	"github.com/scribefs/scribefs/pkg/storage"
)

// registration retry cadence. The name server commonly starts after
// the storage servers under process supervisors.
const (
	registerAttempts = 10
	registerBackoff  = 2 * time.Second
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the storage server",
	Long: `Start the storage server with the specified configuration.

The server listens for redirected client traffic and registers itself
with the name server, retrying while the name server comes up.

Examples:
  # Start with the default config location
  scribefs-storage start

  # Start with a custom config file
  scribefs-storage start --config /etc/scribefs/config.yaml`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	err = logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}

	store, err := storage.NewStore(cfg.Storage.RootDir)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := storage.NewServer(storage.ServerConfig{
		ListenAddr: cfg.Storage.ListenAddr,
		Store:      store,
	})
	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.Serve(ctx)
	}()

	select {
	case <-srv.WaitReady():
	case err := <-serverDone:
		return err
	}

	if err := register(ctx, cfg, store); err != nil {
		cancel()
		srv.Stop()
		<-serverDone
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("storage server running",
		"address", cfg.Storage.ListenAddr,
		"root", cfg.Storage.RootDir)

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("shutdown signal received")
		cancel()
		srv.Stop()
		select {
		case err := <-serverDone:
			if err != nil {
				logger.Error("server shutdown error", logger.Err(err))
				return err
			}
		case <-time.After(cfg.ShutdownTimeout):
		}
		logger.Info("storage server stopped")
		return nil

	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("server error", logger.Err(err))
		}
		return err
	}
}

// register announces this server to the name server, retrying while it
// is still coming up.
func register(ctx context.Context, cfg *config.Config, store *storage.Store) error {
	var lastErr error
	for attempt := 1; attempt <= registerAttempts; attempt++ {
		lastErr = storage.Register(ctx, cfg.Storage.NameServerAddr,
			cfg.Storage.AdvertiseIP, cfg.Storage.AdvertisePort, store)
		if lastErr == nil {
			logger.Info("registered with name server",
				"nameserver", cfg.Storage.NameServerAddr,
				"advertised", fmt.Sprintf("%s:%d", cfg.Storage.AdvertiseIP, cfg.Storage.AdvertisePort))
			return nil
		}
		logger.Warn("registration failed",
			"attempt", attempt,
			"nameserver", cfg.Storage.NameServerAddr,
			logger.Err(lastErr))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(registerBackoff):
		}
	}
	return fmt.Errorf("registering with name server %s: %w", cfg.Storage.NameServerAddr, lastErr)
}
