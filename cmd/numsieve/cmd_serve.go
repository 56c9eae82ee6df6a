package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/raaihank/numsieve/internal/cache"
	"github.com/raaihank/numsieve/internal/config"
	"github.com/raaihank/numsieve/internal/history"
	"github.com/raaihank/numsieve/internal/server"
	"github.com/raaihank/numsieve/internal/service"
	"github.com/raaihank/numsieve/internal/websocket"
)

const shutdownTimeout = 30 * time.Second

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and websocket event stream",
	Long: `Starts the run API. Runs are submitted with POST /api/runs/generate or
POST /api/runs/scan and followed on /ws. Redis status snapshots and the
PostgreSQL run journal are enabled from the configuration file.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "listen port (default from server.port)")
}

func runServe(cmd *cobra.Command, args []string) error {
	if servePort != 0 {
		cfg.Server.Port = servePort
	}

	log.Info("Starting numsieve",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("build_date", date),
		zap.Int("port", cfg.Server.Port),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var opts []service.Option

	var hub *websocket.Hub
	if cfg.WebSocket.Enabled {
		hub = websocket.NewHub(hubConfig(cfg.WebSocket), log.Logger)
		go hub.Run(ctx)
		opts = append(opts, service.WithBroadcaster(hub))
	}

	if cfg.Redis.Enabled {
		board, err := cache.NewStatusBoard(&cache.Config{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			PoolSize:  cfg.Redis.PoolSize,
			TTL:       cfg.Redis.TTL,
			KeyPrefix: cfg.Redis.Prefix,
		}, log.WithComponent("cache").Logger)
		if err != nil {
			return fmt.Errorf("failed to create status board: %w", err)
		}
		defer board.Close()
		opts = append(opts, service.WithStatusStore(board))
	}

	if cfg.History.Enabled {
		journal, err := history.NewJournal(historyConfig(cfg.History), log.WithComponent("history").Logger)
		if err != nil {
			return fmt.Errorf("failed to open run journal: %w", err)
		}
		defer journal.Close()
		opts = append(opts, service.WithJournal(journal))
	}

	manager := service.NewManager(serviceConfig(cfg), log.Logger, opts...)

	err := config.Watch(configPath, func(next *config.Config) {
		manager.UpdateConfig(serviceConfig(next))
	}, func(err error) {
		log.Warn("Ignoring invalid configuration change", zap.Error(err))
	})
	if err != nil {
		log.Debug("Configuration hot reload disabled", zap.Error(err))
	}

	srv := server.New(cfg, log, manager, hub)

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.Int("port", cfg.Server.Port))
		serverErrors <- srv.Start(ctx)
	}()

	select {
	case err := <-serverErrors:
		if err != nil {
			log.Error("Server error", zap.Error(err))
		}
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		manager.Shutdown(stopCtx)
		return err
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Stop(stopCtx); err != nil {
		log.Error("Failed to shutdown server gracefully", zap.Error(err))
	}
	if err := manager.Shutdown(stopCtx); err != nil {
		return err
	}
	log.Info("Server shutdown complete")
	return nil
}

func hubConfig(c config.WebSocketConfig) *websocket.HubConfig {
	hc := websocket.DefaultHubConfig()
	hc.MaxConnections = c.MaxConnections
	hc.ReadBufferSize = c.ReadBufferSize
	hc.WriteBufferSize = c.WriteBufferSize
	hc.PingInterval = c.PingInterval
	hc.PongTimeout = c.PongTimeout
	hc.WriteTimeout = c.WriteTimeout
	hc.MaxMessageSize = c.MaxMessageSize
	if len(c.AllowedOrigins) > 0 {
		hc.AllowedOrigins = c.AllowedOrigins
	}
	return hc
}

func historyConfig(c config.HistoryConfig) *history.Config {
	return &history.Config{
		DatabaseURL:     c.DSN,
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
	}
}
