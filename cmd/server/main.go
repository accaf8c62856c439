package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Tyrowin/roomrelay/internal/logger"
	"github.com/Tyrowin/roomrelay/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	flagPort    string
	flagMode    string
	flagEnvFile string
)

var rootCmd = &cobra.Command{
	Use:   "roomrelay",
	Short: "WebSocket signaling relay for WebRTC rooms",
	Long: `roomrelay accepts WebSocket connections, groups them into rooms keyed by
UUIDv4 ids and relays session descriptions and ICE candidates between peers.

Configuration comes from the environment (optionally loaded from a .env file);
flags override it.

Examples:
  roomrelay
  roomrelay --port 8080 --mode production
  roomrelay --env-file /etc/roomrelay.env`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(cmd)
	},
}

func init() {
	rootCmd.Flags().StringVarP(&flagPort, "port", "p", "", "listen port, overrides PORT")
	rootCmd.Flags().StringVar(&flagMode, "mode", "", "development or production, overrides MODE")
	rootCmd.Flags().StringVar(&flagEnvFile, "env-file", "", "load environment variables from this file")
}

func main() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "roomrelay:", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command) error {
	var envFiles []string
	if flagEnvFile != "" {
		envFiles = append(envFiles, flagEnvFile)
	}
	if err := server.LoadEnvFile(envFiles...); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}

	config := server.NewConfigFromEnv()
	if cmd.Flags().Changed("port") {
		config.Port = flagPort
	}
	if cmd.Flags().Changed("mode") {
		config.Mode = flagMode
	}
	applied := server.SetConfig(config)

	if err := logger.Init(&applied.Log, applied.Mode); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	logger.Debug("configuration applied",
		zap.String("addr", applied.Port),
		zap.Strings("allowed_origins", applied.AllowedOrigins),
		zap.Int64("max_message_size", applied.MaxMessageSize),
		zap.Int("send_buffer", applied.SendBuffer),
		zap.Duration("shutdown_timeout", applied.ShutdownTimeout))

	hub, handler := server.NewSignalingHub(logger.Named("roomrelay"))
	server.StartHub(hub)

	httpServer := server.CreateServer(applied.Port, server.SetupRoutes(hub, handler.Membership()))

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.StartServer(httpServer)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", zap.String("addr", applied.Port), zap.Error(err))
			_ = hub.Shutdown(applied.ShutdownTimeout)
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case sig := <-quit:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
	}

	var shutdownErr error
	if err := server.ShutdownServer(httpServer, applied.ShutdownTimeout); err != nil {
		shutdownErr = err
	}
	if err := hub.Shutdown(applied.ShutdownTimeout); err != nil {
		logger.Warn("hub shutdown incomplete", zap.Error(err))
		shutdownErr = errors.Join(shutdownErr, err)
	}
	logger.Info("server stopped")
	return shutdownErr
}
