package main

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/chatsync/internal/config"
	"github.com/zhouzirui/chatsync/internal/logger"
	"github.com/zhouzirui/chatsync/internal/remote"
)

var (
	configPath string
	logLevel   string
)

func main() {
	root := &cobra.Command{
		Use:   "chatsync",
		Short: "Keep a local, continuously reconciled copy of a remote chat",
		Long: `chatsync polls a chat server, merges what changed into an in-memory
timeline and serves it over a local HTTP API with live WebSocket and SSE feeds.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file (env vars override it)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides LOG_LEVEL)")

	root.AddCommand(serveCmd())
	root.AddCommand(tailCmd())
	root.AddCommand(sendCmd())
	root.AddCommand(dummyServerCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads .env and the config, then installs the default logger.
func setup() (*config.Config, *slog.Logger, error) {
	envErr := godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	log := logger.Init(cfg.Log.Level, cfg.Log.Format)
	if envErr != nil && !os.IsNotExist(envErr) {
		log.Warn("failed to load .env file, using system environment only", "error", envErr)
	}
	return cfg, log, nil
}

func newRemoteClient(cfg config.RemoteConfig, log *slog.Logger) (*remote.Client, error) {
	return remote.NewClient(remote.ClientConfig{
		BaseURL:           cfg.BaseURL,
		HTTPClient:        &http.Client{Timeout: cfg.RequestTimeout},
		Logger:            log,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
		MaxResponseSize:   cfg.MaxResponseSize,
	})
}
