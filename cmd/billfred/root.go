package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"billfred/internal/bot"
	"billfred/internal/config"
	"billfred/internal/logging"
	"billfred/internal/transport"
)

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "billfred",
		Short: "Chat room bot",
		Long: "billfred sits in a chat room, keeps a log of it, posts titles of links,\n" +
			"answers a few commands and relays news from feeds.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file (default $CONFIG_PATH)")

	cmd.AddCommand(newVersionCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the bot version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "billfred %s\n", version)
		},
	}
}

func run(parent context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, closer := logging.New(logging.Options{
		Level:      cfg.LogLevel,
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
	})
	defer func() { _ = closer.Close() }()
	transport.SetLibraryLogger(log)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create data directory %s: %w", dir, err)
		}
	}

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	b := bot.New(bot.Options{
		Config:  cfg,
		Version: version,
		NewSession: func() transport.Session {
			return transport.NewTelegram(cfg.TelegramBotToken, log)
		},
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}, log)

	log.Info("starting bot", "version", version, "room", cfg.Room, "feeds", len(cfg.Feeds))
	err = b.Run(ctx)
	log.Info("bot stopped")
	return err
}
