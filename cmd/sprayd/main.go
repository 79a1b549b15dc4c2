package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/subsquid/spray/pkg/config"
	"github.com/subsquid/spray/pkg/ingest"
	"github.com/subsquid/spray/pkg/log"
	"github.com/subsquid/spray/pkg/rpcserver"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "sprayd",
	Short:   "spray streams normalized Solana transactions and blocks over JSON-RPC subscriptions",
	Version: Version,
	RunE:    run,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("spray version %s\nCommit: %s\n", Version, Commit))
	rootCmd.PersistentFlags().String("config", "config.yaml", "Path to the YAML config file")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
}

func run(cmd *cobra.Command, _ []string) error {
	logLevel, _ := cmd.Flags().GetString("log-level")
	logJSON, _ := cmd.Flags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(logLevel), JSONOutput: logJSON})

	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	pipeline := ingest.New(cfg.GeyserConfigs())
	server := rpcserver.NewServer(pipeline)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return pipeline.Run(gctx)
	})
	group.Go(func() error {
		addr := cfg.ListenAddr()
		log.Logger.Info().Str("addr", addr).Msg("listening")
		return server.Start(gctx, addr)
	})

	if err := group.Wait(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("sprayd: %w", err)
	}
	log.Logger.Info().Msg("shutting down")
	return nil
}
