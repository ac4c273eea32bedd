package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Abhijeet1005/zendly-assignment/pkg/config"
	"github.com/Abhijeet1005/zendly-assignment/pkg/db"
	"github.com/Abhijeet1005/zendly-assignment/pkg/event"
	"github.com/Abhijeet1005/zendly-assignment/pkg/service"
	"github.com/Abhijeet1005/zendly-assignment/pkg/utils"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfg *config.AppConfig

	root := &cobra.Command{
		Use:          "zendly",
		Short:        "Conversation allocation and lifecycle engine",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, path, err := config.Load()
			if err != nil {
				return err
			}
			cfg = loaded
			utils.InitLogger(cfg.Logging.Level, cfg.Logging.Format)
			utils.GetLogger().Debug("Configuration loaded", "path", path)
			return nil
		},
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the grace period sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), cfg)
		},
	}
	root.RunE = serve.RunE

	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			gdb, closeStore, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer closeStore()
			if err := db.Migrate(gdb); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema migrated (%s)\n", cfg.Database.Driver)
			return nil
		},
	}

	sweep := &cobra.Command{
		Use:   "sweep",
		Short: "Reclaim conversations whose grace period expired, once",
		RunE: func(cmd *cobra.Command, args []string) error {
			gdb, closeStore, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer closeStore()
			grace := service.NewGracePeriodService(gdb, cfg.GraceDuration(), event.NewEmitter())
			n := grace.ProcessExpiredGracePeriods(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "reclaimed %d conversation(s)\n", n)
			return nil
		},
	}

	initConfig := &cobra.Command{
		Use:   "init-config",
		Short: "Write a default config file if none exists",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.EnsureDefaultConfig()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}

	root.AddCommand(serve, migrate, sweep, initConfig)
	return root
}

func runServe(ctx context.Context, cfg *config.AppConfig) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := utils.GetLogger()
	server, err := NewServer(ctx, cfg)
	if err != nil {
		logger.Error("Failed to build server", "error", err)
		return err
	}
	if err := server.Start(ctx); err != nil {
		logger.Error("Failed to start server", "error", err)
		server.Close()
		return err
	}

	<-ctx.Done()
	logger.Info("Shutting down")
	<-server.Done()
	return nil
}

// openStore opens the configured database for one-shot commands. The
// returned func closes the connection pool.
func openStore(cfg *config.AppConfig) (*gorm.DB, func(), error) {
	gdb, err := db.Open(cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	return gdb, func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}, nil
}
