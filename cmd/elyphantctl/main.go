// Command elyphantctl runs reconciliation jobs and schema migrations from a shell.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/elyphant/backend/cmd/elyphantctl/internal/commands"
	"github.com/elyphant/backend/internal/bootstrap"
	"github.com/elyphant/backend/internal/infrastructure/config"
	"github.com/elyphant/backend/internal/infrastructure/logger"
	"github.com/elyphant/backend/internal/infrastructure/migration"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var (
		logLevel      string
		migrationsDir string
	)

	rootCmd := &cobra.Command{
		Use:           "elyphantctl",
		Short:         "Operate the Elyphant order reconciliation backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level written to stderr")
	rootCmd.PersistentFlags().StringVar(&migrationsDir, "migrations", "", "migrations directory (default: embedded)")

	env := &environment{logLevel: &logLevel, migrationsDir: &migrationsDir}
	if err := initializeCommands(rootCmd, env); err != nil {
		return err
	}
	return rootCmd.Execute()
}

func initializeCommands(rootCmd *cobra.Command, env *environment) error {
	if err := commands.InitReconciliationCommands(rootCmd, env.openServices); err != nil {
		return fmt.Errorf("reconciliation commands: %w", err)
	}
	if err := commands.InitMigrateCommands(rootCmd, env.openMigrator); err != nil {
		return fmt.Errorf("migrate commands: %w", err)
	}
	return nil
}

// environment loads configuration once the chosen command needs it
type environment struct {
	logLevel      *string
	migrationsDir *string
}

func (e *environment) load() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load configuration: %w", err)
	}
	log, err := logger.New(&logger.Config{
		Level:  *e.logLevel,
		Format: cfg.Log.Format,
		Output: "stderr",
	})
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, log, nil
}

func (e *environment) openServices(ctx context.Context) (*commands.Services, func(), error) {
	cfg, log, err := e.load()
	if err != nil {
		return nil, nil, err
	}
	app, err := bootstrap.Open(ctx, cfg, log)
	if err != nil {
		_ = log.Sync()
		return nil, nil, err
	}

	closeFn := func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.Close(closeCtx); err != nil {
			log.Warn("Error releasing resources", zap.Error(err))
		}
		_ = log.Sync()
	}
	return &commands.Services{
		Cleanup:  app.Services.Cleanup,
		Payments: app.Services.Payments,
		Statuses: app.Services.Statuses,
	}, closeFn, nil
}

func (e *environment) openMigrator() (commands.Migrator, error) {
	cfg, log, err := e.load()
	if err != nil {
		return nil, err
	}
	return migration.Open(cfg.Database.DSN(), *e.migrationsDir, log)
}
