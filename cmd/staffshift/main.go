package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"staffshift/internal/config"
	"staffshift/internal/db"
	"staffshift/internal/logging"
	"staffshift/internal/migrate"
	"staffshift/internal/transform"
	"staffshift/internal/web"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "staffshift",
		Short: "Migrates legacy staffing databases into the redesigned schema",
	}

	f := rootCmd.PersistentFlags()
	f.String("database", "new_database.db", "path to the destination database")
	f.String("upload-dir", "uploads", "directory for staged uploads")
	f.Int("listen-port", 8080, "HTTP port for the upload endpoint")
	f.Int("max-upload-mb", 16, "maximum upload size in megabytes")
	f.Int("synth-horizon-days", transform.DefaultHorizonDays, "upper bound in days for synthesized future dates")
	f.String("synth-description", transform.DefaultDescription, "placeholder text for synthesized descriptions")
	f.String("log-level", "info", "log level (debug, info, warn, error)")
	f.String("log-file", "", "optional log file in addition to stdout")

	// Bind flags to viper. Viper keys use underscores (max_upload_mb) so
	// they match the env var suffix after stripping the STAFFSHIFT_ prefix.
	bindFlag := func(viperKey, flagName string) {
		_ = viper.BindPFlag(viperKey, f.Lookup(flagName))
	}
	bindFlag("database", "database")
	bindFlag("upload_dir", "upload-dir")
	bindFlag("listen_port", "listen-port")
	bindFlag("max_upload_mb", "max-upload-mb")
	bindFlag("synth_horizon_days", "synth-horizon-days")
	bindFlag("synth_description", "synth-description")
	bindFlag("log_level", "log-level")
	bindFlag("log_file", "log-file")

	viper.SetEnvPrefix("STAFFSHIFT")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the upload endpoint",
			RunE:  runServe,
		},
		&cobra.Command{
			Use:   "transfer <legacy.db>",
			Short: "Run a one-shot migration from a legacy database file",
			Args:  cobra.ExactArgs(1),
			RunE:  runTransfer,
		},
		&cobra.Command{
			Use:   "init-db",
			Short: "Create the destination database schema",
			RunE:  runInitDB,
		},
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup opens the destination store (bootstrapping its schema) and
// builds the run logger and orchestrator shared by every subcommand.
func setup() (config.Config, *db.DB, *migrate.Orchestrator, *zap.Logger, error) {
	cfg := config.Load()

	logger, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return cfg, nil, nil, nil, err
	}

	dest, err := db.Open(cfg.DatabasePath)
	if err != nil {
		return cfg, nil, nil, nil, fmt.Errorf("open destination database: %w", err)
	}

	syn := transform.NewRandomSynthesizer(cfg.SynthDescription, cfg.SynthHorizonDays)
	orch := migrate.New(dest, syn, logger)
	return cfg, dest, orch, logger, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, dest, orch, logger, err := setup()
	if err != nil {
		return err
	}
	defer dest.Close()   //nolint:errcheck
	defer logger.Sync()  //nolint:errcheck

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		return fmt.Errorf("create upload dir: %w", err)
	}

	logger.Info("staffshift starting",
		zap.String("version", config.Version),
		zap.String("database", cfg.DatabasePath),
		zap.String("upload_dir", cfg.UploadDir),
		zap.Int("listen_port", cfg.ListenPort),
		zap.Int("max_upload_mb", cfg.MaxUploadMB))

	server := web.New(&cfg, dest, orch, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("web server shutdown", zap.Error(err))
	}
	return nil
}

func runTransfer(cmd *cobra.Command, args []string) error {
	_, dest, orch, logger, err := setup()
	if err != nil {
		return err
	}
	defer dest.Close()   //nolint:errcheck
	defer logger.Sync()  //nolint:errcheck

	rep, err := orch.Run(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("transfer: %w", err)
	}

	out, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runInitDB(cmd *cobra.Command, args []string) error {
	cfg, dest, _, logger, err := setup()
	if err != nil {
		return err
	}
	defer dest.Close()  //nolint:errcheck
	defer logger.Sync() //nolint:errcheck

	logger.Info("database and tables created successfully", zap.String("database", cfg.DatabasePath))
	return nil
}
