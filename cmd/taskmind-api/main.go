package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/taskmindhq/taskmind/backend/internal/auth"
	"github.com/taskmindhq/taskmind/backend/internal/config"
	"github.com/taskmindhq/taskmind/backend/internal/database"
	"github.com/taskmindhq/taskmind/backend/internal/logging"
	"github.com/taskmindhq/taskmind/backend/internal/metrics"
	"github.com/taskmindhq/taskmind/backend/internal/predict"
	"github.com/taskmindhq/taskmind/backend/internal/profiles"
	"github.com/taskmindhq/taskmind/backend/internal/server"
	"github.com/taskmindhq/taskmind/backend/internal/tasks"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "taskmind-api",
		Short: "TaskMind backend service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("firebase-project-id", defaults.GetString("firebase.project_id"), "Firebase project ID (token audience)")
	cmd.PersistentFlags().String("firebase-jwks-url", defaults.GetString("firebase.jwks_url"), "Firebase securetoken JWKS URL")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("model-path", defaults.GetString("model.path"), "Classifier artifact path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "firebase.project_id", "firebase-project-id")
	bindFlag(cmd, "firebase.jwks_url", "firebase-jwks-url")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "model.path", "model-path")
	bindFlag(cmd, "log.level", "log-level")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	// .env is optional; viper picks the values up via AutomaticEnv.
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	verifier, err := auth.NewFirebaseVerifier(auth.FirebaseVerifierConfig{
		ProjectID: appConfig.FirebaseProjectID,
		JWKSURL:   appConfig.FirebaseJWKSURL,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	profileService, err := profiles.NewService(profiles.ServiceConfig{
		Database: db,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	taskService, err := tasks.NewService(tasks.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: tasks.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	deps := server.Dependencies{
		TokenVerifier:   verifier,
		ProfileService:  profileService,
		TaskService:     taskService,
		Metrics:         collector,
		MetricsGatherer: registry,
		Logger:          logger,
	}

	// A missing or malformed artifact is not fatal: /predict falls back
	// to the keyword heuristic.
	model, err := predict.Load(appConfig.ModelPath)
	if err != nil {
		logger.Warn("model load failed, heuristic fallback only",
			zap.String("path", appConfig.ModelPath), zap.Error(err))
	} else {
		logger.Info("model loaded",
			zap.String("path", appConfig.ModelPath),
			zap.Int("feature_count", model.FeatureCount()))
		deps.Predictor = model
	}

	handler, err := server.NewHTTPHandler(deps)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
