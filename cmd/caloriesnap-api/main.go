package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/litodertechie/caloriesnap/internal/config"
	"github.com/litodertechie/caloriesnap/internal/database"
	"github.com/litodertechie/caloriesnap/internal/images"
	"github.com/litodertechie/caloriesnap/internal/logging"
	"github.com/litodertechie/caloriesnap/internal/meals"
	"github.com/litodertechie/caloriesnap/internal/server"
	"github.com/litodertechie/caloriesnap/internal/vision"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "caloriesnap-api",
		Short: "CalorieSnap food-logging backend service",
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
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("uploads-dir", defaults.GetString("uploads.dir"), "Image blob directory")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("openai-api-key", "", "OpenAI API key (overrides env)")
	cmd.PersistentFlags().String("openai-model", defaults.GetString("openai.model"), "OpenAI vision model")
	cmd.PersistentFlags().Int("openai-timeout-seconds", defaults.GetInt("openai.timeout_seconds"), "Estimator call timeout in seconds")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "uploads.dir", "uploads-dir")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "openai.api_key", "openai-api-key")
	bindFlag(cmd, "openai.model", "openai-model")
	bindFlag(cmd, "openai.timeout_seconds", "openai-timeout-seconds")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
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

	blobStore, err := images.NewStore(appConfig.UploadsDir)
	if err != nil {
		return err
	}

	estimator := vision.NewOpenAIEstimator(vision.OpenAIConfig{
		APIKey:  appConfig.OpenAIAPIKey,
		Model:   appConfig.OpenAIModel,
		Timeout: appConfig.OpenAITimeout,
	})
	if appConfig.OpenAIAPIKey == "" {
		logger.Warn("no OpenAI API key configured, nutrition estimates use the fixed fallback")
	}

	mealsService, err := meals.NewService(meals.ServiceConfig{
		Database:   db,
		Blobs:      blobStore,
		Estimator:  estimator,
		Clock:      time.Now,
		IDProvider: meals.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		MealsService: mealsService,
		Blobs:        blobStore,
		Logger:       logger,
	})
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
