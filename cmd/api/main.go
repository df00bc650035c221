package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/AppleLamps/gptveo/internal/credentials"
	"github.com/AppleLamps/gptveo/internal/domain"
	"github.com/AppleLamps/gptveo/internal/history"
	"github.com/AppleLamps/gptveo/internal/http/handlers"
	"github.com/AppleLamps/gptveo/internal/http/httpapi"
	"github.com/AppleLamps/gptveo/internal/infra"
	"github.com/AppleLamps/gptveo/internal/infra/geoip"
	"github.com/AppleLamps/gptveo/internal/middleware"
	"github.com/AppleLamps/gptveo/internal/pipeline"
	"github.com/AppleLamps/gptveo/internal/providers/veo"
	"github.com/AppleLamps/gptveo/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	// The API persists every run; refuse to start without a database. The
	// one-shot CLI is the history-less mode.
	if cfg.DatabaseURL == "" {
		logger.Fatal().Msg("DATABASE_URL is required for the API server")
	}

	ctx := context.Background()
	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()
	hist := history.NewStore(infra.NewSQLRunner(dbpool, logger), logger)

	account, err := loadAccount(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load service account")
	}
	tokens, err := credentials.NewProvider(credentials.Options{Account: account, Logger: logger})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build token provider")
	}
	projectID := cfg.ProjectID
	if projectID == "" {
		projectID = tokens.ProjectID()
	}
	if projectID == "" {
		logger.Fatal().Msg("project id missing from VEO_PROJECT_ID and service account")
	}

	veoClient, err := veo.NewClient(veo.Options{
		ProjectID: projectID,
		Location:  cfg.Location,
		Model:     cfg.Model,
		BaseURL:   cfg.VertexBaseURL,
		Tokens:    tokens,
		Logger:    logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build veo client")
	}

	gcs, err := storage.NewGCSClient(storage.GCSOptions{
		ProjectID:          projectID,
		Location:           cfg.Location,
		BaseURL:            cfg.GCSBaseURL,
		Tokens:             tokens,
		Logger:             logger,
		FetchAttempts:      cfg.FetchAttempts,
		FetchRetryInterval: cfg.FetchRetryInterval,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build storage client")
	}

	poller, err := pipeline.NewPoller(pipeline.PollerOptions{
		Fetcher:             veoClient,
		Interval:            cfg.PollInterval,
		Deadline:            cfg.PollDeadline,
		MaxTransportRetries: cfg.PollMaxTransportRetries,
		Logger:              logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build poller")
	}

	runner, err := pipeline.NewRunner(pipeline.RunnerOptions{
		Submitter:    veoClient,
		Waiter:       poller,
		Buckets:      gcs,
		Artifacts:    gcs,
		Bucket:       cfg.Bucket,
		OutputPrefix: cfg.OutputPrefix,
		Model:        cfg.Model,
		Recorder:     hist,
		Logger:       logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build pipeline runner")
	}

	var lookup middleware.CountryLookup
	resolver, err := geoip.Open(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	} else if resolver != nil {
		defer resolver.Close()
		lookup = resolver.CountryCode
	}

	app := &handlers.App{
		Logger:  logger,
		Config:  cfg,
		Runner:  runner,
		Objects: gcs,
		History: hist,
	}
	router := httpapi.NewRouter(app, lookup)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Str("addr", server.Addr()).Msg("API listening")
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}

func loadAccount(cfg *infra.Config) (*credentials.ServiceAccount, error) {
	if cfg.CredentialsJSON != "" {
		return credentials.ParseServiceAccount([]byte(cfg.CredentialsJSON))
	}
	if cfg.CredentialsPath != "" {
		return credentials.LoadServiceAccount(cfg.CredentialsPath)
	}
	return nil, &domain.AuthError{Reason: "set GOOGLE_APPLICATION_CREDENTIALS or VEO_CREDENTIALS_JSON"}
}
