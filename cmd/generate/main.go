package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/AppleLamps/gptveo/internal/credentials"
	"github.com/AppleLamps/gptveo/internal/domain"
	"github.com/AppleLamps/gptveo/internal/history"
	"github.com/AppleLamps/gptveo/internal/infra"
	"github.com/AppleLamps/gptveo/internal/pipeline"
	"github.com/AppleLamps/gptveo/internal/providers/veo"
	"github.com/AppleLamps/gptveo/internal/storage"
)

// One-shot generation: submit a prompt, wait for the video, download it next
// to the current directory. DATABASE_URL is optional; without it the run is
// simply not recorded.
func main() {
	var (
		promptFlag   string
		durationFlag int
		aspectFlag   string
		modelFlag    string
		outFlag      string
		timeoutFlag  time.Duration
	)
	flag.StringVar(&promptFlag, "prompt", "", "Text prompt describing the video")
	flag.IntVar(&durationFlag, "duration", 0, "Video length in seconds (1-8, default 5)")
	flag.StringVar(&aspectFlag, "aspect", "", "Aspect ratio, 16:9, 1:1 or 9:16")
	flag.StringVar(&modelFlag, "model", "", "Model override")
	flag.StringVar(&outFlag, "out", ".", "Directory the video is written to")
	flag.DurationVar(&timeoutFlag, "timeout", 0, "Polling deadline override, e.g. 5m")
	flag.Parse()

	if promptFlag == "" {
		fmt.Fprintln(os.Stderr, "a prompt is required via -prompt")
		os.Exit(1)
	}

	_ = godotenv.Load()
	cfg, err := infra.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if timeoutFlag > 0 {
		cfg.PollDeadline = timeoutFlag
	}
	logger := infra.NewLogger("cli").With().Str("cmd", "generate").Logger()

	account, err := loadAccount(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "credentials: %v\n", err)
		os.Exit(1)
	}
	tokens, err := credentials.NewProvider(credentials.Options{Account: account, Logger: logger})
	if err != nil {
		fmt.Fprintf(os.Stderr, "credentials: %v\n", err)
		os.Exit(1)
	}
	projectID := cfg.ProjectID
	if projectID == "" {
		projectID = tokens.ProjectID()
	}
	if projectID == "" {
		fmt.Fprintln(os.Stderr, "project id missing from VEO_PROJECT_ID and service account")
		os.Exit(1)
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
		fmt.Fprintf(os.Stderr, "veo client: %v\n", err)
		os.Exit(1)
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
		fmt.Fprintf(os.Stderr, "storage client: %v\n", err)
		os.Exit(1)
	}
	poller, err := pipeline.NewPoller(pipeline.PollerOptions{
		Fetcher:             veoClient,
		Interval:            cfg.PollInterval,
		Deadline:            cfg.PollDeadline,
		MaxTransportRetries: cfg.PollMaxTransportRetries,
		Logger:              logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "poller: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	var store *history.Store
	if cfg.DatabaseURL != "" {
		dbpool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "history disabled: %v\n", err)
		} else {
			defer dbpool.Close()
			store = history.NewStore(infra.NewSQLRunner(dbpool, logger), logger)
		}
	}

	runnerOpts := pipeline.RunnerOptions{
		Submitter:    veoClient,
		Waiter:       poller,
		Buckets:      gcs,
		Artifacts:    gcs,
		Bucket:       cfg.Bucket,
		OutputPrefix: cfg.OutputPrefix,
		Model:        cfg.Model,
		Logger:       logger,
	}
	if store != nil {
		runnerOpts.Recorder = store
	}
	runner, err := pipeline.NewRunner(runnerOpts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pipeline: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("generating video (up to %s)...\n", cfg.PollDeadline)
	run, err := runner.Run(ctx, domain.GenerationRequest{
		Prompt:          promptFlag,
		DurationSeconds: durationFlag,
		AspectRatio:     aspectFlag,
		Model:           modelFlag,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "generation failed (%s): %v\n", domain.ClassifyFailure(err), err)
		if run != nil {
			fmt.Fprintf(os.Stderr, "run id: %s\n", run.ID)
		}
		os.Exit(1)
	}

	files, err := storage.NewFileStore(outFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "output dir: %v\n", err)
		os.Exit(1)
	}
	path, err := files.SaveArtifact(ctx, run.Artifact, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "save video: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("video ready: %s\n", run.Artifact.Ref.URI())
	fmt.Printf("saved to %s (%d bytes, took %s)\n", path, run.Artifact.Size, run.Duration().Round(time.Second))
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
