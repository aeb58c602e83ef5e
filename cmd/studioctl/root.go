package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/amankumarsingh77/studio-orchestrator/internal/config"
	"github.com/amankumarsingh77/studio-orchestrator/internal/runs"
	runsRepository "github.com/amankumarsingh77/studio-orchestrator/internal/runs/repository"
	runsUsecase "github.com/amankumarsingh77/studio-orchestrator/internal/runs/usecase"
	"github.com/amankumarsingh77/studio-orchestrator/internal/server"
	studioRepository "github.com/amankumarsingh77/studio-orchestrator/internal/studio/repository"
	"github.com/amankumarsingh77/studio-orchestrator/pkg/db/aws"
	"github.com/amankumarsingh77/studio-orchestrator/pkg/db/postgres"
	clientRedis "github.com/amankumarsingh77/studio-orchestrator/pkg/db/redis"
	"github.com/amankumarsingh77/studio-orchestrator/pkg/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	baseURL    string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "studioctl",
		Short:         "Drive audio and video studio workflows",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			_ = godotenv.Load()
		},
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default $CONFIG_PATH or config.yml)")
	cmd.PersistentFlags().StringVar(&opts.baseURL, "studio-url", "", "override the studio server base URL")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log client activity")

	cmd.AddCommand(
		newRunCmd(opts),
		newEnqueueCmd(opts),
		newStatusCmd(opts),
		newTokenCmd(opts),
	)
	return cmd
}

func (o *rootOptions) loadConfig() (*config.Config, error) {
	path := o.configPath
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "config.yml"
	}
	v, err := config.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	cfg, err := config.ParseConfig(v)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if o.baseURL != "" {
		cfg.Studio.BaseURL = o.baseURL
	}
	return cfg, nil
}

func (o *rootOptions) logger(cfg *config.Config) logger.Logger {
	if !o.verbose {
		return logger.NewNopLogger()
	}
	l := logger.NewApiLogger(cfg)
	l.InitLogger()
	return l
}

// backend holds the stores behind queued runs, closed together once a command finishes.
type backend struct {
	runsUC runs.UseCase
	close  func()
}

func (o *rootOptions) openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	log := o.logger(cfg)
	db, err := postgres.NewPsqlDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	redisClient, err := clientRedis.NewRedisClient(ctx, cfg)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	s3Client, presignClient, err := aws.NewS3Client(ctx, cfg.S3)
	if err != nil {
		db.Close()
		redisClient.Close()
		return nil, fmt.Errorf("create s3 client: %w", err)
	}

	client := studioRepository.NewStudioClient(cfg, log)
	workflows, runner := server.NewStudioPipeline(client, cfg.Studio, log)
	uc := runsUsecase.NewRunsUseCase(
		cfg,
		runsRepository.NewRunsRepo(db),
		runsRepository.NewRunsRedisRepo(redisClient, cfg.Redis.RunQueueKey, cfg.Redis.ProgressKeyPrefix, time.Duration(cfg.Redis.ProgressTTL)*time.Second),
		runsRepository.NewAwsRepository(s3Client, presignClient),
		client,
		workflows,
		runner,
		log,
	)
	return &backend{
		runsUC: uc,
		close: func() {
			redisClient.Close()
			db.Close()
		},
	}, nil
}
