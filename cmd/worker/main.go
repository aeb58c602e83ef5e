package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amankumarsingh77/studio-orchestrator/internal/config"
	runsRepository "github.com/amankumarsingh77/studio-orchestrator/internal/runs/repository"
	runsUsecase "github.com/amankumarsingh77/studio-orchestrator/internal/runs/usecase"
	"github.com/amankumarsingh77/studio-orchestrator/internal/server"
	studioRepository "github.com/amankumarsingh77/studio-orchestrator/internal/studio/repository"
	"github.com/amankumarsingh77/studio-orchestrator/internal/worker"
	"github.com/amankumarsingh77/studio-orchestrator/pkg/db/aws"
	"github.com/amankumarsingh77/studio-orchestrator/pkg/db/postgres"
	clientRedis "github.com/amankumarsingh77/studio-orchestrator/pkg/db/redis"
	"github.com/amankumarsingh77/studio-orchestrator/pkg/logger"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}
	configFile := os.Getenv("CONFIG_PATH")
	if configFile == "" {
		configFile = "config.yml"
	}
	cfgFile, err := config.LoadConfig(configFile)
	if err != nil {
		log.Fatalf("loadConfig: %v", err)
	}
	cfg, err := config.ParseConfig(cfgFile)
	if err != nil {
		log.Fatalf("parseConfig: %v", err)
	}

	appLogger := logger.NewApiLogger(cfg)
	appLogger.InitLogger()
	appLogger.Infof("AppVersion: %s, LogLevel: %s, Workers: %d", cfg.Server.AppVersion, cfg.Logger.Level, cfg.Worker.WorkerCount)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	psqlDB, err := postgres.NewPsqlDB(cfg)
	if err != nil {
		appLogger.Fatalf("could not connect to db: %s", err)
	}
	defer psqlDB.Close()

	redisClient, err := clientRedis.NewRedisClient(ctx, cfg)
	if err != nil {
		appLogger.Fatalf("could not connect to redis: %s", err)
	}
	defer redisClient.Close()

	s3Client, presignClient, err := aws.NewS3Client(ctx, cfg.S3)
	if err != nil {
		appLogger.Fatalf("could not create s3 client: %s", err)
	}

	studioClient := studioRepository.NewStudioClient(cfg, appLogger)
	workflows, runner := server.NewStudioPipeline(studioClient, cfg.Studio, appLogger)
	redisRepo := runsRepository.NewRunsRedisRepo(
		redisClient,
		cfg.Redis.RunQueueKey,
		cfg.Redis.ProgressKeyPrefix,
		time.Duration(cfg.Redis.ProgressTTL)*time.Second,
	)
	runsUC := runsUsecase.NewRunsUseCase(
		cfg,
		runsRepository.NewRunsRepo(psqlDB),
		redisRepo,
		runsRepository.NewAwsRepository(s3Client, presignClient),
		studioClient,
		workflows,
		runner,
		appLogger,
	)

	w := worker.NewWorker(cfg, appLogger, redisRepo, runsUC)
	w.Start(ctx)
	<-ctx.Done()
	appLogger.Info("Shutting down, waiting for running jobs")
	w.Wait()
	appLogger.Info("Worker exited properly")
}
