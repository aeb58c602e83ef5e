package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/amankumarsingh77/studio-orchestrator/internal/config"
	"github.com/amankumarsingh77/studio-orchestrator/internal/server"
	"github.com/amankumarsingh77/studio-orchestrator/pkg/db/aws"
	"github.com/amankumarsingh77/studio-orchestrator/pkg/db/postgres"
	"github.com/amankumarsingh77/studio-orchestrator/pkg/db/redis"
	"github.com/amankumarsingh77/studio-orchestrator/pkg/logger"
	"github.com/joho/godotenv"
)

func main() {
	log.Println("Starting server")
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
	appLogger.Infof("AppVersion: %s, LogLevel: %s, Mode: %s", cfg.Server.AppVersion, cfg.Logger.Level, cfg.Server.Mode)

	psqlDB, err := postgres.NewPsqlDB(cfg)
	if err != nil {
		appLogger.Fatalf("could not connect to db: %s", err)
	}
	appLogger.Infof("db connected, status: %#v", psqlDB.Stats())
	defer psqlDB.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient, err := redis.NewRedisClient(ctx, cfg)
	if err != nil {
		appLogger.Fatalf("could not connect to redis: %s", err)
	}
	appLogger.Infof("redis connected")
	defer redisClient.Close()

	s3Client, presignClient, err := aws.NewS3Client(ctx, cfg.S3)
	if err != nil {
		appLogger.Fatalf("could not create s3 client: %s", err)
	}

	s := server.NewServer(cfg, psqlDB, redisClient, s3Client, presignClient, appLogger)
	if err = s.Run(ctx); err != nil {
		appLogger.Errorf("server stopped: %s", err)
	}
}
