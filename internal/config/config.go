package config

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Postgres DBConfig
	Redis    RedisConfig
	S3       S3Config
	Logger   Logger
	Worker   WorkerConfig
	Studio   StudioConfig
}

type ServerConfig struct {
	AppVersion   string
	Port         string
	Mode         string
	JwtSecretKey string
	ReadTimeout  int
	WriteTimeout int
	CORSOrigins  []string
}

type WorkerConfig struct {
	WorkerCount    int
	MaxCPUUsage    float64
	DequeueTimeout int
	CPUBackoff     int
	TempDir        string
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	PgDriver string
	SSLMode  string
}

type RedisConfig struct {
	RedisAddr         string
	RedisPassword     string
	DB                int
	MinIdleConns      int
	PoolSize          int
	PoolTimeout       int
	TLS               bool
	RunQueueKey       string
	ProgressKeyPrefix string
	ProgressTTL       int
}

type S3Config struct {
	Endpoint       string
	Region         string
	AccessKey      string
	SecretKey      string
	InputBucket    string
	OutputBucket   string
	PresignMinutes int
}

type Logger struct {
	Development       bool
	DisableCaller     bool
	DisableStacktrace bool
	Encoding          string
	Level             string
}

// StudioConfig describes the remote studio server and how jobs against it are driven.
type StudioConfig struct {
	BaseURL          string
	RequestTimeout   int
	Poll             PollConfig
	LongRunningKinds []string
	StatusRoutes     map[string]string
	AudioUpload      UploadPolicyConfig
	ImageUpload      UploadPolicyConfig
}

type PollConfig struct {
	MaxAttempts            int
	IntervalMs             int
	LongRunningMaxAttempts int
}

type UploadPolicyConfig struct {
	Extensions []string
	MIMETypes  []string
	MaxSizeMB  int64
}

func (p PollConfig) Interval() time.Duration {
	return time.Duration(p.IntervalMs) * time.Millisecond
}

func (s StudioConfig) Timeout() time.Duration {
	return time.Duration(s.RequestTimeout) * time.Second
}

func LoadConfig(filename string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(filename)
	v.AddConfigPath(".")
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFound) {
			return nil, errors.New("config file not found")
		}
		return nil, err
	}
	return v, nil
}

func ParseConfig(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", ":5000")
	v.SetDefault("server.mode", "development")
	v.SetDefault("server.readTimeout", 10)
	v.SetDefault("server.writeTimeout", 10)
	v.SetDefault("server.corsOrigins", []string{"http://localhost:3000", "http://localhost:5173"})

	v.SetDefault("postgres.pgDriver", "pgx")
	v.SetDefault("postgres.sslMode", "disable")

	v.SetDefault("redis.redisAddr", ":6379")
	v.SetDefault("redis.runQueueKey", "studio:runs")
	v.SetDefault("redis.progressKeyPrefix", "studio:run:")
	v.SetDefault("redis.progressTTL", 86400)

	v.SetDefault("s3.presignMinutes", 60)

	v.SetDefault("logger.encoding", "console")
	v.SetDefault("logger.level", "info")

	v.SetDefault("worker.workerCount", 2)
	v.SetDefault("worker.maxCPUUsage", 80.0)
	v.SetDefault("worker.dequeueTimeout", 5)
	v.SetDefault("worker.cpuBackoff", 10)
	v.SetDefault("worker.tempDir", "tmp_runs")

	v.SetDefault("studio.baseURL", "http://localhost:8000")
	v.SetDefault("studio.requestTimeout", 60)
	v.SetDefault("studio.poll.maxAttempts", 60)
	v.SetDefault("studio.poll.intervalMs", 5000)
	v.SetDefault("studio.poll.longRunningMaxAttempts", 120)
	v.SetDefault("studio.longRunningKinds", []string{"video-create"})
	v.SetDefault("studio.statusRoutes", map[string]string{
		"merge":         "/process/status",
		"extract":       "/extract_status",
		"pitch-shift":   "/process/status",
		"trim":          "/process/status",
		"video-create":  "/process/status",
		"image-process": "/process/status",
		"analyze":       "/api/music-analysis/status",
	})
	v.SetDefault("studio.audioUpload.extensions", []string{".mp3", ".wav", ".m4a", ".flac", ".mp4", ".webm"})
	v.SetDefault("studio.audioUpload.mimeTypes", []string{
		"audio/mpeg", "audio/wav", "audio/mp4", "audio/x-m4a", "audio/flac", "video/mp4", "video/webm",
	})
	v.SetDefault("studio.audioUpload.maxSizeMB", 100)
	v.SetDefault("studio.imageUpload.extensions", []string{".jpg", ".jpeg", ".png", ".bmp", ".gif"})
	v.SetDefault("studio.imageUpload.mimeTypes", []string{"image/jpeg", "image/png", "image/bmp", "image/gif"})
	v.SetDefault("studio.imageUpload.maxSizeMB", 20)
}
