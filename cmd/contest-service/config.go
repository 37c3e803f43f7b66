package main

import (
	"fmt"
	"os"
	"time"

	"arena/internal/common/cache"
	"arena/internal/common/db"
	"arena/internal/common/mq"
	"arena/internal/common/storage"
	"arena/internal/judge/execclient"
	"arena/pkg/utils/logger"

	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8080"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
}

// JudgeConfig holds judging pipeline settings.
type JudgeConfig struct {
	ProblemBucket  string        `yaml:"problemBucket"`
	Workers        int           `yaml:"workers"`
	JudgeTimeout   time.Duration `yaml:"judgeTimeout"`
	RateLimitMax   int           `yaml:"rateLimitMax"`
	RateLimitWindow time.Duration `yaml:"rateLimitWindow"`
	EventTopic     string        `yaml:"eventTopic"`
}

// GatewayConfig holds websocket gateway settings.
type GatewayConfig struct {
	JWTSecret string        `yaml:"jwtSecret"`
	Heartbeat time.Duration `yaml:"heartbeat"`
	TopN      int           `yaml:"topN"`
}

// SchedulerConfig holds contest scheduler settings.
type SchedulerConfig struct {
	Tick time.Duration `yaml:"tick"`
}

// AppConfig holds contest-service configuration.
type AppConfig struct {
	Server    ServerConfig        `yaml:"server"`
	Logger    logger.Config       `yaml:"logger"`
	Database  db.MySQLConfig      `yaml:"database"`
	Redis     cache.RedisConfig   `yaml:"redis"`
	Kafka     mq.KafkaConfig      `yaml:"kafka"`
	MinIO     storage.MinIOConfig `yaml:"minio"`
	Exec      execclient.Config   `yaml:"exec"`
	Judge     JudgeConfig         `yaml:"judge"`
	Gateway   GatewayConfig       `yaml:"gateway"`
	Scheduler SchedulerConfig     `yaml:"scheduler"`
	EventTopic string             `yaml:"eventTopic"`
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}

	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	if cfg.Exec.BaseURL == "" {
		return nil, fmt.Errorf("exec base url is required")
	}
	if cfg.Gateway.JWTSecret == "" {
		return nil, fmt.Errorf("gateway jwt secret is required")
	}

	if cfg.Judge.ProblemBucket == "" {
		cfg.Judge.ProblemBucket = cfg.MinIO.Bucket
	}
	if cfg.Judge.Workers == 0 {
		cfg.Judge.Workers = 8
	}
	if cfg.Judge.JudgeTimeout == 0 {
		cfg.Judge.JudgeTimeout = 5 * time.Minute
	}
	if cfg.Judge.RateLimitMax == 0 {
		cfg.Judge.RateLimitMax = 30
	}
	if cfg.Judge.RateLimitWindow == 0 {
		cfg.Judge.RateLimitWindow = time.Minute
	}
	if cfg.Judge.EventTopic == "" {
		cfg.Judge.EventTopic = "contest.submissions"
	}
	if cfg.EventTopic == "" {
		cfg.EventTopic = "contest.events"
	}
	if cfg.Gateway.Heartbeat == 0 {
		cfg.Gateway.Heartbeat = 30 * time.Second
	}
	if cfg.Gateway.TopN == 0 {
		cfg.Gateway.TopN = 50
	}
	if cfg.Scheduler.Tick == 0 {
		cfg.Scheduler.Tick = 2 * time.Second
	}
	return &cfg, nil
}
