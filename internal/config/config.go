package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type StoreMode string

const (
	StoreSQL    StoreMode = "sql"
	StoreMemory StoreMode = "memory"
)

type Config struct {
	HTTPAddr string `yaml:"http_addr"`
	GRPCAddr string `yaml:"grpc_addr"`

	Store         StoreMode `yaml:"store"`
	MySQLDSN      string    `yaml:"mysql_dsn"`
	RedisAddr     string    `yaml:"redis_addr"`
	MongoURI      string    `yaml:"mongo_uri"`
	MongoDatabase string    `yaml:"mongo_database"`
	AMQPURL       string    `yaml:"amqp_url"`
	AMQPExchange  string    `yaml:"amqp_exchange"`

	JWTSecret  string        `yaml:"jwt_secret"`
	SessionTTL time.Duration `yaml:"session_ttl"`

	WorkerCount int `yaml:"worker_count"`
	QueueSize   int `yaml:"queue_size"`

	LogFormat string `yaml:"log_format"`
	LogLevel  string `yaml:"log_level"`
}

func Default() Config {
	return Config{
		HTTPAddr:      ":8080",
		GRPCAddr:      ":50051",
		Store:         StoreSQL,
		MySQLDSN:      "root:root@tcp(localhost:3306)/farmmarket?parseTime=true",
		RedisAddr:     "localhost:6379",
		MongoURI:      "mongodb://localhost:27017",
		MongoDatabase: "farmmarket",
		AMQPExchange:  "farmmarket.events",
		SessionTTL:    24 * time.Hour,
		WorkerCount:   10,
		QueueSize:     10000,
		LogFormat:     "json",
		LogLevel:      "info",
	}
}

// Load reads an optional .env file, then the YAML file named by CONFIG_FILE,
// then environment variables. Later layers win.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	str := map[string]*string{
		"HTTP_ADDR":      &c.HTTPAddr,
		"GRPC_ADDR":      &c.GRPCAddr,
		"MYSQL_DSN":      &c.MySQLDSN,
		"REDIS_ADDR":     &c.RedisAddr,
		"MONGO_URI":      &c.MongoURI,
		"MONGO_DATABASE": &c.MongoDatabase,
		"AMQP_URL":       &c.AMQPURL,
		"AMQP_EXCHANGE":  &c.AMQPExchange,
		"JWT_SECRET":     &c.JWTSecret,
		"LOG_FORMAT":     &c.LogFormat,
		"LOG_LEVEL":      &c.LogLevel,
	}
	for key, dst := range str {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}

	if v, ok := os.LookupEnv("STORE"); ok {
		c.Store = StoreMode(v)
	}
	if v, ok := os.LookupEnv("SESSION_TTL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse SESSION_TTL: %w", err)
		}
		c.SessionTTL = d
	}

	ints := map[string]*int{
		"WORKER_COUNT": &c.WorkerCount,
		"QUEUE_SIZE":   &c.QueueSize,
	}
	for key, dst := range ints {
		if v, ok := os.LookupEnv(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("parse %s: %w", key, err)
			}
			*dst = n
		}
	}
	return nil
}

func (c Config) Validate() error {
	switch c.Store {
	case StoreSQL, StoreMemory:
	default:
		return fmt.Errorf("unknown store mode %q", c.Store)
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.SessionTTL <= 0 {
		return errors.New("session ttl must be positive")
	}
	if c.WorkerCount <= 0 || c.QueueSize <= 0 {
		return errors.New("worker count and queue size must be positive")
	}
	return nil
}
