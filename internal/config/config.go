package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

type LLMConfig struct {
	Name           string `json:"name"`
	URL            string `json:"url"`
	Model          string `json:"model"`
	APIKey         string `json:"api_key"`
	ContextSize    int    `json:"context_size"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	MaxConcurrent  int    `json:"max_concurrent"`
	QueueSize      int    `json:"queue_size"`
	Breaker        struct {
		MaxFailures  int `json:"max_failures"`
		ResetSeconds int `json:"reset_seconds"`
	} `json:"breaker"`
}

// Timeout returns the per-call classifier timeout
func (l LLMConfig) Timeout() time.Duration {
	return time.Duration(l.TimeoutSeconds) * time.Second
}

type JourneyConfig struct {
	CatalogPath           string `json:"catalog_path"`
	SwitchThreshold       int    `json:"switch_threshold"`
	RefreshTimeoutSeconds int    `json:"refresh_timeout_seconds"`
	// HistorySource selects the conversation transcript provider: "postgres" or "memory"
	HistorySource string `json:"history_source"`
	SeedMembers   bool   `json:"seed_members"`
	SeedSignals   bool   `json:"seed_signals"`
}

// RefreshTimeout bounds a whole refresh, lock wait included
func (j JourneyConfig) RefreshTimeout() time.Duration {
	return time.Duration(j.RefreshTimeoutSeconds) * time.Second
}

type Config struct {
	Server struct {
		Host      string `json:"host"`
		Port      int    `json:"port"`
		Subpath   string `json:"subpath"`
		JWTSecret string `json:"jwtSecret"`
	} `json:"server"`
	Auth struct {
		Username     string `json:"username"`
		PasswordHash string `json:"password_hash"`
	} `json:"auth"`
	Postgres struct {
		DSN string `json:"dsn"`
	} `json:"postgres"`
	SQLite struct {
		Path string `json:"path"`
	} `json:"sqlite"`
	Redis struct {
		Addr     string `json:"addr"`
		Password string `json:"password"`
		DB       int    `json:"db"`
	} `json:"redis"`
	LLM     LLMConfig     `json:"llm"`
	Journey JourneyConfig `json:"journey"`
	Qdrant  struct {
		URL        string `json:"url"`
		Collection string `json:"collection"`
		APIKey     string `json:"api_key"`
	} `json:"qdrant"`
	Embedding struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	} `json:"embedding"`
	Knowledge struct {
		Dir       string `json:"dir"`
		ChunkSize int    `json:"chunk_size"`
		Overlap   int    `json:"overlap"`
		TopK      int    `json:"top_k"`
	} `json:"knowledge"`
	Kafka struct {
		Brokers []string `json:"brokers"`
		Topic   string   `json:"topic"`
	} `json:"kafka"`
	Churn struct {
		DSN string `json:"dsn"`
	} `json:"churn"`
	Scheduler struct {
		Enabled     bool   `json:"enabled"`
		Spec        string `json:"spec"`
		Parallelism int    `json:"parallelism"`
	} `json:"scheduler"`
	LogLevel string `json:"log_level"`
}

var (
	once   sync.Once
	cfg    *Config
	cfgErr error
)

// LoadConfig reads config.json from disk (singleton), then applies JOURNEY_* environment overrides
func LoadConfig(path string) (*Config, error) {
	once.Do(func() {
		raw, err := os.ReadFile(path)
		if err != nil {
			cfgErr = fmt.Errorf("failed to read config file: %w", err)
			return
		}
		c, err := Parse(raw)
		if err != nil {
			cfgErr = err
			return
		}
		cfg = c
	})
	return cfg, cfgErr
}

// Parse decodes and validates a config document without touching the singleton
func Parse(raw []byte) (*Config, error) {
	var c Config
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("invalid config format: %w", err)
	}
	applyDefaults(&c)
	applyEnv(&c)
	if err := validate(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

func applyDefaults(c *Config) {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Auth.Username == "" {
		c.Auth.Username = "operator"
	}
	if c.LLM.ContextSize == 0 {
		c.LLM.ContextSize = 4096
	}
	if c.LLM.TimeoutSeconds == 0 {
		c.LLM.TimeoutSeconds = 30
	}
	if c.LLM.MaxConcurrent == 0 {
		c.LLM.MaxConcurrent = 2
	}
	if c.LLM.QueueSize == 0 {
		c.LLM.QueueSize = 100
	}
	if c.LLM.Breaker.MaxFailures == 0 {
		c.LLM.Breaker.MaxFailures = 5
	}
	if c.LLM.Breaker.ResetSeconds == 0 {
		c.LLM.Breaker.ResetSeconds = 60
	}
	if c.Journey.SwitchThreshold == 0 {
		c.Journey.SwitchThreshold = 2
	}
	if c.Journey.RefreshTimeoutSeconds == 0 {
		c.Journey.RefreshTimeoutSeconds = 60
	}
	if c.Journey.HistorySource == "" {
		c.Journey.HistorySource = "postgres"
	}
	if c.Qdrant.Collection == "" {
		c.Qdrant.Collection = "member_memories"
	}
	if c.Knowledge.ChunkSize == 0 {
		c.Knowledge.ChunkSize = 800
	}
	if c.Knowledge.Overlap == 0 {
		c.Knowledge.Overlap = c.Knowledge.ChunkSize / 5
	}
	if c.Knowledge.TopK == 0 {
		c.Knowledge.TopK = 3
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "journey-events"
	}
	if c.Scheduler.Spec == "" {
		c.Scheduler.Spec = "@every 30m"
	}
	if c.Scheduler.Parallelism == 0 {
		c.Scheduler.Parallelism = 4
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func applyEnv(c *Config) {
	if v := os.Getenv("JOURNEY_LLM_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("JOURNEY_POSTGRES_DSN"); v != "" {
		c.Postgres.DSN = v
	}
	if v := os.Getenv("JOURNEY_REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("JOURNEY_KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("JOURNEY_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("JOURNEY_JWT_SECRET"); v != "" {
		c.Server.JWTSecret = v
	}
}

func validate(c *Config) error {
	if c.Server.JWTSecret == "" {
		return errors.New("jwtSecret must be set in config")
	}
	if c.Journey.SwitchThreshold < 1 {
		return fmt.Errorf("journey.switch_threshold must be at least 1, got %d", c.Journey.SwitchThreshold)
	}
	switch c.Journey.HistorySource {
	case "postgres", "memory":
	default:
		return fmt.Errorf("journey.history_source must be postgres or memory, got %q", c.Journey.HistorySource)
	}
	if c.Knowledge.Overlap >= c.Knowledge.ChunkSize {
		return fmt.Errorf("knowledge.overlap (%d) must be smaller than chunk_size (%d)", c.Knowledge.Overlap, c.Knowledge.ChunkSize)
	}
	return nil
}

// GetConfig returns the loaded config (must call LoadConfig first)
func GetConfig() *Config {
	return cfg
}

// ResetConfigForTest resets the singleton state (for testing only)
func ResetConfigForTest() {
	once = sync.Once{}
	cfg = nil
	cfgErr = nil
}
