package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/deskmate/internal/cache"
	"github.com/deskmate/internal/feature"
	"github.com/deskmate/internal/kafka"
	"github.com/deskmate/internal/knowledgebase"
	"github.com/deskmate/internal/llm"
	"github.com/deskmate/internal/security"
	"github.com/deskmate/internal/store"
	"github.com/deskmate/internal/telemetry"
)

const (
	DefaultPath = "config/config.yaml"

	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config represents the overall application configuration
type Config struct {
	Version    string                  `yaml:"version"`
	Storage    string                  `yaml:"storage"`
	API        APIConfig               `yaml:"api"`
	Database   store.PostgresConfig    `yaml:"database"`
	LLM        llm.Config              `yaml:"llm"`
	Retrieval  knowledgebase.Config    `yaml:"retrieval"`
	Extraction ExtractionConfig        `yaml:"extraction"`
	Redis      cache.RedisConfig       `yaml:"redis"`
	Kafka      kafka.Config            `yaml:"kafka"`
	Sweeper    SweeperConfig           `yaml:"sweeper"`
	Features   map[string]feature.Flag `yaml:"features"`
	Logging    telemetry.LoggingConfig `yaml:"logging"`
	Tracing    telemetry.TracingConfig `yaml:"tracing"`
}

// APIConfig represents HTTP gateway configuration
type APIConfig struct {
	Host            string             `yaml:"host"`
	Port            int                `yaml:"port"`
	ReadTimeout     time.Duration      `yaml:"read_timeout"`
	WriteTimeout    time.Duration      `yaml:"write_timeout"`
	IdleTimeout     time.Duration      `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration      `yaml:"shutdown_timeout"`
	AllowedOrigins  []string           `yaml:"allowed_origins"`
	MaxRequestSize  int64              `yaml:"max_request_size"`
	MaxUploadSize   int64              `yaml:"max_upload_size"`
	TLS             security.TLSConfig `yaml:"tls"`
}

// Addr returns host:port for the listener
func (a APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// ExtractionConfig tunes the PDF pipeline
type ExtractionConfig struct {
	MinTextLength   int  `yaml:"min_text_length"`
	LLMSegmentation bool `yaml:"llm_segmentation"`
}

// SweeperConfig controls the re-embed worker
type SweeperConfig struct {
	Interval time.Duration `yaml:"interval"`
	// WatchEvents triggers a sweep on embedding failures seen on Kafka
	WatchEvents bool `yaml:"watch_events"`
}

// Default returns the configuration used for every field the file omits
func Default() *Config {
	return &Config{
		Version: "1",
		Storage: StoragePostgres,
		API: APIConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    90 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			AllowedOrigins:  []string{"*"},
			MaxRequestSize:  1 << 20,
			MaxUploadSize:   20 << 20,
		},
		Database: store.PostgresConfig{
			MaxConns:        10,
			MaxConnLifetime: time.Hour,
			MigrateOnStart:  true,
		},
		LLM: llm.Config{
			EmbeddingModel: "text-embedding-3-small",
			ChatModel:      "gpt-4o-mini",
			Timeout:        llm.DefaultTimeout,
			MaxTokens:      600,
		},
		Retrieval:  knowledgebase.DefaultConfig(),
		Extraction: ExtractionConfig{MinTextLength: 50},
		Redis: cache.RedisConfig{
			Addr:   "localhost:6379",
			Prefix: "deskmate",
			TTL:    24 * time.Hour,
		},
		Kafka:   kafka.DefaultConfig(),
		Sweeper: SweeperConfig{Interval: 5 * time.Minute},
		Logging: telemetry.LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Tracing: telemetry.TracingConfig{
			ServiceName: "deskmate",
			Environment: "development",
			SampleRate:  1,
		},
	}
}

// Load reads the YAML file at path, or CONFIG_PATH, or DefaultPath.
// ${VAR} references are expanded before parsing and OPENAI_API_KEY,
// DATABASE_URL, REDIS_ADDR and KAFKA_BROKERS override the file.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
}

// KnowledgeConfig merges the retrieval and extraction sections
func (c *Config) KnowledgeConfig() knowledgebase.Config {
	kc := c.Retrieval
	kc.MinTextLength = c.Extraction.MinTextLength
	kc.LLMSegmentation = c.Extraction.LLMSegmentation
	return kc
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
