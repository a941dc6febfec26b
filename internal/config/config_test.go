package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_DefaultsAndExpansion(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("TEST_DB_PASSWORD", "s3cret")

	path := writeConfig(t, `
version: "2"
api:
  port: 9090
database:
  url: postgres://deskmate:${TEST_DB_PASSWORD}@db:5432/deskmate
llm:
  api_key: sk-file
retrieval:
  similarity_threshold: 0.7
  strict_threshold: 0.75
extraction:
  min_text_length: 80
  llm_segmentation: true
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.API.Port != 9090 || cfg.API.Host != "0.0.0.0" || cfg.API.MaxRequestSize != 1<<20 {
		t.Errorf("unexpected api config %+v", cfg.API)
	}
	if !strings.Contains(cfg.Database.URL, ":s3cret@") {
		t.Errorf("env reference not expanded: %s", cfg.Database.URL)
	}
	if cfg.Retrieval.SimilarityThreshold != 0.7 || cfg.Retrieval.MaxResults != 8 || cfg.Retrieval.HistoryWindow != 5 {
		t.Errorf("unexpected retrieval config %+v", cfg.Retrieval)
	}
	if cfg.LLM.Timeout != 30*time.Second || cfg.Logging.Level != "info" {
		t.Errorf("defaults not applied: timeout=%v level=%s", cfg.LLM.Timeout, cfg.Logging.Level)
	}

	kc := cfg.KnowledgeConfig()
	if kc.MinTextLength != 80 || !kc.LLMSegmentation || kc.StrictThreshold != 0.75 {
		t.Errorf("unexpected knowledge config %+v", kc)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("DATABASE_URL", "postgres://env@db/deskmate")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")

	path := writeConfig(t, `
database:
  url: postgres://file@db/deskmate
llm:
  api_key: sk-file
kafka:
  enabled: true
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LLM.APIKey != "sk-env" || cfg.Database.URL != "postgres://env@db/deskmate" {
		t.Errorf("env overrides not applied: %s %s", cfg.LLM.APIKey, cfg.Database.URL)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("brokers = %v", cfg.Kafka.Brokers)
	}
}

func TestLoad_ConfigPathEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-env")
	path := writeConfig(t, "storage: memory\n")
	t.Setenv("CONFIG_PATH", path)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage != StorageMemory {
		t.Errorf("storage = %s", cfg.Storage)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := Load(writeConfig(t, "api: [not, a, map]")); err == nil {
		t.Error("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := Default()
		c.Database.URL = "postgres://u:p@localhost:5432/deskmate"
		c.LLM.APIKey = "sk-test"
		return c
	}
	if err := valid().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad port", func(c *Config) { c.API.Port = 0 }, "port"},
		{"upload smaller than request", func(c *Config) { c.API.MaxUploadSize = 10 }, "max_upload_size"},
		{"missing database url", func(c *Config) { c.Database.URL = "" }, "url is required"},
		{"wrong scheme", func(c *Config) { c.Database.URL = "mysql://db/x" }, "scheme"},
		{"unknown storage", func(c *Config) { c.Storage = "sqlite" }, "invalid storage"},
		{"missing api key", func(c *Config) { c.LLM.APIKey = "" }, "api_key"},
		{"threshold out of range", func(c *Config) { c.Retrieval.SimilarityThreshold = 1.5 }, "similarity_threshold"},
		{"strict below threshold", func(c *Config) { c.Retrieval.StrictThreshold = 0.5 }, "strict_threshold"},
		{"kafka without brokers", func(c *Config) { c.Kafka.Enabled = true }, "brokers"},
		{"kafka bad broker", func(c *Config) { c.Kafka.Enabled = true; c.Kafka.Brokers = []string{"kafka"} }, "host:port"},
		{"redis without addr", func(c *Config) { c.Redis.Enabled = true; c.Redis.Addr = "" }, "addr"},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }, "log level"},
		{"file output without path", func(c *Config) { c.Logging.Output = "file" }, "file path"},
		{"tracing without endpoint", func(c *Config) { c.Tracing.Enabled = true }, "jaeger_endpoint"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}

	mem := valid()
	mem.Storage = StorageMemory
	mem.Database.URL = ""
	if err := mem.Validate(); err != nil {
		t.Errorf("memory storage should not need a database url: %v", err)
	}
}

func TestLoad_ExampleFile(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-example")
	t.Setenv("DATABASE_URL", "postgres://deskmate@localhost:5432/deskmate")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("KAFKA_BROKERS", "")

	cfg, err := Load(filepath.Join("..", "..", DefaultPath))
	if err != nil {
		t.Fatalf("example config does not load: %v", err)
	}
	if cfg.Storage != StoragePostgres || cfg.Sweeper.Interval != 5*time.Minute {
		t.Errorf("unexpected config %+v", cfg)
	}
}
