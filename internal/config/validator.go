package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Validate checks every section and returns the first problem found
func (c *Config) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("version is required")
	}

	if err := c.validateAPI(); err != nil {
		return fmt.Errorf("api config error: %w", err)
	}
	if err := c.validateStorage(); err != nil {
		return fmt.Errorf("database config error: %w", err)
	}
	if c.LLM.APIKey == "" {
		return fmt.Errorf("llm config error: api_key is required (or set OPENAI_API_KEY)")
	}
	if err := c.validateRetrieval(); err != nil {
		return fmt.Errorf("retrieval config error: %w", err)
	}
	if c.Extraction.MinTextLength < 0 {
		return fmt.Errorf("extraction config error: min_text_length cannot be negative")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis config error: addr is required when redis is enabled")
	}
	if err := c.validateKafka(); err != nil {
		return fmt.Errorf("kafka config error: %w", err)
	}
	if err := c.validateLogging(); err != nil {
		return fmt.Errorf("logging config error: %w", err)
	}
	if err := c.validateTracing(); err != nil {
		return fmt.Errorf("tracing config error: %w", err)
	}
	return nil
}

func (c *Config) validateAPI() error {
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	if c.API.MaxRequestSize <= 0 {
		return fmt.Errorf("max_request_size must be greater than 0")
	}
	if c.API.MaxUploadSize < c.API.MaxRequestSize {
		return fmt.Errorf("max_upload_size must be at least max_request_size")
	}
	if c.API.TLS.Enabled && (c.API.TLS.CertFile == "" || c.API.TLS.KeyFile == "") {
		return fmt.Errorf("cert_file and key_file are required when tls is enabled")
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage {
	case StorageMemory:
		return nil
	case StoragePostgres:
	default:
		return fmt.Errorf("invalid storage: %s (must be postgres or memory)", c.Storage)
	}

	if c.Database.URL == "" {
		return fmt.Errorf("url is required (or set DATABASE_URL)")
	}
	u, err := url.Parse(c.Database.URL)
	if err != nil {
		return fmt.Errorf("invalid url format: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return fmt.Errorf("url scheme must be postgres or postgresql, got %q", u.Scheme)
	}
	if c.Database.MaxConns < 0 || (c.Database.MinConns > c.Database.MaxConns && c.Database.MaxConns > 0) {
		return fmt.Errorf("min_conns must not exceed max_conns")
	}
	return nil
}

func (c *Config) validateRetrieval() error {
	r := c.Retrieval
	if r.SimilarityThreshold <= 0 || r.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold must be within (0, 1]")
	}
	if r.StrictThreshold < r.SimilarityThreshold || r.StrictThreshold > 1 {
		return fmt.Errorf("strict_threshold must be between similarity_threshold and 1")
	}
	if r.MaxResults <= 0 || r.BroadContextLimit <= 0 || r.MaxSources <= 0 {
		return fmt.Errorf("max_results, broad_context_limit and max_sources must be greater than 0")
	}
	if r.HistoryWindow < 0 {
		return fmt.Errorf("history_window cannot be negative")
	}
	if r.Temperature < 0 || r.Temperature > 2 {
		return fmt.Errorf("temperature must be within [0, 2]")
	}
	if r.SweepBatchSize <= 0 {
		return fmt.Errorf("sweep_batch_size must be greater than 0")
	}
	return nil
}

func (c *Config) validateKafka() error {
	if !c.Kafka.Enabled {
		return nil
	}
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("brokers are required when kafka is enabled")
	}
	for _, broker := range c.Kafka.Brokers {
		if _, _, err := net.SplitHostPort(broker); err != nil {
			return fmt.Errorf("invalid broker format: %s (expected host:port)", broker)
		}
	}
	if c.Kafka.InteractionsTopic == "" || c.Kafka.KnowledgeTopic == "" {
		return fmt.Errorf("interactions_topic and knowledge_topic are required")
	}
	return nil
}

func (c *Config) validateLogging() error {
	level := strings.ToLower(c.Logging.Level)
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", level)
	}

	format := strings.ToLower(c.Logging.Format)
	if format != "json" && format != "text" {
		return fmt.Errorf("invalid log format: %s (must be json or text)", format)
	}

	output := strings.ToLower(c.Logging.Output)
	validOutputs := map[string]bool{"stdout": true, "stderr": true, "file": true, "both": true}
	if !validOutputs[output] {
		return fmt.Errorf("invalid log output: %s (must be stdout, stderr, file or both)", output)
	}
	if (output == "file" || output == "both") && c.Logging.File == "" {
		return fmt.Errorf("file path is required when output is file or both")
	}
	return nil
}

func (c *Config) validateTracing() error {
	if !c.Tracing.Enabled {
		return nil
	}
	if c.Tracing.JaegerEndpoint == "" {
		return fmt.Errorf("jaeger_endpoint is required when tracing is enabled")
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("sample_rate must be within [0, 1]")
	}
	return nil
}
