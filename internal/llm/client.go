// Package llm wraps an OpenAI-compatible API for embeddings and chat
// completions.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/deskmate/internal/security"
)

const (
	RoleSystem    = openai.ChatMessageRoleSystem
	RoleUser      = openai.ChatMessageRoleUser
	RoleAssistant = openai.ChatMessageRoleAssistant

	DefaultTimeout = 30 * time.Second
)

// ErrEmptyResponse is returned when the API answers without content
var ErrEmptyResponse = errors.New("llm returned no choices")

// Message is one chat message
type Message struct {
	Role    string
	Content string
}

// ChatRequest is a chat completion call
type ChatRequest struct {
	Messages    []Message
	Temperature float32
	MaxTokens   int
}

// Config holds API connection settings
type Config struct {
	APIKey         string        `yaml:"api_key"`
	BaseURL        string        `yaml:"base_url"`
	EmbeddingModel string        `yaml:"embedding_model"`
	ChatModel      string        `yaml:"chat_model"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxTokens      int           `yaml:"max_tokens"`
}

// Client calls the embeddings and chat completion endpoints. Calls are
// never retried.
type Client struct {
	api    *openai.Client
	config Config
	logger *slog.Logger
}

// NewClient creates a Client
func NewClient(config Config, logger *slog.Logger) *Client {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.EmbeddingModel == "" {
		config.EmbeddingModel = string(openai.SmallEmbedding3)
	}
	if config.ChatModel == "" {
		config.ChatModel = openai.GPT4oMini
	}
	if logger == nil {
		logger = slog.Default()
	}

	apiConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		apiConfig.BaseURL = config.BaseURL
	}
	apiConfig.HTTPClient = security.SecureHTTPClient(config.Timeout)

	return &Client{
		api:    openai.NewClientWithConfig(apiConfig),
		config: config,
		logger: logger,
	}
}

// Model returns the embedding model name
func (c *Client) Model() string {
	return c.config.EmbeddingModel
}

// ChatModel returns the chat model name
func (c *Client) ChatModel() string {
	return c.config.ChatModel
}

// Embed converts text to a vector
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(c.config.EmbeddingModel),
	})
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, ErrEmptyResponse
	}

	c.logger.Debug("embedding created",
		"model", c.config.EmbeddingModel,
		"dimensions", len(resp.Data[0].Embedding),
		"duration", time.Since(start))
	return resp.Data[0].Embedding, nil
}

// Chat runs a chat completion and returns the first choice's content
func (c *Client) Chat(ctx context.Context, req ChatRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.config.MaxTokens
	}

	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.config.ChatModel,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	c.logger.Debug("chat completion finished",
		"model", c.config.ChatModel,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"duration", time.Since(start))
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
