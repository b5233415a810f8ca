// Package openai provides text-generation and embedding capabilities
// backed by any API that implements the OpenAI chat completions and
// embeddings interface (Mistral, Groq, DeepSeek, vLLM, LiteLLM, etc.)
// via a configurable base_url.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/flemzord/tiermem/internal/capability"
)

// Compile-time capability checks.
var (
	_ capability.Generator = (*Client)(nil)
	_ capability.Embedder  = (*Client)(nil)
)

// Config holds the connection settings for an OpenAI-compatible backend.
type Config struct {
	BaseURL        string
	APIKey         string
	APIKeyEnv      string
	Model          string
	EmbeddingModel string
	Timeout        time.Duration
}

func (c *Config) defaults() {
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
}

func (c *Config) validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("provider: base_url is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("provider: base_url is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("provider: base_url scheme must be http or https, got %q", u.Scheme)
	}
	if c.APIKey == "" {
		return fmt.Errorf("provider: one of api_key or api_key_env is required")
	}
	if c.Model == "" && c.EmbeddingModel == "" {
		return fmt.Errorf("provider: at least one of model or embedding_model is required")
	}
	return nil
}

// Client talks to an OpenAI-compatible backend. It implements the
// Generator capability when Model is set and the Embedder capability
// when EmbeddingModel is set.
type Client struct {
	config Config
	client *http.Client
	logger *slog.Logger
}

// New creates a Client, resolving the API key from the environment when
// api_key_env is set.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.defaults()

	if cfg.APIKey == "" && cfg.APIKeyEnv != "" {
		cfg.APIKey = os.Getenv(cfg.APIKeyEnv)
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("provider: environment variable %s is empty", cfg.APIKeyEnv)
		}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &Client{
		config: cfg,
		// A response-header timeout instead of a global client timeout:
		// per-request context handles overall cancellation.
		client: &http.Client{
			Transport: &http.Transport{
				ResponseHeaderTimeout: cfg.Timeout,
			},
		},
		logger: logger.With("component", "provider"),
	}, nil
}

// CanGenerate reports whether a chat model is configured.
func (c *Client) CanGenerate() bool { return c.config.Model != "" }

// CanEmbed reports whether an embedding model is configured.
func (c *Client) CanEmbed() bool { return c.config.EmbeddingModel != "" }

// openAI wire types for JSON serialization.

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Generate sends a chat completion request and returns the first
// choice's content.
func (c *Client) Generate(ctx context.Context, system, prompt string) (string, error) {
	if c.config.Model == "" {
		return "", fmt.Errorf("provider: no chat model configured")
	}

	var messages []chatMessage
	if system != "" {
		messages = append(messages, chatMessage{Role: "system", Content: system})
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt})

	var out chatResponse
	err := c.doRequest(ctx, "/chat/completions", chatRequest{
		Model:    c.config.Model,
		Messages: messages,
	}, &out)
	if err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("provider: completion returned no choices")
	}
	return out.Choices[0].Message.Content, nil
}

// Embed returns the embedding vector for a single text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in one request. The result order matches the
// input order regardless of the order the backend returns data in.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if c.config.EmbeddingModel == "" {
		return nil, fmt.Errorf("provider: no embedding model configured")
	}
	if len(texts) == 0 {
		return nil, nil
	}

	var out embeddingResponse
	err := c.doRequest(ctx, "/embeddings", embeddingRequest{
		Model: c.config.EmbeddingModel,
		Input: texts,
	}, &out)
	if err != nil {
		return nil, err
	}
	if len(out.Data) != len(texts) {
		return nil, fmt.Errorf("provider: embeddings returned %d vectors for %d inputs", len(out.Data), len(texts))
	}

	sort.Slice(out.Data, func(i, j int) bool { return out.Data[i].Index < out.Data[j].Index })
	vecs := make([][]float32, len(out.Data))
	for i, d := range out.Data {
		vecs[i] = d.Embedding
	}
	return vecs, nil
}

// doRequest executes an HTTP POST and decodes the JSON response.
func (c *Client) doRequest(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("provider: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("provider: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		// Caller cancellation is not a provider failure.
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %w", ErrProviderDown, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return handleErrorResponse(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("provider: decode response: %w", err)
	}
	return nil
}

// maxErrorBodySize caps how much of an error response body is read.
const maxErrorBodySize = 4096

// handleErrorResponse maps HTTP error status codes to sentinel errors.
func handleErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrRateLimit, body)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: HTTP %d: %s", ErrProviderDown, resp.StatusCode, body)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: HTTP %d: %s", ErrAuthentication, resp.StatusCode, body)
	default:
		return fmt.Errorf("provider: unexpected status %d: %s", resp.StatusCode, body)
	}
}
