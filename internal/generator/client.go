package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

const defaultTimeout = 60 * time.Second

// ClientConfig configures the OpenAI-compatible client.
type ClientConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	ImageModel string
	ImageSize  string
	Timeout    time.Duration
}

// Client talks to an OpenAI-compatible chat completions and image API.
type Client struct {
	config     ClientConfig
	baseURL    *url.URL
	httpClient *http.Client
}

// NewClient creates a client. BaseURL and Model are required.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("generator base URL is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("generator model is required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid generator base URL: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		config:     cfg,
		baseURL:    base,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Complete sends one system+user exchange and returns the trimmed assistant reply.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	reqBody := chatCompletionRequest{
		Model: c.config.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
	}
	var resp chatCompletionResponse
	if err := c.post(ctx, "chat/completions", reqBody, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// GenerateImage renders prompt with the configured image model and returns
// the resulting image URL.
func (c *Client) GenerateImage(ctx context.Context, prompt string) (string, error) {
	reqBody := imageGenerationRequest{
		Model:   c.config.ImageModel,
		Prompt:  prompt,
		Size:    c.config.ImageSize,
		Quality: "standard",
		N:       1,
	}
	var resp imageGenerationResponse
	if err := c.post(ctx, "images/generations", reqBody, &resp); err != nil {
		return "", err
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return "", fmt.Errorf("image generation returned no image")
	}
	return resp.Data[0].URL, nil
}

func (c *Client) post(ctx context.Context, endpoint string, reqBody, out interface{}) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	u := c.baseURL.JoinPath(endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		var apiErr errorResponse
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("%s returned %d: %s", endpoint, resp.StatusCode, apiErr.Error.Message)
		}
		return fmt.Errorf("%s returned %d: %s", endpoint, resp.StatusCode, string(data))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// LoadAPIKey reads and trims the API key stored at path.
func LoadAPIKey(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read API key: %w", err)
	}
	key := strings.TrimSpace(string(data))
	if key == "" {
		return "", fmt.Errorf("API key file %s is empty", path)
	}
	return key, nil
}
