package llm

import (
	"context"
	"net/http"
	"strings"
)

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com/v1"
	anthropicVersion        = "2023-06-01"
	defaultAnthropicTokens  = 4096
)

type Anthropic struct {
	APIKey     string
	Model      string
	BaseURL    string
	MaxRetries int
	HTTPClient *http.Client
}

type anthropicRequest struct {
	Model       string    `json:"model"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func (c *Anthropic) Complete(ctx context.Context, req Request) (string, error) {
	system, msgs := splitSystem(req.Messages)
	if req.JSONMode {
		system = strings.TrimSpace(system + "\n\nRespond with a single JSON value and nothing else.")
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicTokens
	}

	body := anthropicRequest{
		Model:       c.Model,
		System:      system,
		Messages:    msgs,
		Temperature: req.Temperature,
		MaxTokens:   maxTokens,
	}
	headers := map[string]string{
		"x-api-key":         c.APIKey,
		"anthropic-version": anthropicVersion,
	}

	base := strings.TrimRight(c.BaseURL, "/")
	if base == "" {
		base = defaultAnthropicBaseURL
	}
	client := c.HTTPClient
	if client == nil {
		client = httpClient(0)
	}
	retries := c.MaxRetries
	if retries == 0 {
		retries = defaultMaxRetries
	}

	var resp anthropicResponse
	if err := postJSON(ctx, client, "anthropic", base+"/messages", headers, max(retries, 0), body, &resp); err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, part := range resp.Content {
		if part.Type == "text" {
			sb.WriteString(part.Text)
		}
	}
	if sb.Len() == 0 {
		return "", &ServiceError{Provider: "anthropic", Message: "no text content in response"}
	}
	return sb.String(), nil
}
