package llm

import (
	"context"
	"net/http"
	"strings"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAI speaks the chat completions API. Any compatible endpoint works
// through BaseURL.
type OpenAI struct {
	APIKey     string
	Model      string
	BaseURL    string
	MaxRetries int
	HTTPClient *http.Client
}

type openAIRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *OpenAI) Complete(ctx context.Context, req Request) (string, error) {
	body := openAIRequest{
		Model:       c.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.JSONMode {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	headers := map[string]string{"Authorization": "Bearer " + c.APIKey}
	var resp openAIResponse
	if err := postJSON(ctx, c.client(), "openai", c.endpoint(), headers, c.retries(), body, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", &ServiceError{Provider: "openai", Message: "no choices in response"}
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *OpenAI) endpoint() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if base == "" {
		base = defaultOpenAIBaseURL
	}
	return base + "/chat/completions"
}

func (c *OpenAI) client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return httpClient(0)
}

func (c *OpenAI) retries() int {
	if c.MaxRetries < 0 {
		return 0
	}
	if c.MaxRetries == 0 {
		return defaultMaxRetries
	}
	return c.MaxRetries
}
