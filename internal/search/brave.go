// Package search queries a web search API and renders the hits as plain
// text for prompts.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mtzanidakis/agentcrew/internal/config"
)

var ErrNotConfigured = errors.New("search api key not configured")

const noResults = "No results found."

// Searcher returns formatted search results for query.
type Searcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// Brave queries the Brave web search API.
type Brave struct {
	apiKey  string
	baseURL string
	count   int
	client  *http.Client
}

func NewBrave(cfg config.SearchConfig) *Brave {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	count := cfg.Count
	if count <= 0 {
		count = 5
	}
	return &Brave{
		apiKey:  cfg.APIKey,
		baseURL: cfg.BaseURL,
		count:   count,
		client:  &http.Client{Timeout: timeout},
	}
}

type braveResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}

func (b *Brave) Search(ctx context.Context, query string) (string, error) {
	if b.apiKey == "" {
		return "", ErrNotConfigured
	}

	u, err := url.Parse(b.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse search url: %w", err)
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("count", strconv.Itoa(b.count))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", b.apiKey)

	res, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("search request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
		return "", fmt.Errorf("search: status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}

	var out braveResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode search response: %w", err)
	}

	var sb strings.Builder
	for i, r := range out.Web.Results {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "Title: %s\nURL: %s\nSnippet: %s\n---", orNA(r.Title), orNA(r.URL), orNA(r.Description))
	}
	if sb.Len() == 0 {
		return noResults, nil
	}
	return sb.String(), nil
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
