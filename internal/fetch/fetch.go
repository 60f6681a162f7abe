// Package fetch performs the HTTP calls of api_call tasks and reduces the
// responses to text.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mtzanidakis/agentcrew/internal/config"
	"github.com/mtzanidakis/agentcrew/internal/plan"
)

type Client struct {
	client    *http.Client
	maxBytes  int64
	userAgent string
}

func New(cfg config.FetchConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 5 << 20
	}
	return &Client{
		client:    &http.Client{Timeout: timeout},
		maxBytes:  maxBytes,
		userAgent: cfg.UserAgent,
	}
}

// Do performs spec and returns the response body as text. HTML is reduced
// to its visible text and PDF to its page text; anything else is returned
// as is. Non-2xx responses are errors.
func (c *Client) Do(ctx context.Context, spec plan.APIRequestSpec) (string, error) {
	if strings.TrimSpace(spec.URL) == "" {
		return "", fmt.Errorf("fetch: missing url")
	}

	u, err := url.Parse(spec.URL)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", spec.URL, err)
	}
	if len(spec.Params) > 0 {
		q := u.Query()
		for k, v := range spec.Params {
			q.Set(k, fmt.Sprint(v))
		}
		u.RawQuery = q.Encode()
	}

	method := strings.ToUpper(strings.TrimSpace(spec.Method))
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if len(spec.Data) > 0 && string(spec.Data) != "null" {
		body = bytes.NewReader(spec.Data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	res, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s %s: %w", method, u.Redacted(), err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, c.maxBytes))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", u.Redacted(), err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return "", fmt.Errorf("%s %s: status %d", method, u.Redacted(), res.StatusCode)
	}

	mediaType, _, _ := mime.ParseMediaType(res.Header.Get("Content-Type"))
	switch {
	case mediaType == "text/html" || mediaType == "application/xhtml+xml":
		return HTMLToText(string(data))
	case mediaType == "application/pdf" || bytes.HasPrefix(data, []byte("%PDF-")):
		return PDFToText(data)
	default:
		return string(data), nil
	}
}
