package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const defaultMaxRetries = 2

// postJSON sends body to url and decodes a 2xx response into out. Timeouts
// and 408/429/5xx responses are retried with exponential backoff.
func postJSON(ctx context.Context, client *http.Client, provider, url string, headers map[string]string, maxRetries int, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", provider, err)
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			slog.Debug("retrying completion request", "provider", provider, "attempt", attempt, "error", lastErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff(attempt - 1)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("build %s request: %w", provider, err)
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		retry, err := doJSON(client, req, provider, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry {
			return err
		}
	}
	return lastErr
}

func doJSON(client *http.Client, req *http.Request, provider string, out any) (bool, error) {
	res, err := client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return true, fmt.Errorf("%s request: %w", provider, err)
		}
		return false, fmt.Errorf("%s request: %w", provider, err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 200 && res.StatusCode < 300 {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			return false, fmt.Errorf("decode %s response: %w", provider, err)
		}
		return false, nil
	}

	msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	serr := &ServiceError{Provider: provider, StatusCode: res.StatusCode, Message: string(bytes.TrimSpace(msg))}
	return serr.Retryable(), serr
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	if errors.As(err, &te) {
		return te.Timeout()
	}
	return false
}

func backoff(i int) time.Duration {
	return time.Duration(500*(1<<i)) * time.Millisecond
}

func httpClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &http.Client{Timeout: timeout}
}
