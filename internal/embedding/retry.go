package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	maxAttempts    = 3
	initialBackoff = 500 * time.Millisecond
	httpTimeout    = 120 * time.Second
)

// postJSON sends payload to url with up to maxAttempts attempts. Rate limits
// (429) and server errors (5xx) back off exponentially and retry; 401/403
// fail immediately with ErrAuth. On success the response body is decoded
// into out.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, payload, out interface{}, logger *zap.Logger) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	backoff := initialBackoff
	var lastStatus int
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warn("embedding request failed",
				zap.Int("attempt", attempt), zap.Error(err))
			lastStatus = 0
		} else {
			respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
			_ = resp.Body.Close()
			switch {
			case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
				return fmt.Errorf("status %d: %w", resp.StatusCode, ErrAuth)
			case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
				logger.Warn("embedding request retryable failure",
					zap.Int("attempt", attempt), zap.Int("status", resp.StatusCode))
				lastStatus = resp.StatusCode
			case resp.StatusCode != http.StatusOK:
				return fmt.Errorf("embedding request failed with status %d: %s",
					resp.StatusCode, truncateBody(respBody))
			default:
				if readErr != nil {
					return fmt.Errorf("read response: %w", readErr)
				}
				if err := json.Unmarshal(respBody, out); err != nil {
					return fmt.Errorf("decode response: %w", err)
				}
				return nil
			}
		}

		if attempt < maxAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}
	return fmt.Errorf("after %d attempts (last status %d): %w", maxAttempts, lastStatus, ErrTransient)
}

func truncateBody(b []byte) string {
	const max = 512
	if len(b) > max {
		b = b[:max]
	}
	return string(b)
}
