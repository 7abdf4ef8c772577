package subgraph

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/n9te9/go-graphql-federation-core/config"
	"go.uber.org/zap"
)

// serviceSDLResponse is the response body from a subgraph's GraphQL endpoint
// when queried with `{ _service { sdl } }`.
type serviceSDLResponse struct {
	Data struct {
		Service struct {
			SDL string `json:"sdl"`
		} `json:"_service"`
	} `json:"data"`
}

var serviceSDLQuery = []byte(`{"query":"{_service{sdl}}"}`)

// fetchSDL fetches the SDL by sending { _service { sdl } } to the subgraph's
// GraphQL endpoint. It tries up to retry.Attempts times, each attempt bounded
// by retry.Timeout.
func (l *Loader) fetchSDL(ctx context.Context, host string, retry config.RetryOption) (string, error) {
	attempts := retry.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	timeout := retry.TimeoutDuration()
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		sdl, err := l.doFetchSDL(ctx, host, timeout)
		if err == nil {
			return sdl, nil
		}
		l.logger.Debug("SDL fetch attempt failed", zap.String("host", host), zap.Int("attempt", i+1), zap.Error(err))
		lastErr = err
	}
	return "", fmt.Errorf("failed to fetch SDL from %s after %d attempt(s): %w", host, attempts, lastErr)
}

// doFetchSDL performs a single SDL fetch attempt.
func (l *Loader) doFetchSDL(ctx context.Context, host string, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, host, bytes.NewReader(serviceSDLQuery))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status code %d from %s", resp.StatusCode, host)
	}

	var svcResp serviceSDLResponse
	if err := json.NewDecoder(resp.Body).Decode(&svcResp); err != nil {
		return "", fmt.Errorf("failed to decode SDL response: %w", err)
	}
	if svcResp.Data.Service.SDL == "" {
		return "", fmt.Errorf("empty SDL returned from %s", host)
	}
	return svcResp.Data.Service.SDL, nil
}
