// Package gamestatus checks whether a named game server is online via the
// public server-list endpoint.
package gamestatus

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"go.uber.org/zap"
)

// Client queries a JSON server-list endpoint.
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a server-list client for endpoint.
func NewClient(endpoint string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type serverEntry struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

// IsUp reports whether the named server appears in the public list with an
// online status. The fetch is retried on transient failure, three attempts
// total.
func (c *Client) IsUp(ctx context.Context, name string) (bool, error) {
	var servers []serverEntry

	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, http.NoBody)
			if err != nil {
				return retry.Unrecoverable(err)
			}

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("HTTP %d", resp.StatusCode)
			}

			if err := json.NewDecoder(resp.Body).Decode(&servers); err != nil {
				return fmt.Errorf("failed to decode server list: %w", err)
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Warn("retrying server list fetch", zap.Uint("attempt", n), zap.Error(err))
		}),
	)
	if err != nil {
		return false, fmt.Errorf("failed to fetch server list: %w", err)
	}

	for _, server := range servers {
		if strings.EqualFold(server.Name, name) {
			return strings.EqualFold(server.Status, "online"), nil
		}
	}
	return false, nil
}
