// Package identity implements the identity provider API client. The
// provider is the system of record for learner accounts and their
// subscription plans; this package fetches entitlements and resolves
// them into tiers through the entitlement catalog.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/medprep-hub/assessment-engine/pkg/circuitbreaker"
	"github.com/medprep-hub/assessment-engine/pkg/logger"
	"github.com/medprep-hub/assessment-engine/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig contains configuration for the identity API client.
type ClientConfig struct {
	// BaseURL is the identity API base URL.
	BaseURL string

	// APIKey authenticates this service with the provider.
	APIKey string

	// Timeout is the HTTP request timeout.
	Timeout time.Duration

	// Logger for structured logging.
	Logger *logger.Logger

	// Debug enables request-level debug logging.
	Debug bool
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(baseURL string) ClientConfig {
	return ClientConfig{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client is the identity provider API client. Requests run through a
// retrier for transient failures and a circuit breaker that opens after
// repeated provider outages.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	log        *logger.Logger
	retrier    *retry.Retrier
	breaker    *circuitbreaker.CircuitBreaker
}

// NewClient creates a new identity API client.
func NewClient(config ClientConfig) *Client {
	if config.Logger == nil {
		config.Logger = logger.Default()
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}

	log := config.Logger.With(logger.Component("identity-client"))

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		log:     log,
		retrier: retry.IdentityAPIRetrier(),
		breaker: circuitbreaker.IdentityAPIBreaker(func(name string, from, to circuitbreaker.State) {
			log.Warn("circuit breaker state change",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		}),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ENTITLEMENT OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// GetEntitlement fetches a learner's current entitlement.
func (c *Client) GetEntitlement(ctx context.Context, learnerID string) (*EntitlementDTO, error) {
	path := fmt.Sprintf("/api/v1/learners/%s/entitlement", url.PathEscape(learnerID))

	var response APIResponse[EntitlementDTO]
	if err := c.doRequest(ctx, http.MethodGet, path, &response); err != nil {
		return nil, fmt.Errorf("get entitlement %s: %w", learnerID, err)
	}

	if !response.Success {
		return nil, fmt.Errorf("identity api error: %s", response.Error)
	}

	return &response.Data, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HTTP REQUEST HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// doRequest performs an HTTP request through the circuit breaker and
// retrier. Client errors (4xx) are permanent and never retried.
func (c *Client) doRequest(ctx context.Context, method, path string, result interface{}) error {
	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.retrier.Do(ctx, func(ctx context.Context) error {
			return c.doSingleRequest(ctx, method, path, result)
		})
	})
}

// doSingleRequest performs a single HTTP request.
func (c *Client) doSingleRequest(ctx context.Context, method, path string, result interface{}) error {
	fullURL := c.config.BaseURL + path

	req, err := http.NewRequestWithContext(ctx, method, fullURL, nil)
	if err != nil {
		return retry.Permanent(fmt.Errorf("create request: %w", err))
	}

	req.Header.Set("Accept", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	if c.config.Debug {
		c.log.Debug("identity api request",
			logger.String("method", method),
			logger.String("path", path),
		)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIErrorDTO{Status: resp.StatusCode}
		if err := json.Unmarshal(respBody, apiErr); err != nil || apiErr.Message == "" {
			apiErr.Code = "UNKNOWN"
			apiErr.Message = fmt.Sprintf("status %d", resp.StatusCode)
		}

		if apiErr.IsServerError() || resp.StatusCode == http.StatusTooManyRequests {
			return apiErr
		}
		return retry.Permanent(apiErr)
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return retry.Permanent(fmt.Errorf("unmarshal response: %w", err))
		}
	}

	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH AND STATUS
// ══════════════════════════════════════════════════════════════════════════════

// IsHealthy checks if the identity API is reachable.
func (c *Client) IsHealthy(ctx context.Context) bool {
	err := c.doSingleRequest(ctx, http.MethodGet, "/health", nil)
	return err == nil
}

// BreakerState returns the current circuit breaker state.
func (c *Client) BreakerState() circuitbreaker.State {
	return c.breaker.State()
}

// Reset closes the circuit breaker.
func (c *Client) Reset() {
	c.breaker.Reset()
}
