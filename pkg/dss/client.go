package dss

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/openutm/flightdeck/internal/logger"
)

// Config configures the DSS client.
type Config struct {
	// BaseURL is the root of the DSS, e.g. https://dss.example.com.
	BaseURL string `mapstructure:"base_url"`

	// Audience overrides the token audience. Defaults to the BaseURL host.
	Audience string `mapstructure:"audience"`

	// Timeout bounds every DSS request.
	Timeout time.Duration `mapstructure:"timeout"`

	Auth AuthConfig `mapstructure:"auth"`
}

// DefaultConfig returns the default DSS client settings.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:8082",
		Timeout: 10 * time.Second,
	}
}

// Client talks to the DSS.
type Client struct {
	baseURL    string
	audience   string
	httpClient *http.Client
	tokens     *TokenProvider
}

// NewClient creates a DSS client using the token provider for auth.
func NewClient(config Config, tokens *TokenProvider) (*Client, error) {
	audience := config.Audience
	if audience == "" {
		derived, err := AudienceFromURL(config.BaseURL)
		if err != nil {
			return nil, err
		}
		audience = derived
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    config.BaseURL,
		audience:   audience,
		httpClient: &http.Client{Timeout: timeout},
		tokens:     tokens,
	}, nil
}

// AudienceFromURL derives the token audience from a base URL host.
func AudienceFromURL(baseURL string) (string, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Host == "" {
		return "", fmt.Errorf("invalid base url %q", baseURL)
	}
	return parsed.Hostname(), nil
}

// do performs an authenticated HTTP request against the DSS and decodes the
// response. A 409 is decoded into a ConflictError.
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	token, err := c.tokens.Token(ctx, c.audience, TokenTypeSCD)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrUnavailable, method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	logger.DebugCtx(ctx, "DSS request completed",
		"method", method,
		"path", path,
		"status_code", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode == http.StatusConflict {
		var conflict AirspaceConflictResponse
		_ = json.Unmarshal(respBody, &conflict)
		return &ConflictError{Message: conflict.Message, Missing: conflict.MissingOperationalIntents}
	}
	if resp.StatusCode >= 400 {
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
