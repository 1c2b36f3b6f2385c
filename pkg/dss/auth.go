package dss

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/openutm/flightdeck/internal/logger"
	"github.com/openutm/flightdeck/pkg/kv"
)

// TokenType selects the scope family of a cached access token.
type TokenType string

const (
	// TokenTypeRID covers network remote identification reads.
	TokenTypeRID TokenType = "rid"

	// TokenTypeSCD covers strategic coordination.
	TokenTypeSCD TokenType = "scd"
)

// Scope returns the OAuth scope requested for the token type.
func (t TokenType) Scope() string {
	switch t {
	case TokenTypeRID:
		return "dss.read.identification_service_areas"
	default:
		return "utm.strategic_coordination"
	}
}

// minTokenLife is the remaining validity below which a cached token is
// considered stale and refetched.
const minTokenLife = 2 * time.Minute

// AuthConfig configures the token provider.
type AuthConfig struct {
	// TokenURL is the client-credentials token endpoint of the auth server.
	TokenURL string `mapstructure:"token_url"`

	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
}

// cachedToken is the JSON value stored in the KV cache.
type cachedToken struct {
	AccessToken string `json:"access_token"`
}

// TokenProvider fetches and caches access tokens per audience and token
// type. Tokens live in the KV store so workers share the cache.
type TokenProvider struct {
	config AuthConfig
	store  kv.Store
	now    func() time.Time

	// dummyKey signs self-issued tokens for local development audiences.
	dummyKey []byte
}

// NewTokenProvider returns a provider backed by the KV store.
func NewTokenProvider(config AuthConfig, store kv.Store) *TokenProvider {
	return &TokenProvider{
		config:   config,
		store:    store,
		now:      time.Now,
		dummyKey: []byte("flightdeck-dummy-signing-key"),
	}
}

func cacheKey(audience string, tokenType TokenType) string {
	return fmt.Sprintf("%s_auth_%s_token", audience, tokenType)
}

// isLocalAudience reports whether the audience is a development host for
// which tokens are self-issued instead of fetched.
func isLocalAudience(audience string) bool {
	host := audience
	if idx := strings.Index(host, ":"); idx >= 0 {
		host = host[:idx]
	}
	switch host {
	case "localhost", "host.docker.internal", "127.0.0.1", "dss", "local-dss":
		return true
	}
	return false
}

// Token returns a valid access token for the audience, reusing the cached
// one when it still has at least two minutes of life.
func (p *TokenProvider) Token(ctx context.Context, audience string, tokenType TokenType) (string, error) {
	key := cacheKey(audience, tokenType)

	if raw, err := p.store.Get(ctx, key); err == nil {
		var cached cachedToken
		if json.Unmarshal([]byte(raw), &cached) == nil && cached.AccessToken != "" {
			if expiry, ok := tokenExpiry(cached.AccessToken); ok && expiry.Sub(p.now()) >= minTokenLife {
				return cached.AccessToken, nil
			}
		}
	}

	token, expiry, err := p.fetch(ctx, audience, tokenType)
	if err != nil {
		return "", err
	}

	data, _ := json.Marshal(cachedToken{AccessToken: token})
	ttl := expiry.Sub(p.now())
	if ttl > 0 {
		if err := p.store.Set(ctx, key, string(data), ttl); err != nil {
			logger.WarnCtx(ctx, "Failed to cache access token", "audience", audience, logger.Err(err))
		}
	}
	return token, nil
}

func (p *TokenProvider) fetch(ctx context.Context, audience string, tokenType TokenType) (string, time.Time, error) {
	if isLocalAudience(audience) {
		return p.selfIssue(audience, tokenType)
	}

	config := &clientcredentials.Config{
		ClientID:     p.config.ClientID,
		ClientSecret: p.config.ClientSecret,
		TokenURL:     p.config.TokenURL,
		Scopes:       []string{tokenType.Scope()},
		EndpointParams: url.Values{
			"audience": {audience},
		},
	}
	token, err := config.Token(ctx)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to fetch token for %s: %w", audience, err)
	}
	return token.AccessToken, token.Expiry, nil
}

// selfIssue mints a short-lived token for local development audiences where
// no auth server exists.
func (p *TokenProvider) selfIssue(audience string, tokenType TokenType) (string, time.Time, error) {
	expiry := p.now().Add(time.Hour)
	claims := jwt.MapClaims{
		"iss":   "dummy",
		"sub":   "uss_noauth",
		"aud":   audience,
		"scope": tokenType.Scope(),
		"iat":   p.now().Unix(),
		"exp":   expiry.Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.dummyKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to self-issue token: %w", err)
	}
	return token, expiry, nil
}

// tokenExpiry extracts the exp claim without verifying the signature. The
// cache only needs the expiry; verification is the receiver's job.
func tokenExpiry(raw string) (time.Time, bool) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
