package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jonwraymond/remoteops/client"
	"github.com/jonwraymond/remoteops/clock"
	"github.com/jonwraymond/remoteops/credential"
)

// OAuth2Config configures an OAuth2Source.
type OAuth2Config struct {
	// TokenEndpoint is the URL of the OAuth2 token endpoint.
	TokenEndpoint string

	// ClientID is the client identifier.
	ClientID string

	// ClientSecret is the client secret.
	ClientSecret string

	// ClientAuthMethod is how to authenticate to the token endpoint.
	// Options: "client_secret_basic" (default), "client_secret_post"
	ClientAuthMethod string

	// GrantType selects the flow.
	// Options: "client_credentials" (default), "refresh_token"
	GrantType string

	// RefreshToken seeds the refresh_token flow. Rotated refresh tokens
	// returned by the endpoint replace it.
	RefreshToken string

	// Scopes are requested space-separated.
	Scopes []string

	// Timeout bounds one token request.
	// Default: 10 seconds
	Timeout time.Duration

	// Transport sends the token request. Default: an HTTPTransport.
	Transport client.Transport

	// Clock converts expires_in into an expiry. Default: the real clock.
	Clock clock.Clock
}

// OAuth2Source fetches access tokens from an OAuth2 token endpoint. It
// implements credential.Source; the key is ignored unless the endpoint
// needs it as a resource indicator, in which case it is sent as "resource".
type OAuth2Source struct {
	config OAuth2Config

	mu           sync.Mutex
	refreshToken string
}

// NewOAuth2Source creates an OAuth2 token source.
func NewOAuth2Source(config OAuth2Config) (*OAuth2Source, error) {
	if config.TokenEndpoint == "" {
		return nil, fmt.Errorf("%w: no token endpoint", ErrMissingCredentials)
	}
	if config.ClientAuthMethod == "" {
		config.ClientAuthMethod = "client_secret_basic"
	}
	if config.GrantType == "" {
		config.GrantType = "client_credentials"
	}
	if config.GrantType == "refresh_token" && config.RefreshToken == "" {
		return nil, fmt.Errorf("%w: refresh_token grant without a refresh token", ErrMissingCredentials)
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Transport == nil {
		config.Transport = client.NewHTTPTransport(client.HTTPTransportConfig{})
	}
	config.Clock = clock.OrReal(config.Clock)

	return &OAuth2Source{config: config, refreshToken: config.RefreshToken}, nil
}

// tokenResponse is the RFC 6749 section 5.1 response.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Error        string `json:"error"`
	Description  string `json:"error_description"`
}

// Fetch requests a new access token.
func (s *OAuth2Source) Fetch(ctx context.Context, key string) (credential.Raw, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	// Build request body
	form := url.Values{}
	form.Set("grant_type", s.config.GrantType)
	if s.config.GrantType == "refresh_token" {
		s.mu.Lock()
		form.Set("refresh_token", s.refreshToken)
		s.mu.Unlock()
	}
	if len(s.config.Scopes) > 0 {
		form.Set("scope", strings.Join(s.config.Scopes, " "))
	}
	if key != "" {
		form.Set("resource", key)
	}
	if s.config.ClientAuthMethod == "client_secret_post" {
		form.Set("client_id", s.config.ClientID)
		form.Set("client_secret", s.config.ClientSecret)
	}

	req := &client.Request{
		Method: http.MethodPost,
		URL:    s.config.TokenEndpoint,
		Header: make(http.Header),
		Body:   []byte(form.Encode()),
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	// Add Basic auth if using client_secret_basic
	if s.config.ClientAuthMethod == "client_secret_basic" {
		basic := base64.StdEncoding.EncodeToString([]byte(url.QueryEscape(s.config.ClientID) + ":" + url.QueryEscape(s.config.ClientSecret)))
		req.Header.Set("Authorization", "Basic "+basic)
	}

	resp, err := s.config.Transport.Send(ctx, req)
	if err != nil {
		return credential.Raw{}, fmt.Errorf("%w: %w", ErrTokenEndpoint, err)
	}

	var tok tokenResponse
	decodeErr := json.Unmarshal(resp.Body, &tok)

	if resp.StatusCode != http.StatusOK {
		// 400 and 401 are the endpoint refusing the client or grant.
		if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized {
			return credential.Raw{}, fmt.Errorf("%w: %w: status %d %s", ErrTokenEndpoint, credential.ErrRejected, resp.StatusCode, tok.Error)
		}
		return credential.Raw{}, fmt.Errorf("%w: status %d", ErrTokenEndpoint, resp.StatusCode)
	}
	if decodeErr != nil {
		return credential.Raw{}, fmt.Errorf("%w: decode error: %v", ErrTokenMalformed, decodeErr)
	}
	if tok.AccessToken == "" {
		return credential.Raw{}, fmt.Errorf("%w: no access_token", ErrTokenMalformed)
	}
	if tok.TokenType != "" && !strings.EqualFold(tok.TokenType, "bearer") {
		return credential.Raw{}, fmt.Errorf("%w: token_type %q", ErrTokenMalformed, tok.TokenType)
	}

	if tok.RefreshToken != "" {
		s.mu.Lock()
		s.refreshToken = tok.RefreshToken
		s.mu.Unlock()
	}

	now := s.config.Clock.Now()
	raw := credential.Raw{
		Secret:   []byte(tok.AccessToken),
		IssuedAt: now,
	}
	// Zero leaves expiry to the JWT exp claim or the cache default.
	if tok.ExpiresIn > 0 {
		raw.ExpiresAt = now.Add(time.Duration(tok.ExpiresIn) * time.Second)
	}
	return raw, nil
}

// Ensure OAuth2Source implements credential.Source
var _ credential.Source = (*OAuth2Source)(nil)
