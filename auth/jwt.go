package auth

import (
	"context"
	"crypto/rsa"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jonwraymond/remoteops/clock"
	"github.com/jonwraymond/remoteops/credential"
)

// AppTokenConfig configures an AppTokenSource.
type AppTokenConfig struct {
	// Issuer is the iss claim, usually the application id.
	Issuer string

	// Audience is the aud claim. Empty omits it.
	Audience string

	// KeyID is set as the kid header when non-empty.
	KeyID string

	// Method is the signing algorithm.
	// Options: "RS256" (default), "HS256"
	Method string

	// TTL is the token lifetime measured from now.
	// Default: 10 minutes
	TTL time.Duration

	// ClockSkew backdates the iat claim to tolerate server clock drift.
	// Default: 60 seconds
	ClockSkew time.Duration

	// SubjectFromKey sets the sub claim to the credential key, so one
	// source can mint tokens for several installations.
	SubjectFromKey bool

	// Clock stamps the claims. Default: the real clock.
	Clock clock.Clock
}

// KeyProvider supplies the signing key.
type KeyProvider interface {
	// GetKey returns the key for the given key ID.
	GetKey(ctx context.Context, keyID string) (any, error)
}

// StaticKeyProvider provides a fixed signing key.
type StaticKeyProvider struct {
	key any
}

// NewStaticKeyProvider creates a static key provider. key is an
// *rsa.PrivateKey for RS256 or a []byte for HS256.
func NewStaticKeyProvider(key any) *StaticKeyProvider {
	return &StaticKeyProvider{key: key}
}

// NewPEMKeyProvider parses a PEM-encoded RSA private key.
func NewPEMKeyProvider(pem []byte) (*StaticKeyProvider, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM(pem)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return NewStaticKeyProvider(key), nil
}

// GetKey returns the static key.
func (p *StaticKeyProvider) GetKey(_ context.Context, _ string) (any, error) {
	if p.key == nil {
		return nil, ErrInvalidKey
	}
	return p.key, nil
}

// AppTokenSource mints short-lived application JWTs locally. It implements
// credential.Source, so a credential.Cache refreshes the token before it
// expires like any remote credential.
type AppTokenSource struct {
	config AppTokenConfig
	keys   KeyProvider
	method jwt.SigningMethod
}

// NewAppTokenSource creates an app token source.
func NewAppTokenSource(config AppTokenConfig, keys KeyProvider) (*AppTokenSource, error) {
	if config.Method == "" {
		config.Method = "RS256"
	}
	if config.TTL <= 0 {
		config.TTL = 10 * time.Minute
	}
	if config.ClockSkew <= 0 {
		config.ClockSkew = 60 * time.Second
	}
	config.Clock = clock.OrReal(config.Clock)
	if keys == nil {
		return nil, fmt.Errorf("%w: no key provider", ErrInvalidKey)
	}

	var method jwt.SigningMethod
	switch config.Method {
	case "RS256":
		method = jwt.SigningMethodRS256
	case "HS256":
		method = jwt.SigningMethodHS256
	default:
		return nil, fmt.Errorf("auth: unsupported signing method %q", config.Method)
	}
	return &AppTokenSource{config: config, keys: keys, method: method}, nil
}

// Fetch signs a new token. The returned expiry is exact, so the cache does
// not need to parse the token back.
func (s *AppTokenSource) Fetch(ctx context.Context, key string) (credential.Raw, error) {
	if err := ctx.Err(); err != nil {
		return credential.Raw{}, err
	}
	signingKey, err := s.keys.GetKey(ctx, s.config.KeyID)
	if err != nil {
		return credential.Raw{}, err
	}
	if err := checkKey(s.method, signingKey); err != nil {
		return credential.Raw{}, err
	}

	now := s.config.Clock.Now()
	expiresAt := now.Add(s.config.TTL)
	claims := jwt.RegisteredClaims{
		Issuer:    s.config.Issuer,
		IssuedAt:  jwt.NewNumericDate(now.Add(-s.config.ClockSkew)),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	if s.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{s.config.Audience}
	}
	if s.config.SubjectFromKey {
		claims.Subject = key
	}

	token := jwt.NewWithClaims(s.method, claims)
	if s.config.KeyID != "" {
		token.Header["kid"] = s.config.KeyID
	}
	signed, err := token.SignedString(signingKey)
	if err != nil {
		return credential.Raw{}, wrapJWTError(err)
	}

	// JWT times have second precision; report what the token says.
	return credential.Raw{
		Secret:    []byte(signed),
		IssuedAt:  now,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func checkKey(method jwt.SigningMethod, key any) error {
	switch method {
	case jwt.SigningMethodRS256:
		if _, ok := key.(*rsa.PrivateKey); !ok {
			return fmt.Errorf("%w: RS256 needs *rsa.PrivateKey, got %T", ErrInvalidKey, key)
		}
	case jwt.SigningMethodHS256:
		if k, ok := key.([]byte); !ok || len(k) == 0 {
			return fmt.Errorf("%w: HS256 needs a non-empty []byte key", ErrInvalidKey)
		}
	}
	return nil
}

// Ensure AppTokenSource implements credential.Source
var _ credential.Source = (*AppTokenSource)(nil)

// Ensure StaticKeyProvider implements KeyProvider
var _ KeyProvider = (*StaticKeyProvider)(nil)

func wrapJWTError(err error) error {
	return fmt.Errorf("jwt: %w", err)
}
