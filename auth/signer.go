package auth

import (
	"net/http"

	"github.com/jonwraymond/remoteops/client"
	"github.com/jonwraymond/remoteops/credential"
)

// BearerConfig configures a BearerSigner.
type BearerConfig struct {
	// HeaderName is the header carrying the token.
	// Default: "Authorization"
	HeaderName string `mapstructure:"header_name"`

	// TokenPrefix precedes the token in the header value.
	// Default: "Bearer "
	TokenPrefix string `mapstructure:"token_prefix"`
}

// BearerSigner sets the credential as a bearer token.
type BearerSigner struct {
	config BearerConfig
}

// NewBearerSigner creates a bearer token signer.
func NewBearerSigner(config BearerConfig) *BearerSigner {
	if config.HeaderName == "" {
		config.HeaderName = "Authorization"
	}
	if config.TokenPrefix == "" {
		config.TokenPrefix = "Bearer "
	}
	return &BearerSigner{config: config}
}

// Name returns "bearer".
func (s *BearerSigner) Name() string {
	return "bearer"
}

// Sign sets the header on req.
func (s *BearerSigner) Sign(req *client.Request, cred credential.Credential) error {
	if len(cred.Secret) == 0 {
		return ErrMissingCredentials
	}
	setHeader(req, s.config.HeaderName, s.config.TokenPrefix+string(cred.Secret))
	return nil
}

// APIKeyConfig configures an APIKeySigner.
type APIKeyConfig struct {
	// HeaderName is the header carrying the key.
	// Default: "X-API-Key"
	HeaderName string `mapstructure:"header_name"`

	// QueryParam, when set, sends the key as a query parameter instead of a
	// header.
	QueryParam string `mapstructure:"query_param"`
}

// APIKeySigner sends the credential verbatim as an API key.
type APIKeySigner struct {
	config APIKeyConfig
}

// NewAPIKeySigner creates an API key signer.
func NewAPIKeySigner(config APIKeyConfig) *APIKeySigner {
	if config.HeaderName == "" {
		config.HeaderName = "X-API-Key"
	}
	return &APIKeySigner{config: config}
}

// Name returns "api_key".
func (s *APIKeySigner) Name() string {
	return "api_key"
}

// Sign places the key on req.
func (s *APIKeySigner) Sign(req *client.Request, cred credential.Credential) error {
	if len(cred.Secret) == 0 {
		return ErrMissingCredentials
	}
	if s.config.QueryParam != "" {
		u, err := withQuery(req.URL, s.config.QueryParam, string(cred.Secret))
		if err != nil {
			return err
		}
		req.URL = u
		return nil
	}
	setHeader(req, s.config.HeaderName, string(cred.Secret))
	return nil
}

func setHeader(req *client.Request, name, value string) {
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	req.Header.Set(name, value)
}

var (
	_ client.Signer = (*BearerSigner)(nil)
	_ client.Signer = (*APIKeySigner)(nil)
)
