package client

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/jonwraymond/remoteops/credential"
)

// Request is one remote call. Body is a byte slice so every attempt can
// resend it.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte

	// Timeout overrides ExecutorConfig.AttemptTimeout for this request.
	Timeout time.Duration

	// CredentialKey selects the credential to sign with. Empty means the
	// request is sent unsigned.
	CredentialKey string

	// Stream asks the transport to hand back the body unread in
	// Response.Stream, for log and artifact downloads.
	Stream bool
}

// clone returns a copy whose headers can be modified independently.
func (r *Request) clone() *Request {
	c := *r
	c.Header = r.Header.Clone()
	if c.Header == nil {
		c.Header = make(http.Header)
	}
	return &c
}

// Response is the transport's answer to a Request.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte

	// Stream is set instead of Body for streaming requests. The caller must
	// close it.
	Stream io.ReadCloser
}

// Transport sends one attempt of a request.
//
// Contract:
//   - Context: Send must return promptly once ctx is done.
//   - Errors: a non-nil error means no usable response was received.
type Transport interface {
	Send(ctx context.Context, req *Request) (*Response, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, req *Request) (*Response, error)

// Send calls f.
func (f TransportFunc) Send(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// Signer authenticates a request in place with cred.
type Signer interface {
	Sign(req *Request, cred credential.Credential) error
}

// SignerFunc adapts a function to Signer.
type SignerFunc func(req *Request, cred credential.Credential) error

// Sign calls f.
func (f SignerFunc) Sign(req *Request, cred credential.Credential) error {
	return f(req, cred)
}

// Credentials supplies credentials by key. *credential.Cache implements it.
type Credentials interface {
	Get(ctx context.Context, key string) (credential.Credential, error)
	Invalidate(key string)
}

var _ Credentials = (*credential.Cache)(nil)
