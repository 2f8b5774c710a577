package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"net/url"
	"strconv"
	"strings"

	"github.com/jonwraymond/remoteops/client"
	"github.com/jonwraymond/remoteops/clock"
	"github.com/jonwraymond/remoteops/credential"
)

// HMACConfig configures an HMACSigner.
type HMACConfig struct {
	// HeaderName is the header carrying the signature.
	// Default: "X-Signature"
	HeaderName string `mapstructure:"header_name"`

	// TimestampHeader is the header carrying the signing time in Unix
	// seconds. Empty disables the timestamp.
	// Default: "X-Timestamp"
	TimestampHeader string `mapstructure:"timestamp_header"`

	// KeyIDHeader, when set, carries the credential key so the server can
	// pick the shared secret.
	KeyIDHeader string `mapstructure:"key_id_header"`

	// Algorithm selects the hash.
	// Options: "sha256" (default), "sha512"
	Algorithm string `mapstructure:"algorithm"`

	// Clock stamps the signature. Default: the real clock.
	Clock clock.Clock `mapstructure:"-"`
}

// HMACSigner signs the request method, path, timestamp and body digest with
// the credential as a shared key. The header value is "<algorithm>=<hex>".
type HMACSigner struct {
	config HMACConfig
	newMAC func() hash.Hash
}

// NewHMACSigner creates an HMAC signer.
func NewHMACSigner(config HMACConfig) (*HMACSigner, error) {
	if config.HeaderName == "" {
		config.HeaderName = "X-Signature"
	}
	if config.TimestampHeader == "" {
		config.TimestampHeader = "X-Timestamp"
	}
	if config.Algorithm == "" {
		config.Algorithm = "sha256"
	}
	newHash, err := hashFor(config.Algorithm)
	if err != nil {
		return nil, err
	}
	config.Clock = clock.OrReal(config.Clock)
	return &HMACSigner{config: config, newMAC: newHash}, nil
}

// Name returns "hmac".
func (s *HMACSigner) Name() string {
	return "hmac"
}

// Sign stamps and signs req.
func (s *HMACSigner) Sign(req *client.Request, cred credential.Credential) error {
	if len(cred.Secret) == 0 {
		return ErrMissingCredentials
	}
	ts := strconv.FormatInt(s.config.Clock.Now().Unix(), 10)

	payload, err := canonicalRequest(req, ts)
	if err != nil {
		return err
	}
	mac := hmac.New(s.newMAC, cred.Secret)
	mac.Write(payload)

	setHeader(req, s.config.TimestampHeader, ts)
	if s.config.KeyIDHeader != "" {
		setHeader(req, s.config.KeyIDHeader, cred.Key)
	}
	setHeader(req, s.config.HeaderName, s.config.Algorithm+"="+hex.EncodeToString(mac.Sum(nil)))
	return nil
}

// VerifyHMAC checks a "<algorithm>=<hex>" signature of payload under
// secret in constant time. It serves inbound webhooks signed the same way.
func VerifyHMAC(secret, payload []byte, signature string) error {
	algorithm, digest, ok := strings.Cut(signature, "=")
	if !ok {
		return fmt.Errorf("%w: missing algorithm prefix", ErrSignatureMismatch)
	}
	newHash, err := hashFor(algorithm)
	if err != nil {
		return err
	}
	want, err := hex.DecodeString(digest)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureMismatch, err)
	}
	mac := hmac.New(newHash, secret)
	mac.Write(payload)
	if !hmac.Equal(mac.Sum(nil), want) {
		return ErrSignatureMismatch
	}
	return nil
}

// canonicalRequest is METHOD\nPATH?QUERY\nTIMESTAMP\nhex(sha256(body)).
func canonicalRequest(req *client.Request, ts string) ([]byte, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, fmt.Errorf("auth: parse url: %w", err)
	}
	target := u.EscapedPath()
	if target == "" {
		target = "/"
	}
	if u.RawQuery != "" {
		target += "?" + u.RawQuery
	}
	body := sha256.Sum256(req.Body)

	var b strings.Builder
	b.WriteString(strings.ToUpper(req.Method))
	b.WriteByte('\n')
	b.WriteString(target)
	b.WriteByte('\n')
	b.WriteString(ts)
	b.WriteByte('\n')
	b.WriteString(hex.EncodeToString(body[:]))
	return []byte(b.String()), nil
}

func hashFor(algorithm string) (func() hash.Hash, error) {
	switch algorithm {
	case "sha256":
		return sha256.New, nil
	case "sha512":
		return sha512.New, nil
	default:
		return nil, fmt.Errorf("auth: unsupported hmac algorithm %q", algorithm)
	}
}

func withQuery(raw, name, value string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("auth: parse url: %w", err)
	}
	q := u.Query()
	q.Set(name, value)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

var _ client.Signer = (*HMACSigner)(nil)
