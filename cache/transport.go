package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jonwraymond/remoteops/client"
	"github.com/jonwraymond/remoteops/observe"
)

// CacheHeader is set on replayed responses.
const CacheHeader = "X-Remoteops-Cache"

// TransportConfig configures a Transport.
type TransportConfig struct {
	// Cache stores responses. Default: a MemoryCache with 1024 entries.
	Cache Cache

	// Policy controls retention. Default: DefaultPolicy().
	Policy *Policy

	// Logger receives debug entries for stores and replays.
	Logger observe.Logger
}

// Stats counts Transport outcomes.
type Stats struct {
	Replayed int64 // 304 answered from the store
	Stored   int64
	Misses   int64 // cacheable GETs sent without validators
	Bypassed int64 // requests that were not cacheable
}

// Transport is a client.Transport that adds conditional request headers to
// GETs it has seen before and replays 304 answers.
type Transport struct {
	next   client.Transport
	cache  Cache
	policy Policy
	logger observe.Logger

	replayed atomic.Int64
	stored   atomic.Int64
	misses   atomic.Int64
	bypassed atomic.Int64
}

// NewTransport wraps next.
func NewTransport(next client.Transport, config TransportConfig) *Transport {
	if config.Cache == nil {
		config.Cache = NewMemoryCache(WithMaxEntries(1024))
	}
	policy := DefaultPolicy()
	if config.Policy != nil {
		policy = *config.Policy
	}
	return &Transport{
		next:   next,
		cache:  config.Cache,
		policy: policy,
		logger: observe.OrNop(config.Logger),
	}
}

// storedResponse is the encoded cache value.
type storedResponse struct {
	ETag         string              `json:"etag,omitempty"`
	LastModified string              `json:"last_modified,omitempty"`
	Header       map[string][]string `json:"header"`
	Body         []byte              `json:"body"`
}

// Send forwards req, revalidating a stored response when one exists.
func (t *Transport) Send(ctx context.Context, req *client.Request) (*client.Response, error) {
	if !t.cacheable(req) {
		t.bypassed.Add(1)
		return t.next.Send(ctx, req)
	}

	key := RequestKey(req)
	prior, hasPrior := t.load(ctx, key)

	out := req
	if hasPrior {
		out = withValidators(req, prior)
	} else {
		t.misses.Add(1)
	}

	resp, err := t.next.Send(ctx, out)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusNotModified && hasPrior:
		t.replayed.Add(1)
		t.logger.Debug(ctx, "replaying cached response",
			observe.Field{Key: "url", Value: req.URL},
		)
		return replay(prior, resp), nil

	case resp.StatusCode == http.StatusOK && resp.Stream == nil:
		t.store(ctx, key, resp)

	case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests:
		// The resource is gone or no longer readable with this credential.
		_ = t.cache.Delete(ctx, key)
	}
	return resp, nil
}

// Stats returns a snapshot of the counters.
func (t *Transport) Stats() Stats {
	return Stats{
		Replayed: t.replayed.Load(),
		Stored:   t.stored.Load(),
		Misses:   t.misses.Load(),
		Bypassed: t.bypassed.Load(),
	}
}

func (t *Transport) cacheable(req *client.Request) bool {
	return t.policy.ShouldCache() &&
		req.Method == http.MethodGet &&
		!req.Stream &&
		req.Header.Get("If-None-Match") == "" &&
		req.Header.Get("If-Modified-Since") == ""
}

func (t *Transport) load(ctx context.Context, key string) (storedResponse, bool) {
	raw, ok := t.cache.Get(ctx, key)
	if !ok {
		return storedResponse{}, false
	}
	var s storedResponse
	if err := json.Unmarshal(raw, &s); err != nil {
		_ = t.cache.Delete(ctx, key)
		return storedResponse{}, false
	}
	return s, true
}

func (t *Transport) store(ctx context.Context, key string, resp *client.Response) {
	etag := resp.Header.Get("ETag")
	lastModified := resp.Header.Get("Last-Modified")
	cc := resp.Header.Get("Cache-Control")

	if (etag == "" && lastModified == "") || strings.Contains(cc, "no-store") || !t.policy.fits(len(resp.Body)) {
		_ = t.cache.Delete(ctx, key)
		return
	}

	raw, err := json.Marshal(storedResponse{
		ETag:         etag,
		LastModified: lastModified,
		Header:       resp.Header.Clone(),
		Body:         resp.Body,
	})
	if err != nil {
		return
	}
	if err := t.cache.Set(ctx, key, raw, t.policy.EffectiveTTL(maxAge(cc))); err != nil {
		t.logger.Debug(ctx, "response not cached", observe.Field{Key: "error", Value: err})
		return
	}
	t.stored.Add(1)
}

// RequestKey identifies a GET by URL, credential key and Accept header.
// The signature headers are left out because tokens rotate.
func RequestKey(req *client.Request) string {
	h := sha256.New()
	h.Write([]byte(req.URL))
	h.Write([]byte{0})
	h.Write([]byte(req.CredentialKey))
	h.Write([]byte{0})
	h.Write([]byte(req.Header.Get("Accept")))
	return "http:" + hex.EncodeToString(h.Sum(nil)[:16])
}

func withValidators(req *client.Request, prior storedResponse) *client.Request {
	c := *req
	c.Header = req.Header.Clone()
	if c.Header == nil {
		c.Header = make(http.Header)
	}
	if prior.ETag != "" {
		c.Header.Set("If-None-Match", prior.ETag)
	}
	if prior.LastModified != "" {
		c.Header.Set("If-Modified-Since", prior.LastModified)
	}
	return &c
}

// replay answers with the stored body. Headers from the 304 win, so rate
// limit metadata reflects the latest call.
func replay(prior storedResponse, notModified *client.Response) *client.Response {
	header := http.Header(prior.Header).Clone()
	if header == nil {
		header = make(http.Header)
	}
	for k, v := range notModified.Header {
		header[k] = append([]string(nil), v...)
	}
	header.Set(CacheHeader, "revalidated")
	return &client.Response{
		StatusCode: http.StatusOK,
		Header:     header,
		Body:       append([]byte(nil), prior.Body...),
	}
}

func maxAge(cacheControl string) time.Duration {
	for _, directive := range strings.Split(cacheControl, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(directive), "=")
		if !ok || !strings.EqualFold(name, "max-age") {
			continue
		}
		secs, err := strconv.Atoi(value)
		if err != nil || secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	return 0
}

var _ client.Transport = (*Transport)(nil)
