package cache

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/jonwraymond/remoteops/client"
)

// origin serves one resource with an ETag and records request headers.
type origin struct {
	mu       sync.Mutex
	etag     string
	body     string
	status   int
	requests []http.Header
}

func (o *origin) Send(ctx context.Context, req *client.Request) (*client.Response, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.requests = append(o.requests, req.Header.Clone())

	if o.status != 0 {
		return &client.Response{StatusCode: o.status, Header: http.Header{}}, nil
	}
	remaining := http.Header{"X-Ratelimit-Remaining": {"4999"}}
	if o.etag != "" && req.Header.Get("If-None-Match") == o.etag {
		remaining.Set("X-Ratelimit-Remaining", "4998")
		return &client.Response{StatusCode: http.StatusNotModified, Header: remaining}, nil
	}
	h := remaining.Clone()
	if o.etag != "" {
		h.Set("ETag", o.etag)
	}
	h.Set("Content-Type", "application/json")
	return &client.Response{StatusCode: http.StatusOK, Header: h, Body: []byte(o.body)}, nil
}

func (o *origin) lastHeader() http.Header {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.requests[len(o.requests)-1]
}

func get(url string) *client.Request {
	return &client.Request{Method: http.MethodGet, URL: url, CredentialKey: "ci", Header: http.Header{}}
}

func TestTransport_RevalidatesAndReplays(t *testing.T) {
	o := &origin{etag: `"v1"`, body: `{"status":"in_progress"}`}
	tr := NewTransport(o, TransportConfig{})
	ctx := context.Background()

	first, err := tr.Send(ctx, get("/runs/1"))
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if first.Header.Get(CacheHeader) != "" {
		t.Error("first response should come from the origin")
	}

	second, err := tr.Send(ctx, get("/runs/1"))
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if got := o.lastHeader().Get("If-None-Match"); got != `"v1"` {
		t.Errorf("If-None-Match = %q, want %q", got, `"v1"`)
	}
	if second.StatusCode != http.StatusOK || string(second.Body) != `{"status":"in_progress"}` {
		t.Errorf("replay = %d %q", second.StatusCode, second.Body)
	}
	if second.Header.Get(CacheHeader) != "revalidated" {
		t.Errorf("%s = %q, want revalidated", CacheHeader, second.Header.Get(CacheHeader))
	}
	if got := second.Header.Get("X-Ratelimit-Remaining"); got != "4998" {
		t.Errorf("X-Ratelimit-Remaining = %q, want the 304's 4998", got)
	}
	if got := second.Header.Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q, want stored application/json", got)
	}

	stats := tr.Stats()
	if stats.Replayed != 1 || stats.Stored != 1 || stats.Misses != 1 {
		t.Errorf("Stats() = %+v", stats)
	}
}

func TestTransport_ChangedResourceIsRestored(t *testing.T) {
	o := &origin{etag: `"v1"`, body: "old"}
	tr := NewTransport(o, TransportConfig{})
	ctx := context.Background()

	_, _ = tr.Send(ctx, get("/runs/1"))
	o.mu.Lock()
	o.etag, o.body = `"v2"`, "new"
	o.mu.Unlock()

	resp, _ := tr.Send(ctx, get("/runs/1"))
	if string(resp.Body) != "new" {
		t.Errorf("Body = %q, want new", resp.Body)
	}
	_, _ = tr.Send(ctx, get("/runs/1"))
	if got := o.lastHeader().Get("If-None-Match"); got != `"v2"` {
		t.Errorf("If-None-Match = %q, want the new ETag", got)
	}
}

func TestTransport_DoesNotMutateCallerRequest(t *testing.T) {
	o := &origin{etag: `"v1"`, body: "x"}
	tr := NewTransport(o, TransportConfig{})
	_, _ = tr.Send(context.Background(), get("/a"))

	req := get("/a")
	_, _ = tr.Send(context.Background(), req)
	if req.Header.Get("If-None-Match") != "" {
		t.Error("caller's request gained If-None-Match")
	}
}

func TestTransport_KeysByCredential(t *testing.T) {
	o := &origin{etag: `"v1"`, body: "x"}
	tr := NewTransport(o, TransportConfig{})
	ctx := context.Background()

	_, _ = tr.Send(ctx, get("/a"))
	other := get("/a")
	other.CredentialKey = "deploy"
	_, _ = tr.Send(ctx, other)

	if got := o.lastHeader().Get("If-None-Match"); got != "" {
		t.Errorf("If-None-Match = %q, want none for another credential", got)
	}
}

func TestTransport_Bypass(t *testing.T) {
	tests := []struct {
		name string
		req  *client.Request
	}{
		{"post", &client.Request{Method: http.MethodPost, URL: "/a"}},
		{"stream", &client.Request{Method: http.MethodGet, URL: "/logs", Stream: true}},
		{"caller validators", &client.Request{Method: http.MethodGet, URL: "/a", Header: http.Header{"If-None-Match": {`"x"`}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := &origin{etag: `"v1"`, body: "x"}
			store := NewMemoryCache()
			tr := NewTransport(o, TransportConfig{Cache: store})

			_, _ = tr.Send(context.Background(), tt.req)
			if store.Len() != 0 {
				t.Errorf("store Len() = %d, want 0", store.Len())
			}
			if tr.Stats().Bypassed != 1 {
				t.Errorf("Bypassed = %d, want 1", tr.Stats().Bypassed)
			}
		})
	}
}

func TestTransport_NoValidatorNotStored(t *testing.T) {
	o := &origin{body: "x"}
	store := NewMemoryCache()
	tr := NewTransport(o, TransportConfig{Cache: store})

	_, _ = tr.Send(context.Background(), get("/a"))
	if store.Len() != 0 {
		t.Errorf("store Len() = %d, want 0", store.Len())
	}
}

func TestTransport_ClientErrorDropsEntry(t *testing.T) {
	o := &origin{etag: `"v1"`, body: "x"}
	store := NewMemoryCache()
	tr := NewTransport(o, TransportConfig{Cache: store})
	ctx := context.Background()

	_, _ = tr.Send(ctx, get("/a"))
	o.mu.Lock()
	o.status = http.StatusNotFound
	o.mu.Unlock()

	resp, _ := tr.Send(ctx, get("/a"))
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404 passed through", resp.StatusCode)
	}
	if store.Len() != 0 {
		t.Errorf("store Len() = %d, want entry dropped", store.Len())
	}
}

func TestTransport_DisabledPolicy(t *testing.T) {
	o := &origin{etag: `"v1"`, body: "x"}
	policy := NoCachePolicy()
	tr := NewTransport(o, TransportConfig{Policy: &policy})

	_, _ = tr.Send(context.Background(), get("/a"))
	_, _ = tr.Send(context.Background(), get("/a"))
	if got := o.lastHeader().Get("If-None-Match"); got != "" {
		t.Errorf("If-None-Match = %q with caching disabled", got)
	}
}

func TestTransport_PropagatesErrors(t *testing.T) {
	boom := errors.New("connection reset")
	tr := NewTransport(client.TransportFunc(func(ctx context.Context, req *client.Request) (*client.Response, error) {
		return nil, boom
	}), TransportConfig{})

	if _, err := tr.Send(context.Background(), get("/a")); !errors.Is(err, boom) {
		t.Errorf("Send() error = %v, want %v", err, boom)
	}
}

func TestMaxAge(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"private, max-age=60, s-maxage=60", "1m0s"},
		{"no-cache", "0s"},
		{"max-age=abc", "0s"},
		{"", "0s"},
	}
	for _, tt := range tests {
		if got := maxAge(tt.in).String(); got != tt.want {
			t.Errorf("maxAge(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
