package config

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonwraymond/remoteops/cache"
	"github.com/jonwraymond/remoteops/client"
	"github.com/jonwraymond/remoteops/health"
	"github.com/jonwraymond/remoteops/observe"
	"github.com/jonwraymond/remoteops/secret"
)

// recorder answers API calls with 200 and token requests with a bearer
// token, keeping every request it saw.
type recorder struct {
	mu       sync.Mutex
	requests []*client.Request
}

func (r *recorder) Send(ctx context.Context, req *client.Request) (*client.Response, error) {
	r.mu.Lock()
	r.requests = append(r.requests, req)
	r.mu.Unlock()

	if req.Method == http.MethodPost && strings.HasSuffix(req.URL, "/token") {
		return &client.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{"Content-Type": {"application/json"}},
			Body:       []byte(`{"access_token":"oauth-token","token_type":"bearer","expires_in":3600}`),
		}, nil
	}
	return &client.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Etag": {`"v1"`}},
		Body:       []byte(`{}`),
	}, nil
}

func (r *recorder) last() *client.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.requests[len(r.requests)-1]
}

func build(t *testing.T, yaml string, tr client.Transport) *Components {
	t.Helper()
	cfg, err := LoadReader(strings.NewReader(yaml))
	require.NoError(t, err)

	comps, err := cfg.Build(context.Background(), BuildOptions{
		Telemetry: observe.NopTelemetry(),
		Transport: tr,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = comps.Close() })
	return comps
}

func get(key string) *client.Request {
	return &client.Request{Method: http.MethodGet, URL: "/repos/acme/widgets/runs", CredentialKey: key}
}

func TestBuild_SecretSource(t *testing.T) {
	t.Setenv("CONFIG_TEST_CI_TOKEN", "ci-token")
	rec := &recorder{}
	comps := build(t, `
auth:
  signer: bearer
  source: secret
  secret:
    refs:
      ci: secretref:env:CONFIG_TEST_CI_TOKEN
`, rec)

	resp, err := comps.Executor.Execute(context.Background(), get("ci"), "api")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Bearer ci-token", rec.last().Header.Get("Authorization"))
	assert.NotEmpty(t, rec.last().Header.Get("X-Request-Id"))

	require.NotNil(t, comps.Credentials)
	assert.Equal(t, 1, comps.Credentials.Stats().Entries)
	assert.Nil(t, comps.ResponseCache)
}

func TestBuild_AppTokenFromExpandedSecret(t *testing.T) {
	t.Setenv("CONFIG_TEST_APP_SECRET", "0123456789abcdef0123456789abcdef")
	rec := &recorder{}
	comps := build(t, `
auth:
  signer: bearer
  source: app_token
  app_token:
    issuer: "12345"
    method: HS256
    private_key: ${CONFIG_TEST_APP_SECRET}
`, rec)

	_, err := comps.Executor.Execute(context.Background(), get("installation-1"), "api")
	require.NoError(t, err)
	authz := rec.last().Header.Get("Authorization")
	assert.True(t, strings.HasPrefix(authz, "Bearer ey"), "Authorization = %q", authz)
}

func TestBuild_OAuth2(t *testing.T) {
	t.Setenv("CONFIG_TEST_CLIENT_SECRET", "s3cret")
	rec := &recorder{}
	comps := build(t, `
auth:
  signer: bearer
  source: oauth2
  oauth2:
    token_endpoint: https://auth.example.com/token
    client_id: remoteops
    client_secret: secretref:env:CONFIG_TEST_CLIENT_SECRET
`, rec)

	_, err := comps.Executor.Execute(context.Background(), get("default"), "api")
	require.NoError(t, err)
	assert.Equal(t, "Bearer oauth-token", rec.last().Header.Get("Authorization"))

	rec.mu.Lock()
	token := rec.requests[0]
	rec.mu.Unlock()
	assert.Equal(t, http.MethodPost, token.Method)
	assert.True(t, strings.HasPrefix(token.Header.Get("Authorization"), "Basic "))
}

func TestBuild_MissingSecret(t *testing.T) {
	cfg, err := LoadReader(strings.NewReader(`
auth:
  signer: bearer
  source: oauth2
  oauth2:
    token_endpoint: https://auth.example.com/token
    client_secret: ${CONFIG_TEST_UNSET_VARIABLE}
`))
	require.NoError(t, err)

	_, err = cfg.Build(context.Background(), BuildOptions{
		Telemetry: observe.NopTelemetry(),
		Transport: &recorder{},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, secret.ErrMissingEnv)
}

func TestBuild_UnknownSecretProvider(t *testing.T) {
	cfg, err := LoadReader(strings.NewReader("secrets:\n  providers:\n    vault:\n      addr: https://vault\n"))
	require.NoError(t, err)

	_, err = cfg.Build(context.Background(), BuildOptions{Telemetry: observe.NopTelemetry()})
	require.Error(t, err)
	assert.ErrorIs(t, err, secret.ErrProviderNotRegistered)
}

func TestBuild_ResponseCache(t *testing.T) {
	rec := &recorder{}
	comps := build(t, "cache:\n  enabled: true\n", rec)
	require.NotNil(t, comps.ResponseCache)

	ctx := context.Background()
	_, err := comps.Executor.Execute(ctx, get(""), "api")
	require.NoError(t, err)
	_, err = comps.Executor.Execute(ctx, get(""), "api")
	require.NoError(t, err)

	assert.Equal(t, `"v1"`, rec.last().Header.Get("If-None-Match"))
	assert.Equal(t, cache.Stats{Stored: 2, Misses: 1}, comps.ResponseCache.Stats())
}

func TestBuild_Unsigned(t *testing.T) {
	rec := &recorder{}
	comps := build(t, "", rec)
	assert.Nil(t, comps.Credentials)

	_, err := comps.Executor.Execute(context.Background(), get("ignored"), "api")
	require.NoError(t, err)
	assert.Empty(t, rec.last().Header.Get("Authorization"))
}

func TestComponents_RegisterHealth(t *testing.T) {
	t.Setenv("CONFIG_TEST_CI_TOKEN", "ci-token")
	comps := build(t, `
auth:
  signer: bearer
  source: secret
  secret:
    pattern: secretref:env:CONFIG_TEST_{key}
`, &recorder{})

	_, err := comps.Executor.Execute(context.Background(), get("CI_TOKEN"), "api")
	require.NoError(t, err)

	agg := health.NewAggregator()
	comps.RegisterHealth(agg)
	assert.Equal(t, []string{"circuits", "rate_limits", "credentials"}, agg.CheckerNames())

	results := agg.CheckAll(context.Background())
	assert.Equal(t, health.StatusHealthy, agg.OverallStatus(results))
}
