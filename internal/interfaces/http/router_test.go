package http

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/linkguard/internal/config"
	"github.com/turtacn/linkguard/internal/infrastructure/crypto"
	"github.com/turtacn/linkguard/internal/infrastructure/monitoring"
	"github.com/turtacn/linkguard/internal/infrastructure/persistence/memory"
	"github.com/turtacn/linkguard/internal/infrastructure/ratelimit"
	"github.com/turtacn/linkguard/internal/infrastructure/revocation"
	"github.com/turtacn/linkguard/internal/interfaces/http/handlers"
	"github.com/turtacn/linkguard/pkg/constants"
	"github.com/turtacn/linkguard/pkg/logger"
)

type routerFixture struct {
	engine  *gin.Engine
	gateway *httptest.Server
	jwt     *crypto.JWTManager

	mu   sync.Mutex
	hits map[string]string
}

func (f *routerFixture) hit(key string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[key]
}

func newRouterFixture(t *testing.T, mutate func(*config.Config)) *routerFixture {
	t.Helper()
	f := &routerFixture{hits: map[string]string{}}

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.hits[r.Method+" "+r.URL.Path] = r.Header.Get(constants.HeaderUserID)
		f.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(upstream.Close)

	cfg := &config.Config{
		Server:     config.ServerConfig{Mode: gin.TestMode},
		RateLimit:  config.RateLimitConfig{Enabled: true},
		Monitoring: config.MonitoringConfig{MetricsEnabled: true},
		Upstream:   config.UpstreamConfig{URL: upstream.URL, Timeout: time.Second},
	}
	if mutate != nil {
		mutate(cfg)
	}

	log := logger.NewNoopLogger()
	var err error
	f.jwt, err = crypto.NewJWTManager(crypto.JWTConfig{Secret: []byte("0123456789abcdef0123456789abcdef")}, log)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)
	store := memory.NewStore(time.Minute)
	policies, err := ratelimit.NewPolicySet(ratelimit.DefaultPolicies()...)
	require.NoError(t, err)

	f.engine, err = NewRouter(cfg, Dependencies{
		Limiter:  ratelimit.NewFixedWindowLimiter(store, metrics, log),
		Policies: policies,
		Verifier: f.jwt,
		Registry: revocation.NewRegistry(store, metrics, nil, log, revocation.DefaultConfig()),
		Health:   handlers.NewHealthHandler(map[string]handlers.Pinger{"store": store}, time.Second, log),
		Metrics:  metrics,
		Gatherer: reg,
	}, log)
	require.NoError(t, err)
	f.gateway = httptest.NewServer(f.engine)
	t.Cleanup(f.gateway.Close)
	return f
}

// do sends a request through a real listener, as the reverse proxy requires,
// and returns the response in a recorder.
func (f *routerFixture) do(t *testing.T, method, path, token string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req, err := http.NewRequest(method, f.gateway.URL+path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set(constants.HeaderAuthorization, "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := f.gateway.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	w := httptest.NewRecorder()
	for k, v := range resp.Header {
		w.Header()[k] = v
	}
	w.Code = resp.StatusCode
	_, err = io.Copy(w.Body, resp.Body)
	require.NoError(t, err)
	return w
}

func TestRouter_LoginIsRateLimited(t *testing.T) {
	f := newRouterFixture(t, nil)
	for i := 0; i < constants.DefaultAuthMaxRequests; i++ {
		require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/v1/auth/login", "").Code)
	}
	w := f.do(t, http.MethodPost, "/api/v1/auth/login", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get(constants.HeaderRetryAfter))
}

func TestRouter_RateLimitDisabled(t *testing.T) {
	f := newRouterFixture(t, func(c *config.Config) { c.RateLimit.Enabled = false })
	for i := 0; i < constants.DefaultAuthMaxRequests+3; i++ {
		require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/v1/auth/login", "").Code)
	}
}

func TestRouter_URLCreationRequiresAuthAndForwardsUser(t *testing.T) {
	f := newRouterFixture(t, nil)
	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodPost, "/api/v1/urls", "").Code)

	token, _, err := f.jwt.Issue(context.Background(), "u1", time.Hour)
	require.NoError(t, err)
	w := f.do(t, http.MethodPost, "/api/v1/urls", token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "20", w.Header().Get(constants.HeaderRateLimitLimit))
	assert.Equal(t, "u1", f.hit("POST /api/v1/urls"))

	// Other API routes are authenticated and forwarded.
	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/api/v1/urls/abc", "").Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/v1/urls/abc", token).Code)
	assert.Equal(t, "u1", f.hit("GET /api/v1/urls/abc"))

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/nowhere", "").Code)
}

func TestRouter_StripsClientSuppliedUserID(t *testing.T) {
	f := newRouterFixture(t, nil)

	w := f.do(t, http.MethodPost, "/api/v1/auth/login", "", constants.HeaderUserID, "admin")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, f.hit("POST /api/v1/auth/login"))

	token, _, err := f.jwt.Issue(context.Background(), "u1", time.Hour)
	require.NoError(t, err)
	w = f.do(t, http.MethodPost, "/api/v1/urls", token, constants.HeaderUserID, "admin")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u1", f.hit("POST /api/v1/urls"))
}

func TestRouter_LogoutThenRejected(t *testing.T) {
	f := newRouterFixture(t, nil)
	token, _, err := f.jwt.Issue(context.Background(), "u1", time.Hour)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/v1/auth/sessions", token).Code)
	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodPost, "/api/v1/auth/logout", token).Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodPost, "/api/v1/urls", token).Code)
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	f := newRouterFixture(t, nil)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/health/live", "").Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/health/ready", "").Code)

	w := f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "linkguard_http_requests_total"))
}

func TestRouter_NoUpstream(t *testing.T) {
	f := newRouterFixture(t, func(c *config.Config) { c.Upstream.URL = "" })
	assert.Equal(t, http.StatusBadGateway, f.do(t, http.MethodPost, "/api/v1/auth/login", "").Code)
}
