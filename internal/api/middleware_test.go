package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/sentinel/internal/config"
)

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"remote addr", nil, "192.0.2.10:5555", "192.0.2.10"},
		{"forwarded first hop", map[string]string{"X-Forwarded-For": "198.51.100.1, 10.0.0.1"}, "10.0.0.2:1", "198.51.100.1"},
		{"forwarded garbage falls through", map[string]string{"X-Forwarded-For": "unknown"}, "10.0.0.2:1", "10.0.0.2"},
		{"real ip", map[string]string{"X-Real-IP": "203.0.113.9"}, "10.0.0.2:1", "203.0.113.9"},
		{"forwarded beats real ip", map[string]string{"X-Forwarded-For": "198.51.100.1", "X-Real-IP": "203.0.113.9"}, "10.0.0.2:1", "198.51.100.1"},
		{"remote without port", nil, "pipe", "pipe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, getClientIP(req))
		})
	}
}

func TestAccessLog_RequestID(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "GET", "/healthz", nil)
	generated := rr.Header().Get("X-Request-ID")
	assert.Len(t, generated, 36)

	req := httptest.NewRequest("GET", "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rr = httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)
	assert.Equal(t, "abc-123", rr.Header().Get("X-Request-ID"))
}

func TestRateLimit_RuleMutations(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		n := 2
		c.API.RateLimit = &n
	})

	for i := 0; i < 2; i++ {
		rr := env.do(t, "POST", "/rules", rulePayload("DENY", "any", 22, "TCP"))
		require.Equal(t, http.StatusCreated, rr.Code)
	}

	rr := env.do(t, "DELETE", "/rules/1", nil)
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "60", rr.Header().Get("Retry-After"))
	assert.Equal(t, "rate limit exceeded", decode[ErrorResponse](t, rr).Error)
	assert.Len(t, env.engine.Rules(), 2)

	// Reads and simulations are not throttled.
	assert.Equal(t, http.StatusOK, env.do(t, "GET", "/rules", nil).Code)
	assert.Equal(t, http.StatusOK, env.do(t, "POST", "/simulate", packetPayload("10.0.0.1", 22, "TCP")).Code)

	// Another client has its own budget.
	req := httptest.NewRequest("DELETE", "/rules/1", nil)
	req.RemoteAddr = "198.51.100.77:4000"
	rr = httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)

	env.clock.Advance(time.Minute)
	assert.Equal(t, http.StatusOK, env.do(t, "DELETE", "/rules/2", nil).Code)
}

func TestRateLimit_Disabled(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		n := 0
		c.API.RateLimit = &n
	})

	for i := 0; i < 20; i++ {
		require.Equal(t, http.StatusCreated, env.do(t, "POST", "/rules", rulePayload("DENY", "any", 22, "TCP")).Code)
	}
}

func TestCORS(t *testing.T) {
	t.Run("wildcard", func(t *testing.T) {
		env := newTestEnv(t)

		req := httptest.NewRequest("GET", "/rules", nil)
		req.Header.Set("Origin", "http://dashboard.example")
		rr := httptest.NewRecorder()
		env.handler.ServeHTTP(rr, req)
		assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("allow list", func(t *testing.T) {
		env := newTestEnv(t, func(c *config.Config) {
			c.API.CORSOrigins = []string{"http://dashboard.example"}
		})

		req := httptest.NewRequest("GET", "/rules", nil)
		req.Header.Set("Origin", "http://dashboard.example")
		rr := httptest.NewRecorder()
		env.handler.ServeHTTP(rr, req)
		assert.Equal(t, "http://dashboard.example", rr.Header().Get("Access-Control-Allow-Origin"))

		req = httptest.NewRequest("GET", "/rules", nil)
		req.Header.Set("Origin", "http://evil.example")
		rr = httptest.NewRecorder()
		env.handler.ServeHTTP(rr, req)
		assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("preflight", func(t *testing.T) {
		env := newTestEnv(t)

		req := httptest.NewRequest("OPTIONS", "/rules", nil)
		req.Header.Set("Origin", "http://dashboard.example")
		req.Header.Set("Access-Control-Request-Method", "POST")
		rr := httptest.NewRecorder()
		env.handler.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusNoContent, rr.Code)
		assert.Contains(t, rr.Header().Get("Access-Control-Allow-Methods"), "DELETE")
	})
}

func TestMaxBody(t *testing.T) {
	env := newTestEnv(t)

	big := `{"action":"DENY","src_ip":"` + strings.Repeat("a", 2<<20) + `","dst_port":1,"protocol":"TCP"}`
	rr := env.do(t, "POST", "/rules", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	assert.Empty(t, env.engine.Rules())
}
