package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pratik-mahalle/farmlink/internal/auth"
	"github.com/pratik-mahalle/farmlink/internal/pkg/logger"
	"github.com/pratik-mahalle/farmlink/internal/testutil"
)

const testSecret = "test-secret"

func echoUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, _ := GetUserID(r)
		_, _ = w.Write([]byte(userID))
	})
}

func TestAuthMiddleware(t *testing.T) {
	valid, err := auth.MintToken("user-7", "", testSecret, "farmlink", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantBody   string
	}{
		{"valid token", "Bearer " + valid, http.StatusOK, "user-7"},
		{"lowercase scheme", "bearer " + valid, http.StatusOK, "user-7"},
		{"missing header", "", http.StatusUnauthorized, ""},
		{"wrong scheme", "Basic " + valid, http.StatusUnauthorized, ""},
		{"bad token", "Bearer nope", http.StatusUnauthorized, ""},
	}

	handler := AuthMiddleware(testSecret, "farmlink")(echoUser())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, rr.Body.String())
			}
		})
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	handler := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", rr.Header().Get(RequestIDHeader))

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, seen, 36)
}

func TestRequestID_ReplacesOversizedHeader(t *testing.T) {
	var seen string
	handler := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r)
	}))

	oversized := strings.Repeat("x", maxRequestIDLength+1)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, oversized)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Len(t, seen, 36)
	assert.Equal(t, seen, rr.Header().Get(RequestIDHeader))
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("user:a"))
	assert.True(t, rl.Allow("user:a"))
	assert.False(t, rl.Allow("user:a"), "burst exhausted")
	assert.True(t, rl.Allow("user:b"), "keys are independent")

	now = now.Add(time.Second)
	assert.True(t, rl.Allow("user:a"), "bucket refills")

	now = now.Add(2 * limiterIdleTTL)
	rl.Allow("user:c")
	rl.mu.Lock()
	_, kept := rl.visitors["user:a"]
	rl.mu.Unlock()
	assert.False(t, kept, "idle visitors are dropped")
}

func TestRateLimit_RespondsTooManyRequests(t *testing.T) {
	handler := RateLimit(0.001, 1)(echoUser())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithUserID(req.Context(), "user-1"))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "1", rr.Header().Get("Retry-After"))
}

func TestRecovery(t *testing.T) {
	handler := Recovery(testutil.NewTestLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "boom")
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"https://app.farmlink.example"})(echoUser())

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/connections", nil)
	req.Header.Set("Origin", "https://app.farmlink.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodDelete)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "https://app.farmlink.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodDelete)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/connections", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestLogger_TagsProvider(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(logger.Config{Level: "info", Format: "json", Output: &buf})

	r := chi.NewRouter()
	r.Use(Logger(log))
	r.Get("/api/v1/connections/{provider}/status", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/connections/deere/status", nil))

	out := buf.String()
	assert.Contains(t, out, `"provider":"deere"`)
	assert.Contains(t, out, `"route":"/api/v1/connections/{provider}/status"`)
	assert.Contains(t, out, `"status":502`)
	assert.Contains(t, out, `"level":"error"`)
}

func TestLogger_IncludesHandlerFields(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(logger.Config{Level: "info", Format: "json", Output: &buf})

	handler := RequestID()(Logger(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		AddLogField(w, "endpoint", "fields")
		_, _ = w.Write([]byte("ok"))
	})))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "req-7")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	assert.Contains(t, out, `"endpoint":"fields"`)
	assert.Contains(t, out, `"request_id":"req-7"`)
	assert.Contains(t, out, `"bytes":2`)
	assert.Contains(t, out, `"level":"info"`)
}
