package middleware_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/bryanwahyu/paperscore/internal/domain/jobs"
	"github.com/bryanwahyu/paperscore/internal/middleware"
	"github.com/bryanwahyu/paperscore/internal/telemetry"
)

type staticVerifier struct {
	sig  string
	path string
}

func (v staticVerifier) Verify(signature, target string, body []byte) bool {
	if v.path != "" && target != v.path {
		return false
	}
	return signature == v.sig && len(body) > 0
}

func echoBody(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	w.Header().Set("X-Message-Id", middleware.MessageIDFromContext(r.Context()))
	_, _ = w.Write(body)
}

func TestSignatureAuth(t *testing.T) {
	tests := []struct {
		name     string
		sig      string
		required bool
		want     int
	}{
		{"valid", "good", true, http.StatusOK},
		{"invalid", "bad", true, http.StatusUnauthorized},
		{"invalid when optional", "bad", false, http.StatusUnauthorized},
		{"missing", "", true, http.StatusUnauthorized},
		{"missing when optional", "", false, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := middleware.SignatureAuth(staticVerifier{sig: "good"}, tt.required)(http.HandlerFunc(echoBody))
			req := httptest.NewRequest(http.MethodPost, "/stages/extract", strings.NewReader(`{"id":"j1"}`))
			if tt.sig != "" {
				req.Header.Set(jobs.HeaderSignature, tt.sig)
			}
			req.Header.Set(jobs.HeaderMessageID, "msg-1")
			rec := httptest.NewRecorder()

			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusOK {
				assert.Equal(t, `{"id":"j1"}`, rec.Body.String())
				assert.Equal(t, "msg-1", rec.Header().Get("X-Message-Id"))
			}
		})
	}
}

func TestSignatureAuthChecksRequestPath(t *testing.T) {
	v := staticVerifier{sig: "good", path: "/queue/callback"}
	h := middleware.SignatureAuth(v, true)(http.HandlerFunc(echoBody))

	for path, want := range map[string]int{
		"/queue/callback": http.StatusOK,
		"/queue/failure":  http.StatusUnauthorized,
	} {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"id":"j1"}`))
		req.Header.Set(jobs.HeaderSignature, "good")
		rec := httptest.NewRecorder()

		h.ServeHTTP(rec, req)

		assert.Equal(t, want, rec.Code, path)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	h := middleware.APIKeyAuth(map[string]string{"acme": "k-123"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(middleware.OwnerFromContext(r.Context())))
	}))

	t.Run("bearer key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/analyses", nil)
		req.Header.Set("Authorization", "Bearer k-123")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "acme", rec.Body.String())
	})

	t.Run("unknown key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/analyses", nil)
		req.Header.Set("Authorization", "nope")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("missing header", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/analyses", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("open api", func(t *testing.T) {
		open := middleware.APIKeyAuth(nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))
		rec := httptest.NewRecorder()
		open.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}

func TestRequireOwner(t *testing.T) {
	mux := chi.NewRouter()
	mux.Use(middleware.APIKeyAuth(map[string]string{"acme": "k-123"}))
	mux.With(middleware.RequireOwner).Get("/owners/{owner}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	for path, want := range map[string]int{
		"/owners/acme":     http.StatusOK,
		"/owners/other":    http.StatusForbidden,
		"/owners/bad%20id": http.StatusBadRequest,
	} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "k-123")
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Code, path)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := middleware.NewRateLimiter(1, 2)
	assert.True(t, rl.Allow("acme"))
	assert.True(t, rl.Allow("acme"))
	assert.False(t, rl.Allow("acme"))
	assert.True(t, rl.Allow("globex"), "buckets are per key")

	h := middleware.RateLimitMiddleware(middleware.NewRateLimiter(0.5, 1))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	first := httptest.NewRecorder()
	h.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/", nil))
	second := httptest.NewRecorder()
	h.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "3", second.Header().Get("Retry-After"))
}

func TestHealthHandlers(t *testing.T) {
	checkers := map[string]middleware.HealthChecker{
		"redis": middleware.CheckFunc(func(context.Context) error { return nil }),
		"minio": middleware.CheckFunc(func(context.Context) error { return errors.New("bucket missing") }),
	}

	rec := httptest.NewRecorder()
	middleware.HealthHandler(checkers)(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"minio":{"status":"unhealthy","message":"bucket missing"}`)
	assert.Contains(t, rec.Body.String(), `"redis":{"status":"healthy"}`)

	rec = httptest.NewRecorder()
	middleware.ReadinessHandler(checkers)(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, rec.Body.String(), "bucket missing")

	delete(checkers, "minio")
	rec = httptest.NewRecorder()
	middleware.ReadinessHandler(checkers)(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	middleware.LivenessHandler(rec, httptest.NewRequest(http.MethodGet, "/live", nil))
	assert.Equal(t, "ok", rec.Body.String())
}

func TestLoggingAndMetrics(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	m := telemetry.New()
	h := middleware.MetricsMiddleware(m)(middleware.LoggingMiddleware(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/boom" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("ok"))
	})))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/fine", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))

	require.Equal(t, 2, logs.Len())
	entries := logs.AllUntimed()
	assert.Equal(t, zap.InfoLevel, entries[0].Level)
	assert.Equal(t, int64(2), entries[0].ContextMap()["bytes"])
	assert.Equal(t, zap.ErrorLevel, entries[1].Level)
	assert.Equal(t, "/boom", entries[1].ContextMap()["path"])

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("5xx")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.InFlight))
}

func TestValidators(t *testing.T) {
	assert.NoError(t, middleware.ValidateOwnerID("acme_01"))
	assert.Error(t, middleware.ValidateOwnerID(""))
	assert.Error(t, middleware.ValidateOwnerID("a b"))

	assert.NoError(t, middleware.ValidateJobID("6f1c1f0e-3c1a-4f55-9a55-0d3f5b1a9c11"))
	assert.Error(t, middleware.ValidateJobID("job-1"))

	assert.NoError(t, middleware.ValidateFileRef("uploads/acme/thesis.pdf"))
	for _, bad := range []string{"", "/etc/passwd", "uploads/../secret", "uploads//a.pdf", "a\x00b.pdf"} {
		assert.Error(t, middleware.ValidateFileRef(bad), bad)
	}

	assert.NoError(t, middleware.ValidateFileName("thesis.pdf"))
	for _, bad := range []string{"", "thesis", ".pdf", "dir/thesis.pdf"} {
		assert.Error(t, middleware.ValidateFileName(bad), bad)
	}

	assert.Equal(t, 1, middleware.ValidatePage(0))
	assert.Equal(t, 20, middleware.ValidatePageSize(0))
	assert.Equal(t, 100, middleware.ValidatePageSize(1000))
	assert.Equal(t, "abc", middleware.SanitizeString(" a\x00b\x07c "))
}
