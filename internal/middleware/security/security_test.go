package security

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsSuspicious(t *testing.T) {
	d := NewDetector()

	tests := []struct {
		name   string
		method string
		target string
		want   bool
	}{
		{"plain api call", http.MethodGet, "/api/years/2024/comparison", false},
		{"path traversal", http.MethodGet, "/api/../../etc/passwd", true},
		{"dotenv probe", http.MethodGet, "/.env", true},
		{"traversal in query", http.MethodGet, "/api/events?table=../secrets", true},
		{"trace method", "TRACE", "/api/totals", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(tt.method, tt.target, nil)
			assert.Equal(t, tt.want, d.IsSuspicious(r))
		})
	}
}

func TestExtractClientIP_TrustsOnlyKnownProxies(t *testing.T) {
	d := NewDetector()

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.1.2.3:5000"
	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.1.2.3")
	assert.Equal(t, "203.0.113.7", d.ExtractClientIP(r))

	r.RemoteAddr = "198.51.100.4:5000"
	assert.Equal(t, "198.51.100.4", d.ExtractClientIP(r))

	require.NoError(t, d.AddTrustedProxy("198.51.100.0/24"))
	assert.Equal(t, "203.0.113.7", d.ExtractClientIP(r))
	assert.Error(t, d.AddTrustedProxy("not-a-cidr"))
}

func TestDetectorMiddleware(t *testing.T) {
	d := NewDetector()
	h := d.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/.git/config", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, int64(1), d.GetMetrics().SuspiciousRequests)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/totals", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHeadersMiddleware(t *testing.T) {
	h := NewHeadersMiddleware(DefaultHeadersConfig()).Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/totals", nil))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))

	r := httptest.NewRequest(http.MethodGet, "/api/totals", nil)
	r.TLS = &tls.ConnectionState{}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	assert.Equal(t, "max-age=31536000; includeSubDomains", rec.Header().Get("Strict-Transport-Security"))
}
