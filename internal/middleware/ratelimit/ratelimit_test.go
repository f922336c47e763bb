package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, perMinute int) (*Limiter, *time.Time) {
	t.Helper()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	rl := NewLimiter(Config{RequestsPerMinute: perMinute, CleanupInterval: time.Hour})
	rl.now = func() time.Time { return now }
	t.Cleanup(rl.Stop)
	return rl, &now
}

func TestAllow_WindowResets(t *testing.T) {
	rl, now := newTestLimiter(t, 2)

	ok, _ := rl.Allow("a")
	assert.True(t, ok)
	ok, _ = rl.Allow("a")
	assert.True(t, ok)

	*now = now.Add(20 * time.Second)
	ok, wait := rl.Allow("a")
	assert.False(t, ok)
	assert.Equal(t, 40*time.Second, wait)

	ok, _ = rl.Allow("b")
	assert.True(t, ok, "keys are counted separately")

	*now = now.Add(40 * time.Second)
	ok, _ = rl.Allow("a")
	assert.True(t, ok)
	assert.Equal(t, int64(1), rl.GetMetrics().TotalHits)
}

func TestCleanupStaleEntries(t *testing.T) {
	rl, now := newTestLimiter(t, 5)
	rl.Allow("a")
	*now = now.Add(11 * time.Minute)
	rl.Allow("b")

	rl.cleanupStaleEntries()
	assert.Equal(t, 1, rl.ActiveClients())
}

func TestUserOrIP(t *testing.T) {
	key := UserOrIP("X-User-ID", func(*http.Request) string { return "10.0.0.1" })

	r := httptest.NewRequest(http.MethodPost, "/", nil)
	assert.Equal(t, "ip:10.0.0.1", key(r))
	r.Header.Set("X-User-ID", "lucas")
	assert.Equal(t, "user:lucas", key(r))
}

func TestMiddleware_LimitsWritesOnly(t *testing.T) {
	rl, _ := newTestLimiter(t, 1)
	h := rl.Middleware(func(*http.Request) string { return "k" })(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	serve := func(method string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(method, "/api/categories", nil))
		return rec
	}

	assert.Equal(t, http.StatusNoContent, serve(http.MethodPost).Code)
	rec := serve(http.MethodPost)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"rate limit exceeded"}`, rec.Body.String())

	assert.Equal(t, http.StatusNoContent, serve(http.MethodGet).Code)
}

func TestRetryAfterSeconds(t *testing.T) {
	assert.Equal(t, "1", retryAfterSeconds(0))
	assert.Equal(t, "2", retryAfterSeconds(1500*time.Millisecond))
}
