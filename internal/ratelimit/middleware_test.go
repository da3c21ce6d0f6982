package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-kasir/internal/common"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
}

func TestSlidingWindowPerEmployee(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	handler := Handler{Limiter: Sliding{Client: client, Prefix: "commit:", Window: time.Minute, Max: 1}}.Middleware(okHandler())

	send := func(employee string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/commit", nil)
		req = req.WithContext(common.WithEmployeeID(req.Context(), employee))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	require.Equal(t, http.StatusOK, send("emp-1").Code)
	limited := send("emp-1")
	require.Equal(t, http.StatusTooManyRequests, limited.Code)
	require.Equal(t, "1", limited.Header().Get("X-RateLimit-Limit"))
	require.Equal(t, "0", limited.Header().Get("X-RateLimit-Remaining"))
	require.Contains(t, limited.Body.String(), "RATE_LIMITED")
	require.Equal(t, http.StatusOK, send("emp-2").Code)
}

func TestFixedWindowWithMemoryStore(t *testing.T) {
	fixed, err := NewFixed(NewMemoryStore(), "2-M")
	require.NoError(t, err)
	handler := Handler{Limiter: fixed}.Middleware(okHandler())

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.7:5050"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	require.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestNewFixedRejectsBadRate(t *testing.T) {
	_, err := NewFixed(NewMemoryStore(), "lots")
	require.Error(t, err)
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string) (Decision, error) {
	return Decision{}, errors.New("redis down")
}

func TestLimiterFailureLetsRequestThrough(t *testing.T) {
	var reported error
	handler := Handler{Limiter: brokenLimiter{}, OnError: func(err error) { reported = err }}.Middleware(okHandler())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Error(t, reported)
}
