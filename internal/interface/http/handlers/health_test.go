package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCompositeHealthChecker_Empty(t *testing.T) {
	st := NewCompositeHealthChecker("test").Check(context.Background())
	assert.Equal(t, StatusOK, st.Status)
	assert.True(t, st.Ready)
	assert.Equal(t, "test", st.Version)
	assert.Empty(t, st.Message)
}

func TestCompositeHealthChecker_OptionalFailureDegrades(t *testing.T) {
	c := NewCompositeHealthChecker("test")
	c.AddCheck("database", func(context.Context) error { return nil })
	c.AddOptionalCheck("telegram", func(context.Context) error { return errors.New("circuit open") })

	st := c.Check(context.Background())
	assert.Equal(t, StatusDegraded, st.Status)
	assert.False(t, st.Healthy)
	assert.True(t, st.Ready)
	assert.Equal(t, "failing: telegram", st.Message)
	assert.True(t, st.Checks["database"].Healthy)
	assert.True(t, st.Checks["database"].Critical)
	assert.Equal(t, "circuit open", st.Checks["telegram"].Message)
}

func TestCompositeHealthChecker_CriticalFailure(t *testing.T) {
	c := NewCompositeHealthChecker("test")
	c.AddOptionalCheck("redis", func(context.Context) error { return errors.New("refused") })
	c.AddCheck("database", func(context.Context) error { return errors.New("down") })

	st := c.Check(context.Background())
	assert.Equal(t, StatusDown, st.Status)
	assert.False(t, st.Ready)
	assert.Equal(t, "failing: database, redis", st.Message)

	c.AddCheck("database", func(context.Context) error { return nil })
	st = c.Check(context.Background())
	assert.True(t, st.Ready)
	assert.Len(t, st.Checks, 2)
}

func TestCompositeHealthChecker_Timeout(t *testing.T) {
	c := NewCompositeHealthChecker("test")
	c.SetTimeout(20 * time.Millisecond)
	c.AddCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	st := c.Check(context.Background())
	assert.False(t, st.Ready)
	assert.Contains(t, st.Checks["slow"].Message, "deadline exceeded")
}

type pingerFunc func(context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestPingCheck(t *testing.T) {
	called := false
	fn := PingCheck(pingerFunc(func(context.Context) error { called = true; return nil }))
	assert.NoError(t, fn(context.Background()))
	assert.True(t, called)
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	h := SecurityHeadersMiddleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}
