package ratelim

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"eventdesk/account"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) { w.WriteHeader(http.StatusNoContent) }

func hit(h httprouter.Handle, r *http.Request) int {
	rec := httptest.NewRecorder()
	h(rec, r, nil)
	return rec.Code
}

func TestLimitPerClient(t *testing.T) {
	rl := NewRateLimiter(1, 2, time.Minute)
	h := rl.Limit(ok)

	a := httptest.NewRequest(http.MethodPost, "/", nil)
	a.RemoteAddr = "10.0.0.1:5000"
	b := httptest.NewRequest(http.MethodPost, "/", nil)
	b.RemoteAddr = "10.0.0.2:5000"

	assert.Equal(t, http.StatusNoContent, hit(h, a))
	assert.Equal(t, http.StatusNoContent, hit(h, a))
	assert.Equal(t, http.StatusTooManyRequests, hit(h, a))
	assert.Equal(t, http.StatusNoContent, hit(h, b), "other clients have their own bucket")

	// Same IP, different port: same client.
	a2 := httptest.NewRequest(http.MethodPost, "/", nil)
	a2.RemoteAddr = "10.0.0.1:6000"
	assert.Equal(t, http.StatusTooManyRequests, hit(h, a2))
}

func TestLimitKeysByUser(t *testing.T) {
	rl := NewRateLimiter(1, 1, time.Minute)
	h := rl.Limit(ok)

	acct, err := account.New("user-1", nil, "")
	require.NoError(t, err)
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r = r.WithContext(account.WithContext(r.Context(), acct))
	assert.Equal(t, http.StatusNoContent, hit(h, r))
	assert.Equal(t, http.StatusTooManyRequests, hit(h, r))

	anon := httptest.NewRequest(http.MethodPost, "/", nil)
	anon.RemoteAddr = r.RemoteAddr
	assert.Equal(t, http.StatusNoContent, hit(h, anon))
}

func TestSweepForgetsIdleClients(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, 1, time.Minute)
	rl.now = func() time.Time { return now }

	rl.getLimiter("ip:a")
	now = now.Add(30 * time.Second)
	rl.getLimiter("ip:b")
	now = now.Add(45 * time.Second)
	rl.Sweep()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.NotContains(t, rl.visitors, "ip:a")
	assert.Contains(t, rl.visitors, "ip:b")
}
