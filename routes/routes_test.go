package routes

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"eventdesk/account"
	"eventdesk/clock"
	"eventdesk/drafts"
	"eventdesk/events"
	"eventdesk/filemgr"
	"eventdesk/middleware"
	"eventdesk/mq"
	"eventdesk/notify"
	"eventdesk/publish"
	"eventdesk/ratelim"
	"eventdesk/repo"
	"eventdesk/tickets"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(t *testing.T) (http.Handler, *middleware.Auth) {
	t.Helper()
	log := zerolog.Nop()
	clk := clock.NewFixed(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	store := repo.NewMemoryStore(clk)
	assets := filemgr.NewDiskStore(t.TempDir(), "http://localhost/uploads/", &log)
	hub := notify.NewHub(&log)
	go hub.Run()
	t.Cleanup(hub.Stop)

	emitter := mq.NewLogEmitter(&log)
	pub := publish.New(publish.Deps{Store: store, Assets: assets, Notifier: hub, Emitter: emitter, Clock: clk, Log: &log})
	auth := middleware.NewAuth([]byte("secret"))
	return New(Handlers{
		Auth:    auth,
		Limiter: ratelim.NewRateLimiter(600, 50, time.Minute),
		Events:  events.NewHandler(events.Deps{Store: store, Drafts: drafts.NewMemoryStore(), Publisher: pub, Emitter: emitter, Log: &log}),
		Tickets: tickets.NewHandler(store, clk, emitter, &log),
		Assets:  assets,
		Hub:     hub,
	}), auth
}

func TestHealthAndSchemaArePublic(t *testing.T) {
	h, _ := newRouter(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/schema/event", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestOrganizerRoutesNeedToken(t *testing.T) {
	h, auth := newRouter(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/organizer/events", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	tok, err := auth.Sign(middleware.Claims{UserID: "user-1", Accounts: []account.Membership{{AccountID: "acct-1", Role: account.RoleEditor}}}, time.Hour)
	require.NoError(t, err)

	body := `{"title":"Jazz Night","description":"Live","category":"music","online":true,
		"start_date":"2026-06-01","start_time":"19:00","end_date":"2026-06-01","end_time":"21:00","paid":false,"tickets":[]}`
	r := httptest.NewRequest(http.MethodPost, "/api/organizer/events", strings.NewReader(body))
	r.Header.Set("Authorization", "Bearer "+tok)
	r.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	r = httptest.NewRequest(http.MethodGet, "/api/organizer/events", nil)
	r.Header.Set("Authorization", "Bearer "+tok)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	require.Equal(t, http.StatusOK, rec.Code)

	var list struct {
		EventCount int `json:"eventCount"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	assert.Equal(t, 1, list.EventCount)
}
