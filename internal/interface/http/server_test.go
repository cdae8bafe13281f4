package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alphawulf/alphawulf-hub/internal/application/command"
	"github.com/alphawulf/alphawulf-hub/internal/application/query"
	"github.com/alphawulf/alphawulf-hub/internal/domain/progress"
	"github.com/alphawulf/alphawulf-hub/internal/domain/shared"
	"github.com/alphawulf/alphawulf-hub/internal/infrastructure/auth"
	"github.com/alphawulf/alphawulf-hub/internal/infrastructure/external/telegram"
	"github.com/alphawulf/alphawulf-hub/internal/infrastructure/metrics"
	"github.com/alphawulf/alphawulf-hub/internal/infrastructure/persistence/sqlite"
	"github.com/alphawulf/alphawulf-hub/internal/infrastructure/seed"
	"github.com/alphawulf/alphawulf-hub/internal/interface/http/handlers"
	"github.com/alphawulf/alphawulf-hub/pkg/logger"
)

const (
	testBotToken = "123456:TEST-token"
	testSecret   = "0123456789abcdef0123456789abcdef-http-tests"
)

type testAPI struct {
	server   *Server
	store    *sqlite.Store
	sessions *auth.SessionIssuer
}

func newTestAPI(t *testing.T, mutate func(*Config, *Dependencies)) *testAPI {
	t.Helper()
	ctx := context.Background()

	store, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "http.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	catalog, err := seed.DefaultCatalog()
	require.NoError(t, err)

	sessions, err := auth.NewSessionIssuer(auth.SessionConfig{Secret: testSecret, Issuer: "alphawulf-test"})
	require.NoError(t, err)

	log := logger.Discard()
	health := handlers.NewCompositeHealthChecker("test")
	health.AddCheck("database", handlers.PingCheck(store))

	cfg := DefaultConfig()
	deps := Dependencies{
		Verifier: telegram.NewInitDataVerifier(testBotToken, telegram.WithVerifierLogger(log)),
		Sessions: sessions,
		Accounts: store.Accounts(),
		ProvisionAccount: command.NewProvisionAccountHandler(store.Accounts(), store.Progress(), catalog, command.ProvisionAccountConfig{
			Logger:             log,
			WelcomeAchievement: seed.TelegramProAchievement,
		}),
		AwardExperience: command.NewAwardExperienceHandler(store.Progress(), catalog, command.AwardExperienceConfig{Logger: log}),
		GetProgress:     query.NewGetProgressHandler(store.Progress(), nil),
		GetAchievements: query.NewGetAchievementsHandler(store.Progress(), catalog, nil),
		HealthChecker:   health,
		Metrics:         metrics.New(),
		Logger:          log,
	}
	if mutate != nil {
		mutate(&cfg, &deps)
	}

	s := NewServer(cfg, deps)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return &testAPI{server: s, store: store, sessions: sessions}
}

func (a *testAPI) do(t *testing.T, method, path, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	a.server.Handler().ServeHTTP(rec, req)
	return rec
}

func signedInitData(t *testing.T, telegramID string) string {
	t.Helper()
	raw, err := telegram.Sign(testBotToken, url.Values{
		"auth_date": {"1700000000"},
		"query_id":  {"AAE"},
		"user":      {`{"id":` + telegramID + `,"first_name":"Ann","username":"alpha"}`},
	})
	require.NoError(t, err)
	return raw
}

func (a *testAPI) login(t *testing.T, telegramID string) string {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/auth/telegram", "", http.Header{InitDataHeader: {signedInitData(t, telegramID)}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func bearer(token string) http.Header {
	return http.Header{"Authorization": {"Bearer " + token}}
}

// ─────────────────────────────────────────────────────────────────────────────
// Auth
// ─────────────────────────────────────────────────────────────────────────────

func TestTelegramAuthHeaderAndBody(t *testing.T) {
	api := newTestAPI(t, nil)

	rec := api.do(t, http.MethodPost, "/api/auth/telegram", "", http.Header{InitDataHeader: {signedInitData(t, "279058397")}})
	require.Equal(t, http.StatusOK, rec.Code)

	var first AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	assert.True(t, first.Created)
	assert.Equal(t, "alpha", first.User.Username)
	assert.Equal(t, int64(0), first.User.Balance)

	body, err := json.Marshal(map[string]string{"initData": signedInitData(t, "279058397")})
	require.NoError(t, err)
	rec = api.do(t, http.MethodPost, "/api/auth/telegram", string(body), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var second AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	assert.False(t, second.Created)
	assert.Equal(t, first.User.ID, second.User.ID)

	claims, err := api.sessions.Validate(second.Token)
	require.NoError(t, err)
	assert.Equal(t, first.User.ID, claims.AccountID)
	assert.Equal(t, int64(279058397), claims.TelegramID)
}

func TestTelegramAuthFailuresLookIdentical(t *testing.T) {
	api := newTestAPI(t, nil)
	tampered := strings.Replace(signedInitData(t, "42"), "alpha", "omega", 1)

	cases := map[string]*httptest.ResponseRecorder{
		"no credentials": api.do(t, http.MethodPost, "/api/auth/telegram", "", nil),
		"tampered":       api.do(t, http.MethodPost, "/api/auth/telegram", "", http.Header{InitDataHeader: {tampered}}),
		"garbage body":   api.do(t, http.MethodPost, "/api/auth/telegram", "{not json", nil),
		"no token":       api.do(t, http.MethodGet, "/api/progress", "", nil),
		"bad token":      api.do(t, http.MethodGet, "/api/progress", "", bearer("abc.def.ghi")),
	}
	for name, rec := range cases {
		assert.Equal(t, http.StatusUnauthorized, rec.Code, name)
		assert.JSONEq(t, `{"code":"UNAUTHORIZED"}`, rec.Body.String(), name)
	}
}

func TestMeReturnsAccount(t *testing.T) {
	api := newTestAPI(t, nil)
	token := api.login(t, "777")

	rec := api.do(t, http.MethodGet, "/api/auth/me", "", bearer(token))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"telegramId":777`)
}

// ─────────────────────────────────────────────────────────────────────────────
// Progress
// ─────────────────────────────────────────────────────────────────────────────

func TestProgressFlow(t *testing.T) {
	api := newTestAPI(t, nil)
	token := api.login(t, "1001")

	rec := api.do(t, http.MethodGet, "/api/progress", "", bearer(token))
	require.Equal(t, http.StatusOK, rec.Code)
	var dto query.ProgressDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dto))
	assert.Equal(t, 1, dto.Level)
	assert.Equal(t, int64(100), dto.Threshold)

	rec = api.do(t, http.MethodPost, "/api/progress/experience", `{"amount":250}`, bearer(token))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var award struct {
		Level           int                 `json:"level"`
		Experience      int64               `json:"experience"`
		Threshold       int64               `json:"threshold"`
		LevelsCrossed   []int               `json:"levelsCrossed"`
		LeveledUp       bool                `json:"leveledUp"`
		NewAchievements []progress.Unlocked `json:"newAchievements"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &award))
	assert.Equal(t, 3, award.Level)
	assert.Equal(t, int64(0), award.Experience)
	assert.Equal(t, int64(225), award.Threshold)
	assert.Equal(t, []int{2, 3}, award.LevelsCrossed)
	assert.True(t, award.LeveledUp)
	assert.NotNil(t, award.NewAchievements)

	rec = api.do(t, http.MethodGet, "/api/progress/achievements", "", bearer(token))
	require.Equal(t, http.StatusOK, rec.Code)
	var ach query.AchievementsDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ach))
	require.Len(t, ach.Unlocked, 1)
	assert.Equal(t, seed.TelegramProAchievement, ach.Unlocked[0].Name)
}

func TestAwardRejectsInvalidAmounts(t *testing.T) {
	api := newTestAPI(t, nil)
	token := api.login(t, "1002")

	bodies := []string{
		`{"amount":0}`, `{"amount":-5}`, `{"amount":2.5}`, `{}`, `not json`,
		`{"amount":"100"}`, `{"amount":null}`, `{"amount":true}`, `{"amount":1e2}`,
	}
	for _, body := range bodies {
		rec := api.do(t, http.MethodPost, "/api/progress/experience", body, bearer(token))
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}

	rec := api.do(t, http.MethodGet, "/api/progress", "", bearer(token))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"experience":0`)
}

type stubSync struct {
	accountID string
	delivered bool
	err       error
}

func (s *stubSync) Sync(_ context.Context, accountID string) (bool, error) {
	s.accountID = accountID
	return s.delivered, s.err
}

func TestSyncTelegram(t *testing.T) {
	syncer := &stubSync{delivered: true}
	api := newTestAPI(t, func(_ *Config, d *Dependencies) { d.ProgressSync = syncer })
	token := api.login(t, "1003")

	rec := api.do(t, http.MethodPost, "/api/progress/sync-telegram", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/progress/sync-telegram", "", bearer(token))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"delivered":true}`, rec.Body.String())

	acc, err := api.store.Accounts().GetByTelegramID(context.Background(), 1003)
	require.NoError(t, err)
	assert.Equal(t, acc.ID, syncer.accountID)

	syncer.delivered, syncer.err = false, shared.Unavailable("telegram", "SendText", errors.New("timeout"))
	rec = api.do(t, http.MethodPost, "/api/progress/sync-telegram", "", bearer(token))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSyncTelegramNeedsBot(t *testing.T) {
	api := newTestAPI(t, nil)
	token := api.login(t, "1004")

	rec := api.do(t, http.MethodPost, "/api/progress/sync-telegram", "", bearer(token))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCatalogIsPublic(t *testing.T) {
	api := newTestAPI(t, nil)

	rec := api.do(t, http.MethodGet, "/api/achievements", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "First Steps")
}

// ─────────────────────────────────────────────────────────────────────────────
// Errors, limits, health
// ─────────────────────────────────────────────────────────────────────────────

func TestWriteErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{progress.ErrInvalidAmount, http.StatusBadRequest},
		{auth.ErrInvalidSession, http.StatusUnauthorized},
		{progress.ErrRecordNotFound, http.StatusNotFound},
		{shared.Unavailable("progress", "Get", errors.New("dial tcp")), http.StatusServiceUnavailable},
		{progress.ErrVersionConflict, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		writeError(rec, httptest.NewRequest(http.MethodGet, "/", nil), tc.err)
		assert.Equal(t, tc.status, rec.Code, tc.err.Error())
		if tc.status == http.StatusServiceUnavailable {
			assert.Equal(t, "1", rec.Header().Get("Retry-After"))
		}
	}
}

func TestRateLimit(t *testing.T) {
	api := newTestAPI(t, func(cfg *Config, _ *Dependencies) {
		cfg.RateLimitRequests = 2
		cfg.RateLimitWindow = time.Hour
	})

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/api/achievements", "", nil).Code)
	}
	rec := api.do(t, http.MethodGet, "/api/achievements", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "3600", rec.Header().Get("Retry-After"))

	// Health endpoints are outside /api.
	assert.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/health/live", "", nil).Code)
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (bool, error) {
	return false, errors.New("redis down")
}

func TestRateLimiterFailureLetsRequestsThrough(t *testing.T) {
	api := newTestAPI(t, func(_ *Config, deps *Dependencies) {
		deps.RateLimiter = failingLimiter{}
	})
	assert.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/api/achievements", "", nil).Code)
}

func TestCORSPreflight(t *testing.T) {
	api := newTestAPI(t, nil)

	rec := api.do(t, http.MethodOptions, "/api/progress", "", http.Header{"Origin": {"https://web.telegram.org"}})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), InitDataHeader)
}

func TestHealthAndMetrics(t *testing.T) {
	api := newTestAPI(t, nil)

	rec := api.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"database"`)

	assert.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/health/ready", "", nil).Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = api.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "alphawulf_http_requests_total")
}

func TestReadyFailsWhenStoreIsDown(t *testing.T) {
	api := newTestAPI(t, nil)
	require.NoError(t, api.store.Close())

	assert.Equal(t, http.StatusServiceUnavailable, api.do(t, http.MethodGet, "/health/ready", "", nil).Code)
}

func TestMemoryRateLimiterPerKey(t *testing.T) {
	rl := NewMemoryRateLimiter(1, time.Hour)
	defer rl.Close()

	ok, _ := rl.Allow(context.Background(), "a")
	assert.True(t, ok)
	ok, _ = rl.Allow(context.Background(), "a")
	assert.False(t, ok)
	ok, _ = rl.Allow(context.Background(), "b")
	assert.True(t, ok)
}
