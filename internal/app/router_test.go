package app

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aliuyar1234/pmdash/internal/apperrors"
	"github.com/aliuyar1234/pmdash/internal/auth"
	"github.com/aliuyar1234/pmdash/internal/config"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		Env:          "dev",
		BaseURL:      "http://localhost",
		AppName:      "PM Dashboard",
		JWTSecret:    "test-secret",
		RateLimitRPM: 100,
		SessionDays:  7,
	}
}

// newTestRouter builds the router without a database. Only routes that are
// rejected before reaching a store can be exercised.
func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	services, err := NewServices(testConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = services.Hub.Close() })

	return NewRouter(nil, testConfig(), services)
}

func TestRouter_Healthz(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get(apperrors.RequestIDHeader))

	var env apperrors.SuccessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.Equal(t, map[string]any{"status": "ok"}, env.Data)
}

func TestRouter_MetricsExposeRouteLabels(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `pmdash_http_requests_total{method="GET",route="/healthz",status="200"}`)
}

func TestRouter_APIRequiresSession(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/me", nil))

	require.Equal(t, http.StatusUnauthorized, rec.Code)

	var env apperrors.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.Equal(t, "unauthorized", env.Error.Code)
}

func TestRouter_MutationsRequireCSRF(t *testing.T) {
	router := newTestRouter(t)

	for _, path := range []string{"/api/v1/companies", "/api/v1/invitations", "/invitations", "/api/v1/auth/signup"} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{}`))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusForbidden, rec.Code, path)
	}
}

func TestRouter_InvitationPageRedirectsToLogin(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/invitations/abc", nil))

	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, "/login?returnTo=%2Finvitations%2Fabc", rec.Header().Get("Location"))
}

func TestRouter_LoginPageSetsCSRFCookie(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/login", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "no-cache, no-store, must-revalidate", rec.Header().Get("Cache-Control"))

	var found bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.CSRFCookieName {
			found = true
			require.Contains(t, rec.Body.String(), c.Value)
		}
	}
	require.True(t, found, "csrf cookie not set")
}

func TestRecoveryMiddleware(t *testing.T) {
	h := apperrors.RequestIDMiddleware(RecoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var env apperrors.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.Equal(t, apperrors.UnexpectedMessage, env.Error.Message)
	require.NotEmpty(t, env.Error.RequestID)
}

func TestRecoveryMiddleware_ReRaisesAbort(t *testing.T) {
	h := RecoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	require.PanicsWithValue(t, http.ErrAbortHandler, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestRouteLabel(t *testing.T) {
	r := chi.NewRouter()
	var got string
	r.Get("/tasks/{task_id}", func(w http.ResponseWriter, r *http.Request) {
		got = routeLabel(r)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/tasks/"+uuid.NewString(), nil))
	require.Equal(t, "/tasks/{task_id}", got)

	require.Equal(t, "unmatched", routeLabel(httptest.NewRequest(http.MethodGet, "/", nil)))
}

func TestKeyByUser(t *testing.T) {
	userID := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(auth.WithUser(req.Context(), auth.User{ID: userID}))

	key, err := keyByUser(req)
	require.NoError(t, err)
	require.Equal(t, "user:"+userID.String(), key)
}
