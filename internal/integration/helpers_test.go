package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/aliuyar1234/pmdash/internal/app"
	"github.com/aliuyar1234/pmdash/internal/auth"
	"github.com/aliuyar1234/pmdash/internal/config"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

type envelopeResponse struct {
	RequestID string          `json:"request_id"`
	Data      json.RawMessage `json:"data"`
}

type errorEnvelope struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"request_id"`
	} `json:"error"`
}

func testConfig() *config.Config {
	return &config.Config{
		Env:                 "dev",
		HTTPAddr:            ":0",
		BaseURL:             "http://localhost",
		AppName:             "PM Dashboard",
		DBDSN:               "unused",
		JWTSecret:           "test-secret",
		LogLevel:            "error",
		RateLimitRPM:        600,
		SessionDays:         7,
		InviteExpiryDays:    7,
		InviteRetentionDays: 30,
		NotifyTimeoutMS:     2000,
	}
}

func newTestServer(t *testing.T, pool *pgxpool.Pool) *httptest.Server {
	t.Helper()

	services, err := app.NewServices(testConfig())
	require.NoError(t, err)

	srv := httptest.NewServer(app.NewRouter(pool, testConfig(), services))
	t.Cleanup(func() {
		_ = services.Hub.Close()
		srv.Close()
	})
	return srv
}

func newCSRFClient(t *testing.T, serverURL string) (*http.Client, string) {
	t.Helper()

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{Jar: jar}

	baseURL, err := url.Parse(serverURL)
	require.NoError(t, err)

	csrfToken, err := auth.GenerateCSRFToken()
	require.NoError(t, err)
	jar.SetCookies(baseURL, []*http.Cookie{{
		Name:  auth.CSRFCookieName,
		Value: csrfToken,
		Path:  "/",
	}})

	return client, csrfToken
}

// apiUser is a signed-in client.
type apiUser struct {
	t      *testing.T
	client *http.Client
	csrf   string
	base   string
	ID     uuid.UUID
}

func signup(t *testing.T, baseURL, email, fullName string) *apiUser {
	t.Helper()

	client, csrf := newCSRFClient(t, baseURL)
	u := &apiUser{t: t, client: client, csrf: csrf, base: baseURL}

	var signed struct {
		User struct {
			ID uuid.UUID `json:"id"`
		} `json:"user"`
	}
	u.decode(u.expect(http.MethodPost, "/api/v1/auth/signup", http.StatusCreated, map[string]any{
		"email":     email,
		"password":  "password123",
		"full_name": fullName,
	}), &signed)
	require.NotEqual(t, uuid.Nil, signed.User.ID)
	u.ID = signed.User.ID

	u.expect(http.MethodPost, "/api/v1/auth/login", http.StatusOK, map[string]any{
		"email":    email,
		"password": "password123",
	})
	return u
}

// expect performs a request and requires wantStatus, returning the raw body.
func (u *apiUser) expect(method, path string, wantStatus int, payload any) []byte {
	u.t.Helper()

	var bodyReader io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		require.NoError(u.t, err)
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, u.base+path, bodyReader)
	require.NoError(u.t, err)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method != http.MethodGet {
		req.Header.Set(auth.CSRFHeaderName, u.csrf)
	}

	resp, err := u.client.Do(req)
	require.NoError(u.t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(u.t, err)
	require.Equal(u.t, wantStatus, resp.StatusCode, "%s %s body: %s", method, path, string(body))

	return body
}

// decode unwraps the success envelope into dst.
func (u *apiUser) decode(body []byte, dst any) {
	u.t.Helper()

	var env envelopeResponse
	require.NoError(u.t, json.Unmarshal(body, &env))
	require.NotEmpty(u.t, env.RequestID)
	require.NoError(u.t, json.Unmarshal(env.Data, dst))
}

func (u *apiUser) expectError(method, path string, wantStatus int, payload any) errorEnvelope {
	u.t.Helper()

	var env errorEnvelope
	require.NoError(u.t, json.Unmarshal(u.expect(method, path, wantStatus, payload), &env))
	require.NotEmpty(u.t, env.Error.RequestID)
	return env
}

func (u *apiUser) createCompany(name string) uuid.UUID {
	u.t.Helper()

	var out struct {
		Company struct {
			ID   uuid.UUID `json:"id"`
			Role string    `json:"role"`
		} `json:"company"`
	}
	u.decode(u.expect(http.MethodPost, "/api/v1/companies", http.StatusCreated, map[string]any{
		"name": name,
	}), &out)
	require.NotEqual(u.t, uuid.Nil, out.Company.ID)
	require.Equal(u.t, "owner", out.Company.Role)
	return out.Company.ID
}

type invitationView struct {
	ID             uuid.UUID `json:"id"`
	Email          string    `json:"email"`
	Role           string    `json:"role"`
	Token          string    `json:"token"`
	Status         string    `json:"status"`
	InvitationLink string    `json:"invitation_link"`
}

func (u *apiUser) invite(companyID uuid.UUID, email, role string, wantStatus int) (invitationView, bool) {
	u.t.Helper()

	var out struct {
		Invitation invitationView `json:"invitation"`
		Resend     bool           `json:"resend"`
	}
	u.decode(u.expect(http.MethodPost, "/api/v1/invitations", wantStatus, map[string]any{
		"email":     email,
		"role":      role,
		"companyId": companyID,
	}), &out)
	return out.Invitation, out.Resend
}

func (u *apiUser) auditActions(companyID uuid.UUID) map[string]bool {
	u.t.Helper()

	var out struct {
		Events []struct {
			Action string `json:"action"`
		} `json:"events"`
	}
	u.decode(u.expect(http.MethodGet, "/api/v1/companies/"+companyID.String()+"/audit?limit=100", http.StatusOK, nil), &out)

	actions := make(map[string]bool, len(out.Events))
	for _, ev := range out.Events {
		actions[ev.Action] = true
	}
	return actions
}
