package invitations

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aliuyar1234/pmdash/internal/auth"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func postCreate(t *testing.T, f *fixture, body string, user *auth.User) (int, errorBody) {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/invitations", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if user != nil {
		req = req.WithContext(auth.WithUser(req.Context(), *user))
	}
	rec := httptest.NewRecorder()
	HandleCreate(f.svc, nil).ServeHTTP(rec, req)

	var out errorBody
	if rec.Code >= http.StatusBadRequest {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec.Code, out
}

func TestHandleCreate_ValidatesBeforeSession(t *testing.T) {
	f := newFixture(t)
	company := f.company.String()

	tests := []struct {
		name    string
		body    string
		status  int
		message string
	}{
		{
			name:    "malformed json",
			body:    `{"email":`,
			status:  http.StatusBadRequest,
			message: "Invalid request body",
		},
		{
			name:    "invalid email",
			body:    `{"email":"nope","role":"member","companyId":"` + company + `"}`,
			status:  http.StatusBadRequest,
			message: "Invalid email address",
		},
		{
			name:    "invalid role",
			body:    `{"email":"new@acme.test","role":"owner","companyId":"` + company + `"}`,
			status:  http.StatusBadRequest,
			message: "Role must be one of: admin, manager, member",
		},
		{
			name:    "company id not a uuid",
			body:    `{"email":"new@acme.test","role":"member","companyId":"acme"}`,
			status:  http.StatusBadRequest,
			message: "Invalid company ID",
		},
		{
			name:    "company id missing",
			body:    `{"email":"new@acme.test","role":"member"}`,
			status:  http.StatusBadRequest,
			message: "Invalid company ID",
		},
		{
			name:    "valid body without session",
			body:    `{"email":"new@acme.test","role":"member","companyId":"` + company + `"}`,
			status:  http.StatusUnauthorized,
			message: "Unauthorized. Please log in to send invitations.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := postCreate(t, f, tt.body, nil)
			require.Equal(t, tt.status, status)
			require.Equal(t, tt.message, body.Error.Message)
		})
	}
	require.Zero(t, f.store.writes)
}

func TestHandleCreate_InvalidCompanyIDWithSession(t *testing.T) {
	f := newFixture(t)
	user := auth.User{ID: f.owner, Email: "owner@acme.test"}

	status, body := postCreate(t, f, `{"email":"new@acme.test","role":"member","companyId":"12345"}`, &user)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "Invalid company ID", body.Error.Message)

	status, body = postCreate(t, f, `{"email":"new@acme.test","role":"member","companyId":"`+uuid.New().String()+`"}`, &user)
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, "You do not have permission to invite members to this company.", body.Error.Message)
}
