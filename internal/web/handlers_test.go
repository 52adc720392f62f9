package web

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aliuyar1234/pmdash/internal/apperrors"
	"github.com/aliuyar1234/pmdash/internal/invitations"
	"github.com/stretchr/testify/require"
)

func TestSafeReturnTo(t *testing.T) {
	tests := map[string]string{
		"/invitations/abc":     "/invitations/abc",
		"/":                    "/",
		"":                     "/",
		"https://evil.example": "/",
		"//evil.example/path":  "/",
		"/\\evil.example":      "/",
		"invitations/relative": "/",
	}
	for in, want := range tests {
		require.Equal(t, want, safeReturnTo(in), in)
	}
}

func TestPageStatus(t *testing.T) {
	status, msg := pageStatus(invitations.ErrInvitationExpired)
	require.Equal(t, http.StatusGone, status)
	require.Equal(t, "This invitation has expired", msg)

	status, msg = pageStatus(apperrors.Wrap(apperrors.KindConflict, "already", nil))
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, "already", msg)

	status, msg = pageStatus(http.ErrHandlerTimeout)
	require.Equal(t, http.StatusInternalServerError, status)
	require.Equal(t, apperrors.UnexpectedMessage, msg)
}

func TestRenderer(t *testing.T) {
	rd, err := NewRenderer("PM Dashboard")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	rd.Render(rec, http.StatusNotFound, "invitation.html", &TemplateData{
		Title: "Invitation",
		Error: "Invitation not found or has been revoked",
		Data:  invitationView{Token: "abc"},
	})

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	require.Contains(t, body, "Invitation not found or has been revoked")
	require.Contains(t, body, "We couldn't process this invitation.")
	require.NotContains(t, body, "contact support")
	require.Contains(t, body, "PM Dashboard")
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestRenderer_UnexpectedErrorSuggestsSupport(t *testing.T) {
	rd, err := NewRenderer("PM Dashboard")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	rd.Render(rec, http.StatusInternalServerError, "invitation.html", &TemplateData{
		Title: "Invitation",
		Error: "An unexpected error occurred",
		Data:  invitationView{Token: "abc", Unexpected: true},
	})

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "If the problem persists, contact support.")
}

func TestRenderer_KeepsCacheControl(t *testing.T) {
	rd, err := NewRenderer("PM Dashboard")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	rec.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	rd.Render(rec, http.StatusOK, "login.html", &TemplateData{Title: "Log In"})

	require.Equal(t, "no-cache, no-store, must-revalidate", rec.Header().Get("Cache-Control"))
}

func TestRenderer_LoginEscapesReturnTo(t *testing.T) {
	rd, err := NewRenderer("PM Dashboard")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	rd.Render(rec, http.StatusOK, "login.html", &TemplateData{Title: "Log In", CSRFToken: "tok", Next: `/x"><script>`})

	body := rec.Body.String()
	require.Contains(t, body, `name="_csrf" value="tok"`)
	require.NotContains(t, body, "<script>")
}
