package web

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/aliuyar1234/pmdash/internal/apperrors"
	"github.com/aliuyar1234/pmdash/internal/audit"
	"github.com/aliuyar1234/pmdash/internal/auth"
	"github.com/aliuyar1234/pmdash/internal/config"
	"github.com/aliuyar1234/pmdash/internal/invitations"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// invitationView is the Data of invitation.html.
type invitationView struct {
	Token       string
	Invitation  *invitations.Invitation
	CompanyName string
	InviterName string
	ExpiresAt   string
	Accepted    bool
	// Unexpected marks a server-side failure rather than a bad invitation.
	Unexpected bool
}

// safeReturnTo keeps redirects on this host. Anything that is not an
// absolute local path falls back to "/".
func safeReturnTo(target string) string {
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return "/"
	}
	return target
}

func issueCSRF(w http.ResponseWriter, isProduction bool) (string, bool) {
	token, err := auth.GenerateCSRFToken()
	if err != nil {
		log.Error().Err(err).Msg("Failed to generate CSRF token")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return "", false
	}
	auth.SetCSRFCookie(w, token, isProduction)
	return token, true
}

// pageStatus maps a service error to an HTTP status and user-facing message.
func pageStatus(err error) (int, string) {
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) || appErr.Kind == apperrors.KindUnexpected {
		return http.StatusInternalServerError, apperrors.UnexpectedMessage
	}
	return appErr.Kind.Status(), appErr.Message
}

// HandleLoginPage renders GET /login
func HandleLoginPage(rd *Renderer, isProduction bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		returnTo := safeReturnTo(r.URL.Query().Get("returnTo"))
		if _, ok := auth.GetUser(r.Context()); ok {
			http.Redirect(w, r, returnTo, http.StatusSeeOther)
			return
		}

		csrfToken, ok := issueCSRF(w, isProduction)
		if !ok {
			return
		}

		rd.Render(w, http.StatusOK, "login.html", &TemplateData{
			Title:     "Log In",
			CSRFToken: csrfToken,
			Next:      returnTo,
		})
	}
}

// HandleLoginSubmit handles the POST /login form.
func HandleLoginSubmit(rd *Renderer, pool *pgxpool.Pool, auditor *audit.Writer, cfg *config.Config) http.HandlerFunc {
	isProduction := !cfg.IsDev()
	return func(w http.ResponseWriter, r *http.Request) {
		returnTo := safeReturnTo(r.FormValue("returnTo"))

		user, err := auth.Authenticate(r, pool, auditor, r.FormValue("email"), r.FormValue("password"))
		if err != nil {
			status, message := pageStatus(err)
			if status == http.StatusInternalServerError {
				log.Error().Err(err).Msg("Login failed")
			}
			csrfToken, ok := issueCSRF(w, isProduction)
			if !ok {
				return
			}
			rd.Render(w, status, "login.html", &TemplateData{
				Title:     "Log In",
				CSRFToken: csrfToken,
				Next:      returnTo,
				Error:     message,
			})
			return
		}

		token, err := auth.CreateToken(user, cfg.JWTSecret, cfg.SessionDays)
		if err != nil {
			log.Error().Err(err).Msg("Failed to create token")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		auth.SetSessionCookie(w, token, cfg.SessionDays, isProduction)

		http.Redirect(w, r, returnTo, http.StatusSeeOther)
	}
}

// HandleInvitationPage renders GET /invitations/{token}
func HandleInvitationPage(rd *Renderer, service *invitations.Service, isProduction bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _ := auth.GetUser(r.Context())
		token := chi.URLParam(r, "token")

		csrfToken, ok := issueCSRF(w, isProduction)
		if !ok {
			return
		}
		data := &TemplateData{Title: "Invitation", CSRFToken: csrfToken}

		preview, err := service.Lookup(r.Context(), token, invitations.Invitee{ID: user.ID, Email: user.Email, FullName: user.FullName})
		if err != nil {
			status, message := pageStatus(err)
			if status == http.StatusInternalServerError {
				log.Error().Err(err).Msg("Failed to look up invitation")
			}
			data.Error = message
			data.Data = invitationView{Token: token, Unexpected: status == http.StatusInternalServerError}
			rd.Render(w, status, "invitation.html", data)
			return
		}

		data.Data = invitationView{
			Token:       token,
			Invitation:  preview.Invitation,
			CompanyName: preview.CompanyName,
			InviterName: preview.InviterName,
			ExpiresAt:   preview.Invitation.ExpiresAt.UTC().Format(time.RFC1123),
		}
		rd.Render(w, http.StatusOK, "invitation.html", data)
	}
}

// HandleInvitationAccept handles the POST /invitations/{token}/accept form.
func HandleInvitationAccept(rd *Renderer, service *invitations.Service, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		user, _ := auth.GetUser(ctx)
		token := chi.URLParam(r, "token")
		data := &TemplateData{Title: "Invitation"}

		inv, err := service.Accept(ctx, token, invitations.Invitee{ID: user.ID, Email: user.Email, FullName: user.FullName})
		if err != nil {
			status, message := pageStatus(err)
			if status == http.StatusInternalServerError {
				log.Error().Err(err).Msg("Failed to accept invitation")
			}
			data.Error = message
			data.Data = invitationView{Token: token, Unexpected: status == http.StatusInternalServerError}
			rd.Render(w, status, "invitation.html", data)
			return
		}

		if err := auditor.LogInvitationAccepted(ctx, inv.CompanyID, user.ID, inv.ID, string(inv.Role)); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		companyName, err := service.CompanyName(ctx, inv.CompanyID)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to load company name")
		}

		data.Success = "Invitation accepted successfully."
		data.Data = invitationView{Token: token, Invitation: inv, CompanyName: companyName, Accepted: true}
		rd.Render(w, http.StatusOK, "invitation.html", data)
	}
}
