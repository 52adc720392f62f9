package invitations

import (
	"net/http"
	"strings"
	"time"

	"github.com/aliuyar1234/pmdash/internal/apperrors"
	"github.com/aliuyar1234/pmdash/internal/audit"
	"github.com/aliuyar1234/pmdash/internal/auth"
	"github.com/aliuyar1234/pmdash/internal/companies"
	"github.com/aliuyar1234/pmdash/internal/config"
	"github.com/aliuyar1234/pmdash/internal/notify"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// ConfigFrom derives service settings from application config.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		AppName:    cfg.AppName,
		ExpiryDays: cfg.InviteExpiryDays,
		Link:       cfg.InvitationLink,
	}
}

// NewPostgresService wires a Service to the database pool.
func NewPostgresService(pool *pgxpool.Pool, cfg *config.Config, notifier notify.Notifier) *Service {
	return NewService(NewPostgresStore(pool), notifier, ConfigFrom(cfg))
}

// CreateRequest is the body of POST /invitations
type CreateRequest struct {
	Email     string         `json:"email"`
	Role      companies.Role `json:"role"`
	CompanyID string         `json:"companyId"`
}

// ErrInvalidCompanyID is returned when companyId is missing or not a UUID.
var ErrInvalidCompanyID = apperrors.Validation("Invalid company ID")

// ResendRequest is the body of PUT /invitations
type ResendRequest struct {
	InvitationID string `json:"invitationId"`
}

// InvitationResponse is the public view of an invitation returned to inviters.
type InvitationResponse struct {
	ID             uuid.UUID      `json:"id"`
	Email          string         `json:"email"`
	Role           companies.Role `json:"role"`
	Token          string         `json:"token"`
	Status         Status         `json:"status"`
	ExpiresAt      string         `json:"expires_at"`
	InvitationLink string         `json:"invitation_link"`
}

func toResponse(res *Result) InvitationResponse {
	return InvitationResponse{
		ID:             res.Invitation.ID,
		Email:          res.Invitation.Email,
		Role:           res.Invitation.Role,
		Token:          res.Invitation.Token,
		Status:         res.Invitation.Status,
		ExpiresAt:      res.Invitation.ExpiresAt.UTC().Format(time.RFC3339),
		InvitationLink: res.Link,
	}
}

func requireUser(w http.ResponseWriter, r *http.Request, message string) (auth.User, bool) {
	user, ok := auth.GetUser(r.Context())
	if !ok {
		apperrors.WriteUnauthorized(w, r, message)
	}
	return user, ok
}

func logAuditError(err error) {
	if err != nil {
		log.Error().Err(err).Msg("Failed to log audit event")
	}
}

// HandleCreate handles POST /api/v1/invitations
func HandleCreate(service *Service, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req CreateRequest
		if err := apperrors.DecodeJSON(r, &req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		in := CreateInput{Email: req.Email, Role: req.Role}
		if err := in.Validate(); err != nil {
			apperrors.WriteFromError(w, r, "invitations.create", err)
			return
		}
		companyID, err := uuid.Parse(strings.TrimSpace(req.CompanyID))
		if err != nil || companyID == uuid.Nil {
			apperrors.WriteFromError(w, r, "invitations.create", ErrInvalidCompanyID)
			return
		}

		user, ok := requireUser(w, r, "Unauthorized. Please log in to send invitations.")
		if !ok {
			return
		}
		in.CompanyID = companyID
		in.RequesterID = user.ID

		res, err := service.Create(ctx, in)
		if err != nil {
			apperrors.WriteFromError(w, r, "invitations.create", err)
			return
		}

		if res.Existing {
			apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
				"message":    "An invitation has already been sent to this email.",
				"invitation": toResponse(res),
				"resend":     true,
			})
			return
		}

		logAuditError(auditor.LogInvitationCreated(ctx, companyID, user.ID, res.Invitation.ID, res.Invitation.Email, string(res.Invitation.Role)))

		apperrors.WriteSuccess(w, r, http.StatusCreated, map[string]any{
			"message":    "Invitation sent successfully.",
			"invitation": toResponse(res),
		})
	}
}

// HandleResend handles PUT /api/v1/invitations
func HandleResend(service *Service, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req ResendRequest
		if err := apperrors.DecodeJSON(r, &req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}
		if strings.TrimSpace(req.InvitationID) == "" {
			apperrors.WriteBadRequest(w, r, "Invitation ID is required")
			return
		}

		user, ok := requireUser(w, r, "Unauthorized. Please log in to resend invitations.")
		if !ok {
			return
		}

		invitationID, err := uuid.Parse(req.InvitationID)
		if err != nil {
			apperrors.WriteFromError(w, r, "invitations.resend", ErrInvitationNotFound)
			return
		}

		res, err := service.Resend(ctx, invitationID, user.ID)
		if err != nil {
			apperrors.WriteFromError(w, r, "invitations.resend", err)
			return
		}

		logAuditError(auditor.LogInvitationResent(ctx, res.Invitation.CompanyID, user.ID, res.Invitation.ID))

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"message":    "Invitation resent successfully.",
			"invitation": toResponse(res),
		})
	}
}

// HandleCancel handles DELETE /api/v1/invitations?id=<id>
func HandleCancel(service *Service, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		rawID := strings.TrimSpace(r.URL.Query().Get("id"))
		if rawID == "" {
			apperrors.WriteBadRequest(w, r, "Invitation ID is required")
			return
		}

		user, ok := requireUser(w, r, "Unauthorized. Please log in to cancel invitations.")
		if !ok {
			return
		}

		invitationID, err := uuid.Parse(rawID)
		if err != nil {
			apperrors.WriteFromError(w, r, "invitations.cancel", ErrInvitationNotFound)
			return
		}

		inv, err := service.Cancel(ctx, invitationID, user.ID)
		if err != nil {
			apperrors.WriteFromError(w, r, "invitations.cancel", err)
			return
		}

		logAuditError(auditor.LogInvitationCanceled(ctx, inv.CompanyID, user.ID, inv.ID))

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"message": "Invitation canceled successfully.",
		})
	}
}

func invitee(user auth.User) Invitee {
	return Invitee{ID: user.ID, Email: user.Email, FullName: user.FullName}
}

// HandleLookup handles GET /api/v1/invitations/{token}
func HandleLookup(service *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := requireUser(w, r, "Please log in to view this invitation.")
		if !ok {
			return
		}

		preview, err := service.Lookup(r.Context(), chi.URLParam(r, "token"), invitee(user))
		if err != nil {
			apperrors.WriteFromError(w, r, "invitations.lookup", err)
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"invitation": preview.Invitation,
			"company": map[string]any{
				"id":   preview.Invitation.CompanyID,
				"name": preview.CompanyName,
			},
			"inviter_name": preview.InviterName,
		})
	}
}

// HandleAccept handles POST /api/v1/invitations/{token}/accept
func HandleAccept(service *Service, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		user, ok := requireUser(w, r, "Please log in to accept this invitation.")
		if !ok {
			return
		}

		inv, err := service.Accept(ctx, chi.URLParam(r, "token"), invitee(user))
		if err != nil {
			apperrors.WriteFromError(w, r, "invitations.accept", err)
			return
		}

		logAuditError(auditor.LogInvitationAccepted(ctx, inv.CompanyID, user.ID, inv.ID, string(inv.Role)))

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"message":   "Invitation accepted successfully.",
			"companyId": inv.CompanyID,
			"role":      inv.Role,
		})
	}
}

// HandleListPending handles GET /api/v1/companies/{company_id}/invitations
func HandleListPending(service *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		companyID, ok := companies.ParseCompanyID(w, r)
		if !ok {
			return
		}

		invitations, err := service.ListPending(r.Context(), companyID, auth.GetUserID(r.Context()))
		if err != nil {
			apperrors.WriteFromError(w, r, "invitations.list", err)
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"invitations": invitations,
		})
	}
}
