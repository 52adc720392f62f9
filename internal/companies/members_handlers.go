package companies

import (
	"net/http"

	"github.com/aliuyar1234/pmdash/internal/apperrors"
	"github.com/aliuyar1234/pmdash/internal/audit"
	"github.com/aliuyar1234/pmdash/internal/auth"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

type MemberRoleUpdateRequest struct {
	Role Role `json:"role"`
}

func parseTargetUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	targetUserID, err := uuid.Parse(chi.URLParam(r, "user_id"))
	if err != nil {
		apperrors.WriteBadRequest(w, r, "Invalid user ID")
		return uuid.Nil, false
	}
	return targetUserID, true
}

// HandleUpdateMemberRole handles PUT /api/v1/companies/{company_id}/members/{user_id}
func HandleUpdateMemberRole(pool *pgxpool.Pool, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actorUserID := auth.GetUserID(ctx)

		companyID, ok := ParseCompanyID(w, r)
		if !ok {
			return
		}
		targetUserID, ok := parseTargetUser(w, r)
		if !ok {
			return
		}

		var req MemberRoleUpdateRequest
		if err := apperrors.DecodeJSON(r, &req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		service := NewService(pool)
		prevRole, err := service.UpdateMemberRole(ctx, companyID, actorUserID, targetUserID, req.Role)
		if err != nil {
			apperrors.WriteFromError(w, r, "companies.update_member_role", err)
			return
		}

		if err := auditor.LogMemberRoleUpdated(ctx, companyID, actorUserID, targetUserID, string(prevRole), string(req.Role)); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"updated": true,
		})
	}
}

// HandleRemoveMember handles DELETE /api/v1/companies/{company_id}/members/{user_id}
func HandleRemoveMember(pool *pgxpool.Pool, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actorUserID := auth.GetUserID(ctx)

		companyID, ok := ParseCompanyID(w, r)
		if !ok {
			return
		}
		targetUserID, ok := parseTargetUser(w, r)
		if !ok {
			return
		}

		service := NewService(pool)
		removedRole, err := service.RemoveMember(ctx, companyID, actorUserID, targetUserID)
		if err != nil {
			apperrors.WriteFromError(w, r, "companies.remove_member", err)
			return
		}

		if err := auditor.LogMemberRemoved(ctx, companyID, actorUserID, targetUserID, string(removedRole)); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"removed": true,
		})
	}
}
