package profiles

import (
	"net/http"

	"github.com/aliuyar1234/pmdash/internal/apperrors"
	"github.com/aliuyar1234/pmdash/internal/audit"
	"github.com/aliuyar1234/pmdash/internal/auth"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// HandleGet handles GET /api/v1/profile
func HandleGet(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profile, err := NewService(pool).Get(r.Context(), auth.GetUserID(r.Context()))
		if err != nil {
			apperrors.WriteFromError(w, r, "profiles.get", err)
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"profile": profile,
		})
	}
}

// HandleUpdate handles PUT /api/v1/profile
func HandleUpdate(pool *pgxpool.Pool, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		var req UpdateInput
		if err := apperrors.DecodeJSON(r, &req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		profile, err := NewService(pool).Update(ctx, userID, req)
		if err != nil {
			apperrors.WriteFromError(w, r, "profiles.update", err)
			return
		}

		if err := auditor.LogProfileUpdated(ctx, userID); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"profile": profile,
		})
	}
}
