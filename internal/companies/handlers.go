package companies

import (
	"net/http"
	"strconv"
	"time"

	"github.com/aliuyar1234/pmdash/internal/apperrors"
	"github.com/aliuyar1234/pmdash/internal/audit"
	"github.com/aliuyar1234/pmdash/internal/auth"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// ParseCompanyID reads the {company_id} URL parameter, writing a 400 on failure.
func ParseCompanyID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	companyID, err := uuid.Parse(chi.URLParam(r, "company_id"))
	if err != nil {
		apperrors.WriteBadRequest(w, r, "Invalid company ID")
		return uuid.Nil, false
	}
	return companyID, true
}

// HandleCreate handles POST /api/v1/companies
func HandleCreate(pool *pgxpool.Pool, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		var req CreateInput
		if err := apperrors.DecodeJSON(r, &req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		service := NewService(pool)
		company, err := service.Create(ctx, userID, req)
		if err != nil {
			apperrors.WriteFromError(w, r, "companies.create", err)
			return
		}

		if err := auditor.LogCompanyCreated(ctx, company.ID, userID, company.Name); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		apperrors.WriteSuccess(w, r, http.StatusCreated, map[string]any{
			"company": CompanyWithRole{Company: *company, Role: RoleOwner},
		})
	}
}

// HandleList handles GET /api/v1/companies
func HandleList(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		service := NewService(pool)
		companies, err := service.ListForUser(ctx, auth.GetUserID(ctx))
		if err != nil {
			log.Error().Err(err).Msg("Failed to list companies")
			apperrors.WriteInternalError(w, r, "Failed to list companies")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"companies": companies,
		})
	}
}

// HandleGet handles GET /api/v1/companies/{company_id}
func HandleGet(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		companyID, ok := ParseCompanyID(w, r)
		if !ok {
			return
		}

		service := NewService(pool)
		company, err := service.Get(r.Context(), companyID, auth.GetUserID(r.Context()))
		if err != nil {
			apperrors.WriteFromError(w, r, "companies.get", err)
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"company": company,
		})
	}
}

// HandleListMembers handles GET /api/v1/companies/{company_id}/members
func HandleListMembers(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		companyID, ok := ParseCompanyID(w, r)
		if !ok {
			return
		}

		service := NewService(pool)
		members, err := service.ListMembers(r.Context(), companyID, auth.GetUserID(r.Context()))
		if err != nil {
			apperrors.WriteFromError(w, r, "companies.list_members", err)
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"members": members,
		})
	}
}

// HandleListAudit handles GET /api/v1/companies/{company_id}/audit
func HandleListAudit(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		companyID, ok := ParseCompanyID(w, r)
		if !ok {
			return
		}

		service := NewService(pool)
		if _, err := service.RequireRole(ctx, auth.GetUserID(ctx), companyID, Role.CanManageMembers); err != nil {
			apperrors.WriteFromError(w, r, "companies.audit", err)
			return
		}

		q := audit.Query{CompanyID: companyID, Action: r.URL.Query().Get("action")}
		if raw := r.URL.Query().Get("limit"); raw != "" {
			if v, err := strconv.Atoi(raw); err == nil {
				q.Limit = v
			}
		}
		if raw := r.URL.Query().Get("before"); raw != "" {
			before, err := time.Parse(time.RFC3339Nano, raw)
			if err != nil {
				apperrors.WriteBadRequest(w, r, "before must be an RFC 3339 timestamp")
				return
			}
			q.Before = &before
		}

		events, err := audit.NewReader(pool).List(ctx, q)
		if err != nil {
			log.Error().Err(err).Msg("Failed to list audit log")
			apperrors.WriteInternalError(w, r, "Failed to list audit log")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"events": events,
		})
	}
}
