package projects

import (
	"net/http"

	"github.com/aliuyar1234/pmdash/internal/apperrors"
	"github.com/aliuyar1234/pmdash/internal/audit"
	"github.com/aliuyar1234/pmdash/internal/auth"
	"github.com/aliuyar1234/pmdash/internal/companies"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

func parseProjectID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	projectID, err := uuid.Parse(chi.URLParam(r, "project_id"))
	if err != nil {
		apperrors.WriteBadRequest(w, r, "Invalid project ID")
		return uuid.Nil, false
	}
	return projectID, true
}

func logProjectEvent(r *http.Request, auditor *audit.Writer, action string, p *Project) {
	ctx := r.Context()
	if err := auditor.LogProjectEvent(ctx, action, p.CompanyID, p.ID, auth.GetUserID(ctx), p.Name); err != nil {
		log.Error().Err(err).Msg("Failed to log audit event")
	}
}

// HandleCreate handles POST /api/v1/companies/{company_id}/projects
func HandleCreate(pool *pgxpool.Pool, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		companyID, ok := companies.ParseCompanyID(w, r)
		if !ok {
			return
		}

		var req Input
		if err := apperrors.DecodeJSON(r, &req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		project, err := NewService(pool).Create(r.Context(), auth.GetUserID(r.Context()), companyID, req)
		if err != nil {
			apperrors.WriteFromError(w, r, "projects.create", err)
			return
		}

		logProjectEvent(r, auditor, audit.EventProjectCreated, project)

		log.Info().
			Str("project_id", project.ID.String()).
			Str("company_id", companyID.String()).
			Msg("Project created")

		apperrors.WriteSuccess(w, r, http.StatusCreated, map[string]any{
			"project": project,
		})
	}
}

// HandleList handles GET /api/v1/companies/{company_id}/projects
func HandleList(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		companyID, ok := companies.ParseCompanyID(w, r)
		if !ok {
			return
		}

		projects, err := NewService(pool).List(r.Context(), auth.GetUserID(r.Context()), companyID)
		if err != nil {
			apperrors.WriteFromError(w, r, "projects.list", err)
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"projects": projects,
		})
	}
}

// HandleGet handles GET /api/v1/projects/{project_id}
func HandleGet(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID, ok := parseProjectID(w, r)
		if !ok {
			return
		}

		project, err := NewService(pool).Get(r.Context(), auth.GetUserID(r.Context()), projectID)
		if err != nil {
			apperrors.WriteFromError(w, r, "projects.get", err)
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"project": project,
		})
	}
}

// HandleUpdate handles PUT /api/v1/projects/{project_id}
func HandleUpdate(pool *pgxpool.Pool, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID, ok := parseProjectID(w, r)
		if !ok {
			return
		}

		var req Input
		if err := apperrors.DecodeJSON(r, &req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		project, err := NewService(pool).Update(r.Context(), auth.GetUserID(r.Context()), projectID, req)
		if err != nil {
			apperrors.WriteFromError(w, r, "projects.update", err)
			return
		}

		logProjectEvent(r, auditor, audit.EventProjectUpdated, project)

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"project": project,
		})
	}
}

// HandleDelete handles DELETE /api/v1/projects/{project_id}
func HandleDelete(pool *pgxpool.Pool, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID, ok := parseProjectID(w, r)
		if !ok {
			return
		}

		project, err := NewService(pool).Delete(r.Context(), auth.GetUserID(r.Context()), projectID)
		if err != nil {
			apperrors.WriteFromError(w, r, "projects.delete", err)
			return
		}

		logProjectEvent(r, auditor, audit.EventProjectDeleted, project)

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"message": "Project deleted",
		})
	}
}
