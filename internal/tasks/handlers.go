package tasks

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

func parseTaskID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	taskID, err := uuid.Parse(chi.URLParam(r, "task_id"))
	if err != nil {
		apperrors.WriteBadRequest(w, r, "Invalid task ID")
		return uuid.Nil, false
	}
	return taskID, true
}

// parseFilter reads the status, project_id and assigned_to query parameters.
func parseFilter(r *http.Request) (ListFilter, error) {
	q := r.URL.Query()
	filter := ListFilter{Status: Status(q.Get("status"))}

	if v := q.Get("project_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return filter, apperrors.Validation("Invalid project_id filter")
		}
		filter.ProjectID = &id
	}
	if v := q.Get("assigned_to"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return filter, apperrors.Validation("Invalid assigned_to filter")
		}
		filter.AssignedTo = &id
	}
	return filter, nil
}

func logTaskEvent(r *http.Request, auditor *audit.Writer, action string, t *Task) {
	ctx := r.Context()
	if err := auditor.LogTaskEvent(ctx, action, t.CompanyID, t.ID, auth.GetUserID(ctx), t.Title); err != nil {
		log.Error().Err(err).Msg("Failed to log audit event")
	}
}

// HandleCreate handles POST /api/v1/companies/{company_id}/tasks
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

		task, err := NewService(pool).Create(r.Context(), auth.GetUserID(r.Context()), companyID, req)
		if err != nil {
			apperrors.WriteFromError(w, r, "tasks.create", err)
			return
		}

		logTaskEvent(r, auditor, audit.EventTaskCreated, task)

		apperrors.WriteSuccess(w, r, http.StatusCreated, map[string]any{
			"task": task,
		})
	}
}

// HandleList handles GET /api/v1/companies/{company_id}/tasks
func HandleList(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		companyID, ok := companies.ParseCompanyID(w, r)
		if !ok {
			return
		}
		filter, err := parseFilter(r)
		if err != nil {
			apperrors.WriteFromError(w, r, "tasks.list", err)
			return
		}

		tasks, err := NewService(pool).List(r.Context(), auth.GetUserID(r.Context()), companyID, filter)
		if err != nil {
			apperrors.WriteFromError(w, r, "tasks.list", err)
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"tasks": tasks,
		})
	}
}

// HandleGet handles GET /api/v1/tasks/{task_id}
func HandleGet(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		taskID, ok := parseTaskID(w, r)
		if !ok {
			return
		}

		task, err := NewService(pool).Get(r.Context(), auth.GetUserID(r.Context()), taskID)
		if err != nil {
			apperrors.WriteFromError(w, r, "tasks.get", err)
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"task": task,
		})
	}
}

// HandleUpdate handles PUT /api/v1/tasks/{task_id}
func HandleUpdate(pool *pgxpool.Pool, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		taskID, ok := parseTaskID(w, r)
		if !ok {
			return
		}

		var req Input
		if err := apperrors.DecodeJSON(r, &req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		task, err := NewService(pool).Update(r.Context(), auth.GetUserID(r.Context()), taskID, req)
		if err != nil {
			apperrors.WriteFromError(w, r, "tasks.update", err)
			return
		}

		logTaskEvent(r, auditor, audit.EventTaskUpdated, task)

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"task": task,
		})
	}
}

// HandleDelete handles DELETE /api/v1/tasks/{task_id}
func HandleDelete(pool *pgxpool.Pool, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		taskID, ok := parseTaskID(w, r)
		if !ok {
			return
		}

		task, err := NewService(pool).Delete(r.Context(), auth.GetUserID(r.Context()), taskID)
		if err != nil {
			apperrors.WriteFromError(w, r, "tasks.delete", err)
			return
		}

		logTaskEvent(r, auditor, audit.EventTaskDeleted, task)

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"message": "Task deleted",
		})
	}
}
