package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aliuyar1234/pmdash/internal/apperrors"
	"github.com/aliuyar1234/pmdash/internal/companies"
	"github.com/aliuyar1234/pmdash/internal/validation"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrTaskNotFound        = apperrors.NotFound("Task not found")
	ErrInvalidTitle        = apperrors.Validation("Task title must be between 2 and 200 characters")
	ErrDescriptionTooLong  = apperrors.Validation("Description must be at most 5000 characters")
	ErrInvalidStatus       = apperrors.Validation("Status must be one of: to_do, in_progress, review, completed")
	ErrInvalidPriority     = apperrors.Validation("Priority must be one of: low, medium, high, urgent")
	ErrInvalidDueDate      = apperrors.Validation("Due date must be in YYYY-MM-DD format")
	ErrProjectNotInCompany = apperrors.Validation("Project does not belong to this company")
	ErrAssigneeNotMember   = apperrors.Validation("Assignee is not a member of this company")
	ErrCannotDelete        = apperrors.Authorization("Only the task creator or a manager can delete this task")
)

type fields struct {
	title       string
	description *string
	status      Status
	priority    Priority
	dueDate     *time.Time
	projectID   *uuid.UUID
	assignedTo  *uuid.UUID
}

func (in Input) validate() (*fields, error) {
	if err := validation.ValidateName(in.Title, 2); err != nil {
		return nil, ErrInvalidTitle
	}
	description := validation.OptionalString(in.Description)
	if description != nil && utf8.RuneCountInString(*description) > validation.MaxDescriptionLength {
		return nil, ErrDescriptionTooLong
	}

	status := in.Status
	if status == "" {
		status = StatusToDo
	}
	if !status.IsValid() {
		return nil, ErrInvalidStatus
	}
	priority := in.Priority
	if priority == "" {
		priority = PriorityMedium
	}
	if !priority.IsValid() {
		return nil, ErrInvalidPriority
	}

	due, err := validation.ParseDate(in.DueDate)
	if err != nil {
		return nil, ErrInvalidDueDate
	}

	return &fields{
		title:       strings.TrimSpace(in.Title),
		description: description,
		status:      status,
		priority:    priority,
		dueDate:     due,
		projectID:   in.ProjectID,
		assignedTo:  in.AssignedTo,
	}, nil
}

// canDelete reports whether a member with role may delete a task created by creatorID.
func canDelete(role companies.Role, userID, creatorID uuid.UUID) bool {
	return userID == creatorID || role.CanManageProjects()
}

// buildListQuery renders the listing query for companyID with filter applied.
func buildListQuery(companyID uuid.UUID, filter ListFilter) (string, []any) {
	var sb strings.Builder
	sb.WriteString(`SELECT ` + taskColumns + ` FROM tasks WHERE company_id = $1`)
	args := []any{companyID}

	if filter.Status != "" {
		args = append(args, filter.Status)
		fmt.Fprintf(&sb, " AND status = $%d", len(args))
	}
	if filter.ProjectID != nil {
		args = append(args, *filter.ProjectID)
		fmt.Fprintf(&sb, " AND project_id = $%d", len(args))
	}
	if filter.AssignedTo != nil {
		args = append(args, *filter.AssignedTo)
		fmt.Fprintf(&sb, " AND assigned_to = $%d", len(args))
	}
	sb.WriteString(" ORDER BY created_at DESC")

	return sb.String(), args
}

// Service provides task operations
type Service struct {
	pool *pgxpool.Pool
}

// NewService creates a new task service
func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

const taskColumns = `id, company_id, project_id, title, description, status, priority, due_date, created_by, assigned_to, created_at, updated_at`

func scanTask(row pgx.Row) (*Task, error) {
	var t Task
	err := row.Scan(
		&t.ID,
		&t.CompanyID,
		&t.ProjectID,
		&t.Title,
		&t.Description,
		&t.Status,
		&t.Priority,
		&t.DueDate,
		&t.CreatedBy,
		&t.AssignedTo,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to scan task: %w", err)
	}
	return &t, nil
}

// checkReferences verifies the project and assignee belong to companyID.
func (s *Service) checkReferences(ctx context.Context, companyID uuid.UUID, f *fields) error {
	if f.projectID != nil {
		var exists bool
		err := s.pool.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM projects WHERE id = $1 AND company_id = $2)
		`, *f.projectID, companyID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check task project: %w", err)
		}
		if !exists {
			return ErrProjectNotInCompany
		}
	}
	if f.assignedTo != nil {
		if _, err := companies.MemberRole(ctx, s.pool, companyID, *f.assignedTo); err != nil {
			if errors.Is(err, companies.ErrCompanyNotFound) {
				return ErrAssigneeNotMember
			}
			return err
		}
	}
	return nil
}

// load fetches a task and the caller's role in its company.
func (s *Service) load(ctx context.Context, userID, taskID uuid.UUID) (*Task, companies.Role, error) {
	task, err := scanTask(s.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, taskID))
	if err != nil {
		return nil, "", err
	}
	role, err := companies.MemberRole(ctx, s.pool, task.CompanyID, userID)
	if err != nil {
		if errors.Is(err, companies.ErrCompanyNotFound) {
			return nil, "", ErrTaskNotFound
		}
		return nil, "", err
	}
	return task, role, nil
}

// Create adds a task to companyID. Any member may create; the assignee
// defaults to the creator.
func (s *Service) Create(ctx context.Context, userID, companyID uuid.UUID, in Input) (*Task, error) {
	f, err := in.validate()
	if err != nil {
		return nil, err
	}
	if _, err := companies.MemberRole(ctx, s.pool, companyID, userID); err != nil {
		return nil, err
	}
	if f.assignedTo == nil {
		f.assignedTo = &userID
	}
	if err := s.checkReferences(ctx, companyID, f); err != nil {
		return nil, err
	}

	return scanTask(s.pool.QueryRow(ctx, `
		INSERT INTO tasks (company_id, project_id, title, description, status, priority, due_date, created_by, assigned_to)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+taskColumns,
		companyID, f.projectID, f.title, f.description, f.status, f.priority, f.dueDate, userID, f.assignedTo,
	))
}

// List returns a company's tasks matching filter, newest first.
func (s *Service) List(ctx context.Context, userID, companyID uuid.UUID, filter ListFilter) ([]Task, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, ErrInvalidStatus
	}
	if _, err := companies.MemberRole(ctx, s.pool, companyID, userID); err != nil {
		return nil, err
	}

	query, args := buildListQuery(companyID, filter)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task rows: %w", err)
	}

	return tasks, nil
}

// Get returns a task the caller can see.
func (s *Service) Get(ctx context.Context, userID, taskID uuid.UUID) (*Task, error) {
	task, _, err := s.load(ctx, userID, taskID)
	return task, err
}

// Update replaces a task's editable fields. Any company member may update.
func (s *Service) Update(ctx context.Context, userID, taskID uuid.UUID, in Input) (*Task, error) {
	f, err := in.validate()
	if err != nil {
		return nil, err
	}
	task, _, err := s.load(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}
	if err := s.checkReferences(ctx, task.CompanyID, f); err != nil {
		return nil, err
	}

	return scanTask(s.pool.QueryRow(ctx, `
		UPDATE tasks
		SET project_id = $2, title = $3, description = $4, status = $5, priority = $6,
		    due_date = $7, assigned_to = $8, updated_at = NOW()
		WHERE id = $1
		RETURNING `+taskColumns,
		taskID, f.projectID, f.title, f.description, f.status, f.priority, f.dueDate, f.assignedTo,
	))
}

// Delete removes a task. Allowed for its creator and for owners, admins and managers.
func (s *Service) Delete(ctx context.Context, userID, taskID uuid.UUID) (*Task, error) {
	task, role, err := s.load(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}
	if !canDelete(role, userID, task.CreatedBy) {
		return nil, ErrCannotDelete
	}

	if _, err := s.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, taskID); err != nil {
		return nil, fmt.Errorf("failed to delete task: %w", err)
	}
	return task, nil
}
