package projects

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/aliuyar1234/pmdash/internal/apperrors"
	"github.com/aliuyar1234/pmdash/internal/companies"
	"github.com/aliuyar1234/pmdash/internal/validation"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrProjectNotFound is returned when a project does not exist or the
	// caller cannot see it.
	ErrProjectNotFound = apperrors.NotFound("Project not found")

	ErrInvalidName        = apperrors.Validation("Project name must be between 2 and 200 characters")
	ErrDescriptionTooLong = apperrors.Validation("Description must be at most 5000 characters")
	ErrInvalidStatus      = apperrors.Validation("Status must be one of: planning, in_progress, on_hold, completed")
	ErrInvalidStartDate   = apperrors.Validation("Start date must be in YYYY-MM-DD format")
	ErrInvalidEndDate     = apperrors.Validation("End date must be in YYYY-MM-DD format")
	ErrEndBeforeStart     = apperrors.Validation("End date cannot be before start date")
	ErrInvalidBudget      = apperrors.Validation("Budget must be a non-negative number")
)

func (in Input) validate() (*fields, error) {
	if err := validation.ValidateName(in.Name, 2); err != nil {
		return nil, ErrInvalidName
	}
	description := validation.OptionalString(in.Description)
	if description != nil && utf8.RuneCountInString(*description) > validation.MaxDescriptionLength {
		return nil, ErrDescriptionTooLong
	}

	status := in.Status
	if status == "" {
		status = StatusPlanning
	}
	if !status.IsValid() {
		return nil, ErrInvalidStatus
	}

	start, err := validation.ParseDate(in.StartDate)
	if err != nil {
		return nil, ErrInvalidStartDate
	}
	end, err := validation.ParseDate(in.EndDate)
	if err != nil {
		return nil, ErrInvalidEndDate
	}
	if start != nil && end != nil && end.Before(*start) {
		return nil, ErrEndBeforeStart
	}

	if in.Budget != nil && (*in.Budget < 0 || math.IsNaN(*in.Budget) || math.IsInf(*in.Budget, 0)) {
		return nil, ErrInvalidBudget
	}

	return &fields{
		name:        strings.TrimSpace(in.Name),
		description: description,
		startDate:   start,
		endDate:     end,
		status:      status,
		budget:      in.Budget,
	}, nil
}

// Service provides project-related operations
type Service struct {
	pool *pgxpool.Pool
}

// NewService creates a new project service
func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

const projectColumns = `id, company_id, name, description, start_date, end_date, status, budget, created_by, created_at, updated_at`

func scanProject(row pgx.Row) (*Project, error) {
	var p Project
	err := row.Scan(
		&p.ID,
		&p.CompanyID,
		&p.Name,
		&p.Description,
		&p.StartDate,
		&p.EndDate,
		&p.Status,
		&p.Budget,
		&p.CreatedBy,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("failed to scan project: %w", err)
	}
	return &p, nil
}

// requireRole checks that userID holds a role in companyID satisfying allowed.
func (s *Service) requireRole(ctx context.Context, userID, companyID uuid.UUID, allowed func(companies.Role) bool) error {
	role, err := companies.MemberRole(ctx, s.pool, companyID, userID)
	if err != nil {
		return err
	}
	if allowed != nil && !allowed(role) {
		return companies.ErrInsufficientPermissions
	}
	return nil
}

// load fetches a project and checks the caller's role in its company.
// Projects in companies the caller does not belong to read as not found.
func (s *Service) load(ctx context.Context, userID, projectID uuid.UUID, allowed func(companies.Role) bool) (*Project, error) {
	project, err := scanProject(s.pool.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, projectID))
	if err != nil {
		return nil, err
	}
	if err := s.requireRole(ctx, userID, project.CompanyID, allowed); err != nil {
		if errors.Is(err, companies.ErrCompanyNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, err
	}
	return project, nil
}

// Create adds a project to companyID. Owners, admins and managers only.
func (s *Service) Create(ctx context.Context, userID, companyID uuid.UUID, in Input) (*Project, error) {
	f, err := in.validate()
	if err != nil {
		return nil, err
	}
	if err := s.requireRole(ctx, userID, companyID, companies.Role.CanManageProjects); err != nil {
		return nil, err
	}

	return scanProject(s.pool.QueryRow(ctx, `
		INSERT INTO projects (company_id, name, description, start_date, end_date, status, budget, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+projectColumns,
		companyID, f.name, f.description, f.startDate, f.endDate, f.status, f.budget, userID,
	))
}

// List returns a company's projects, newest first. Any member may list.
func (s *Service) List(ctx context.Context, userID, companyID uuid.UUID) ([]Project, error) {
	if err := s.requireRole(ctx, userID, companyID, nil); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+projectColumns+`
		FROM projects
		WHERE company_id = $1
		ORDER BY created_at DESC
	`, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	projects := []Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating project rows: %w", err)
	}

	return projects, nil
}

// Get returns a project the caller can see.
func (s *Service) Get(ctx context.Context, userID, projectID uuid.UUID) (*Project, error) {
	return s.load(ctx, userID, projectID, nil)
}

// Update replaces a project's editable fields. Owners, admins and managers only.
func (s *Service) Update(ctx context.Context, userID, projectID uuid.UUID, in Input) (*Project, error) {
	f, err := in.validate()
	if err != nil {
		return nil, err
	}
	if _, err := s.load(ctx, userID, projectID, companies.Role.CanManageProjects); err != nil {
		return nil, err
	}

	return scanProject(s.pool.QueryRow(ctx, `
		UPDATE projects
		SET name = $2, description = $3, start_date = $4, end_date = $5, status = $6, budget = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING `+projectColumns,
		projectID, f.name, f.description, f.startDate, f.endDate, f.status, f.budget,
	))
}

// Delete removes a project. Owners and admins only; tasks keep their rows
// with project_id cleared.
func (s *Service) Delete(ctx context.Context, userID, projectID uuid.UUID) (*Project, error) {
	project, err := s.load(ctx, userID, projectID, companies.Role.CanManageMembers)
	if err != nil {
		return nil, err
	}

	result, err := s.pool.Exec(ctx, `DELETE FROM projects WHERE id = $1`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to delete project: %w", err)
	}
	if result.RowsAffected() == 0 {
		return nil, ErrProjectNotFound
	}

	return project, nil
}
