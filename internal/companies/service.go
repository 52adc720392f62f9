package companies

import (
	"context"
	"errors"
	"fmt"

	"github.com/aliuyar1234/pmdash/internal/apperrors"
	"github.com/aliuyar1234/pmdash/internal/db"
	"github.com/aliuyar1234/pmdash/internal/validation"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

var (
	// ErrCompanyNotFound is returned when a company does not exist or the
	// caller is not a member of it.
	ErrCompanyNotFound = apperrors.NotFound("Company not found")

	// ErrInsufficientPermissions is returned when a member's role is too low
	ErrInsufficientPermissions = apperrors.Authorization("Insufficient permissions")

	// ErrInvalidName is returned for an empty or oversized company name
	ErrInvalidName = apperrors.Validation("Company name must be between 2 and 200 characters")
)

// Service provides company-related operations
type Service struct {
	pool *pgxpool.Pool
}

// NewService creates a new company service
func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

// CreateInput holds the editable company fields
type CreateInput struct {
	Name        string `json:"name"`
	Industry    string `json:"industry"`
	Description string `json:"description"`
	LogoURL     string `json:"logo_url"`
}

// Create inserts a company and makes userID its owner in one transaction.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, in CreateInput) (*Company, error) {
	if err := validation.ValidateName(in.Name, 2); err != nil {
		return nil, ErrInvalidName
	}

	var company Company
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO companies (name, industry, description, logo_url, created_by)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id, name, industry, description, logo_url, created_by, created_at, updated_at
		`,
			validation.OptionalString(in.Name),
			validation.OptionalString(in.Industry),
			validation.OptionalString(in.Description),
			validation.OptionalString(in.LogoURL),
			userID,
		).Scan(
			&company.ID,
			&company.Name,
			&company.Industry,
			&company.Description,
			&company.LogoURL,
			&company.CreatedBy,
			&company.CreatedAt,
			&company.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create company: %w", err)
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO company_members (company_id, user_id, role)
			VALUES ($1, $2, $3)
		`, company.ID, userID, RoleOwner); err != nil {
			return fmt.Errorf("failed to create membership: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &company, nil
}

// ListForUser returns every company userID belongs to, newest first.
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID) ([]CompanyWithRole, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.name, c.industry, c.description, c.logo_url, c.created_by, c.created_at, c.updated_at, m.role
		FROM companies c
		INNER JOIN company_members m ON c.id = m.company_id
		WHERE m.user_id = $1
		ORDER BY c.created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user companies: %w", err)
	}
	defer rows.Close()

	out := []CompanyWithRole{}
	for rows.Next() {
		var c CompanyWithRole
		if err := rows.Scan(
			&c.ID,
			&c.Name,
			&c.Industry,
			&c.Description,
			&c.LogoURL,
			&c.CreatedBy,
			&c.CreatedAt,
			&c.UpdatedAt,
			&c.Role,
		); err != nil {
			return nil, fmt.Errorf("failed to scan company: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating company rows: %w", err)
	}

	return out, nil
}

// Get returns a company the caller belongs to.
func (s *Service) Get(ctx context.Context, companyID, userID uuid.UUID) (*CompanyWithRole, error) {
	var c CompanyWithRole
	err := s.pool.QueryRow(ctx, `
		SELECT c.id, c.name, c.industry, c.description, c.logo_url, c.created_by, c.created_at, c.updated_at, m.role
		FROM companies c
		INNER JOIN company_members m ON c.id = m.company_id
		WHERE c.id = $1 AND m.user_id = $2
	`, companyID, userID).Scan(
		&c.ID,
		&c.Name,
		&c.Industry,
		&c.Description,
		&c.LogoURL,
		&c.CreatedBy,
		&c.CreatedAt,
		&c.UpdatedAt,
		&c.Role,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCompanyNotFound
		}
		return nil, fmt.Errorf("failed to get company: %w", err)
	}

	return &c, nil
}

// ListMembers returns all members of a company with profile details.
// The caller must be a member.
func (s *Service) ListMembers(ctx context.Context, companyID, userID uuid.UUID) ([]MemberInfo, error) {
	if _, err := s.RequireMember(ctx, userID, companyID); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT m.user_id, u.email, p.full_name, p.avatar_url, p.job_title, m.role, m.created_at
		FROM company_members m
		INNER JOIN users u ON m.user_id = u.id
		LEFT JOIN profiles p ON p.id = m.user_id
		WHERE m.company_id = $1
		ORDER BY m.created_at ASC
	`, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	members := []MemberInfo{}
	for rows.Next() {
		var m MemberInfo
		if err := rows.Scan(&m.UserID, &m.Email, &m.FullName, &m.AvatarURL, &m.JobTitle, &m.Role, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating member rows: %w", err)
	}

	return members, nil
}

// MemberRole looks up userID's role in companyID through q, which may be a
// pool or an open transaction. Non-members yield ErrCompanyNotFound.
func MemberRole(ctx context.Context, q db.DBTX, companyID, userID uuid.UUID) (Role, error) {
	var role Role
	err := q.QueryRow(ctx, `
		SELECT role FROM company_members
		WHERE company_id = $1 AND user_id = $2
	`, companyID, userID).Scan(&role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			log.Debug().
				Str("user_id", userID.String()).
				Str("company_id", companyID.String()).
				Msg("RBAC: User is not a member of company")
			return "", ErrCompanyNotFound
		}
		return "", fmt.Errorf("failed to check company membership: %w", err)
	}
	return role, nil
}

// RequireMember returns the caller's role, or ErrCompanyNotFound for non-members.
func (s *Service) RequireMember(ctx context.Context, userID, companyID uuid.UUID) (Role, error) {
	return MemberRole(ctx, s.pool, companyID, userID)
}

// RequireRole checks membership and that allowed(role) holds.
func (s *Service) RequireRole(ctx context.Context, userID, companyID uuid.UUID, allowed func(Role) bool) (Role, error) {
	role, err := s.RequireMember(ctx, userID, companyID)
	if err != nil {
		return "", err
	}
	if !allowed(role) {
		log.Warn().
			Str("user_id", userID.String()).
			Str("company_id", companyID.String()).
			Str("user_role", string(role)).
			Msg("RBAC: Insufficient permissions")
		return role, ErrInsufficientPermissions
	}
	return role, nil
}
