package profiles

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aliuyar1234/pmdash/internal/apperrors"
	"github.com/aliuyar1234/pmdash/internal/db"
	"github.com/aliuyar1234/pmdash/internal/validation"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrProfileNotFound is returned when the user has no profile row
	ErrProfileNotFound = apperrors.NotFound("Profile not found")

	ErrFullNameTooLong = apperrors.Validation("Full name must be at most 200 characters")
	ErrJobTitleTooLong = apperrors.Validation("Job title must be at most 200 characters")
	ErrInvalidAvatar   = apperrors.Validation("Avatar URL must be an absolute http(s) URL")
	ErrEmptyUpdate     = apperrors.Validation("No profile fields to update")
)

// Profile is the user-editable part of an account.
type Profile struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	FullName  *string   `json:"full_name"`
	AvatarURL *string   `json:"avatar_url"`
	JobTitle  *string   `json:"job_title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UpdateInput carries a partial update. Nil fields are left untouched and
// empty strings clear the column.
type UpdateInput struct {
	FullName  *string `json:"full_name"`
	AvatarURL *string `json:"avatar_url"`
	JobTitle  *string `json:"job_title"`
}

// Validate trims every supplied field and checks its bounds.
func (in *UpdateInput) Validate() error {
	if in.FullName == nil && in.AvatarURL == nil && in.JobTitle == nil {
		return ErrEmptyUpdate
	}

	if in.FullName != nil {
		v := strings.TrimSpace(*in.FullName)
		if utf8.RuneCountInString(v) > validation.MaxNameLength {
			return ErrFullNameTooLong
		}
		in.FullName = &v
	}
	if in.JobTitle != nil {
		v := strings.TrimSpace(*in.JobTitle)
		if utf8.RuneCountInString(v) > validation.MaxNameLength {
			return ErrJobTitleTooLong
		}
		in.JobTitle = &v
	}
	if in.AvatarURL != nil {
		v := strings.TrimSpace(*in.AvatarURL)
		if v != "" {
			u, err := url.Parse(v)
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
				return ErrInvalidAvatar
			}
		}
		in.AvatarURL = &v
	}
	return nil
}

// Service reads and updates profiles.
type Service struct {
	pool *pgxpool.Pool
}

// NewService creates a new profile service
func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

const selectProfile = `
	SELECT id, email, full_name, avatar_url, job_title, created_at, updated_at
	FROM profiles
`

func scanProfile(row pgx.Row) (*Profile, error) {
	var p Profile
	err := row.Scan(&p.ID, &p.Email, &p.FullName, &p.AvatarURL, &p.JobTitle, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to scan profile: %w", err)
	}
	return &p, nil
}

// Get returns userID's profile.
func (s *Service) Get(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	return scanProfile(s.pool.QueryRow(ctx, selectProfile+` WHERE id = $1`, userID))
}

// Update applies in to userID's profile and returns the stored result.
func (s *Service) Update(ctx context.Context, userID uuid.UUID, in UpdateInput) (*Profile, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	// A NULL parameter keeps the column; an empty string clears it.
	row := s.pool.QueryRow(ctx, `
		UPDATE profiles SET
			full_name  = CASE WHEN $2::text IS NULL THEN full_name  ELSE NULLIF($2, '') END,
			avatar_url = CASE WHEN $3::text IS NULL THEN avatar_url ELSE NULLIF($3, '') END,
			job_title  = CASE WHEN $4::text IS NULL THEN job_title  ELSE NULLIF($4, '') END,
			updated_at = NOW()
		WHERE id = $1
		RETURNING id, email, full_name, avatar_url, job_title, created_at, updated_at
	`, userID, in.FullName, in.AvatarURL, in.JobTitle)

	return scanProfile(row)
}

// Ensure creates a profile for userID unless one exists. q may be an open
// transaction so profile creation commits together with the caller's writes.
func Ensure(ctx context.Context, q db.DBTX, userID uuid.UUID, email, fullName string) error {
	_, err := q.Exec(ctx, `
		INSERT INTO profiles (id, full_name, email)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING
	`, userID, validation.OptionalString(fullName), validation.NormalizeEmail(email))
	if err != nil {
		return fmt.Errorf("failed to ensure profile: %w", err)
	}
	return nil
}
