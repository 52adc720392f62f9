package invitations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aliuyar1234/pmdash/internal/companies"
	"github.com/aliuyar1234/pmdash/internal/db"
	"github.com/aliuyar1234/pmdash/internal/profiles"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const invitationColumns = `id, company_id, email, role, token, invited_by, status, created_at, updated_at, expires_at`

// PostgresStore implements Store on pgx. q is the pool, or the open
// transaction for stores handed out by WithTx.
type PostgresStore struct {
	pool *pgxpool.Pool
	q    db.DBTX
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, q: pool}
}

func (s *PostgresStore) WithTx(ctx context.Context, fn func(tx Store) error) error {
	if _, inTx := s.q.(pgx.Tx); inTx {
		return fn(s)
	}
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&PostgresStore{pool: s.pool, q: tx})
	})
}

func (s *PostgresStore) MemberRole(ctx context.Context, companyID, userID uuid.UUID) (companies.Role, error) {
	role, err := companies.MemberRole(ctx, s.q, companyID, userID)
	if errors.Is(err, companies.ErrCompanyNotFound) {
		return "", ErrStoreNotFound
	}
	return role, err
}

func (s *PostgresStore) IsMemberEmail(ctx context.Context, companyID uuid.UUID, email string) (bool, error) {
	var exists bool
	err := s.q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM company_members m
			INNER JOIN users u ON u.id = m.user_id
			WHERE m.company_id = $1 AND lower(u.email) = $2
		)
	`, companyID, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check existing member: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) CompanyName(ctx context.Context, companyID uuid.UUID) (string, error) {
	var name string
	err := s.q.QueryRow(ctx, `SELECT name FROM companies WHERE id = $1`, companyID).Scan(&name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrStoreNotFound
		}
		return "", fmt.Errorf("failed to get company name: %w", err)
	}
	return name, nil
}

func (s *PostgresStore) ProfileName(ctx context.Context, userID uuid.UUID) (string, error) {
	var name *string
	err := s.q.QueryRow(ctx, `
		SELECT COALESCE(p.full_name, u.full_name)
		FROM users u
		LEFT JOIN profiles p ON p.id = u.id
		WHERE u.id = $1
	`, userID).Scan(&name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get profile name: %w", err)
	}
	if name == nil {
		return "", nil
	}
	return *name, nil
}

func scanInvitation(row pgx.Row) (*Invitation, error) {
	var inv Invitation
	err := row.Scan(
		&inv.ID,
		&inv.CompanyID,
		&inv.Email,
		&inv.Role,
		&inv.Token,
		&inv.InvitedBy,
		&inv.Status,
		&inv.CreatedAt,
		&inv.UpdatedAt,
		&inv.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStoreNotFound
		}
		return nil, err
	}
	return &inv, nil
}

func (s *PostgresStore) FindPending(ctx context.Context, companyID uuid.UUID, email string) (*Invitation, error) {
	inv, err := scanInvitation(s.q.QueryRow(ctx, `
		SELECT `+invitationColumns+`
		FROM invitations
		WHERE company_id = $1 AND email = $2 AND status = 'pending'
	`, companyID, email))
	if err != nil && !errors.Is(err, ErrStoreNotFound) {
		return nil, fmt.Errorf("failed to find pending invitation: %w", err)
	}
	return inv, err
}

func (s *PostgresStore) Insert(ctx context.Context, inv *Invitation) error {
	err := s.q.QueryRow(ctx, `
		INSERT INTO invitations (company_id, email, role, token, invited_by, status, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`, inv.CompanyID, inv.Email, inv.Role, inv.Token, inv.InvitedBy, inv.Status, inv.ExpiresAt).Scan(
		&inv.ID,
		&inv.CreatedAt,
		&inv.UpdatedAt,
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return ErrPendingExists
		}
		return fmt.Errorf("failed to insert invitation: %w", err)
	}
	return nil
}

func lockClause(lock bool) string {
	if lock {
		return " FOR UPDATE"
	}
	return ""
}

func (s *PostgresStore) GetByID(ctx context.Context, id uuid.UUID, lock bool) (*Invitation, error) {
	inv, err := scanInvitation(s.q.QueryRow(ctx, `
		SELECT `+invitationColumns+`
		FROM invitations
		WHERE id = $1`+lockClause(lock), id))
	if err != nil && !errors.Is(err, ErrStoreNotFound) {
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}
	return inv, err
}

func (s *PostgresStore) GetByToken(ctx context.Context, token string, lock bool) (*Invitation, error) {
	inv, err := scanInvitation(s.q.QueryRow(ctx, `
		SELECT `+invitationColumns+`
		FROM invitations
		WHERE token = $1`+lockClause(lock), token))
	if err != nil && !errors.Is(err, ErrStoreNotFound) {
		return nil, fmt.Errorf("failed to get invitation by token: %w", err)
	}
	return inv, err
}

func (s *PostgresStore) Reissue(ctx context.Context, id uuid.UUID, token string, expiresAt, now time.Time) (*Invitation, error) {
	inv, err := scanInvitation(s.q.QueryRow(ctx, `
		UPDATE invitations
		SET token = $2, expires_at = $3, updated_at = $4, status = 'pending'
		WHERE id = $1
		RETURNING `+invitationColumns, id, token, expiresAt, now))
	if err != nil && !errors.Is(err, ErrStoreNotFound) {
		if db.IsUniqueViolation(err) {
			return nil, ErrPendingExists
		}
		return nil, fmt.Errorf("failed to reissue invitation: %w", err)
	}
	return inv, err
}

func (s *PostgresStore) SetStatus(ctx context.Context, id uuid.UUID, status Status, now time.Time) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE invitations
		SET status = $2, updated_at = $3
		WHERE id = $1
	`, id, status, now)
	if err != nil {
		return fmt.Errorf("failed to update invitation status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStoreNotFound
	}
	return nil
}

func (s *PostgresStore) ListPending(ctx context.Context, companyID uuid.UUID, now time.Time) ([]Invitation, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+invitationColumns+`
		FROM invitations
		WHERE company_id = $1 AND status = 'pending' AND expires_at > $2
		ORDER BY created_at DESC
	`, companyID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	defer rows.Close()

	out := []Invitation{}
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invitation: %w", err)
		}
		out = append(out, *inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating invitations: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) EnsureProfile(ctx context.Context, user Invitee) error {
	return profiles.Ensure(ctx, s.q, user.ID, user.Email, user.FullName)
}

func (s *PostgresStore) AddMember(ctx context.Context, companyID, userID uuid.UUID, role companies.Role) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO company_members (company_id, user_id, role)
		VALUES ($1, $2, $3)
	`, companyID, userID, role)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return ErrMemberExists
		}
		return fmt.Errorf("failed to add member: %w", err)
	}
	return nil
}
