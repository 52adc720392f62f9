package companies

import (
	"context"
	"errors"
	"fmt"

	"github.com/aliuyar1234/pmdash/internal/apperrors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var (
	ErrMemberNotFound        = apperrors.NotFound("Member not found")
	ErrInvalidRole           = apperrors.Validation("Role must be one of: owner, admin, manager, member")
	ErrCannotDemoteLastOwner = apperrors.Conflict("Cannot demote the last owner")
	ErrCannotRemoveLastOwner = apperrors.Conflict("Cannot remove the last owner")
)

// adminAssignable lists the roles an admin may hold over or hand out.
func adminAssignable(r Role) bool {
	return r == RoleManager || r == RoleMember
}

// UpdateMemberRole changes targetUserID's role and returns the previous one.
// Owners may change anyone; admins may only move managers and members
// between those two roles (or step themselves down).
func (s *Service) UpdateMemberRole(ctx context.Context, companyID, actorUserID, targetUserID uuid.UUID, newRole Role) (previousRole Role, err error) {
	if !newRole.IsValid() {
		return "", ErrInvalidRole
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	actorRole, err := MemberRole(ctx, tx, companyID, actorUserID)
	if err != nil {
		return "", err
	}
	if !actorRole.CanManageMembers() {
		return "", ErrInsufficientPermissions
	}

	currentRole, err := lockMember(ctx, tx, companyID, targetUserID)
	if err != nil {
		return "", err
	}

	if actorRole == RoleAdmin {
		if !adminAssignable(newRole) {
			return "", ErrInsufficientPermissions
		}
		if targetUserID != actorUserID && !adminAssignable(currentRole) {
			return "", ErrInsufficientPermissions
		}
	}

	if currentRole == RoleOwner && newRole != RoleOwner {
		owners, err := lockOwners(ctx, tx, companyID)
		if err != nil {
			return "", err
		}
		if owners <= 1 {
			return "", ErrCannotDemoteLastOwner
		}
	}

	if _, err := tx.Exec(ctx, `
		UPDATE company_members
		SET role = $3, updated_at = NOW()
		WHERE company_id = $1 AND user_id = $2
	`, companyID, targetUserID, newRole); err != nil {
		return "", fmt.Errorf("failed to update member role: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("failed to commit transaction: %w", err)
	}

	return currentRole, nil
}

// RemoveMember deletes targetUserID's membership and returns the role they held.
func (s *Service) RemoveMember(ctx context.Context, companyID, actorUserID, targetUserID uuid.UUID) (removedRole Role, err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	actorRole, err := MemberRole(ctx, tx, companyID, actorUserID)
	if err != nil {
		return "", err
	}
	if !actorRole.CanManageMembers() && targetUserID != actorUserID {
		return "", ErrInsufficientPermissions
	}

	targetRole, err := lockMember(ctx, tx, companyID, targetUserID)
	if err != nil {
		return "", err
	}

	if actorRole == RoleAdmin && targetUserID != actorUserID && !adminAssignable(targetRole) {
		return "", ErrInsufficientPermissions
	}

	if targetRole == RoleOwner {
		owners, err := lockOwners(ctx, tx, companyID)
		if err != nil {
			return "", err
		}
		if owners <= 1 {
			return "", ErrCannotRemoveLastOwner
		}
	}

	tag, err := tx.Exec(ctx, `
		DELETE FROM company_members
		WHERE company_id = $1 AND user_id = $2
	`, companyID, targetUserID)
	if err != nil {
		return "", fmt.Errorf("failed to remove member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return "", ErrMemberNotFound
	}

	// Chat rooms are company scoped; drop the user from every room in this company.
	if _, err := tx.Exec(ctx, `
		DELETE FROM chat_room_members
		WHERE user_id = $2
		  AND chat_room_id IN (SELECT id FROM chat_rooms WHERE company_id = $1)
	`, companyID, targetUserID); err != nil {
		return "", fmt.Errorf("failed to remove chat memberships: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("failed to commit transaction: %w", err)
	}

	return targetRole, nil
}

func lockMember(ctx context.Context, tx pgx.Tx, companyID, userID uuid.UUID) (Role, error) {
	var role Role
	if err := tx.QueryRow(ctx, `
		SELECT role
		FROM company_members
		WHERE company_id = $1 AND user_id = $2
		FOR UPDATE
	`, companyID, userID).Scan(&role); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrMemberNotFound
		}
		return "", fmt.Errorf("failed to load member role: %w", err)
	}
	return role, nil
}

// lockOwners row-locks every owner of the company and returns how many there are.
func lockOwners(ctx context.Context, tx pgx.Tx, companyID uuid.UUID) (int, error) {
	rows, err := tx.Query(ctx, `
		SELECT user_id
		FROM company_members
		WHERE company_id = $1 AND role = $2
		FOR UPDATE
	`, companyID, RoleOwner)
	if err != nil {
		return 0, fmt.Errorf("failed to lock owners: %w", err)
	}
	defer rows.Close()

	var owners int
	for rows.Next() {
		owners++
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("failed to lock owners: %w", err)
	}
	return owners, nil
}
