package invitations

import (
	"context"
	"errors"
	"time"

	"github.com/aliuyar1234/pmdash/internal/companies"
	"github.com/google/uuid"
)

var (
	// ErrStoreNotFound is returned by a Store when a lookup matches no row.
	ErrStoreNotFound = errors.New("invitations store: not found")

	// ErrPendingExists is returned by Insert when (company, email) already has
	// a pending invitation.
	ErrPendingExists = errors.New("invitations store: pending invitation exists")

	// ErrMemberExists is returned by AddMember when the user already belongs to the company.
	ErrMemberExists = errors.New("invitations store: member exists")
)

// Store is the persistence boundary for the invitation lifecycle. Methods
// called on the Store passed to WithTx's callback share one transaction.
type Store interface {
	WithTx(ctx context.Context, fn func(tx Store) error) error

	// MemberRole returns userID's role in companyID, or ErrStoreNotFound.
	MemberRole(ctx context.Context, companyID, userID uuid.UUID) (companies.Role, error)
	// IsMemberEmail reports whether an account with email belongs to companyID.
	IsMemberEmail(ctx context.Context, companyID uuid.UUID, email string) (bool, error)
	CompanyName(ctx context.Context, companyID uuid.UUID) (string, error)
	// ProfileName returns the display name for userID, empty when unknown.
	ProfileName(ctx context.Context, userID uuid.UUID) (string, error)

	FindPending(ctx context.Context, companyID uuid.UUID, email string) (*Invitation, error)
	// Insert stores inv and fills in ID, CreatedAt and UpdatedAt.
	Insert(ctx context.Context, inv *Invitation) error
	// GetByID loads an invitation; lock requests a row lock inside a transaction.
	GetByID(ctx context.Context, id uuid.UUID, lock bool) (*Invitation, error)
	GetByToken(ctx context.Context, token string, lock bool) (*Invitation, error)
	// Reissue sets a new token and expiry, resets status to pending and bumps updated_at.
	Reissue(ctx context.Context, id uuid.UUID, token string, expiresAt, now time.Time) (*Invitation, error)
	SetStatus(ctx context.Context, id uuid.UUID, status Status, now time.Time) error
	// ListPending returns pending invitations of a company that have not expired at now.
	ListPending(ctx context.Context, companyID uuid.UUID, now time.Time) ([]Invitation, error)

	// EnsureProfile creates a profile for the user when none exists.
	EnsureProfile(ctx context.Context, user Invitee) error
	AddMember(ctx context.Context, companyID, userID uuid.UUID, role companies.Role) error
}
