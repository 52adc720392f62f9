package invitations

import (
	"time"

	"github.com/aliuyar1234/pmdash/internal/companies"
	"github.com/google/uuid"
)

// Status is the stored lifecycle state of an invitation
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusExpired  Status = "expired"
	StatusCanceled Status = "canceled"
)

// IsTerminal reports whether no further transitions are allowed.
func (s Status) IsTerminal() bool {
	return s == StatusAccepted || s == StatusCanceled
}

// Invitation is a pending grant of company membership
type Invitation struct {
	ID        uuid.UUID      `json:"id"`
	CompanyID uuid.UUID      `json:"company_id"`
	Email     string         `json:"email"`
	Role      companies.Role `json:"role"`
	Token     string         `json:"-"`
	InvitedBy uuid.UUID      `json:"invited_by"`
	Status    Status         `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	ExpiresAt time.Time      `json:"expires_at"`
}

// IsExpired reports whether the invitation's lifetime has run out at now.
func (i *Invitation) IsExpired(now time.Time) bool {
	return !now.Before(i.ExpiresAt)
}

// EffectiveStatus derives the logical state at now. A stored pending
// invitation past its expiry reads as expired; storage is never rewritten.
func (i *Invitation) EffectiveStatus(now time.Time) Status {
	if i.Status == StatusPending && i.IsExpired(now) {
		return StatusExpired
	}
	return i.Status
}

// Invitee is the authenticated user acting on an invitation link.
type Invitee struct {
	ID       uuid.UUID
	Email    string
	FullName string
}

// IsInvitableRole reports whether role can be granted through an invitation.
func IsInvitableRole(role companies.Role) bool {
	return role == companies.RoleAdmin || role == companies.RoleManager || role == companies.RoleMember
}
