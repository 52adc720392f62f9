package companies

import (
	"time"

	"github.com/google/uuid"
)

// Role is a user's role within a company
type Role string

const (
	RoleOwner   Role = "owner"
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleMember  Role = "member"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleManager, RoleMember:
		return true
	default:
		return false
	}
}

// CanManageMembers returns true for roles that may change or remove members.
func (r Role) CanManageMembers() bool {
	return r == RoleOwner || r == RoleAdmin
}

// CanManageInvitations returns true for roles that may send, resend or cancel invitations.
func (r Role) CanManageInvitations() bool {
	return r == RoleOwner || r == RoleAdmin || r == RoleManager
}

// CanManageProjects returns true for roles that may create and edit projects.
func (r Role) CanManageProjects() bool {
	return r.CanManageInvitations()
}

// CanInvite reports whether r may invite someone with target role. Managers
// may only bring in members; owners and admins may invite any non-owner role.
func (r Role) CanInvite(target Role) bool {
	if target == RoleOwner || !target.IsValid() {
		return false
	}
	switch r {
	case RoleOwner, RoleAdmin:
		return true
	case RoleManager:
		return target == RoleMember
	default:
		return false
	}
}

// Company represents a tenant
type Company struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Industry    *string   `json:"industry,omitempty"`
	Description *string   `json:"description,omitempty"`
	LogoURL     *string   `json:"logo_url,omitempty"`
	CreatedBy   uuid.UUID `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CompanyWithRole combines company information with the caller's role
type CompanyWithRole struct {
	Company
	Role Role `json:"role"`
}

// MemberInfo is a company member joined with their profile
type MemberInfo struct {
	UserID    uuid.UUID `json:"user_id"`
	Email     string    `json:"email"`
	FullName  *string   `json:"full_name,omitempty"`
	AvatarURL *string   `json:"avatar_url,omitempty"`
	JobTitle  *string   `json:"job_title,omitempty"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}
