package invitations

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aliuyar1234/pmdash/internal/apperrors"
	"github.com/aliuyar1234/pmdash/internal/companies"
	"github.com/aliuyar1234/pmdash/internal/notify"
	"github.com/aliuyar1234/pmdash/internal/validation"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrInvalidEmail       = apperrors.Validation("Invalid email address")
	ErrInvalidRole        = apperrors.Validation("Role must be one of: admin, manager, member")
	ErrNotCompanyMember   = apperrors.Authorization("You do not have permission to invite members to this company.")
	ErrRoleCannotInvite   = apperrors.Authorization("Your role does not allow you to send invitations.")
	ErrManagerRoleLimit   = apperrors.Authorization("Managers can only invite team members, not admins or managers.")
	ErrAlreadyMember      = apperrors.Conflict("This email is already a member of the company.")
	ErrInvitationNotFound = apperrors.NotFound("Invitation not found")
	ErrNoManagePermission = apperrors.Authorization("You do not have permission to manage invitations for this company.")
	ErrRoleCannotResend   = apperrors.Authorization("Your role does not allow you to resend invitations.")
	ErrRoleCannotCancel   = apperrors.Authorization("Your role does not allow you to cancel invitations.")
	ErrPendingConflict    = apperrors.Conflict("A pending invitation already exists for this email.")

	ErrInvitationRevoked  = apperrors.NotFound("Invitation not found or has been revoked")
	ErrInvitationExpired  = apperrors.Gone("This invitation has expired")
	ErrInvitationAccepted = apperrors.Conflict("This invitation has already been accepted")
	ErrInvitationCanceled = apperrors.Conflict("This invitation has been canceled")
	ErrEmailMismatch      = apperrors.Authorization("This invitation was sent to a different email address")
	ErrAlreadyInCompany   = apperrors.Conflict("You are already a member of this company")

	// ErrInvalidState is wrapped by resend and cancel failures caused by a
	// terminal status; the wrapping message names that status.
	ErrInvalidState = errors.New("invalid invitation state")
)

// Config holds the service settings derived from application config.
type Config struct {
	AppName    string
	ExpiryDays int
	// Link builds the public acceptance URL for a token.
	Link func(token string) string
}

// Service orchestrates the invitation lifecycle
type Service struct {
	store    Store
	notifier notify.Notifier
	cfg      Config
	now      func() time.Time
}

// NewService creates an invitation service over store.
func NewService(store Store, notifier notify.Notifier, cfg Config) *Service {
	if cfg.Link == nil {
		cfg.Link = func(token string) string { return "/invitations/" + token }
	}
	return &Service{
		store:    store,
		notifier: notifier,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the service clock.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CreateInput is the request to invite email into a company with role.
type CreateInput struct {
	Email       string
	Role        companies.Role
	CompanyID   uuid.UUID
	RequesterID uuid.UUID
}

// Validate checks the invitee email and role. It runs before any store access.
func (in CreateInput) Validate() error {
	if err := validation.ValidateEmail(validation.NormalizeEmail(in.Email)); err != nil {
		return ErrInvalidEmail
	}
	if !IsInvitableRole(in.Role) {
		return ErrInvalidRole
	}
	return nil
}

// Result is an invitation together with its acceptance link.
type Result struct {
	Invitation *Invitation
	Link       string
	// Existing is set when Create found a pending invitation and returned it
	// instead of inserting a new one.
	Existing bool
}

// Create invites an email address into a company. When a pending invitation
// already exists for the pair it is returned unchanged with Existing set.
func (s *Service) Create(ctx context.Context, in CreateInput) (res *Result, err error) {
	defer func() { observe("create", err) }()

	if err := in.Validate(); err != nil {
		return nil, err
	}
	email := validation.NormalizeEmail(in.Email)

	err = s.store.WithTx(ctx, func(tx Store) error {
		role, err := tx.MemberRole(ctx, in.CompanyID, in.RequesterID)
		if err != nil {
			if errors.Is(err, ErrStoreNotFound) {
				return ErrNotCompanyMember
			}
			return err
		}
		if !role.CanManageInvitations() {
			return ErrRoleCannotInvite
		}
		if !role.CanInvite(in.Role) {
			return ErrManagerRoleLimit
		}

		isMember, err := tx.IsMemberEmail(ctx, in.CompanyID, email)
		if err != nil {
			return err
		}
		if isMember {
			return ErrAlreadyMember
		}

		existing, err := tx.FindPending(ctx, in.CompanyID, email)
		if err == nil {
			res = &Result{Invitation: existing, Link: s.cfg.Link(existing.Token), Existing: true}
			return nil
		}
		if !errors.Is(err, ErrStoreNotFound) {
			return err
		}

		token, err := GenerateToken()
		if err != nil {
			return err
		}
		inv := &Invitation{
			CompanyID: in.CompanyID,
			Email:     email,
			Role:      in.Role,
			Token:     token,
			InvitedBy: in.RequesterID,
			Status:    StatusPending,
			ExpiresAt: CalculateExpiry(s.now(), s.cfg.ExpiryDays),
		}
		if err := tx.Insert(ctx, inv); err != nil {
			return err
		}
		res = &Result{Invitation: inv, Link: s.cfg.Link(token)}
		return nil
	})

	// A concurrent Create won the race for the pending slot; hand back its row.
	if errors.Is(err, ErrPendingExists) {
		existing, findErr := s.store.FindPending(ctx, in.CompanyID, email)
		if findErr != nil {
			return nil, fmt.Errorf("failed to load concurrent invitation: %w", findErr)
		}
		return &Result{Invitation: existing, Link: s.cfg.Link(existing.Token), Existing: true}, nil
	}
	if err != nil {
		return nil, err
	}

	if !res.Existing {
		s.dispatch(ctx, res, in.RequesterID, false)
	}
	return res, nil
}

// Resend issues a new token and expiry for a pending invitation and
// re-sends the notification.
func (s *Service) Resend(ctx context.Context, invitationID, requesterID uuid.UUID) (res *Result, err error) {
	defer func() { observe("resend", err) }()

	err = s.store.WithTx(ctx, func(tx Store) error {
		inv, err := s.loadManaged(ctx, tx, invitationID, requesterID, ErrRoleCannotResend)
		if err != nil {
			return err
		}
		if inv.Status.IsTerminal() {
			return apperrors.Wrap(apperrors.KindConflict,
				fmt.Sprintf("This invitation cannot be resent because it is already %s.", inv.Status), ErrInvalidState)
		}

		token, err := GenerateToken()
		if err != nil {
			return err
		}
		now := s.now()
		updated, err := tx.Reissue(ctx, inv.ID, token, CalculateExpiry(now, s.cfg.ExpiryDays), now)
		if err != nil {
			if errors.Is(err, ErrPendingExists) {
				return ErrPendingConflict
			}
			return err
		}
		res = &Result{Invitation: updated, Link: s.cfg.Link(token)}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.dispatch(ctx, res, requesterID, true)
	return res, nil
}

// Cancel moves a pending invitation to canceled.
func (s *Service) Cancel(ctx context.Context, invitationID, requesterID uuid.UUID) (inv *Invitation, err error) {
	defer func() { observe("cancel", err) }()

	err = s.store.WithTx(ctx, func(tx Store) error {
		loaded, err := s.loadManaged(ctx, tx, invitationID, requesterID, ErrRoleCannotCancel)
		if err != nil {
			return err
		}
		if loaded.Status != StatusPending {
			return apperrors.Wrap(apperrors.KindValidation,
				fmt.Sprintf("This invitation cannot be canceled because it is already %s.", loaded.Status), ErrInvalidState)
		}

		now := s.now()
		if err := tx.SetStatus(ctx, loaded.ID, StatusCanceled, now); err != nil {
			return err
		}
		loaded.Status = StatusCanceled
		loaded.UpdatedAt = now
		inv = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// loadManaged locks the invitation and checks that requesterID may manage
// invitations in its company. roleErr is returned for members whose role is too low.
func (s *Service) loadManaged(ctx context.Context, tx Store, invitationID, requesterID uuid.UUID, roleErr error) (*Invitation, error) {
	inv, err := tx.GetByID(ctx, invitationID, true)
	if err != nil {
		if errors.Is(err, ErrStoreNotFound) {
			return nil, ErrInvitationNotFound
		}
		return nil, err
	}

	role, err := tx.MemberRole(ctx, inv.CompanyID, requesterID)
	if err != nil {
		if errors.Is(err, ErrStoreNotFound) {
			return nil, ErrNoManagePermission
		}
		return nil, err
	}
	if !role.CanManageInvitations() {
		return nil, roleErr
	}
	return inv, nil
}

// Preview is what an invitee sees before accepting.
type Preview struct {
	Invitation  *Invitation
	CompanyName string
	InviterName string
}

// Lookup resolves a token for the landing page, applying every Accept
// precondition without writing anything.
func (s *Service) Lookup(ctx context.Context, token string, user Invitee) (*Preview, error) {
	if !ValidateTokenFormat(token) {
		return nil, ErrInvitationRevoked
	}

	inv, err := s.store.GetByToken(ctx, token, false)
	if err != nil {
		if errors.Is(err, ErrStoreNotFound) {
			return nil, ErrInvitationRevoked
		}
		return nil, err
	}
	if err := s.checkAcceptable(ctx, s.store, inv, user); err != nil {
		return nil, err
	}

	companyName, err := s.store.CompanyName(ctx, inv.CompanyID)
	if err != nil {
		return nil, err
	}
	inviterName, err := s.store.ProfileName(ctx, inv.InvitedBy)
	if err != nil {
		return nil, err
	}

	return &Preview{Invitation: inv, CompanyName: companyName, InviterName: inviterName}, nil
}

// Accept makes user a member of the invitation's company. Profile creation,
// membership insert and the status change commit together or not at all.
func (s *Service) Accept(ctx context.Context, token string, user Invitee) (inv *Invitation, err error) {
	defer func() { observe("accept", err) }()

	if !ValidateTokenFormat(token) {
		return nil, ErrInvitationRevoked
	}

	err = s.store.WithTx(ctx, func(tx Store) error {
		loaded, err := tx.GetByToken(ctx, token, true)
		if err != nil {
			if errors.Is(err, ErrStoreNotFound) {
				return ErrInvitationRevoked
			}
			return err
		}
		if err := s.checkAcceptable(ctx, tx, loaded, user); err != nil {
			return err
		}

		if err := tx.EnsureProfile(ctx, user); err != nil {
			return err
		}
		if err := tx.AddMember(ctx, loaded.CompanyID, user.ID, loaded.Role); err != nil {
			if errors.Is(err, ErrMemberExists) {
				return ErrAlreadyInCompany
			}
			return err
		}

		now := s.now()
		if err := tx.SetStatus(ctx, loaded.ID, StatusAccepted, now); err != nil {
			return err
		}
		loaded.Status = StatusAccepted
		loaded.UpdatedAt = now
		inv = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("invitation_id", inv.ID.String()).
		Str("company_id", inv.CompanyID.String()).
		Str("user_id", user.ID.String()).
		Str("role", string(inv.Role)).
		Msg("Invitation accepted")

	return inv, nil
}

// checkAcceptable applies the acceptance preconditions in a fixed order:
// expiry, accepted, canceled, recipient email, existing membership.
func (s *Service) checkAcceptable(ctx context.Context, q Store, inv *Invitation, user Invitee) error {
	if inv.IsExpired(s.now()) || inv.Status == StatusExpired {
		return ErrInvitationExpired
	}
	switch inv.Status {
	case StatusAccepted:
		return ErrInvitationAccepted
	case StatusCanceled:
		return ErrInvitationCanceled
	}
	if !strings.EqualFold(strings.TrimSpace(user.Email), inv.Email) {
		return ErrEmailMismatch
	}

	_, err := q.MemberRole(ctx, inv.CompanyID, user.ID)
	if err == nil {
		return ErrAlreadyInCompany
	}
	if !errors.Is(err, ErrStoreNotFound) {
		return err
	}
	return nil
}

// CompanyName returns the display name of companyID.
func (s *Service) CompanyName(ctx context.Context, companyID uuid.UUID) (string, error) {
	return s.store.CompanyName(ctx, companyID)
}

// ListPending returns the company's pending, unexpired invitations.
func (s *Service) ListPending(ctx context.Context, companyID, requesterID uuid.UUID) ([]Invitation, error) {
	role, err := s.store.MemberRole(ctx, companyID, requesterID)
	if err != nil {
		if errors.Is(err, ErrStoreNotFound) {
			return nil, ErrNoManagePermission
		}
		return nil, err
	}
	if !role.CanManageInvitations() {
		return nil, ErrNoManagePermission
	}
	return s.store.ListPending(ctx, companyID, s.now())
}

// dispatch sends the invitation notice. Lookup failures degrade the notice
// text but never fail the request.
func (s *Service) dispatch(ctx context.Context, res *Result, inviterID uuid.UUID, reminder bool) {
	inv := res.Invitation

	companyName, err := s.store.CompanyName(ctx, inv.CompanyID)
	if err != nil {
		log.Warn().Err(err).Str("company_id", inv.CompanyID.String()).Msg("Failed to load company for invitation email")
	}
	inviterName, err := s.store.ProfileName(ctx, inviterID)
	if err != nil {
		log.Warn().Err(err).Str("user_id", inviterID.String()).Msg("Failed to load inviter for invitation email")
	}

	days := s.cfg.ExpiryDays
	if days <= 0 {
		days = DefaultExpiryDays
	}

	s.notifier.InvitationSent(ctx, notify.InvitationNotice{
		AppName:      s.cfg.AppName,
		Email:        inv.Email,
		CompanyName:  companyName,
		InviterName:  inviterName,
		Role:         string(inv.Role),
		Link:         res.Link,
		ExpiresAt:    inv.ExpiresAt,
		ValidForDays: days,
		Reminder:     reminder,
	})
}
