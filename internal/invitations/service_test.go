package invitations

import (
	"context"
	"testing"
	"time"

	"github.com/aliuyar1234/pmdash/internal/apperrors"
	"github.com/aliuyar1234/pmdash/internal/companies"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store    *fakeStore
	notifier *recordingNotifier
	clock    *testClock
	svc      *Service

	company uuid.UUID
	owner   uuid.UUID
	admin   uuid.UUID
	manager uuid.UUID
	member  uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store:    newFakeStore(),
		notifier: &recordingNotifier{},
		clock:    &testClock{now: fixedNow},
	}
	f.svc = NewService(f.store, f.notifier, Config{
		AppName:    "PM Dashboard",
		ExpiryDays: 7,
		Link:       func(token string) string { return "https://pm.example.com/invitations/" + token },
	}).WithClock(f.clock.Now)

	f.company = f.store.addCompany("Acme")
	f.owner = f.store.addUser("owner@acme.test")
	f.admin = f.store.addUser("admin@acme.test")
	f.manager = f.store.addUser("manager@acme.test")
	f.member = f.store.addUser("member@acme.test")
	f.store.addMember(f.company, f.owner, companies.RoleOwner)
	f.store.addMember(f.company, f.admin, companies.RoleAdmin)
	f.store.addMember(f.company, f.manager, companies.RoleManager)
	f.store.addMember(f.company, f.member, companies.RoleMember)
	f.store.profiles[f.owner] = Invitee{ID: f.owner, Email: "owner@acme.test", FullName: "Olive Owner"}

	return f
}

func (f *fixture) create(t *testing.T, email string, role companies.Role, requester uuid.UUID) *Result {
	t.Helper()
	res, err := f.svc.Create(context.Background(), CreateInput{
		Email:       email,
		Role:        role,
		CompanyID:   f.company,
		RequesterID: requester,
	})
	require.NoError(t, err)
	return res
}

func (f *fixture) stored(t *testing.T, id uuid.UUID) Invitation {
	t.Helper()
	inv, ok := f.store.invitations[id]
	require.True(t, ok)
	return inv
}

func TestCreate_OwnerInvitesMember(t *testing.T) {
	f := newFixture(t)

	res := f.create(t, "  A@X.com ", companies.RoleMember, f.owner)

	require.False(t, res.Existing)
	require.Equal(t, "a@x.com", res.Invitation.Email)
	require.Equal(t, companies.RoleMember, res.Invitation.Role)
	require.Equal(t, StatusPending, res.Invitation.Status)
	require.Equal(t, f.owner, res.Invitation.InvitedBy)
	require.Equal(t, fixedNow.Add(7*24*time.Hour), res.Invitation.ExpiresAt)
	require.True(t, ValidateTokenFormat(res.Invitation.Token))
	require.Equal(t, "https://pm.example.com/invitations/"+res.Invitation.Token, res.Link)

	require.Len(t, f.notifier.notices, 1)
	notice := f.notifier.notices[0]
	require.Equal(t, "a@x.com", notice.Email)
	require.Equal(t, "Acme", notice.CompanyName)
	require.Equal(t, "Olive Owner", notice.InviterName)
	require.Equal(t, res.Link, notice.Link)
	require.False(t, notice.Reminder)
}

func TestCreate_DuplicatePendingReturnsExisting(t *testing.T) {
	f := newFixture(t)

	first := f.create(t, "a@x.com", companies.RoleMember, f.owner)
	second := f.create(t, "A@x.com", companies.RoleAdmin, f.admin)

	require.True(t, second.Existing)
	require.Equal(t, first.Invitation.ID, second.Invitation.ID)
	require.Equal(t, first.Invitation.Token, second.Invitation.Token)
	require.Len(t, f.store.invitations, 1)
	require.Len(t, f.notifier.notices, 1)
}

func TestCreate_ConcurrentInsertReturnsWinner(t *testing.T) {
	f := newFixture(t)

	var winner Invitation
	f.store.beforeInsert = func() error {
		f.store.beforeInsert = nil
		return ErrPendingExists
	}
	f.store.afterRollback = func() {
		winner = Invitation{
			ID:        uuid.New(),
			CompanyID: f.company,
			Email:     "race@x.com",
			Role:      companies.RoleMember,
			Token:     "0123456789abcdef0123456789abcdef0123456789abcdef",
			InvitedBy: f.admin,
			Status:    StatusPending,
			ExpiresAt: fixedNow.Add(time.Hour),
		}
		f.store.invitations[winner.ID] = winner
	}

	res := f.create(t, "race@x.com", companies.RoleMember, f.owner)

	require.True(t, res.Existing)
	require.Equal(t, winner.ID, res.Invitation.ID)
	require.Empty(t, f.notifier.notices)
}

func TestCreate_RoleGating(t *testing.T) {
	tests := []struct {
		name      string
		requester func(f *fixture) uuid.UUID
		role      companies.Role
		wantErr   error
	}{
		{"manager invites admin", func(f *fixture) uuid.UUID { return f.manager }, companies.RoleAdmin, ErrManagerRoleLimit},
		{"manager invites manager", func(f *fixture) uuid.UUID { return f.manager }, companies.RoleManager, ErrManagerRoleLimit},
		{"manager invites member", func(f *fixture) uuid.UUID { return f.manager }, companies.RoleMember, nil},
		{"admin invites admin", func(f *fixture) uuid.UUID { return f.admin }, companies.RoleAdmin, nil},
		{"member cannot invite", func(f *fixture) uuid.UUID { return f.member }, companies.RoleMember, ErrRoleCannotInvite},
		{"outsider cannot invite", func(f *fixture) uuid.UUID { return uuid.New() }, companies.RoleMember, ErrNotCompanyMember},
		{"owner role is not invitable", func(f *fixture) uuid.UUID { return f.owner }, companies.RoleOwner, ErrInvalidRole},
		{"unknown role", func(f *fixture) uuid.UUID { return f.owner }, companies.Role("guest"), ErrInvalidRole},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.Create(context.Background(), CreateInput{
				Email:       "new@x.com",
				Role:        tt.role,
				CompanyID:   f.company,
				RequesterID: tt.requester(f),
			})
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
			require.Empty(t, f.store.invitations)
		})
	}
}

func TestCreate_ManagerForbiddenMapsTo403(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), CreateInput{
		Email: "new@x.com", Role: companies.RoleAdmin, CompanyID: f.company, RequesterID: f.manager,
	})
	require.Equal(t, apperrors.KindAuthorization, apperrors.KindOf(err))
	require.Equal(t, 403, apperrors.KindOf(err).Status())
}

func TestCreate_ExistingMemberConflict(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(context.Background(), CreateInput{
		Email: "Member@Acme.test", Role: companies.RoleMember, CompanyID: f.company, RequesterID: f.owner,
	})

	require.ErrorIs(t, err, ErrAlreadyMember)
	require.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))
	require.Empty(t, f.store.invitations)
}

func TestCreate_InvalidEmail(t *testing.T) {
	f := newFixture(t)

	for _, email := range []string{"", "not-an-email", "Bob <bob@x.com>"} {
		_, err := f.svc.Create(context.Background(), CreateInput{
			Email: email, Role: companies.RoleMember, CompanyID: f.company, RequesterID: f.owner,
		})
		require.ErrorIs(t, err, ErrInvalidEmail, email)
	}
}

func TestResend_RotatesTokenAndExpiry(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, "a@x.com", companies.RoleMember, f.owner)

	f.clock.Advance(24 * time.Hour)
	res, err := f.svc.Resend(context.Background(), created.Invitation.ID, f.manager)
	require.NoError(t, err)

	require.Equal(t, created.Invitation.ID, res.Invitation.ID)
	require.NotEqual(t, created.Invitation.Token, res.Invitation.Token)
	require.True(t, res.Invitation.ExpiresAt.After(created.Invitation.ExpiresAt))
	require.Equal(t, f.clock.now.Add(7*24*time.Hour), res.Invitation.ExpiresAt)
	require.Equal(t, StatusPending, res.Invitation.Status)
	require.Equal(t, f.clock.now, res.Invitation.UpdatedAt)

	require.Len(t, f.notifier.notices, 2)
	require.True(t, f.notifier.notices[1].Reminder)
	require.Equal(t, res.Link, f.notifier.notices[1].Link)

	_, err = f.svc.Accept(context.Background(), created.Invitation.Token, Invitee{ID: uuid.New(), Email: "a@x.com"})
	require.ErrorIs(t, err, ErrInvitationRevoked)
}

func TestResend_ExpiredPendingIsRevived(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, "a@x.com", companies.RoleMember, f.owner)

	f.clock.Advance(10 * 24 * time.Hour)
	res, err := f.svc.Resend(context.Background(), created.Invitation.ID, f.owner)
	require.NoError(t, err)
	require.Equal(t, StatusPending, res.Invitation.EffectiveStatus(f.clock.now))
}

func TestResend_TerminalStatesRejected(t *testing.T) {
	for _, status := range []Status{StatusCanceled, StatusAccepted} {
		t.Run(string(status), func(t *testing.T) {
			f := newFixture(t)
			created := f.create(t, "a@x.com", companies.RoleMember, f.owner)
			inv := f.stored(t, created.Invitation.ID)
			inv.Status = status
			f.store.invitations[inv.ID] = inv

			_, err := f.svc.Resend(context.Background(), inv.ID, f.owner)
			require.ErrorIs(t, err, ErrInvalidState)
			require.ErrorContains(t, err, "already "+string(status))
			require.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))
			require.Equal(t, inv.Token, f.stored(t, inv.ID).Token)
		})
	}
}

func TestResend_Authorization(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, "a@x.com", companies.RoleMember, f.owner)

	_, err := f.svc.Resend(context.Background(), uuid.New(), f.owner)
	require.ErrorIs(t, err, ErrInvitationNotFound)

	_, err = f.svc.Resend(context.Background(), created.Invitation.ID, uuid.New())
	require.ErrorIs(t, err, ErrNoManagePermission)

	_, err = f.svc.Resend(context.Background(), created.Invitation.ID, f.member)
	require.ErrorIs(t, err, ErrRoleCannotResend)
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, "a@x.com", companies.RoleMember, f.owner)

	_, err := f.svc.Cancel(context.Background(), created.Invitation.ID, f.member)
	require.ErrorIs(t, err, ErrRoleCannotCancel)

	inv, err := f.svc.Cancel(context.Background(), created.Invitation.ID, f.admin)
	require.NoError(t, err)
	require.Equal(t, StatusCanceled, inv.Status)
	require.Equal(t, StatusCanceled, f.stored(t, inv.ID).Status)

	_, err = f.svc.Cancel(context.Background(), created.Invitation.ID, f.admin)
	require.ErrorIs(t, err, ErrInvalidState)
	require.EqualError(t, err, "This invitation cannot be canceled because it is already canceled.: invalid invitation state")
	require.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}

func TestLifecycle_CreateResendCancelResend(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created := f.create(t, "a@x.com", companies.RoleMember, f.owner)
	require.Equal(t, StatusPending, created.Invitation.Status)
	require.Equal(t, companies.RoleMember, created.Invitation.Role)

	f.clock.Advance(time.Minute)
	resent, err := f.svc.Resend(ctx, created.Invitation.ID, f.owner)
	require.NoError(t, err)
	require.NotEqual(t, created.Invitation.Token, resent.Invitation.Token)
	require.True(t, resent.Invitation.ExpiresAt.After(created.Invitation.ExpiresAt))
	require.Equal(t, StatusPending, resent.Invitation.Status)

	canceled, err := f.svc.Cancel(ctx, created.Invitation.ID, f.owner)
	require.NoError(t, err)
	require.Equal(t, StatusCanceled, canceled.Status)

	_, err = f.svc.Resend(ctx, created.Invitation.ID, f.owner)
	require.ErrorContains(t, err, "already canceled")
}

func TestAccept_Success(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, "bob@x.com", companies.RoleManager, f.owner)
	bob := Invitee{ID: f.store.addUser("bob@x.com"), Email: "Bob@X.com", FullName: "Bob Builder"}

	inv, err := f.svc.Accept(context.Background(), created.Invitation.Token, bob)
	require.NoError(t, err)
	require.Equal(t, StatusAccepted, inv.Status)

	require.Equal(t, StatusAccepted, f.stored(t, inv.ID).Status)
	require.Equal(t, companies.RoleManager, f.store.members[memberKey{f.company, bob.ID}])
	require.Equal(t, "Bob Builder", f.store.profiles[bob.ID].FullName)

	_, err = f.svc.Accept(context.Background(), created.Invitation.Token, bob)
	require.ErrorIs(t, err, ErrInvitationAccepted)
}

func TestAccept_KeepsExistingProfile(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, "bob@x.com", companies.RoleMember, f.owner)
	bobID := f.store.addUser("bob@x.com")
	f.store.profiles[bobID] = Invitee{ID: bobID, Email: "bob@x.com", FullName: "Robert"}

	_, err := f.svc.Accept(context.Background(), created.Invitation.Token, Invitee{ID: bobID, Email: "bob@x.com", FullName: "Bob"})
	require.NoError(t, err)
	require.Equal(t, "Robert", f.store.profiles[bobID].FullName)
}

func TestAccept_ExpiredKeepsPendingStatus(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, "bob@x.com", companies.RoleMember, f.owner)

	f.clock.Advance(7*24*time.Hour + time.Second)
	_, err := f.svc.Accept(context.Background(), created.Invitation.Token, Invitee{ID: uuid.New(), Email: "bob@x.com"})

	require.ErrorIs(t, err, ErrInvitationExpired)
	require.Equal(t, apperrors.KindGone, apperrors.KindOf(err))
	stored := f.stored(t, created.Invitation.ID)
	require.Equal(t, StatusPending, stored.Status)
	require.Equal(t, StatusExpired, stored.EffectiveStatus(f.clock.now))
}

func TestAccept_EmailMismatch(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, "bob@x.com", companies.RoleMember, f.owner)

	_, err := f.svc.Accept(context.Background(), created.Invitation.Token, Invitee{ID: uuid.New(), Email: "carol@x.com"})
	require.ErrorIs(t, err, ErrEmailMismatch)
	require.Equal(t, StatusPending, f.stored(t, created.Invitation.ID).Status)
}

func TestAccept_AlreadyMemberMakesNoWrites(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, "bob@x.com", companies.RoleMember, f.owner)
	bobID := f.store.addUser("someone-else@x.com")
	f.store.addMember(f.company, bobID, companies.RoleMember)
	writesBefore := f.store.writes

	_, err := f.svc.Accept(context.Background(), created.Invitation.Token, Invitee{ID: bobID, Email: "bob@x.com"})

	require.ErrorIs(t, err, ErrAlreadyInCompany)
	require.Equal(t, writesBefore, f.store.writes)
	require.NotContains(t, f.store.profiles, bobID)
	require.Equal(t, StatusPending, f.stored(t, created.Invitation.ID).Status)
}

func TestAccept_CanceledAndUnknownTokens(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, "bob@x.com", companies.RoleMember, f.owner)
	_, err := f.svc.Cancel(context.Background(), created.Invitation.ID, f.owner)
	require.NoError(t, err)

	bob := Invitee{ID: uuid.New(), Email: "bob@x.com"}

	_, err = f.svc.Accept(context.Background(), created.Invitation.Token, bob)
	require.ErrorIs(t, err, ErrInvitationCanceled)

	_, err = f.svc.Accept(context.Background(), "not-a-token", bob)
	require.ErrorIs(t, err, ErrInvitationRevoked)

	unknown, err := GenerateToken()
	require.NoError(t, err)
	_, err = f.svc.Accept(context.Background(), unknown, bob)
	require.ErrorIs(t, err, ErrInvitationRevoked)
	require.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}

func TestAccept_ExpiryCheckedBeforeStatus(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, "bob@x.com", companies.RoleMember, f.owner)
	_, err := f.svc.Cancel(context.Background(), created.Invitation.ID, f.owner)
	require.NoError(t, err)

	f.clock.Advance(30 * 24 * time.Hour)
	_, err = f.svc.Accept(context.Background(), created.Invitation.Token, Invitee{ID: uuid.New(), Email: "bob@x.com"})
	require.ErrorIs(t, err, ErrInvitationExpired)
}

func TestLookup_DoesNotWrite(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, "bob@x.com", companies.RoleAdmin, f.owner)
	writesBefore := f.store.writes

	preview, err := f.svc.Lookup(context.Background(), created.Invitation.Token, Invitee{ID: uuid.New(), Email: "bob@x.com"})
	require.NoError(t, err)
	require.Equal(t, "Acme", preview.CompanyName)
	require.Equal(t, "Olive Owner", preview.InviterName)
	require.Equal(t, created.Invitation.ID, preview.Invitation.ID)
	require.Equal(t, writesBefore, f.store.writes)

	_, err = f.svc.Lookup(context.Background(), created.Invitation.Token, Invitee{ID: uuid.New(), Email: "eve@x.com"})
	require.ErrorIs(t, err, ErrEmailMismatch)
}

func TestListPending(t *testing.T) {
	f := newFixture(t)
	f.create(t, "one@x.com", companies.RoleMember, f.owner)
	canceled := f.create(t, "two@x.com", companies.RoleMember, f.owner)
	_, err := f.svc.Cancel(context.Background(), canceled.Invitation.ID, f.owner)
	require.NoError(t, err)

	f.clock.Advance(8 * 24 * time.Hour)
	fresh := f.create(t, "three@x.com", companies.RoleMember, f.owner)

	list, err := f.svc.ListPending(context.Background(), f.company, f.manager)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, fresh.Invitation.ID, list[0].ID)

	_, err = f.svc.ListPending(context.Background(), f.company, f.member)
	require.ErrorIs(t, err, ErrNoManagePermission)
}
