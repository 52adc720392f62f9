package invitations

import (
	"context"
	"strings"
	"time"

	"github.com/aliuyar1234/pmdash/internal/companies"
	"github.com/aliuyar1234/pmdash/internal/notify"
	"github.com/google/uuid"
)

type memberKey struct {
	company uuid.UUID
	user    uuid.UUID
}

// fakeStore is an in-memory Store. WithTx snapshots state and restores it
// when the callback fails, so tests can assert nothing was written.
type fakeStore struct {
	companies   map[uuid.UUID]string
	users       map[uuid.UUID]string
	members     map[memberKey]companies.Role
	profiles    map[uuid.UUID]Invitee
	invitations map[uuid.UUID]Invitation

	writes int

	// afterRollback runs once, after a failed transaction is rolled back.
	afterRollback func()
	// beforeInsert may fail an Insert before it happens.
	beforeInsert func() error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		companies:   map[uuid.UUID]string{},
		users:       map[uuid.UUID]string{},
		members:     map[memberKey]companies.Role{},
		profiles:    map[uuid.UUID]Invitee{},
		invitations: map[uuid.UUID]Invitation{},
	}
}

type snapshot struct {
	members     map[memberKey]companies.Role
	profiles    map[uuid.UUID]Invitee
	invitations map[uuid.UUID]Invitation
	writes      int
}

func (f *fakeStore) snapshot() snapshot {
	s := snapshot{
		members:     make(map[memberKey]companies.Role, len(f.members)),
		profiles:    make(map[uuid.UUID]Invitee, len(f.profiles)),
		invitations: make(map[uuid.UUID]Invitation, len(f.invitations)),
		writes:      f.writes,
	}
	for k, v := range f.members {
		s.members[k] = v
	}
	for k, v := range f.profiles {
		s.profiles[k] = v
	}
	for k, v := range f.invitations {
		s.invitations[k] = v
	}
	return s
}

func (f *fakeStore) WithTx(ctx context.Context, fn func(tx Store) error) error {
	snap := f.snapshot()
	if err := fn(f); err != nil {
		f.members = snap.members
		f.profiles = snap.profiles
		f.invitations = snap.invitations
		f.writes = snap.writes
		if hook := f.afterRollback; hook != nil {
			f.afterRollback = nil
			hook()
		}
		return err
	}
	return nil
}

func (f *fakeStore) addCompany(name string) uuid.UUID {
	id := uuid.New()
	f.companies[id] = name
	return id
}

func (f *fakeStore) addUser(email string) uuid.UUID {
	id := uuid.New()
	f.users[id] = email
	return id
}

func (f *fakeStore) addMember(companyID, userID uuid.UUID, role companies.Role) {
	f.members[memberKey{companyID, userID}] = role
}

func (f *fakeStore) MemberRole(ctx context.Context, companyID, userID uuid.UUID) (companies.Role, error) {
	role, ok := f.members[memberKey{companyID, userID}]
	if !ok {
		return "", ErrStoreNotFound
	}
	return role, nil
}

func (f *fakeStore) IsMemberEmail(ctx context.Context, companyID uuid.UUID, email string) (bool, error) {
	for k := range f.members {
		if k.company == companyID && strings.EqualFold(f.users[k.user], email) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) CompanyName(ctx context.Context, companyID uuid.UUID) (string, error) {
	name, ok := f.companies[companyID]
	if !ok {
		return "", ErrStoreNotFound
	}
	return name, nil
}

func (f *fakeStore) ProfileName(ctx context.Context, userID uuid.UUID) (string, error) {
	return f.profiles[userID].FullName, nil
}

func (f *fakeStore) FindPending(ctx context.Context, companyID uuid.UUID, email string) (*Invitation, error) {
	for _, inv := range f.invitations {
		if inv.CompanyID == companyID && inv.Email == email && inv.Status == StatusPending {
			out := inv
			return &out, nil
		}
	}
	return nil, ErrStoreNotFound
}

func (f *fakeStore) Insert(ctx context.Context, inv *Invitation) error {
	if f.beforeInsert != nil {
		if err := f.beforeInsert(); err != nil {
			return err
		}
	}
	if _, err := f.FindPending(ctx, inv.CompanyID, inv.Email); err == nil {
		return ErrPendingExists
	}
	inv.ID = uuid.New()
	inv.CreatedAt = time.Now().UTC()
	inv.UpdatedAt = inv.CreatedAt
	f.invitations[inv.ID] = *inv
	f.writes++
	return nil
}

func (f *fakeStore) GetByID(ctx context.Context, id uuid.UUID, lock bool) (*Invitation, error) {
	inv, ok := f.invitations[id]
	if !ok {
		return nil, ErrStoreNotFound
	}
	return &inv, nil
}

func (f *fakeStore) GetByToken(ctx context.Context, token string, lock bool) (*Invitation, error) {
	for _, inv := range f.invitations {
		if inv.Token == token {
			out := inv
			return &out, nil
		}
	}
	return nil, ErrStoreNotFound
}

func (f *fakeStore) Reissue(ctx context.Context, id uuid.UUID, token string, expiresAt, now time.Time) (*Invitation, error) {
	inv, ok := f.invitations[id]
	if !ok {
		return nil, ErrStoreNotFound
	}
	inv.Token = token
	inv.ExpiresAt = expiresAt
	inv.UpdatedAt = now
	inv.Status = StatusPending
	f.invitations[id] = inv
	f.writes++
	return &inv, nil
}

func (f *fakeStore) SetStatus(ctx context.Context, id uuid.UUID, status Status, now time.Time) error {
	inv, ok := f.invitations[id]
	if !ok {
		return ErrStoreNotFound
	}
	inv.Status = status
	inv.UpdatedAt = now
	f.invitations[id] = inv
	f.writes++
	return nil
}

func (f *fakeStore) ListPending(ctx context.Context, companyID uuid.UUID, now time.Time) ([]Invitation, error) {
	out := []Invitation{}
	for _, inv := range f.invitations {
		if inv.CompanyID == companyID && inv.Status == StatusPending && inv.ExpiresAt.After(now) {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (f *fakeStore) EnsureProfile(ctx context.Context, user Invitee) error {
	if _, ok := f.profiles[user.ID]; ok {
		return nil
	}
	f.profiles[user.ID] = user
	f.writes++
	return nil
}

func (f *fakeStore) AddMember(ctx context.Context, companyID, userID uuid.UUID, role companies.Role) error {
	key := memberKey{companyID, userID}
	if _, ok := f.members[key]; ok {
		return ErrMemberExists
	}
	f.members[key] = role
	f.writes++
	return nil
}

// recordingNotifier captures every notice it is asked to send.
type recordingNotifier struct {
	notices []notify.InvitationNotice
}

func (n *recordingNotifier) InvitationSent(_ context.Context, notice notify.InvitationNotice) {
	n.notices = append(n.notices, notice)
}

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }
