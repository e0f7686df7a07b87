package services

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/princinho/lmsbackend/models"
	"github.com/princinho/lmsbackend/utils"
)

// In-memory fakes for the store interfaces. fakeTxn snapshots them
// before the callback and restores on error, mimicking all-or-nothing
// commit semantics.

type fakeUserStore struct {
	users  map[bson.ObjectID]*models.User
	failOn map[string]error // method name -> forced error
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: map[bson.ObjectID]*models.User{}, failOn: map[string]error{}}
}

func (f *fakeUserStore) fail(method string) error {
	if err, ok := f.failOn[method]; ok {
		return err
	}
	return nil
}

func (f *fakeUserStore) snapshot() map[bson.ObjectID]*models.User {
	cp := make(map[bson.ObjectID]*models.User, len(f.users))
	for id, u := range f.users {
		clone := *u
		cp[id] = &clone
	}
	return cp
}

func (f *fakeUserStore) FindByEmail(_ context.Context, email string) (*models.User, error) {
	email = utils.NormalizeEmail(email)
	for _, u := range f.users {
		if u.Email == email {
			clone := *u
			return &clone, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeUserStore) FindByID(_ context.Context, id bson.ObjectID) (*models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *u
	return &clone, nil
}

func (f *fakeUserStore) Insert(_ context.Context, u *models.User) error {
	if err := f.fail("Insert"); err != nil {
		return err
	}
	for _, existing := range f.users {
		if existing.Email == u.Email {
			return ErrDuplicate
		}
	}
	if u.ID.IsZero() {
		u.ID = bson.NewObjectID()
	}
	clone := *u
	f.users[u.ID] = &clone
	return nil
}

func (f *fakeUserStore) Replace(_ context.Context, u *models.User) error {
	if _, ok := f.users[u.ID]; !ok {
		return ErrNotFound
	}
	clone := *u
	f.users[u.ID] = &clone
	return nil
}

func (f *fakeUserStore) Delete(_ context.Context, id bson.ObjectID) error {
	if err := f.fail("Delete"); err != nil {
		return err
	}
	if _, ok := f.users[id]; !ok {
		return ErrNotFound
	}
	delete(f.users, id)
	return nil
}

func (f *fakeUserStore) DeleteByOrganization(_ context.Context, orgID bson.ObjectID) (int64, error) {
	if err := f.fail("DeleteByOrganization"); err != nil {
		return 0, err
	}
	var n int64
	for id, u := range f.users {
		if u.OrganizationID != nil && *u.OrganizationID == orgID {
			delete(f.users, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeUserStore) RecordLoginFailure(_ context.Context, id bson.ObjectID, attempts int, lockUntil *time.Time) error {
	u, ok := f.users[id]
	if !ok {
		return ErrNotFound
	}
	u.FailedLoginAttempts = attempts
	u.LockUntil = lockUntil
	return nil
}

func (f *fakeUserStore) RecordLoginSuccess(_ context.Context, id bson.ObjectID, at time.Time) error {
	u, ok := f.users[id]
	if !ok {
		return ErrNotFound
	}
	u.FailedLoginAttempts = 0
	u.LockUntil = nil
	u.LastLoginAt = &at
	return nil
}

func (f *fakeUserStore) SetPassword(_ context.Context, id bson.ObjectID, hash string, verifyEmail bool) error {
	if err := f.fail("SetPassword"); err != nil {
		return err
	}
	u, ok := f.users[id]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = hash
	u.FailedLoginAttempts = 0
	u.LockUntil = nil
	if verifyEmail {
		u.IsEmailVerified = true
	}
	return nil
}

func (f *fakeUserStore) UpdateRole(_ context.Context, id bson.ObjectID, role models.Role) error {
	u, ok := f.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Role = role
	u.Level = role.Level()
	return nil
}

func (f *fakeUserStore) CountByRole(_ context.Context, role models.Role) (int64, error) {
	var n int64
	for _, u := range f.users {
		if u.Role == role {
			n++
		}
	}
	return n, nil
}

func (f *fakeUserStore) CountByOrganizationAndRole(_ context.Context, orgID bson.ObjectID, role models.Role) (int64, error) {
	var n int64
	for _, u := range f.users {
		if u.Role == role && u.OrganizationID != nil && *u.OrganizationID == orgID {
			n++
		}
	}
	return n, nil
}

func (f *fakeUserStore) EnsureOperator(ctx context.Context, email, passwordHash string) (*models.User, error) {
	email = utils.NormalizeEmail(email)
	for _, u := range f.users {
		if u.Email == email {
			u.Role = models.RoleSuperAdmin
			u.Level = models.LevelExecutive
			u.IsActive = true
			u.IsEmailVerified = true
			clone := *u
			return &clone, nil
		}
	}
	u := &models.User{
		ID:              bson.NewObjectID(),
		Email:           email,
		Name:            "Platform Operator",
		PasswordHash:    passwordHash,
		Role:            models.RoleSuperAdmin,
		Level:           models.LevelExecutive,
		IsActive:        true,
		IsEmailVerified: true,
	}
	f.users[u.ID] = u
	clone := *u
	return &clone, nil
}

type fakeOrgStore struct {
	orgs map[bson.ObjectID]*models.Organization

	// onSetMaxUsers, when set, runs once before the next conditional cap
	// write, standing in for a concurrent seat reservation.
	onSetMaxUsers func()
}

func newFakeOrgStore() *fakeOrgStore {
	return &fakeOrgStore{orgs: map[bson.ObjectID]*models.Organization{}}
}

func (f *fakeOrgStore) snapshot() map[bson.ObjectID]*models.Organization {
	cp := make(map[bson.ObjectID]*models.Organization, len(f.orgs))
	for id, o := range f.orgs {
		clone := *o
		cp[id] = &clone
	}
	return cp
}

func (f *fakeOrgStore) FindByID(_ context.Context, id bson.ObjectID) (*models.Organization, error) {
	o, ok := f.orgs[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *o
	return &clone, nil
}

func (f *fakeOrgStore) FindByCode(_ context.Context, code string) (*models.Organization, error) {
	code = utils.NormalizeOrgCode(code)
	for _, o := range f.orgs {
		if o.Code == code {
			clone := *o
			return &clone, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeOrgStore) Insert(_ context.Context, o *models.Organization) error {
	for _, existing := range f.orgs {
		if existing.Code == o.Code {
			return ErrDuplicate
		}
	}
	if o.ID.IsZero() {
		o.ID = bson.NewObjectID()
	}
	clone := *o
	f.orgs[o.ID] = &clone
	return nil
}

func (f *fakeOrgStore) Update(_ context.Context, id bson.ObjectID, set bson.M) error {
	o, ok := f.orgs[id]
	if !ok {
		return ErrNotFound
	}
	for k, v := range set {
		switch k {
		case "name":
			o.Name = v.(string)
		case "planType":
			o.PlanType = v.(string)
		case "license.maxUsers":
			o.License.MaxUsers = v.(int)
		case "license.features":
			o.License.Features = v.([]string)
		case "status":
			o.Status = v.(models.OrgStatus)
		}
	}
	return nil
}

func (f *fakeOrgStore) Delete(_ context.Context, id bson.ObjectID) error {
	if _, ok := f.orgs[id]; !ok {
		return ErrNotFound
	}
	delete(f.orgs, id)
	return nil
}

func (f *fakeOrgStore) ReserveSeats(_ context.Context, id bson.ObjectID, seats, active int) error {
	o, ok := f.orgs[id]
	if !ok {
		return ErrNotFound
	}
	if o.Stats.TotalUsers+seats > o.License.MaxUsers {
		return ErrLicenseLimit
	}
	o.Stats.TotalUsers += seats
	o.Stats.ActiveUsers += active
	return nil
}

func (f *fakeOrgStore) SetMaxUsers(_ context.Context, id bson.ObjectID, maxUsers int) error {
	if f.onSetMaxUsers != nil {
		hook := f.onSetMaxUsers
		f.onSetMaxUsers = nil
		hook()
	}
	o, ok := f.orgs[id]
	if !ok {
		return ErrNotFound
	}
	if o.Stats.TotalUsers > maxUsers {
		return ErrLicenseLimit
	}
	o.License.MaxUsers = maxUsers
	return nil
}

func (f *fakeOrgStore) ReleaseSeats(_ context.Context, id bson.ObjectID, seats, active int) error {
	o, ok := f.orgs[id]
	if !ok {
		return ErrNotFound
	}
	o.Stats.TotalUsers -= seats
	o.Stats.ActiveUsers -= active
	if o.Stats.TotalUsers < 0 {
		o.Stats.TotalUsers = 0
	}
	if o.Stats.ActiveUsers < 0 {
		o.Stats.ActiveUsers = 0
	}
	return nil
}

type fakeTokenStore struct {
	tokens map[bson.ObjectID]*models.PasswordResetToken
	failOn map[string]error
}

func newFakeTokenStore() *fakeTokenStore {
	return &fakeTokenStore{tokens: map[bson.ObjectID]*models.PasswordResetToken{}, failOn: map[string]error{}}
}

func (f *fakeTokenStore) snapshot() map[bson.ObjectID]*models.PasswordResetToken {
	cp := make(map[bson.ObjectID]*models.PasswordResetToken, len(f.tokens))
	for id, t := range f.tokens {
		clone := *t
		cp[id] = &clone
	}
	return cp
}

func (f *fakeTokenStore) Insert(_ context.Context, t *models.PasswordResetToken) error {
	if err, ok := f.failOn["Insert"]; ok {
		return err
	}
	if t.ID.IsZero() {
		t.ID = bson.NewObjectID()
	}
	clone := *t
	f.tokens[t.ID] = &clone
	return nil
}

func (f *fakeTokenStore) FindUsable(_ context.Context, token string, now time.Time) (*models.PasswordResetToken, error) {
	for _, t := range f.tokens {
		if t.Token == token && t.Usable(now) {
			clone := *t
			return &clone, nil
		}
	}
	return nil, ErrInvalidToken
}

func (f *fakeTokenStore) InvalidateAllForUser(_ context.Context, userID bson.ObjectID) error {
	for _, t := range f.tokens {
		if t.UserID == userID && !t.Used {
			t.Used = true
		}
	}
	return nil
}

func (f *fakeTokenStore) MarkUsed(_ context.Context, id bson.ObjectID) error {
	t, ok := f.tokens[id]
	if !ok || t.Used {
		return ErrInvalidToken
	}
	t.Used = true
	return nil
}

type fakeRefreshStore struct {
	revokedUsers []bson.ObjectID
}

func (f *fakeRefreshStore) Insert(_ context.Context, _ *models.RefreshToken) error { return nil }
func (f *fakeRefreshStore) FindActive(_ context.Context, _ string, _ time.Time) (*models.RefreshToken, error) {
	return nil, ErrInvalidToken
}
func (f *fakeRefreshStore) Revoke(_ context.Context, _ bson.ObjectID, _ *string) error { return nil }
func (f *fakeRefreshStore) RevokeAllForUser(_ context.Context, userID bson.ObjectID) error {
	f.revokedUsers = append(f.revokedUsers, userID)
	return nil
}

// fakeTxn restores every participating store to its pre-transaction
// state when the callback errors.
type fakeTxn struct {
	users  *fakeUserStore
	orgs   *fakeOrgStore
	tokens *fakeTokenStore

	// before, when set, runs once just before the next transaction
	// starts. Tests use it to interleave a concurrent write between a
	// caller's pre-read and the transaction body.
	before func()
}

func (f *fakeTxn) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if f.before != nil {
		hook := f.before
		f.before = nil
		hook()
	}
	var usersSnap map[bson.ObjectID]*models.User
	var orgsSnap map[bson.ObjectID]*models.Organization
	var tokensSnap map[bson.ObjectID]*models.PasswordResetToken
	if f.users != nil {
		usersSnap = f.users.snapshot()
	}
	if f.orgs != nil {
		orgsSnap = f.orgs.snapshot()
	}
	if f.tokens != nil {
		tokensSnap = f.tokens.snapshot()
	}

	if err := fn(ctx); err != nil {
		if f.users != nil {
			f.users.users = usersSnap
		}
		if f.orgs != nil {
			f.orgs.orgs = orgsSnap
		}
		if f.tokens != nil {
			f.tokens.tokens = tokensSnap
		}
		return err
	}
	return nil
}

type sentMail struct {
	To        string
	Token     string
	IsNewUser bool
}

type fakeMailer struct {
	sent    []sentMail
	failErr error
}

func (f *fakeMailer) SendPasswordToken(to, _, token string, isNewUser bool) error {
	if f.failErr != nil {
		return f.failErr
	}
	f.sent = append(f.sent, sentMail{To: to, Token: token, IsNewUser: isNewUser})
	return nil
}

var errForced = errors.New("forced failure")
