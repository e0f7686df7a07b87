package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.uber.org/zap"

	"github.com/princinho/lmsbackend/logger"
	"github.com/princinho/lmsbackend/models"
	"github.com/princinho/lmsbackend/utils"
)

// TenantService orchestrates organization and seat provisioning. Every
// multi-document change runs through the injected TxnRunner so a failure
// partway leaves nothing behind.
type TenantService struct {
	Users  UserStore
	Orgs   OrganizationStore
	Guard  *LicenseGuard
	Tokens *TokenService
	Txn    TxnRunner

	Now func() time.Time
}

func NewTenantService(users UserStore, orgs OrganizationStore, guard *LicenseGuard, tokens *TokenService, txn TxnRunner) *TenantService {
	return &TenantService{
		Users:  users,
		Orgs:   orgs,
		Guard:  guard,
		Tokens: tokens,
		Txn:    txn,
		Now:    func() time.Time { return time.Now().UTC() },
	}
}

// SeatInput describes one user to provision.
type SeatInput struct {
	Name        string
	Email       string
	Password    string // empty: a secure temporary password is generated
	Role        models.Role
	Designation string
}

// CreateOrganizationInput is the provisioning spec for a new tenant.
type CreateOrganizationInput struct {
	Code     string
	Name     string
	PlanType string
	MaxUsers int
	Features []string
	EndDate  *time.Time
	Owner    SeatInput
	Manager  *SeatInput
}

func (s *TenantService) buildUser(in SeatInput, role models.Role, orgID *bson.ObjectID, now time.Time) (*models.User, error) {
	email := utils.NormalizeEmail(in.Email)
	if !utils.IsValidEmail(email) {
		return nil, validationf("invalid email %q", in.Email)
	}
	pw := in.Password
	if pw == "" {
		var err error
		if pw, err = utils.GenerateTempPassword(); err != nil {
			return nil, err
		}
	}
	hash, err := utils.HashPassword(pw)
	if err != nil {
		return nil, err
	}
	return &models.User{
		ID:             bson.NewObjectID(),
		Email:          email,
		Name:           in.Name,
		PasswordHash:   hash,
		Role:           role,
		Level:          role.Level(),
		Designation:    in.Designation,
		OrganizationID: orgID,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// CreateOrganization provisions an organization together with its owner
// (and optional manager) in one transaction. No organization ever exists
// without at least its owner.
func (s *TenantService) CreateOrganization(ctx context.Context, in CreateOrganizationInput) (*models.Organization, error) {
	code := utils.NormalizeOrgCode(in.Code)
	if code == "" || in.Name == "" {
		return nil, validationf("organization code and name are required")
	}
	if in.MaxUsers < 1 {
		return nil, validationf("license maxUsers must be positive")
	}

	if _, err := s.Orgs.FindByCode(ctx, code); err == nil {
		return nil, conflictf(ErrDuplicate, "organization code %s already exists", code)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	for _, seat := range []*SeatInput{&in.Owner, in.Manager} {
		if seat == nil {
			continue
		}
		email := utils.NormalizeEmail(seat.Email)
		if _, err := s.Users.FindByEmail(ctx, email); err == nil {
			return nil, conflictf(ErrDuplicate, "user %s already exists", email)
		} else if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	now := s.Now()
	org := &models.Organization{
		ID:       bson.NewObjectID(),
		Code:     code,
		Name:     in.Name,
		PlanType: in.PlanType,
		License:  models.License{MaxUsers: in.MaxUsers, Features: in.Features},
		Stats:    models.OrgStats{},
		StartDate: now,
		EndDate:   in.EndDate,
		Status:    models.OrgStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	// Hash passwords before opening the transaction; bcrypt must not
	// stretch the commit window.
	owner, err := s.buildUser(in.Owner, models.RoleOrgAdmin, &org.ID, now)
	if err != nil {
		return nil, err
	}
	var manager *models.User
	if in.Manager != nil {
		if manager, err = s.buildUser(*in.Manager, models.RoleManager, &org.ID, now); err != nil {
			return nil, err
		}
		manager.ManagerID = &owner.ID
	}

	seats := 1
	if manager != nil {
		seats = 2
	}

	err = s.Txn.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.Orgs.Insert(ctx, org); err != nil {
			if errors.Is(err, ErrDuplicate) {
				return conflictf(ErrDuplicate, "organization code %s already exists", code)
			}
			return err
		}
		if err := s.Users.Insert(ctx, owner); err != nil {
			if errors.Is(err, ErrDuplicate) {
				return conflictf(ErrDuplicate, "user %s already exists", owner.Email)
			}
			return err
		}
		if manager != nil {
			if err := s.Users.Insert(ctx, manager); err != nil {
				if errors.Is(err, ErrDuplicate) {
					return conflictf(ErrDuplicate, "user %s already exists", manager.Email)
				}
				return err
			}
		}
		return s.Guard.Reserve(ctx, org.ID, seats, seats)
	})
	if err != nil {
		return nil, err
	}
	org.Stats = models.OrgStats{TotalUsers: seats, ActiveUsers: seats}

	// Activation mail is best effort and outside the transaction.
	for _, u := range []*models.User{owner, manager} {
		if u == nil {
			continue
		}
		if _, _, err := s.Tokens.Issue(ctx, u, true); err != nil {
			logger.L().Warn("activation token failed",
				zap.String("user_id", u.ID.Hex()), zap.Error(err))
		}
	}
	return org, nil
}

// EditOrganization applies partial updates. Shrinking the license below
// the current seat usage is rejected.
type EditOrganizationInput struct {
	Name     *string
	PlanType *string
	MaxUsers *int
	Features []string
	EndDate  *time.Time
	Status   *models.OrgStatus
}

func (s *TenantService) EditOrganization(ctx context.Context, orgID bson.ObjectID, in EditOrganizationInput) (*models.Organization, error) {
	org, err := s.Orgs.FindByID(ctx, orgID)
	if err != nil {
		return nil, err
	}

	if in.MaxUsers != nil {
		if *in.MaxUsers < 1 {
			return nil, validationf("license maxUsers must be positive")
		}
		// Conditional store update so a concurrent seat add cannot land
		// between the usage read and the cap write.
		if err := s.Orgs.SetMaxUsers(ctx, orgID, *in.MaxUsers); err != nil {
			if errors.Is(err, ErrLicenseLimit) {
				return nil, conflictf(ErrLicenseLimit,
					"cannot reduce license below current usage of %d users", org.Stats.TotalUsers)
			}
			return nil, err
		}
	}

	set := bson.M{}
	if in.Name != nil {
		set["name"] = *in.Name
	}
	if in.PlanType != nil {
		set["planType"] = *in.PlanType
	}
	if in.Features != nil {
		set["license.features"] = in.Features
	}
	if in.EndDate != nil {
		set["endDate"] = *in.EndDate
	}
	if in.Status != nil {
		set["status"] = *in.Status
	}
	if len(set) == 0 && in.MaxUsers == nil {
		return org, nil
	}
	if len(set) > 0 {
		if err := s.Orgs.Update(ctx, orgID, set); err != nil {
			return nil, err
		}
	}
	return s.Orgs.FindByID(ctx, orgID)
}

// DeleteOrganization removes the organization and every user linked to
// it in one transaction; either both halves commit or neither does.
func (s *TenantService) DeleteOrganization(ctx context.Context, orgID bson.ObjectID) error {
	if _, err := s.Orgs.FindByID(ctx, orgID); err != nil {
		return err
	}
	return s.Txn.WithTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.Users.DeleteByOrganization(ctx, orgID); err != nil {
			return fmt.Errorf("%w: %v", ErrTxAborted, err)
		}
		if err := s.Orgs.Delete(ctx, orgID); err != nil {
			return fmt.Errorf("%w: %v", ErrTxAborted, err)
		}
		return nil
	})
}

// CreateUser provisions a single seat, platform-wide or inside an
// organization. orgID nil means no tenant linkage (and no seat cap).
func (s *TenantService) CreateUser(ctx context.Context, orgID *bson.ObjectID, in SeatInput) (*models.User, error) {
	role := in.Role
	if !role.Valid() {
		role = models.RoleEmployee
	}
	if role == models.RoleSuperAdmin && orgID != nil {
		return nil, validationf("super_admin cannot belong to an organization")
	}

	email := utils.NormalizeEmail(in.Email)
	if _, err := s.Users.FindByEmail(ctx, email); err == nil {
		return nil, conflictf(ErrDuplicate, "user %s already exists", email)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	now := s.Now()
	user, err := s.buildUser(in, role, orgID, now)
	if err != nil {
		return nil, err
	}

	err = s.Txn.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.Users.Insert(ctx, user); err != nil {
			if errors.Is(err, ErrDuplicate) {
				return conflictf(ErrDuplicate, "user %s already exists", email)
			}
			return err
		}
		if orgID != nil {
			return s.Guard.Reserve(ctx, *orgID, 1, 1)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if _, _, err := s.Tokens.Issue(ctx, user, true); err != nil {
		logger.L().Warn("activation token failed",
			zap.String("user_id", user.ID.Hex()), zap.Error(err))
	}
	return user, nil
}

// UpdateUserInput carries partial seat updates.
type UpdateUserInput struct {
	Name        *string
	Designation *string
	IsActive    *bool
}

// UpdateUser edits profile fields and the active flag, keeping
// stats.activeUsers in step with activation toggles for tenant seats.
func (s *TenantService) UpdateUser(ctx context.Context, userID bson.ObjectID, in UpdateUserInput) (*models.User, error) {
	user, err := s.Users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.updateUser(ctx, user, in)
}

// UpdateUserInOrganization is UpdateUser scoped to a tenant.
func (s *TenantService) UpdateUserInOrganization(ctx context.Context, orgID, userID bson.ObjectID, in UpdateUserInput) (*models.User, error) {
	user, err := s.Users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.OrganizationID == nil || *user.OrganizationID != orgID {
		return nil, ErrNotFound
	}
	return s.updateUser(ctx, user, in)
}

func (s *TenantService) updateUser(ctx context.Context, user *models.User, in UpdateUserInput) (*models.User, error) {
	activeDelta := 0
	if in.Name != nil {
		user.Name = *in.Name
	}
	if in.Designation != nil {
		user.Designation = *in.Designation
	}
	if in.IsActive != nil && *in.IsActive != user.IsActive {
		if *in.IsActive {
			activeDelta = 1
		} else {
			activeDelta = -1
		}
		user.IsActive = *in.IsActive
	}

	err := s.Txn.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.Users.Replace(ctx, user); err != nil {
			return err
		}
		if user.OrganizationID == nil {
			return nil
		}
		switch {
		case activeDelta > 0:
			return s.Guard.Reserve(ctx, *user.OrganizationID, 0, 1)
		case activeDelta < 0:
			return s.Guard.Release(ctx, *user.OrganizationID, 0, 1)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// DeleteUser removes a seat, protecting the last super_admin platform-
// wide and the last org_admin of any organization. Counters decrement in
// the same transaction.
func (s *TenantService) DeleteUser(ctx context.Context, userID bson.ObjectID) error {
	user, err := s.Users.FindByID(ctx, userID)
	if err != nil {
		return err
	}

	// The count must see the same snapshot the delete commits against,
	// so the guard runs inside the transaction.
	return s.Txn.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.guardLastAdmin(ctx, user); err != nil {
			return err
		}
		if err := s.Users.Delete(ctx, userID); err != nil {
			return err
		}
		if user.OrganizationID != nil {
			active := 0
			if user.IsActive {
				active = 1
			}
			return s.Guard.Release(ctx, *user.OrganizationID, 1, active)
		}
		return nil
	})
}

// DeleteUserFromOrganization is DeleteUser scoped to a tenant.
func (s *TenantService) DeleteUserFromOrganization(ctx context.Context, orgID, userID bson.ObjectID) error {
	user, err := s.Users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.OrganizationID == nil || *user.OrganizationID != orgID {
		return ErrNotFound
	}
	return s.DeleteUser(ctx, userID)
}

// UpdateUserRole changes a seat's role, refusing to demote the last
// super_admin or the last org_admin of a live organization.
func (s *TenantService) UpdateUserRole(ctx context.Context, userID bson.ObjectID, newRole models.Role) (*models.User, error) {
	if !newRole.Valid() {
		return nil, validationf("invalid role %q", newRole)
	}
	user, err := s.Users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Role == newRole {
		return user, nil
	}

	if newRole == models.RoleSuperAdmin && user.OrganizationID != nil {
		return nil, validationf("super_admin cannot belong to an organization")
	}

	// Guard and write commit together so two concurrent demotions cannot
	// both observe a second admin.
	err = s.Txn.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.guardLastAdmin(ctx, user); err != nil {
			return err
		}
		return s.Users.UpdateRole(ctx, userID, newRole)
	})
	if err != nil {
		return nil, err
	}
	user.Role = newRole
	user.Level = newRole.Level()
	return user, nil
}

// guardLastAdmin rejects removing or demoting the last super_admin
// platform-wide, or the last org_admin of an organization.
func (s *TenantService) guardLastAdmin(ctx context.Context, user *models.User) error {
	switch user.Role {
	case models.RoleSuperAdmin:
		n, err := s.Users.CountByRole(ctx, models.RoleSuperAdmin)
		if err != nil {
			return err
		}
		if n <= 1 {
			return ErrLastSuperAdmin
		}
	case models.RoleOrgAdmin:
		if user.OrganizationID == nil {
			return nil
		}
		n, err := s.Users.CountByOrganizationAndRole(ctx, *user.OrganizationID, models.RoleOrgAdmin)
		if err != nil {
			return err
		}
		if n <= 1 {
			return ErrLastOrgAdmin
		}
	}
	return nil
}
