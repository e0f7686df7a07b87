package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.uber.org/zap"

	"github.com/princinho/lmsbackend/logger"
	"github.com/princinho/lmsbackend/models"
	"github.com/princinho/lmsbackend/utils"
)

func newBatchID() string { return uuid.New().String() }

// ImportRow is one candidate user in a bulk batch.
type ImportRow struct {
	Name        string
	Email       string
	Role        string
	Designation string
}

// ImportResult aggregates per-row outcomes. Errors holds one message per
// rejected row; a token/email failure on a created user lands there as a
// warning without undoing the creation.
type ImportResult struct {
	BatchID    string   `json:"batchId"`
	Success    int      `json:"success"`
	Duplicates int      `json:"duplicates"`
	Failed     int      `json:"failed"`
	EmailsSent int      `json:"emailsSent"`
	Errors     []string `json:"errors,omitempty"`
}

// ErrNoImportableRows is returned when not a single row of a non-empty
// batch could be imported.
var ErrNoImportableRows = errors.New("no importable rows in batch")

// ImportService is the bulk variant of user provisioning. Rows are
// processed sequentially so each accepted row consumes its seat before
// the next row is judged; the per-row transaction pairs the insert with
// the conditional seat reservation.
type ImportService struct {
	Users  UserStore
	Guard  *LicenseGuard
	Tokens *TokenService
	Txn    TxnRunner

	Now func() time.Time
}

func NewImportService(users UserStore, guard *LicenseGuard, tokens *TokenService, txn TxnRunner) *ImportService {
	return &ImportService{
		Users:  users,
		Guard:  guard,
		Tokens: tokens,
		Txn:    txn,
		Now:    func() time.Time { return time.Now().UTC() },
	}
}

// BulkImport processes the batch against the target organization, or
// platform-wide when orgID is nil. One row's failure never aborts the
// batch; a batch where nothing imported returns ErrNoImportableRows
// alongside the detailed result.
func (s *ImportService) BulkImport(ctx context.Context, orgID *bson.ObjectID, rows []ImportRow) (*ImportResult, error) {
	res := &ImportResult{BatchID: newBatchID()}
	if len(rows) == 0 {
		return res, ErrNoImportableRows
	}

	// Up-front capacity clamp: rows beyond the free slots, in input
	// order, are rejected without being attempted.
	importable := rows
	if orgID != nil {
		available, err := s.Guard.CheckCapacity(ctx, *orgID, 0)
		if err != nil && !errors.Is(err, ErrLicenseLimit) {
			return nil, err
		}
		if len(rows) > available {
			for i := available; i < len(rows); i++ {
				res.Failed++
				res.Errors = append(res.Errors, fmt.Sprintf(
					"row %d (%s): rejected, exceeds license user limit", i+1, rows[i].Email))
			}
			importable = rows[:available]
		}
	}

	for i, row := range importable {
		if err := s.importRow(ctx, orgID, i, row, res); err != nil {
			return nil, err
		}
	}

	logger.L().Info("bulk import finished",
		zap.String("batch_id", res.BatchID),
		zap.Int("success", res.Success),
		zap.Int("duplicates", res.Duplicates),
		zap.Int("failed", res.Failed),
		zap.Int("emails_sent", res.EmailsSent))

	if res.Success == 0 {
		return res, ErrNoImportableRows
	}
	return res, nil
}

func (s *ImportService) importRow(ctx context.Context, orgID *bson.ObjectID, i int, row ImportRow, res *ImportResult) error {
	rowRef := fmt.Sprintf("row %d (%s)", i+1, row.Email)

	email := utils.NormalizeEmail(row.Email)
	if !utils.IsValidEmail(email) {
		res.Failed++
		res.Errors = append(res.Errors, rowRef+": invalid email")
		return nil
	}

	if _, err := s.Users.FindByEmail(ctx, email); err == nil {
		res.Duplicates++
		res.Errors = append(res.Errors, rowRef+": already exists")
		return nil
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	// Unknown or missing roles fall back to the lowest privilege.
	role := models.Role(row.Role)
	if !role.Valid() || role == models.RoleSuperAdmin {
		role = models.RoleEmployee
	}

	pw, err := utils.GenerateTempPassword()
	if err != nil {
		return err
	}
	hash, err := utils.HashPassword(pw)
	if err != nil {
		return err
	}

	now := s.Now()
	user := &models.User{
		ID:             bson.NewObjectID(),
		Email:          email,
		Name:           row.Name,
		PasswordHash:   hash,
		Role:           role,
		Level:          role.Level(),
		Designation:    row.Designation,
		OrganizationID: orgID,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err = s.Txn.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.Users.Insert(ctx, user); err != nil {
			return err
		}
		if orgID != nil {
			return s.Guard.Reserve(ctx, *orgID, 1, 1)
		}
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrDuplicate):
			res.Duplicates++
			res.Errors = append(res.Errors, rowRef+": already exists")
		case errors.Is(err, ErrLicenseLimit):
			// A concurrent batch took the slot between the clamp and now.
			res.Failed++
			res.Errors = append(res.Errors, rowRef+": rejected, exceeds license user limit")
		default:
			res.Failed++
			res.Errors = append(res.Errors, rowRef+": "+err.Error())
		}
		return nil
	}

	res.Success++

	// Activation token is best effort; the seat stays provisioned even
	// if the mail bounces.
	if _, emailed, err := s.Tokens.Issue(ctx, user, true); err != nil {
		res.Errors = append(res.Errors, rowRef+": created, but activation token failed")
	} else if emailed {
		res.EmailsSent++
	} else {
		res.Errors = append(res.Errors, rowRef+": created, but activation email failed")
	}
	return nil
}
