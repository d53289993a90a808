package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/school-management/internal/database"
	"github.com/iliyamo/school-management/internal/model"
)

// AccountRepo is the credential store over the `accounts` table.
type AccountRepo struct{ DB database.DBTX }

func NewAccountRepo(db database.DBTX) *AccountRepo { return &AccountRepo{DB: db} }

// NewAccount carries the values written by Create.  PasswordHash must already
// be a bcrypt digest.
type NewAccount struct {
	Email        string
	PasswordHash string
	FullName     string
	Phone        *string
	RoleID       uint8
	Status       model.AccountStatus
	IsActive     bool
	ActorID      uint64
	At           time.Time
}

// NormalizeEmail lowercases and trims an address; applied at every read and write.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

const accountSelect = `SELECT a.id, a.email, a.password_hash, a.full_name, a.phone, a.role_id, r.name,
       a.account_status, a.is_active, a.last_login_at, a.created_at, a.updated_at
  FROM accounts a
  JOIN roles r ON r.id = a.role_id`

// Create inserts an account and returns its ID.
func (r *AccountRepo) Create(ctx context.Context, a NewAccount) (uint64, error) {
	var phone any
	if a.Phone != nil {
		phone = *a.Phone
	}
	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO accounts (email, password_hash, full_name, phone, role_id, account_status, is_active,
		                       created_at, updated_at, created_by_id, updated_by_id)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		NormalizeEmail(a.Email), a.PasswordHash, a.FullName, phone, a.RoleID, string(a.Status), a.IsActive,
		a.At, a.At, actorArg(a.ActorID), actorArg(a.ActorID))
	if err != nil {
		if database.IsDuplicateKey(err) {
			return 0, ErrDuplicateEmail
		}
		return 0, fmt.Errorf("insert account: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert account id: %w", err)
	}
	return uint64(id), nil
}

// FindActiveByEmail fetches an enabled account by normalized email.
func (r *AccountRepo) FindActiveByEmail(ctx context.Context, email string) (model.Account, error) {
	return r.scanOne(r.DB.QueryRowContext(ctx,
		accountSelect+` WHERE a.email = ? AND a.is_active = 1 LIMIT 1`, NormalizeEmail(email)))
}

// FindByID fetches an account by id regardless of its state.
func (r *AccountRepo) FindByID(ctx context.Context, id uint64) (model.Account, error) {
	return r.scanOne(r.DB.QueryRowContext(ctx, accountSelect+` WHERE a.id = ? LIMIT 1`, id))
}

// TouchLastLogin stamps last_login_at.
func (r *AccountRepo) TouchLastLogin(ctx context.Context, id uint64, at time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE accounts SET last_login_at = ?, updated_at = ?, updated_by_id = ? WHERE id = ?`,
		at, at, id, id)
	if err != nil {
		return fmt.Errorf("touch last login: %w", err)
	}
	return nil
}

// Activate moves a PENDING_ONBOARDING account to ACTIVE and enables it.  It
// reports false when no pending account with that id exists.
func (r *AccountRepo) Activate(ctx context.Context, id, actorID uint64, at time.Time) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE accounts SET account_status = ?, is_active = 1, updated_at = ?, updated_by_id = ?
		  WHERE id = ? AND account_status = ?`,
		string(model.StatusActive), at, actorArg(actorID), id, string(model.StatusPendingOnboarding))
	if err != nil {
		return false, fmt.Errorf("activate account: %w", err)
	}
	return affectedOne(res)
}

// SetActive flips the enabled flag.  It reports false when the account does
// not exist or already had the requested value.
func (r *AccountRepo) SetActive(ctx context.Context, id uint64, active bool, actorID uint64, at time.Time) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE accounts SET is_active = ?, updated_at = ?, updated_by_id = ? WHERE id = ? AND is_active <> ?`,
		active, at, actorArg(actorID), id, active)
	if err != nil {
		return false, fmt.Errorf("set account active: %w", err)
	}
	return affectedOne(res)
}

func (r *AccountRepo) scanOne(row *sql.Row) (model.Account, error) {
	var (
		a         model.Account
		phone     sql.NullString
		status    string
		lastLogin sql.NullTime
	)
	err := row.Scan(&a.ID, &a.Email, &a.PasswordHash, &a.FullName, &phone, &a.RoleID, &a.RoleName,
		&status, &a.IsActive, &lastLogin, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Account{}, ErrNotFound
		}
		return model.Account{}, fmt.Errorf("scan account: %w", err)
	}
	a.Status = model.AccountStatus(status)
	if phone.Valid {
		p := phone.String
		a.Phone = &p
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		a.LastLoginAt = &t
	}
	return a, nil
}

func affectedOne(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}
