package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/school-management/internal/database"
	"github.com/iliyamo/school-management/internal/model"
)

// TokenRepo is the refresh-token half of the revocation ledger.  One row per
// issued refresh token, keyed by its jti; rows are only ever flipped to
// revoked, never deleted.
type TokenRepo struct{ DB database.DBTX }

func NewTokenRepo(db database.DBTX) *TokenRepo { return &TokenRepo{DB: db} }

// StoreRefresh inserts a refresh token row.
func (r *TokenRepo) StoreRefresh(ctx context.Context, jti string, accountID uint64, exp time.Time, actorID uint64, at time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO refresh_tokens (jti, account_id, expires_at, revoked, created_at, updated_at, created_by_id, updated_by_id)
		 VALUES (?,?,?,0,?,?,?,?)`,
		jti, accountID, exp, at, at, actorArg(actorID), actorArg(actorID))
	if err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

// Get returns the row for jti or ErrNotFound.
func (r *TokenRepo) Get(ctx context.Context, jti string) (model.RefreshToken, error) {
	var t model.RefreshToken
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, jti, account_id, expires_at, revoked, created_at, updated_at
		   FROM refresh_tokens WHERE jti = ? LIMIT 1`, jti).
		Scan(&t.ID, &t.JTI, &t.AccountID, &t.ExpiresAt, &t.Revoked, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.RefreshToken{}, ErrNotFound
		}
		return model.RefreshToken{}, fmt.Errorf("get refresh token: %w", err)
	}
	return t, nil
}

// IsRefreshValid fails closed: a missing row is invalid, as is a revoked or
// expired one.
func (r *TokenRepo) IsRefreshValid(ctx context.Context, jti string, now time.Time) (bool, error) {
	t, err := r.Get(ctx, jti)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return t.Usable(now), nil
}

// MarkRefreshRevoked revokes a single row.  It is conditional on the row still
// being unrevoked, so it doubles as the per-jti serialization point for
// rotation: of two concurrent callers only one gets true.  Revoking an
// already-revoked row is a no-op.
func (r *TokenRepo) MarkRefreshRevoked(ctx context.Context, jti string, actorID uint64, at time.Time) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked = 1, updated_at = ?, updated_by_id = ? WHERE jti = ? AND revoked = 0",
		at, actorArg(actorID), jti)
	if err != nil {
		return false, fmt.Errorf("revoke refresh token: %w", err)
	}
	return affectedOne(res)
}

// RevokeAllForAccount revokes every active row of an account and returns how
// many rows changed.
func (r *TokenRepo) RevokeAllForAccount(ctx context.Context, accountID, actorID uint64, at time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked = 1, updated_at = ?, updated_by_id = ? WHERE account_id = ? AND revoked = 0",
		at, actorArg(actorID), accountID)
	if err != nil {
		return 0, fmt.Errorf("revoke account refresh tokens: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
