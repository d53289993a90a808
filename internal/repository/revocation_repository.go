package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/school-management/internal/database"
)

// RevocationRepo is the access-token half of the revocation ledger.  A row
// for a jti is definitive proof that the access token is revoked.
type RevocationRepo struct{ DB database.DBTX }

func NewRevocationRepo(db database.DBTX) *RevocationRepo { return &RevocationRepo{DB: db} }

// RecordRevokedAccess appends a revocation.  Recording the same jti twice is
// not an error.
func (r *RevocationRepo) RecordRevokedAccess(ctx context.Context, jti, reason string, exp time.Time, actorID uint64, at time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO revoked_access_tokens (jti, reason, expires_at, created_at, updated_at, created_by_id)
		 VALUES (?,?,?,?,?,?)`,
		jti, reason, exp, at, at, actorArg(actorID))
	if err != nil {
		if database.IsDuplicateKey(err) {
			return nil
		}
		return fmt.Errorf("record revoked access token: %w", err)
	}
	return nil
}

// IsAccessRevoked reports whether a revocation row exists for jti.
func (r *RevocationRepo) IsAccessRevoked(ctx context.Context, jti string) (bool, error) {
	var one int
	err := r.DB.QueryRowContext(ctx,
		"SELECT 1 FROM revoked_access_tokens WHERE jti = ? LIMIT 1", jti).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("lookup revoked access token: %w", err)
	}
	return true, nil
}
