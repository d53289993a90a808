// Package service holds the session lifecycle: registration, login, refresh
// rotation, logout and account onboarding.  It is the only layer that
// mutates the credential store and the revocation ledger together, and it
// does so inside one database transaction per operation.
package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/school-management/internal/database"
	"github.com/iliyamo/school-management/internal/logging"
	"github.com/iliyamo/school-management/internal/model"
	"github.com/iliyamo/school-management/internal/queue"
	"github.com/iliyamo/school-management/internal/repository"
	"github.com/iliyamo/school-management/internal/token"
	"github.com/iliyamo/school-management/internal/utils"
)

// EventPublisher receives committed state changes.  Publishing is best
// effort: a failure never undoes the operation.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.AuthEvent) error
}

// TokenPair is what a client receives after register, login or refresh.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	ExpiresIn        int64     `json:"expires_in"` // access token lifetime in seconds
	AccessExpiresAt  time.Time `json:"-"`
	RefreshExpiresAt time.Time `json:"-"`
	AccessID         string    `json:"-"`
	RefreshID        string    `json:"-"`
}

// AuthResult pairs the account with freshly issued tokens.
type AuthResult struct {
	Account model.Account
	Tokens  TokenPair
}

// LogoutResult reports what a logout actually revoked.
type LogoutResult struct {
	Revoked        bool // access token recorded in the ledger
	RefreshRevoked bool // presented refresh token revoked too
}

// VerifyResult is a decoded access token together with its enabled account.
type VerifyResult struct {
	Claims  *token.Claims
	Account model.Account
}

// SessionConfig carries the policy knobs of the session manager.
type SessionConfig struct {
	SelfRegisterRoles []string
	PhoneRegion       string
}

// SessionManager orchestrates the session lifecycle.
type SessionManager struct {
	db     *sql.DB
	codec  *token.Codec
	hasher *utils.PasswordHasher
	events EventPublisher
	log    logging.Logger

	accounts *repository.AccountRepo
	roles    *repository.RoleRepo
	tokens   *repository.TokenRepo

	selfRoles   map[string]struct{}
	phoneRegion string
	now         func() time.Time
}

func NewSessionManager(db *sql.DB, codec *token.Codec, hasher *utils.PasswordHasher, events EventPublisher, log logging.Logger, cfg SessionConfig) *SessionManager {
	if events == nil {
		events = queue.Nop{}
	}
	roles := make(map[string]struct{}, len(cfg.SelfRegisterRoles))
	for _, r := range cfg.SelfRegisterRoles {
		roles[strings.ToUpper(strings.TrimSpace(r))] = struct{}{}
	}
	return &SessionManager{
		db:          db,
		codec:       codec,
		hasher:      hasher,
		events:      events,
		log:         log,
		accounts:    repository.NewAccountRepo(db),
		roles:       repository.NewRoleRepo(db),
		tokens:      repository.NewTokenRepo(db),
		selfRoles:   roles,
		phoneRegion: cfg.PhoneRegion,
		now:         time.Now,
	}
}

// Register creates a PENDING_ONBOARDING account and signs its first session.
func (m *SessionManager) Register(ctx context.Context, in RegisterInput) (AuthResult, error) {
	in.Email = repository.NormalizeEmail(in.Email)
	if err := in.Validate(); err != nil {
		return AuthResult{}, err
	}
	role, err := m.resolveSelfRole(ctx, in.UserType)
	if err != nil {
		return AuthResult{}, err
	}
	phone, err := normalizePhone(in.Phone, m.phoneRegion)
	if err != nil {
		return AuthResult{}, err
	}
	hash, err := m.hasher.Hash(in.Password)
	if err != nil {
		return AuthResult{}, fmt.Errorf("hash password: %w", err)
	}

	now := m.now().UTC()
	var res AuthResult
	err = database.WithTx(ctx, m.db, nil, func(ctx context.Context, tx database.DBTX) error {
		accounts := repository.NewAccountRepo(tx)
		id, err := accounts.Create(ctx, repository.NewAccount{
			Email:        in.Email,
			PasswordHash: hash,
			FullName:     strings.TrimSpace(in.FullName),
			Phone:        phone,
			RoleID:       role.ID,
			Status:       model.StatusPendingOnboarding,
			IsActive:     true,
			At:           now,
		})
		if err != nil {
			return err
		}
		pair, err := m.issueAndStore(ctx, tx, id, now)
		if err != nil {
			return err
		}
		acc, err := accounts.FindByID(ctx, id)
		if err != nil {
			return fmt.Errorf("reload account: %w", err)
		}
		res = AuthResult{Account: acc, Tokens: pair}
		return nil
	})
	if err != nil {
		return AuthResult{}, err
	}

	m.log.Info(ctx, "account registered", "account_id", res.Account.ID, "role", res.Account.RoleName)
	m.publish(ctx, queue.AuthEvent{
		Type:      queue.EventAccountRegistered,
		AccountID: res.Account.ID,
		Email:     res.Account.Email,
		Role:      res.Account.RoleName,
		TokenID:   res.Tokens.RefreshID,
		At:        now,
	})
	return res, nil
}

// Login authenticates by email and password.  Unknown email and wrong
// password fail identically.
func (m *SessionManager) Login(ctx context.Context, in LoginInput) (AuthResult, error) {
	in.Email = repository.NormalizeEmail(in.Email)
	if err := in.Validate(); err != nil {
		return AuthResult{}, err
	}
	acc, err := m.accounts.FindActiveByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			m.hasher.VerifyDummy(in.Password)
			return AuthResult{}, ErrInvalidCredentials
		}
		return AuthResult{}, fmt.Errorf("load account: %w", err)
	}
	if !m.hasher.Verify(acc.PasswordHash, in.Password) {
		return AuthResult{}, ErrInvalidCredentials
	}

	now := m.now().UTC()
	var pair TokenPair
	err = database.WithTx(ctx, m.db, nil, func(ctx context.Context, tx database.DBTX) error {
		var err error
		if pair, err = m.issueAndStore(ctx, tx, acc.ID, now); err != nil {
			return err
		}
		return repository.NewAccountRepo(tx).TouchLastLogin(ctx, acc.ID, now)
	})
	if err != nil {
		return AuthResult{}, err
	}
	acc.LastLoginAt = &now

	m.log.Info(ctx, "login succeeded", "account_id", acc.ID)
	m.publish(ctx, queue.AuthEvent{
		Type:      queue.EventSessionLogin,
		AccountID: acc.ID,
		Email:     acc.Email,
		Role:      acc.RoleName,
		TokenID:   pair.RefreshID,
		At:        now,
	})
	return AuthResult{Account: acc, Tokens: pair}, nil
}

// Refresh rotates a refresh token: the presented row is revoked and a new
// pair is issued in the same transaction.  Of two concurrent calls with the
// same token exactly one succeeds.
func (m *SessionManager) Refresh(ctx context.Context, raw string) (TokenPair, error) {
	claims, err := m.codec.Decode(ctx, raw)
	if err != nil {
		return TokenPair{}, err
	}
	if claims.Type != token.TypeRefresh {
		return TokenPair{}, ErrInvalidTokenType
	}
	accountID, err := claims.AccountID()
	if err != nil {
		return TokenPair{}, err
	}

	now := m.now().UTC()
	var pair TokenPair
	err = database.WithTx(ctx, m.db, nil, func(ctx context.Context, tx database.DBTX) error {
		tokens := repository.NewTokenRepo(tx)
		row, err := tokens.Get(ctx, claims.ID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrRefreshRevoked
			}
			return err
		}
		if row.AccountID != accountID || !row.Usable(now) {
			return ErrRefreshRevoked
		}
		changed, err := tokens.MarkRefreshRevoked(ctx, claims.ID, accountID, now)
		if err != nil {
			return err
		}
		if !changed {
			return ErrRefreshRevoked
		}

		acc, err := repository.NewAccountRepo(tx).FindByID(ctx, accountID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrRefreshRevoked
			}
			return err
		}
		if !acc.IsActive {
			return ErrRefreshRevoked
		}

		pair, err = m.issueAndStore(ctx, tx, accountID, now)
		return err
	})
	if err != nil {
		return TokenPair{}, err
	}

	m.log.Debug(ctx, "refresh rotated", "account_id", accountID, "old_jti", claims.ID, "new_jti", pair.RefreshID)
	m.publish(ctx, queue.AuthEvent{
		Type:      queue.EventSessionRefresh,
		AccountID: accountID,
		TokenID:   claims.ID,
		At:        now,
	})
	return pair, nil
}

// Logout revokes the presented access token.  A token that no longer decodes
// needs no revocation and yields a zero result.  When rawRefresh is a refresh
// token of the same account its row is revoked in the same transaction.
func (m *SessionManager) Logout(ctx context.Context, rawAccess, rawRefresh string) (LogoutResult, error) {
	claims, err := m.codec.Decode(ctx, rawAccess)
	if err != nil {
		if token.IsRejection(err) {
			return LogoutResult{}, nil
		}
		return LogoutResult{}, err
	}
	if claims.Type != token.TypeAccess {
		return LogoutResult{}, nil
	}
	accountID, err := claims.AccountID()
	if err != nil {
		return LogoutResult{}, nil
	}

	refreshJTI := m.ownedRefreshID(ctx, rawRefresh, accountID)

	now := m.now().UTC()
	var res LogoutResult
	err = database.WithTx(ctx, m.db, nil, func(ctx context.Context, tx database.DBTX) error {
		err := repository.NewRevocationRepo(tx).RecordRevokedAccess(ctx,
			claims.ID, model.ReasonLogout, claims.ExpiresAtTime(), accountID, now)
		if err != nil {
			return err
		}
		res.Revoked = true
		if refreshJTI == "" {
			return nil
		}
		res.RefreshRevoked, err = repository.NewTokenRepo(tx).MarkRefreshRevoked(ctx, refreshJTI, accountID, now)
		return err
	})
	if err != nil {
		return LogoutResult{}, err
	}

	m.log.Info(ctx, "logout", "account_id", accountID, "refresh_revoked", res.RefreshRevoked)
	m.publish(ctx, queue.AuthEvent{
		Type:      queue.EventSessionLogout,
		AccountID: accountID,
		TokenID:   claims.ID,
		At:        now,
	})
	return res, nil
}

// LogoutAll revokes every outstanding refresh row of accountID and, when it
// belongs to the same account, the current access token.  All or nothing.
func (m *SessionManager) LogoutAll(ctx context.Context, accountID uint64, rawAccess string) (int64, error) {
	if accountID == 0 {
		return 0, ErrAccountNotFound
	}
	var current *token.Claims
	if rawAccess != "" {
		c, err := m.codec.Decode(ctx, rawAccess)
		switch {
		case err == nil:
			if id, idErr := c.AccountID(); idErr == nil && id == accountID && c.Type == token.TypeAccess {
				current = c
			}
		case token.IsRejection(err):
		default:
			return 0, err
		}
	}

	now := m.now().UTC()
	var n int64
	err := database.WithTx(ctx, m.db, nil, func(ctx context.Context, tx database.DBTX) error {
		var err error
		if n, err = repository.NewTokenRepo(tx).RevokeAllForAccount(ctx, accountID, accountID, now); err != nil {
			return err
		}
		if current == nil {
			return nil
		}
		return repository.NewRevocationRepo(tx).RecordRevokedAccess(ctx,
			current.ID, model.ReasonLogoutAll, current.ExpiresAtTime(), accountID, now)
	})
	if err != nil {
		return 0, err
	}

	m.log.Info(ctx, "logout all", "account_id", accountID, "refresh_revoked", n)
	ev := queue.AuthEvent{Type: queue.EventSessionLogoutAll, AccountID: accountID, Revoked: n, At: now}
	if current != nil {
		ev.TokenID = current.ID
	}
	m.publish(ctx, ev)
	return n, nil
}

// Verify decodes an access token and loads its account, which must still
// exist and be enabled.
func (m *SessionManager) Verify(ctx context.Context, rawAccess string) (VerifyResult, error) {
	claims, err := m.codec.Decode(ctx, rawAccess)
	if err != nil {
		return VerifyResult{}, err
	}
	if claims.Type != token.TypeAccess {
		return VerifyResult{}, ErrInvalidTokenType
	}
	accountID, err := claims.AccountID()
	if err != nil {
		return VerifyResult{}, err
	}
	acc, err := m.accounts.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return VerifyResult{}, ErrAccountNotFound
		}
		return VerifyResult{}, fmt.Errorf("load account: %w", err)
	}
	if !acc.IsActive {
		return VerifyResult{}, ErrAccountNotFound
	}
	return VerifyResult{Claims: claims, Account: acc}, nil
}

// RegistrableRoles lists the roles a client may pick at registration.
func (m *SessionManager) RegistrableRoles(ctx context.Context) ([]model.Role, error) {
	all, err := m.roles.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.Role, 0, len(all))
	for _, r := range all {
		if _, ok := m.selfRoles[r.Name]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *SessionManager) resolveSelfRole(ctx context.Context, userType string) (model.Role, error) {
	name := strings.ToUpper(strings.TrimSpace(userType))
	if _, ok := m.selfRoles[name]; !ok {
		return model.Role{}, ErrInvalidRole
	}
	role, err := m.roles.FindByName(ctx, name)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Role{}, ErrInvalidRole
		}
		return model.Role{}, fmt.Errorf("resolve role: %w", err)
	}
	return role, nil
}

// issueAndStore signs a new pair and persists the refresh row through tx.
func (m *SessionManager) issueAndStore(ctx context.Context, tx database.DBTX, accountID uint64, now time.Time) (TokenPair, error) {
	access, err := m.codec.IssueAccess(accountID)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := m.codec.IssueRefresh(accountID)
	if err != nil {
		return TokenPair{}, err
	}
	if err := repository.NewTokenRepo(tx).StoreRefresh(ctx, refresh.ID, accountID, refresh.ExpiresAt, accountID, now); err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access.Token,
		RefreshToken:     refresh.Token,
		TokenType:        "Bearer",
		ExpiresIn:        int64(token.AccessTTL / time.Second),
		AccessExpiresAt:  access.ExpiresAt,
		RefreshExpiresAt: refresh.ExpiresAt,
		AccessID:         access.ID,
		RefreshID:        refresh.ID,
	}, nil
}

// ownedRefreshID returns the jti of raw when it is a refresh token of
// accountID, and "" otherwise.
func (m *SessionManager) ownedRefreshID(ctx context.Context, raw string, accountID uint64) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	c, err := m.codec.Decode(ctx, raw)
	if err != nil || c.Type != token.TypeRefresh {
		return ""
	}
	if id, err := c.AccountID(); err != nil || id != accountID {
		return ""
	}
	return c.ID
}

func (m *SessionManager) publish(ctx context.Context, ev queue.AuthEvent) {
	_ = m.events.Publish(ctx, ev)
}
