package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/school-management/internal/database"
	"github.com/iliyamo/school-management/internal/logging"
	"github.com/iliyamo/school-management/internal/model"
	"github.com/iliyamo/school-management/internal/queue"
	"github.com/iliyamo/school-management/internal/repository"
)

// Onboarding performs the administrative account transitions.
type Onboarding struct {
	db     *sql.DB
	events EventPublisher
	log    logging.Logger
	now    func() time.Time
}

func NewOnboarding(db *sql.DB, events EventPublisher, log logging.Logger) *Onboarding {
	if events == nil {
		events = queue.Nop{}
	}
	return &Onboarding{db: db, events: events, log: log, now: time.Now}
}

// Activate moves a PENDING_ONBOARDING account to ACTIVE.  It happens once;
// a second call fails with ErrAlreadyOnboarded.
func (o *Onboarding) Activate(ctx context.Context, accountID, actorID uint64) (model.Account, error) {
	now := o.now().UTC()
	var acc model.Account
	err := database.WithTx(ctx, o.db, nil, func(ctx context.Context, tx database.DBTX) error {
		accounts := repository.NewAccountRepo(tx)
		if _, err := findAccount(ctx, accounts, accountID); err != nil {
			return err
		}
		ok, err := accounts.Activate(ctx, accountID, actorID, now)
		if err != nil {
			return err
		}
		if !ok {
			return ErrAlreadyOnboarded
		}
		acc, err = accounts.FindByID(ctx, accountID)
		return err
	})
	if err != nil {
		return model.Account{}, err
	}

	o.log.Info(ctx, "account activated", "account_id", accountID, "actor_id", actorID)
	_ = o.events.Publish(ctx, queue.AuthEvent{
		Type: queue.EventAccountActivated, AccountID: accountID, Email: acc.Email, Role: acc.RoleName,
		ActorID: actorID, At: now,
	})
	return acc, nil
}

// Deactivate disables an account and revokes every refresh token it holds.
// Access tokens already issued stay valid until they expire, but the
// identity middleware reports the account as disabled.  It returns how many
// refresh rows were revoked.
func (o *Onboarding) Deactivate(ctx context.Context, accountID, actorID uint64) (int64, error) {
	if accountID == actorID {
		return 0, ErrSelfDeactivation
	}
	now := o.now().UTC()
	var n int64
	err := database.WithTx(ctx, o.db, nil, func(ctx context.Context, tx database.DBTX) error {
		accounts := repository.NewAccountRepo(tx)
		if _, err := findAccount(ctx, accounts, accountID); err != nil {
			return err
		}
		// Already disabled is fine; outstanding rows are still swept.
		if _, err := accounts.SetActive(ctx, accountID, false, actorID, now); err != nil {
			return err
		}
		var err error
		n, err = repository.NewTokenRepo(tx).RevokeAllForAccount(ctx, accountID, actorID, now)
		return err
	})
	if err != nil {
		return 0, err
	}

	o.log.Info(ctx, "account deactivated", "account_id", accountID, "actor_id", actorID, "refresh_revoked", n)
	_ = o.events.Publish(ctx, queue.AuthEvent{
		Type: queue.EventAccountDisabled, AccountID: accountID, ActorID: actorID, Revoked: n, At: now,
	})
	return n, nil
}

func findAccount(ctx context.Context, accounts *repository.AccountRepo, id uint64) (model.Account, error) {
	acc, err := accounts.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Account{}, ErrAccountNotFound
	}
	return acc, err
}
