package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/eaglebank/ledger/account-service/internal/repository"
	"github.com/eaglebank/ledger/shared/apperr"
	"github.com/eaglebank/ledger/shared/cqrs"
	"github.com/eaglebank/ledger/shared/events"
	"github.com/eaglebank/ledger/shared/lock"
	"github.com/eaglebank/ledger/shared/models"
	"github.com/eaglebank/ledger/shared/utils"
)

const maxAccountNumberAttempts = 3

type UserFinder interface {
	FindByID(ctx context.Context, id int64) (*models.User, error)
}

type AccountStore interface {
	Create(ctx context.Context, account *models.Account) error
	FindByAccountNumber(ctx context.Context, accountNumber string) (*models.Account, error)
	FindMostRecentlyCreated(ctx context.Context) (*models.Account, error)
	CountByUserID(ctx context.Context, userID int64) (int, error)
	Close(ctx context.Context, accountNumber string, at time.Time) error
}

type AccountViewCache interface {
	CacheAccountView(ctx context.Context, view *models.AccountView)
	EvictAccountView(ctx context.Context, accountNumber string)
}

type EventPublisher interface {
	Publish(ctx context.Context, stream, eventType string, data any) error
}

// AccountCommandService writes account state and keeps the read model in sync.
type AccountCommandService struct {
	users     UserFinder
	accounts  AccountStore
	views     AccountViewCache
	publisher EventPublisher
	now       func() time.Time

	closeAccount func(context.Context, cqrs.CloseAccountCommand) (*models.AccountView, error)
}

func NewAccountCommandService(
	guard *lock.Guard,
	users UserFinder,
	accounts AccountStore,
	views AccountViewCache,
	publisher EventPublisher,
) *AccountCommandService {
	s := &AccountCommandService{
		users:     users,
		accounts:  accounts,
		views:     views,
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },
	}
	s.closeAccount = lock.Wrap(guard, cqrs.CloseAccountLockKey, s.doCloseAccount)
	return s
}

// CreateAccount opens an account numbered one past the most recently
// created account. A number claimed concurrently by another instance is
// retried with a freshly computed number.
func (s *AccountCommandService) CreateAccount(ctx context.Context, cmd cqrs.CreateAccountCommand) (*models.AccountView, error) {
	if cmd.InitialBalance < 0 {
		return nil, apperr.New(apperr.CodeInvalidRequest, "initial balance must not be negative")
	}

	user, err := s.users.FindByID(ctx, cmd.UserID)
	if err != nil {
		return nil, err
	}
	count, err := s.accounts.CountByUserID(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if count >= models.MaxAccountsPerUser {
		return nil, apperr.ErrMaxAccountsPerUser
	}

	for attempt := 1; attempt <= maxAccountNumberAttempts; attempt++ {
		number, err := s.nextAccountNumber(ctx)
		if err != nil {
			return nil, err
		}

		now := s.now()
		account := &models.Account{
			UserID:        user.ID,
			AccountNumber: number,
			Balance:       cmd.InitialBalance,
			Status:        models.AccountStatusActive,
			RegisteredAt:  now,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		err = s.accounts.Create(ctx, account)
		if errors.Is(err, repository.ErrAccountNumberTaken) {
			slog.Warn("account number taken; retrying", "component", "account", "account_number", number, "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, err
		}

		view := models.NewAccountView(account)
		s.views.CacheAccountView(ctx, view)
		s.publish(ctx, events.AccountCreated, events.AccountCreatedEvent{
			AccountNumber:  account.AccountNumber,
			UserID:         account.UserID,
			InitialBalance: account.Balance,
		})
		return view, nil
	}

	return nil, fmt.Errorf("failed to allocate an account number after %d attempts", maxAccountNumberAttempts)
}

func (s *AccountCommandService) nextAccountNumber(ctx context.Context) (string, error) {
	last, err := s.accounts.FindMostRecentlyCreated(ctx)
	if err != nil {
		return "", err
	}
	if last == nil {
		return utils.FirstAccountNumber, nil
	}
	return utils.NextAccountNumber(last.AccountNumber)
}

// CloseAccount runs under the account-number lock so it cannot interleave
// with a balance mutation between the zero-balance check and the close.
func (s *AccountCommandService) CloseAccount(ctx context.Context, cmd cqrs.CloseAccountCommand) (*models.AccountView, error) {
	return s.closeAccount(ctx, cmd)
}

func (s *AccountCommandService) doCloseAccount(ctx context.Context, cmd cqrs.CloseAccountCommand) (*models.AccountView, error) {
	user, err := s.users.FindByID(ctx, cmd.UserID)
	if err != nil {
		return nil, err
	}
	account, err := s.accounts.FindByAccountNumber(ctx, cmd.AccountNumber)
	if err != nil {
		return nil, err
	}
	if account.UserID != user.ID {
		return nil, apperr.ErrUserAccountMismatch
	}
	if account.IsClosed() {
		return nil, apperr.ErrAccountAlreadyClosed
	}
	if account.Balance > 0 {
		return nil, apperr.ErrBalanceNotEmpty
	}

	now := s.now()
	if err := s.accounts.Close(ctx, account.AccountNumber, now); err != nil {
		return nil, err
	}
	account.Status = models.AccountStatusClosed
	account.UnregisteredAt = &now
	account.UpdatedAt = now

	view := models.NewAccountView(account)
	s.views.CacheAccountView(ctx, view)
	s.publish(ctx, events.AccountClosed, events.AccountClosedEvent{
		AccountNumber: account.AccountNumber,
		UserID:        account.UserID,
	})
	return view, nil
}

// HandleTransactionEvent refreshes the account read model whenever the
// transaction-service reports a balance change. The balance is re-read from
// PostgreSQL, so redelivered or reordered events cannot leave a stale value.
func (s *AccountCommandService) HandleTransactionEvent(ctx context.Context, event events.Event) error {
	if event.Type != events.BalanceUpdated {
		return nil
	}

	var data events.BalanceUpdatedEvent
	if err := events.Decode(event, &data); err != nil {
		return err
	}

	account, err := s.accounts.FindByAccountNumber(ctx, data.AccountNumber)
	if err != nil {
		// Drop the cached balance so reads fall back to PostgreSQL until the
		// redelivered event succeeds.
		s.views.EvictAccountView(ctx, data.AccountNumber)
		return fmt.Errorf("failed to refresh account %s: %w", data.AccountNumber, err)
	}
	s.views.CacheAccountView(ctx, models.NewAccountView(account))

	slog.Info("read model refreshed", "component", "account", "account_number", account.AccountNumber, "balance", account.Balance, "transaction_id", data.TransactionID)
	return nil
}

func (s *AccountCommandService) publish(ctx context.Context, eventType string, data any) {
	if err := s.publisher.Publish(ctx, events.AccountEventsStream, eventType, data); err != nil {
		slog.Warn("failed to publish event", "component", "account", "type", eventType, "err", err)
	}
}
