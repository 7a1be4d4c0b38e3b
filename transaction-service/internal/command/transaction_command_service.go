package command

import (
	"context"
	"log/slog"
	"time"

	"github.com/eaglebank/ledger/shared/apperr"
	"github.com/eaglebank/ledger/shared/cqrs"
	"github.com/eaglebank/ledger/shared/events"
	"github.com/eaglebank/ledger/shared/lock"
	"github.com/eaglebank/ledger/shared/models"
	"github.com/eaglebank/ledger/shared/utils"
)

// cancelWindow is a fixed 365 days, independent of leap years.
const cancelWindow = 365 * 24 * time.Hour

type UserFinder interface {
	FindByID(ctx context.Context, id int64) (*models.User, error)
}

type AccountFinder interface {
	FindByAccountNumber(ctx context.Context, accountNumber string) (*models.Account, error)
}

type TransactionStore interface {
	Create(ctx context.Context, txn *models.Transaction) error
	CreateAndApplyBalance(ctx context.Context, txn *models.Transaction, newBalance int64) error
	FindByTransactionID(ctx context.Context, transactionID string) (*models.Transaction, error)
	HasSuccessfulCancel(ctx context.Context, originalID string) (bool, error)
}

type TransactionViewCache interface {
	CacheTransactionView(ctx context.Context, view *models.TransactionView)
}

type EventPublisher interface {
	Publish(ctx context.Context, stream, eventType string, data any) error
}

// TransactionCommandService mutates account balances. UseBalance and
// CancelBalance run under the account-number lock; everything between the
// balance read and the balance write happens while it is held.
type TransactionCommandService struct {
	users        UserFinder
	accounts     AccountFinder
	transactions TransactionStore
	views        TransactionViewCache
	publisher    EventPublisher
	now          func() time.Time

	useBalance    func(context.Context, cqrs.UseBalanceCommand) (*models.TransactionOutcome, error)
	cancelBalance func(context.Context, cqrs.CancelBalanceCommand) (*models.TransactionOutcome, error)
}

func NewTransactionCommandService(
	guard *lock.Guard,
	users UserFinder,
	accounts AccountFinder,
	transactions TransactionStore,
	views TransactionViewCache,
	publisher EventPublisher,
) *TransactionCommandService {
	s := &TransactionCommandService{
		users:        users,
		accounts:     accounts,
		transactions: transactions,
		views:        views,
		publisher:    publisher,
		now:          func() time.Time { return time.Now().UTC() },
	}
	s.useBalance = lock.Wrap(guard, cqrs.UseBalanceLockKey, s.doUseBalance)
	s.cancelBalance = lock.Wrap(guard, cqrs.CancelBalanceLockKey, s.doCancelBalance)
	return s
}

func (s *TransactionCommandService) UseBalance(ctx context.Context, cmd cqrs.UseBalanceCommand) (*models.TransactionOutcome, error) {
	return s.useBalance(ctx, cmd)
}

func (s *TransactionCommandService) CancelBalance(ctx context.Context, cmd cqrs.CancelBalanceCommand) (*models.TransactionOutcome, error) {
	return s.cancelBalance(ctx, cmd)
}

func (s *TransactionCommandService) doUseBalance(ctx context.Context, cmd cqrs.UseBalanceCommand) (*models.TransactionOutcome, error) {
	if cmd.Amount <= 0 {
		return nil, apperr.New(apperr.CodeInvalidRequest, "amount must be positive")
	}

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

	txn := &models.Transaction{
		TransactionID: utils.GenerateTransactionID(),
		AccountID:     account.ID,
		AccountNumber: account.AccountNumber,
		Type:          models.TransactionTypeUse,
		Amount:        cmd.Amount,
		TransactedAt:  s.now(),
	}

	if cmd.Amount > account.Balance {
		txn.Result = models.TransactionResultFailure
		txn.BalanceSnapshot = account.Balance
		if err := s.transactions.Create(ctx, txn); err != nil {
			return nil, err
		}
		s.recorded(ctx, txn, events.TransactionFailed)
		return nil, apperr.ErrAmountExceedsBalance
	}

	newBalance := account.Balance - cmd.Amount
	txn.Result = models.TransactionResultSuccess
	txn.BalanceSnapshot = newBalance
	if err := s.transactions.CreateAndApplyBalance(ctx, txn, newBalance); err != nil {
		return nil, err
	}
	s.recorded(ctx, txn, events.TransactionUsed)
	s.balanceChanged(ctx, txn, -cmd.Amount)

	return models.NewTransactionOutcome(txn), nil
}

func (s *TransactionCommandService) doCancelBalance(ctx context.Context, cmd cqrs.CancelBalanceCommand) (*models.TransactionOutcome, error) {
	if cmd.Amount <= 0 {
		return nil, apperr.New(apperr.CodeInvalidRequest, "amount must be positive")
	}

	original, err := s.transactions.FindByTransactionID(ctx, cmd.TransactionID)
	if err != nil {
		return nil, err
	}
	account, err := s.accounts.FindByAccountNumber(ctx, cmd.AccountNumber)
	if err != nil {
		return nil, err
	}
	if original.AccountID != account.ID {
		return nil, apperr.ErrTransactionAccountMismatch
	}
	if original.Type != models.TransactionTypeUse || original.Result != models.TransactionResultSuccess {
		return nil, apperr.ErrTransactionNotCancellable
	}
	cancelled, err := s.transactions.HasSuccessfulCancel(ctx, original.TransactionID)
	if err != nil {
		return nil, err
	}
	if cancelled {
		return nil, apperr.ErrTransactionAlreadyCancelled
	}
	if cmd.Amount != original.Amount {
		return nil, apperr.ErrCancelMustBeFull
	}

	now := s.now()
	if now.Sub(original.TransactedAt) > cancelWindow {
		return nil, apperr.ErrTransactionTooOldToCancel
	}

	newBalance := account.Balance + cmd.Amount
	txn := &models.Transaction{
		TransactionID:         utils.GenerateTransactionID(),
		AccountID:             account.ID,
		AccountNumber:         account.AccountNumber,
		Type:                  models.TransactionTypeCancel,
		Result:                models.TransactionResultSuccess,
		Amount:                cmd.Amount,
		BalanceSnapshot:       newBalance,
		OriginalTransactionID: original.TransactionID,
		TransactedAt:          now,
	}
	if err := s.transactions.CreateAndApplyBalance(ctx, txn, newBalance); err != nil {
		return nil, err
	}
	s.recorded(ctx, txn, events.TransactionCancelled)
	s.balanceChanged(ctx, txn, cmd.Amount)

	return models.NewTransactionOutcome(txn), nil
}

// recorded refreshes the read model and announces a persisted transaction.
// Neither step can undo the write, so failures are only logged.
func (s *TransactionCommandService) recorded(ctx context.Context, txn *models.Transaction, eventType string) {
	s.views.CacheTransactionView(ctx, models.NewTransactionView(txn))

	if err := s.publisher.Publish(ctx, events.TransactionEventsStream, eventType, events.TransactionEvent{
		TransactionID:         txn.TransactionID,
		AccountNumber:         txn.AccountNumber,
		Type:                  string(txn.Type),
		Result:                string(txn.Result),
		Amount:                txn.Amount,
		BalanceSnapshot:       txn.BalanceSnapshot,
		OriginalTransactionID: txn.OriginalTransactionID,
	}); err != nil {
		slog.Warn("failed to publish event", "component", "transaction", "type", eventType, "transaction_id", txn.TransactionID, "err", err)
	}
}

func (s *TransactionCommandService) balanceChanged(ctx context.Context, txn *models.Transaction, change int64) {
	if err := s.publisher.Publish(ctx, events.TransactionEventsStream, events.BalanceUpdated, events.BalanceUpdatedEvent{
		AccountNumber: txn.AccountNumber,
		NewBalance:    txn.BalanceSnapshot,
		Change:        change,
		TransactionID: txn.TransactionID,
	}); err != nil {
		slog.Warn("failed to publish event", "component", "transaction", "type", events.BalanceUpdated, "transaction_id", txn.TransactionID, "err", err)
	}
}
