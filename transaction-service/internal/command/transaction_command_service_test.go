package command

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/eaglebank/ledger/shared/apperr"
	"github.com/eaglebank/ledger/shared/cqrs"
	"github.com/eaglebank/ledger/shared/lock"
	"github.com/eaglebank/ledger/shared/models"
	sharedredis "github.com/eaglebank/ledger/shared/redis"
	goredis "github.com/redis/go-redis/v9"
)

var fixedNow = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

// ledger is an in-memory stand-in for the users, accounts and transactions
// tables. Reads return copies so a caller only sees a balance change after
// it has been written back.
type ledger struct {
	mu           sync.Mutex
	users        map[int64]*models.User
	accounts     map[string]*models.Account
	transactions []*models.Transaction
	readDelay    time.Duration
	createErr    error
}

func newLedger() *ledger {
	return &ledger{
		users:    map[int64]*models.User{},
		accounts: map[string]*models.Account{},
	}
}

func (l *ledger) addUser(id int64) {
	l.users[id] = &models.User{ID: id, Name: "user"}
}

func (l *ledger) addAccount(id, userID int64, number string, balance int64) {
	l.accounts[number] = &models.Account{
		ID: id, UserID: userID, AccountNumber: number, Balance: balance, Status: models.AccountStatusActive,
	}
}

func (l *ledger) addTransaction(txn *models.Transaction) {
	l.transactions = append(l.transactions, txn)
}

func (l *ledger) balance(number string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.accounts[number].Balance
}

func (l *ledger) recorded() []*models.Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*models.Transaction(nil), l.transactions...)
}

func (l *ledger) FindByID(_ context.Context, id int64) (*models.User, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	u, ok := l.users[id]
	if !ok {
		return nil, apperr.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (l *ledger) FindByAccountNumber(_ context.Context, number string) (*models.Account, error) {
	l.mu.Lock()
	a, ok := l.accounts[number]
	var cp models.Account
	if ok {
		cp = *a
	}
	l.mu.Unlock()
	if !ok {
		return nil, apperr.ErrAccountNotFound
	}
	if l.readDelay > 0 {
		time.Sleep(l.readDelay)
	}
	return &cp, nil
}

func (l *ledger) Create(_ context.Context, txn *models.Transaction) error {
	if l.createErr != nil {
		return l.createErr
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := *txn
	l.transactions = append(l.transactions, &cp)
	return nil
}

func (l *ledger) CreateAndApplyBalance(_ context.Context, txn *models.Transaction, newBalance int64) error {
	if l.createErr != nil {
		return l.createErr
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, a := range l.accounts {
		if a.ID == txn.AccountID {
			a.Balance = newBalance
		}
	}
	cp := *txn
	l.transactions = append(l.transactions, &cp)
	return nil
}

func (l *ledger) FindByTransactionID(_ context.Context, id string) (*models.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, t := range l.transactions {
		if t.TransactionID == id {
			cp := *t
			return &cp, nil
		}
	}
	return nil, apperr.ErrTransactionNotFound
}

func (l *ledger) HasSuccessfulCancel(_ context.Context, originalID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, t := range l.transactions {
		if t.Type == models.TransactionTypeCancel && t.Result == models.TransactionResultSuccess && t.OriginalTransactionID == originalID {
			return true, nil
		}
	}
	return false, nil
}

type viewRecorder struct {
	mu    sync.Mutex
	views []*models.TransactionView
}

func (v *viewRecorder) CacheTransactionView(_ context.Context, view *models.TransactionView) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.views = append(v.views, view)
}

type publishedEvent struct {
	stream    string
	eventType string
	data      any
}

type eventRecorder struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (e *eventRecorder) Publish(_ context.Context, stream, eventType string, data any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, publishedEvent{stream: stream, eventType: eventType, data: data})
	return e.err
}

func (e *eventRecorder) types() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.events))
	for i, ev := range e.events {
		out[i] = ev.eventType
	}
	return out
}

type fixture struct {
	svc    *TransactionCommandService
	ledger *ledger
	views  *viewRecorder
	events *eventRecorder
	redis  *miniredis.Miniredis
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	guard := lock.NewGuard(
		sharedredis.NewAccountLock(client, sharedredis.DefaultLockKeyPrefix, sharedredis.DefaultLockTTL),
		lock.Options{RetryInterval: 5 * time.Millisecond, MaxWait: 5 * time.Second},
	)

	l := newLedger()
	l.addUser(12)
	l.addUser(13)
	l.addAccount(7, 12, "1000000012", 10000)
	l.addAccount(8, 13, "1000000013", 100)

	views := &viewRecorder{}
	events := &eventRecorder{}
	svc := NewTransactionCommandService(guard, l, l, l, views, events)
	svc.now = func() time.Time { return fixedNow }

	return &fixture{svc: svc, ledger: l, views: views, events: events, redis: mr}
}

func TestUseBalance_Success(t *testing.T) {
	f := newFixture(t)

	outcome, err := f.svc.UseBalance(context.Background(), cqrs.UseBalanceCommand{
		UserID: 12, AccountNumber: "1000000012", Amount: 200,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Result != models.TransactionResultSuccess || outcome.Amount != 200 || outcome.AccountNumber != "1000000012" {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if len(outcome.TransactionID) != 32 {
		t.Fatalf("expected a 32 character transaction id, got %q", outcome.TransactionID)
	}
	if !outcome.TransactedAt.Equal(fixedNow) {
		t.Fatalf("expected transactedAt %s, got %s", fixedNow, outcome.TransactedAt)
	}
	if got := f.ledger.balance("1000000012"); got != 9800 {
		t.Fatalf("expected balance 9800, got %d", got)
	}

	recorded := f.ledger.recorded()
	if len(recorded) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(recorded))
	}
	if recorded[0].BalanceSnapshot != 9800 || recorded[0].Type != models.TransactionTypeUse {
		t.Fatalf("unexpected transaction record: %+v", recorded[0])
	}
	if f.redis.Exists("ACLK:1000000012") {
		t.Fatal("expected the account lock to be released")
	}
	if len(f.views.views) != 1 || f.views.views[0].TransactionID != outcome.TransactionID {
		t.Fatalf("expected the transaction view to be cached, got %+v", f.views.views)
	}
	if types := f.events.types(); len(types) != 2 || types[0] != "transaction.used" || types[1] != "balance.updated" {
		t.Fatalf("unexpected events: %v", types)
	}
}

func TestUseBalance_AmountExceedsBalanceRecordsFailure(t *testing.T) {
	f := newFixture(t)

	outcome, err := f.svc.UseBalance(context.Background(), cqrs.UseBalanceCommand{
		UserID: 13, AccountNumber: "1000000013", Amount: 1000,
	})
	if !errors.Is(err, apperr.ErrAmountExceedsBalance) {
		t.Fatalf("expected ErrAmountExceedsBalance, got %v", err)
	}
	if outcome != nil {
		t.Fatalf("expected no outcome, got %+v", outcome)
	}
	if got := f.ledger.balance("1000000013"); got != 100 {
		t.Fatalf("expected balance to stay 100, got %d", got)
	}

	recorded := f.ledger.recorded()
	if len(recorded) != 1 {
		t.Fatalf("expected the failed attempt to be recorded, got %d records", len(recorded))
	}
	failure := recorded[0]
	if failure.Result != models.TransactionResultFailure || failure.Amount != 1000 || failure.BalanceSnapshot != 100 {
		t.Fatalf("unexpected failure record: %+v", failure)
	}
	if types := f.events.types(); len(types) != 1 || types[0] != "transaction.failed" {
		t.Fatalf("unexpected events: %v", types)
	}
	if f.redis.Exists("ACLK:1000000013") {
		t.Fatal("expected the account lock to be released after a failure")
	}
}

func TestUseBalance_FreshIDPerAttempt(t *testing.T) {
	f := newFixture(t)
	cmd := cqrs.UseBalanceCommand{UserID: 13, AccountNumber: "1000000013", Amount: 1000}

	_, _ = f.svc.UseBalance(context.Background(), cmd)
	_, _ = f.svc.UseBalance(context.Background(), cmd)

	recorded := f.ledger.recorded()
	if len(recorded) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recorded))
	}
	if recorded[0].TransactionID == recorded[1].TransactionID {
		t.Fatal("expected every attempt to get its own transaction id")
	}
}

func TestUseBalance_ValidationFailures(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(*ledger)
		cmd     cqrs.UseBalanceCommand
		wantErr error
	}{
		{
			name:    "unknown user",
			cmd:     cqrs.UseBalanceCommand{UserID: 99, AccountNumber: "1000000012", Amount: 200},
			wantErr: apperr.ErrUserNotFound,
		},
		{
			name:    "unknown account",
			cmd:     cqrs.UseBalanceCommand{UserID: 12, AccountNumber: "1000000099", Amount: 200},
			wantErr: apperr.ErrAccountNotFound,
		},
		{
			name:    "account owned by someone else",
			cmd:     cqrs.UseBalanceCommand{UserID: 13, AccountNumber: "1000000012", Amount: 200},
			wantErr: apperr.ErrUserAccountMismatch,
		},
		{
			name: "closed account",
			setup: func(l *ledger) {
				l.accounts["1000000012"].Status = models.AccountStatusClosed
			},
			cmd:     cqrs.UseBalanceCommand{UserID: 12, AccountNumber: "1000000012", Amount: 200},
			wantErr: apperr.ErrAccountAlreadyClosed,
		},
		{
			name:    "user checked before account",
			cmd:     cqrs.UseBalanceCommand{UserID: 99, AccountNumber: "1000000099", Amount: 200},
			wantErr: apperr.ErrUserNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.setup != nil {
				tt.setup(f.ledger)
			}

			_, err := f.svc.UseBalance(context.Background(), tt.cmd)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if len(f.ledger.recorded()) != 0 {
				t.Fatal("expected no transaction to be recorded")
			}
			if got := f.ledger.balance("1000000012"); got != 10000 {
				t.Fatalf("expected balance to stay 10000, got %d", got)
			}
			if f.redis.Exists("ACLK:" + tt.cmd.AccountNumber) {
				t.Fatal("expected the account lock to be released")
			}
		})
	}
}

func TestUseBalance_StoreFailurePassesThrough(t *testing.T) {
	f := newFixture(t)
	storeErr := errors.New("pq: connection refused")
	f.ledger.createErr = storeErr

	_, err := f.svc.UseBalance(context.Background(), cqrs.UseBalanceCommand{
		UserID: 12, AccountNumber: "1000000012", Amount: 200,
	})
	if !errors.Is(err, storeErr) {
		t.Fatalf("expected the store error unchanged, got %v", err)
	}
	if len(f.events.types()) != 0 {
		t.Fatal("expected no events for an unrecorded transaction")
	}
}

func TestUseBalance_PublishFailureDoesNotFailTheOperation(t *testing.T) {
	f := newFixture(t)
	f.events.err = errors.New("redis: connection pool timeout")

	if _, err := f.svc.UseBalance(context.Background(), cqrs.UseBalanceCommand{
		UserID: 12, AccountNumber: "1000000012", Amount: 200,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := f.ledger.balance("1000000012"); got != 9800 {
		t.Fatalf("expected balance 9800, got %d", got)
	}
}

func TestUseBalance_LockStoreUnavailable(t *testing.T) {
	f := newFixture(t)
	f.redis.SetError("LOADING Redis is loading the dataset in memory")

	_, err := f.svc.UseBalance(context.Background(), cqrs.UseBalanceCommand{
		UserID: 12, AccountNumber: "1000000012", Amount: 200,
	})
	if !errors.Is(err, apperr.ErrLockAcquisition) {
		t.Fatalf("expected ErrLockAcquisition, got %v", err)
	}
	if got := f.ledger.balance("1000000012"); got != 10000 {
		t.Fatalf("expected balance to stay 10000, got %d", got)
	}
}

func TestUseBalance_WaitsForHeldLock(t *testing.T) {
	f := newFixture(t)
	if err := f.redis.Set("ACLK:1000000012", "lock"); err != nil {
		t.Fatalf("failed to seed lock: %v", err)
	}

	go func() {
		time.Sleep(30 * time.Millisecond)
		f.redis.Del("ACLK:1000000012")
	}()

	if _, err := f.svc.UseBalance(context.Background(), cqrs.UseBalanceCommand{
		UserID: 12, AccountNumber: "1000000012", Amount: 200,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := f.ledger.balance("1000000012"); got != 9800 {
		t.Fatalf("expected balance 9800, got %d", got)
	}
}

func TestUseBalance_ConcurrentDebitsNeverLoseUpdates(t *testing.T) {
	f := newFixture(t)
	f.ledger.readDelay = 2 * time.Millisecond

	const workers = 10
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.UseBalance(context.Background(), cqrs.UseBalanceCommand{
				UserID: 12, AccountNumber: "1000000012", Amount: 100,
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if got := f.ledger.balance("1000000012"); got != 10000-workers*100 {
		t.Fatalf("expected balance %d, got %d", 10000-workers*100, got)
	}
}

func seedUse(f *fixture, id string, amount int64, at time.Time) {
	f.ledger.addTransaction(&models.Transaction{
		TransactionID:   id,
		AccountID:       7,
		AccountNumber:   "1000000012",
		Type:            models.TransactionTypeUse,
		Result:          models.TransactionResultSuccess,
		Amount:          amount,
		BalanceSnapshot: 10000,
		TransactedAt:    at,
	})
}

func TestCancelBalance_Success(t *testing.T) {
	f := newFixture(t)
	seedUse(f, "txId", 200, fixedNow.Add(-time.Hour))

	outcome, err := f.svc.CancelBalance(context.Background(), cqrs.CancelBalanceCommand{
		TransactionID: "txId", AccountNumber: "1000000012", Amount: 200,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := f.ledger.balance("1000000012"); got != 10200 {
		t.Fatalf("expected balance 10200, got %d", got)
	}
	if outcome.Result != models.TransactionResultSuccess || outcome.TransactionID == "txId" {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}

	recorded := f.ledger.recorded()
	cancel := recorded[len(recorded)-1]
	if cancel.Type != models.TransactionTypeCancel || cancel.OriginalTransactionID != "txId" || cancel.BalanceSnapshot != 10200 {
		t.Fatalf("unexpected cancel record: %+v", cancel)
	}
	if types := f.events.types(); len(types) != 2 || types[0] != "transaction.cancelled" || types[1] != "balance.updated" {
		t.Fatalf("unexpected events: %v", types)
	}
}

func TestCancelBalance_MustBeFull(t *testing.T) {
	f := newFixture(t)
	seedUse(f, "txId", 200, fixedNow.Add(-time.Hour))

	for _, amount := range []int64{100, 199, 201, 5000} {
		_, err := f.svc.CancelBalance(context.Background(), cqrs.CancelBalanceCommand{
			TransactionID: "txId", AccountNumber: "1000000012", Amount: amount,
		})
		if !errors.Is(err, apperr.ErrCancelMustBeFull) {
			t.Fatalf("amount %d: expected ErrCancelMustBeFull, got %v", amount, err)
		}
	}
	if got := f.ledger.balance("1000000012"); got != 10000 {
		t.Fatalf("expected balance to stay 10000, got %d", got)
	}
}

func TestCancelBalance_AgeBoundary(t *testing.T) {
	const year = 365 * 24 * time.Hour
	// One calendar year before this date spans Feb 29, 2024.
	leapNow := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name         string
		now          time.Time
		transactedAt time.Time
		wantErr      error
	}{
		{"exactly 365 days", fixedNow, fixedNow.Add(-year), nil},
		{"365 days less a second", fixedNow, fixedNow.Add(-year + time.Second), nil},
		{"365 days and a second", fixedNow, fixedNow.Add(-year - time.Second), apperr.ErrTransactionTooOldToCancel},
		{"one year and a day", fixedNow, fixedNow.AddDate(-1, 0, -1), apperr.ErrTransactionTooOldToCancel},
		{"exactly 365 days across a leap day", leapNow, leapNow.Add(-year), nil},
		{"365 days and a second across a leap day", leapNow, leapNow.Add(-year - time.Second), apperr.ErrTransactionTooOldToCancel},
		{"one calendar year across a leap day", leapNow, leapNow.AddDate(-1, 0, 0), apperr.ErrTransactionTooOldToCancel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			now := tt.now
			f.svc.now = func() time.Time { return now }
			seedUse(f, "txId", 200, tt.transactedAt)

			_, err := f.svc.CancelBalance(context.Background(), cqrs.CancelBalanceCommand{
				TransactionID: "txId", AccountNumber: "1000000012", Amount: 200,
			})
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestCancelBalance_ValidationFailures(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(*fixture)
		cmd     cqrs.CancelBalanceCommand
		wantErr error
	}{
		{
			name:    "unknown transaction",
			cmd:     cqrs.CancelBalanceCommand{TransactionID: "missing", AccountNumber: "1000000012", Amount: 200},
			wantErr: apperr.ErrTransactionNotFound,
		},
		{
			name:    "unknown account",
			setup:   func(f *fixture) { seedUse(f, "txId", 200, fixedNow) },
			cmd:     cqrs.CancelBalanceCommand{TransactionID: "txId", AccountNumber: "1000000099", Amount: 200},
			wantErr: apperr.ErrAccountNotFound,
		},
		{
			name:    "transaction belongs to another account",
			setup:   func(f *fixture) { seedUse(f, "txId", 200, fixedNow) },
			cmd:     cqrs.CancelBalanceCommand{TransactionID: "txId", AccountNumber: "1000000013", Amount: 200},
			wantErr: apperr.ErrTransactionAccountMismatch,
		},
		{
			name: "failed use is not cancellable",
			setup: func(f *fixture) {
				f.ledger.addTransaction(&models.Transaction{
					TransactionID: "txId", AccountID: 7, AccountNumber: "1000000012",
					Type: models.TransactionTypeUse, Result: models.TransactionResultFailure,
					Amount: 200, TransactedAt: fixedNow,
				})
			},
			cmd:     cqrs.CancelBalanceCommand{TransactionID: "txId", AccountNumber: "1000000012", Amount: 200},
			wantErr: apperr.ErrTransactionNotCancellable,
		},
		{
			name: "already cancelled",
			setup: func(f *fixture) {
				seedUse(f, "txId", 200, fixedNow)
				f.ledger.addTransaction(&models.Transaction{
					TransactionID: "cancelId", AccountID: 7, AccountNumber: "1000000012",
					Type: models.TransactionTypeCancel, Result: models.TransactionResultSuccess,
					Amount: 200, OriginalTransactionID: "txId", TransactedAt: fixedNow,
				})
			},
			cmd:     cqrs.CancelBalanceCommand{TransactionID: "txId", AccountNumber: "1000000012", Amount: 200},
			wantErr: apperr.ErrTransactionAlreadyCancelled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.setup != nil {
				tt.setup(f)
			}

			_, err := f.svc.CancelBalance(context.Background(), tt.cmd)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if got := f.ledger.balance("1000000012"); got != 10000 {
				t.Fatalf("expected balance to stay 10000, got %d", got)
			}
		})
	}
}

func TestUseThenCancelRestoresBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	used, err := f.svc.UseBalance(ctx, cqrs.UseBalanceCommand{UserID: 12, AccountNumber: "1000000012", Amount: 200})
	if err != nil {
		t.Fatalf("unexpected use error: %v", err)
	}
	if _, err := f.svc.CancelBalance(ctx, cqrs.CancelBalanceCommand{
		TransactionID: used.TransactionID, AccountNumber: "1000000012", Amount: 200,
	}); err != nil {
		t.Fatalf("unexpected cancel error: %v", err)
	}
	if got := f.ledger.balance("1000000012"); got != 10000 {
		t.Fatalf("expected balance 10000, got %d", got)
	}

	_, err = f.svc.CancelBalance(ctx, cqrs.CancelBalanceCommand{
		TransactionID: used.TransactionID, AccountNumber: "1000000012", Amount: 200,
	})
	if !errors.Is(err, apperr.ErrTransactionAlreadyCancelled) {
		t.Fatalf("expected ErrTransactionAlreadyCancelled, got %v", err)
	}
}
