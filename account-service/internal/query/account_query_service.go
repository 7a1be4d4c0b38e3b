package query

import (
	"context"

	"github.com/eaglebank/ledger/shared/cqrs"
	"github.com/eaglebank/ledger/shared/models"
)

type UserFinder interface {
	FindByID(ctx context.Context, id int64) (*models.User, error)
}

type AccountReader interface {
	GetByAccountNumber(ctx context.Context, accountNumber string) (*models.AccountView, error)
	ListByUserID(ctx context.Context, userID int64) ([]models.AccountView, error)
}

type AccountQueryService struct {
	users    UserFinder
	readRepo AccountReader
}

func NewAccountQueryService(users UserFinder, readRepo AccountReader) *AccountQueryService {
	return &AccountQueryService{users: users, readRepo: readRepo}
}

func (s *AccountQueryService) GetAccount(ctx context.Context, q cqrs.GetAccountQuery) (*models.AccountView, error) {
	return s.readRepo.GetByAccountNumber(ctx, q.AccountNumber)
}

// ListAccounts fails with USER_NOT_FOUND for an unknown user rather than
// returning an empty list.
func (s *AccountQueryService) ListAccounts(ctx context.Context, q cqrs.ListAccountsQuery) ([]models.AccountView, error) {
	if _, err := s.users.FindByID(ctx, q.UserID); err != nil {
		return nil, err
	}
	return s.readRepo.ListByUserID(ctx, q.UserID)
}
