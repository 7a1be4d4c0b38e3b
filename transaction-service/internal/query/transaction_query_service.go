package query

import (
	"context"

	"github.com/eaglebank/ledger/shared/cqrs"
	"github.com/eaglebank/ledger/shared/models"
)

type TransactionReader interface {
	GetByTransactionID(ctx context.Context, transactionID string) (*models.TransactionView, error)
}

// TransactionQueryService serves transaction reads. It never takes the
// account lock: transaction records are immutable once written.
type TransactionQueryService struct {
	readRepo TransactionReader
}

func NewTransactionQueryService(readRepo TransactionReader) *TransactionQueryService {
	return &TransactionQueryService{readRepo: readRepo}
}

func (s *TransactionQueryService) QueryTransaction(ctx context.Context, q cqrs.GetTransactionQuery) (*models.TransactionView, error) {
	return s.readRepo.GetByTransactionID(ctx, q.TransactionID)
}
