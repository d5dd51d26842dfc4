package query

import (
	"context"
	"math"
	"time"

	"github.com/eaglebank/ledger-service/internal/policy"
	"github.com/eaglebank/ledger-service/internal/repository"
	"github.com/eaglebank/ledger-service/shared/apperr"
	"github.com/eaglebank/ledger-service/shared/cqrs"
	"github.com/eaglebank/ledger-service/shared/models"
)

// BalanceReader is satisfied by *repository.BalanceReadRepository.
type BalanceReader interface {
	GetBalance(ctx context.Context, userID string) (*models.BalanceView, error)
}

// storeBalances reads balances straight from the write store.
type storeBalances struct {
	store repository.LedgerStore
}

func (b storeBalances) GetBalance(ctx context.Context, userID string) (*models.BalanceView, error) {
	u, err := b.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return models.ToBalanceView(u), nil
}

type LedgerQueryService struct {
	store    repository.LedgerStore
	balances BalanceReader
	policy   *policy.Policy
	now      func() time.Time
}

// NewLedgerQueryService builds the read side. A nil balances reader falls back
// to the store.
func NewLedgerQueryService(store repository.LedgerStore, balances BalanceReader, pol *policy.Policy) *LedgerQueryService {
	if balances == nil {
		balances = storeBalances{store: store}
	}
	return &LedgerQueryService{
		store:    store,
		balances: balances,
		policy:   pol,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *LedgerQueryService) GetBalance(ctx context.Context, q cqrs.GetBalanceQuery) (*models.BalanceView, error) {
	view, err := s.balances.GetBalance(ctx, q.UserID)
	if err != nil {
		return nil, apperr.Internal("query.GetBalance", err)
	}
	return view, nil
}

// GetUser returns the public view of a user. Callers other than the user
// themselves need admin capability.
func (s *LedgerQueryService) GetUser(ctx context.Context, q cqrs.GetUserQuery) (*models.UserView, error) {
	if q.UserID != q.RequestingUserID && !q.RequestingAdmin {
		return nil, apperr.Forbidden("cannot read another user")
	}
	u, err := s.store.GetUserByID(ctx, q.UserID)
	if err != nil {
		return nil, apperr.Internal("query.GetUser", err)
	}
	return models.ToUserView(u), nil
}

func (s *LedgerQueryService) ListTransactions(ctx context.Context, q cqrs.ListTransactionsQuery) ([]models.Transaction, error) {
	list, err := s.store.ListTransactionsByUser(ctx, q.UserID)
	if err != nil {
		return nil, apperr.Internal("query.ListTransactions", err)
	}
	return list, nil
}

func (s *LedgerQueryService) GetTransaction(ctx context.Context, q cqrs.GetTransactionQuery) (*models.Transaction, error) {
	txn, err := s.store.GetTransaction(ctx, q.TransactionID)
	if err != nil {
		return nil, apperr.Internal("query.GetTransaction", err)
	}
	return txn, nil
}

// ListNotifications returns notifications newest first.
func (s *LedgerQueryService) ListNotifications(ctx context.Context, q cqrs.ListNotificationsQuery) ([]models.Notification, error) {
	u, err := s.store.GetUserByID(ctx, q.UserID)
	if err != nil {
		return nil, apperr.Internal("query.ListNotifications", err)
	}
	out := make([]models.Notification, 0, len(u.Notifications))
	for i := len(u.Notifications) - 1; i >= 0; i-- {
		n := u.Notifications[i]
		if q.UnreadOnly && n.Read {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

// ListInvestments reports each position with its status as of now.
func (s *LedgerQueryService) ListInvestments(ctx context.Context, q cqrs.ListInvestmentsQuery) ([]models.InvestmentView, error) {
	u, err := s.store.GetUserByID(ctx, q.UserID)
	if err != nil {
		return nil, apperr.Internal("query.ListInvestments", err)
	}
	now := s.now()
	out := make([]models.InvestmentView, 0, len(u.Investments))
	for _, inv := range u.Investments {
		days := int(math.Ceil(inv.MaturityDate.Sub(now).Hours() / 24))
		if days < 0 {
			days = 0
		}
		inv.Status = inv.EffectiveStatus(now)
		out = append(out, models.InvestmentView{Investment: inv, DaysToMaturity: days})
	}
	return out, nil
}

func (s *LedgerQueryService) GetLoanRange(ctx context.Context, q cqrs.GetLoanRangeQuery) (*models.LoanRange, error) {
	u, err := s.store.GetUserByID(ctx, q.UserID)
	if err != nil {
		return nil, apperr.Internal("query.GetLoanRange", err)
	}
	r := s.policy.LoanRange(u.HasSubmittedIDSSN)
	return &models.LoanRange{Min: r.Min, Max: r.Max}, nil
}

func (s *LedgerQueryService) ListPlans(ctx context.Context) []policy.Plan {
	return s.policy.Plans()
}
