package repository

import (
	"context"
	"sync"

	"github.com/eaglebank/ledger-service/shared/models"
)

// LedgerTx is the exclusive view of one user's aggregate inside
// LedgerStore.WithUser. Every write made through it becomes visible together
// when the callback returns nil, and none of them do otherwise.
type LedgerTx interface {
	// User is the locked aggregate. Mutate it in place, then call SaveUser.
	User() *models.User
	SaveUser(ctx context.Context) error

	GetTransaction(ctx context.Context, id string) (*models.Transaction, error)
	CreateTransaction(ctx context.Context, t *models.Transaction) error
	UpdateTransaction(ctx context.Context, t *models.Transaction) error
	DeleteTransaction(ctx context.Context, id string) error

	// AfterCommit queues fn to run once the writes are durable, before the
	// user is released to the next WithUser call. Hooks are skipped on rollback.
	AfterCommit(fn func())
}

// LedgerStore is the write store (source of truth) for users and transactions.
type LedgerStore interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	// WithUser serialises fn against every other WithUser call for the same user.
	WithUser(ctx context.Context, userID string, fn func(tx LedgerTx) error) error

	GetTransaction(ctx context.Context, id string) (*models.Transaction, error)
	// ListTransactionsByUser returns the user's transactions, newest first.
	ListTransactionsByUser(ctx context.Context, userID string) ([]models.Transaction, error)

	// AppendNotification appends atomically without a read-modify-write of the user.
	AppendNotification(ctx context.Context, userID string, n models.Notification) error
}

// userLocks hands out one mutex per user id.
type userLocks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func (l *userLocks) get(userID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.m == nil {
		l.m = make(map[string]*sync.Mutex)
	}
	m, ok := l.m[userID]
	if !ok {
		m = &sync.Mutex{}
		l.m[userID] = m
	}
	return m
}

func runHooks(hooks []func()) {
	for _, fn := range hooks {
		fn()
	}
}
