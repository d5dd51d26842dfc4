package repository

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/eaglebank/ledger-service/shared/apperr"
	"github.com/eaglebank/ledger-service/shared/models"
)

// MemoryStore is a thread-safe in-memory LedgerStore. Mutations of one user
// are serialised by a per-user mutex; mu only guards the maps themselves.
type MemoryStore struct {
	mu           sync.RWMutex
	users        map[string]*models.User
	emailIndex   map[string]string // lower-cased email -> userID
	transactions map[string]*models.Transaction

	locks userLocks
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:        make(map[string]*models.User),
		emailIndex:   make(map[string]string),
		transactions: make(map[string]*models.Transaction),
	}
}

func (s *MemoryStore) userLock(userID string) *sync.Mutex {
	return s.locks.get(userID)
}

func (s *MemoryStore) CreateUser(ctx context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(u.Email)
	if _, exists := s.emailIndex[key]; exists {
		return apperr.Validation("email", "email already registered")
	}
	s.users[u.ID] = u.Clone()
	s.emailIndex[key] = u.ID
	return nil
}

func (s *MemoryStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, apperr.NotFound("user")
	}
	return u.Clone(), nil
}

func (s *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.emailIndex[strings.ToLower(email)]
	if !ok {
		return nil, apperr.NotFound("user")
	}
	return s.users[id].Clone(), nil
}

func (s *MemoryStore) WithUser(ctx context.Context, userID string, fn func(tx LedgerTx) error) error {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	user, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}

	tx := &memoryTx{
		store:   s,
		user:    user,
		staged:  make(map[string]*models.Transaction),
		deleted: make(map[string]bool),
	}
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	runHooks(tx.hooks)
	return nil
}

func (s *MemoryStore) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.transactions[id]
	if !ok {
		return nil, apperr.NotFound("transaction")
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) ListTransactionsByUser(ctx context.Context, userID string) ([]models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.users[userID]; !ok {
		return nil, apperr.NotFound("user")
	}
	out := make([]models.Transaction, 0)
	for _, t := range s.transactions {
		if t.UserID == userID {
			out = append(out, *t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date.Equal(out[j].Date) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Date.After(out[j].Date)
	})
	return out, nil
}

func (s *MemoryStore) AppendNotification(ctx context.Context, userID string, n models.Notification) error {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return apperr.NotFound("user")
	}
	u.Notifications = append(u.Notifications, n)
	return nil
}

// memoryTx stages every write and applies them in one critical section.
type memoryTx struct {
	store     *MemoryStore
	user      *models.User
	saveUser  bool
	staged    map[string]*models.Transaction
	deleted   map[string]bool
	stageKeys []string
	hooks     []func()
}

func (t *memoryTx) User() *models.User { return t.user }

func (t *memoryTx) AfterCommit(fn func()) { t.hooks = append(t.hooks, fn) }

func (t *memoryTx) SaveUser(ctx context.Context) error {
	t.saveUser = true
	return nil
}

func (t *memoryTx) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	if t.deleted[id] {
		return nil, apperr.NotFound("transaction")
	}
	if staged, ok := t.staged[id]; ok {
		cp := *staged
		return &cp, nil
	}
	return t.store.GetTransaction(ctx, id)
}

func (t *memoryTx) CreateTransaction(ctx context.Context, txn *models.Transaction) error {
	t.store.mu.RLock()
	_, exists := t.store.transactions[txn.ID]
	t.store.mu.RUnlock()
	if _, staged := t.staged[txn.ID]; exists || staged {
		return apperr.Validation("id", "transaction already exists")
	}
	t.stage(txn)
	return nil
}

func (t *memoryTx) UpdateTransaction(ctx context.Context, txn *models.Transaction) error {
	if _, err := t.GetTransaction(ctx, txn.ID); err != nil {
		return err
	}
	t.stage(txn)
	return nil
}

func (t *memoryTx) DeleteTransaction(ctx context.Context, id string) error {
	if _, err := t.GetTransaction(ctx, id); err != nil {
		return err
	}
	delete(t.staged, id)
	t.deleted[id] = true
	return nil
}

func (t *memoryTx) stage(txn *models.Transaction) {
	cp := *txn
	if _, ok := t.staged[txn.ID]; !ok {
		t.stageKeys = append(t.stageKeys, txn.ID)
	}
	t.staged[txn.ID] = &cp
	delete(t.deleted, txn.ID)
}

func (t *memoryTx) commit() {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range t.stageKeys {
		if txn, ok := t.staged[id]; ok {
			s.transactions[id] = txn
		}
	}
	for id := range t.deleted {
		delete(s.transactions, id)
	}
	if t.saveUser {
		// Notifications appended outside WithUser cannot interleave here
		// because AppendNotification takes the same user lock.
		s.users[t.user.ID] = t.user.Clone()
	}
}
