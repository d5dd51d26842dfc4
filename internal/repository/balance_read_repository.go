package repository

import (
	"context"
	"log/slog"
	"time"

	"github.com/eaglebank/ledger-service/shared/models"
	sharedredis "github.com/eaglebank/ledger-service/shared/redis"
	goredis "github.com/redis/go-redis/v9"
)

const (
	balanceViewKeyPrefix = "balance:view:"
	processedEventPrefix = "processed:event:"
)

// BalanceReadRepository serves balance reads. It treats Redis as the read
// model and falls back to the write store, warming the cache on every cold read.
type BalanceReadRepository struct {
	store LedgerStore
	redis *goredis.Client
	cache *sharedredis.ViewCache[models.BalanceView]
}

func NewBalanceReadRepository(store LedgerStore, redisClient *goredis.Client, ttl time.Duration, log *slog.Logger) *BalanceReadRepository {
	return &BalanceReadRepository{
		store: store,
		redis: redisClient,
		cache: sharedredis.NewViewCache[models.BalanceView](redisClient, ttl, log),
	}
}

// GetBalance returns a BalanceView, trying Redis first then the store.
func (r *BalanceReadRepository) GetBalance(ctx context.Context, userID string) (*models.BalanceView, error) {
	if view, ok := r.cache.Get(ctx, balanceViewKeyPrefix+userID); ok {
		return view, nil
	}
	return r.RefreshBalance(ctx, userID)
}

// RefreshBalance reloads the view from the store and rewrites the cache entry.
func (r *BalanceReadRepository) RefreshBalance(ctx context.Context, userID string) (*models.BalanceView, error) {
	user, err := r.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	view := models.ToBalanceView(user)
	r.CacheBalanceView(ctx, view)
	return view, nil
}

// CacheBalanceView stores or refreshes the Redis read model for a user's balance.
func (r *BalanceReadRepository) CacheBalanceView(ctx context.Context, view *models.BalanceView) {
	r.cache.Set(ctx, balanceViewKeyPrefix+view.UserID, view)
}

// InvalidateBalanceView drops the cached view for a user.
func (r *BalanceReadRepository) InvalidateBalanceView(ctx context.Context, userID string) {
	r.cache.Delete(ctx, balanceViewKeyPrefix+userID)
}

// IsEventProcessed reports whether MarkEventProcessed already recorded eventID.
func (r *BalanceReadRepository) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	return sharedredis.Marked(ctx, r.redis, processedEventPrefix+eventID)
}

// MarkEventProcessed records an event id and reports whether it was new.
// The key expires after 72 hours, long enough to cover any realistic
// redelivery window from a consumer group.
func (r *BalanceReadRepository) MarkEventProcessed(ctx context.Context, eventID string) (bool, error) {
	return sharedredis.MarkOnce(ctx, r.redis, processedEventPrefix+eventID, 72*time.Hour)
}
