package command

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/eaglebank/ledger-service/internal/repository"
	"github.com/eaglebank/ledger-service/shared/apperr"
	"github.com/eaglebank/ledger-service/shared/events"
	"github.com/eaglebank/ledger-service/shared/models"
	"github.com/eaglebank/ledger-service/shared/utils"
	"github.com/shopspring/decimal"
)

// EventPublisher is satisfied by *events.Publisher.
type EventPublisher interface {
	Publish(ctx context.Context, stream, eventType string, data any) error
}

// BalanceCache is satisfied by *repository.BalanceReadRepository.
type BalanceCache interface {
	CacheBalanceView(ctx context.Context, view *models.BalanceView)
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string, string, any) error { return nil }

type nopCache struct{}

func (nopCache) CacheBalanceView(context.Context, *models.BalanceView) {}

// effect describes what to emit once a unit of work has committed. Zero
// fields are skipped.
type effect struct {
	userID       string
	balance      *models.BalanceView
	notification string
	stream       string
	eventType    string
	event        any
}

// emitter runs units of work against the store and emits their side effects.
type emitter struct {
	store     repository.LedgerStore
	cache     BalanceCache
	publisher EventPublisher
	log       *slog.Logger
	now       func() time.Time
}

func newEmitter(store repository.LedgerStore, cache BalanceCache, publisher EventPublisher, log *slog.Logger) emitter {
	if cache == nil {
		cache = nopCache{}
	}
	if publisher == nil {
		publisher = nopPublisher{}
	}
	if log == nil {
		log = slog.Default()
	}
	return emitter{
		store:     store,
		cache:     cache,
		publisher: publisher,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// mutate runs fn while holding userID's aggregate. Side effects are emitted
// only after the store has committed. The balance view is written before the
// user is released, so concurrent commits reach the cache in commit order.
func (e *emitter) mutate(ctx context.Context, op, userID string, fn func(tx repository.LedgerTx) (*effect, error)) error {
	var eff *effect
	err := e.store.WithUser(ctx, userID, func(tx repository.LedgerTx) error {
		var err error
		eff, err = fn(tx)
		if err == nil && eff != nil && eff.balance != nil {
			view := eff.balance
			tx.AfterCommit(func() { e.cache.CacheBalanceView(ctx, view) })
		}
		return err
	})
	if err != nil {
		return apperr.Internal(op, err)
	}
	if eff != nil {
		if eff.userID == "" {
			eff.userID = userID
		}
		e.emit(ctx, eff)
	}
	return nil
}

func (e *emitter) emit(ctx context.Context, eff *effect) {
	if eff.notification != "" {
		e.notify(ctx, eff.userID, eff.notification)
	}
	if eff.eventType != "" {
		stream := eff.stream
		if stream == "" {
			stream = events.LedgerEventsStream
		}
		if err := e.publisher.Publish(ctx, stream, eff.eventType, eff.event); err != nil {
			e.log.Error("failed to publish event",
				slog.String("type", eff.eventType), slog.String("user_id", eff.userID), slog.Any("error", err))
		}
	}
}

// notify appends a notification. A failure is logged and never propagated:
// the money movement it describes has already committed.
func (e *emitter) notify(ctx context.Context, userID, message string) {
	n := models.Notification{
		ID:      utils.GenerateID(utils.NotificationIDPrefix),
		Message: message,
		Date:    e.now(),
	}
	if err := e.store.AppendNotification(ctx, userID, n); err != nil {
		e.log.Error("failed to append notification",
			slog.String("user_id", userID), slog.String("message", message), slog.Any("error", err))
	}
}

// requireAdmin checks the acting user's stored capability, independent of the token.
func (e *emitter) requireAdmin(ctx context.Context, adminID string) error {
	admin, err := e.store.GetUserByID(ctx, adminID)
	if err != nil {
		if apperr.IsNotFound(err) {
			return apperr.Forbidden("unknown admin")
		}
		return apperr.Internal("command.requireAdmin", err)
	}
	if !admin.IsAdmin {
		return apperr.Forbidden("admin capability required")
	}
	return nil
}

func (e *emitter) newTransaction(userID, txType string, amount decimal.Decimal, method, status, account string, date time.Time) *models.Transaction {
	now := e.now()
	return &models.Transaction{
		ID:        utils.GenerateID(utils.TransactionIDPrefix),
		UserID:    userID,
		Type:      txType,
		Amount:    amount,
		Method:    method,
		Status:    status,
		Account:   account,
		Date:      date,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func validateAmount(field string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperr.Validation(field, "must be greater than zero")
	}
	if !amount.Equal(amount.Round(2)) {
		return apperr.Validation(field, "must have at most two decimal places")
	}
	return nil
}

func validateAccount(account string) error {
	if !models.IsAccountKey(account) {
		return apperr.Validation("account", "must be one of checking, savings, usdt")
	}
	return nil
}

func money(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}

func ledgerEvent(userID string, txn *models.Transaction) events.LedgerEvent {
	ev := events.LedgerEvent{UserID: userID}
	if txn != nil {
		ev.TransactionID = txn.ID
		ev.Account = txn.Account
		ev.Amount = txn.Amount.StringFixed(2)
	}
	return ev
}

func removeID(ids []string, id string) ([]string, bool) {
	for i, v := range ids {
		if v == id {
			return append(ids[:i:i], ids[i+1:]...), true
		}
	}
	return ids, false
}

func describeCounters(b models.Balance, keys []string) string {
	out := ""
	for i, key := range keys {
		v, _ := b.Get(key)
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%s %s", key, money(v))
	}
	return out
}
