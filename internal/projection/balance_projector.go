// Package projection keeps Redis read models in step with the ledger.events
// stream. Commands already refresh the balance view inline; the projector
// repairs it when that write was lost and serves other replicas.
package projection

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/eaglebank/ledger-service/shared/apperr"
	"github.com/eaglebank/ledger-service/shared/events"
	"github.com/eaglebank/ledger-service/shared/models"
)

// BalanceRefresher is satisfied by *repository.BalanceReadRepository.
type BalanceRefresher interface {
	RefreshBalance(ctx context.Context, userID string) (*models.BalanceView, error)
	InvalidateBalanceView(ctx context.Context, userID string)
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID string) (bool, error)
}

type BalanceProjector struct {
	balances BalanceRefresher
	log      *slog.Logger
}

func NewBalanceProjector(balances BalanceRefresher, log *slog.Logger) *BalanceProjector {
	return &BalanceProjector{balances: balances, log: log}
}

// HandleLedgerEvent refreshes the balance view of the event's user. An event
// id is recorded only once its refresh has succeeded, so a failed delivery is
// retried in full when the stream redelivers it.
func (p *BalanceProjector) HandleLedgerEvent(ctx context.Context, event events.Event) error {
	data, err := events.DecodeData[events.LedgerEvent](event)
	if err != nil {
		return err
	}
	if data.UserID == "" {
		p.log.Warn("ledger event without user id", slog.String("event_id", event.ID), slog.String("type", event.Type))
		return nil
	}

	done, err := p.balances.IsEventProcessed(ctx, event.ID)
	if err != nil {
		return fmt.Errorf("failed to check event %s: %w", event.ID, err)
	}
	if done {
		p.log.Debug("event already processed, skipping", slog.String("event_id", event.ID))
		return nil
	}

	view, err := p.balances.RefreshBalance(ctx, data.UserID)
	switch {
	case apperr.IsNotFound(err):
		p.log.Warn("ledger event for unknown user", slog.String("user_id", data.UserID))
		p.balances.InvalidateBalanceView(ctx, data.UserID)
	case err != nil:
		return fmt.Errorf("failed to refresh balance for %s: %w", data.UserID, err)
	default:
		p.log.Debug("balance view refreshed",
			slog.String("user_id", data.UserID), slog.String("type", event.Type), slog.String("total", view.Total.StringFixed(2)))
	}

	// A lost mark only costs one more idempotent refresh on redelivery.
	if _, err := p.balances.MarkEventProcessed(ctx, event.ID); err != nil {
		p.log.Warn("failed to record processed event", slog.String("event_id", event.ID), slog.Any("error", err))
	}
	return nil
}
