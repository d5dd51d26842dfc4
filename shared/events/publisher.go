package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/eaglebank/ledger-service/shared/utils"
	"github.com/redis/go-redis/v9"
)

// DefaultMaxLen caps each stream; trimming is approximate.
const DefaultMaxLen = 100000

type Publisher struct {
	client *redis.Client
	maxLen int64
	now    func() time.Time
}

func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client, maxLen: DefaultMaxLen, now: time.Now}
}

// NewEvent wraps data in an envelope with a fresh ID.
func NewEvent(eventType string, data any, at time.Time) Event {
	return Event{
		ID:        utils.GenerateID("evt"),
		Type:      eventType,
		Timestamp: at.UTC(),
		Data:      data,
	}
}

// EncodeMessage is the inverse of DecodeMessage.
func EncodeMessage(event Event) (map[string]any, error) {
	raw, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s event: %w", event.Type, err)
	}
	return map[string]any{"event": string(raw)}, nil
}

func (p *Publisher) Publish(ctx context.Context, stream, eventType string, data any) error {
	values, err := EncodeMessage(NewEvent(eventType, data, p.now()))
	if err != nil {
		return err
	}

	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: values,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish %s to %s: %w", eventType, stream, err)
	}
	return nil
}
