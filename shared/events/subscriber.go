package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

type Handler func(ctx context.Context, event Event) error

type Subscriber struct {
	client        *redis.Client
	log           *slog.Logger
	group         string
	consumer      string
	stream        string
	handler       Handler
	batchSize     int64
	blockDuration time.Duration
}

type SubscriberConfig struct {
	Group         string
	Consumer      string
	Stream        string
	Handler       Handler
	BatchSize     int64
	BlockDuration time.Duration
	Logger        *slog.Logger
}

func NewSubscriber(client *redis.Client, config SubscriberConfig) *Subscriber {
	if config.BatchSize == 0 {
		config.BatchSize = 10
	}
	if config.BlockDuration == 0 {
		config.BlockDuration = 5 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Subscriber{
		client:        client,
		log:           config.Logger.With(slog.String("stream", config.Stream), slog.String("group", config.Group)),
		group:         config.Group,
		consumer:      config.Consumer,
		stream:        config.Stream,
		handler:       config.Handler,
		batchSize:     config.BatchSize,
		blockDuration: config.BlockDuration,
	}
}

// Start joins the consumer group and blocks until ctx is cancelled. Entries
// left pending by an earlier run of the same consumer are replayed first.
func (s *Subscriber) Start(ctx context.Context) error {
	err := s.client.XGroupCreateMkStream(ctx, s.stream, s.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	s.log.Info("subscriber started", slog.String("consumer", s.consumer))

	cursor := "0"
	for {
		if ctx.Err() != nil {
			s.log.Info("subscriber stopping")
			return ctx.Err()
		}

		last, err := s.readBatch(ctx, cursor)
		switch {
		case errors.Is(err, context.Canceled):
		case err != nil:
			s.log.Error("error reading messages", slog.Any("error", err))
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		case cursor != ">" && last == "":
			// backlog drained, switch to new entries
			cursor = ">"
		case cursor != ">":
			cursor = last
		}
	}
}

// readBatch reads one batch after cursor and returns the last entry ID it saw.
func (s *Subscriber) readBatch(ctx context.Context, cursor string) (string, error) {
	args := &redis.XReadGroupArgs{
		Group:    s.group,
		Consumer: s.consumer,
		Streams:  []string{s.stream, cursor},
		Count:    s.batchSize,
	}
	if cursor == ">" {
		args.Block = s.blockDuration
	}

	streams, err := s.client.XReadGroup(ctx, args).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read from stream: %w", err)
	}

	last := ""
	for _, stream := range streams {
		for _, message := range stream.Messages {
			last = message.ID
			if err := s.handle(ctx, message); err != nil {
				// left pending, replayed on the next start
				s.log.Error("failed to process message", slog.String("id", message.ID), slog.Any("error", err))
				continue
			}
			if err := s.client.XAck(ctx, s.stream, s.group, message.ID).Err(); err != nil {
				s.log.Error("failed to ack message", slog.String("id", message.ID), slog.Any("error", err))
			}
		}
	}
	return last, nil
}

func (s *Subscriber) handle(ctx context.Context, message redis.XMessage) error {
	event, err := DecodeMessage(message.Values)
	if err != nil {
		return err
	}
	return s.handler(ctx, event)
}

// DecodeMessage extracts the Event stored under the "event" field of a stream entry.
func DecodeMessage(values map[string]any) (Event, error) {
	var event Event
	eventData, ok := values["event"].(string)
	if !ok {
		return event, fmt.Errorf("invalid message format")
	}
	if err := json.Unmarshal([]byte(eventData), &event); err != nil {
		return event, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	return event, nil
}

// DecodeData re-decodes the loosely typed Data field into a concrete payload.
func DecodeData[T any](event Event) (T, error) {
	var out T
	raw, err := json.Marshal(event.Data)
	if err != nil {
		return out, fmt.Errorf("failed to marshal %s payload: %w", event.Type, err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("failed to unmarshal %s payload: %w", event.Type, err)
	}
	return out, nil
}
