package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

type Handler func(ctx context.Context, event Event) error

const (
	// pendingID reads this consumer's delivered-but-unacknowledged entries.
	pendingID = "0"
	// newID reads entries never delivered to the group.
	newID = ">"
)

// Subscriber consumes one Redis stream through a consumer group. A message
// whose handler fails stays pending and is handed to the handler again
// after RetryDelay.
type Subscriber struct {
	client        redis.Cmdable
	group         string
	consumer      string
	stream        string
	handler       Handler
	batchSize     int64
	blockDuration time.Duration
	retryDelay    time.Duration
}

type SubscriberConfig struct {
	Group         string
	Consumer      string
	Stream        string
	Handler       Handler
	BatchSize     int64
	BlockDuration time.Duration
	RetryDelay    time.Duration
}

func NewSubscriber(client redis.Cmdable, config SubscriberConfig) *Subscriber {
	if config.BatchSize <= 0 {
		config.BatchSize = 10
	}
	if config.BlockDuration <= 0 {
		config.BlockDuration = 5 * time.Second
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = time.Second
	}

	return &Subscriber{
		client:        client,
		group:         config.Group,
		consumer:      config.Consumer,
		stream:        config.Stream,
		handler:       config.Handler,
		batchSize:     config.BatchSize,
		blockDuration: config.BlockDuration,
		retryDelay:    config.RetryDelay,
	}
}

// Start blocks until ctx is done. Pending entries, including those left by
// an earlier run of the same consumer, are retried at most once per
// RetryDelay so a failing message cannot starve new ones.
func (s *Subscriber) Start(ctx context.Context) error {
	err := s.client.XGroupCreateMkStream(ctx, s.stream, s.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	slog.Info("subscriber started", "component", "events", "stream", s.stream, "group", s.group, "consumer", s.consumer)

	retryPending := true
	var lastRetry time.Time
	for {
		if ctx.Err() != nil {
			slog.Info("subscriber stopping", "component", "events", "stream", s.stream)
			return ctx.Err()
		}

		if retryPending && time.Since(lastRetry) >= s.retryDelay {
			lastRetry = time.Now()
			failed, err := s.drainPending(ctx)
			if err != nil && ctx.Err() == nil {
				slog.Warn("pending read failed", "component", "events", "stream", s.stream, "err", err)
			}
			retryPending = err != nil || failed > 0
		}

		_, failed, _, err := s.readMessages(ctx, newID)
		if err != nil && ctx.Err() == nil {
			slog.Warn("read failed", "component", "events", "stream", s.stream, "err", err)
			sleep(ctx, s.retryDelay)
		}
		if failed > 0 {
			retryPending = true
		}
	}
}

// drainPending walks this consumer's whole pending list batch by batch and
// returns how many entries are still failing.
func (s *Subscriber) drainPending(ctx context.Context) (int, error) {
	from := pendingID
	failed := 0
	for {
		read, f, lastID, err := s.readMessages(ctx, from)
		failed += f
		if err != nil || read == 0 {
			return failed, err
		}
		from = lastID
	}
}

// readMessages handles one batch after from. It returns how many messages
// were read, how many were left pending and the ID of the last one.
func (s *Subscriber) readMessages(ctx context.Context, from string) (read, failed int, lastID string, err error) {
	args := &redis.XReadGroupArgs{
		Group:    s.group,
		Consumer: s.consumer,
		Streams:  []string{s.stream, from},
		Count:    s.batchSize,
	}
	// A pending read must not block: an empty answer means the backlog is done.
	if from == newID {
		args.Block = s.blockDuration
	} else {
		args.Block = -1
	}

	streams, err := s.client.XReadGroup(ctx, args).Result()
	if err == redis.Nil {
		return 0, 0, "", nil
	}
	if err != nil {
		return 0, 0, "", fmt.Errorf("failed to read from stream: %w", err)
	}

	for _, stream := range streams {
		for _, message := range stream.Messages {
			read++
			lastID = message.ID
			if err := s.processMessage(ctx, message); err != nil {
				slog.Warn("handler failed; leaving message pending", "component", "events", "stream", s.stream, "id", message.ID, "err", err)
				failed++
				continue
			}

			if err := s.client.XAck(ctx, s.stream, s.group, message.ID).Err(); err != nil {
				slog.Warn("ack failed", "component", "events", "stream", s.stream, "id", message.ID, "err", err)
			}
		}
	}

	return read, failed, lastID, nil
}

func (s *Subscriber) processMessage(ctx context.Context, message redis.XMessage) error {
	raw, ok := message.Values["event"].(string)
	if !ok {
		return fmt.Errorf("message %s has no event field", message.ID)
	}

	var event Event
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		return fmt.Errorf("failed to unmarshal event %s: %w", message.ID, err)
	}

	return s.handler(ctx, event)
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
