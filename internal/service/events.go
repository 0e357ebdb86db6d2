// Package service orchestrates engine operations against storage, caching,
// locking and the event bus. The engine stays pure; everything stateful
// happens here.
package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/kektech/marketd/internal/domain"
)

// eventStream is the durable stream every published event is appended to,
// alongside its pub/sub topic.
const eventStream = "events"

// lockTTL bounds how long a market mutation may hold its lock before Redis
// reclaims it.
const lockTTL = 10 * time.Second

// publishEvent fans an event out to the topic channel and the durable
// stream. Publish failures are logged, never propagated: the state change
// has already been persisted and must not be rolled back over telemetry.
func publishEvent(ctx context.Context, bus domain.SignalBus, log *slog.Logger, topic string, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.ErrorContext(ctx, "marshal event failed",
			slog.String("topic", topic),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := bus.Publish(ctx, topic, payload); err != nil {
		log.WarnContext(ctx, "publish event failed",
			slog.String("topic", topic),
			slog.String("error", err.Error()),
		)
	}
	if err := bus.StreamAppend(ctx, eventStream, payload); err != nil {
		log.WarnContext(ctx, "stream append failed",
			slog.String("topic", topic),
			slog.String("error", err.Error()),
		)
	}
}
