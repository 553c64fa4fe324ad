package events

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultStream is the Redis stream events are appended to.
const DefaultStream = "custody:events"

// RedisStreamEmitter appends events to a capped Redis stream for downstream scanners.
type RedisStreamEmitter struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedisStreamEmitter builds an emitter; maxLen <= 0 leaves the stream uncapped.
func NewRedisStreamEmitter(client *redis.Client, stream string, maxLen int64) *RedisStreamEmitter {
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisStreamEmitter{client: client, stream: stream, maxLen: maxLen}
}

// Emit implements Emitter.
func (e *RedisStreamEmitter) Emit(ctx context.Context, event Event) error {
	args := &redis.XAddArgs{
		Stream: e.stream,
		Values: map[string]any{
			"id":           event.ID,
			"kind":         string(event.Kind),
			"program":      event.Program.String(),
			"owner":        event.Owner.String(),
			"counterpart":  event.Counterpart.String(),
			"amount":       strconv.FormatUint(event.Amount, 10),
			"balance":      strconv.FormatUint(event.Balance, 10),
			"pooled_value": strconv.FormatUint(event.PooledValue, 10),
			"at":           event.At.UTC().Format(time.RFC3339Nano),
		},
	}
	if e.maxLen > 0 {
		args.MaxLen = e.maxLen
		args.Approx = true
	}
	if err := e.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", e.stream, err)
	}
	return nil
}
