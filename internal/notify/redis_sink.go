package notify

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// StreamKey is the redis stream call notifications are appended to.
const StreamKey = "call-events"

// maxStreamLen bounds the stream with approximate trimming.
const maxStreamLen = 10000

// RedisSink appends events to a redis stream so external consumers (bots,
// dashboards) can tail call progress.
type RedisSink struct {
	rdb *redis.Client
}

func NewRedisSink(rdb *redis.Client) *RedisSink {
	return &RedisSink{rdb: rdb}
}

func (s *RedisSink) Deliver(ctx context.Context, e Event) error {
	return s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey,
		MaxLen: maxStreamLen,
		Approx: true,
		Values: map[string]any{
			"call_id": e.CallID,
			"kind":    e.Kind,
			"text":    e.Text,
			"at":      e.At.Format("2006-01-02T15:04:05.000Z07:00"),
		},
	}).Err()
}
