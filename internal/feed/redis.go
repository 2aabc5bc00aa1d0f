package feed

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const channelPrefix = "monochat:changes:"

// RedisFeed fans out change signals over Redis pub/sub. Writers must call
// Notify after every successful write.
type RedisFeed struct {
	rdb *redis.Client
}

// NewRedisFeed returns a feed using rdb.
func NewRedisFeed(rdb *redis.Client) *RedisFeed {
	return &RedisFeed{rdb: rdb}
}

// Changes subscribes to the key's channel. It returns only once the
// subscription is confirmed so a write right after the caller's initial
// query is not missed.
func (f *RedisFeed) Changes(ctx context.Context, key string) (<-chan Signal, error) {
	sub := f.rdb.Subscribe(ctx, channelPrefix+key)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", key, err)
	}

	msgs := sub.Channel()
	out := make(chan Signal, 1)
	go func() {
		defer close(out)
		defer sub.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-msgs:
				if !ok {
					fail(ctx, out, fmt.Errorf("subscription %s closed", key))
					return
				}
				signal(out)
			}
		}
	}()
	return out, nil
}

// Notify publishes one message per key.
func (f *RedisFeed) Notify(ctx context.Context, keys ...string) error {
	pipe := f.rdb.Pipeline()
	for _, k := range keys {
		pipe.Publish(ctx, channelPrefix+k, "1")
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish changes: %w", err)
	}
	return nil
}
