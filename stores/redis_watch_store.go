package stores

import (
	"context"

	"github.com/oarkflow/permit"
	"github.com/redis/go-redis/v9"
)

const defaultWatchChannel = "permit:policy-changed"

// RedisWatchStore wraps a TupleStore and fans mutation signals out through
// a Redis pub/sub channel, so every node sharing the store reloads its
// snapshot on a change made anywhere.
type RedisWatchStore struct {
	inner   permit.TupleStore
	client  *redis.Client
	channel string
}

func NewRedisWatchStore(inner permit.TupleStore, client *redis.Client) *RedisWatchStore {
	return &RedisWatchStore{inner: inner, client: client, channel: defaultWatchChannel}
}

// WithChannel overrides the pub/sub channel name.
func (s *RedisWatchStore) WithChannel(channel string) *RedisWatchStore {
	if channel != "" {
		s.channel = channel
	}
	return s
}

func (s *RedisWatchStore) LoadAll(ctx context.Context) ([]permit.Tuple, error) {
	return s.inner.LoadAll(ctx)
}

func (s *RedisWatchStore) AddTuple(ctx context.Context, t permit.Tuple) error {
	if err := s.inner.AddTuple(ctx, t); err != nil {
		return err
	}
	return s.client.Publish(ctx, s.channel, t.Key()).Err()
}

func (s *RedisWatchStore) RemoveTuple(ctx context.Context, t permit.Tuple) error {
	if err := s.inner.RemoveTuple(ctx, t); err != nil {
		return err
	}
	return s.client.Publish(ctx, s.channel, t.Key()).Err()
}

// Watch subscribes to the pub/sub channel. The payload is ignored: a signal
// only tells the loader to re-read the full tuple set.
func (s *RedisWatchStore) Watch(ctx context.Context) (<-chan struct{}, error) {
	sub := s.client.Subscribe(ctx, s.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}
	ch := make(chan struct{}, 1)
	go func() {
		defer close(ch)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case ch <- struct{}{}:
				default:
				}
			}
		}
	}()
	return ch, nil
}
