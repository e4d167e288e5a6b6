package raceevents

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const channelPrefix = "dles:race:"

// RedisBroker fans events out across server instances through Redis
// pub/sub, one channel per race.
type RedisBroker struct {
	client *redis.Client
	logger *zap.Logger
}

// ConnectRedis parses url, pings the server and returns a broker.
func ConnectRedis(ctx context.Context, url string, logger *zap.Logger) (*RedisBroker, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", opts.Addr, err)
	}
	return NewRedisBroker(client, logger), nil
}

func NewRedisBroker(client *redis.Client, logger *zap.Logger) *RedisBroker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisBroker{client: client, logger: logger}
}

func channelFor(raceID string) string {
	return channelPrefix + raceID
}

func (b *RedisBroker) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal race event: %w", err)
	}
	if err := b.client.Publish(ctx, channelFor(event.RaceID), data).Err(); err != nil {
		return fmt.Errorf("publish race event: %w", err)
	}
	return nil
}

func (b *RedisBroker) Subscribe(ctx context.Context, raceID string) (<-chan Event, func(), error) {
	pubsub := b.client.Subscribe(ctx, channelFor(raceID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("subscribe race %s: %w", raceID, err)
	}

	out := make(chan Event, subscriberBuffer)
	done := make(chan struct{})
	go func() {
		defer close(out)
		messages := pubsub.Channel()
		for {
			select {
			case <-done:
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var event Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					b.logger.Warn("dropping malformed race event", zap.String("race_id", raceID), zap.Error(err))
					continue
				}
				select {
				case out <- event:
				default:
				}
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = pubsub.Close()
		})
	}
	return out, cancel, nil
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}
