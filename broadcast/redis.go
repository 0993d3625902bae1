package broadcast

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wfunc/battleserver/config"
)

// RedisMirror stores the latest directory snapshot under Key and announces it
// on Channel, for the external HTTP listing service.
type RedisMirror struct {
	client  *redis.Client
	key     string
	channel string
	ttl     time.Duration
}

// NewRedisMirror connects to cfg.URL and checks the connection.
func NewRedisMirror(cfg config.RedisConfig) (*RedisMirror, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return NewRedisMirrorWithClient(client, cfg), nil
}

// NewRedisMirrorWithClient wraps an existing client (for testing)
func NewRedisMirrorWithClient(client *redis.Client, cfg config.RedisConfig) *RedisMirror {
	return &RedisMirror{
		client:  client,
		key:     cfg.Key,
		channel: cfg.Channel,
		ttl:     cfg.TTL,
	}
}

func (m *RedisMirror) Publish(ctx context.Context, payload []byte) error {
	_, err := m.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, m.key, payload, m.ttl)
		pipe.Publish(ctx, m.channel, payload)
		return nil
	})
	return err
}

func (m *RedisMirror) Close() error {
	return m.client.Close()
}
