package notify

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/CodeMonkeyCybersecurity/crookedcart/internal/challenge"
	"github.com/CodeMonkeyCybersecurity/crookedcart/internal/config"
	"github.com/CodeMonkeyCybersecurity/crookedcart/internal/logger"
)

// RedisPublisher fans solve notifications out over pub/sub so
// scoreboards attached to other instances see them too. Best effort: a
// publish failure is logged, never surfaced.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	timeout func(context.Context) (context.Context, context.CancelFunc)
	log     *logger.Logger
}

func NewRedisPublisher(cfg config.RedisConfig, log *logger.Logger) *RedisPublisher {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	writeTimeout := cfg.WriteTimeout
	return &RedisPublisher{
		client:  client,
		channel: cfg.Channel,
		timeout: func(ctx context.Context) (context.Context, context.CancelFunc) {
			return context.WithTimeout(ctx, writeTimeout)
		},
		log: log.WithComponent("redis-notifier"),
	}
}

// ChallengeSolved implements challenge.Notifier.
func (p *RedisPublisher) ChallengeSolved(n challenge.Notification) {
	payload, err := json.Marshal(n)
	if err != nil {
		p.log.Errorw("Failed to marshal notification", "error", err, "challenge", n.Key)
		return
	}

	ctx, cancel := p.timeout(context.Background())
	defer cancel()

	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		p.log.Warnw("Failed to publish solve notification",
			"error", err,
			"challenge", n.Key,
			"channel", p.channel,
		)
	}
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
