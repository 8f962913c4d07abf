package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"phone-resale/internal/core"
	"phone-resale/internal/logging"
)

// Connect opens a Redis client and pings it once.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	if addr == "" {
		return nil, fmt.Errorf("redis address is empty")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		PoolSize: 20,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to reach redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// RedisNotifier publishes notifications as JSON on a pub/sub channel.
type RedisNotifier struct {
	rdb     redis.UniversalClient
	channel string
}

func NewRedisNotifier(rdb redis.UniversalClient, channel string) *RedisNotifier {
	return &RedisNotifier{rdb: rdb, channel: channel}
}

func (n *RedisNotifier) Notify(ctx context.Context, msg core.Notification) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}
	if err := n.rdb.Publish(ctx, n.channel, body).Err(); err != nil {
		return fmt.Errorf("failed to publish notification to %s: %w", n.channel, err)
	}
	return nil
}

type loggedNotifier struct {
	next   core.Notifier
	logger logrus.FieldLogger
}

// Logged wraps next so that every delivery is logged and failures never reach
// the caller.
func Logged(next core.Notifier, logger logrus.FieldLogger) core.Notifier {
	if next == nil {
		next = core.NopNotifier()
	}
	return &loggedNotifier{next: next, logger: logger}
}

func (l *loggedNotifier) Notify(ctx context.Context, msg core.Notification) error {
	if err := l.next.Notify(ctx, msg); err != nil {
		logging.LogError(l.logger, "notify", "Notify", string(msg.Kind), msg, err)
		return nil
	}
	l.logger.WithFields(logrus.Fields{"kind": msg.Kind, "ref": msg.Ref}).Info("notification sent")
	return nil
}
