package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Redis delivery modes.
const (
	ModePublish = "publish"
	ModeList    = "list"
)

// RedisTarget publishes notifications to a channel or pushes them onto a
// list for a worker to consume.
type RedisTarget struct {
	name    string
	client  *redis.Client
	channel string
	mode    string
}

// NewRedisTarget creates a RedisTarget that owns client.
func NewRedisTarget(name string, client *redis.Client, channel, mode string) *RedisTarget {
	if mode == "" {
		mode = ModePublish
	}
	return &RedisTarget{name: name, client: client, channel: channel, mode: mode}
}

// Name returns the target name.
func (r *RedisTarget) Name() string {
	return r.name
}

// Notify sends n as JSON.
func (r *RedisTarget) Notify(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	switch r.mode {
	case ModeList:
		err = r.client.LPush(ctx, r.channel, payload).Err()
	default:
		err = r.client.Publish(ctx, r.channel, payload).Err()
	}
	if err != nil {
		return fmt.Errorf("redis %s to %s failed: %w", r.mode, r.channel, err)
	}
	return nil
}

// Close closes the underlying client.
func (r *RedisTarget) Close() error {
	return r.client.Close()
}
