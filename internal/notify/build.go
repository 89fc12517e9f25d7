package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/infodancer/mailroute/internal/config"
	"github.com/infodancer/mailroute/internal/metrics"
)

// NewTarget creates the target described by cfg.
func NewTarget(ctx context.Context, cfg config.NotifyTargetConfig) (Target, error) {
	name := cfg.DisplayName()
	switch cfg.Type {
	case config.TargetWebhook:
		return NewWebhookTarget(name, cfg.URL, cfg.Headers, nil), nil
	case config.TargetRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Address,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
		return NewRedisTarget(name, client, cfg.Channel, cfg.RedisMode()), nil
	case config.TargetSES:
		return NewSESTarget(ctx, SESConfig{
			Name:            name,
			Region:          cfg.Region,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			Sender:          cfg.Sender,
			Recipients:      cfg.Recipients,
		})
	case config.TargetTelegram:
		return NewTelegramTarget(name, cfg.URL, cfg.BotToken, cfg.ChatIDs, nil), nil
	default:
		return nil, fmt.Errorf("unknown notify target type %q", cfg.Type)
	}
}

// NewFromConfig builds a Dispatcher for every configured target. Targets
// already created are closed if a later one fails.
func NewFromConfig(ctx context.Context, cfg config.NotifyConfig, collector metrics.Collector, logger *slog.Logger) (*Dispatcher, error) {
	targets := make([]Target, 0, len(cfg.Targets))
	for i, tc := range cfg.Targets {
		t, err := NewTarget(ctx, tc)
		if err != nil {
			d := NewDispatcher(targets, 0, collector, logger)
			return nil, errors.Join(fmt.Errorf("notify target %d: %w", i, err), d.Close())
		}
		targets = append(targets, t)
	}
	return NewDispatcher(targets, cfg.TimeoutDuration(), collector, logger), nil
}
