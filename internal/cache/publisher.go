package cache

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"recon-rules/internal/config"
	"recon-rules/internal/models"
)

// EventPublisher publishes rule-applied notifications to a Redis channel so
// audit and notification surfaces can react without polling
type EventPublisher struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(client *redis.Client, cfg *config.Config, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{
		client:  client,
		channel: cfg.Redis.RuleAppliedChannel,
		logger:  logger,
	}
}

// RuleApplied publishes one committed classification. Publish failures are
// logged and swallowed: notification is best-effort and must never fail a
// line that already persisted.
func (p *EventPublisher) RuleApplied(ctx context.Context, event models.RuleAppliedEvent) {
	p.logger.Info("rule applied",
		zap.String("rule_id", event.RuleID),
		zap.String("line_id", event.LineID),
		zap.String("origin", string(event.Origin)),
		zap.String("summary", event.Summary))

	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("failed to marshal rule-applied event", zap.Error(err))
		return
	}

	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		p.logger.Warn("failed to publish rule-applied event",
			zap.Error(err),
			zap.String("channel", p.channel))
	}
}

// Channel returns the configured notification channel name
func (p *EventPublisher) Channel() string {
	return p.channel
}
