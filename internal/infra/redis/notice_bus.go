package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"quiz-ranking-service/internal/app"
	"quiz-ranking-service/internal/logger"
)

// DefaultNoticeChannel carries operator notices between service instances.
const DefaultNoticeChannel = "quiz:operator"

// NoticeBus fans operator notices out over Redis pub/sub so the instance holding the
// operator connection delivers them, whichever instance completed the quiz.
type NoticeBus struct {
	client  *redis.Client
	channel string
	log     *logger.Logger
}

func NewNoticeBus(client *redis.Client, channel string, log *logger.Logger) *NoticeBus {
	if channel == "" {
		channel = DefaultNoticeChannel
	}
	if log == nil {
		log = logger.Nop()
	}
	return &NoticeBus{client: client, channel: channel, log: log.With("component", "notice_bus")}
}

func (b *NoticeBus) Publish(ctx context.Context, notice app.OperatorNotice) error {
	raw, err := json.Marshal(notice)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, raw).Err()
}

// StartForwarder subscribes to the channel and calls onNotice for every message until ctx ends.
func (b *NoticeBus) StartForwarder(ctx context.Context, onNotice func(app.OperatorNotice)) error {
	if onNotice == nil {
		return fmt.Errorf("onNotice callback required")
	}

	sub := b.client.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				var notice app.OperatorNotice
				if err := json.Unmarshal([]byte(m.Payload), &notice); err != nil {
					b.log.Warn("bad operator notice payload", "error", err)
					continue
				}
				onNotice(notice)
			}
		}
	}()
	return nil
}
