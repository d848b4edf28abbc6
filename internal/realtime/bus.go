package realtime

import (
	"context"
	"encoding/json"
	"learnbridge_backend/pkg/logger"
	"sync"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Bus 在实例之间分发 Envelope
type Bus interface {
	Publish(ctx context.Context, env Envelope) error
	Subscribe(ctx context.Context, handler func(Envelope)) error
	Close() error
}

// LocalBus 单进程总线，Publish 同步调用订阅者
type LocalBus struct {
	mu       sync.RWMutex
	handlers []func(Envelope)
}

func NewLocalBus() *LocalBus {
	return &LocalBus{}
}

func (b *LocalBus) Publish(ctx context.Context, env Envelope) error {
	b.mu.RLock()
	handlers := make([]func(Envelope), len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, h := range handlers {
		h(env)
	}
	return nil
}

func (b *LocalBus) Subscribe(ctx context.Context, handler func(Envelope)) error {
	b.mu.Lock()
	b.handlers = append(b.handlers, handler)
	b.mu.Unlock()
	return nil
}

func (b *LocalBus) Close() error {
	b.mu.Lock()
	b.handlers = nil
	b.mu.Unlock()
	return nil
}

// RedisBus 通过 Redis Pub/Sub 在多实例之间广播
type RedisBus struct {
	rdb     *redis.Client
	channel string
	pubsub  *redis.PubSub
}

func NewRedisBus(rdb *redis.Client, channel string) *RedisBus {
	return &RedisBus{rdb: rdb, channel: channel}
}

func (b *RedisBus) Publish(ctx context.Context, env Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, payload).Err()
}

func (b *RedisBus) Subscribe(ctx context.Context, handler func(Envelope)) error {
	b.pubsub = b.rdb.Subscribe(ctx, b.channel)
	// 等待订阅确认，连接失败时直接返回错误
	if _, err := b.pubsub.Receive(ctx); err != nil {
		b.pubsub.Close()
		b.pubsub = nil
		return err
	}

	go func() {
		for msg := range b.pubsub.Channel() {
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				logger.Log.Error("Realtime bus unmarshal error", zap.Error(err))
				continue
			}
			handler(env)
		}
	}()
	return nil
}

func (b *RedisBus) Close() error {
	if b.pubsub == nil {
		return nil
	}
	return b.pubsub.Close()
}
