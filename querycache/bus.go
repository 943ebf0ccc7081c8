package querycache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Bus carries invalidations between service instances over Redis pub/sub.
// Messages published by this instance are ignored on receipt.
type Bus struct {
	client  *redis.Client
	channel string
	origin  string
	log     *zap.Logger

	readyOnce sync.Once
	ready     chan struct{}
}

type busMessage struct {
	Origin string `json:"origin"`
	Invalidation
}

func NewBus(client *redis.Client, channel string, log *zap.Logger) *Bus {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{
		client:  client,
		channel: channel,
		origin:  uuid.NewString(),
		log:     log,
		ready:   make(chan struct{}),
	}
}

// Publish implements Publisher.
func (b *Bus) Publish(ctx context.Context, inv Invalidation) error {
	payload, err := json.Marshal(busMessage{Origin: b.origin, Invalidation: inv})
	if err != nil {
		return fmt.Errorf("marshal invalidation: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish invalidation: %w", err)
	}
	return nil
}

// Ready is closed once Run has subscribed.
func (b *Bus) Ready() <-chan struct{} { return b.ready }

// Run applies invalidations from other instances to c until ctx is done.
func (b *Bus) Run(ctx context.Context, c *Cache) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	b.readyOnce.Do(func() { close(b.ready) })
	b.log.Info("cache invalidation bus subscribed", zap.String("channel", b.channel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.handle(c, []byte(msg.Payload))
		}
	}
}

// handle reports whether the payload was applied.
func (b *Bus) handle(c *Cache, payload []byte) bool {
	var m busMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		b.log.Warn("bad invalidation message", zap.Error(err))
		return false
	}
	if m.Origin == b.origin || m.Kind == "" {
		return false
	}
	c.Apply(m.Invalidation)
	return true
}
