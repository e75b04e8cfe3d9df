// Package notify publishes instance lifecycle events to Redis.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"yqhp/hookd/internal/hook"
	"yqhp/hookd/internal/model"
)

// Event types.
const (
	EventStarted  = "started"
	EventFinished = "finished"
)

// Event is the JSON payload published on the channel.
type Event struct {
	Type     string     `json:"type"`
	ID       string     `json:"id"`
	Hook     string     `json:"hook"`
	Running  bool       `json:"running"`
	Success  *bool      `json:"success,omitempty"`
	TimedOut *bool      `json:"timed_out,omitempty"`
	Started  time.Time  `json:"started"`
	Finished *time.Time `json:"finished,omitempty"`
}

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// Publisher sends events to a Redis channel and keeps the latest finished
// event of every hook under "<channel>:last:<hook>". It implements hook.Observer.
type Publisher struct {
	hook.NopObserver

	client  *redis.Client
	channel string
	log     *zap.Logger
}

var _ hook.Observer = (*Publisher)(nil)

// New connects to Redis and verifies the connection with PING.
func New(ctx context.Context, opts Options, log *zap.Logger) (*Publisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", opts.Addr, err)
	}

	return &Publisher{
		client:  client,
		channel: opts.Channel,
		log:     log.Named("notify"),
	}, nil
}

// Channel returns the channel events are published on.
func (p *Publisher) Channel() string {
	return p.channel
}

// LastKey is the key holding the latest finished event of hookName.
func (p *Publisher) LastKey(hookName string) string {
	return p.channel + ":last:" + hookName
}

// InstanceStarted implements hook.Observer.
func (p *Publisher) InstanceStarted(ctx context.Context, id uuid.UUID, hookName string, info *model.Info) error {
	_, err := p.publish(ctx, newEvent(EventStarted, id, hookName, info))
	return err
}

// InstanceFinished implements hook.Observer.
func (p *Publisher) InstanceFinished(ctx context.Context, id uuid.UUID, hookName string, info *model.Info) error {
	payload, err := p.publish(ctx, newEvent(EventFinished, id, hookName, info))
	if err != nil {
		return err
	}
	if err := p.client.Set(ctx, p.LastKey(hookName), payload, 0).Err(); err != nil {
		return fmt.Errorf("store last event: %w", err)
	}
	return nil
}

func (p *Publisher) publish(ctx context.Context, ev Event) ([]byte, error) {
	payload, err := sonic.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	receivers, err := p.client.Publish(ctx, p.channel, payload).Result()
	if err != nil {
		return nil, fmt.Errorf("publish %s event: %w", ev.Type, err)
	}
	p.log.Debug("event published",
		zap.String("type", ev.Type),
		zap.String("id", ev.ID),
		zap.Int64("receivers", receivers),
	)
	return payload, nil
}

// Close closes the Redis connection.
func (p *Publisher) Close() error {
	return p.client.Close()
}

func newEvent(typ string, id uuid.UUID, hookName string, info *model.Info) Event {
	return Event{
		Type:     typ,
		ID:       id.String(),
		Hook:     hookName,
		Running:  info.Running,
		Success:  info.Success,
		TimedOut: info.TimedOut,
		Started:  info.Started,
		Finished: info.Finished,
	}
}
