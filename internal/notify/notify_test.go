package notify

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"yqhp/hookd/internal/model"
)

func setupPublisher(t *testing.T) (*Publisher, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	p, err := New(context.Background(), Options{Addr: mr.Addr(), Channel: "hookd:events"}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p, mr
}

func TestNewFailsWhenUnreachable(t *testing.T) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	addr := mr.Addr()
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := New(ctx, Options{Addr: addr, Channel: "x"}, zap.NewNop())
	assert.Error(t, err)
}

func TestPublishesLifecycle(t *testing.T) {
	p, mr := setupPublisher(t)
	ctx := context.Background()

	sub := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer sub.Close()
	pubsub := sub.Subscribe(ctx, p.Channel())
	defer pubsub.Close()
	_, err := pubsub.Receive(ctx)
	require.NoError(t, err)
	ch := pubsub.Channel()

	id := uuid.New()
	info := &model.Info{Running: true, Started: time.Now().UTC()}
	require.NoError(t, p.InstanceStarted(ctx, id, "deploy", info))

	info.Finish(true, false, info.Started.Add(time.Second))
	require.NoError(t, p.InstanceFinished(ctx, id, "deploy", info))

	var events []Event
	for len(events) < 2 {
		select {
		case msg := <-ch:
			var ev Event
			require.NoError(t, sonic.UnmarshalString(msg.Payload, &ev))
			events = append(events, ev)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for events")
		}
	}

	assert.Equal(t, EventStarted, events[0].Type)
	assert.True(t, events[0].Running)
	assert.Nil(t, events[0].Success)
	assert.Equal(t, id.String(), events[0].ID)

	assert.Equal(t, EventFinished, events[1].Type)
	assert.False(t, events[1].Running)
	require.NotNil(t, events[1].Success)
	assert.True(t, *events[1].Success)
	assert.Equal(t, "deploy", events[1].Hook)

	last, err := mr.Get(p.LastKey("deploy"))
	require.NoError(t, err)
	assert.Contains(t, last, id.String())
}

func TestPublishFailsAfterClose(t *testing.T) {
	p, mr := setupPublisher(t)
	mr.Close()

	err := p.InstanceStarted(context.Background(), uuid.New(), "x", &model.Info{Running: true})
	assert.Error(t, err)
}
