package publish

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scadalink/internal/model"
)

type fakeValkeyClient struct {
	mu       sync.Mutex
	channels []string
	failNext bool
}

func (c *fakeValkeyClient) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failNext {
		c.failNext = false
		cmd.SetErr(assertErr)
		return cmd
	}
	c.channels = append(c.channels, channel)
	cmd.SetVal(1)
	return cmd
}

func (c *fakeValkeyClient) Close() error { return nil }

func (c *fakeValkeyClient) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.channels)
}

func TestValkeySink_PublishesOneChannelPerTag(t *testing.T) {
	client := &fakeValkeyClient{}
	sink := NewValkeySink(client, NewNamespace("scada"))

	ch := make(chan model.PollingSample, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sink.Run(ctx, ch)

	ch <- model.PollingSample{
		PLCCode: "P1",
		Values:  map[string]model.Value{"D100": model.Int(5), "D101": model.Int(9)},
	}

	require.Eventually(t, func() bool { return client.count() == 2 }, time.Second, 5*time.Millisecond)

	client.mu.Lock()
	defer client.mu.Unlock()
	assert.Contains(t, client.channels, "scada:P1:D100")
	assert.Contains(t, client.channels, "scada:P1:D101")
}

func TestValkeySink_CountsPublishErrors(t *testing.T) {
	client := &fakeValkeyClient{failNext: true}
	sink := NewValkeySink(client, NewNamespace("scada"))

	ch := make(chan model.PollingSample, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sink.Run(ctx, ch)

	ch <- model.PollingSample{PLCCode: "P1", Values: map[string]model.Value{"D100": model.Int(5)}}

	require.Eventually(t, func() bool {
		_, errs := sink.Stats()
		return errs == 1
	}, time.Second, 5*time.Millisecond)
}
