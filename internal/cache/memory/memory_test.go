package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/dscengine/internal/domain"
)

func TestLockManager(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	lm := NewLockManager()
	lm.now = func() time.Time { return now }

	unlock, err := lm.Acquire(ctx, domain.LockEngine, time.Second)
	require.NoError(t, err)

	_, err = lm.Acquire(ctx, domain.LockEngine, time.Second)
	require.ErrorIs(t, err, domain.ErrLockHeld)

	unlock()
	unlock()
	unlock2, err := lm.Acquire(ctx, domain.LockEngine, time.Second)
	require.NoError(t, err)

	now = now.Add(2 * time.Second)
	_, err = lm.Acquire(ctx, domain.LockEngine, time.Second)
	require.NoError(t, err, "expired lease can be taken over")

	unlock2()
	_, err = lm.Acquire(ctx, domain.LockEngine, time.Second)
	require.ErrorIs(t, err, domain.ErrLockHeld, "a stale unlock does not release the new holder")
}

func TestSignalBusPatternSubscribe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus := NewSignalBus()

	all, err := bus.Subscribe(ctx, domain.ChannelEventsPrefix+"*")
	require.NoError(t, err)
	liq, err := bus.Subscribe(ctx, domain.ChannelLiquidatable)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, domain.EventChannel(domain.EventCollateralDeposited), []byte("dep")))
	require.NoError(t, bus.Publish(ctx, domain.ChannelLiquidatable, []byte("liq")))

	assert.Equal(t, []byte("dep"), <-all)
	assert.Equal(t, []byte("liq"), <-liq)
	select {
	case msg := <-all:
		t.Fatalf("unexpected message %q", msg)
	default:
	}

	cancel()
	_, open := <-all
	for open {
		_, open = <-all
	}
}

func TestSignalBusStream(t *testing.T) {
	ctx := context.Background()
	bus := NewSignalBus()
	for _, p := range []string{"a", "b", "c"} {
		require.NoError(t, bus.StreamAppend(ctx, domain.StreamEngineEvents, []byte(p)))
	}

	first, err := bus.StreamRead(ctx, domain.StreamEngineEvents, "0", 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, []byte("a"), first[0].Payload)

	rest, err := bus.StreamRead(ctx, domain.StreamEngineEvents, first[1].ID, 10)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, []byte("c"), rest[0].Payload)

	none, err := bus.StreamRead(ctx, domain.StreamEngineEvents, "$", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRateLimiterAllow(t *testing.T) {
	ctx := context.Background()
	rl := NewRateLimiter(1, time.Second)

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, "ip:1", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := rl.Allow(ctx, "ip:1", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = rl.Allow(ctx, "ip:2", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "keys are independent")

	_, err = rl.Allow(ctx, "ip:3", 0, time.Minute)
	require.Error(t, err)
}

func TestRateLimiterWaitHonoursContext(t *testing.T) {
	rl := NewRateLimiter(1, time.Hour)
	require.NoError(t, rl.Wait(context.Background(), "k"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.Error(t, rl.Wait(ctx, "k"))
}
