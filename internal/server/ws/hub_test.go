package ws

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	cachemem "github.com/alanyoungcy/dscengine/internal/cache/memory"
	"github.com/alanyoungcy/dscengine/internal/domain"
)

func TestHubRelaysBusMessages(t *testing.T) {
	defer goleak.VerifyNone(t)

	bus := cachemem.NewSignalBus()
	hub := NewHub(bus, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{Mode: "Server"})
	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- hub.Run(ctx) }()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var status struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&status))
	assert.Equal(t, "status", status.Type)
	assert.Equal(t, "server", status.Payload["mode"])

	// The hub subscribes asynchronously, so keep publishing until a frame
	// arrives.
	stop := make(chan struct{})
	published := make(chan struct{})
	go func() {
		defer close(published)
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				_ = bus.Publish(context.Background(), domain.ChannelLiquidatable, []byte(`{"user":"0xabc"}`))
			}
		}
	}()

	var env Envelope
	require.NoError(t, conn.ReadJSON(&env))
	close(stop)
	<-published
	assert.Equal(t, domain.ChannelLiquidatable, env.Channel)
	assert.JSONEq(t, `{"user":"0xabc"}`, string(env.Data))

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-runDone)
}

func TestClientSubscriptions(t *testing.T) {
	c := &client{subs: map[string]bool{}}
	c.handleSubscription(subscribeMsg{Action: "subscribe", Channels: []string{"ch:events:*"}})

	assert.True(t, c.isSubscribed(domain.EventChannel(domain.EventCollateralDeposited)))
	assert.False(t, c.isSubscribed(domain.ChannelLiquidatable))

	c.handleSubscription(subscribeMsg{Action: "subscribe", Channels: []string{domain.ChannelLiquidatable}})
	assert.True(t, c.isSubscribed(domain.ChannelLiquidatable))

	c.handleSubscription(subscribeMsg{Action: "unsubscribe", Channels: []string{"ch:events:*"}})
	assert.False(t, c.isSubscribed(domain.EventChannel(domain.EventCollateralRedeemed)))
}
