package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"IgniteX/pkg/logger"
)

func TestDecodeFrame(t *testing.T) {
	ticks, err := decodeFrame([]byte(`{"type":"tick","data":[
		{"symbol":"btcusdt","price":64000,"volume":0.5,"ts":1714564800},
		{"symbol":"ETHUSDT","price":3000,"volume":2,"ts":1714564800500,"source":"okx"}
	]}`), "aggregator")
	require.NoError(t, err)
	require.Len(t, ticks, 2)
	assert.Equal(t, "BTCUSDT", ticks[0].Symbol)
	assert.Equal(t, int64(1714564800000), ticks[0].TimestampMs)
	assert.Equal(t, "aggregator", ticks[0].SourceID)
	assert.Equal(t, "okx", ticks[1].SourceID)

	ticks, err = decodeFrame([]byte(`{"type":"heartbeat"}`), "aggregator")
	require.NoError(t, err)
	assert.Empty(t, ticks)

	_, err = decodeFrame([]byte(`not json`), "aggregator")
	assert.Error(t, err)
}

func TestClientStreamsTicks(t *testing.T) {
	upgrader := websocket.Upgrader{}
	subscribed := make(chan subscribeMessage, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var sub subscribeMessage
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		subscribed <- sub
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"trade","data":[{"symbol":"BTCUSDT","price":64000,"volume":1,"ts":1714564800000}]}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	c := New(url, "ws-feed", []string{"BTCUSDT"}, 10*time.Millisecond, time.Minute, logger.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.Error(t, c.Subscribe(ctx), "subscribe needs a connection")
	require.NoError(t, c.Connect(ctx))
	require.NoError(t, c.Subscribe(ctx))
	assert.True(t, c.IsConnected())

	select {
	case sub := <-subscribed:
		assert.Equal(t, "subscribe", sub.Type)
		assert.Equal(t, []string{"BTCUSDT"}, sub.Symbols)
	case <-time.After(2 * time.Second):
		t.Fatal("no subscribe message")
	}

	ticks, _ := c.Read(ctx)
	select {
	case tk := <-ticks:
		assert.Equal(t, "BTCUSDT", tk.Symbol)
		assert.Equal(t, 64000.0, tk.Price)
		assert.Equal(t, "ws-feed", tk.SourceID)
	case <-time.After(2 * time.Second):
		t.Fatal("no tick received")
	}

	require.NoError(t, c.Close())
	assert.False(t, c.IsConnected())
}
