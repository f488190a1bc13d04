package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"IgniteX/internal/domain/models"
	drepo "IgniteX/internal/domain/repository"
	"IgniteX/pkg/logger"
	"IgniteX/pkg/util"
)

// Client is a MarketStream over the aggregator websocket.
type Client struct {
	url            string
	sourceID       string
	symbols        []string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	log            *logger.Logger

	mu        sync.Mutex // guards conn and serializes writes
	conn      *websocket.Conn
	connected atomic.Bool
}

func New(url, sourceID string, symbols []string, reconnectDelay, pingInterval time.Duration, log *logger.Logger) *Client {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &Client{
		url:            url,
		sourceID:       sourceID,
		symbols:        symbols,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		log:            log.With(logger.String("source", sourceID)),
	}
}

func (c *Client) SourceID() string { return c.sourceID }

func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("feed connect: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.connected.Store(true)
	c.log.Info("feed connected", logger.String("url", c.url))
	return nil
}

type subscribeMessage struct {
	Type    string   `json:"type"`
	Symbols []string `json:"symbols"`
}

func (c *Client) Subscribe(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || !c.connected.Load() {
		return fmt.Errorf("feed not connected")
	}
	if err := c.conn.WriteJSON(subscribeMessage{Type: "subscribe", Symbols: c.symbols}); err != nil {
		return fmt.Errorf("feed subscribe: %w", err)
	}
	c.log.Info("feed subscribed", logger.Strings("symbols", c.symbols))
	return nil
}

type wireTick struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	Volume float64 `json:"volume"`
	TS     int64   `json:"ts"` // ms
	Source string  `json:"source"`
}

type wireMessage struct {
	Type string     `json:"type"`
	Data []wireTick `json:"data"`
}

// decodeFrame returns the ticks carried by one frame. Non-tick frames yield none.
func decodeFrame(b []byte, defaultSource string) ([]models.Tick, error) {
	var m wireMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	if m.Type != "tick" && m.Type != "trade" {
		return nil, nil
	}
	out := make([]models.Tick, 0, len(m.Data))
	for _, d := range m.Data {
		src := d.Source
		if src == "" {
			src = defaultSource
		}
		out = append(out, models.Tick{Symbol: util.NormalizeSymbol(d.Symbol), Price: d.Price, Volume: d.Volume, TimestampMs: util.EpochMillis(d.TS), SourceID: src})
	}
	return out, nil
}

// Read streams ticks until the connection fails or ctx ends. Both channels
// close when the read loop exits; call Reconnect and Read again after an error.
func (c *Client) Read(ctx context.Context) (<-chan models.Tick, <-chan error) {
	ticks := make(chan models.Tick, 1024)
	errs := make(chan error, 1)
	done := make(chan struct{})

	go func() {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				c.mu.Lock()
				if c.conn != nil {
					_ = c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
				}
				c.mu.Unlock()
			}
		}
	}()

	go func() {
		defer close(done)
		defer close(ticks)
		defer close(errs)
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			errs <- fmt.Errorf("feed not connected")
			return
		}
		for {
			if ctx.Err() != nil {
				return
			}
			_, b, err := conn.ReadMessage()
			if err != nil {
				c.connected.Store(false)
				if ctx.Err() == nil {
					errs <- fmt.Errorf("feed read: %w", err)
				}
				return
			}
			batch, err := decodeFrame(b, c.sourceID)
			if err != nil {
				c.log.Debug("feed frame ignored", logger.Error(err))
				continue
			}
			for _, t := range batch {
				select {
				case ticks <- t:
				case <-ctx.Done():
					return
				default:
					c.log.Debug("feed tick dropped on backpressure", logger.String("symbol", t.Symbol))
				}
			}
		}
	}()
	return ticks, errs
}

// Reconnect closes, waits reconnectDelay and dials again.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()
	select {
	case <-time.After(c.reconnectDelay):
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.Subscribe(ctx)
}

func (c *Client) Close() error {
	c.connected.Store(false)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *Client) IsConnected() bool { return c.connected.Load() }

var _ drepo.MarketStream = (*Client)(nil)
