package sensorhub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"Floramigo/internal/domain/models"
	drepo "Floramigo/internal/domain/repository"
	applogger "Floramigo/pkg/logger"
	"Floramigo/pkg/util"

	"github.com/gorilla/websocket"
)

// Client polls a sensor hub over WebSocket. Every poll interval it asks
// the hub for a reading frame and turns each reply into a Snapshot.
type Client struct {
	url            string
	fields         []string
	pollInterval   time.Duration
	reconnectDelay time.Duration
	pingInterval   time.Duration
	log            *applogger.Logger
	now            func() time.Time

	writeMu   sync.Mutex
	conn      *websocket.Conn
	connected atomic.Bool
}

type Config struct {
	URL            string
	Fields         []string
	PollInterval   time.Duration
	ReconnectDelay time.Duration
	PingInterval   time.Duration
}

// New creates a sensor hub ReadingSource.
func New(cfg Config, log *applogger.Logger) drepo.ReadingSource {
	if log == nil {
		log = applogger.Nop()
	}
	return &Client{
		url:            cfg.URL,
		fields:         cfg.Fields,
		pollInterval:   cfg.PollInterval,
		reconnectDelay: cfg.ReconnectDelay,
		pingInterval:   cfg.PingInterval,
		log:            log.With(applogger.String("component", "sensorhub")),
		now:            time.Now,
	}
}

type frame struct {
	Type     string             `json:"type"`
	Fields   []string           `json:"fields,omitempty"`
	TS       json.RawMessage    `json:"ts,omitempty"`
	Readings map[string]float64 `json:"readings,omitempty"`
}

// Connect dials the hub and subscribes to the configured fields.
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("sensorhub connect: %w", err)
	}
	c.writeMu.Lock()
	c.conn = conn
	c.writeMu.Unlock()
	if err := c.write(frame{Type: "subscribe", Fields: c.fields}); err != nil {
		_ = conn.Close()
		return fmt.Errorf("sensorhub subscribe: %w", err)
	}
	c.connected.Store(true)
	c.log.Info("connected", applogger.String("url", c.url), applogger.Strings("fields", c.fields))
	return nil
}

// Read starts the poll, ping and read loops. Both channels close when the
// connection fails or ctx ends; call Reconnect and Read again after an error.
func (c *Client) Read(ctx context.Context) (<-chan *models.Snapshot, <-chan error) {
	out := make(chan *models.Snapshot, 16)
	errs := make(chan error, 1)
	ctx, cancel := context.WithCancel(ctx)
	c.writeMu.Lock()
	conn := c.conn
	c.writeMu.Unlock()

	go c.every(ctx, c.pollInterval, func() error { return c.write(frame{Type: "poll"}) })
	go c.every(ctx, c.pingInterval, func() error { return c.writeControl(websocket.PingMessage) })

	go func() {
		defer cancel()
		defer close(out)
		defer close(errs)
		if conn == nil {
			errs <- fmt.Errorf("sensorhub not connected")
			return
		}
		// unblock ReadMessage on cancellation
		go func() {
			<-ctx.Done()
			_ = conn.SetReadDeadline(time.Now())
		}()
		for {
			_, b, err := conn.ReadMessage()
			if err != nil {
				c.connected.Store(false)
				if ctx.Err() == nil {
					errs <- fmt.Errorf("sensorhub read: %w", err)
				}
				return
			}
			snap, ok := c.decode(b)
			if !ok {
				continue
			}
			select {
			case out <- snap:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, errs
}

func (c *Client) decode(b []byte) (*models.Snapshot, bool) {
	var f frame
	if err := json.Unmarshal(b, &f); err != nil {
		c.log.Debug("ignoring malformed frame", applogger.Error(err))
		return nil, false
	}
	if f.Type != "reading" {
		return nil, false
	}
	ts := c.now()
	if raw := string(bytes.Trim(f.TS, `"`)); raw != "" {
		if parsed, ok := util.ParseTime(raw); ok {
			ts = parsed
		}
	}
	readings := f.Readings
	if readings == nil {
		readings = map[string]float64{}
	}
	return &models.Snapshot{Timestamp: ts.UTC(), Readings: readings}, true
}

func (c *Client) every(ctx context.Context, d time.Duration, fn func() error) {
	if d <= 0 {
		return
	}
	ticker := time.NewTicker(d)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := fn(); err != nil {
				c.log.Debug("sensorhub write failed", applogger.Error(err))
			}
		}
	}
}

func (c *Client) write(f frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("sensorhub not connected")
	}
	return c.conn.WriteJSON(f)
}

func (c *Client) writeControl(messageType int) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("sensorhub not connected")
	}
	return c.conn.WriteControl(messageType, nil, time.Now().Add(5*time.Second))
}

// Reconnect closes the connection, waits the reconnect delay and dials again.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()
	t := time.NewTimer(c.reconnectDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
	}
	return c.Connect(ctx)
}

// Close closes the WS connection.
func (c *Client) Close() error {
	c.connected.Store(false)
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

func (c *Client) IsConnected() bool { return c.connected.Load() }
