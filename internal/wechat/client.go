package wechat

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client is the websocket connection to the WeChat sidecar. Incoming
// events are pushed to a channel; outbound sends are serialized with a
// write mutex, as gorilla/websocket allows only one concurrent writer.
type Client struct {
	url        string
	retries    int
	retryDelay time.Duration
	logger     *slog.Logger

	conn    *websocket.Conn
	writeMu sync.Mutex

	events chan *Event
	done   chan struct{}
}

// NewClient creates a sidecar client for the given websocket URL.
func NewClient(url string, retries int, retryDelay time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		url:        url,
		retries:    retries,
		retryDelay: retryDelay,
		logger:     logger.With("component", "wechat"),
		events:     make(chan *Event, 64),
		done:       make(chan struct{}),
	}
}

// Connect dials the sidecar, retrying up to the configured count with
// the configured delay between attempts.
func (c *Client) Connect(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= c.retries; attempt++ {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
		if err == nil {
			c.conn = conn
			c.logger.Info("connected to wechat sidecar", "url", c.url, "attempt", attempt)
			return nil
		}
		lastErr = err
		c.logger.Warn("sidecar connection failed",
			"url", c.url, "attempt", attempt, "of", c.retries, "error", err)

		if attempt < c.retries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}
	}
	return fmt.Errorf("connect to wechat sidecar after %d attempts: %w", c.retries, lastErr)
}

// Start begins reading sidecar events. Call after Connect.
func (c *Client) Start(ctx context.Context) {
	go c.readLoop(ctx)
}

func (c *Client) readLoop(ctx context.Context) {
	defer close(c.done)
	defer close(c.events)

	for {
		var ev Event
		if err := c.conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("sidecar read failed, stopping", "error", err)
			return
		}

		select {
		case c.events <- &ev:
		case <-ctx.Done():
			return
		default:
			c.logger.Warn("event channel full, dropping event", "type", ev.Type)
		}
	}
}

// Events returns the inbound event channel. It is closed when the
// connection drops.
func (c *Client) Events() <-chan *Event {
	return c.events
}

// SendText sends a plain-text message to a conversation.
func (c *Client) SendText(conversationID, content string) error {
	if c.conn == nil {
		return fmt.Errorf("not connected")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	err := c.conn.WriteJSON(outboundMessage{
		Type:           "send",
		ConversationID: conversationID,
		Content:        content,
	})
	if err != nil {
		return fmt.Errorf("send to %s: %w", conversationID, err)
	}
	return nil
}

// Close shuts the connection and waits for the read loop to exit.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}

	c.writeMu.Lock()
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()

	err := c.conn.Close()

	select {
	case <-c.done:
	case <-time.After(2 * time.Second):
	}
	return err
}
