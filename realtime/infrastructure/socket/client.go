// Package socket implements the chat.Channel contract over a websocket
// connection. A Client is single-shot: the connection manager creates a
// fresh one per generation.
package socket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/AzielCF/az-chat/realtime/domain/chat"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

type Client struct {
	cfg chat.ChannelConfig

	mu     sync.Mutex
	conn   *websocket.Conn
	status chat.ChannelStatus
	closed bool

	onEvent      func(chat.Event)
	onDisconnect func(error)
}

// New builds an unconnected channel for one generation.
func New(cfg chat.ChannelConfig) (chat.Channel, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("socket: empty channel URL")
	}
	return &Client{
		cfg:    cfg,
		status: chat.ChannelStatusPending,
	}, nil
}

// OnEvent registers the inbound sink. Must be called before Connect.
func (c *Client) OnEvent(handler func(chat.Event)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEvent = handler
}

// OnDisconnect registers the drop callback. Must be called before
// Connect.
func (c *Client) OnDisconnect(handler func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDisconnect = handler
}

// Connect dials the websocket endpoint with the bearer token and starts
// the reader loop.
func (c *Client) Connect(ctx context.Context) error {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.cfg.Token)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return fmt.Errorf("socket: channel already closed")
	}
	c.conn = conn
	c.status = chat.ChannelStatusConnected
	c.mu.Unlock()

	go c.readLoop(conn)
	return nil
}

// Status reports the transport state.
func (c *Client) Status() chat.ChannelStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Emit writes one event frame. The write lock serializes concurrent
// emitters onto the single connection.
func (c *Client) Emit(ctx context.Context, name chat.EventName, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", name, err)
	}
	frame := chat.Event{Name: name, Data: data}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || c.status != chat.ChannelStatusConnected {
		return fmt.Errorf("emit %s: not connected", name)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
	}
	if err := c.conn.WriteJSON(frame); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// Close tears the transport down. Safe to call multiple times; an
// explicit close never triggers the disconnect callback.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.status = chat.ChannelStatusDisconnected
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return conn.Close()
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		var ev chat.Event
		if err := conn.ReadJSON(&ev); err != nil {
			c.mu.Lock()
			wasClosed := c.closed
			c.status = chat.ChannelStatusDisconnected
			c.conn = nil
			handler := c.onDisconnect
			c.mu.Unlock()

			if !wasClosed {
				logrus.WithError(err).Debug("[Socket] Read loop ended")
				if handler != nil {
					handler(err)
				}
			}
			return
		}

		c.mu.Lock()
		handler := c.onEvent
		c.mu.Unlock()
		if handler != nil {
			handler(ev)
		}
	}
}
