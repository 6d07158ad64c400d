package wsipc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Client is the renderer side Transport: a single websocket connection to a host's
// WebSocketServer. Rooms joined with Join are re-joined when Serve reconnects.
type Client struct {
	url    string
	limits Limits
	dialer *websocket.Dialer
	peer   *clientPeer

	mu        sync.Mutex
	onMessage MessageHandler
	conn      *websocket.Conn
	serving   bool

	wmu sync.Mutex // guards writes on conn

	roomsMu sync.RWMutex
	rooms   roomSet
}

// Dial connects to the websocket server at `url`, e.g. "ws://localhost:5000/ipc/"
func Dial(ctx context.Context, url string, limits Limits) (*Client, error) {
	c := &Client{
		url:    url,
		limits: limits,
		dialer: websocket.DefaultDialer,
		rooms:  make(roomSet),
	}
	c.peer = &clientPeer{c: c, id: uuid.NewString()}
	if err := c.dial(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) dial(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.url, err)
	}
	if c.limits.MaxMessageSize > 0 {
		conn.SetReadLimit(c.limits.MaxMessageSize)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return nil
}

func (c *Client) OnMessage(fn MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = fn
}

// Serve reads from the connection until `ctx` is done or the server closes the connection.
// If the connection was closed by an earlier Serve, it is dialed again and joined rooms are
// restored.
func (c *Client) Serve(ctx context.Context) error {
	c.mu.Lock()
	if c.serving {
		c.mu.Unlock()
		return errAlreadyServing
	}
	c.serving = true
	conn := c.conn
	handler := c.onMessage
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.serving = false
		c.conn = nil
		c.mu.Unlock()
	}()

	if conn == nil {
		if err := c.dial(ctx); err != nil {
			return err
		}
		c.mu.Lock()
		conn = c.conn
		c.mu.Unlock()
		for _, room := range c.Rooms() {
			if err := c.write(&Envelope{Event: ChannelJoin, Room: room}); err != nil {
				conn.Close()
				return err
			}
		}
	}

	readErr := make(chan error, 1)
	go func() {
		readErr <- c.readLoop(conn, handler)
	}()

	var ticker *time.Ticker
	var tick <-chan time.Time
	if c.limits.ReadTimeout > 0 {
		ticker = time.NewTicker(c.limits.ReadTimeout / 2)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case err := <-readErr:
			conn.Close()
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return fmt.Errorf("%w: %v", ErrClosed, err)
			}
			return err
		case <-tick:
			// the pong extends our read deadline, the keepalive envelope the server's
			c.wmu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.limits.writeTimeout()))
			c.wmu.Unlock()
			if err == nil {
				err = c.write(&Envelope{Event: ChannelPing})
			}
			if err != nil {
				Logger().Debug().Err(err).Msg("ping failed")
			}
		case <-ctx.Done():
			c.wmu.Lock()
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.limits.writeTimeout()))
			c.wmu.Unlock()
			conn.Close()
			<-readErr
			return nil
		}
	}
}

func (c *Client) readLoop(conn *websocket.Conn, handler MessageHandler) error {
	if c.limits.ReadTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(c.limits.ReadTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(c.limits.ReadTimeout))
		})
	}
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if c.limits.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(c.limits.ReadTimeout))
		}
		e, err := DecodeEnvelope(msg)
		if err != nil {
			Logger().Warn().Err(err).Int("size", len(msg)).Msg("invalid message ignored")
			continue
		}
		if handler != nil {
			handler(c.peer, e)
		}
	}
}

// Send writes `e` to the server. `room` is not used for routing; the server scopes the
// message by e.Room.
func (c *Client) Send(room string, e *Envelope) error {
	return c.write(e)
}

func (c *Client) write(e *Envelope) error {
	buf, err := EncodeEnvelope(e)
	if err != nil {
		return err
	}
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrClosed
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(c.limits.writeTimeout()))
	return conn.WriteMessage(websocket.TextMessage, buf)
}

// Join asks the server to add this connection to `room`
func (c *Client) Join(room string) error {
	c.roomsMu.Lock()
	c.rooms[room] = struct{}{}
	c.roomsMu.Unlock()
	return c.write(&Envelope{Event: ChannelJoin, Room: room})
}

// Leave asks the server to remove this connection from `room`
func (c *Client) Leave(room string) error {
	c.roomsMu.Lock()
	delete(c.rooms, room)
	c.roomsMu.Unlock()
	return c.write(&Envelope{Event: ChannelLeave, Room: room})
}

// Rooms returns the rooms this connection joined
func (c *Client) Rooms() []string {
	c.roomsMu.RLock()
	defer c.roomsMu.RUnlock()
	return c.rooms.list()
}

// Close closes the connection. A later Serve dials again.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

// clientPeer is the host as seen by the renderer's handlers
type clientPeer struct {
	c  *Client
	id string
}

func (p *clientPeer) ID() string             { return p.id }
func (p *clientPeer) Rooms() []string        { return p.c.Rooms() }
func (p *clientPeer) Send(e *Envelope) error { return p.c.write(e) }

func (p *clientPeer) InRoom(room string) bool {
	p.c.roomsMu.RLock()
	defer p.c.roomsMu.RUnlock()
	_, ok := p.c.rooms[room]
	return ok
}
