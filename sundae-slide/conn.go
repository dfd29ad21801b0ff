package sundaeslide

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/SundaeSwap-finance/sundae-slides/sundae-slide/connectiondao"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 45 * time.Second
	maxMessageSize = 64 * 1024
)

// ConnectionStore persists connection records so a connection's attachment
// can be recovered outside the process that holds the socket.
type ConnectionStore interface {
	Put(ctx context.Context, conn connectiondao.Connection) error
	SetIdentity(ctx context.Context, connectionID, identity string) error
	Touch(ctx context.Context, connectionID string, ttl int64) error
	Delete(ctx context.Context, connectionID string) error
}

// Conn wraps one live websocket. It is owned by the Hub; a Conn is never
// reused once closed.
type Conn struct {
	ID  string
	Key string

	ws     *websocket.Conn
	send   chan []byte
	closed chan struct{}
	store  ConnectionStore
	logger zerolog.Logger

	closeOnce sync.Once
	mu        sync.Mutex
	session   Session
	expires   time.Time // expiry last written to the store
}

func newConn(id, key string, ws *websocket.Conn, buffer int, store ConnectionStore, logger zerolog.Logger) *Conn {
	if buffer <= 0 {
		buffer = 64
	}
	return &Conn{
		ID:      id,
		Key:     key,
		ws:      ws,
		send:    make(chan []byte, buffer),
		closed:  make(chan struct{}),
		store:   store,
		logger:  logger.With().Str("connection_id", id).Logger(),
		session: Session{ConnectedAt: time.Now()},
	}
}

// Send queues payload for delivery without blocking. A connection whose queue
// is full is closed; its own disconnect path then removes it.
func (c *Conn) Send(payload []byte) bool {
	select {
	case <-c.closed:
		return false
	default:
	}

	select {
	case c.send <- payload:
		return true
	default:
		c.logger.Warn().Msg("send buffer full, closing connection")
		c.Close()
		return false
	}
}

// Close marks the connection closed. The write pump sends a close frame and
// releases the socket.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
}

// Done is closed once the connection is closed.
func (c *Conn) Done() <-chan struct{} {
	return c.closed
}

// SerializeAttachment replaces the connection's session and writes the
// identity through to the connection store. The in-memory copy is updated
// even if the store write fails.
func (c *Conn) SerializeAttachment(ctx context.Context, session Session) error {
	c.mu.Lock()
	c.session = session
	c.mu.Unlock()

	if c.store == nil {
		return nil
	}
	if err := c.store.SetIdentity(ctx, c.ID, session.Identity); err != nil {
		return fmt.Errorf("failed to persist attachment for connection %v: %w", c.ID, err)
	}
	return nil
}

// refreshDue reports whether the stored expiry is within half a ttl of now.
// When it is, the expiry is advanced so concurrent callers refresh once.
func (c *Conn) refreshDue(now time.Time, ttl time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if now.Add(ttl / 2).Before(c.expires) {
		return false
	}
	c.expires = now.Add(ttl)
	return true
}

// DeserializeAttachment returns the connection's current session.
func (c *Conn) DeserializeAttachment() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case payload := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.closed:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// readLoop hands each data frame to handle, one at a time, until the socket
// errors or closes.
func (c *Conn) readLoop(handle func(payload []byte)) {
	defer c.Close()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, payload, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.logger.Debug().Err(err).Msg("websocket read error")
			}
			return
		}
		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}
		handle(payload)
	}
}
