package websocket

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"debatehall/pkg/types"
)

// State is the lifecycle position of a connection. It only moves forward.
type State int32

const (
	StateConnecting State = iota
	StateAuthenticating
	StateValidating
	StateJoined
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateValidating:
		return "validating"
	case StateJoined:
		return "joined"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ConnectionOptions tune the writer goroutine
type ConnectionOptions struct {
	SendBuffer   int
	WriteTimeout time.Duration
	PingInterval time.Duration
}

// DefaultConnectionOptions mirrors the websocket config defaults
func DefaultConnectionOptions() ConnectionOptions {
	return ConnectionOptions{
		SendBuffer:   100,
		WriteTimeout: 5 * time.Second,
		PingInterval: 30 * time.Second,
	}
}

// Connection implements the interfaces.Connection interface.
// WebSocket writes are serialized through writeLoop; Send never blocks.
type Connection struct {
	id          string
	conn        *websocket.Conn
	writeCh     chan []byte
	user        *types.User
	sessionID   int64
	connectedAt time.Time
	opts        ConnectionOptions

	state     atomic.Int32
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	leaveOnce sync.Once
}

func newConnection() *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		id:     uuid.NewString(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// NewConnection wraps an upgraded socket that already passed authentication
// and validation, and starts its writer
func NewConnection(conn *websocket.Conn, user *types.User, sessionID int64, opts ConnectionOptions) *Connection {
	c := newConnection()
	c.attach(conn, user, sessionID, opts)
	c.advance(StateJoined)
	return c
}

// attach binds the socket and identity and starts the single writer goroutine
func (c *Connection) attach(conn *websocket.Conn, user *types.User, sessionID int64, opts ConnectionOptions) {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = DefaultConnectionOptions().SendBuffer
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultConnectionOptions().WriteTimeout
	}

	c.conn = conn
	c.user = user
	c.sessionID = sessionID
	c.connectedAt = time.Now()
	c.opts = opts
	c.writeCh = make(chan []byte, opts.SendBuffer)

	go c.writeLoop()
}

// advance moves the connection forward to next. Moving backwards or out of
// StateClosed is refused.
func (c *Connection) advance(next State) bool {
	for {
		current := State(c.state.Load())
		if current == StateClosed || next <= current {
			return false
		}
		if c.state.CompareAndSwap(int32(current), int32(next)) {
			return true
		}
	}
}

// State returns the current lifecycle state
func (c *Connection) State() State {
	return State(c.state.Load())
}

func (c *Connection) writeLoop() {
	var pings <-chan time.Time
	if c.opts.PingInterval > 0 {
		ticker := time.NewTicker(c.opts.PingInterval)
		defer ticker.Stop()
		pings = ticker.C
	}

	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
				c.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Printf("Write failed: connection=%s user=%d error=%v", c.id, c.UserID(), err)
				c.Close()
				return
			}

		case <-pings:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.WriteTimeout)); err != nil {
				c.Close()
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// Send enqueues data without blocking. A full buffer drops the frame.
func (c *Connection) Send(data []byte) error {
	if c.State() != StateJoined {
		if c.State() == StateClosed {
			return ErrConnectionClosed
		}
		return ErrNotJoined
	}

	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	select {
	case c.writeCh <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// WriteJSON encodes v and enqueues it like Send
func (c *Connection) WriteJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}
	return c.Send(data)
}

// Close stops the writer and closes the socket; safe to call more than once
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateClosed))
		c.cancel()

		if c.conn != nil {
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			err = c.conn.Close()
		}
	})
	return err
}

// Done is closed once the connection is closed
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}

func (c *Connection) ID() string {
	return c.id
}

func (c *Connection) User() *types.User {
	return c.user
}

// UserID is zero until the connection is authenticated
func (c *Connection) UserID() int64 {
	if c.user == nil {
		return 0
	}
	return c.user.ID
}

func (c *Connection) SessionID() int64 {
	return c.sessionID
}

func (c *Connection) ConnectedAt() time.Time {
	return c.connectedAt
}
