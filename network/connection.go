package network

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrSendBufferFull   = errors.New("send buffer full")
)

type Packet struct {
	MsgID  uint16
	Data   []byte
	Length uint16
}

type Connection interface {
	// Send queues a frame without blocking.
	Send(msgID uint16, data []byte) error
	Close() error
	RemoteAddr() net.Addr
	ReadPacket() (*Packet, error)
	// Done is closed once the connection stops writing.
	Done() <-chan struct{}
}

// Options tune keep-alive and buffering for a WSConnection.
type Options struct {
	PingInterval    time.Duration
	PongWait        time.Duration
	WriteWait       time.Duration
	SendBuffer      int
	MaxMessageBytes int64
}

func DefaultOptions() Options {
	return Options{
		PingInterval:    54 * time.Second,
		PongWait:        60 * time.Second,
		WriteWait:       10 * time.Second,
		SendBuffer:      64,
		MaxMessageBytes: 8192,
	}
}

// WSConnection owns one websocket. Frames queued by Send are written by a
// single writer goroutine in FIFO order; a peer that lets the queue fill up
// is disconnected.
type WSConnection struct {
	conn   *websocket.Conn
	opts   Options
	send   chan []byte
	done   chan struct{}
	mu     sync.Mutex
	closed bool
}

func NewWSConnection(conn *websocket.Conn, opts Options) *WSConnection {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = DefaultOptions().SendBuffer
	}
	c := &WSConnection{
		conn: conn,
		opts: opts,
		send: make(chan []byte, opts.SendBuffer),
		done: make(chan struct{}),
	}

	if opts.MaxMessageBytes > 0 {
		conn.SetReadLimit(opts.MaxMessageBytes)
	}
	c.extendReadDeadline()
	conn.SetPongHandler(func(string) error {
		c.extendReadDeadline()
		return nil
	})

	go c.writePump()
	return c
}

func (c *WSConnection) Send(msgID uint16, data []byte) error {
	frame, err := Encode(msgID, data)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnectionClosed
	}

	select {
	case c.send <- frame:
		return nil
	default:
		c.closeLocked()
		// drop the socket now rather than after the backlog drains
		c.conn.Close()
		return ErrSendBufferFull
	}
}

// ReadPacket blocks for the next binary frame.
func (c *WSConnection) ReadPacket() (*Packet, error) {
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		c.extendReadDeadline()
		if msgType != websocket.BinaryMessage {
			continue
		}
		return Decode(data)
	}
}

// Close stops accepting frames. Already queued frames are still flushed
// before the socket is closed.
func (c *WSConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closeLocked()
	return nil
}

func (c *WSConnection) Done() <-chan struct{} {
	return c.done
}

func (c *WSConnection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *WSConnection) closeLocked() {
	c.closed = true
	close(c.send)
}

func (c *WSConnection) extendReadDeadline() {
	if c.opts.PongWait > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	}
}

func (c *WSConnection) writeDeadline() time.Time {
	if c.opts.WriteWait <= 0 {
		return time.Time{}
	}
	return time.Now().Add(c.opts.WriteWait)
}

func (c *WSConnection) writePump() {
	var tick <-chan time.Time
	if c.opts.PingInterval > 0 {
		ticker := time.NewTicker(c.opts.PingInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	defer func() {
		c.conn.Close()
		close(c.done)
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), c.writeDeadline())
				return
			}
			_ = c.conn.SetWriteDeadline(c.writeDeadline())
			if err := c.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				c.abort()
				return
			}
		case <-tick:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, c.writeDeadline()); err != nil {
				c.abort()
				return
			}
		}
	}
}

// abort marks the connection closed after a write failure so later Sends fail fast.
func (c *WSConnection) abort() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closeLocked()
	}
}
