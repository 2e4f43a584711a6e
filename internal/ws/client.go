package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var (
	// ErrSendBufferFull is returned when a dashboard cannot keep up.
	ErrSendBufferFull = errors.New("ws: send buffer full")
	// ErrClientClosed is returned for sends to a terminated connection.
	ErrClientClosed = errors.New("ws: client closed")
)

// Transport is the per-connection wire. WriteMessage is only called from the
// client's write pump; Ping and Close may be called concurrently with it.
type Transport interface {
	WriteMessage(data []byte) error
	Ping() error
	Close() error
}

const writeWait = 10 * time.Second

// connTransport adapts a gorilla connection. Pings use the native control
// frame so replies arrive through the connection's pong handler.
type connTransport struct {
	conn *websocket.Conn
}

func newConnTransport(conn *websocket.Conn) *connTransport {
	return &connTransport{conn: conn}
}

func (t *connTransport) WriteMessage(data []byte) error {
	if err := t.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *connTransport) Ping() error {
	return t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (t *connTransport) Close() error {
	return t.conn.Close()
}

type client struct {
	transport Transport
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	// onWriteError runs at most once, from the write pump.
	onWriteError func(error)
}

func newClient(t Transport, buffer int) *client {
	return &client{
		transport: t,
		send:      make(chan []byte, buffer),
		done:      make(chan struct{}),
	}
}

func (c *client) start() {
	go c.writePump()
}

func (c *client) writePump() {
	for {
		select {
		case msg := <-c.send:
			if err := c.transport.WriteMessage(msg); err != nil {
				if c.onWriteError != nil {
					c.onWriteError(err)
				}
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// enqueue never blocks.
func (c *client) enqueue(msg []byte) error {
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}
	select {
	case c.send <- msg:
		return nil
	default:
		return ErrSendBufferFull
	}
}

func (c *client) ping() error {
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}
	return c.transport.Ping()
}

// close terminates the connection. Queued messages are discarded.
func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.transport.Close()
	})
}
