package registry

import (
	"log"
	"sync"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"

	"liveclass-backend/internal/model"
)

// Transport is the write side of a client connection. *websocket.Conn
// satisfies it; tests substitute a fake.
type Transport interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Conn is one live transport connection for a verified identity. A user
// may own several concurrent Conns, one per device.
type Conn struct {
	ID          string
	UserID      int64
	Role        model.Role
	DisplayName string

	transport Transport
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	// onBroken is invoked (once, from the writer goroutine) when the
	// connection can no longer be written to, so the owner can schedule
	// unregistration. Delivery to other connections is never blocked on
	// this one.
	onBroken func(*Conn)
}

// NewConn wraps a transport in a Conn with a buffered outbound queue.
func NewConn(userID int64, role model.Role, displayName string, transport Transport, queueSize int, onBroken func(*Conn)) *Conn {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Conn{
		ID:          uuid.New().String(),
		UserID:      userID,
		Role:        role,
		DisplayName: displayName,
		transport:   transport,
		send:        make(chan []byte, queueSize),
		done:        make(chan struct{}),
		onBroken:    onBroken,
	}
}

// Send queues an outbound frame. It never blocks: a slow consumer whose
// queue is full is treated as broken rather than allowed to stall the
// sender.
func (c *Conn) Send(data []byte) {
	select {
	case <-c.done:
	case c.send <- data:
	default:
		log.Printf("[Conn %s] Send queue full, closing (user=%d)", c.ID, c.UserID)
		c.fail()
	}
}

// WritePump drains the outbound queue onto the transport. Run it in its
// own goroutine, one per connection.
func (c *Conn) WritePump() {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			if err := c.transport.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Printf("[Conn %s] Write failed: %v (user=%d)", c.ID, err, c.UserID)
				c.fail()
				return
			}
		}
	}
}

func (c *Conn) fail() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.transport.Close()
		if c.onBroken != nil {
			go c.onBroken(c)
		}
	})
}

// Close shuts the connection down without invoking the broken callback's
// scheduling twice; safe to call from any goroutine.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.transport.Close()
	})
}

// Closed reports whether the connection has been shut down.
func (c *Conn) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}
