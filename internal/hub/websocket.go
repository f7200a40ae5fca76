package hub

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/banshee-data/anygrow.bridge/internal/monitoring"
)

const (
	writeWait      = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait       = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod     = (pongWait * 9) / 10 // Send pings to peer with this period. Must be less than pongWait.
	maxMessageSize = 512                 // Maximum message size allowed from peer.
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// MessageHandler receives each text message a consumer sends.
type MessageHandler func(consumerID, text string)

// Client is a WebSocket consumer. Every published text becomes one WebSocket
// text message.
type Client struct {
	id        string
	conn      *websocket.Conn
	send      chan string
	done      chan struct{}
	closeOnce sync.Once
}

func newClient(conn *websocket.Conn) *Client {
	return &Client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan string, sendBufferSize),
		done: make(chan struct{}),
	}
}

func (c *Client) ID() string { return c.id }

// Send queues text for the write pump. It fails instead of blocking when the
// client is closed or its buffer is full.
func (c *Client) Send(text string) error {
	select {
	case <-c.done:
		return ErrConsumerClosed
	default:
	}
	select {
	case c.send <- text:
		return nil
	case <-c.done:
		return ErrConsumerClosed
	default:
		return ErrSendBufferFull
	}
}

// Close stops the write pump, which sends a close frame and closes the connection.
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

// readPump delivers inbound text messages to handle until the connection fails.
func (c *Client) readPump(handle MessageHandler) {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		mt, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				monitoring.Logf("websocket read error from %s: %v", c.id, err)
			}
			return
		}
		if mt != websocket.TextMessage || handle == nil {
			continue
		}
		handle(c.id, string(message))
	}
}

// writePump writes queued messages and keepalive pings until Close or a write error.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, []byte(message)); err != nil {
				monitoring.Logf("websocket write error to %s: %v", c.id, err)
				c.Close()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "bridge shutting down"),
				time.Now().Add(writeWait))
			return
		}
	}
}

// NewWebSocketHandler upgrades requests to WebSocket consumers attached to b.
// Inbound text messages are passed to onMessage on the connection's read goroutine.
func NewWebSocketHandler(b *Broadcaster, onMessage MessageHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			monitoring.Logf("websocket upgrade error: %v", err)
			return
		}

		client := newClient(conn)
		b.Attach(client)
		go client.writePump()

		client.readPump(onMessage)
		b.Detach(client)
		client.Close()
	})
}
