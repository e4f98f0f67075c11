// Package wsmonitor fans out PollingSample and derived equipment-status
// events to connected WebSocket clients: one hub per endpoint, with
// register/unregister/broadcast channels feeding a single dispatch loop
// that writes a text WebSocket frame to every connected client.
package wsmonitor

import (
	"encoding/json"
	"sync"
	"time"

	"scadalink/internal/logging"
	"scadalink/internal/model"
)

const (
	clientSendBuffer  = 64
	heartbeatInterval = 120 * time.Second
)

// wsConn is the subset of *websocket.Conn the hub needs, letting tests
// exercise Hub/Client against an in-memory fake instead of a real socket.
type wsConn interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
}

// Client is one connected WebSocket subscriber.
type Client struct {
	id   string
	conn wsConn
	send chan []byte

	mu       sync.Mutex
	lastSeen time.Time
}

func newClient(id string, conn wsConn) *Client {
	return &Client{id: id, conn: conn, send: make(chan []byte, clientSendBuffer), lastSeen: time.Now()}
}

func (c *Client) touch(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastSeen = now
}

func (c *Client) idleSince(now time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return now.Sub(c.lastSeen)
}

// Hub maintains the set of active clients for one broadcast endpoint and
// fans every broadcast message out to all of them. A client whose send
// buffer is full is marked dead rather than blocking the broadcast round;
// dead clients are removed under the hub lock once the round completes.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	stopCh     chan struct{}
	wg         sync.WaitGroup

	droppedSends int64
}

// NewHub constructs a Hub with no connected clients and starts its
// dispatch loop.
func NewHub() *Hub {
	h := &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
		stopCh:     make(chan struct{}),
	}
	h.wg.Add(1)
	go h.run()
	return h
}

func (h *Hub) run() {
	defer h.wg.Done()
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()

		case c := <-h.unregister:
			h.removeClient(c)

		case msg := <-h.broadcast:
			h.dispatch(msg)

		case <-h.stopCh:
			return
		}
	}
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// dispatch sends msg to every client's buffer without blocking; a client
// whose buffer is already full is collected as dead and removed only after
// the full round, so one slow client never slows delivery to the rest.
func (h *Hub) dispatch(msg []byte) {
	h.mu.RLock()
	dead := make([]*Client, 0)
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			dead = append(dead, c)
			logging.Debug("WS", "client %s send buffer full, marking dead", c.id)
		}
	}
	h.mu.RUnlock()

	for _, c := range dead {
		h.removeClient(c)
	}
}

// Broadcast enqueues msg for delivery to every connected client. It does
// not block: a full broadcast channel drops the message and counts it,
// since a broadcaster falling behind must never stall the sample pipeline
// feeding it.
func (h *Hub) Broadcast(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
		h.mu.Lock()
		h.droppedSends++
		h.mu.Unlock()
		logging.Debug("WS", "broadcast channel full, dropping message")
	}
}

// BroadcastSample JSON-encodes sample and broadcasts it.
func (h *Hub) BroadcastSample(sample model.PollingSample) error {
	data, err := json.Marshal(sample)
	if err != nil {
		return err
	}
	h.Broadcast(data)
	return nil
}

// ClientCount returns the number of currently connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Register adds conn as a new client and starts its read/write pumps,
// returning the Client so the caller's HTTP handler can wait on its
// lifetime.
func (h *Hub) Register(id string, conn wsConn) *Client {
	c := newClient(id, conn)
	h.register <- c
	go h.writePump(c)
	go h.readPump(c)
	return c
}

// readPump drains incoming frames (the monitor protocol carries no
// client->server payloads beyond pings/pongs) and updates the client's
// last-seen time on every frame, including control frames surfaced via the
// pong handler.
func (h *Hub) readPump(c *Client) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetPongHandler(func(string) error {
		c.touch(time.Now())
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
		c.touch(time.Now())
	}
}

// writePump relays the client's send channel to its socket and issues a
// heartbeat ping whenever no client frame has arrived in heartbeatInterval.
func (h *Hub) writePump(c *Client) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.WriteMessage(1, msg); err != nil { // 1 == websocket.TextMessage
				return
			}
		case <-ticker.C:
			if c.idleSince(time.Now()) >= heartbeatInterval {
				if err := c.conn.WriteMessage(9, nil); err != nil { // 9 == websocket.PingMessage
					return
				}
			}
		}
	}
}

// Stop halts the dispatch loop and waits for it to exit. It does not close
// already-registered client connections; callers close those via their own
// HTTP handler lifecycle.
func (h *Hub) Stop() {
	close(h.stopCh)
	h.wg.Wait()
}
