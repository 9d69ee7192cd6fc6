package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// replayLimit bounds a single resume request
const replayLimit = 100

// StreamEvent represents an event read back from the replay log
type StreamEvent struct {
	Channel   string
	ID        string
	Event     map[string]interface{}
	Timestamp time.Time
}

// Replayer reads events recorded after a given stream ID
type Replayer interface {
	Replay(ctx context.Context, channel, afterID string, limit int64) ([]StreamEvent, error)
}

// Hub manages WebSocket connections and channel subscriptions
type Hub struct {
	mu       sync.RWMutex
	conns    map[*Conn]bool
	subs     map[string]map[*Conn]bool // channel -> connections
	publish  chan Event
	log      *zap.Logger
	ctx      context.Context
	replayer Replayer
	allow    func(channel string) bool
}

// Conn represents a WebSocket connection
type Conn struct {
	ws     *websocket.Conn
	send   chan []byte
	hub    *Hub
	userID string
	subs   map[string]bool // subscribed channels
}

// Event represents a message to be published
type Event struct {
	Channel string
	Message map[string]interface{}
}

// NewHub creates a new WebSocket hub. allow decides which channels clients
// may subscribe to; nil allows every channel.
func NewHub(log *zap.Logger, allow func(channel string) bool) *Hub {
	if allow == nil {
		allow = func(string) bool { return true }
	}
	return &Hub{
		conns:   make(map[*Conn]bool),
		subs:    make(map[string]map[*Conn]bool),
		publish: make(chan Event, 256),
		log:     log,
		ctx:     context.Background(),
		allow:   allow,
	}
}

// SetReplayer sets the replay log used by resume requests
func (h *Hub) SetReplayer(r Replayer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.replayer = r
}

// Run starts the hub's event loop. It returns when Close is called.
func (h *Hub) Run() {
	for event := range h.publish {
		msg, err := json.Marshal(envelope(event.Channel, event.Message))
		if err != nil {
			h.log.Warn("Failed to encode event", zap.String("channel", event.Channel), zap.Error(err))
			continue
		}

		h.mu.RLock()
		var slow []*Conn
		for conn := range h.subs[event.Channel] {
			select {
			case conn.send <- msg:
			default:
				slow = append(slow, conn)
			}
		}
		h.mu.RUnlock()

		for _, conn := range slow {
			h.log.Warn("Dropping slow connection", zap.String("user_id", conn.userID))
			h.unregister(conn)
		}
	}
}

// Close stops Run
func (h *Hub) Close() {
	close(h.publish)
}

func envelope(channel string, data map[string]interface{}) map[string]interface{} {
	msg := map[string]interface{}{
		"type":    "event",
		"channel": channel,
		"data":    data,
	}
	if id, ok := data["streamId"].(string); ok {
		msg["id"] = id
	}
	return msg
}

// Register adds a new connection to the hub
func (h *Hub) Register(conn *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[conn] = true
}

// unregister removes a connection from the hub
func (h *Hub) unregister(conn *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[conn]; ok {
		delete(h.conns, conn)
		close(conn.send)
		for channel := range conn.subs {
			if subs := h.subs[channel]; subs != nil {
				delete(subs, conn)
				if len(subs) == 0 {
					delete(h.subs, channel)
				}
			}
		}
	}
}

// Subscribe adds a connection to a channel
func (h *Hub) Subscribe(conn *Conn, channel string) bool {
	if !h.allow(channel) {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[channel] == nil {
		h.subs[channel] = make(map[*Conn]bool)
	}
	h.subs[channel][conn] = true
	conn.subs[channel] = true
	return true
}

// Unsubscribe removes a connection from a channel
func (h *Hub) Unsubscribe(conn *Conn, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs := h.subs[channel]; subs != nil {
		delete(subs, conn)
		if len(subs) == 0 {
			delete(h.subs, channel)
		}
	}
	delete(conn.subs, channel)
}

// Subscribers returns the number of connections on channel
func (h *Hub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[channel])
}

// Publish sends an event to all subscribers of a channel
func (h *Hub) Publish(channel string, message map[string]interface{}) {
	select {
	case h.publish <- Event{Channel: channel, Message: message}:
	default:
		h.log.Warn("Hub publish channel full, dropping event", zap.String("channel", channel))
	}
}

// NewConn creates a new connection
func NewConn(ws *websocket.Conn, hub *Hub, userID string) *Conn {
	return &Conn{
		ws:     ws,
		send:   make(chan []byte, 256),
		hub:    hub,
		userID: userID,
		subs:   make(map[string]bool),
	}
}

// ReadPump handles reading from the WebSocket connection
func (c *Conn) ReadPump() {
	defer func() {
		c.hub.unregister(c)
		c.ws.Close()
	}()

	c.ws.SetReadLimit(64 * 1024)
	c.ws.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Error("WebSocket error", zap.Error(err))
			}
			break
		}

		var msg map[string]interface{}
		if err := json.Unmarshal(message, &msg); err != nil {
			c.hub.log.Warn("Failed to parse message", zap.Error(err))
			continue
		}

		c.handleMessage(msg)
	}
}

// WritePump handles writing to the WebSocket connection
func (c *Conn) WritePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Conn) handleMessage(msg map[string]interface{}) {
	msgType, _ := msg["type"].(string)
	channel, _ := msg["channel"].(string)

	switch msgType {
	case "subscribe":
		if channel == "" {
			return
		}
		if !c.hub.Subscribe(c, channel) {
			c.sendAck("rejected", channel)
			return
		}
		c.sendAck("subscribed", channel)
	case "unsubscribe":
		if channel != "" {
			c.hub.Unsubscribe(c, channel)
			c.sendAck("unsubscribed", channel)
		}
	case "resume":
		since, _ := msg["since"].(string)
		if channel != "" && c.subs[channel] {
			c.hub.Resume(c, channel, since)
		}
	case "ping":
		c.sendAck("pong", "")
	default:
		c.hub.log.Warn("Unknown message type", zap.String("type", msgType))
	}
}

func (c *Conn) sendAck(msgType, channel string) {
	ack := map[string]interface{}{
		"type": "ack",
		"ack":  msgType,
	}
	if channel != "" {
		ack["channel"] = channel
	}
	msg, _ := json.Marshal(ack)
	select {
	case c.send <- msg:
	default:
	}
}

// Resume replays events recorded after sinceID to conn
func (h *Hub) Resume(conn *Conn, channel, sinceID string) {
	h.mu.RLock()
	replayer := h.replayer
	h.mu.RUnlock()
	if replayer == nil {
		h.log.Warn("Replayer not set, cannot resume")
		return
	}

	events, err := replayer.Replay(h.ctx, channel, sinceID, replayLimit)
	if err != nil {
		h.log.Error("Failed to replay events",
			zap.String("channel", channel),
			zap.String("since", sinceID),
			zap.Error(err),
		)
		return
	}

	for _, event := range events {
		msg := envelope(event.Channel, event.Event)
		msg["id"] = event.ID
		msgBytes, _ := json.Marshal(msg)
		select {
		case conn.send <- msgBytes:
		default:
			h.log.Warn("Failed to send replayed event, connection buffer full")
			return
		}
	}

	h.log.Info("Resumed events",
		zap.String("channel", channel),
		zap.String("connection", conn.userID),
		zap.String("since", sinceID),
		zap.Int("count", len(events)),
	)
}
