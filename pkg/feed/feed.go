package feed

import (
	"encoding/json"
	"log"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"gedcom-review/pkg/db"
)

// Event types broadcast to moderation dashboards.
const (
	EventChangeSubmitted = "change_submitted"
	EventChangeAccepted  = "change_accepted"
	EventChangeRejected  = "change_rejected"
)

// Event is one moderation notification.
type Event struct {
	Type      string            `json:"type"`
	Change    *db.PendingChange `json:"change,omitempty"`
	Timestamp int64             `json:"timestamp"`
}

// Subscriber is one connected moderation dashboard.
type Subscriber struct {
	ID   string
	Conn *websocket.Conn
	Send chan []byte
}

// Hub fans moderation events out to connected subscribers. The feed is
// broadcast-only; subscribers send nothing but pings.
type Hub struct {
	subscribers map[string]*Subscriber
	Broadcast   chan []byte
	Register    chan *Subscriber
	Unregister  chan *Subscriber
	mutex       sync.RWMutex
}

// NewHub creates a hub. Call Run in a goroutine before publishing.
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string]*Subscriber),
		Broadcast:   make(chan []byte, 256),
		Register:    make(chan *Subscriber),
		Unregister:  make(chan *Subscriber),
	}
}

// Run handles subscriber registration and event fan-out.
func (h *Hub) Run() {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("panic in hub.Run: %v\n%s", rec, debug.Stack())
		}
	}()

	for {
		select {
		case sub := <-h.Register:
			h.mutex.Lock()
			h.subscribers[sub.ID] = sub
			h.mutex.Unlock()
			log.Printf("Moderation feed subscriber %s connected", sub.ID)

		case sub := <-h.Unregister:
			h.mutex.Lock()
			if _, ok := h.subscribers[sub.ID]; ok {
				delete(h.subscribers, sub.ID)
				close(sub.Send)
			}
			h.mutex.Unlock()
			log.Printf("Moderation feed subscriber %s disconnected", sub.ID)

		case message := <-h.Broadcast:
			h.mutex.Lock()
			for _, sub := range h.subscribers {
				select {
				case sub.Send <- message:
				default:
					// drop slow subscribers rather than block the feed
					close(sub.Send)
					delete(h.subscribers, sub.ID)
				}
			}
			h.mutex.Unlock()
		}
	}
}

// SubscriberCount returns the number of connected subscribers.
func (h *Hub) SubscriberCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.subscribers)
}

// Publish broadcasts a moderation event to all subscribers.
func (h *Hub) Publish(eventType string, change *db.PendingChange) {
	event := &Event{
		Type:      eventType,
		Change:    change,
		Timestamp: time.Now().UnixNano(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("Error marshalling feed event: %v", err)
		return
	}
	h.Broadcast <- data
}

// Subscribe attaches an upgraded websocket connection to the hub and starts
// its read/write pumps.
func (h *Hub) Subscribe(conn *websocket.Conn) *Subscriber {
	sub := &Subscriber{
		ID:   uuid.New().String(),
		Conn: conn,
		Send: make(chan []byte, 256),
	}

	go h.writePump(sub)
	go h.readPump(sub)

	h.Register <- sub
	return sub
}

// readPump drains the connection so control frames are processed. Inbound
// frames other than pings are ignored.
func (h *Hub) readPump(s *Subscriber) {
	defer func() {
		select {
		case h.Unregister <- s:
		default:
		}
		s.Conn.Close()
	}()

	s.Conn.SetReadLimit(512)
	s.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	s.Conn.SetPongHandler(func(string) error {
		s.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := s.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("Feed subscriber %s closed unexpectedly: %v", s.ID, err)
			}
			return
		}
	}
}

// writePump pushes events to the connection and keeps it alive with pings.
func (h *Hub) writePump(s *Subscriber) {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		select {
		case h.Unregister <- s:
		default:
		}
		s.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-s.Send:
			s.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				_ = s.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("Feed write error for %s: %v", s.ID, err)
				return
			}

		case <-ticker.C:
			s.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := s.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
