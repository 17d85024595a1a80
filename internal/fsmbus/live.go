// Package fsmbus: WebSocket fan-out of transition events to dashboard
// clients. Adapted from a collaboration hub into a topic-subscription feed:
// clients subscribe to one ("modelType:modelId") topic or the "*" firehose
// and receive StateTransitioned events as they are published on Bus.
package fsmbus

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// LiveHub maintains active dashboard connections and fans out transition
// events published on a Bus to clients subscribed to the matching topic.
type LiveHub struct {
	clients    map[*LiveClient]bool
	byTopic    map[string]map[*LiveClient]bool
	broadcast  chan liveBroadcast
	register   chan *LiveClient
	unregister chan *LiveClient
	shutdown   chan struct{}
	mu         sync.RWMutex
}

type liveBroadcast struct {
	topic   string
	message []byte
}

// LiveClient represents one WebSocket dashboard connection.
type LiveClient struct {
	conn     *websocket.Conn
	Topic    string // "modelType:modelId", or "*" for every topic
	send     chan []byte
	hub      *LiveHub
	lastSeen time.Time
}

// LiveMessage is the wire shape pushed to dashboard clients.
type LiveMessage struct {
	Type       string    `json:"type"`
	ModelType  string    `json:"model_type"`
	ModelID    string    `json:"model_id"`
	ColumnName string    `json:"column_name"`
	FromState  *string   `json:"from_state,omitempty"`
	ToState    string    `json:"to_state"`
	Timestamp  time.Time `json:"timestamp"`
}

var liveUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")

		allowedOriginsEnv := os.Getenv("CORS_ALLOWED_ORIGINS")
		var allowedOrigins []string
		if allowedOriginsEnv != "" {
			allowedOrigins = strings.Split(allowedOriginsEnv, ",")
		} else {
			allowedOrigins = []string{
				"http://localhost:3000",
				"http://127.0.0.1:3000",
			}
		}

		for _, allowed := range allowedOrigins {
			if strings.TrimSpace(allowed) == origin {
				return true
			}
		}

		env := os.Getenv("ENVIRONMENT")
		return origin == "" && env != "production"
	},
}

func NewLiveHub() *LiveHub {
	return &LiveHub{
		clients:    make(map[*LiveClient]bool),
		byTopic:    make(map[string]map[*LiveClient]bool),
		broadcast:  make(chan liveBroadcast, 64),
		register:   make(chan *LiveClient),
		unregister: make(chan *LiveClient),
		shutdown:   make(chan struct{}),
	}
}

// Run starts the hub's main loop. Call in its own goroutine.
func (h *LiveHub) Run() {
	for {
		select {
		case <-h.shutdown:
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
			}
			h.clients = make(map[*LiveClient]bool)
			h.byTopic = make(map[string]map[*LiveClient]bool)
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			if h.byTopic[c.Topic] == nil {
				h.byTopic[c.Topic] = make(map[*LiveClient]bool)
			}
			h.byTopic[c.Topic][c] = true
			h.mu.Unlock()

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				delete(h.byTopic[c.Topic], c)
				close(c.send)
			}
			h.mu.Unlock()

		case b := <-h.broadcast:
			h.deliver(b.topic, b.message)
		}
	}
}

func (h *LiveHub) Shutdown() { close(h.shutdown) }

func (h *LiveHub) deliver(topic string, message []byte) {
	h.mu.RLock()
	recipients := make(map[*LiveClient]bool, len(h.byTopic[topic])+len(h.byTopic["*"]))
	for c := range h.byTopic[topic] {
		recipients[c] = true
	}
	for c := range h.byTopic["*"] {
		recipients[c] = true
	}
	h.mu.RUnlock()

	for c := range recipients {
		select {
		case c.send <- message:
		default:
			log.Printf("fsmbus: dropping slow live client on topic %s", topic)
		}
	}
}

// PublishStateTransitioned pushes one StateTransitioned event to subscribed
// clients. Intended to be registered as a Bus subscriber for StateTransitioned.
func (h *LiveHub) PublishStateTransitioned(ev Event, modelType, modelID string) {
	msg := LiveMessage{
		Type:       string(StateTransitioned),
		ModelType:  modelType,
		ModelID:    modelID,
		ColumnName: ev.ColumnName,
		FromState:  ev.FromState,
		ToState:    ev.ToState,
		Timestamp:  time.Now(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("fsmbus: marshal live message: %v", err)
		return
	}
	h.broadcast <- liveBroadcast{topic: modelType + ":" + modelID, message: data}
}

// HandleWebSocket upgrades an HTTP request to a dashboard subscription.
// Clients pick their topic via the "topic" query parameter ("*" for every
// event).
func (h *LiveHub) HandleWebSocket(c *gin.Context) {
	topic := c.Query("topic")
	if topic == "" {
		topic = "*"
	}

	conn, err := liveUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("fsmbus: websocket upgrade error: %v", err)
		return
	}

	client := &LiveClient{conn: conn, Topic: topic, send: make(chan []byte, 64), hub: h, lastSeen: time.Now()}
	h.register <- client

	go client.writePump()
	go client.readPump()
}

func (c *LiveClient) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

func (c *LiveClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
		c.lastSeen = time.Now()
	}
}
