package web

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client represents a WebSocket client subscribed to one adventure's scene
// notifications.
type Client struct {
	ID          string
	AdventureID string
	Conn        *websocket.Conn
	Send        chan []byte
	Hub         *SceneHub
	mu          sync.Mutex
	closed      bool
}

// SceneEvent tells subscribers that an adventure's scene image is ready.
type SceneEvent struct {
	Type        string `json:"type"`
	AdventureID string `json:"adventure_id"`
	ImageKey    string `json:"image_key"`
	ImageURL    string `json:"image_url"`
}

// SceneHub fans scene-ready events out to the websocket clients watching
// each adventure. Rendering is asynchronous relative to turns, so this is
// how a client learns an image arrived after its turn response.
type SceneHub struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	events     chan SceneEvent
	mu         sync.RWMutex
}

func NewSceneHub() *SceneHub {
	return &SceneHub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client, 100),
		unregister: make(chan *Client, 100),
		events:     make(chan SceneEvent, 1000),
	}
}

// Run starts the hub's event loop
func (h *SceneHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case event := <-h.events:
			h.deliver(event)
		}
	}
}

func (h *SceneHub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.ID] = client
	log.Printf("[Hub] Client connected: %s watching %s (total: %d)", client.ID, client.AdventureID, len(h.clients))

	go client.writePump()
}

func (h *SceneHub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID]; ok {
		delete(h.clients, client.ID)
		close(client.Send)
		log.Printf("[Hub] Client disconnected: %s (total: %d)", client.ID, len(h.clients))
	}
}

// deliver sends an event to the clients watching its adventure.
func (h *SceneHub) deliver(event SceneEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("[Hub] Failed to marshal event: %v", err)
		return
	}

	for _, client := range h.clients {
		if client.AdventureID != event.AdventureID {
			continue
		}
		select {
		case client.Send <- data:
		default:
			// Client send buffer full, skip
			log.Printf("[Hub] Client send buffer full: %s", client.ID)
		}
	}
}

// NotifySceneReady queues a scene-ready event for delivery.
func (h *SceneHub) NotifySceneReady(adventureID, imageKey string) {
	event := SceneEvent{
		Type:        "scene_ready",
		AdventureID: adventureID,
		ImageKey:    imageKey,
		ImageURL:    "/api/v1/images/" + imageKey,
	}
	select {
	case h.events <- event:
	default:
		log.Printf("[Hub] Event channel full, dropping scene event for %s", adventureID)
	}
}

// GetClientCount returns the number of connected clients
func (h *SceneHub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.mu.Lock()
			if !ok {
				c.closed = true
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				c.mu.Unlock()
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("[Client] Error writing to %s: %v", c.ID, err)
				c.closed = true
				c.mu.Unlock()
				return
			}
			c.mu.Unlock()

		case <-ticker.C:
			c.mu.Lock()
			if c.closed {
				c.mu.Unlock()
				return
			}

			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.closed = true
				c.mu.Unlock()
				return
			}
			c.mu.Unlock()
		}
	}
}

// Close closes the client connection
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.closed = true
	c.Conn.Close()
}

// readPump discards inbound frames and tears the client down on close.
func (c *Client) readPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Close()
	}()

	c.Conn.SetReadLimit(512)
	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, _, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[Client] Unexpected close from %s: %v", c.ID, err)
			}
			break
		}
	}
}
