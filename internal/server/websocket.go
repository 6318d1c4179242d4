package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Nao-Mk2/aws-log-browser/internal/debounce"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const writeWait = 10 * time.Second

// Hub fans session snapshots out to WebSocket clients. A client whose
// queue is full is dropped rather than stalling the session. A registering
// client first gets the latest snapshot the hub has seen.
type Hub struct {
	clients    map[*Client]bool
	latest     snapshot
	broadcast  chan snapshot
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

type Client struct {
	conn *websocket.Conn
	send chan snapshot
}

// message is the frame pushed to clients.
type message struct {
	Type    string   `json:"type"`
	Session snapshot `json:"session"`
}

// inbound is a frame sent by a client. Only "query" frames are understood:
// they carry raw filter text for the groups or streams list.
type inbound struct {
	Type string `json:"type"`
	List string `json:"list"`
	Text string `json:"text"`
}

func NewHub(initial snapshot) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		latest:     initial,
		broadcast:  make(chan snapshot, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			client.send <- h.latest

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}

		case snap := <-h.broadcast:
			h.latest = snap
			for client := range h.clients {
				select {
				case client.send <- snap:
				default:
					log.Printf("WebSocket client too slow, dropping")
					delete(h.clients, client)
					close(client.send)
				}
			}

		case <-h.done:
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			return
		}
	}
}

// Broadcast queues snap for every client. It never blocks once the hub has
// stopped.
func (h *Hub) Broadcast(snap snapshot) {
	select {
	case h.broadcast <- snap:
	case <-h.done:
	}
}

func (h *Hub) Stop() {
	close(h.done)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	client := &Client{conn: conn, send: make(chan snapshot, 16)}
	select {
	case s.hub.register <- client:
	case <-s.hub.done:
		conn.Close()
		return
	}

	go client.writePump()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	groupIn := make(chan string)
	streamIn := make(chan string)
	go applySettled(debounce.Stream(ctx, s.config.Debounce, groupIn), s.coord.SetGroupQuery)
	go applySettled(debounce.Stream(ctx, s.config.Debounce, streamIn), s.coord.SetStreamQuery)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case s.hub.unregister <- client:
			case <-s.hub.done:
			}
			return
		}
		var in inbound
		if err := json.Unmarshal(data, &in); err != nil || in.Type != "query" {
			continue
		}
		switch in.List {
		case "groups":
			groupIn <- in.Text
		case "streams":
			streamIn <- in.Text
		}
	}
}

func applySettled(settled <-chan string, apply func(string)) {
	for v := range settled {
		apply(v)
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for snap := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteJSON(message{Type: "snapshot", Session: snap}); err != nil {
			log.Printf("WebSocket write error: %v", err)
			return
		}
	}
	c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
}
