package mockapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"miniapp-wallet-client/internal/logger"
)

const wsWriteWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Message struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

type Client struct {
	UserID string
	Conn   *websocket.Conn
	mu     sync.Mutex
}

func (c *Client) send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return c.Conn.WriteJSON(msg)
}

type outbound struct {
	userID string
	msg    Message
}

// Hub fans balance pushes out to every connection of a user.
type Hub struct {
	clients    map[string]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan outbound
	done       chan struct{}
	stopOnce   sync.Once
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan outbound, 100),
		done:       make(chan struct{}),
	}
}

func (hub *Hub) Run() {
	for {
		select {
		case client := <-hub.register:
			conns, ok := hub.clients[client.UserID]
			if !ok {
				conns = make(map[*Client]struct{})
				hub.clients[client.UserID] = conns
			}
			conns[client] = struct{}{}
			logger.Debug(context.Background(), "ws client registered", "user_id", client.UserID)

		case client := <-hub.unregister:
			if conns, ok := hub.clients[client.UserID]; ok {
				delete(conns, client)
				if len(conns) == 0 {
					delete(hub.clients, client.UserID)
				}
				logger.Debug(context.Background(), "ws client unregistered", "user_id", client.UserID)
			}

		case out := <-hub.broadcast:
			for client := range hub.clients[out.userID] {
				if err := client.send(out.msg); err != nil {
					logger.Debug(context.Background(), "ws send failed", "user_id", client.UserID, "error", err)
				}
			}

		case <-hub.done:
			for _, conns := range hub.clients {
				for client := range conns {
					client.Conn.Close()
				}
			}
			hub.clients = make(map[string]map[*Client]struct{})
			return
		}
	}
}

func (hub *Hub) Stop() {
	hub.stopOnce.Do(func() { close(hub.done) })
}

// BroadcastBalance queues a BALANCE_UPDATE for userID.
func (hub *Hub) BroadcastBalance(userID string, balance decimal.Decimal, currency string) {
	select {
	case hub.broadcast <- outbound{userID: userID, msg: balanceMessage(balance, currency)}:
	case <-hub.done:
	}
}

func balanceMessage(balance decimal.Decimal, currency string) Message {
	return Message{
		Type: "BALANCE_UPDATE",
		Data: gin.H{
			"balance":  balance,
			"currency": currency,
		},
	}
}

type WebSocketHandler struct {
	hub    *Hub
	ledger *Ledger
}

func NewWebSocketHandler(hub *Hub, ledger *Ledger) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, ledger: ledger}
}

func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	userID := c.GetString(ctxUserID)
	ctx := c.Request.Context()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn(ctx, "failed to upgrade to websocket", "error", err)
		return
	}

	client := &Client{UserID: userID, Conn: conn}

	select {
	case h.hub.register <- client:
	case <-h.hub.done:
		conn.Close()
		return
	}
	defer func() {
		select {
		case h.hub.unregister <- client:
		case <-h.hub.done:
		}
		conn.Close()
	}()

	if balance, err := h.ledger.Balance(userID); err == nil {
		client.send(balanceMessage(balance.Balance, balance.Currency))
	}

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug(ctx, "websocket closed", "user_id", userID, "error", err)
			}
			return
		}

		if msg.Type == "PING" {
			client.send(Message{
				Type: "PONG",
				Data: gin.H{"timestamp": time.Now().Unix()},
			})
		}
	}
}
