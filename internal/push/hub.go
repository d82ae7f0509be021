package push

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/sugarsphere/backend/internal/models"
	"github.com/sugarsphere/backend/internal/tokens"
)

const (
	EventOrderStatusUpdate = "order-status-update"
	EventNotificationNew   = "notification:new"
	EventOrderNew          = "order:new"
	EventLowStock          = "inventory:lowStock"

	writeTimeout = 5 * time.Second
)

type client struct {
	conn    *websocket.Conn
	userID  uint
	isAdmin bool
	mu      sync.Mutex
}

func (cl *client) write(payload []byte) error {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return cl.conn.WriteMessage(websocket.TextMessage, payload)
}

// Hub keeps one room per connected account plus a shared admin room. Pushes
// are fire-and-forget: a failed write drops the connection, the recipient
// still sees the notification on the next poll.
type Hub struct {
	JWTSecret []byte
	Log       *slog.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}

	upgrader websocket.Upgrader
}

func NewHub(jwtSecret []byte, log *slog.Logger) *Hub {
	return &Hub{
		JWTSecret: jwtSecret,
		Log:       log,
		clients:   make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Serve authenticates the handshake with the same access token the REST API
// uses and parks the connection in the caller's room.
func (h *Hub) Serve(c echo.Context) error {
	raw := c.QueryParam("token")
	if raw == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	claims, err := tokens.AccessClaimsFromToken(raw, h.JWTSecret)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}
	userID, err := claims.UserID()
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	cl := &client{
		conn:    ws,
		userID:  userID,
		isAdmin: claims.Role == models.RoleAdmin,
	}
	h.register(cl)
	h.Log.Info("ws connected", "user_id", userID, "admin", cl.isAdmin)

	go h.readLoop(cl)
	return nil
}

func (h *Hub) register(cl *client) {
	h.mu.Lock()
	h.clients[cl] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) unregister(cl *client) {
	h.mu.Lock()
	delete(h.clients, cl)
	h.mu.Unlock()
	cl.conn.Close()
}

// readLoop discards inbound frames; it exists to notice the peer going away.
func (h *Hub) readLoop(cl *client) {
	defer h.unregister(cl)
	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			h.Log.Info("ws disconnected", "user_id", cl.userID)
			return
		}
	}
}

type envelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

func (h *Hub) broadcast(match func(*client) bool, event string, data interface{}) {
	payload, err := json.Marshal(envelope{Event: event, Data: data})
	if err != nil {
		h.Log.Error("ws marshal error", "event", event, "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*client, 0, 4)
	for cl := range h.clients {
		if match(cl) {
			targets = append(targets, cl)
		}
	}
	h.mu.RUnlock()

	for _, cl := range targets {
		if err := cl.write(payload); err != nil {
			h.Log.Warn("ws write error", "user_id", cl.userID, "error", err)
			h.unregister(cl)
		}
	}
}

func (h *Hub) ToUser(userID uint, event string, data interface{}) {
	h.broadcast(func(cl *client) bool { return cl.userID == userID }, event, data)
}

func (h *Hub) ToAdmins(event string, data interface{}) {
	h.broadcast(func(cl *client) bool { return cl.isAdmin }, event, data)
}

func (h *Hub) Close() {
	h.mu.Lock()
	for cl := range h.clients {
		cl.conn.Close()
		delete(h.clients, cl)
	}
	h.mu.Unlock()
}
