// Package websocket streams verification workflow events to connected
// dashboard clients.
package websocket

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"community-portal/verification-backend/internal/notifications"
	"community-portal/verification-backend/pkg/security"
)

const (
	sendBuffer   = 64
	pongWait     = 60 * time.Second
	pingInterval = 54 * time.Second
	writeWait    = 10 * time.Second
)

// Manager tracks websocket clients and fans events out to them.
type Manager struct {
	connections map[string]*Connection
	mu          sync.RWMutex
	hub         *Hub
	upgrader    websocket.Upgrader
	logger      *zap.Logger
	closeOnce   sync.Once
}

// Connection is one websocket client.
type Connection struct {
	ID          string
	Subject     string
	Conn        *websocket.Conn
	Send        chan notifications.WebSocketMessage
	ConnectedAt time.Time
	// MemberID restricts delivery to events about one member when set.
	MemberID string
}

// Hub serializes registration and broadcast.
type Hub struct {
	connections map[*Connection]bool
	broadcast   chan notifications.WebSocketMessage
	register    chan *Connection
	unregister  chan *Connection
	stop        chan struct{}
	logger      *zap.Logger
}

// NewManager starts the hub goroutine and returns the manager.
func NewManager(logger *zap.Logger) *Manager {
	hub := &Hub{
		connections: make(map[*Connection]bool),
		broadcast:   make(chan notifications.WebSocketMessage, 256),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		stop:        make(chan struct{}),
		logger:      logger,
	}

	go hub.run()

	return &Manager{
		connections: make(map[string]*Connection),
		hub:         hub,
		logger:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// RegisterRoutes registers the event stream route
func (m *Manager) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/events", func(c *gin.Context) {
		subject := c.GetString(security.ContextSubjectKey)
		if _, err := m.HandleConnection(c.Writer, c.Request, subject); err != nil {
			m.logger.Warn("Websocket upgrade failed", zap.Error(err))
		}
	})
}

// HandleConnection upgrades the request and starts the client pumps. The
// optional member_id query parameter narrows the stream.
func (m *Manager) HandleConnection(w http.ResponseWriter, r *http.Request, subject string) (*Connection, error) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		Subject:     subject,
		Conn:        conn,
		Send:        make(chan notifications.WebSocketMessage, sendBuffer),
		ConnectedAt: time.Now(),
		MemberID:    r.URL.Query().Get("member_id"),
	}

	connection.Send <- notifications.WebSocketMessage{
		Type:      notifications.WSMessageTypeStatus,
		Data:      map[string]any{"status": "connected", "connection_id": connection.ID},
		Timestamp: time.Now(),
	}

	select {
	case m.hub.register <- connection:
	case <-m.hub.stop:
		conn.Close()
		return nil, fmt.Errorf("event hub closed")
	}

	m.mu.Lock()
	m.connections[connection.ID] = connection
	m.mu.Unlock()

	go m.readPump(connection)
	go m.writePump(connection)

	return connection, nil
}

// readPump only drains control frames; clients do not send commands.
func (m *Manager) readPump(conn *Connection) {
	defer func() {
		select {
		case m.hub.unregister <- conn:
		case <-m.hub.stop:
		}
		m.mu.Lock()
		delete(m.connections, conn.ID)
		m.mu.Unlock()
		conn.Conn.Close()
	}()

	conn.Conn.SetReadLimit(512)
	conn.Conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.Conn.SetPongHandler(func(string) error {
		conn.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				m.logger.Debug("Websocket closed", zap.String("connection_id", conn.ID), zap.Error(err))
			}
			return
		}
	}
}

func (m *Manager) writePump(conn *Connection) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		conn.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.Conn.WriteJSON(message); err != nil {
				return
			}

		case <-ticker.C:
			conn.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) run() {
	for {
		select {
		case conn := <-h.register:
			h.connections[conn] = true
			h.logger.Debug("Websocket registered", zap.String("connection_id", conn.ID), zap.String("subject", conn.Subject))

		case conn := <-h.unregister:
			if _, ok := h.connections[conn]; ok {
				delete(h.connections, conn)
				close(conn.Send)
			}

		case message := <-h.broadcast:
			memberID, _ := message.Data["member_id"].(string)
			for conn := range h.connections {
				if conn.MemberID != "" && conn.MemberID != memberID {
					continue
				}
				select {
				case conn.Send <- message:
				default:
					// slow client
					close(conn.Send)
					delete(h.connections, conn)
				}
			}

		case <-h.stop:
			for conn := range h.connections {
				close(conn.Send)
				delete(h.connections, conn)
			}
			return
		}
	}
}

// Publish broadcasts a workflow event. It never blocks; events are
// dropped when the hub is saturated.
func (m *Manager) Publish(event notifications.Event) {
	data := map[string]any{
		"event": event.Type,
	}
	if event.MemberID != "" {
		data["member_id"] = event.MemberID
	}
	if event.ActorID != "" {
		data["actor_id"] = event.ActorID
	}
	if event.ChannelID != "" {
		data["channel_id"] = event.ChannelID
	}
	for k, v := range event.Detail {
		data[k] = v
	}

	message := notifications.WebSocketMessage{
		Type:      notifications.WSMessageTypeEvent,
		Data:      data,
		Timestamp: event.Timestamp,
		Source:    "verification",
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now()
	}

	select {
	case m.hub.broadcast <- message:
	default:
		m.logger.Warn("Event hub full, dropping event", zap.String("event", event.Type))
	}
}

// GetConnectionCount returns the number of active connections
func (m *Manager) GetConnectionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// Close stops the hub; its goroutine closes every client send channel.
func (m *Manager) Close() {
	m.closeOnce.Do(func() { close(m.hub.stop) })

	m.mu.Lock()
	for _, conn := range m.connections {
		conn.Conn.Close()
	}
	m.connections = make(map[string]*Connection)
	m.mu.Unlock()
}

var _ notifications.Publisher = (*Manager)(nil)
