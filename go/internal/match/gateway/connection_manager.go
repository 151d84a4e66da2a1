package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ActionSink receives the actions read from client sockets.
type ActionSink interface {
	Submit(connID, room string, action Action)
}

// ConnectionManager manages the WebSocket connections of match participants
type ConnectionManager struct {
	connections map[string]*Connection
	// Room membership, by access code
	rooms map[string]map[*Connection]bool
	mu    sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
	sink     ActionSink

	broadcastCh chan BroadcastMessage
}

// Connection represents a WebSocket connection to a client
type Connection struct {
	ID      string
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

	room   string
	closed chan struct{}
	once   sync.Once

	ConnectedAt time.Time
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	CheckOrigin     func(r *http.Request) bool
}

// BroadcastMessage is a frame resolved to its recipients at enqueue time.
type BroadcastMessage struct {
	Room    string
	Event   Event
	Targets []*Connection
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  256,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[string]*Connection),
		rooms:       make(map[string]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan BroadcastMessage, 1000),
	}
}

// SetActionSink routes inbound actions to sink. It must be called before the
// first connection is upgraded.
func (cm *ConnectionManager) SetActionSink(sink ActionSink) {
	cm.sink = sink
}

// Start begins processing broadcast messages
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			cm.closeAll()
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBufferSize),
		Manager:     cm,
		closed:      make(chan struct{}),
		ConnectedAt: time.Now(),
	}

	cm.mu.Lock()
	cm.connections[connection.ID] = connection
	cm.mu.Unlock()

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("remote_addr", r.RemoteAddr).
		Msg("WebSocket connection established")

	return nil
}

// Join binds a connection to room, leaving any previous room.
func (cm *ConnectionManager) Join(connID, room string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	conn, ok := cm.connections[connID]
	if !ok {
		return
	}
	cm.leaveLocked(conn)
	if cm.rooms[room] == nil {
		cm.rooms[room] = make(map[*Connection]bool)
	}
	cm.rooms[room][conn] = true
	conn.room = room

	log.Debug().
		Str("connection_id", connID).
		Str("room", room).
		Int("room_connections", len(cm.rooms[room])).
		Msg("connection joined room")
}

// Leave unbinds a connection from room. The socket stays open.
func (cm *ConnectionManager) Leave(connID, room string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if conn, ok := cm.connections[connID]; ok && conn.room == room {
		cm.leaveLocked(conn)
	}
}

func (cm *ConnectionManager) leaveLocked(conn *Connection) {
	if conn.room == "" {
		return
	}
	if members, ok := cm.rooms[conn.room]; ok {
		delete(members, conn)
		if len(members) == 0 {
			delete(cm.rooms, conn.room)
		}
	}
	conn.room = ""
}

// InRoom reports whether connID is currently bound to room.
func (cm *ConnectionManager) InRoom(connID, room string) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	conn, ok := cm.connections[connID]
	return ok && conn.room == room
}

// ToRoom sends an event to every connection bound to room
func (cm *ConnectionManager) ToRoom(room string, event Event) {
	cm.mu.RLock()
	targets := make([]*Connection, 0, len(cm.rooms[room]))
	for conn := range cm.rooms[room] {
		targets = append(targets, conn)
	}
	cm.mu.RUnlock()

	cm.enqueue(BroadcastMessage{Room: room, Event: event, Targets: targets})
}

// ToParticipant sends an event to a single connection
func (cm *ConnectionManager) ToParticipant(connID string, event Event) {
	cm.mu.RLock()
	conn, ok := cm.connections[connID]
	var room string
	if ok {
		room = conn.room
	}
	cm.mu.RUnlock()
	if !ok {
		return
	}
	cm.enqueue(BroadcastMessage{Room: room, Event: event, Targets: []*Connection{conn}})
}

func (cm *ConnectionManager) enqueue(message BroadcastMessage) {
	select {
	case cm.broadcastCh <- message:
	default:
		log.Warn().
			Str("room", message.Room).
			Str("event_type", string(message.Event.Type())).
			Msg("broadcast channel full, dropping message")
	}
}

// handleBroadcast processes a broadcast message
func (cm *ConnectionManager) handleBroadcast(message BroadcastMessage) {
	if len(message.Targets) == 0 {
		return
	}
	frame, err := EncodeEvent(message.Room, message.Event)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode event for broadcast")
		return
	}

	for _, conn := range message.Targets {
		select {
		case <-conn.closed:
		case conn.Send <- frame:
		default:
			log.Warn().
				Str("connection_id", conn.ID).
				Msg("connection send buffer full, closing connection")
			conn.close()
		}
	}

	log.Debug().
		Str("event_type", string(message.Event.Type())).
		Str("room", message.Room).
		Int("connections", len(message.Targets)).
		Msg("event broadcasted")
}

// unregisterConnection forgets a connection and tells the sink it is gone.
func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	_, exists := cm.connections[conn.ID]
	if exists {
		cm.leaveLocked(conn)
		delete(cm.connections, conn.ID)
	}
	cm.mu.Unlock()

	if !exists {
		return
	}
	log.Info().Str("connection_id", conn.ID).Msg("connection unregistered")
	if cm.sink != nil {
		cm.sink.Submit(conn.ID, "", Disconnected{})
	}
}

func (cm *ConnectionManager) closeAll() {
	cm.mu.RLock()
	conns := make([]*Connection, 0, len(cm.connections))
	for _, conn := range cm.connections {
		conns = append(conns, conn)
	}
	cm.mu.RUnlock()

	for _, conn := range conns {
		conn.close()
	}
}

// ConnectionStats is the payload of the stats endpoint.
type ConnectionStats struct {
	TotalConnections int            `json:"total_connections"`
	ActiveRooms      int            `json:"active_rooms"`
	RoomConnections  map[string]int `json:"room_connections"`
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := ConnectionStats{
		TotalConnections: len(cm.connections),
		ActiveRooms:      len(cm.rooms),
		RoomConnections:  make(map[string]int, len(cm.rooms)),
	}
	for room, members := range cm.rooms {
		stats.RoomConnections[room] = len(members)
	}
	return stats
}

func (c *Connection) close() {
	c.once.Do(func() {
		close(c.closed)
		c.Conn.Close()
	})
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.closed:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump reads client frames and forwards them as actions
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		c.handleClientMessage(message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

// handleClientMessage decodes one frame and hands it to the sink
func (c *Connection) handleClientMessage(message []byte) {
	var env Envelope
	if err := json.Unmarshal(message, &env); err != nil {
		log.Warn().Err(err).Str("connection_id", c.ID).Msg("malformed client frame")
		return
	}
	action, err := DecodeAction(env)
	if err != nil {
		log.Warn().Err(err).Str("connection_id", c.ID).Msg("undecodable client action")
		return
	}
	if c.Manager.sink == nil {
		return
	}
	c.Manager.sink.Submit(c.ID, env.Room, action)
}
