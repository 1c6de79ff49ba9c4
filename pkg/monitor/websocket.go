// WebSocket push channel. Status snapshots are broadcast at 10 Hz; a
// client whose send buffer fills just misses frames.

package monitor

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	broadcastInterval = 100 * time.Millisecond
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = 30 * time.Second
	maxMessageSize    = 4 * 1024
)

// WSClient is one connected dashboard.
type WSClient struct {
	id     int64
	conn   *websocket.Conn
	server *Server
	sendCh chan any
	done   chan struct{}
	mu     sync.Mutex
}

func (s *Server) newWSClient(conn *websocket.Conn) *WSClient {
	return &WSClient{
		id:     atomic.AddInt64(&s.nextWSID, 1),
		conn:   conn,
		server: s,
		sendCh: make(chan any, 64),
		done:   make(chan struct{}),
	}
}

// Send queues a message without blocking. Full buffer means the frame is
// dropped; the next broadcast supersedes it anyway.
func (c *WSClient) Send(msg any) {
	select {
	case c.sendCh <- msg:
	case <-c.done:
	default:
	}
}

// Close shuts the connection down once.
func (c *WSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.done:
		return
	default:
		close(c.done)
	}
	c.conn.Close()
}

func (c *WSClient) readPump() {
	defer func() {
		c.server.removeClient(c)
		c.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.server.log.Warn("websocket read error: %v", err)
			}
			return
		}
		c.handleMessage(message)
	}
}

func (c *WSClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case msg := <-c.sendCh:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// handleMessage accepts the same command shape as POST /command.
func (c *WSClient) handleMessage(data []byte) {
	var req commandRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.Send(map[string]any{"type": "error", "error": "invalid JSON"})
		return
	}
	accepted, err := c.server.dispatch(req)
	if err != nil {
		c.Send(map[string]any{"type": "error", "error": err.Error()})
		return
	}
	if !accepted {
		c.Send(map[string]any{"type": "error", "error": "command queue full"})
		return
	}
	c.Send(map[string]any{"type": "ack", "command": req.Command})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed: %v", err)
		return
	}

	client := s.newWSClient(conn)
	s.wsClientMu.Lock()
	s.wsClients[client.id] = client
	s.wsClientMu.Unlock()
	s.log.Info("websocket client %d connected from %s", client.id, r.RemoteAddr)

	go client.writePump()

	// Push the current state right away instead of waiting for the next
	// broadcast.
	client.Send(map[string]any{"type": "status", "status": statusPayload(s.motion.Status())})

	client.readPump()
}

func (s *Server) removeClient(client *WSClient) {
	s.wsClientMu.Lock()
	delete(s.wsClients, client.id)
	s.wsClientMu.Unlock()
	s.log.Info("websocket client %d disconnected", client.id)
}

func (s *Server) statusBroadcastLoop() {
	ticker := time.NewTicker(broadcastInterval)
	defer ticker.Stop()

	for s.running.Load() {
		<-ticker.C
		msg := map[string]any{"type": "status", "status": statusPayload(s.motion.Status())}

		s.wsClientMu.RLock()
		for _, client := range s.wsClients {
			client.Send(msg)
		}
		s.wsClientMu.RUnlock()
	}
}
