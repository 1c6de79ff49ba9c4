// Package monitor exposes the controller over HTTP and WebSocket for
// operator dashboards and external show-control systems. It is a pure
// producer/reader: commands go through the controller's queue and status
// comes from snapshots, so a stalled client can never touch the motion
// task.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"skullstepper-go/pkg/log"
	"skullstepper-go/pkg/shared"
)

// MotionInterface is what the server needs from the controller. Every
// submit method reports whether the command was accepted into the queue.
type MotionInterface interface {
	Status() shared.Status
	MoveTo(target int64) bool
	Move(delta int64) bool
	SetMaxSpeed(stepsPerSec float64) bool
	SetAcceleration(stepsPerSec2 float64) bool
	Home() bool
	Stop() bool
	EmergencyStopNow() bool
	Enable() bool
	Disable() bool
}

// Server is the monitor HTTP/WebSocket endpoint.
type Server struct {
	motion MotionInterface
	addr   string
	log    *log.Logger

	httpServer *http.Server
	wsUpgrader websocket.Upgrader
	wsClients  map[int64]*WSClient
	wsClientMu sync.RWMutex
	nextWSID   int64

	running atomic.Bool
}

// New creates a monitor server for the given controller.
func New(addr string, m MotionInterface, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.GetLogger("monitor")
	}
	s := &Server{
		motion:    m,
		addr:      addr,
		log:       logger,
		wsClients: make(map[int64]*WSClient),
	}
	s.wsUpgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // dashboards are served from anywhere on the LAN
		},
	}
	return s
}

// Start serves until Stop. It blocks.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/command", s.handleCommand)
	mux.HandleFunc("/estop", s.handleEstop)
	mux.HandleFunc("/websocket", s.handleWebSocket)

	s.httpServer = &http.Server{
		Addr:    s.addr,
		Handler: s.corsMiddleware(mux),
	}

	s.running.Store(true)
	s.log.Info("monitor server listening on %s", s.addr)
	go s.statusBroadcastLoop()

	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop shuts the server down and disconnects all clients.
func (s *Server) Stop() error {
	s.running.Store(false)

	s.wsClientMu.Lock()
	for _, c := range s.wsClients {
		c.Close()
	}
	s.wsClients = make(map[int64]*WSClient)
	s.wsClientMu.Unlock()

	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// commandRequest is the JSON body for POST /command and for WebSocket
// command messages.
type commandRequest struct {
	Command string   `json:"command"`
	Target  *int64   `json:"target,omitempty"`
	Value   *float64 `json:"value,omitempty"`
}

// dispatch routes one parsed command to the controller. The bool result
// is false when the queue dropped it.
func (s *Server) dispatch(req commandRequest) (bool, error) {
	switch req.Command {
	case "move":
		if req.Target == nil {
			return false, fmt.Errorf("move requires target")
		}
		return s.motion.MoveTo(*req.Target), nil
	case "jog":
		if req.Target == nil {
			return false, fmt.Errorf("jog requires target")
		}
		return s.motion.Move(*req.Target), nil
	case "speed":
		if req.Value == nil {
			return false, fmt.Errorf("speed requires value")
		}
		return s.motion.SetMaxSpeed(*req.Value), nil
	case "accel":
		if req.Value == nil {
			return false, fmt.Errorf("accel requires value")
		}
		return s.motion.SetAcceleration(*req.Value), nil
	case "home":
		return s.motion.Home(), nil
	case "stop":
		return s.motion.Stop(), nil
	case "estop":
		return s.motion.EmergencyStopNow(), nil
	case "enable":
		return s.motion.Enable(), nil
	case "disable":
		return s.motion.Disable(), nil
	}
	return false, fmt.Errorf("unknown command %q", req.Command)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, statusPayload(s.motion.Status()))
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	accepted, err := s.dispatch(req)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !accepted {
		s.writeJSONError(w, http.StatusServiceUnavailable, "command queue full")
		return
	}
	s.writeJSON(w, map[string]any{"result": "ok"})
}

func (s *Server) handleEstop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.motion.EmergencyStopNow() {
		s.writeJSONError(w, http.StatusServiceUnavailable, "command queue full")
		return
	}
	s.writeJSON(w, map[string]any{"result": "ok"})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) writeJSONError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": msg})
}

// statusPayload flattens a status snapshot into the wire shape. Enums go
// out as strings so dashboards don't depend on internal numbering.
func statusPayload(st shared.Status) map[string]any {
	return map[string]any{
		"system_state":    st.SystemState.String(),
		"motion_state":    st.MotionState.String(),
		"safety_state":    st.SafetyState.String(),
		"position":        st.CurrentPosition,
		"target":          st.TargetPosition,
		"speed":           st.CurrentSpeed,
		"enabled":         st.StepperEnabled,
		"limit_left":      st.LimitsActive[0],
		"limit_right":     st.LimitsActive[1],
		"alarm":           st.AlarmActive,
		"limit_fault":     st.LimitFaultActive,
		"homed":           st.Homed,
		"homing_phase":    st.HomingPhase.String(),
		"homing_progress": st.HomingProgress,
		"min_position":    st.MinPosition,
		"max_position":    st.MaxPosition,
		"uptime_seconds":  st.Uptime.Seconds(),
	}
}
