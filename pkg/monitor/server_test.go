package monitor

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"skullstepper-go/pkg/shared"
)

// fakeMotion records submissions and answers with a configurable accept
// flag, standing in for the controller's producer API.
type fakeMotion struct {
	mu     sync.Mutex
	accept bool
	calls  []string
	status shared.Status
}

func newFakeMotion() *fakeMotion {
	return &fakeMotion{accept: true}
}

func (f *fakeMotion) record(call string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.accept
}

func (f *fakeMotion) lastCall() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return ""
	}
	return f.calls[len(f.calls)-1]
}

func (f *fakeMotion) Status() shared.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeMotion) MoveTo(target int64) bool { return f.record(fmt.Sprintf("move(%d)", target)) }
func (f *fakeMotion) Move(delta int64) bool { return f.record(fmt.Sprintf("jog(%d)", delta)) }
func (f *fakeMotion) SetMaxSpeed(v float64) bool {
	return f.record(fmt.Sprintf("speed(%g)", v))
}
func (f *fakeMotion) SetAcceleration(v float64) bool {
	return f.record(fmt.Sprintf("accel(%g)", v))
}
func (f *fakeMotion) Home() bool { return f.record("home") }
func (f *fakeMotion) Stop() bool { return f.record("stop") }
func (f *fakeMotion) EmergencyStopNow() bool { return f.record("estop") }
func (f *fakeMotion) Enable() bool { return f.record("enable") }
func (f *fakeMotion) Disable() bool { return f.record("disable") }

func newTestServer(fm *fakeMotion) *Server {
	return New(":0", fm, nil)
}

func TestStatusEndpoint(t *testing.T) {
	fm := newFakeMotion()
	fm.status = shared.Status{
		SystemState:     shared.SystemReady,
		CurrentPosition: 475,
		Homed:           true,
		MinPosition:     10,
		MaxPosition:     940,
		Uptime:          90 * time.Second,
	}
	s := newTestServer(fm)

	rec := httptest.NewRecorder()
	s.handleStatus(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body["system_state"] != "ready" {
		t.Errorf("system_state = %v, want ready", body["system_state"])
	}
	if body["position"] != float64(475) {
		t.Errorf("position = %v, want 475", body["position"])
	}
	if body["homed"] != true {
		t.Errorf("homed = %v, want true", body["homed"])
	}
	if body["max_position"] != float64(940) {
		t.Errorf("max_position = %v, want 940", body["max_position"])
	}
	if body["uptime_seconds"] != float64(90) {
		t.Errorf("uptime_seconds = %v, want 90", body["uptime_seconds"])
	}
}

func TestStatusRejectsPost(t *testing.T) {
	s := newTestServer(newFakeMotion())
	rec := httptest.NewRecorder()
	s.handleStatus(rec, httptest.NewRequest(http.MethodPost, "/status", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func postCommand(t *testing.T, s *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/command", strings.NewReader(body))
	s.handleCommand(rec, req)
	return rec
}

func TestCommandDispatch(t *testing.T) {
	cases := []struct {
		body string
		want string
	}{
		{`{"command": "move", "target": 500}`, "move(500)"},
		{`{"command": "jog", "target": -50}`, "jog(-50)"},
		{`{"command": "speed", "value": 2000}`, "speed(2000)"},
		{`{"command": "accel", "value": 3000}`, "accel(3000)"},
		{`{"command": "home"}`, "home"},
		{`{"command": "stop"}`, "stop"},
		{`{"command": "estop"}`, "estop"},
		{`{"command": "enable"}`, "enable"},
		{`{"command": "disable"}`, "disable"},
	}
	for _, tc := range cases {
		t.Run(tc.want, func(t *testing.T) {
			fm := newFakeMotion()
			s := newTestServer(fm)
			rec := postCommand(t, s, tc.body)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
			}
			if got := fm.lastCall(); got != tc.want {
				t.Errorf("dispatched %q, want %q", got, tc.want)
			}
		})
	}
}

func TestCommandErrors(t *testing.T) {
	cases := []struct {
		name string
		body string
		code int
	}{
		{"bad JSON", `{"command":`, http.StatusBadRequest},
		{"unknown command", `{"command": "warp"}`, http.StatusBadRequest},
		{"move without target", `{"command": "move"}`, http.StatusBadRequest},
		{"speed without value", `{"command": "speed"}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestServer(newFakeMotion())
			rec := postCommand(t, s, tc.body)
			if rec.Code != tc.code {
				t.Errorf("status = %d, want %d", rec.Code, tc.code)
			}
		})
	}
}

func TestCommandQueueFull(t *testing.T) {
	fm := newFakeMotion()
	fm.accept = false
	s := newTestServer(fm)

	rec := postCommand(t, s, `{"command": "home"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body["error"] != "command queue full" {
		t.Errorf("error = %v, want command queue full", body["error"])
	}
}

func TestEstopEndpoint(t *testing.T) {
	fm := newFakeMotion()
	s := newTestServer(fm)

	rec := httptest.NewRecorder()
	s.handleEstop(rec, httptest.NewRequest(http.MethodPost, "/estop", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := fm.lastCall(); got != "estop" {
		t.Errorf("dispatched %q, want estop", got)
	}

	rec = httptest.NewRecorder()
	s.handleEstop(rec, httptest.NewRequest(http.MethodGet, "/estop", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET status = %d, want 405", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(newFakeMotion())
	h := s.corsMiddleware(http.HandlerFunc(s.handleStatus))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/status", nil))

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin = %q, want *", got)
	}
}

func dialWS(t *testing.T, s *Server) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(s.handleWebSocket))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("websocket dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func TestWebSocketInitialStatus(t *testing.T) {
	fm := newFakeMotion()
	fm.status = shared.Status{CurrentPosition: 123}
	conn := dialWS(t, newTestServer(fm))

	var msg map[string]any
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if msg["type"] != "status" {
		t.Fatalf("type = %v, want status", msg["type"])
	}
	status, ok := msg["status"].(map[string]any)
	if !ok {
		t.Fatalf("status payload missing: %v", msg)
	}
	if status["position"] != float64(123) {
		t.Errorf("position = %v, want 123", status["position"])
	}
}

func TestWebSocketCommandAck(t *testing.T) {
	fm := newFakeMotion()
	conn := dialWS(t, newTestServer(fm))

	var msg map[string]any
	if err := conn.ReadJSON(&msg); err != nil { // initial status frame
		t.Fatalf("ReadJSON: %v", err)
	}

	if err := conn.WriteJSON(map[string]any{"command": "home"}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if msg["type"] != "ack" || msg["command"] != "home" {
		t.Errorf("reply = %v, want home ack", msg)
	}
	if got := fm.lastCall(); got != "home" {
		t.Errorf("dispatched %q, want home", got)
	}
}

func TestWebSocketCommandErrors(t *testing.T) {
	fm := newFakeMotion()
	fm.accept = false
	conn := dialWS(t, newTestServer(fm))

	var msg map[string]any
	if err := conn.ReadJSON(&msg); err != nil { // initial status frame
		t.Fatalf("ReadJSON: %v", err)
	}

	if err := conn.WriteJSON(map[string]any{"command": "stop"}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if msg["type"] != "error" || msg["error"] != "command queue full" {
		t.Errorf("reply = %v, want queue full error", msg)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{nope")); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if msg["type"] != "error" {
		t.Errorf("reply = %v, want error", msg)
	}
}
