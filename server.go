package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/meetcap/meetcap/internal/config"
	"github.com/meetcap/meetcap/internal/notify"
	"github.com/meetcap/meetcap/internal/protocol"
	"github.com/meetcap/meetcap/internal/server"
)

// Server exposes the recorder's control surface over HTTP and WebSocket.
// State pushes flow one way: the coordinator broadcasts into PushState, and
// every connected client gets the fresh snapshot.
type Server struct {
	config        *config.Config
	commands      *server.CommandHandler
	dispatch      server.Dispatcher
	notifier      *notify.Notifier
	version       *VersionChecker
	browserOnline bool

	mu       sync.RWMutex
	state    protocol.RecordingState
	watchers map[chan struct{}]struct{}
}

// NewServer returns a new Server routing commands into the dispatcher.
func NewServer(cfg *config.Config, dispatcher server.Dispatcher, notifier *notify.Notifier, browserOnline bool) *Server {
	return &Server{
		config:        cfg,
		commands:      server.NewCommandHandler(dispatcher),
		dispatch:      dispatcher,
		notifier:      notifier,
		version:       NewVersionChecker(),
		browserOnline: browserOnline,
		watchers:      make(map[chan struct{}]struct{}),
	}
}

// PushState records the latest snapshot and wakes every connected client.
// Wired as the coordinator's broadcast function.
func (s *Server) PushState(state protocol.RecordingState) {
	s.mu.Lock()
	s.state = state
	for w := range s.watchers {
		select {
		case w <- struct{}{}:
		default:
		}
	}
	s.mu.Unlock()
}

func (s *Server) currentState() protocol.RecordingState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Server) addWatcher() chan struct{} {
	w := make(chan struct{}, 1)
	s.mu.Lock()
	s.watchers[w] = struct{}{}
	s.mu.Unlock()
	return w
}

func (s *Server) removeWatcher(w chan struct{}) {
	s.mu.Lock()
	delete(s.watchers, w)
	s.mu.Unlock()
}

// handleWebSocket handles bidirectional WebSocket communication for
// commands and real-time state updates.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := server.UpgradeConnection(w, r)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}

	// Create buffered send channel for thread-safe writes.
	// Only the writer goroutine writes to the connection, preventing race conditions.
	send := make(chan any, 16)
	done := make(chan struct{})
	stateUpdate := s.addWatcher()
	defer s.removeWatcher(stateUpdate)

	go s.runWebSocketWriter(conn, send)
	go s.runWebSocketReader(r.Context(), conn, send, done, stateUpdate)

	s.runWebSocketEventLoop(send, done, stateUpdate)
}

// runWebSocketWriter writes messages from the send channel to the connection.
func (s *Server) runWebSocketWriter(conn server.WebSocketConn, send <-chan any) {
	defer func() {
		if err := conn.Close(); err != nil {
			slog.Debug("WebSocket close error", "error", err)
		}
	}()
	for msg := range send {
		if err := conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// runWebSocketReader reads commands from the connection and dispatches them.
func (s *Server) runWebSocketReader(ctx context.Context, conn server.WebSocketConn, send chan<- any, done chan<- struct{}, stateUpdate chan struct{}) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in WebSocket reader", "panic", r)
		}
		close(done)
	}()

	for {
		var msg protocol.Message
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		s.commands.Handle(ctx, msg, send, func() {
			select {
			case stateUpdate <- struct{}{}:
			default:
			}
		})
	}
}

// runWebSocketEventLoop pushes state changes and periodic status updates.
func (s *Server) runWebSocketEventLoop(send chan any, done <-chan struct{}, stateUpdate <-chan struct{}) {
	statusTicker := time.NewTicker(3 * time.Second)
	defer statusTicker.Stop()

	trySend := func(msg any) bool {
		select {
		case send <- msg:
			return true
		case <-done:
			return false
		}
	}

	// Send initial status
	if !trySend(s.buildWSStatus()) {
		close(send)
		return
	}

	for {
		select {
		case <-done:
			close(send)
			return
		case <-stateUpdate:
			if !trySend(server.WSStatePush{Type: protocol.MsgStateChanged, State: s.currentState()}) {
				close(send)
				return
			}
		case <-statusTicker.C:
			if !trySend(s.buildWSStatus()) {
				close(send)
				return
			}
		}
	}
}

// wsStatus is the periodic full status frame.
type wsStatus struct {
	Type          string                  `json:"type"`
	State         protocol.RecordingState `json:"state"`
	Settings      config.Settings         `json:"settings"`
	BrowserOnline bool                    `json:"browser_online"`
	Platform      string                  `json:"platform"`
	Version       VersionInfo             `json:"version"`
}

func (s *Server) buildWSStatus() wsStatus {
	return wsStatus{
		Type:          "status",
		State:         s.currentState(),
		Settings:      s.config.CurrentSettings(),
		BrowserOnline: s.browserOnline,
		Platform:      runtime.GOOS,
		Version:       s.version.Info(),
	}
}

// handleState serves the current state snapshot as JSON.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, s.currentState())
}

// handleRecordings serves the recording history.
func (s *Server) handleRecordings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	resp := s.dispatch.Dispatch(r.Context(), &protocol.Message{Type: protocol.MsgListRecordings})
	if !resp.OK {
		s.writeJSON(w, http.StatusInternalServerError, resp)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleTestNotifications probes the configured notification channels.
func (s *Server) handleTestNotifications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.notifier.TestChannels(r.Context()); err != nil {
		s.writeJSON(w, http.StatusBadGateway, protocol.Fail(err))
		return
	}
	s.writeJSON(w, http.StatusOK, protocol.Ok(nil))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"browser_online": s.browserOnline,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

// SetupRoutes returns an [http.Handler] configured with all application routes.
func (s *Server) SetupRoutes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/api/recordings", s.handleRecordings)
	mux.HandleFunc("/api/test-notifications", s.handleTestNotifications)
	mux.HandleFunc("/healthz", s.handleHealth)
	return mux
}

// Start launches the HTTP server in the background and returns it for
// shutdown control.
func (s *Server) Start() *http.Server {
	addr := fmt.Sprintf(":%d", s.config.Snapshot().Port)
	slog.Info("starting control server", "addr", addr)

	srv := &http.Server{
		Addr:    addr,
		Handler: s.SetupRoutes(),
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	return srv
}
