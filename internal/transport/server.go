// Package transport exposes the table over websockets. The server is
// an orchestrator event listener: every table event fans out to the
// connections watching that session.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/cardroom/holdem/internal/orchestrator"
)

// Identity resolves a connecting player to a stable player id.
type Identity interface {
	Authenticate(playerName, token string) (string, error)
}

// NameIdentity accepts any non-empty name as its own id. Suitable for
// private games; production deployments supply a real verifier.
type NameIdentity struct{}

func (NameIdentity) Authenticate(playerName, _ string) (string, error) {
	if playerName == "" {
		return "", fmt.Errorf("player name required")
	}
	return playerName, nil
}

// Server owns the websocket endpoint and connection registry.
type Server struct {
	addr     string
	logger   *log.Logger
	orch     *orchestrator.Orchestrator
	identity Identity
	upgrader websocket.Upgrader

	register   chan *Connection
	unregister chan *Connection

	mu       sync.RWMutex
	conns    map[*Connection]bool
	byPlayer map[string]*Connection

	httpServer *http.Server
}

// NewServer creates a websocket server bound to the orchestrator.
func NewServer(addr string, orch *orchestrator.Orchestrator, identity Identity, logger *log.Logger) *Server {
	if identity == nil {
		identity = NameIdentity{}
	}
	return &Server{
		addr:     addr,
		logger:   logger.WithPrefix("transport"),
		orch:     orch,
		identity: identity,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		register:   make(chan *Connection, 16),
		unregister: make(chan *Connection, 16),
		conns:      make(map[*Connection]bool),
		byPlayer:   make(map[string]*Connection),
	}
}

// Run serves until the context is cancelled. It subscribes to the
// orchestrator for the duration.
func (s *Server) Run(ctx context.Context) error {
	s.orch.Subscribe(s)
	defer s.orch.Unsubscribe(s)

	go s.trackConnections(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	s.httpServer = &http.Server{Addr: s.addr, Handler: mux}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.addr)
		errc <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := s.httpServer.Shutdown(shutdownCtx)
		s.closeAll()
		return err
	case err := <-errc:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (s *Server) trackConnections(ctx context.Context) {
	for {
		select {
		case conn := <-s.register:
			s.mu.Lock()
			s.conns[conn] = true
			total := len(s.conns)
			s.mu.Unlock()
			s.logger.Info("client connected", "total", total)

		case conn := <-s.unregister:
			s.drop(conn)

		case <-ctx.Done():
			return
		}
	}
}

// drop removes a connection and tells the orchestrator the player went
// away, starting their disconnect grace.
func (s *Server) drop(conn *Connection) {
	s.mu.Lock()
	if !s.conns[conn] {
		s.mu.Unlock()
		return
	}
	delete(s.conns, conn)
	playerID := conn.player()
	sessionID := conn.session()
	if playerID != "" && s.byPlayer[playerID] == conn {
		delete(s.byPlayer, playerID)
	}
	total := len(s.conns)
	s.mu.Unlock()

	_ = conn.Close()
	s.logger.Info("client disconnected", "player", playerID, "total", total)

	if playerID != "" && sessionID != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.orch.Disconnect(ctx, sessionID, playerID); err != nil {
			s.logger.Debug("disconnect notice failed", "player", playerID, "error", err)
		}
	}
}

// bind associates a player with this connection, displacing any stale
// one, and clears their disconnected state if they were in a game.
func (s *Server) bind(playerID string, conn *Connection) {
	s.mu.Lock()
	prev := s.byPlayer[playerID]
	s.byPlayer[playerID] = conn
	s.mu.Unlock()

	if prev != nil && prev != conn {
		_ = prev.Close()
	}
	if sessionID := conn.session(); sessionID != "" {
		return
	}
	// Reconnect into any session that still seats this player.
	for _, sess := range s.orch.Sessions() {
		if p, ok := sess.Players[playerID]; ok && p.IsActive {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := s.orch.Reconnect(ctx, sess.ID, playerID)
			cancel()
			if err == nil {
				conn.mu.Lock()
				conn.sessionID = sess.ID
				conn.mu.Unlock()
			}
			return
		}
	}
}

func (s *Server) closeAll() {
	s.mu.Lock()
	conns := make([]*Connection, 0, len(s.conns))
	for conn := range s.conns {
		conns = append(conns, conn)
	}
	s.conns = make(map[*Connection]bool)
	s.byPlayer = make(map[string]*Connection)
	s.mu.Unlock()
	for _, conn := range conns {
		_ = conn.Close()
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("upgrade failed", "error", err)
		return
	}
	c := newConnection(s, conn)
	s.register <- c
	c.start()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"ok","sessions":%d}`, len(s.orch.Sessions()))
}

// HandleEvent implements orchestrator.Listener: events fan out to
// every connection watching the event's session.
func (s *Server) HandleEvent(e orchestrator.Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		s.logger.Error("event marshal failed", "event", e.EventName(), "error", err)
		return
	}
	msg, err := NewMessage(TypeEvent, EventData{Name: e.EventName(), Payload: payload})
	if err != nil {
		return
	}

	s.mu.RLock()
	targets := make([]*Connection, 0, len(s.conns))
	for conn := range s.conns {
		if conn.session() == e.Session() {
			targets = append(targets, conn)
		}
	}
	s.mu.RUnlock()

	for _, conn := range targets {
		conn.Send(msg)
	}
}
