package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/cardroom/holdem/internal/engine"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
)

// Connection wraps one websocket client. Reads and writes run on their
// own goroutines; everything routed to the orchestrator goes through
// its per-session queue.
type Connection struct {
	server *Server
	conn   *websocket.Conn
	send   chan *Message
	logger *log.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.RWMutex
	playerID  string
	sessionID string

	closeOnce sync.Once
}

func newConnection(s *Server, conn *websocket.Conn) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		server: s,
		conn:   conn,
		send:   make(chan *Message, 256),
		logger: s.logger.WithPrefix("conn"),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (c *Connection) start() {
	go c.writePump()
	go c.readPump()
}

// Close tears the connection down once.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		close(c.send)
		err = c.conn.Close()
	})
	return err
}

// Send queues a message without blocking; a full buffer drops the
// connection rather than stalling the caller.
func (c *Connection) Send(msg *Message) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Debug("send on closed connection", "recover", r)
		}
	}()
	select {
	case c.send <- msg:
	case <-c.ctx.Done():
	default:
		c.logger.Warn("send buffer full, closing connection", "player", c.player())
		_ = c.Close()
	}
}

func (c *Connection) player() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.playerID
}

func (c *Connection) session() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

func (c *Connection) readPump() {
	defer func() {
		c.server.unregister <- c
		_ = c.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("websocket error", "error", err)
			}
			return
		}
		c.handleMessage(&msg)
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				c.logger.Error("write failed", "error", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Connection) handleMessage(msg *Message) {
	if msg.Type != TypeHello && c.player() == "" {
		c.sendError("not_authenticated", "send hello first", msg.RequestID)
		return
	}

	var err error
	switch msg.Type {
	case TypeHello:
		var data HelloData
		if err = c.decode(msg, &data); err == nil {
			err = c.handleHello(data, msg.RequestID)
		}
	case TypeJoin:
		var data JoinData
		if err = c.decode(msg, &data); err == nil {
			err = c.handleJoin(data, msg.RequestID)
		}
	case TypeLeave:
		var data LeaveData
		if err = c.decode(msg, &data); err == nil {
			err = c.handleLeave(data, msg.RequestID)
		}
	case TypeAction:
		var data ActionData
		if err = c.decode(msg, &data); err == nil {
			err = c.handleAction(data, msg.RequestID)
		}
	case TypeTimeBank:
		var data TimeBankData
		if err = c.decode(msg, &data); err == nil {
			err = c.handleTimeBank(data, msg.RequestID)
		}
	case TypeState:
		var data StateData
		if err = c.decode(msg, &data); err == nil {
			err = c.handleState(data, msg.RequestID)
		}
	default:
		c.sendError("unknown_type", fmt.Sprintf("unknown message type %q", msg.Type), msg.RequestID)
		return
	}
	if err != nil {
		c.sendError("request_failed", err.Error(), msg.RequestID)
	}
}

func (c *Connection) decode(msg *Message, out any) error {
	if len(msg.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(msg.Data, out); err != nil {
		return fmt.Errorf("failed to parse %s payload", msg.Type)
	}
	return nil
}

func (c *Connection) handleHello(data HelloData, requestID string) error {
	playerID, err := c.server.identity.Authenticate(data.PlayerName, data.Token)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.playerID = playerID
	c.mu.Unlock()
	c.server.bind(playerID, c)

	msg, err := NewMessage(TypeWelcome, WelcomeData{PlayerID: playerID})
	if err != nil {
		return err
	}
	msg.RequestID = requestID
	c.Send(msg)
	return nil
}

func (c *Connection) handleJoin(data JoinData, requestID string) error {
	if err := c.server.orch.Join(c.ctx, data.SessionID, c.player(), data.Seat, data.BuyIn); err != nil {
		return err
	}
	c.mu.Lock()
	c.sessionID = data.SessionID
	c.mu.Unlock()
	return c.pushSnapshot(data.SessionID, requestID)
}

func (c *Connection) handleLeave(data LeaveData, _ string) error {
	if err := c.server.orch.Leave(c.ctx, data.SessionID, c.player()); err != nil {
		return err
	}
	c.mu.Lock()
	c.sessionID = ""
	c.mu.Unlock()
	return nil
}

func (c *Connection) handleAction(data ActionData, requestID string) error {
	kind, ok := engine.ParseActionKind(data.Action)
	if !ok {
		return fmt.Errorf("unknown action %q", data.Action)
	}
	act := engine.Action{Kind: kind, Amount: data.Amount}
	rej, err := c.server.orch.ProcessAction(c.ctx, data.SessionID, c.player(), act, data.Timestamp)
	if err != nil {
		return err
	}
	if rej != nil {
		msg, merr := NewMessage(TypeRejected, RejectedData{
			Code:       string(rej.Code),
			Message:    rej.Message,
			Suggestion: rej.Suggestion,
		})
		if merr != nil {
			return merr
		}
		msg.RequestID = requestID
		c.Send(msg)
	}
	return nil
}

func (c *Connection) handleTimeBank(data TimeBankData, _ string) error {
	return c.server.orch.UseTimeBank(c.ctx, data.SessionID, c.player())
}

func (c *Connection) handleState(data StateData, requestID string) error {
	return c.pushSnapshot(data.SessionID, requestID)
}

// pushSnapshot sends the table view with other players' hole cards
// stripped.
func (c *Connection) pushSnapshot(sessionID, requestID string) error {
	view, err := c.server.orch.View(c.ctx, sessionID)
	if err != nil {
		return err
	}
	for i := range view.Players {
		if view.Players[i].PlayerID != c.player() {
			view.Players[i].HoleCards = nil
		}
	}
	msg, err := NewMessage(TypeSnapshot, view)
	if err != nil {
		return err
	}
	msg.RequestID = requestID
	c.Send(msg)
	return nil
}

func (c *Connection) sendError(code, message, requestID string) {
	msg, err := NewMessage(TypeError, ErrorData{Code: code, Message: message})
	if err != nil {
		return
	}
	msg.RequestID = requestID
	c.Send(msg)
}
