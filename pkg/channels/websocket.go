package channels

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/lowbank/agentcore/pkg/bus"
	"github.com/lowbank/agentcore/pkg/logger"
)

// wsEnvelope is the wire format for the generic websocket channel: one
// JSON object per frame, chatId doubling as the connection key since a
// single process can hold many concurrent sockets.
type wsEnvelope struct {
	ChatID  string `json:"chatId"`
	Sender  string `json:"sender,omitempty"`
	Content string `json:"content"`
}

// WebSocketChannel is a generic bidirectional channel with no external
// SDK: internal tooling and tests connect directly rather than through a
// named chat platform. The upgrader/server shape is grounded in
// haasonsaas-nexus's internal/gateway/ws_control_plane.go.
type WebSocketChannel struct {
	addr, path string
	bus        *bus.MessageBus
	upgrader   websocket.Upgrader
	server     *http.Server

	mu    sync.RWMutex
	conns map[string]*websocket.Conn

	running atomic.Bool
}

func NewWebSocketChannel(addr, path string, b *bus.MessageBus) *WebSocketChannel {
	return &WebSocketChannel{
		addr: addr,
		path: path,
		bus:  b,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns: make(map[string]*websocket.Conn),
	}
}

func (w *WebSocketChannel) Name() string { return "websocket" }

func (w *WebSocketChannel) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc(w.path, w.handleConn)
	w.server = &http.Server{Addr: w.addr, Handler: mux}

	go func() {
		if err := w.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.ErrorCF("channels", "websocket server exited", map[string]interface{}{"error": err.Error()})
		}
	}()

	w.running.Store(true)
	return nil
}

func (w *WebSocketChannel) Stop(ctx context.Context) error {
	w.running.Store(false)
	if w.server == nil {
		return nil
	}
	return w.server.Shutdown(ctx)
}

func (w *WebSocketChannel) IsRunning() bool { return w.running.Load() }

func (w *WebSocketChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	w.mu.RLock()
	conn, ok := w.conns[msg.ChatID]
	w.mu.RUnlock()
	if !ok {
		return fmt.Errorf("websocket: no open connection for chat %q", msg.ChatID)
	}
	return conn.WriteJSON(wsEnvelope{ChatID: msg.ChatID, Content: msg.Content})
}

func (w *WebSocketChannel) handleConn(rw http.ResponseWriter, r *http.Request) {
	conn, err := w.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		logger.WarnCF("channels", "websocket upgrade failed", map[string]interface{}{"error": err.Error()})
		return
	}
	defer conn.Close()

	var chatID string
	for {
		var env wsEnvelope
		if err := conn.ReadJSON(&env); err != nil {
			if chatID != "" {
				w.mu.Lock()
				delete(w.conns, chatID)
				w.mu.Unlock()
			}
			return
		}
		if chatID == "" {
			chatID = env.ChatID
			w.mu.Lock()
			w.conns[chatID] = conn
			w.mu.Unlock()
		}

		w.bus.PublishInbound(bus.InboundMessage{
			Channel:  "websocket",
			SenderID: env.Sender,
			ChatID:   chatID,
			Content:  env.Content,
		})
	}
}
