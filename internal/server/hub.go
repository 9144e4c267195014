package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/lawdesk/docket/internal/metrics"
	"github.com/lawdesk/docket/internal/notify"
)

// hubEventType distinguishes frames on the notification stream.
type hubEventType string

const (
	eventShow  hubEventType = "show"
	eventClose hubEventType = "close"
)

// hubEvent is one frame on the notification stream.
type hubEvent struct {
	Type    hubEventType    `json:"type"`
	Tag     string          `json:"tag,omitempty"`
	Payload *notify.Payload `json:"payload,omitempty"`
	At      time.Time       `json:"at"`
}

// clientAction is what a client may send back: snooze or dismiss a shown
// notification.
type clientAction struct {
	Action string `json:"action"`
	TaskID string `json:"taskId"`
}

// Hub fans reminder notifications out to connected WebSocket clients. It
// implements notify.Platform: delivery is "granted" whenever at least one
// client is connected, and Show replaces by tag on the client side.
type Hub struct {
	log *zap.SugaredLogger

	clientsMu sync.RWMutex
	clients   map[*websocket.Conn]bool

	actionMu sync.RWMutex
	onAction func(action, taskID string)

	broadcast chan hubEvent

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHub creates a stopped hub. Call Start before broadcasting.
func NewHub(logger *zap.SugaredLogger) *Hub {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		log:       logger.With("component", "hub"),
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan hubEvent, 100),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start launches the broadcast loop.
func (h *Hub) Start() {
	h.wg.Add(1)
	go h.broadcastLoop()
}

// Stop closes every client connection and ends the broadcast loop.
func (h *Hub) Stop() {
	h.cancel()

	h.clientsMu.Lock()
	for conn := range h.clients {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		delete(h.clients, conn)
	}
	h.clientsMu.Unlock()
	metrics.WebsocketClients.Set(0)

	h.wg.Wait()
}

// OnAction registers the handler for snooze/dismiss actions sent back by
// clients. Actions arriving before registration are dropped.
func (h *Hub) OnAction(fn func(action, taskID string)) {
	h.actionMu.Lock()
	h.onAction = fn
	h.actionMu.Unlock()
}

// ClientCount returns how many clients are connected.
func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// Granted reports whether anything is listening. With no clients the
// dispatcher treats delivery as permission-denied and skips it.
func (h *Hub) Granted() bool {
	return h.ClientCount() > 0
}

// Show broadcasts the payload to every connected client.
func (h *Hub) Show(p notify.Payload) error {
	return h.send(hubEvent{Type: eventShow, Tag: p.Tag, Payload: &p, At: time.Now()})
}

// Close tells clients to withdraw the notification with the given tag.
func (h *Hub) Close(tag string) error {
	return h.send(hubEvent{Type: eventClose, Tag: tag, At: time.Now()})
}

func (h *Hub) send(ev hubEvent) error {
	select {
	case h.broadcast <- ev:
		return nil
	case <-h.ctx.Done():
		return nil
	default:
		h.log.Warnw("broadcast channel full, dropping event", "type", ev.Type, "tag", ev.Tag)
		return nil
	}
}

func (h *Hub) broadcastLoop() {
	defer h.wg.Done()

	for {
		select {
		case <-h.ctx.Done():
			return
		case ev := <-h.broadcast:
			data, err := json.Marshal(ev)
			if err != nil {
				h.log.Errorw("marshal event", "error", err)
				continue
			}

			h.clientsMu.RLock()
			conns := make([]*websocket.Conn, 0, len(h.clients))
			for conn := range h.clients {
				conns = append(conns, conn)
			}
			h.clientsMu.RUnlock()

			// Writes happen outside the lock so a slow client cannot stall
			// registration.
			for _, conn := range conns {
				ctx, cancel := context.WithTimeout(h.ctx, 5*time.Second)
				err := conn.Write(ctx, websocket.MessageText, data)
				cancel()
				if err != nil {
					h.removeClient(conn)
				}
			}
		}
	}
}

// handleClient upgrades the request and parks the connection in the client
// set until it drops.
func (h *Hub) handleClient(c echo.Context) error {
	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		return nil
	}

	h.clientsMu.Lock()
	h.clients[conn] = true
	count := len(h.clients)
	h.clientsMu.Unlock()
	metrics.WebsocketClients.Set(float64(count))
	h.log.Infow("notification client connected", "total", count)

	go h.readLoop(conn)
	return nil
}

func (h *Hub) readLoop(conn *websocket.Conn) {
	defer h.removeClient(conn)
	for {
		_, data, err := conn.Read(h.ctx)
		if err != nil {
			return
		}
		var act clientAction
		if err := json.Unmarshal(data, &act); err != nil || act.Action == "" || act.TaskID == "" {
			continue
		}
		h.actionMu.RLock()
		fn := h.onAction
		h.actionMu.RUnlock()
		if fn != nil {
			fn(act.Action, act.TaskID)
		}
	}
}

func (h *Hub) removeClient(conn *websocket.Conn) {
	h.clientsMu.Lock()
	if _, ok := h.clients[conn]; !ok {
		h.clientsMu.Unlock()
		return
	}
	delete(h.clients, conn)
	count := len(h.clients)
	h.clientsMu.Unlock()

	metrics.WebsocketClients.Set(float64(count))
	_ = conn.Close(websocket.StatusNormalClosure, "")
	h.log.Infow("notification client disconnected", "total", count)
}
