// Package hub bridges the voice assistant and the portal's browser UI over
// websockets.
//
// Browsers connect to the hub and receive assistant events (phase,
// transcript, command results) for their indicator widgets. The hub is also
// the assistant's [command.Host]: navigation, logout and chatbot commands
// are forwarded to the most recently active browser, and form commands act
// on a [form.MemDocument] mirrored from the fields that browser reports.
//
// Wire format: every frame is a JSON [Message] {"type": ..., "data": ...}.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/MrWong99/digigov-voice/internal/observe"
	"github.com/MrWong99/digigov-voice/internal/voice/assistant"
	"github.com/MrWong99/digigov-voice/internal/voice/command"
	"github.com/MrWong99/digigov-voice/internal/voice/form"
)

// Message types sent to browsers. Assistant events use their event kind.
const (
	TypeSnapshot      = "snapshot"
	TypeResult        = "result"
	TypeNavigate      = "navigate"
	TypeBack          = "back"
	TypeLogout        = "logout"
	TypeToggleChatbot = "toggle_chatbot"
	TypeSetField      = "set_field"
	TypeClick         = "click"
	TypeError         = "error"
)

// Message types sent by browsers.
const (
	TypeToggle   = "toggle"
	TypeEnable   = "enable"
	TypeDisable  = "disable"
	TypeMute     = "mute"
	TypeSimulate = "simulate"
	TypeLocation = "location"
	TypeForm     = "form"
)

const (
	sendBuffer   = 64
	writeTimeout = 5 * time.Second
)

// Message is a websocket frame.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewMessage encodes data into a Message of type typ.
func NewMessage(typ string, data any) (Message, error) {
	if data == nil {
		return Message{Type: typ}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Message{}, fmt.Errorf("hub: encode %s: %w", typ, err)
	}
	return Message{Type: typ, Data: raw}, nil
}

// Payloads.
type (
	PathData    struct{ Path string `json:"path"` }
	MuteData    struct{ Muted bool `json:"muted"` }
	TextData    struct{ Text string `json:"text"` }
	FormData    struct{ Fields []form.Field `json:"fields"` }
	FieldData   struct {
		Key   string `json:"key"`
		Value string `json:"value,omitempty"`
	}
	ErrorData struct{ Error string `json:"error"` }
)

// Controller is the assistant as seen by browsers. *assistant.Assistant
// implements it.
type Controller interface {
	Enable(ctx context.Context) error
	Disable()
	Toggle(ctx context.Context) error
	SetMuted(muted bool)
	Simulate(ctx context.Context, text string) (command.Result, error)
	Snapshot() assistant.Snapshot
	Subscribe(buffer int) (<-chan assistant.Event, func())
}

// Option is a functional option for [New].
type Option func(*Hub)

// WithOriginPatterns sets the allowed cross-origin hosts, e.g.
// "portal.example.gov". Same-origin requests are always accepted.
func WithOriginPatterns(patterns ...string) Option {
	return func(h *Hub) { h.origins = patterns }
}

// WithMetrics counts connected clients.
func WithMetrics(m *observe.Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}

// Hub tracks connected browsers. It is safe for concurrent use.
type Hub struct {
	ctrl    Controller
	origins []string
	metrics *observe.Metrics

	mu      sync.Mutex
	clients map[string]*client
	active  *client
}

var (
	_ http.Handler           = (*Hub)(nil)
	_ command.Host           = (*Hub)(nil)
	_ command.BackNavigator  = (*Hub)(nil)
	_ command.LogoutHandler  = (*Hub)(nil)
	_ command.ChatbotToggler = (*Hub)(nil)
)

// New creates a hub in front of ctrl. ctrl may be nil until [Hub.Attach].
func New(ctrl Controller, opts ...Option) *Hub {
	h := &Hub{ctrl: ctrl, clients: make(map[string]*client)}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Attach sets the controller. The assistant needs the hub as its host and
// the hub needs the assistant, so one side is wired after construction.
func (h *Hub) Attach(ctrl Controller) {
	h.mu.Lock()
	h.ctrl = ctrl
	h.mu.Unlock()
}

func (h *Hub) controller() Controller {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ctrl
}

// Run forwards assistant events to every client until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	ctrl := h.controller()
	if ctrl == nil {
		return errors.New("hub: no controller attached")
	}
	events, cancel := ctrl.Subscribe(256)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			msg, err := NewMessage(string(ev.Kind), ev)
			if err != nil {
				slog.Warn("hub: dropping event", "kind", ev.Kind, "err", err)
				continue
			}
			h.broadcast(msg)
		}
	}
}

// Clients returns the number of connected browsers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) broadcast(msg Message) {
	h.mu.Lock()
	targets := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.Unlock()
	for _, c := range targets {
		c.enqueue(msg)
	}
}

func (h *Hub) activeClient() *client {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.active
}

func (h *Hub) touch(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; ok {
		h.active = c
	}
	h.mu.Unlock()
}

// ─── command.Host ────────────────────────────────────────────────────────────

// Navigate sends the active browser to path.
func (h *Hub) Navigate(path string) {
	c := h.activeClient()
	if c == nil {
		slog.Warn("hub: navigate without a connected browser", "path", path)
		return
	}
	c.setPath(path)
	c.send(TypeNavigate, PathData{Path: path})
}

// CurrentPath returns the active browser's location.
func (h *Hub) CurrentPath() string {
	if c := h.activeClient(); c != nil {
		return c.getPath()
	}
	return ""
}

// Document returns the active browser's form mirror, or nil.
func (h *Hub) Document() form.Document {
	if c := h.activeClient(); c != nil {
		return c.doc
	}
	return nil
}

// Back asks the active browser to go back in its history.
func (h *Hub) Back() { h.forward(TypeBack) }

// Logout asks the active browser to sign the user out.
func (h *Hub) Logout() { h.forward(TypeLogout) }

// ToggleChatbot opens or closes the active browser's chat widget.
func (h *Hub) ToggleChatbot() { h.forward(TypeToggleChatbot) }

func (h *Hub) forward(typ string) {
	if c := h.activeClient(); c != nil {
		c.send(typ, nil)
		return
	}
	slog.Warn("hub: no connected browser", "type", typ)
}

// ─── Connections ─────────────────────────────────────────────────────────────

// ServeHTTP upgrades the request and serves one browser until it leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		slog.Warn("hub: websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := newClient(conn)
	h.mu.Lock()
	h.clients[c.id] = c
	h.active = c
	h.mu.Unlock()
	h.metrics.ClientConnected(ctx, 1)
	slog.Info("hub: client connected", "client", c.id, "remote", r.RemoteAddr)

	defer func() {
		c.close()
		h.mu.Lock()
		delete(h.clients, c.id)
		if h.active == c {
			h.active = nil
			for _, other := range h.clients {
				h.active = other
				break
			}
		}
		h.mu.Unlock()
		h.metrics.ClientConnected(context.Background(), -1)
		slog.Info("hub: client disconnected", "client", c.id)
	}()

	go c.writeLoop(ctx, cancel)

	if ctrl := h.controller(); ctrl != nil {
		c.send(TypeSnapshot, ctrl.Snapshot())
	}

	for {
		var msg Message
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			if status := websocket.CloseStatus(err); status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && ctx.Err() == nil {
				slog.Debug("hub: read failed", "client", c.id, "err", err)
			}
			conn.Close(websocket.StatusNormalClosure, "")
			return
		}
		h.touch(c)
		h.handle(ctx, c, msg)
	}
}

func (h *Hub) handle(ctx context.Context, c *client, msg Message) {
	ctrl := h.controller()
	if ctrl == nil && msg.Type != TypeLocation && msg.Type != TypeForm {
		c.fail("assistant not ready")
		return
	}

	switch msg.Type {
	case TypeToggle:
		if err := ctrl.Toggle(ctx); err != nil {
			c.fail(err.Error())
		}
	case TypeEnable:
		if err := ctrl.Enable(ctx); err != nil {
			c.fail(err.Error())
		}
	case TypeDisable:
		ctrl.Disable()
	case TypeMute:
		var d MuteData
		if err := decode(msg, &d); err != nil {
			c.fail(err.Error())
			return
		}
		ctrl.SetMuted(d.Muted)
	case TypeSimulate:
		var d TextData
		if err := decode(msg, &d); err != nil {
			c.fail(err.Error())
			return
		}
		res, err := ctrl.Simulate(ctx, d.Text)
		if err != nil {
			c.fail(err.Error())
			return
		}
		c.send(TypeResult, res)
	case TypeLocation:
		var d PathData
		if err := decode(msg, &d); err != nil {
			c.fail(err.Error())
			return
		}
		c.setPath(d.Path)
	case TypeForm:
		var d FormData
		if err := decode(msg, &d); err != nil {
			c.fail(err.Error())
			return
		}
		c.doc.Replace(d.Fields)
	default:
		slog.Debug("hub: unknown message", "client", c.id, "type", msg.Type)
		c.fail("unknown message type " + msg.Type)
	}
}

func decode(msg Message, v any) error {
	if len(msg.Data) == 0 {
		return fmt.Errorf("hub: %s: missing data", msg.Type)
	}
	if err := json.Unmarshal(msg.Data, v); err != nil {
		return fmt.Errorf("hub: %s: %w", msg.Type, err)
	}
	return nil
}

// ─── Client ──────────────────────────────────────────────────────────────────

type client struct {
	id   string
	conn *websocket.Conn
	out  chan Message
	doc  *form.MemDocument

	stopObserving func()

	mu     sync.Mutex
	path   string
	closed bool
}

func newClient(conn *websocket.Conn) *client {
	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		out:  make(chan Message, sendBuffer),
		doc:  form.NewMemDocument(),
	}
	c.stopObserving = c.doc.Observe(func(ev form.Event) {
		switch ev.Kind {
		case form.EventChange:
			c.send(TypeSetField, FieldData{Key: ev.Key, Value: ev.Value})
		case form.EventClick:
			c.send(TypeClick, FieldData{Key: ev.Key})
		}
	})
	return c
}

func (c *client) setPath(p string) {
	c.mu.Lock()
	c.path = p
	c.mu.Unlock()
}

func (c *client) getPath() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.path
}

func (c *client) send(typ string, data any) {
	msg, err := NewMessage(typ, data)
	if err != nil {
		slog.Warn("hub: encode failed", "client", c.id, "err", err)
		return
	}
	c.enqueue(msg)
}

func (c *client) fail(msg string) { c.send(TypeError, ErrorData{Error: msg}) }

// enqueue never blocks; a client that stops reading loses messages.
func (c *client) enqueue(msg Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.out <- msg:
	default:
		slog.Warn("hub: client send buffer full, dropping message", "client", c.id, "type", msg.Type)
	}
}

func (c *client) close() {
	c.stopObserving()
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.out)
	}
}

func (c *client) writeLoop(ctx context.Context, cancel context.CancelFunc) {
	defer cancel()
	for msg := range c.out {
		wctx, wcancel := context.WithTimeout(ctx, writeTimeout)
		err := wsjson.Write(wctx, c.conn, msg)
		wcancel()
		if err != nil {
			slog.Debug("hub: write failed", "client", c.id, "err", err)
			return
		}
	}
}
