// Package realtime is the live messaging core: the session registry, presence,
// the message delivery pipeline, read and delivery receipts, the typing relay
// and the websocket transport that carries them.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/nexus-im/bazaar/internal/auth"
	"github.com/nexus-im/bazaar/internal/identity"
	"github.com/nexus-im/bazaar/store/message"
)

var (
	ErrValidation  = errors.New("validation failed")
	ErrPersistence = errors.New("failed to persist message")
)

const defaultSendBuffer = 256

// Config carries the hub's collaborators. Zero values get defaults.
type Config struct {
	Logger         logrus.FieldLogger
	Authenticator  *auth.Authenticator
	AllowedOrigins []string
	SendBuffer     int
	Now            func() time.Time
}

// Done acknowledges an event that has no other result.
type Done struct {
	Success bool `json:"success"`
}

type handlerFunc func(ctx context.Context, c *Client, data json.RawMessage) (any, error)

// Hub owns the registry and routes every inbound event. It is created once at
// process start; Run ties its lifetime to a context.
type Hub struct {
	registry   *Registry
	messages   message.Store
	auth       *auth.Authenticator
	logger     logrus.FieldLogger
	now        func() time.Time
	sendBuffer int
	upgrader   websocket.Upgrader
	handlers   map[string]handlerFunc

	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(messages message.Store, cfg Config) *Hub {
	if cfg.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		cfg.Logger = l
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = defaultSendBuffer
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		registry:   NewRegistry(),
		messages:   messages,
		auth:       cfg.Authenticator,
		logger:     cfg.Logger,
		now:        cfg.Now,
		sendBuffer: cfg.SendBuffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
		ctx:    ctx,
		cancel: cancel,
	}
	h.handlers = map[string]handlerFunc{
		EventIdentify:           h.handleIdentify,
		EventCheckStatus:        h.handleCheckStatus,
		EventJoinProductChat:    h.handleJoin,
		EventLeaveProductChat:   h.handleLeave,
		EventSendProductMessage: h.handleSend,
		EventTypingStart:        h.handleTyping(true),
		EventTypingStop:         h.handleTyping(false),
		EventMessageRead:        h.handleRead,
		EventMessageDelivered:   h.handleDelivered,
	}
	return h
}

// Registry exposes the hub's session state.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Run blocks until ctx is done, then closes every connection.
func (h *Hub) Run(ctx context.Context) {
	h.logger.WithField("function", "Run").Info("hub started")
	<-ctx.Done()
	h.shutdown()
}

func (h *Hub) shutdown() {
	h.cancel()
	clients := h.registry.All()
	for _, c := range clients {
		h.registry.Remove(c)
		c.close()
	}
	h.logger.WithFields(logrus.Fields{
		"function": "shutdown",
		"closed":   len(clients),
	}).Info("hub stopped")
}

// Register tracks a new connection.
func (h *Hub) Register(c *Client) {
	h.registry.Add(c)
	h.logger.WithFields(logrus.Fields{
		"function": "Register",
		"conn_id":  c.ID,
	}).Info("client connected")
}

// Unregister forgets a connection and announces every user it carried as
// offline. Cleanup is best effort and never fails.
func (h *Hub) Unregister(c *Client) {
	released, ok := h.registry.Remove(c)
	if !ok {
		return
	}
	c.close()
	h.logger.WithFields(logrus.Fields{
		"function": "Unregister",
		"conn_id":  c.ID,
		"released": len(released),
	}).Info("client disconnected")
	for _, user := range released {
		h.emitAll(EventUserOffline, Presence{UserID: user}, nil)
	}
}

// Dispatch handles one inbound frame from c. Frames from one connection are
// dispatched in arrival order.
func (h *Hub) Dispatch(c *Client, raw []byte) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		h.fail(c, Frame{}, fmt.Errorf("%w: malformed frame", ErrValidation))
		return
	}
	handler, ok := h.handlers[f.Event]
	if !ok {
		h.fail(c, f, fmt.Errorf("%w: unknown event %q", ErrValidation, f.Event))
		return
	}
	result, err := handler(h.ctx, c, f.Data)
	if err != nil {
		h.fail(c, f, err)
		return
	}
	if f.Ack != nil {
		h.reply(c, *f.Ack, result)
	}
}

// fail reports err to c as a message-error event and, when the client asked
// for one, a failed acknowledgement.
func (h *Hub) fail(c *Client, f Frame, err error) {
	public := publicError(err)
	entry := h.logger.WithFields(logrus.Fields{
		"function": "Dispatch",
		"conn_id":  c.ID,
		"event":    f.Event,
		"error":    err.Error(),
	})
	if errors.Is(err, ErrPersistence) {
		entry.Error("event failed")
	} else {
		entry.Warn("event rejected")
	}

	h.emit(c, EventMessageError, ErrorEvent{Error: public})
	if f.Ack != nil {
		h.reply(c, *f.Ack, Failure{Success: false, Error: public})
	}
}

func (h *Hub) reply(c *Client, ack uint64, result any) {
	h.send(c, outFrame{Event: EventAck, Data: result, Ack: &ack})
}

func publicError(err error) string {
	switch {
	case errors.Is(err, ErrPersistence):
		return ErrPersistence.Error()
	case errors.Is(err, ErrValidation), errors.Is(err, ErrAlreadyIdentified),
		errors.Is(err, identity.ErrEmpty), errors.Is(err, identity.ErrInvalid):
		return err.Error()
	default:
		return "internal error"
	}
}

func (h *Hub) emit(c *Client, event string, data any) {
	h.send(c, outFrame{Event: event, Data: data})
}

func (h *Hub) send(c *Client, f outFrame) {
	frame, err := json.Marshal(f)
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"function": "send",
			"event":    f.Event,
			"error":    err.Error(),
		}).Error("failed to encode frame")
		return
	}
	h.deliver(c, f.Event, frame)
}

// emitRoom sends to every member of the topic's room except skip.
func (h *Hub) emitRoom(topic identity.ID, event string, data any, skip *Client) {
	h.broadcast(h.registry.RoomMembers(topic), event, data, skip)
}

// emitAll sends to every live connection except skip.
func (h *Hub) emitAll(event string, data any, skip *Client) {
	h.broadcast(h.registry.All(), event, data, skip)
}

func (h *Hub) broadcast(clients []*Client, event string, data any, skip *Client) {
	if len(clients) == 0 {
		return
	}
	frame, err := json.Marshal(outFrame{Event: event, Data: data})
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"function": "broadcast",
			"event":    event,
			"error":    err.Error(),
		}).Error("failed to encode frame")
		return
	}
	for _, c := range clients {
		if c == skip {
			continue
		}
		h.deliver(c, event, frame)
	}
}

func (h *Hub) deliver(c *Client, event string, frame []byte) {
	if !c.enqueue(frame) {
		h.logger.WithFields(logrus.Fields{
			"function": "deliver",
			"conn_id":  c.ID,
			"event":    event,
		}).Warn("send queue full or closed, dropping frame")
	}
}

// route sends directly to target's connection when it is online, otherwise
// to the topic's room except skip.
func (h *Hub) route(target, topic identity.ID, event string, data any, skip *Client) {
	if !target.IsZero() {
		if c, ok := h.registry.Resolve(target); ok {
			h.emit(c, event, data)
			return
		}
	}
	h.emitRoom(topic, event, data, skip)
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		set[origin] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: missing payload", ErrValidation)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

// actorMatches rejects a payload that claims to act for a user other than the
// one c identified as. Anonymous connections are trusted.
func (h *Hub) actorMatches(c *Client, claimed identity.ID, field string) error {
	if c == nil {
		return nil
	}
	user, ok := h.registry.UserOf(c)
	if ok && user != claimed {
		return fmt.Errorf("%w: %s does not match the identified user", ErrValidation, field)
	}
	return nil
}
