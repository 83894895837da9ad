// Package api is the REST surface: accounts, message history, conversation
// summaries, durable receipts and the presence probe. Live traffic goes
// through the websocket endpoint, which this router also mounts.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/nexus-im/bazaar/internal/auth"
	"github.com/nexus-im/bazaar/internal/realtime"
	"github.com/nexus-im/bazaar/store/conversation"
	"github.com/nexus-im/bazaar/store/message"
	"github.com/nexus-im/bazaar/store/user"
)

// Handler serves every HTTP route.
type Handler struct {
	users         user.Store
	messages      message.Store
	conversations conversation.Store
	hub           *realtime.Hub
	auth          *auth.Authenticator
	logger        logrus.FieldLogger
}

func NewHandler(users user.Store, messages message.Store, conversations conversation.Store, hub *realtime.Hub, authenticator *auth.Authenticator, logger logrus.FieldLogger) *Handler {
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	return &Handler{
		users:         users,
		messages:      messages,
		conversations: conversations,
		hub:           hub,
		auth:          authenticator,
		logger:        logger,
	}
}

// Routes builds the router.
func (h *Handler) Routes() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", h.health).Methods(http.MethodGet)
	r.HandleFunc("/ws", h.hub.ServeWs)

	r.HandleFunc("/api/auth/register", h.register).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/login", h.login).Methods(http.MethodPost)

	protected := func(path string, f http.HandlerFunc, method string) {
		r.Handle(path, h.requireAuth(f)).Methods(method)
	}
	protected("/api/auth/me", h.me, http.MethodGet)
	protected("/api/messages", h.sendMessage, http.MethodPost)
	protected("/api/messages/conversations", h.listConversations, http.MethodGet)
	protected("/api/messages/product/{productId}", h.listProductMessages, http.MethodGet)
	protected("/api/messages/product/{productId}/user/{otherUserId}", h.listConversation, http.MethodGet)
	protected("/api/messages/mark-delivered", h.markDelivered, http.MethodPost)
	protected("/api/messages/mark-read", h.markRead, http.MethodPost)
	protected("/api/presence/{userId}", h.presence, http.MethodGet)

	return r
}

// requireAuth rejects requests without a valid bearer token and stores the
// claims on the request context.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := h.auth.Authenticate(r)
		if err != nil {
			msg := "Invalid token"
			if errors.Is(err, auth.ErrMissingToken) {
				msg = "Unauthorized"
			}
			h.writeError(w, http.StatusUnauthorized, msg)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithClaims(r.Context(), claims)))
	})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		h.logger.WithFields(logrus.Fields{
			"function": "health",
			"error":    err.Error(),
		}).Warn("health check write error")
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.WithFields(logrus.Fields{
			"function": "writeJSON",
			"error":    err.Error(),
		}).Warn("response write error")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v)
}
