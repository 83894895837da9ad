package realtime

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/nexus-im/bazaar/internal/auth"
	"github.com/nexus-im/bazaar/internal/identity"
)

// ServeWs upgrades the request to a websocket and runs the connection until
// it closes. A bearer token is optional; when present it must be valid and
// the connection starts out identified as the token's user.
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	var user identity.ID
	if token := auth.TokenFromRequest(r); token != "" && h.auth != nil {
		claims, err := h.auth.ValidateToken(token)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}
		if user, err = identity.New(claims.UserID); err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"function": "ServeWs",
			"error":    err.Error(),
		}).Warn("websocket upgrade failed")
		return
	}

	c := h.newClient(conn)
	h.Register(c)
	if !user.IsZero() {
		if err := h.Identify(c, user); err != nil {
			h.logger.WithFields(logrus.Fields{
				"function": "ServeWs",
				"conn_id":  c.ID,
				"error":    err.Error(),
			}).Warn("authenticated identify failed")
		}
	}

	go c.writePump()
	c.readPump()
}
