package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/nexus-im/bazaar/internal/auth"
	"github.com/nexus-im/bazaar/internal/identity"
	"github.com/nexus-im/bazaar/internal/realtime"
	"github.com/nexus-im/bazaar/store/message"
)

type markDeliveredRequest struct {
	MessageIDs []string `json:"messageIds"`
}

type markReadRequest struct {
	ProductID   identity.ID `json:"productId"`
	OtherUserID identity.ID `json:"otherUserId"`
}

// sendMessage runs the same pipeline as the websocket send event; the sender
// is always the authenticated user.
func (h *Handler) sendMessage(w http.ResponseWriter, r *http.Request) {
	viewer := currentUser(r)

	var in realtime.OutboundMessage
	if err := decodeBody(r, &in); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	in.SenderID = viewer

	m, err := h.hub.Send(r.Context(), nil, in)
	if err != nil {
		h.writeRealtimeError(w, "sendMessage", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]any{"success": true, "message": m})
}

func (h *Handler) listConversations(w http.ResponseWriter, r *http.Request) {
	viewer := currentUser(r)
	summaries, err := h.conversations.ListForUser(r.Context(), viewer.String())
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"function": "listConversations",
			"user_id":  viewer.String(),
			"error":    err.Error(),
		}).Error("failed to list conversations")
		h.writeError(w, http.StatusInternalServerError, "Failed to load conversations")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"success": true, "conversations": summaries})
}

// listProductMessages returns the viewer's messages on a product, oldest first.
func (h *Handler) listProductMessages(w http.ResponseWriter, r *http.Request) {
	viewer := currentUser(r)
	productID, err := identity.New(mux.Vars(r)["productId"])
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "productId is required")
		return
	}

	all, err := h.messages.ListByProduct(r.Context(), productID.String())
	if err != nil {
		h.writeStoreError(w, "listProductMessages", err)
		return
	}
	mine := make([]message.Message, 0, len(all))
	for _, m := range all {
		if m.SenderID == viewer.String() || m.ReceiverID == viewer.String() {
			mine = append(mine, m)
		}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"success": true, "messages": mine})
}

func (h *Handler) listConversation(w http.ResponseWriter, r *http.Request) {
	viewer := currentUser(r)
	vars := mux.Vars(r)
	productID, err := identity.New(vars["productId"])
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "productId is required")
		return
	}
	other, err := identity.New(vars["otherUserId"])
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "otherUserId is required")
		return
	}

	msgs, err := h.messages.ListConversation(r.Context(), productID.String(), viewer.String(), other.String())
	if err != nil {
		h.writeStoreError(w, "listConversation", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"success": true, "messages": msgs})
}

func (h *Handler) markDelivered(w http.ResponseWriter, r *http.Request) {
	var req markDeliveredRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	n, err := h.hub.MarkDelivered(r.Context(), nil, currentUser(r), req.MessageIDs)
	if err != nil {
		h.writeRealtimeError(w, "markDelivered", err)
		return
	}
	h.writeJSON(w, http.StatusOK, realtime.ReceiptResult{Success: true, ModifiedCount: n})
}

func (h *Handler) markRead(w http.ResponseWriter, r *http.Request) {
	var req markReadRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	n, err := h.hub.MarkRead(r.Context(), nil, req.ProductID, req.OtherUserID, currentUser(r))
	if err != nil {
		h.writeRealtimeError(w, "markRead", err)
		return
	}
	h.writeJSON(w, http.StatusOK, realtime.ReceiptResult{Success: true, ModifiedCount: n})
}

func (h *Handler) presence(w http.ResponseWriter, r *http.Request) {
	userID, err := identity.New(mux.Vars(r)["userId"])
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "userId is required")
		return
	}
	h.writeJSON(w, http.StatusOK, h.hub.CheckStatus(userID))
}

func (h *Handler) writeRealtimeError(w http.ResponseWriter, function string, err error) {
	if errors.Is(err, realtime.ErrValidation) {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.writeStoreError(w, function, err)
}

func (h *Handler) writeStoreError(w http.ResponseWriter, function string, err error) {
	h.logger.WithFields(logrus.Fields{
		"function": function,
		"error":    err.Error(),
	}).Error("store operation failed")
	h.writeError(w, http.StatusInternalServerError, "Internal server error")
}

// currentUser is the authenticated caller. Only valid behind requireAuth.
func currentUser(r *http.Request) identity.ID {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		return ""
	}
	return identity.ID(claims.UserID)
}
