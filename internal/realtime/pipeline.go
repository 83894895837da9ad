package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/nexus-im/bazaar/internal/identity"
	"github.com/nexus-im/bazaar/store/message"
)

// Send persists an outbound message and then fans it out. from is the sending
// connection, or nil when the message arrives over REST.
//
// Nothing is broadcast unless the insert succeeded. Once it has, the full
// record goes to the topic's room and a notification goes to the receiver:
// directly when the receiver is online, otherwise to the room and then to
// every connection. The returned error reflects persistence only.
func (h *Hub) Send(ctx context.Context, from *Client, in OutboundMessage) (*message.Message, error) {
	topic := in.topic()
	switch {
	case topic.IsZero():
		return nil, fmt.Errorf("%w: productId is required", ErrValidation)
	case in.SenderID.IsZero():
		return nil, fmt.Errorf("%w: senderId is required", ErrValidation)
	case in.ReceiverID.IsZero():
		return nil, fmt.Errorf("%w: receiverId is required", ErrValidation)
	case strings.TrimSpace(in.Text) == "":
		return nil, fmt.Errorf("%w: text is required", ErrValidation)
	}
	if err := h.actorMatches(from, in.SenderID, "senderId"); err != nil {
		return nil, err
	}

	m := message.New(topic.String(), in.SenderID.String(), in.ReceiverID.String(), in.SenderName, in.Text, h.now())
	if err := h.messages.Insert(ctx, m); err != nil {
		if errors.Is(err, message.ErrInvalid) {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	h.logger.WithFields(logrus.Fields{
		"function":   "Send",
		"message_id": m.ID,
		"product_id": m.ProductID,
		"user_id":    m.SenderID,
	}).Info("message persisted")

	h.emitRoom(topic, EventReceiveProductMessage, m, nil)
	h.notify(from, topic, in.ReceiverID, Notification{
		ProductID:  m.ProductID,
		SenderID:   m.SenderID,
		SenderName: m.SenderName,
		Text:       m.Text,
		MessageID:  m.ID,
	})
	return m, nil
}

func (h *Hub) notify(from *Client, topic, receiver identity.ID, n Notification) {
	if c, ok := h.registry.Resolve(receiver); ok {
		h.emit(c, EventNewMessageNotification, n)
		return
	}
	// Receiver is not in the directory. Over-notify: the room first, then
	// everyone. Clients de-duplicate by messageId.
	h.emitRoom(topic, EventNewMessageNotification, n, from)
	h.emitAll(EventNewMessageNotification, n, from)
}

func (h *Hub) handleSend(ctx context.Context, c *Client, data json.RawMessage) (any, error) {
	var in OutboundMessage
	if err := decode(data, &in); err != nil {
		return nil, err
	}
	m, err := h.Send(ctx, c, in)
	if err != nil {
		return nil, err
	}
	return SendResult{Success: true, MessageID: m.ID}, nil
}
