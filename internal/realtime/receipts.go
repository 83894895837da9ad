package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/nexus-im/bazaar/internal/identity"
	"github.com/nexus-im/bazaar/store/message"
)

// MarkDelivered moves the listed messages addressed to receiver from sent to
// delivered and tells each sender which of them changed. Messages
// already delivered or read, or addressed to someone else, are left alone.
// The count is the number that actually changed; zero is not an error.
func (h *Hub) MarkDelivered(ctx context.Context, from *Client, receiver identity.ID, ids []string) (int64, error) {
	if receiver.IsZero() {
		return 0, fmt.Errorf("%w: receiverId is required", ErrValidation)
	}
	if len(ids) == 0 {
		return 0, fmt.Errorf("%w: messageIds is required", ErrValidation)
	}
	if err := h.actorMatches(from, receiver, "receiverId"); err != nil {
		return 0, err
	}
	ids = cleanIDs(ids)
	if len(ids) == 0 {
		return 0, nil
	}

	changed, err := h.messages.MarkDelivered(ctx, receiver.String(), ids, h.now())
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	h.logger.WithFields(logrus.Fields{
		"function":  "MarkDelivered",
		"user_id":   receiver.String(),
		"requested": len(ids),
		"modified":  len(changed),
	}).Debug("messages delivered")

	for _, g := range groupBySender(changed) {
		h.route(identity.ID(g.sender), identity.ID(g.product), EventMessageDelivered, DeliveryReceipt{
			ProductID:  g.product,
			ReceiverID: receiver.String(),
			MessageIDs: g.ids,
		}, from)
	}
	return int64(len(changed)), nil
}

// MarkRead marks every unread message that counterpart sent to reader on the
// topic as read, then tells counterpart which messages changed.
func (h *Hub) MarkRead(ctx context.Context, from *Client, topic, counterpart, reader identity.ID) (int64, error) {
	switch {
	case topic.IsZero():
		return 0, fmt.Errorf("%w: productId is required", ErrValidation)
	case counterpart.IsZero():
		return 0, fmt.Errorf("%w: senderId is required", ErrValidation)
	case reader.IsZero():
		return 0, fmt.Errorf("%w: readerId is required", ErrValidation)
	}
	if err := h.actorMatches(from, reader, "readerId"); err != nil {
		return 0, err
	}

	changed, err := h.messages.MarkRead(ctx, topic.String(), counterpart.String(), reader.String(), h.now())
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	h.logger.WithFields(logrus.Fields{
		"function":   "MarkRead",
		"user_id":    reader.String(),
		"product_id": topic.String(),
		"modified":   len(changed),
	}).Debug("messages read")

	if len(changed) > 0 {
		h.route(counterpart, topic, EventMessageRead, ReadReceipt{
			ProductID:  topic.String(),
			ReaderID:   reader.String(),
			MessageIDs: message.IDs(changed),
		}, from)
	}
	return int64(len(changed)), nil
}

// The live receipts carry messageIds, but the stored state decides what
// changed: only the ids the store actually transitioned are forwarded.
func (h *Hub) handleRead(ctx context.Context, c *Client, data json.RawMessage) (any, error) {
	var in ReadRequest
	if err := decode(data, &in); err != nil {
		return nil, err
	}
	n, err := h.MarkRead(ctx, c, in.topic(), in.SenderID, in.ReaderID)
	if err != nil {
		return nil, err
	}
	return ReceiptResult{Success: true, ModifiedCount: n}, nil
}

func (h *Hub) handleDelivered(ctx context.Context, c *Client, data json.RawMessage) (any, error) {
	var in DeliveredRequest
	if err := decode(data, &in); err != nil {
		return nil, err
	}
	n, err := h.MarkDelivered(ctx, c, in.ReceiverID, in.MessageIDs)
	if err != nil {
		return nil, err
	}
	return ReceiptResult{Success: true, ModifiedCount: n}, nil
}

type senderGroup struct {
	product string
	sender  string
	ids     []string
}

// groupBySender splits transitions per (product, sender), in first-seen order.
func groupBySender(ts []message.Transition) []*senderGroup {
	var groups []*senderGroup
	index := make(map[[2]string]*senderGroup)
	for _, t := range ts {
		key := [2]string{t.ProductID, t.SenderID}
		g, ok := index[key]
		if !ok {
			g = &senderGroup{product: t.ProductID, sender: t.SenderID}
			index[key] = g
			groups = append(groups, g)
		}
		g.ids = append(g.ids, t.ID)
	}
	return groups
}

func cleanIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
