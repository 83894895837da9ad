package realtime

import (
	"context"
	"encoding/json"
	"fmt"
)

// Typing relays a typing indicator to the receiver, or to the rest of the
// topic's room when the receiver is not online. Nothing is stored and no
// automatic stop is sent.
func (h *Hub) Typing(from *Client, in TypingRequest, isTyping bool) error {
	topic := in.topic()
	switch {
	case topic.IsZero():
		return fmt.Errorf("%w: topicId is required", ErrValidation)
	case in.SenderID.IsZero():
		return fmt.Errorf("%w: senderId is required", ErrValidation)
	}
	if err := h.actorMatches(from, in.SenderID, "senderId"); err != nil {
		return err
	}
	h.route(in.ReceiverID, topic, EventTyping, TypingEvent{
		ProductID: topic.String(),
		SenderID:  in.SenderID.String(),
		IsTyping:  isTyping,
	}, from)
	return nil
}

func (h *Hub) handleTyping(isTyping bool) handlerFunc {
	return func(_ context.Context, c *Client, data json.RawMessage) (any, error) {
		var in TypingRequest
		if err := decode(data, &in); err != nil {
			return nil, err
		}
		if err := h.Typing(c, in, isTyping); err != nil {
			return nil, err
		}
		return Done{Success: true}, nil
	}
}
