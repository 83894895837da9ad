package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/nexus-im/bazaar/internal/identity"
)

// Identify binds user to c. Every binding change is announced to all
// connections as user-online; repeating the same identify is silent.
func (h *Hub) Identify(c *Client, user identity.ID) error {
	if user.IsZero() {
		return fmt.Errorf("%w: userId is required", ErrValidation)
	}
	changed, err := h.registry.Identify(c, user)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	h.logger.WithFields(logrus.Fields{
		"function": "Identify",
		"conn_id":  c.ID,
		"user_id":  user.String(),
	}).Debug("user identified")
	h.emitAll(EventUserOnline, Presence{UserID: user}, nil)
	return nil
}

// CheckStatus reports whether user currently has a live connection.
func (h *Hub) CheckStatus(user identity.ID) Status {
	_, online := h.registry.Resolve(user)
	return Status{UserID: user, Online: online}
}

// Join puts c in the topic's room.
func (h *Hub) Join(c *Client, topic identity.ID) error {
	if topic.IsZero() {
		return fmt.Errorf("%w: topicId is required", ErrValidation)
	}
	if err := h.registry.Join(c, topic); err != nil {
		return err
	}
	h.logger.WithFields(logrus.Fields{
		"function":   "Join",
		"conn_id":    c.ID,
		"product_id": topic.String(),
	}).Debug("joined room")
	return nil
}

// Leave takes c out of the topic's room.
func (h *Hub) Leave(c *Client, topic identity.ID) error {
	if topic.IsZero() {
		return fmt.Errorf("%w: topicId is required", ErrValidation)
	}
	h.registry.Leave(c, topic)
	return nil
}

func (h *Hub) handleIdentify(_ context.Context, c *Client, data json.RawMessage) (any, error) {
	user, err := userIDFrom(data)
	if err != nil {
		return nil, err
	}
	if err := h.Identify(c, user); err != nil {
		return nil, err
	}
	return Done{Success: true}, nil
}

func (h *Hub) handleCheckStatus(_ context.Context, _ *Client, data json.RawMessage) (any, error) {
	user, err := userIDFrom(data)
	if err != nil {
		return nil, err
	}
	return h.CheckStatus(user), nil
}

func (h *Hub) handleJoin(_ context.Context, c *Client, data json.RawMessage) (any, error) {
	topic, err := topicFrom(data)
	if err != nil {
		return nil, err
	}
	if err := h.Join(c, topic); err != nil {
		return nil, err
	}
	return Done{Success: true}, nil
}

func (h *Hub) handleLeave(_ context.Context, c *Client, data json.RawMessage) (any, error) {
	topic, err := topicFrom(data)
	if err != nil {
		return nil, err
	}
	if err := h.Leave(c, topic); err != nil {
		return nil, err
	}
	return Done{Success: true}, nil
}

// userIDFrom accepts a bare identifier or {"userId": ...}.
func userIDFrom(data json.RawMessage) (identity.ID, error) {
	id, err := identity.Parse(data)
	switch {
	case err == nil:
		return id, nil
	case errors.Is(err, identity.ErrEmpty):
		return "", fmt.Errorf("%w: userId is required", ErrValidation)
	}
	var p struct {
		UserID identity.ID `json:"userId"`
	}
	if err := decode(data, &p); err != nil {
		return "", err
	}
	if p.UserID.IsZero() {
		return "", fmt.Errorf("%w: userId is required", ErrValidation)
	}
	return p.UserID, nil
}

// topicFrom accepts a bare identifier, {"topicId": ...} or {"productId": ...}.
func topicFrom(data json.RawMessage) (identity.ID, error) {
	id, err := identity.Parse(data)
	switch {
	case err == nil:
		return id, nil
	case errors.Is(err, identity.ErrEmpty):
		return "", fmt.Errorf("%w: topicId is required", ErrValidation)
	}
	var p struct {
		TopicID   identity.ID `json:"topicId"`
		ProductID identity.ID `json:"productId"`
	}
	if err := decode(data, &p); err != nil {
		return "", err
	}
	topic := firstSet(p.TopicID, p.ProductID)
	if topic.IsZero() {
		return "", fmt.Errorf("%w: topicId is required", ErrValidation)
	}
	return topic, nil
}
