package conversation

import (
	"context"

	"github.com/nexus-im/bazaar/store/message"
)

// Summary describes one chat thread as seen by a viewer: a product listing
// and the other participant, the newest message exchanged between them, and
// how many messages addressed to the viewer are still unread.
//
// Summaries are derived from the message set on every call; nothing is cached.
type Summary struct {
	ProductID   string          `json:"productId"`
	OtherUserID string          `json:"otherUserId"`
	LastMessage message.Message `json:"lastMessageObj"`
	UnreadCount int64           `json:"unreadCount"`
}

// Store defines conversation summary queries.
type Store interface {
	// ListForUser returns one Summary per (product, counterpart) pair the user
	// has exchanged messages on, newest first.
	ListForUser(ctx context.Context, userID string) ([]Summary, error)
}
