package message

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status is the delivery state of a persisted message. It only moves forward:
// sent -> delivered -> read.
type Status string

const (
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
)

// Rank orders statuses; an unknown status ranks below sent.
func (s Status) Rank() int {
	switch s {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	default:
		return 0
	}
}

// Message is a chat message exchanged about a product listing.
type Message struct {
	ID          string     `json:"id"`
	ProductID   string     `json:"productId"`
	SenderID    string     `json:"senderId"`
	ReceiverID  string     `json:"receiverId"`
	SenderName  string     `json:"senderName,omitempty"`
	Text        string     `json:"text"`
	CreatedAt   time.Time  `json:"createdAt"`
	Read        bool       `json:"read"`
	Status      Status     `json:"status"`
	DeliveredAt *time.Time `json:"deliveredAt,omitempty"`
	ReadAt      *time.Time `json:"readAt,omitempty"`
}

// Transition identifies a message whose status was just moved forward.
type Transition struct {
	ID         string
	ProductID  string
	SenderID   string
	ReceiverID string
}

var (
	ErrInvalid = errors.New("invalid message")
)

// New builds an unsent record: status sent, unread, stamped with now.
func New(productID, senderID, receiverID, senderName, text string, now time.Time) *Message {
	return &Message{
		ProductID:  productID,
		SenderID:   senderID,
		ReceiverID: receiverID,
		SenderName: senderName,
		Text:       text,
		CreatedAt:  now,
		Read:       false,
		Status:     StatusSent,
	}
}

// Validate checks the fields every stored message must carry.
func (m *Message) Validate() error {
	switch {
	case m.ProductID == "":
		return fmt.Errorf("%w: productId is required", ErrInvalid)
	case m.SenderID == "":
		return fmt.Errorf("%w: senderId is required", ErrInvalid)
	case m.ReceiverID == "":
		return fmt.Errorf("%w: receiverId is required", ErrInvalid)
	case strings.TrimSpace(m.Text) == "":
		return fmt.Errorf("%w: text is required", ErrInvalid)
	}
	if m.Read && m.Status != StatusRead {
		return fmt.Errorf("%w: read message must have status %q", ErrInvalid, StatusRead)
	}
	return nil
}

// Store defines message persistence operations.
//
// MarkDelivered and MarkRead are conditional updates: they only touch
// messages whose current state allows the transition and return exactly the
// rows they changed. A call that matches nothing returns an empty slice and
// no error.
type Store interface {
	Insert(ctx context.Context, m *Message) error
	ListByProduct(ctx context.Context, productID string) ([]Message, error)
	ListConversation(ctx context.Context, productID, userA, userB string) ([]Message, error)
	MarkDelivered(ctx context.Context, receiverID string, ids []string, at time.Time) ([]Transition, error)
	MarkRead(ctx context.Context, productID, senderID, readerID string, at time.Time) ([]Transition, error)
}

// IDs returns the message ids of the transitions, in order.
func IDs(ts []Transition) []string {
	ids := make([]string, 0, len(ts))
	for _, t := range ts {
		ids = append(ids, t.ID)
	}
	return ids
}
