package realtime

import (
	"encoding/json"

	"github.com/nexus-im/bazaar/internal/identity"
)

// Client -> server events.
const (
	EventIdentify           = "identify"
	EventCheckStatus        = "check-status"
	EventJoinProductChat    = "join-product-chat"
	EventLeaveProductChat   = "leave-product-chat"
	EventSendProductMessage = "send-product-message"
	EventTypingStart        = "typing-start"
	EventTypingStop         = "typing-stop"
	EventMessageRead        = "message-read"
	EventMessageDelivered   = "message-delivered"
)

// Server -> client events. message-read and message-delivered are used in
// both directions.
const (
	EventUserOnline             = "user-online"
	EventUserOffline            = "user-offline"
	EventReceiveProductMessage  = "receive-product-message"
	EventNewMessageNotification = "new-message-notification"
	EventTyping                 = "typing"
	EventMessageError           = "message-error"
	EventAck                    = "ack"
)

// Frame is the envelope for every websocket message. A client event that
// sets Ack gets exactly one "ack" frame back carrying the same number.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	Ack   *uint64         `json:"ack,omitempty"`
}

type outFrame struct {
	Event string  `json:"event"`
	Data  any     `json:"data,omitempty"`
	Ack   *uint64 `json:"ack,omitempty"`
}

// Presence is the payload of user-online and user-offline.
type Presence struct {
	UserID identity.ID `json:"userId"`
}

// Status answers check-status.
type Status struct {
	UserID identity.ID `json:"userId"`
	Online bool        `json:"online"`
}

// OutboundMessage is the send-product-message payload. Older clients send
// productId, newer ones topicId; either names the conversation.
type OutboundMessage struct {
	TopicID    identity.ID `json:"topicId"`
	ProductID  identity.ID `json:"productId"`
	SenderID   identity.ID `json:"senderId"`
	ReceiverID identity.ID `json:"receiverId"`
	SenderName string      `json:"senderName"`
	Text       string      `json:"text"`
}

func (m OutboundMessage) topic() identity.ID {
	return firstSet(m.TopicID, m.ProductID)
}

// SendResult acknowledges a persisted message.
type SendResult struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId"`
}

// Failure is the acknowledgement for any event that did not succeed.
type Failure struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// Notification is the new-message-notification payload.
type Notification struct {
	ProductID  string `json:"productId"`
	SenderID   string `json:"senderId"`
	SenderName string `json:"senderName"`
	Text       string `json:"text"`
	MessageID  string `json:"messageId"`
}

// TypingRequest is the typing-start / typing-stop payload.
type TypingRequest struct {
	TopicID    identity.ID `json:"topicId"`
	ProductID  identity.ID `json:"productId"`
	SenderID   identity.ID `json:"senderId"`
	ReceiverID identity.ID `json:"receiverId"`
}

func (t TypingRequest) topic() identity.ID {
	return firstSet(t.TopicID, t.ProductID)
}

// TypingEvent is relayed to the peer.
type TypingEvent struct {
	ProductID string `json:"productId"`
	SenderID  string `json:"senderId"`
	IsTyping  bool   `json:"isTyping"`
}

// ReadRequest is the client message-read payload: the reader has seen the
// conversation with sender on the topic.
type ReadRequest struct {
	TopicID    identity.ID `json:"topicId"`
	ProductID  identity.ID `json:"productId"`
	ReaderID   identity.ID `json:"readerId"`
	SenderID   identity.ID `json:"senderId"`
	MessageIDs []string    `json:"messageIds"`
}

func (r ReadRequest) topic() identity.ID {
	return firstSet(r.TopicID, r.ProductID)
}

// DeliveredRequest is the client message-delivered payload.
type DeliveredRequest struct {
	TopicID    identity.ID `json:"topicId"`
	ProductID  identity.ID `json:"productId"`
	ReceiverID identity.ID `json:"receiverId"`
	SenderID   identity.ID `json:"senderId"`
	MessageIDs []string    `json:"messageIds"`
}

// ReceiptResult acknowledges a receipt request with the number of messages
// that actually changed state.
type ReceiptResult struct {
	Success       bool  `json:"success"`
	ModifiedCount int64 `json:"modifiedCount"`
}

// ReadReceipt is the server message-read payload sent to the messages' sender.
type ReadReceipt struct {
	ProductID  string   `json:"productId"`
	ReaderID   string   `json:"readerId"`
	MessageIDs []string `json:"messageIds"`
}

// DeliveryReceipt is the server message-delivered payload.
type DeliveryReceipt struct {
	ProductID  string   `json:"productId"`
	ReceiverID string   `json:"receiverId"`
	MessageIDs []string `json:"messageIds"`
}

// ErrorEvent is the message-error payload.
type ErrorEvent struct {
	Error string `json:"error"`
}

func firstSet(ids ...identity.ID) identity.ID {
	for _, id := range ids {
		if !id.IsZero() {
			return id
		}
	}
	return ""
}
