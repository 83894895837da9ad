package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypingGoesDirectlyToReceiver(t *testing.T) {
	h, _ := newTestHub(t)
	a := connect(t, h, "A", "p1")
	b := connect(t, h, "B")
	bystander := connect(t, h, "", "p1")
	for _, c := range []*Client{a, b, bystander} {
		drain(t, c)
	}

	require.NoError(t, h.Typing(a, TypingRequest{TopicID: "p1", SenderID: "A", ReceiverID: "B"}, true))

	frames := only(drain(t, b), EventTyping)
	require.Len(t, frames, 1)
	assert.JSONEq(t, `{"productId":"p1","senderId":"A","isTyping":true}`, string(frames[0].Data))
	assert.Empty(t, drain(t, bystander))
	assert.Empty(t, drain(t, a))
}

func TestTypingFallsBackToRoomExcludingSender(t *testing.T) {
	h, _ := newTestHub(t)
	a := connect(t, h, "A", "p1")
	peer := connect(t, h, "", "p1")
	drain(t, a)
	drain(t, peer)

	h.Dispatch(a, ackFrame(EventTypingStop, 1, map[string]string{
		"productId":  "p1",
		"senderId":   "A",
		"receiverId": "B",
	}))

	frames := only(drain(t, peer), EventTyping)
	require.Len(t, frames, 1)
	assert.JSONEq(t, `{"productId":"p1","senderId":"A","isTyping":false}`, string(frames[0].Data))

	aFrames := drain(t, a)
	assert.Empty(t, only(aFrames, EventTyping))
	assert.Len(t, only(aFrames, EventAck), 1)
}

func TestTypingValidation(t *testing.T) {
	h, _ := newTestHub(t)
	a := connect(t, h, "A")

	assert.ErrorIs(t, h.Typing(a, TypingRequest{SenderID: "A"}, true), ErrValidation)
	assert.ErrorIs(t, h.Typing(a, TypingRequest{TopicID: "p1"}, true), ErrValidation)
	assert.ErrorIs(t, h.Typing(a, TypingRequest{TopicID: "p1", SenderID: "Z"}, true), ErrValidation)
}
