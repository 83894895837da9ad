package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-im/bazaar/internal/auth"
	"github.com/nexus-im/bazaar/store/message"
)

func newServer(t *testing.T) (*Hub, *auth.Authenticator, string) {
	t.Helper()
	authenticator := auth.NewAuthenticator("test-secret", "bazaar-test", time.Hour)
	h := NewHub(message.NewMemoryStore(), Config{Authenticator: authenticator})

	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(h.ServeWs))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return h, authenticator, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func readUntil(t *testing.T, conn *websocket.Conn, event string) received {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var r received
		require.NoError(t, conn.ReadJSON(&r))
		if r.Event == event {
			return r
		}
	}
}

func TestServeWsAuthenticatedConnectIdentifies(t *testing.T) {
	h, authenticator, url := newServer(t)
	token, err := authenticator.GenerateToken("alice", "alice@example.com", "user")
	require.NoError(t, err)

	conn, _, err := websocket.DefaultDialer.Dial(url+"?token="+token, nil)
	require.NoError(t, err)
	defer conn.Close()

	online := readUntil(t, conn, EventUserOnline)
	assert.JSONEq(t, `{"userId":"alice"}`, string(online.Data))
	assert.True(t, h.CheckStatus("alice").Online)

	ack := uint64(1)
	require.NoError(t, conn.WriteJSON(map[string]any{"event": EventCheckStatus, "data": "alice", "ack": ack}))
	reply := readUntil(t, conn, EventAck)
	require.NotNil(t, reply.Ack)
	assert.Equal(t, ack, *reply.Ack)
	assert.JSONEq(t, `{"userId":"alice","online":true}`, string(reply.Data))
}

func TestServeWsRejectsBadToken(t *testing.T) {
	_, _, url := newServer(t)

	_, resp, err := websocket.DefaultDialer.Dial(url+"?token=garbage", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServeWsAnonymousRoundTrip(t *testing.T) {
	h, _, url := newServer(t)

	seller, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer seller.Close()
	buyer, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer buyer.Close()

	require.NoError(t, seller.WriteJSON(map[string]any{"event": EventIdentify, "data": "seller", "ack": 1}))
	readUntil(t, seller, EventAck)
	require.NoError(t, seller.WriteJSON(map[string]any{"event": EventJoinProductChat, "data": "p1", "ack": 2}))
	readUntil(t, seller, EventAck)

	require.NoError(t, buyer.WriteJSON(map[string]any{
		"event": EventSendProductMessage,
		"ack":   3,
		"data": map[string]any{
			"topicId":    "p1",
			"senderId":   "buyer",
			"receiverId": "seller",
			"senderName": "Bob",
			"text":       "is this still for sale?",
		},
	}))
	ack := readUntil(t, buyer, EventAck)
	var res SendResult
	require.NoError(t, json.Unmarshal(ack.Data, &res))
	assert.True(t, res.Success)

	got := readUntil(t, seller, EventReceiveProductMessage)
	var m message.Message
	require.NoError(t, json.Unmarshal(got.Data, &m))
	assert.Equal(t, res.MessageID, m.ID)
	assert.Equal(t, "is this still for sale?", m.Text)
	readUntil(t, seller, EventNewMessageNotification)

	require.NoError(t, seller.Close())
	require.Eventually(t, func() bool { return !h.CheckStatus("seller").Online }, 2*time.Second, 10*time.Millisecond)
}
