package service

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
)

func startHub(t *testing.T) (*SessionHub, *httptest.Server) {
	t.Helper()
	hub := NewSessionHub()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user")
		hub.ServeWs(w, r, userID, &WSMessage{Type: MessageState, Data: map[string]string{"hello": userID}})
	}))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg WSMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestSessionHubPush(t *testing.T) {
	hub, srv := startHub(t)

	first := dial(t, srv, "1")
	second := dial(t, srv, "1")
	other := dial(t, srv, "2")

	for _, conn := range []*websocket.Conn{first, second, other} {
		assert.Equal(t, MessageState, readMessage(t, conn).Type)
	}

	require.Eventually(t, func() bool {
		return hub.Connections("1") == 2 && hub.Connections("2") == 1
	}, 2*time.Second, 10*time.Millisecond)

	hub.Push("1", WSMessage{Type: MessageResult, Data: map[string]int{"score": 25}})

	for _, conn := range []*websocket.Conn{first, second} {
		msg := readMessage(t, conn)
		assert.Equal(t, MessageResult, msg.Type)
		assert.Equal(t, map[string]interface{}{"score": float64(25)}, msg.Data)
	}

	// 用户 2 不应收到用户 1 的推送
	require.NoError(t, other.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err := other.ReadMessage()
	assert.Error(t, err)
}

func TestSessionHubUnregister(t *testing.T) {
	hub, srv := startHub(t)

	conn := dial(t, srv, "3")
	readMessage(t, conn)
	require.Eventually(t, func() bool { return hub.Connections("3") == 1 }, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.Connections("3") == 0 }, 2*time.Second, 10*time.Millisecond)

	// 无连接时推送直接丢弃
	hub.Push("3", WSMessage{Type: MessageState})
}
