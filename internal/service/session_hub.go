package service

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"coder_edu_quiz/pkg/logger"
	"coder_edu_quiz/pkg/monitoring"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 32
)

// 推送消息类型
const (
	MessageState  = "STATE"
	MessageResult = "RESULT"
	MessageClosed = "CLOSED"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// LiveClient 一个浏览器连接；同一用户可以同时打开多个标签页
type LiveClient struct {
	hub    *SessionHub
	conn   *websocket.Conn
	send   chan []byte
	userID string
}

// readPump 只处理 pong 和关闭，客户端的操作走 HTTP 接口
func (c *LiveClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Log.Warn("WebSocket unexpected close", zap.Error(err), zap.String("userId", c.userID))
			}
			return
		}
	}
}

func (c *LiveClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SessionHub 按用户维护 WebSocket 连接，推送会话状态
type SessionHub struct {
	mu         sync.RWMutex
	clients    map[string]map[*LiveClient]struct{}
	register   chan *LiveClient
	unregister chan *LiveClient
	done       chan struct{}
}

func NewSessionHub() *SessionHub {
	return &SessionHub{
		clients:    make(map[string]map[*LiveClient]struct{}),
		register:   make(chan *LiveClient),
		unregister: make(chan *LiveClient),
		done:       make(chan struct{}),
	}
}

// Run 处理连接注册与注销，ctx 结束时关闭所有连接
func (h *SessionHub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case c := <-h.register:
			h.mu.Lock()
			set, ok := h.clients[c.userID]
			if !ok {
				set = make(map[*LiveClient]struct{})
				h.clients[c.userID] = set
			}
			set[c] = struct{}{}
			h.mu.Unlock()
			monitoring.LiveConnections.Inc()
		case c := <-h.unregister:
			h.remove(c)
		}
	}
}

func (h *SessionHub) remove(c *LiveClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.userID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	close(c.send)
	if len(set) == 0 {
		delete(h.clients, c.userID)
	}
	monitoring.LiveConnections.Dec()
}

func (h *SessionHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	closed := 0
	for userID, set := range h.clients {
		for c := range set {
			close(c.send)
			closed++
		}
		delete(h.clients, userID)
	}
	monitoring.LiveConnections.Set(0)
	logger.Log.Info("SessionHub stopped", zap.Int("closedConnections", closed))
}

// Push 非阻塞推送，客户端缓冲区满时丢弃该条消息（下一次 tick 会带上最新状态）
func (h *SessionHub) Push(userID string, msg WSMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		logger.Log.Error("Marshal live message failed", zap.Error(err), zap.String("type", msg.Type))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[userID] {
		select {
		case c.send <- payload:
		default:
		}
	}
}

// Connections 当前用户的连接数
func (h *SessionHub) Connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// ServeWs 升级连接并立即推送 initial（可为空）
func (h *SessionHub) ServeWs(w http.ResponseWriter, r *http.Request, userID string, initial *WSMessage) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Error("WebSocket upgrade failed", zap.Error(err), zap.String("userId", userID))
		return
	}
	client := &LiveClient{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		userID: userID,
	}

	if initial != nil {
		if payload, err := json.Marshal(initial); err == nil {
			client.send <- payload
		}
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
