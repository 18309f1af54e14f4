package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"VibeLock/logger"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 64 * 1024 // 播放列表可能较大
	sendBuffer     = 256
)

// Client WebSocket 客户端
type Client struct {
	Hub       *Hub
	Conn      *websocket.Conn
	Send      chan []byte
	SessionID string
	Wallet    string
	Role      string // player, remote
}

// NewClient creates a client bound to a session.
func NewClient(hub *Hub, conn *websocket.Conn, sessionID, wallet, role string) *Client {
	if role != RolePlayer {
		role = RoleRemote
	}
	return &Client{
		Hub:       hub,
		Conn:      conn,
		Send:      make(chan []byte, sendBuffer),
		SessionID: sessionID,
		Wallet:    wallet,
		Role:      role,
	}
}

// Hub 会话 WebSocket 管理中心
type Hub struct {
	// 会话 -> 客户端集合
	sessions map[string]map[*Client]bool

	register   chan registration
	unregister chan *Client
	broadcast  chan *BroadcastMessage

	mu   sync.RWMutex
	done chan struct{}

	// onEmpty 在会话最后一个客户端断开后调用
	onEmpty func(sessionID string)
}

// BroadcastMessage 广播消息
type BroadcastMessage struct {
	SessionID string
	Message   []byte
	OnlyRole  string // 为空时发给所有角色
}

type registration struct {
	client *Client
	done   chan struct{}
}

// NewHub 创建 Hub
func NewHub() *Hub {
	return &Hub{
		sessions:   make(map[string]map[*Client]bool),
		register:   make(chan registration),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, 256),
		done:       make(chan struct{}),
	}
}

// OnEmpty sets the callback run (in its own goroutine) when a session's
// last client leaves.
func (h *Hub) OnEmpty(fn func(sessionID string)) {
	h.mu.Lock()
	h.onEmpty = fn
	h.mu.Unlock()
}

// Run 启动 Hub 主循环
func (h *Hub) Run() {
	for {
		select {
		case reg := <-h.register:
			h.registerClient(reg.client)
			close(reg.done)

		case client := <-h.unregister:
			h.mu.Lock()
			h.removeClient(client)
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.broadcastToSession(msg)

		case <-h.done:
			h.cleanup()
			return
		}
	}
}

// Stop 停止 Hub
func (h *Hub) Stop() {
	close(h.done)
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.sessions[client.SessionID] == nil {
		h.sessions[client.SessionID] = make(map[*Client]bool)
	}
	h.sessions[client.SessionID][client] = true

	logger.Info("client registered",
		logger.String("session", client.SessionID),
		logger.String("wallet", client.Wallet),
		logger.String("role", client.Role))
}

// removeClient 移除客户端（需要持有锁）
func (h *Hub) removeClient(client *Client) {
	clients, ok := h.sessions[client.SessionID]
	if !ok || !clients[client] {
		return
	}

	delete(clients, client)
	close(client.Send)

	if len(clients) == 0 {
		delete(h.sessions, client.SessionID)
		if h.onEmpty != nil {
			go h.onEmpty(client.SessionID)
		}
	}

	logger.Info("client unregistered",
		logger.String("session", client.SessionID),
		logger.String("role", client.Role))
}

func (h *Hub) broadcastToSession(msg *BroadcastMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.sessions[msg.SessionID] {
		if msg.OnlyRole != "" && client.Role != msg.OnlyRole {
			continue
		}
		select {
		case client.Send <- msg.Message:
		default:
			// 发送缓冲区满，移除客户端
			h.removeClient(client)
		}
	}
}

// cleanup 清理所有连接
func (h *Hub) cleanup() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, clients := range h.sessions {
		for client := range clients {
			close(client.Send)
		}
	}
	h.sessions = make(map[string]map[*Client]bool)
}

// Register 注册客户端，返回时客户端已在册，可立即下发消息
func (h *Hub) Register(client *Client) {
	reg := registration{client: client, done: make(chan struct{})}
	select {
	case h.register <- reg:
		<-reg.done
	case <-h.done:
	}
}

// Unregister 注销客户端
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Broadcast 异步广播到会话的所有客户端（onlyRole 为空）或指定角色
func (h *Hub) Broadcast(sessionID string, msg *WSMessage, onlyRole string) error {
	data, err := encode(msg)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- &BroadcastMessage{SessionID: sessionID, Message: data, OnlyRole: onlyRole}:
	case <-h.done:
	}
	return nil
}

// SendToRole 同步发送，保证同一会话的音频指令按调用顺序到达
func (h *Hub) SendToRole(sessionID, role string, msg *WSMessage) (int, error) {
	data, err := encode(msg)
	if err != nil {
		return 0, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	sent := 0
	for client := range h.sessions[sessionID] {
		if role != "" && client.Role != role {
			continue
		}
		select {
		case client.Send <- data:
			sent++
		default:
			h.removeClient(client)
		}
	}
	return sent, nil
}

// ClientCount 会话当前连接数
func (h *Hub) ClientCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

func encode(msg *WSMessage) ([]byte, error) {
	msg.Timestamp = time.Now().UnixMilli()
	return json.Marshal(msg)
}

// ========== Client 方法 ==========

// ReadPump 读取消息循环
func (c *Client) ReadPump(ctx context.Context, handler func(ctx context.Context, client *Client, msg *WSMessage)) {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if ctx.Err() != nil {
			return
		}

		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("websocket read error",
					logger.ErrorField(err),
					logger.String("session", c.SessionID))
			}
			return
		}

		var msg WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			logger.Warn("invalid message format",
				logger.ErrorField(err),
				logger.String("session", c.SessionID))
			continue
		}

		if msg.Type == MsgTypePing {
			c.SendMessage(&WSMessage{Type: MsgTypePong})
			continue
		}

		handler(ctx, c, &msg)
	}
}

// WritePump 写入消息循环
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub 关闭了通道
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// 每条消息单独成帧，前端按帧 JSON.parse
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendMessage 发送消息给客户端，缓冲区满或已断开时丢弃
func (c *Client) SendMessage(msg *WSMessage) {
	data, err := encode(msg)
	if err != nil {
		return
	}
	c.Hub.sendToClient(c, data)
}

// sendToClient 只向仍在册的客户端写入，避免写已关闭的通道
func (h *Hub) sendToClient(c *Client, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.sessions[c.SessionID][c] {
		return
	}
	select {
	case c.Send <- data:
	default:
	}
}
