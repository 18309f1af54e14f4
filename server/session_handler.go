package server

import (
	"context"
	"errors"
	"io"
	"net/http"

	"VibeLock/catalog"
	"VibeLock/core/session"
	"VibeLock/logger"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const maxOpBody = 1 << 20

// SessionHandler 播放会话的 REST 与 WebSocket 入口
type SessionHandler struct {
	api      *APIHandler
	upgrader websocket.Upgrader
}

// NewSessionHandler 创建会话处理器
func NewSessionHandler(api *APIHandler) *SessionHandler {
	return &SessionHandler{
		api: api,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// GetStateHandler 返回会话当前快照
func (h *SessionHandler) GetStateHandler(w http.ResponseWriter, r *http.Request) {
	wallet, _ := WalletFromContext(r.Context())
	s, err := h.api.manager.Authorize(mux.Vars(r)["id"], wallet)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Controller.Snapshot())
}

// ControlHandler runs one control operation (play, toggle, next and so
// on) and returns the resulting snapshot.
func (h *SessionHandler) ControlHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	wallet, _ := WalletFromContext(r.Context())
	s, err := h.api.manager.Authorize(vars["id"], wallet)
	if err != nil {
		writeSessionError(w, err)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxOpBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.api.manager.Apply(r.Context(), s, vars["op"], body); err != nil {
		logger.Debug("[Session] 控制指令失败",
			logger.String("session", s.ID),
			logger.String("op", vars["op"]),
			logger.ErrorField(err))
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Controller.Snapshot())
}

// WebSocketHandler upgrades /ws/player. The token travels as a query
// parameter because browsers cannot set headers on WebSocket requests.
// An omitted session parameter opens a fresh session.
func (h *SessionHandler) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	wallet, err := h.api.issuer.ParseToken(q.Get("token"))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	manager := h.api.manager
	s, err := manager.Open(r.Context(), q.Get("session"), wallet)
	if err != nil {
		writeSessionError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("WebSocket 升级失败", logger.ErrorField(err))
		manager.Close(context.Background(), s.ID)
		return
	}

	client := session.NewClient(manager.GetHub(), conn, s.ID, wallet, q.Get("role"))
	manager.GetHub().Register(client)

	// 注册前最后一个客户端恰好断开时，会话已被关闭，这里重新打开
	if _, err := manager.Get(s.ID); err != nil {
		if _, err := manager.Open(context.Background(), s.ID, wallet); err != nil {
			logger.Warn("reopen session failed", logger.String("session", s.ID), logger.ErrorField(err))
		}
	}
	manager.Attach(client)

	go client.WritePump()
	go client.ReadPump(context.Background(), manager.HandleMessage)

	logger.Info("WebSocket 连接建立",
		logger.String("session", s.ID),
		logger.String("wallet", wallet),
		logger.String("role", client.Role))
}

func writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, session.ErrTrackNotFound),
		errors.Is(err, catalog.ErrArtistNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, session.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, session.ErrUnknownOp), errors.Is(err, session.ErrBadPayload):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		logger.Error("[Session] 内部错误", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
