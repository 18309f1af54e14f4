package server

import (
	"context"
	"encoding/json"
	"net/http"

	"VibeLock/catalog"
	"VibeLock/core/auth"
	"VibeLock/core/session"
	"VibeLock/logger"
)

// BalanceStore 持仓写入，实现见 repository.BalanceRepository
type BalanceStore interface {
	SetBalance(ctx context.Context, wallet, trackID string, balance float64) error
}

// UnlockRefresher drops cached unlock results for a wallet and notifies
// listeners so live sessions re-resolve their stream.
type UnlockRefresher interface {
	Refresh(ctx context.Context, wallet string) error
}

// APIHandler 处理所有API请求
type APIHandler struct {
	issuer   *auth.Issuer
	catalog  *catalog.Service
	balances BalanceStore    // 可为 nil
	unlock   UnlockRefresher // 可为 nil
	manager  *session.Manager

	indexerToken string // 空值时关闭持仓写入接口
}

// NewAPIHandler 创建新的API处理器
func NewAPIHandler(
	issuer *auth.Issuer,
	catalogSvc *catalog.Service,
	balances BalanceStore,
	unlock UnlockRefresher,
	manager *session.Manager,
	indexerToken string,
) *APIHandler {
	return &APIHandler{
		issuer:   issuer,
		catalog:  catalogSvc,
		balances: balances,
		unlock:   unlock,
		manager:  manager,

		indexerToken: indexerToken,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("encode response failed", logger.ErrorField(err))
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
