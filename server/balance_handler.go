package server

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"VibeLock/core/auth"
	"VibeLock/logger"
)

const indexerTokenHeader = "X-Indexer-Token"

// SetBalanceRequest 链上索引服务推送的持仓
type SetBalanceRequest struct {
	Wallet  string  `json:"wallet"`
	TrackID string  `json:"trackId"`
	Balance float64 `json:"balance"`
}

// IndexerMiddleware admits only callers presenting the configured indexer
// token. Without a configured token the endpoint stays disabled.
func (h *APIHandler) IndexerMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.indexerToken == "" {
			writeError(w, http.StatusServiceUnavailable, "balance ingestion disabled")
			return
		}
		got := r.Header.Get(indexerTokenHeader)
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.indexerToken)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid indexer token")
			return
		}
		next.ServeHTTP(w, r)
	}
}

// SetBalanceHandler records a wallet's holding of one track's coin as seen
// by the chain indexer and refreshes its unlock state, so open sessions
// switch audio right away.
func (h *APIHandler) SetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	if h.balances == nil {
		writeError(w, http.StatusServiceUnavailable, "balance store unavailable")
		return
	}

	var req SetBalanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	wallet, err := auth.NormalizeWallet(req.Wallet)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.TrackID = strings.TrimSpace(req.TrackID)
	if req.TrackID == "" || req.Balance < 0 {
		writeError(w, http.StatusBadRequest, "trackId and a non-negative balance are required")
		return
	}

	if err := h.balances.SetBalance(r.Context(), wallet, req.TrackID, req.Balance); err != nil {
		logger.Error("[Balance] 更新持仓失败",
			logger.String("wallet", wallet),
			logger.String("trackId", req.TrackID),
			logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "failed to update balance")
		return
	}
	h.refreshUnlock(r, wallet)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"wallet":  wallet,
		"trackId": req.TrackID,
		"balance": req.Balance,
	})
}

// RefreshBalancesHandler 链上持仓变化后由前端触发
func (h *APIHandler) RefreshBalancesHandler(w http.ResponseWriter, r *http.Request) {
	wallet, ok := WalletFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	h.refreshUnlock(r, wallet)
	writeJSON(w, http.StatusOK, map[string]string{"wallet": wallet})
}

func (h *APIHandler) refreshUnlock(r *http.Request, wallet string) {
	if h.unlock == nil {
		return
	}
	if err := h.unlock.Refresh(r.Context(), wallet); err != nil {
		// 缓存失效失败只影响时效，不影响请求结果
		logger.Warn("[Balance] 刷新解锁状态失败",
			logger.String("wallet", wallet),
			logger.ErrorField(err))
	}
}
